package sink

import (
	"time"

	"gocv.io/x/gocv"

	"armcam/video/source"
)

// Window shows frames in a HighGUI window. It must be used from the thread
// that created it.
type Window struct {
	window  *gocv.Window
	sizeSet bool
}

func NewWindow(name string) *Window {
	return &Window{
		window: gocv.NewWindow(name),
	}
}

func (w *Window) Put(input source.Image) {
	if input.Mat.Empty() {
		return
	}
	if !w.sizeSet {
		w.window.ResizeWindow(input.Mat.Cols(), input.Mat.Rows())
		w.sizeSet = true
	}
	w.window.IMShow(input.Mat)
}

// WaitKey pumps window events for at least d (and no less than a millisecond)
// and returns the pressed key code, or -1.
func (w *Window) WaitKey(d time.Duration) int {
	ms := int(d / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return w.window.WaitKey(ms)
}

func (w *Window) Close() {
	w.window.Close()
}
