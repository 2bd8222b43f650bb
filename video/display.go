package video

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"armcam/metrics"
	"armcam/video/process"
	"armcam/video/sink"
	"armcam/video/source"
)

// Screen renders frames and reports key presses. *sink.Window implements it.
type Screen interface {
	Put(input source.Image)
	// WaitKey pumps events for d and returns the pressed key, or -1.
	WaitKey(d time.Duration) int
	Close()
}

// Frames is the read side of a Relay.
type Frames interface {
	CopyTo(dst *gocv.Mat) (source.Image, uint64, bool)
	Wait(ctx context.Context, since uint64) (uint64, error)
}

type DisplayOptions struct {
	// MaxFPS bounds how often a frame is rendered.
	MaxFPS int

	// QuitKey ends Run when pressed in the window.
	QuitKey byte

	// StatusLine is written to Status once per iteration.
	StatusLine string
	Status     io.Writer

	// Overlay, if set, is drawn with the frame time on every rendered frame.
	Overlay string
}

func DefaultDisplayOptions() DisplayOptions {
	return DisplayOptions{
		MaxFPS:     30,
		QuitKey:    'q',
		StatusLine: "cameras/right_hand_camera/image",
		Status:     os.Stdout,
	}
}

// Display renders the newest frame of a Relay. Screen may be nil, in which
// case frames only go to Sinks and Run ends with its context.
type Display struct {
	Frames Frames
	Screen Screen
	Sinks  []sink.Sink

	opts DisplayOptions
}

func NewDisplay(frames Frames, screen Screen, opts DisplayOptions) *Display {
	if opts.MaxFPS <= 0 {
		opts.MaxFPS = DefaultDisplayOptions().MaxFPS
	}
	if opts.Status == nil {
		opts.Status = io.Discard
	}
	return &Display{
		Frames: frames,
		Screen: screen,
		opts:   opts,
	}
}

// Run loops until the quit key is pressed (returning nil) or ctx is done
// (returning its error). A frame is rendered only when it is newer than the
// last one rendered, at most MaxFPS times per second.
func (d *Display) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(d.opts.MaxFPS)

	frame := gocv.NewMat()
	defer frame.Close()

	var gen uint64
	for {
		wctx, cancel := context.WithTimeout(ctx, interval)
		next, _ := d.Frames.Wait(wctx, gen)
		cancel()
		if err := ctx.Err(); err != nil {
			return err
		}

		delay := time.Millisecond
		if next != gen {
			if img, g, ok := d.Frames.CopyTo(&frame); ok {
				gen = g
				d.render(img)
				// Hold this frame for the rest of the interval.
				delay = interval
			}
		}

		fmt.Fprintln(d.opts.Status, d.opts.StatusLine)

		if d.Screen == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		if key := d.Screen.WaitKey(delay); key >= 0 && byte(key&0xff) == d.opts.QuitKey {
			log.Infof("Quit key %q pressed", d.opts.QuitKey)
			return nil
		}
	}
}

func (d *Display) render(img source.Image) {
	if d.opts.Overlay != "" {
		img = process.DrawOverlay(d.opts.Overlay, img)
	}
	if d.Screen != nil {
		d.Screen.Put(img)
	}
	for _, s := range d.Sinks {
		s.Put(img)
	}
	metrics.FramesDisplayed.Inc()
}
