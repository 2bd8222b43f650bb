package source

import (
	"time"

	"gocv.io/x/gocv"
)

// Image is a decoded camera frame. Mat is CV_8UC3 in BGR order once it has
// passed through FromImageMsg.
type Image struct {
	Mat  gocv.Mat
	Time time.Time

	// FrameID is the coordinate frame reported by the publisher.
	FrameID string
	// Seq is the header sequence number of the originating message.
	Seq uint32
}

func (i *Image) Close() {
	i.Mat.Close()
}

func (i *Image) Clone() Image {
	n := *i
	n.Mat = i.Mat.Clone()
	return n
}
