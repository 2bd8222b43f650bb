package source

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"gocv.io/x/gocv"

	"armcam/ros"
)

// EncodingBGR8 is the only encoding frames are converted to.
const EncodingBGR8 = "bgr8"

var (
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
	ErrMalformedImage      = errors.New("malformed image")
)

// ConversionError reports why a message could not be turned into a frame.
// It unwraps to ErrUnsupportedEncoding or ErrMalformedImage.
type ConversionError struct {
	Encoding string
	Reason   string
	Err      error
}

func (e *ConversionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("convert [%s] to [%s]: %v", e.Encoding, EncodingBGR8, e.Err)
	}
	return fmt.Sprintf("convert [%s] to [%s]: %v: %s", e.Encoding, EncodingBGR8, e.Err, e.Reason)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

func malformed(enc, format string, args ...interface{}) error {
	return &ConversionError{Encoding: enc, Reason: fmt.Sprintf(format, args...), Err: ErrMalformedImage}
}

type encoding struct {
	channels int
	// depth is bytes per channel.
	depth int
	// code converts the 8-bit form of the encoding to BGR. Ignored when
	// same is set.
	code gocv.ColorConversionCode
	same bool
}

// Bayer patterns are named differently by ROS and OpenCV; ROS rggb is
// OpenCV BayerBG.
var encodings = map[string]encoding{
	"bgr8":        {channels: 3, depth: 1, same: true},
	"rgb8":        {channels: 3, depth: 1, code: gocv.ColorRGBToBGR},
	"bgra8":       {channels: 4, depth: 1, code: gocv.ColorBGRAToBGR},
	"rgba8":       {channels: 4, depth: 1, code: gocv.ColorRGBAToBGR},
	"mono8":       {channels: 1, depth: 1, code: gocv.ColorGrayToBGR},
	"bgr16":       {channels: 3, depth: 2, same: true},
	"rgb16":       {channels: 3, depth: 2, code: gocv.ColorRGBToBGR},
	"bgra16":      {channels: 4, depth: 2, code: gocv.ColorBGRAToBGR},
	"rgba16":      {channels: 4, depth: 2, code: gocv.ColorRGBAToBGR},
	"mono16":      {channels: 1, depth: 2, code: gocv.ColorGrayToBGR},
	"bayer_rggb8": {channels: 1, depth: 1, code: gocv.ColorBayerBGToBGR},
	"bayer_bggr8": {channels: 1, depth: 1, code: gocv.ColorBayerRGToBGR},
	"bayer_gbrg8": {channels: 1, depth: 1, code: gocv.ColorBayerGRToBGR},
	"bayer_grbg8": {channels: 1, depth: 1, code: gocv.ColorBayerGBToBGR},
}

// SupportedEncodings lists the encodings FromImageMsg accepts, sorted.
func SupportedEncodings() []string {
	var s []string
	for k := range encodings {
		s = append(s, k)
	}
	sort.Strings(s)
	return s
}

func (e encoding) matType() gocv.MatType {
	if e.depth == 2 {
		switch e.channels {
		case 1:
			return gocv.MatTypeCV16UC1
		case 3:
			return gocv.MatTypeCV16UC3
		default:
			return gocv.MatTypeCV16UC4
		}
	}
	switch e.channels {
	case 1:
		return gocv.MatTypeCV8UC1
	case 3:
		return gocv.MatTypeCV8UC3
	default:
		return gocv.MatTypeCV8UC4
	}
}

// packed returns the pixel rows of msg without row padding, in host (little
// endian) byte order. msg.Data is never modified.
func packed(msg *ros.Image, e encoding) ([]byte, error) {
	if msg.Height == 0 || msg.Width == 0 {
		return nil, malformed(msg.Encoding, "empty image %dx%d", msg.Width, msg.Height)
	}
	// Sizes are computed in uint64, where products of the uint32 header
	// fields cannot overflow.
	row64 := uint64(msg.Width) * uint64(e.channels*e.depth)
	step64 := uint64(msg.Step)
	rows64 := uint64(msg.Height)
	if step64 < row64 {
		return nil, malformed(msg.Encoding, "step %d shorter than row of %d bytes", step64, row64)
	}
	if need := step64 * rows64; uint64(len(msg.Data)) < need {
		return nil, malformed(msg.Encoding, "have %d bytes, need %d", len(msg.Data), need)
	}
	// All of these fit in int now that step*rows <= len(msg.Data).
	row, step, rows := int(row64), int(step64), int(rows64)

	swap := e.depth == 2 && msg.IsBigendian != 0
	if step == row && !swap {
		return msg.Data[:row*rows], nil
	}
	b := make([]byte, row*rows)
	for y := 0; y < rows; y++ {
		copy(b[y*row:(y+1)*row], msg.Data[y*step:y*step+row])
	}
	if swap {
		for i := 0; i+1 < len(b); i += 2 {
			b[i], b[i+1] = b[i+1], b[i]
		}
	}
	return b, nil
}

// FromImageMsg converts msg to an 8-bit BGR image stored in dst. dst is left
// untouched when an error is returned; errors are always *ConversionError.
func FromImageMsg(msg *ros.Image, dst *gocv.Mat) error {
	e, ok := encodings[msg.Encoding]
	if !ok {
		return &ConversionError{
			Encoding: msg.Encoding,
			Reason:   "supported: " + strings.Join(SupportedEncodings(), ", "),
			Err:      ErrUnsupportedEncoding,
		}
	}
	b, err := packed(msg, e)
	if err != nil {
		return err
	}

	src, err := gocv.NewMatFromBytes(int(msg.Height), int(msg.Width), e.matType(), b)
	if err != nil {
		return malformed(msg.Encoding, "%v", err)
	}
	defer src.Close()
	// src borrows b until it is copied out below.
	defer runtime.KeepAlive(b)

	eight := src
	if e.depth == 2 {
		eight = gocv.NewMat()
		defer eight.Close()
		src.ConvertToWithParams(&eight, gocv.MatTypeCV8U, 255.0/65535.0, 0)
	}

	if e.same {
		eight.CopyTo(dst)
	} else {
		gocv.CvtColor(eight, dst, e.code)
	}
	return nil
}

// ToImageMsg encodes a BGR frame as a bgr8 sensor_msgs/Image.
func ToImageMsg(img *Image) (*ros.Image, error) {
	if img.Mat.Empty() {
		return nil, errors.New("cannot encode empty image")
	}
	if img.Mat.Type() != gocv.MatTypeCV8UC3 {
		return nil, fmt.Errorf("cannot encode Mat of type %v as %s", img.Mat.Type(), EncodingBGR8)
	}
	cols, rows := img.Mat.Cols(), img.Mat.Rows()
	return &ros.Image{
		Header: ros.Header{
			Seq:     img.Seq,
			Stamp:   ros.NewTime(img.Time),
			FrameID: img.FrameID,
		},
		Height:   uint32(rows),
		Width:    uint32(cols),
		Encoding: EncodingBGR8,
		Step:     uint32(cols * 3),
		Data:     img.Mat.ToBytes(),
	}, nil
}
