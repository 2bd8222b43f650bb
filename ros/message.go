package ros

import (
	"time"
)

// ImageType is the ROS type name of Image.
const ImageType = "sensor_msgs/Image"

type Time struct {
	Secs  uint32 `json:"secs"`
	Nsecs uint32 `json:"nsecs"`
}

func NewTime(t time.Time) Time {
	return Time{
		Secs:  uint32(t.Unix()),
		Nsecs: uint32(t.Nanosecond()),
	}
}

func (t Time) Time() time.Time {
	return time.Unix(int64(t.Secs), int64(t.Nsecs))
}

func (t Time) IsZero() bool {
	return t.Secs == 0 && t.Nsecs == 0
}

type Header struct {
	Seq     uint32 `json:"seq"`
	Stamp   Time   `json:"stamp"`
	FrameID string `json:"frame_id"`
}

// Image mirrors sensor_msgs/Image. rosbridge sends uint8[] fields as base64
// strings, which encoding/json maps onto []byte directly.
type Image struct {
	Header Header `json:"header"`

	Height uint32 `json:"height"`
	Width  uint32 `json:"width"`

	// Encoding names the pixel layout, e.g. "bgr8", "rgb8" or "mono16".
	Encoding    string `json:"encoding"`
	IsBigendian uint8  `json:"is_bigendian"`

	// Step is the full row length in bytes, including any padding.
	Step uint32 `json:"step"`
	Data []byte `json:"data"`
}
