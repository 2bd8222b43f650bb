package source

import (
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"armcam/ros"
)

func convert(t *testing.T, msg *ros.Image) gocv.Mat {
	t.Helper()
	dst := gocv.NewMat()
	t.Cleanup(func() { dst.Close() })
	require.NoError(t, FromImageMsg(msg, &dst))
	return dst
}

func TestFromImageMsgBGR8IsByteIdentical(t *testing.T) {
	data := make([]byte, 64*64*3)
	rand.New(rand.NewSource(1)).Read(data)
	msg := &ros.Image{Height: 64, Width: 64, Encoding: "bgr8", Step: 64 * 3, Data: data}

	m := convert(t, msg)
	assert.Equal(t, 64, m.Rows())
	assert.Equal(t, 64, m.Cols())
	assert.Equal(t, 3, m.Channels())
	assert.Equal(t, gocv.MatTypeCV8UC3, m.Type())
	assert.Equal(t, data, m.ToBytes())
}

func TestFromImageMsgColorOrders(t *testing.T) {
	tests := []struct {
		name string
		msg  *ros.Image
		want []byte
	}{
		{
			name: "rgb8",
			msg:  &ros.Image{Height: 1, Width: 2, Encoding: "rgb8", Step: 6, Data: []byte{1, 2, 3, 4, 5, 6}},
			want: []byte{3, 2, 1, 6, 5, 4},
		},
		{
			name: "rgba8",
			msg:  &ros.Image{Height: 1, Width: 1, Encoding: "rgba8", Step: 4, Data: []byte{10, 20, 30, 255}},
			want: []byte{30, 20, 10},
		},
		{
			name: "bgra8",
			msg:  &ros.Image{Height: 1, Width: 1, Encoding: "bgra8", Step: 4, Data: []byte{10, 20, 30, 0}},
			want: []byte{10, 20, 30},
		},
		{
			name: "mono8",
			msg:  &ros.Image{Height: 1, Width: 2, Encoding: "mono8", Step: 2, Data: []byte{7, 200}},
			want: []byte{7, 7, 7, 200, 200, 200},
		},
		{
			name: "mono16 little endian",
			msg:  &ros.Image{Height: 1, Width: 2, Encoding: "mono16", Step: 4, Data: []byte{0xff, 0xff, 0, 0}},
			want: []byte{255, 255, 255, 0, 0, 0},
		},
		{
			name: "mono16 big endian",
			msg:  &ros.Image{Height: 1, Width: 1, Encoding: "mono16", IsBigendian: 1, Step: 2, Data: []byte{0xff, 0xff}},
			want: []byte{255, 255, 255},
		},
		{
			name: "bgr8 padded rows",
			msg: &ros.Image{Height: 2, Width: 1, Encoding: "bgr8", Step: 4, Data: []byte{
				1, 2, 3, 99,
				4, 5, 6, 99,
			}},
			want: []byte{1, 2, 3, 4, 5, 6},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := convert(t, tt.msg)
			assert.Equal(t, gocv.MatTypeCV8UC3, m.Type())
			assert.Equal(t, tt.want, m.ToBytes())
		})
	}
}

func TestFromImageMsgDoesNotModifyInput(t *testing.T) {
	data := []byte{0x12, 0x34}
	msg := &ros.Image{Height: 1, Width: 1, Encoding: "mono16", IsBigendian: 1, Step: 2, Data: data}
	convert(t, msg)
	assert.Equal(t, []byte{0x12, 0x34}, data)
}

func TestFromImageMsgBayerProducesColor(t *testing.T) {
	msg := &ros.Image{Height: 4, Width: 4, Encoding: "bayer_rggb8", Step: 4, Data: make([]byte, 16)}
	m := convert(t, msg)
	assert.Equal(t, 4, m.Rows())
	assert.Equal(t, gocv.MatTypeCV8UC3, m.Type())
}

func TestFromImageMsgErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  *ros.Image
		want error
	}{
		{"unknown encoding", &ros.Image{Height: 1, Width: 1, Encoding: "jpeg", Step: 3, Data: []byte{1, 2, 3}}, ErrUnsupportedEncoding},
		{"generic encoding", &ros.Image{Height: 1, Width: 1, Encoding: "8UC3", Step: 3, Data: []byte{1, 2, 3}}, ErrUnsupportedEncoding},
		{"no encoding", &ros.Image{Height: 1, Width: 1, Step: 3, Data: []byte{1, 2, 3}}, ErrUnsupportedEncoding},
		{"short data", &ros.Image{Height: 2, Width: 2, Encoding: "bgr8", Step: 6, Data: []byte{1, 2, 3}}, ErrMalformedImage},
		{"short step", &ros.Image{Height: 1, Width: 2, Encoding: "bgr8", Step: 3, Data: make([]byte, 6)}, ErrMalformedImage},
		{"zero size", &ros.Image{Encoding: "bgr8"}, ErrMalformedImage},
		{"overflowing dimensions", &ros.Image{Height: 1<<32 - 1, Width: 1 << 30, Encoding: "bgr8", Step: 3 << 30, Data: []byte{1, 2, 3}}, ErrMalformedImage},
		{"huge mono16", &ros.Image{Height: 1<<32 - 1, Width: 1<<32 - 1, Encoding: "mono16", Step: 1<<32 - 1, Data: []byte{1, 2}}, ErrMalformedImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := gocv.NewMat()
			defer dst.Close()

			err := FromImageMsg(tt.msg, &dst)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var ce *ConversionError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.msg.Encoding, ce.Encoding)
			assert.True(t, dst.Empty(), "dst modified on failure")
		})
	}
}

func TestUnsupportedEncodingListsSupported(t *testing.T) {
	dst := gocv.NewMat()
	defer dst.Close()

	err := FromImageMsg(&ros.Image{Height: 1, Width: 1, Encoding: "32FC1", Step: 4, Data: make([]byte, 4)}, &dst)
	require.Error(t, err)
	for _, enc := range []string{"bgr8", "mono16", "bayer_rggb8"} {
		assert.Contains(t, err.Error(), enc)
	}
	assert.True(t, sort.StringsAreSorted(SupportedEncodings()))
}

func TestToImageMsg(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6}
	m, err := gocv.NewMatFromBytes(1, 2, gocv.MatTypeCV8UC3, data)
	require.NoError(t, err)
	img := Image{Mat: m.Clone(), Time: time.Unix(100, 5), FrameID: "right_hand_camera", Seq: 9}
	m.Close()
	defer img.Close()

	msg, err := ToImageMsg(&img)
	require.NoError(t, err)
	assert.Equal(t, EncodingBGR8, msg.Encoding)
	assert.Equal(t, uint32(1), msg.Height)
	assert.Equal(t, uint32(2), msg.Width)
	assert.Equal(t, uint32(6), msg.Step)
	assert.Equal(t, data, msg.Data)
	assert.Equal(t, "right_hand_camera", msg.Header.FrameID)
	assert.Equal(t, uint32(9), msg.Header.Seq)
	assert.Equal(t, uint32(100), msg.Header.Stamp.Secs)

	back := convert(t, msg)
	assert.Equal(t, data, back.ToBytes())
}

func TestToImageMsgRejectsWrongType(t *testing.T) {
	gray := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC1)
	img := Image{Mat: gray}
	defer img.Close()
	_, err := ToImageMsg(&img)
	assert.Error(t, err)

	empty := Image{Mat: gocv.NewMat()}
	defer empty.Close()
	_, err = ToImageMsg(&empty)
	assert.Error(t, err)
}
