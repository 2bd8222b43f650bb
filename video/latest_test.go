package video

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"armcam/video/source"
)

func solid(v uint8) source.Image {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(v), float64(v), float64(v), 0), 4, 4, gocv.MatTypeCV8UC3)
	return source.Image{Mat: m, Time: time.Now()}
}

func TestLatestEmpty(t *testing.T) {
	l := NewLatest(nil)
	defer l.Close()

	_, ok := l.Current()
	assert.False(t, ok)
	assert.Equal(t, uint64(0), l.Gen())

	dst := gocv.NewMat()
	defer dst.Close()
	_, gen, ok := l.CopyTo(&dst)
	assert.False(t, ok)
	assert.Equal(t, uint64(0), gen)
	assert.True(t, dst.Empty())
}

func TestLatestCurrentIsIndependentCopy(t *testing.T) {
	l := NewLatest(nil)
	defer l.Close()

	l.Store(solid(1))
	a, ok := l.Current()
	require.True(t, ok)
	defer a.Close()

	// Replacing the stored frame must not touch the copy handed out.
	l.Store(solid(2))
	assert.Equal(t, uint8(1), a.Mat.GetUCharAt(0, 0))

	b, ok := l.Current()
	require.True(t, ok)
	defer b.Close()
	assert.Equal(t, uint8(2), b.Mat.GetUCharAt(0, 0))
	assert.Equal(t, uint64(2), l.Gen())
}

func TestLatestWaitWakesOnStore(t *testing.T) {
	l := NewLatest(nil)
	defer l.Close()

	got := make(chan uint64)
	go func() {
		gen, err := l.Wait(context.Background(), 0)
		assert.NoError(t, err)
		got <- gen
	}()

	time.Sleep(10 * time.Millisecond)
	l.Store(solid(1))
	select {
	case gen := <-got:
		assert.Equal(t, uint64(1), gen)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not woken")
	}

	// Already newer: returns immediately.
	gen, err := l.Wait(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
}

func TestLatestWaitHonorsContext(t *testing.T) {
	l := NewLatest(nil)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := l.Wait(ctx, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLatestCloseEmpties(t *testing.T) {
	l := NewLatest(nil)
	l.Store(solid(1))
	l.Close()
	_, ok := l.Current()
	assert.False(t, ok)
	l.Close()
}
