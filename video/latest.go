package video

import (
	"context"
	"sync"

	"gocv.io/x/gocv"

	"armcam/metrics"
	"armcam/util"
	"armcam/video/source"
)

// Latest holds the most recent frame and nothing else. Every Store bumps a
// generation counter and wakes waiters.
type Latest struct {
	pool *source.MatPool

	l       sync.Mutex
	img     source.Image
	ok      bool
	read    bool
	gen     uint64
	changed *util.Event
}

// NewLatest creates an empty cell. Replaced Mats go back to pool, or are
// closed when pool is nil.
func NewLatest(pool *source.MatPool) *Latest {
	return &Latest{
		pool:    pool,
		changed: util.NewEvent(),
	}
}

func (l *Latest) release(m gocv.Mat) {
	if l.pool != nil {
		l.pool.ReleaseMat(m)
	} else {
		m.Close()
	}
}

// Store replaces the current frame, taking ownership of img.Mat.
func (l *Latest) Store(img source.Image) {
	l.l.Lock()
	if l.ok {
		if !l.read {
			metrics.FramesOverwritten.Inc()
		}
		l.release(l.img.Mat)
	}
	l.img = img
	l.ok = true
	l.read = false
	l.gen++
	changed := l.changed
	l.changed = util.NewEvent()
	l.l.Unlock()

	changed.Notify()
}

// Gen returns the generation of the current frame; zero means no frame yet.
func (l *Latest) Gen() uint64 {
	l.l.Lock()
	defer l.l.Unlock()
	return l.gen
}

// Current returns a copy of the current frame that the caller must Close.
// ok is false while no frame has been stored.
func (l *Latest) Current() (img source.Image, ok bool) {
	l.l.Lock()
	defer l.l.Unlock()
	if !l.ok {
		return source.Image{}, false
	}
	l.read = true
	return l.img.Clone(), true
}

// CopyTo copies the current frame into dst without allocating once dst has
// the right size. The returned Image carries dst as its Mat.
func (l *Latest) CopyTo(dst *gocv.Mat) (img source.Image, gen uint64, ok bool) {
	l.l.Lock()
	defer l.l.Unlock()
	if !l.ok {
		return source.Image{}, l.gen, false
	}
	l.read = true
	l.img.Mat.CopyTo(dst)
	img = l.img
	img.Mat = *dst
	return img, l.gen, true
}

// Wait blocks until a frame newer than generation since is stored, returning
// the new generation.
func (l *Latest) Wait(ctx context.Context, since uint64) (uint64, error) {
	for {
		l.l.Lock()
		gen, changed := l.gen, l.changed
		l.l.Unlock()
		if gen > since {
			return gen, nil
		}
		if err := changed.WaitContext(ctx); err != nil {
			return gen, err
		}
	}
}

// Close releases the held frame. The cell is empty afterwards.
func (l *Latest) Close() {
	l.l.Lock()
	defer l.l.Unlock()
	if l.ok {
		l.release(l.img.Mat)
		l.img = source.Image{}
		l.ok = false
	}
}
