package source

import (
	"errors"

	"gocv.io/x/gocv"
)

// ErrPoolExhausted is returned when a pool would exceed its allocation limit,
// which usually means a Mat is not being released.
var ErrPoolExhausted = errors.New("too many MatPool allocations")

// MatPool recycles Mats so steady-state frame handling does not allocate.
// All bookkeeping happens on one goroutine.
type MatPool struct {
	new   chan chan matResult
	free  chan gocv.Mat
	stats chan chan int
	close chan chan bool

	max       int
	allocated int
	available []gocv.Mat
}

type matResult struct {
	m   gocv.Mat
	err error
}

// NewMatPool creates a pool that hands out at most max live Mats.
func NewMatPool(max int) *MatPool {
	p := &MatPool{
		new:   make(chan chan matResult),
		free:  make(chan gocv.Mat),
		stats: make(chan chan int),
		close: make(chan chan bool),
		max:   max,
	}
	go p.loop()
	return p
}

func (p *MatPool) loop() {
	for {
		select {
		case c := <-p.close:
			for _, m := range p.available {
				m.Close()
				p.allocated -= 1
			}
			p.available = nil
			c <- true
			return
		case m := <-p.free:
			p.available = append(p.available, m)
		case c := <-p.stats:
			c <- p.allocated
		case r := <-p.new:
			if n := len(p.available); n > 0 {
				var m gocv.Mat
				m, p.available = p.available[n-1], p.available[:n-1]
				r <- matResult{m: m}
				continue
			}
			if p.allocated >= p.max {
				r <- matResult{err: ErrPoolExhausted}
				continue
			}
			p.allocated += 1
			r <- matResult{m: gocv.NewMat()}
		}
	}
}

func (p *MatPool) NewMat() (gocv.Mat, error) {
	r := make(chan matResult)
	p.new <- r
	res := <-r
	return res.m, res.err
}

func (p *MatPool) ReleaseMat(m gocv.Mat) {
	p.free <- m
}

// Allocated returns the number of Mats created and not yet freed by Close.
func (p *MatPool) Allocated() int {
	c := make(chan int)
	p.stats <- c
	return <-c
}

// Close frees pooled Mats. Mats still held by callers must be closed by them.
// The pool must not be used afterwards.
func (p *MatPool) Close() {
	c := make(chan bool)
	p.close <- c
	<-c
}
