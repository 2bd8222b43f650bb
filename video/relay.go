package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"armcam/metrics"
	"armcam/ros"
	"armcam/video/source"
)

const (
	DefaultInputTopic  = "/cameras/right_hand_camera/image"
	DefaultOutputTopic = "/coordinates_from_opencv_hand"
)

var errRelayClosed = errors.New("relay closed")

// Bus is the publish/subscribe transport the relay runs on. *ros.Client
// implements it.
type Bus interface {
	Advertise(topic, msgType string, queueSize int) (*ros.Publisher, error)
	Subscribe(topic, msgType string, queueLength int, h ros.Handler) (*ros.Subscription, error)
}

type RelayOptions struct {
	InputTopic string

	// OutputTopic is advertised at startup. Frames are only sent to it while
	// Republish returns true.
	OutputTopic     string
	OutputQueueSize int

	// MaxMats bounds the Mats the relay may have alive at once.
	MaxMats int

	// OnError, if set, is called with every conversion failure after it has
	// been logged.
	OnError func(err error)

	// Republish is consulted for every converted frame.
	Republish func() bool
}

func DefaultRelayOptions() RelayOptions {
	return RelayOptions{
		InputTopic:      DefaultInputTopic,
		OutputTopic:     DefaultOutputTopic,
		OutputQueueSize: 10,
		MaxMats:         4,
	}
}

// Relay subscribes to a camera topic, converts every frame to bgr8 and keeps
// only the newest one.
type Relay struct {
	opts   RelayOptions
	pool   *source.MatPool
	latest *Latest

	pub *ros.Publisher
	sub *ros.Subscription

	// l is held for reading while a frame is handled so Close cannot free
	// the pool underneath it.
	l      sync.RWMutex
	closed bool
}

func newRelay(opts RelayOptions) *Relay {
	if opts.MaxMats < 2 {
		// One held by the cell, one being converted into.
		opts.MaxMats = 2
	}
	pool := source.NewMatPool(opts.MaxMats)
	return &Relay{
		opts:   opts,
		pool:   pool,
		latest: NewLatest(pool),
	}
}

// NewRelay advertises the output topic and subscribes to the input topic.
func NewRelay(bus Bus, opts RelayOptions) (*Relay, error) {
	r := newRelay(opts)

	pub, err := bus.Advertise(opts.OutputTopic, ros.ImageType, opts.OutputQueueSize)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("advertise %v: %w", opts.OutputTopic, err)
	}
	r.pub = pub

	// Only the newest frame is ever kept, so ask rosbridge not to queue.
	sub, err := bus.Subscribe(opts.InputTopic, ros.ImageType, 1, r.HandleMessage)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("subscribe %v: %w", opts.InputTopic, err)
	}
	r.sub = sub
	return r, nil
}

// HandleMessage decodes a rosbridge sensor_msgs/Image payload and hands it to
// HandleImage. Failures are reported, never returned.
func (r *Relay) HandleMessage(raw json.RawMessage) {
	var msg ros.Image
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.report(&source.ConversionError{
			Encoding: msg.Encoding,
			Reason:   err.Error(),
			Err:      source.ErrMalformedImage,
		})
		return
	}
	r.HandleImage(&msg)
}

// HandleImage converts msg and, on success, makes it the current frame. On
// failure the current frame is left as it was and the error is reported and
// returned.
func (r *Relay) HandleImage(msg *ros.Image) error {
	r.l.RLock()
	defer r.l.RUnlock()
	if r.closed {
		return errRelayClosed
	}

	m, err := r.pool.NewMat()
	if err != nil {
		err = fmt.Errorf("convert frame from %v: %w", r.opts.InputTopic, err)
		r.report(err)
		return err
	}
	if err := source.FromImageMsg(msg, &m); err != nil {
		r.pool.ReleaseMat(m)
		r.report(err)
		return err
	}

	t := time.Now()
	if !msg.Header.Stamp.IsZero() {
		t = msg.Header.Stamp.Time()
	}
	img := source.Image{
		Mat:     m,
		Time:    t,
		FrameID: msg.Header.FrameID,
		Seq:     msg.Header.Seq,
	}
	if r.pub != nil && r.opts.Republish != nil && r.opts.Republish() {
		r.republish(&img)
	}

	r.latest.Store(img)
	metrics.FramesConverted.Inc()
	metrics.LastFrameTime.Set(float64(t.UnixNano()) / 1e9)
	return nil
}

func (r *Relay) report(err error) {
	enc := ""
	var ce *source.ConversionError
	if errors.As(err, &ce) {
		enc = ce.Encoding
	}
	metrics.ConversionErrors.WithLabelValues(enc).Inc()
	log.WithField("topic", r.opts.InputTopic).Errorf("Dropping frame: %v", err)
	if r.opts.OnError != nil {
		r.opts.OnError(err)
	}
}

func (r *Relay) republish(img *source.Image) {
	msg, err := source.ToImageMsg(img)
	if err != nil {
		log.Errorf("Failed to encode frame for %v: %v", r.pub.Topic(), err)
		return
	}
	if err := r.pub.Publish(msg); err != nil {
		log.Errorf("Failed to publish frame to %v: %v", r.pub.Topic(), err)
	}
}

// Topic returns the subscribed input topic.
func (r *Relay) Topic() string {
	return r.opts.InputTopic
}

// Current returns a copy of the newest frame, which the caller must Close.
// ok is false until the first frame has been converted.
func (r *Relay) Current() (source.Image, bool) {
	return r.latest.Current()
}

// CopyTo copies the newest frame into dst. See Latest.CopyTo.
func (r *Relay) CopyTo(dst *gocv.Mat) (source.Image, uint64, bool) {
	return r.latest.CopyTo(dst)
}

// Wait blocks until a frame newer than generation since is available.
func (r *Relay) Wait(ctx context.Context, since uint64) (uint64, error) {
	return r.latest.Wait(ctx, since)
}

// Close unsubscribes, unadvertises and frees the held frame.
func (r *Relay) Close() {
	r.l.Lock()
	defer r.l.Unlock()
	if r.closed {
		return
	}
	r.closed = true

	if r.sub != nil {
		if err := r.sub.Close(); err != nil {
			log.Warnf("Failed to unsubscribe from %v: %v", r.sub.Topic(), err)
		}
	}
	if r.pub != nil {
		if err := r.pub.Close(); err != nil {
			log.Warnf("Failed to unadvertise %v: %v", r.pub.Topic(), err)
		}
	}
	r.latest.Close()
	r.pool.Close()
}
