// Package metrics exports prometheus instrumentation for the relay, the
// rosbridge transport and the display loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "armcam"

var (
	MessagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rosbridge",
		Name:      "messages_received_total",
		Help:      "Messages delivered by rosbridge, by topic.",
	}, []string{"topic"})

	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rosbridge",
		Name:      "messages_sent_total",
		Help:      "Messages published to rosbridge, by topic.",
	}, []string{"topic"})

	FramesConverted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "frames_converted_total",
		Help:      "Frames successfully converted to bgr8.",
	})

	ConversionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "conversion_errors_total",
		Help:      "Frames dropped because conversion failed, by encoding.",
	}, []string{"encoding"})

	// FramesOverwritten counts frames replaced before anyone read them.
	FramesOverwritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "frames_overwritten_total",
		Help:      "Frames discarded by a newer frame before being read.",
	})

	LastFrameTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "last_frame_timestamp_seconds",
		Help:      "Unix time of the most recently stored frame.",
	})

	FramesDisplayed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "display",
		Name:      "frames_rendered_total",
		Help:      "Frames rendered by the display loop.",
	})
)

func init() {
	prometheus.MustRegister(
		MessagesReceived,
		MessagesSent,
		FramesConverted,
		ConversionErrors,
		FramesOverwritten,
		LastFrameTime,
		FramesDisplayed,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
