package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the Prometheus metrics of the voice client
type Metrics struct {
	// Playback queue metrics
	SegmentsEnqueued     prometheus.Counter
	SegmentsPlayed       prometheus.Counter
	SegmentsDropped      prometheus.Counter
	SegmentStartFailures prometheus.Counter
	DecodeFailures       prometheus.Counter
	QueueDepth           prometheus.Gauge
	PlaybackSeconds      prometheus.Counter

	// Capture metrics
	FramesCaptured prometheus.Counter
	FramesSent     prometheus.Counter
	FramesDropped  prometheus.Counter

	// Transport metrics
	MessagesReceived *prometheus.CounterVec
	ParseErrors      prometheus.Counter
	DialAttempts     prometheus.Counter
	Reconnects       prometheus.Counter
	ConnectionState  prometheus.Gauge
}

// New creates all metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SegmentsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtvoice_playback_segments_enqueued_total",
			Help: "Total number of audio segments added to the playback queue",
		}),
		SegmentsPlayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtvoice_playback_segments_played_total",
			Help: "Total number of audio segments that finished playing",
		}),
		SegmentsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtvoice_playback_segments_dropped_total",
			Help: "Total number of pending segments discarded by clear or stop",
		}),
		SegmentStartFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtvoice_playback_start_failures_total",
			Help: "Total number of segments the output device failed to start",
		}),
		DecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtvoice_playback_decode_failures_total",
			Help: "Total number of inbound audio chunks that could not be decoded",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rtvoice_playback_queue_depth",
			Help: "Number of segments waiting for playback",
		}),
		PlaybackSeconds: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtvoice_playback_audio_seconds_total",
			Help: "Total duration of audio handed to the output device",
		}),

		FramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtvoice_capture_frames_total",
			Help: "Total number of frames produced by the capture source",
		}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtvoice_capture_frames_sent_total",
			Help: "Total number of captured frames handed to the transport",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtvoice_capture_frames_dropped_total",
			Help: "Total number of captured frames dropped because the connection was not open",
		}),

		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rtvoice_transport_messages_received_total",
			Help: "Total number of inbound messages by type",
		}, []string{"type"}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtvoice_transport_parse_errors_total",
			Help: "Total number of inbound frames that failed to parse",
		}),
		DialAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtvoice_transport_dial_attempts_total",
			Help: "Total number of connection attempts",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "rtvoice_transport_reconnects_scheduled_total",
			Help: "Total number of scheduled reconnection attempts",
		}),
		ConnectionState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rtvoice_transport_connection_state",
			Help: "Current connection state (0=connecting 1=open 2=closed 3=reconnecting)",
		}),
	}
}

// Handler returns an HTTP handler exposing the metrics in reg
func Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
