package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the Prometheus counters for both drivers
type Metrics struct {
	// Live receiver
	DatagramsReceived prometheus.Counter
	DatagramsDropped  prometheus.Counter
	PacketsMatched    prometheus.Counter

	// Decoding and rendering
	LinesRendered prometheus.Counter
	LinesSkipped  prometheus.Counter
	WidthWarnings prometheus.Counter

	// Replay
	CaptureFrames        prometheus.Counter
	CaptureFramesSkipped prometheus.Counter
}

// New creates and registers all metrics with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DatagramsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "vic_datagrams_received_total",
			Help: "Total number of UDP datagrams received",
		}),
		DatagramsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "vic_datagrams_dropped_total",
			Help: "Datagrams shorter than the packet header",
		}),
		PacketsMatched: f.NewCounter(prometheus.CounterOpts{
			Name: "vic_packets_matched_total",
			Help: "Packets carrying the target line",
		}),
		LinesRendered: f.NewCounter(prometheus.CounterOpts{
			Name: "vic_lines_rendered_total",
			Help: "Scanlines written to the output",
		}),
		LinesSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "vic_lines_skipped_total",
			Help: "Scanlines skipped for insufficient pixel data",
		}),
		WidthWarnings: f.NewCounter(prometheus.CounterOpts{
			Name: "vic_width_mismatch_total",
			Help: "Packets whose line width disagrees with the configured width",
		}),
		CaptureFrames: f.NewCounter(prometheus.CounterOpts{
			Name: "vic_capture_frames_total",
			Help: "Frames read from a packet capture",
		}),
		CaptureFramesSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "vic_capture_frames_skipped_total",
			Help: "Captured frames that are not VIC UDP packets",
		}),
	}
}

// Serve exposes g on addr at path until ctx is cancelled
func Serve(ctx context.Context, addr, path string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
