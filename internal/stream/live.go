// Package stream drives the VIC decoder from a live UDP socket or from a
// recorded packet capture.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"vic-monitor/internal/config"
	"vic-monitor/internal/metrics"
	"vic-monitor/internal/monitor"
	"vic-monitor/internal/stats"
	"vic-monitor/internal/vic"
)

// Live renders a single scanline of interest from every packet that carries it
type Live struct {
	cfg      config.Config
	renderer *vic.Renderer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	stats    *stats.Tracker
	lines    *monitor.Manager

	widthWarned atomic.Bool
}

// LiveOption configures optional collaborators of Live
type LiveOption func(*Live)

// WithStats records sequence statistics for every decodable datagram
func WithStats(t *stats.Tracker) LiveOption {
	return func(l *Live) { l.stats = t }
}

// WithLines feeds every decodable datagram to the watched-line manager
func WithLines(m *monitor.Manager) LiveOption {
	return func(l *Live) { l.lines = m }
}

// NewLive creates the live driver. A nil renderer disables text output.
func NewLive(cfg config.Config, renderer *vic.Renderer, logger *slog.Logger, m *metrics.Metrics, opts ...LiveOption) *Live {
	l := &Live{
		cfg:      cfg,
		renderer: renderer,
		logger:   logger,
		metrics:  m,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Listen binds the configured UDP socket. Failure here is fatal to the caller.
func (l *Live) Listen() (*vic.Receiver, error) {
	r := vic.NewReceiver(l.cfg.Live.ListenAddress(), l.cfg.Live.BufferSize, l.cfg.Live.PollTimeout)
	r.SetLogger(l.logger)
	if err := r.Listen(); err != nil {
		return nil, err
	}

	l.logger.Info("listening for VIC packets",
		slog.String("address", r.LocalAddr().String()),
		slog.Int("target_line", l.cfg.Live.TargetLine),
		slog.Int("bytes_per_line", l.cfg.Protocol.BytesPerLine),
	)
	return r, nil
}

// Serve processes datagrams from r until ctx is cancelled
func (l *Live) Serve(ctx context.Context, r *vic.Receiver) error {
	err := r.Serve(ctx, func(d vic.Datagram) { l.HandleDatagram(d) })
	l.logger.Info("live receiver stopped")
	return err
}

// Run binds and serves
func (l *Live) Run(ctx context.Context) error {
	r, err := l.Listen()
	if err != nil {
		return err
	}
	return l.Serve(ctx, r)
}

// HandleDatagram runs one datagram through decode, line selection and
// rendering. It reports whether the target line was rendered. Every failure
// is local to the datagram.
func (l *Live) HandleDatagram(d vic.Datagram) bool {
	l.metrics.DatagramsReceived.Inc()

	h, line, err := vic.ExtractLine(d.Payload, uint16(l.cfg.Live.TargetLine), l.cfg.Protocol.BytesPerLine)
	if errors.Is(err, vic.ErrShortPacket) {
		l.metrics.DatagramsDropped.Inc()
		l.logger.Debug("dropping short datagram", slog.Int("length", len(d.Payload)))
		return false
	}

	source := ""
	if d.Source != nil {
		source = d.Source.String()
	}

	l.checkWidth(d.Payload)

	if l.stats != nil {
		meta, _ := vic.DecodeMetadata(d.Payload)
		l.stats.RecordPacket(source, meta.Sequence, meta.Frame)
	}
	if l.lines != nil {
		l.lines.Observe(d.Payload, l.cfg.Protocol.BytesPerLine, source)
	}

	if errors.Is(err, vic.ErrLineNotCarried) {
		return false
	}
	l.metrics.PacketsMatched.Inc()

	if err != nil {
		l.metrics.LinesSkipped.Inc()
		l.logger.Debug("skipping line", slog.Int("start_line", int(h.StartLine)), slog.String("error", err.Error()))
		return false
	}

	if l.renderer == nil {
		return true
	}
	if err := l.renderer.WriteLine(line); err != nil {
		l.logger.Warn("failed to write line", slog.String("error", err.Error()))
		return false
	}
	l.metrics.LinesRendered.Inc()
	return true
}

func (l *Live) checkWidth(payload []byte) {
	err := vic.CheckLineWidth(payload, l.cfg.Protocol.BytesPerLine)
	if err == nil {
		return
	}
	l.metrics.WidthWarnings.Inc()

	var wm *vic.WidthMismatch
	if errors.As(err, &wm) && l.widthWarned.CompareAndSwap(false, true) {
		l.logger.Warn("line width does not match traffic",
			slog.Int("bytes_per_line", wm.BytesPerLine),
			slog.Int("packet_pixels_per_line", wm.PixelsPerLine),
			slog.Int("payload_bytes", wm.PayloadLen),
		)
	}
}
