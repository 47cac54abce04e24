package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"vic-monitor/internal/capture"
	"vic-monitor/internal/config"
	"vic-monitor/internal/metrics"
	"vic-monitor/internal/vic"
)

// FrameSource yields captured frames in order, io.EOF after the last.
type FrameSource interface {
	Next() (capture.Frame, error)
}

// Replay steps through a capture, rendering every line of every VIC packet
type Replay struct {
	cfg      config.Config
	renderer *vic.Renderer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	advancer Advancer
}

// NewReplay creates the replay driver
func NewReplay(cfg config.Config, renderer *vic.Renderer, logger *slog.Logger, m *metrics.Metrics, adv Advancer) *Replay {
	return &Replay{
		cfg:      cfg,
		renderer: renderer,
		logger:   logger,
		metrics:  m,
		advancer: adv,
	}
}

// Run renders src packet by packet, waiting on the advancer after each one.
// It returns nil at the end of the capture, on cancellation, or when the
// advancer reports ErrStopped.
func (r *Replay) Run(ctx context.Context, src FrameSource) error {
	packets := 0
	widthWarned := false

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			r.logger.Info("end of capture", slog.Int("packets", packets))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read capture: %w", err)
		}
		r.metrics.CaptureFrames.Inc()

		payload, ok := frame.UDPPayload()
		if !ok || len(payload) < vic.HeaderSize {
			r.metrics.CaptureFramesSkipped.Inc()
			r.logger.Debug("skipping frame", slog.Int("frame", frame.Index), slog.Bool("udp", ok))
			continue
		}

		if err := vic.CheckLineWidth(payload, r.cfg.Protocol.BytesPerLine); err != nil {
			r.metrics.WidthWarnings.Inc()
			if !widthWarned {
				widthWarned = true
				r.logger.Warn("line width does not match traffic", slog.String("detail", err.Error()))
			}
		}

		if err := r.renderPacket(payload); err != nil {
			return err
		}
		packets++

		if err := r.advancer.Advance(ctx); err != nil {
			if errors.Is(err, ErrStopped) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// renderPacket writes every complete line of the packet. Lines without
// enough pixel data are skipped.
func (r *Replay) renderPacket(payload []byte) error {
	_, lines, err := vic.DecodeLines(payload, r.cfg.Protocol.BytesPerLine)
	if err != nil {
		return fmt.Errorf("failed to decode packet: %w", err)
	}
	r.metrics.LinesSkipped.Add(float64(vic.LinesPerPacket - len(lines)))

	for _, line := range lines {
		if err := r.renderer.WriteLine(line.Pixels); err != nil {
			return fmt.Errorf("failed to write line: %w", err)
		}
		r.metrics.LinesRendered.Inc()
	}
	return nil
}
