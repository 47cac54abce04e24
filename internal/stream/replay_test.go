package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"vic-monitor/internal/capture"
	"vic-monitor/internal/capture/capturetest"
	"vic-monitor/internal/metrics"
	"vic-monitor/internal/vic"
)

func openCapture(t *testing.T, data []byte) *capture.Reader {
	t.Helper()
	r, err := capture.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	return r
}

func newTestReplay(out io.Writer, adv Advancer) (*Replay, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	return NewReplay(testConfig(), vic.NewRenderer(out), testLogger(), m, adv), m
}

func TestReplayRun_AllLinesPerPacket(t *testing.T) {
	data := capturetest.NewBuilder().
		UDP(vic.DefaultPort, vicPacket(0, 0, [4]byte{0xA5, 0x00, 0x11, 0xFF})).
		ARP().
		TCP([]byte("not vic")).
		UDP(vic.DefaultPort, []byte{1, 2, 3, 4, 5}).
		UDP(vic.DefaultPort, vicPacket(4, 1, [4]byte{0x77, 0x77, 0x77, 0x77})).
		Bytes()

	var out bytes.Buffer
	replay, m := newTestReplay(&out, Auto)

	require.NoError(t, replay.Run(context.Background(), openCapture(t, data)))

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 8)
	require.Equal(t, strings.Repeat("rG", 192), lines[0])
	require.Equal(t, strings.Repeat(" ", 384), lines[1])
	require.Equal(t, strings.Repeat(".", 384), lines[2])
	require.Equal(t, strings.Repeat("E", 384), lines[3])
	for _, l := range lines[4:] {
		require.Equal(t, strings.Repeat("Y", 384), l)
	}

	require.Equal(t, 5.0, testutil.ToFloat64(m.CaptureFrames))
	require.Equal(t, 3.0, testutil.ToFloat64(m.CaptureFramesSkipped))
	require.Equal(t, 8.0, testutil.ToFloat64(m.LinesRendered))
}

func TestReplayRun_PartialPacket(t *testing.T) {
	full := vicPacket(0, 0, [4]byte{0x11, 0x22, 0x33, 0x44})
	data := capturetest.NewBuilder().
		UDP(vic.DefaultPort, full[:vic.HeaderSize+2*vic.DefaultBytesPerLine+100]).
		UDP(vic.DefaultPort, full[:vic.HeaderSize]).
		Bytes()

	var out bytes.Buffer
	replay, m := newTestReplay(&out, Auto)

	require.NoError(t, replay.Run(context.Background(), openCapture(t, data)))

	require.Equal(t, strings.Repeat(".", 384)+"\n"+strings.Repeat("R", 384)+"\n", out.String())
	require.Equal(t, 2.0, testutil.ToFloat64(m.LinesRendered))
	require.Equal(t, 6.0, testutil.ToFloat64(m.LinesSkipped))
	require.Equal(t, 0.0, testutil.ToFloat64(m.CaptureFramesSkipped))
}

func TestReplayRun_WaitsForAdvance(t *testing.T) {
	data := capturetest.NewBuilder().
		UDP(vic.DefaultPort, vicPacket(0, 0, [4]byte{})).
		UDP(vic.DefaultPort, vicPacket(4, 1, [4]byte{})).
		Bytes()

	stepper := NewStepper()
	replay, m := newTestReplay(io.Discard, stepper)

	done := make(chan error, 1)
	go func() { done <- replay.Run(context.Background(), openCapture(t, data)) }()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.LinesRendered) == 4
	}, time.Second, 5*time.Millisecond)

	// Nothing more is rendered until the step
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 4.0, testutil.ToFloat64(m.LinesRendered))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.True(t, stepper.Step(ctx))
	require.True(t, stepper.Step(ctx))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run() did not return at end of capture")
	}
	require.Equal(t, 8.0, testutil.ToFloat64(m.LinesRendered))
}

func TestReplayRun_Stopped(t *testing.T) {
	data := capturetest.NewBuilder().
		UDP(vic.DefaultPort, vicPacket(0, 0, [4]byte{})).
		UDP(vic.DefaultPort, vicPacket(4, 1, [4]byte{})).
		Bytes()

	stepper := NewStepper()
	stepper.Stop()
	replay, m := newTestReplay(io.Discard, stepper)

	require.NoError(t, replay.Run(context.Background(), openCapture(t, data)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CaptureFrames))
	require.Equal(t, 4.0, testutil.ToFloat64(m.LinesRendered))
}

func TestReplayRun_Cancelled(t *testing.T) {
	data := capturetest.NewBuilder().
		UDP(vic.DefaultPort, vicPacket(0, 0, [4]byte{})).
		Bytes()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	replay, m := newTestReplay(io.Discard, Auto)
	require.NoError(t, replay.Run(ctx, openCapture(t, data)))
	require.Equal(t, 0.0, testutil.ToFloat64(m.CaptureFrames))
}

func TestReplayRun_TruncatedCapture(t *testing.T) {
	data := capturetest.NewBuilder().
		UDP(vic.DefaultPort, vicPacket(0, 0, [4]byte{})).
		UDP(vic.DefaultPort, vicPacket(4, 1, [4]byte{})).
		Bytes()

	replay, m := newTestReplay(io.Discard, Auto)
	err := replay.Run(context.Background(), openCapture(t, data[:len(data)-10]))

	require.Error(t, err)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Equal(t, 4.0, testutil.ToFloat64(m.LinesRendered))
}

type failingSource struct{ err error }

func (f failingSource) Next() (capture.Frame, error) {
	return capture.Frame{}, f.err
}

func TestReplayRun_SourceError(t *testing.T) {
	boom := errors.New("disk on fire")
	replay, _ := newTestReplay(io.Discard, Auto)

	err := replay.Run(context.Background(), failingSource{boom})
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "failed to read capture")
}

func TestReplayRun_AdvancerError(t *testing.T) {
	data := capturetest.NewBuilder().
		UDP(vic.DefaultPort, vicPacket(0, 0, [4]byte{})).
		Bytes()

	boom := errors.New("terminal gone")
	replay, _ := newTestReplay(io.Discard, AdvanceFunc(func(context.Context) error { return boom }))

	require.ErrorIs(t, replay.Run(context.Background(), openCapture(t, data)), boom)
}
