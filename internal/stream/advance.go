package stream

import (
	"context"
	"errors"
	"io"

	"github.com/peterh/liner"
)

// ErrStopped is returned by an Advancer when the operator ends the replay.
var ErrStopped = errors.New("replay stopped")

// Advancer releases the next replayed packet. Advance blocks until the
// operator or caller allows the replay to continue.
type Advancer interface {
	Advance(ctx context.Context) error
}

// AdvanceFunc adapts a function to Advancer
type AdvanceFunc func(ctx context.Context) error

// Advance calls f
func (f AdvanceFunc) Advance(ctx context.Context) error {
	return f(ctx)
}

// Auto never blocks; the whole capture is rendered at once.
var Auto = AdvanceFunc(func(ctx context.Context) error {
	return ctx.Err()
})

// Stepper is a programmatic Advancer: each Step releases one packet.
type Stepper struct {
	steps chan struct{}
	done  chan struct{}
}

// NewStepper creates a stepper with no pending steps
func NewStepper() *Stepper {
	return &Stepper{
		steps: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Step releases the packet currently waiting. It blocks until the replay
// is waiting, or returns false once the stepper is stopped.
func (s *Stepper) Step(ctx context.Context) bool {
	select {
	case s.steps <- struct{}{}:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Stop makes any pending and future Advance return ErrStopped
func (s *Stepper) Stop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// Advance waits for a Step
func (s *Stepper) Advance(ctx context.Context) error {
	select {
	case <-s.steps:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Prompt asks the operator to press Enter on the terminal between packets
type Prompt struct {
	line   *liner.State
	prompt string
}

// NewPrompt takes over the terminal; Close must be called to restore it.
func NewPrompt(prompt string) *Prompt {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return &Prompt{line: line, prompt: prompt}
}

// Advance shows the prompt and waits for a line of input. Ctrl-C or
// end of input stop the replay.
func (p *Prompt) Advance(ctx context.Context) error {
	type result struct{ err error }
	ch := make(chan result, 1)
	go func() {
		_, err := p.line.Prompt(p.prompt)
		ch <- result{err}
	}()

	select {
	case r := <-ch:
		switch {
		case r.err == nil:
			return nil
		case errors.Is(r.err, liner.ErrPromptAborted), errors.Is(r.err, io.EOF):
			return ErrStopped
		default:
			return r.err
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close restores the terminal
func (p *Prompt) Close() error {
	return p.line.Close()
}
