package monitor

import (
	"sync"
	"time"

	"vic-monitor/internal/vic"
)

// Line holds the most recent decode of one watched scanline
type Line struct {
	Number      uint16
	Pixels      []vic.ColorIndex
	Frame       uint16
	Source      string
	LastUpdate  time.Time
	UpdateCount uint64
	mu          sync.RWMutex
}

// NewLine creates an empty watched line
func NewLine(number uint16) *Line {
	return &Line{
		Number: number,
	}
}

// Update replaces the line's pixels with a fresh decode
func (l *Line) Update(pixels []vic.ColorIndex, frame uint16, source string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.Pixels = append(l.Pixels[:0], pixels...)
	l.Frame = frame
	l.Source = source
	l.LastUpdate = time.Now()
	l.UpdateCount++
}

// IsStale returns true if the line hasn't been updated for the given duration
func (l *Line) IsStale(timeout time.Duration) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.LastUpdate.IsZero() {
		return true
	}
	return time.Since(l.LastUpdate) > timeout
}

// GetInfo returns a snapshot of the line
func (l *Line) GetInfo() LineInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return LineInfo{
		Number:      l.Number,
		Pixels:      append([]vic.ColorIndex(nil), l.Pixels...),
		Frame:       l.Frame,
		Source:      l.Source,
		LastUpdate:  l.LastUpdate,
		UpdateCount: l.UpdateCount,
	}
}

// LineInfo is a snapshot of a watched line (no mutex needed)
type LineInfo struct {
	Number      uint16
	Pixels      []vic.ColorIndex
	Frame       uint16
	Source      string
	LastUpdate  time.Time
	UpdateCount uint64
}
