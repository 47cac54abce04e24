package monitor

import (
	"sort"
	"sync"
	"time"

	"vic-monitor/internal/vic"
)

// Manager holds the set of watched scanlines
type Manager struct {
	lines map[uint16]*Line
	mu    sync.RWMutex
}

// NewManager creates a manager watching the given line numbers
func NewManager(numbers ...uint16) *Manager {
	m := &Manager{
		lines: make(map[uint16]*Line),
	}
	for _, n := range numbers {
		m.lines[n] = NewLine(n)
	}
	return m
}

// Get returns the watched line, or nil if it isn't watched
func (m *Manager) Get(number uint16) *Line {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lines[number]
}

// Numbers returns the watched line numbers in ascending order
func (m *Manager) Numbers() []uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]uint16, 0, len(m.lines))
	for n := range m.lines {
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i] < result[j]
	})
	return result
}

// Observe checks a raw packet against every watched line and updates the
// ones it carries. It returns the number of lines updated.
func (m *Manager) Observe(payload []byte, bytesPerLine int, source string) int {
	h, ok := vic.DecodeHeader(payload)
	if !ok {
		return 0
	}
	meta, _ := vic.DecodeMetadata(payload)

	m.mu.RLock()
	defer m.mu.RUnlock()

	updated := 0
	for n, l := range m.lines {
		index, ok := vic.SelectLine(h.StartLine, n)
		if !ok {
			continue
		}
		pixels, err := vic.DecodePixelLine(vic.PixelPayload(payload), index, bytesPerLine)
		if err != nil {
			continue
		}
		l.Update(pixels, meta.Frame, source)
		updated++
	}
	return updated
}

// Watch adds a line to the watched set
func (m *Manager) Watch(number uint16) *Line {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, exists := m.lines[number]; exists {
		return l
	}
	l := NewLine(number)
	m.lines[number] = l
	return l
}

// Unwatch removes a line from the watched set
func (m *Manager) Unwatch(number uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lines, number)
}

// StaleLines returns the watched lines not updated within the timeout
func (m *Manager) StaleLines(timeout time.Duration) []uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []uint16
	for n, l := range m.lines {
		if l.IsStale(timeout) {
			result = append(result, n)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i] < result[j]
	})
	return result
}

// Count returns the number of watched lines
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.lines)
}
