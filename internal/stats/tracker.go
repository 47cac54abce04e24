package stats

import (
	"sort"
	"sync"
	"time"
)

// Constants for loss tracking
const (
	// lossWindowDuration is the time window for recent loss calculation
	lossWindowDuration = time.Minute
	// sourceRestartThreshold is the sequence gap above which we assume the
	// sender restarted rather than lost packets
	sourceRestartThreshold = 1024
)

// PacketEvent records a packet reception event for sliding window tracking
type PacketEvent struct {
	Timestamp time.Time
	Received  uint64 // packets received in this event
	Lost      uint64 // packets lost detected in this event
}

// Source is one sender of VIC packets, keyed by its address
type Source struct {
	Addr         string
	LastSequence uint16
	LastFrame    uint16
	LastSeen     time.Time
	PacketCount  uint64
	LostPackets  uint64
	OutOfOrder   uint64
	Restarts     uint64

	packetsInWindow []time.Time   // For rate calculation
	lossWindow      []PacketEvent // For sliding window loss calculation
}

// Tracker tracks packet statistics per source
type Tracker struct {
	sources    map[string]*Source
	rateWindow time.Duration
	now        func() time.Time
	mu         sync.RWMutex
}

// NewTracker creates a new stats tracker
func NewTracker() *Tracker {
	return &Tracker{
		sources:    make(map[string]*Source),
		rateWindow: time.Second, // Calculate rate over 1 second window
		now:        time.Now,
	}
}

// RecordPacket records a packet's sequence and frame numbers. Gaps count as
// loss, a step backwards counts as out of order; nothing is reordered.
func (t *Tracker) RecordPacket(addr string, sequence, frame uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	source, exists := t.sources[addr]
	if !exists {
		source = &Source{Addr: addr}
		t.sources[addr] = source
	}

	// Add to rate window and drop old entries
	source.packetsInWindow = append(source.packetsInWindow, now)
	cutoff := now.Add(-t.rateWindow)
	newWindow := source.packetsInWindow[:0]
	for _, pt := range source.packetsInWindow {
		if pt.After(cutoff) {
			newWindow = append(newWindow, pt)
		}
	}
	source.packetsInWindow = newWindow

	var lostThisPacket uint64
	advance := true
	if exists && source.PacketCount > 0 {
		expected := source.LastSequence + 1
		// Signed distance handles the 16-bit wraparound
		gap := int16(sequence - expected)
		switch {
		case gap == 0:
		case gap > 0 && gap < sourceRestartThreshold:
			lostThisPacket = uint64(gap)
			source.LostPackets += lostThisPacket
		case gap < 0 && gap > -sourceRestartThreshold:
			source.OutOfOrder++
			advance = false
		default:
			source.Restarts++
		}
	}

	// Record event for sliding window loss tracking
	source.lossWindow = append(source.lossWindow, PacketEvent{
		Timestamp: now,
		Received:  1,
		Lost:      lostThisPacket,
	})
	lossCutoff := now.Add(-lossWindowDuration)
	newLossWindow := source.lossWindow[:0]
	for _, evt := range source.lossWindow {
		if evt.Timestamp.After(lossCutoff) {
			newLossWindow = append(newLossWindow, evt)
		}
	}
	source.lossWindow = newLossWindow

	if advance {
		source.LastSequence = sequence
		source.LastFrame = frame
	}
	source.LastSeen = now
	source.PacketCount++
}

// GetSource returns a snapshot of one source, or false if unknown
func (t *Tracker) GetSource(addr string) (Source, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sources[addr]
	if !ok {
		return Source{}, false
	}
	return s.snapshot(), true
}

// GetSources returns snapshots of all sources sorted by address
func (t *Tracker) GetSources() []Source {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sources := make([]Source, 0, len(t.sources))
	for _, s := range t.sources {
		sources = append(sources, s.snapshot())
	}
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Addr < sources[j].Addr
	})
	return sources
}

// GetPacketRate returns packets per second for a source
func (t *Tracker) GetPacketRate(addr string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.sources[addr]
	if s == nil {
		return 0
	}

	cutoff := t.now().Add(-t.rateWindow)
	count := 0
	for _, pt := range s.packetsInWindow {
		if pt.After(cutoff) {
			count++
		}
	}
	return float64(count) / t.rateWindow.Seconds()
}

// GetLossPercentage returns cumulative packet loss percentage for a source
func (t *Tracker) GetLossPercentage(addr string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.sources[addr]
	if s == nil {
		return 0
	}

	totalExpected := s.PacketCount + s.LostPackets
	if totalExpected == 0 {
		return 0
	}
	return float64(s.LostPackets) / float64(totalExpected) * 100
}

// GetRecentLossPercentage returns packet loss percentage for the last minute
func (t *Tracker) GetRecentLossPercentage(addr string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.sources[addr]
	if s == nil {
		return 0
	}

	cutoff := t.now().Add(-lossWindowDuration)
	var totalReceived, totalLost uint64
	for _, evt := range s.lossWindow {
		if evt.Timestamp.After(cutoff) {
			totalReceived += evt.Received
			totalLost += evt.Lost
		}
	}

	totalExpected := totalReceived + totalLost
	if totalExpected == 0 {
		return 0
	}
	return float64(totalLost) / float64(totalExpected) * 100
}

// Reset clears all tracked data
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sources = make(map[string]*Source)
}

func (s *Source) snapshot() Source {
	c := *s
	c.packetsInWindow = nil
	c.lossWindow = nil
	return c
}
