package tui

import (
	"net"
	"strings"
	"testing"
	"time"

	"vic-monitor/internal/config"
	"vic-monitor/internal/monitor"
	"vic-monitor/internal/stats"
	"vic-monitor/internal/vic"

	tea "github.com/charmbracelet/bubbletea"
)

type fakeReceiver struct {
	state vic.ReceiverState
	addr  net.Addr
}

func (f fakeReceiver) State() vic.ReceiverState { return f.state }
func (f fakeReceiver) LocalAddr() net.Addr      { return f.addr }

var testReceiver = fakeReceiver{
	state: vic.StateWaiting,
	addr:  &net.UDPAddr{IP: net.IPv4zero, Port: 11000},
}

func newModelWithProtocol(proto config.ProtocolConfig, lines ...uint16) (Model, *monitor.Manager, *stats.Tracker) {
	lm := monitor.NewManager(lines...)
	st := stats.NewTracker()
	m := NewModel(lm, st, testReceiver, proto)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	updated, _ = updated.Update(TickMsg(time.Now()))
	return updated.(Model), lm, st
}

func newTestModel(lines ...uint16) (Model, *monitor.Manager) {
	m, lm, _ := newModelWithProtocol(config.Default().Protocol, lines...)
	return m, lm
}

func press(m Model, k tea.KeyMsg) Model {
	updated, _ := m.Update(k)
	return updated.(Model)
}

func runeKey(r string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(r)}
}

var (
	tabKey   = tea.KeyMsg{Type: tea.KeyTab}
	rightKey = tea.KeyMsg{Type: tea.KeyRight}
	leftKey  = tea.KeyMsg{Type: tea.KeyLeft}
)

func TestView_Loading(t *testing.T) {
	m := NewModel(monitor.NewManager(136), stats.NewTracker(), testReceiver, config.Default().Protocol)
	if got := m.View(); got != "Loading..." {
		t.Errorf("View() = %q, want %q", got, "Loading...")
	}
}

func TestUpdate_SelectsFirstLine(t *testing.T) {
	m, _ := newTestModel(200, 136)

	if m.selectedLine != 136 {
		t.Errorf("selectedLine = %d, want 136", m.selectedLine)
	}
	if len(m.lineList) != 2 {
		t.Fatalf("lineList = %v, want 2 lines", m.lineList)
	}
}

func TestUpdate_TabCyclesLines(t *testing.T) {
	m, _ := newTestModel(10, 136, 200)

	want := []uint16{136, 200, 10}
	for i, w := range want {
		m = press(m, tabKey)
		if m.selectedLine != w {
			t.Errorf("after %d tabs selectedLine = %d, want %d", i+1, m.selectedLine, w)
		}
	}
}

func TestUpdate_Quit(t *testing.T) {
	m, _ := newTestModel(136)

	_, cmd := m.Update(runeKey("q"))
	if cmd == nil {
		t.Fatal("Update(q) returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Update(q) did not return tea.Quit")
	}
}

func TestUpdate_Scroll(t *testing.T) {
	m, _ := newTestModel(136)

	m = press(m, leftKey)
	if m.scrollOffset != 0 {
		t.Errorf("scrollOffset = %d after left at start, want 0", m.scrollOffset)
	}

	m = press(m, rightKey)
	if m.scrollOffset != 39 {
		t.Errorf("scrollOffset = %d, want 39", m.scrollOffset)
	}

	for i := 0; i < 20; i++ {
		m = press(m, rightKey)
	}
	if m.scrollOffset != 312 {
		t.Errorf("scrollOffset = %d at the end of a 384-pixel line, want 312", m.scrollOffset)
	}
}

func TestUpdate_ScrollUsesConfiguredWidth(t *testing.T) {
	proto := config.Default().Protocol
	proto.BytesPerLine = 96
	m, lm, _ := newModelWithProtocol(proto, 136)

	for i := 0; i < 20; i++ {
		m = press(m, rightKey)
	}
	// 192-pixel line, 78 visible: stops once the window reaches the end
	if m.scrollOffset != 117 {
		t.Errorf("scrollOffset = %d, want 117", m.scrollOffset)
	}

	lm.Get(136).Update(make([]vic.ColorIndex, 192), 0, "src")
	m = press(m, runeKey("g"))
	if view := m.View(); !strings.Contains(view, "pixels 114-191 of 192") {
		t.Errorf("View() missing caption for a 192-pixel line:\n%s", view)
	}
}

func TestUpdate_WatchUnwatch(t *testing.T) {
	m, lm := newTestModel(136, 137)

	m = press(m, runeKey("n"))
	if m.selectedLine != 138 {
		t.Errorf("selectedLine = %d after watch, want 138", m.selectedLine)
	}
	if lm.Count() != 3 {
		t.Errorf("Count() = %d, want 3", lm.Count())
	}

	m = press(m, runeKey("x"))
	if lm.Get(138) != nil {
		t.Error("line 138 still watched after unwatch")
	}
	if m.selectedLine != 136 {
		t.Errorf("selectedLine = %d after unwatch, want 136", m.selectedLine)
	}

	m = press(m, runeKey("x"))
	m = press(m, runeKey("x"))
	if lm.Count() != 1 {
		t.Errorf("Count() = %d, want the last line kept", lm.Count())
	}
}

func TestUpdate_WatchStopsAtDisplayHeight(t *testing.T) {
	m, lm := newTestModel(271)

	m = press(m, runeKey("n"))
	if lm.Count() != 1 || m.selectedLine != 271 {
		t.Errorf("watched past the last display line: count %d, selected %d", lm.Count(), m.selectedLine)
	}
}

func TestUpdate_ResetStats(t *testing.T) {
	m, _, st := newModelWithProtocol(config.Default().Protocol, 136)
	st.RecordPacket("10.0.0.1:5000", 0, 0)

	press(m, runeKey("r"))
	if n := len(st.GetSources()); n != 0 {
		t.Errorf("len(GetSources()) = %d after reset, want 0", n)
	}
}

func TestView_WaitingForData(t *testing.T) {
	m, _ := newTestModel(136)

	view := m.View()
	if !strings.Contains(view, "Line 136") {
		t.Error("View() missing tab for line 136")
	}
	if !strings.Contains(view, "Waiting for VIC data...") {
		t.Error("View() missing waiting message")
	}
	if !strings.Contains(view, "Listening on 0.0.0.0:11000 (waiting)") {
		t.Errorf("View() missing receiver status:\n%s", view)
	}
	if !strings.Contains(view, "Watching 1 lines | Sources: 0") {
		t.Errorf("View() missing watch and source counts:\n%s", view)
	}
}

func TestView_StoppedReceiver(t *testing.T) {
	lm := monitor.NewManager(136)
	m := NewModel(lm, stats.NewTracker(), fakeReceiver{}, config.Default().Protocol)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	if view := updated.(Model).View(); !strings.Contains(view, "Listening on - (stopped)") {
		t.Errorf("View() missing stopped status:\n%s", view)
	}
}

func TestView_Glyphs(t *testing.T) {
	m, lm, st := newModelWithProtocol(config.Default().Protocol, 136)

	pixels := make([]vic.ColorIndex, vic.PixelsPerLine)
	for i := range pixels {
		pixels[i] = vic.ColorIndex(10 - 5*(i%2)) // r, G, r, G...
	}
	lm.Get(136).Update(pixels, 12, "10.0.0.1:5000")
	st.RecordPacket("10.0.0.1:5000", 0, 12)
	st.RecordPacket("10.0.0.1:5000", 2, 12)
	st.RecordPacket("10.0.0.1:5000", 1, 12)

	m = press(m, runeKey("g"))
	view := m.View()

	if !strings.Contains(view, strings.Repeat("rG", 39)) {
		t.Error("View() in glyph mode missing rendered pixels")
	}
	if !strings.Contains(view, "Frame: 12") {
		t.Error("View() missing frame number")
	}
	if !strings.Contains(view, "Source: 10.0.0.1:5000") {
		t.Error("View() missing source")
	}
	if !strings.Contains(view, "(total 25.0%) | Out of order: 1 | Restarts: 0") {
		t.Errorf("View() missing cumulative loss and sequence counters:\n%s", view)
	}
	if !strings.Contains(view, "pixels 0-77 of 384") {
		t.Error("View() missing pixel range caption")
	}

	m = press(m, runeKey("g"))
	if strings.Contains(m.View(), strings.Repeat("rG", 39)) {
		t.Error("View() still shows glyphs after toggling back to color mode")
	}
}

func TestView_StaleTab(t *testing.T) {
	m, lm := newTestModel(136, 140)
	lm.Get(136).Update([]vic.ColorIndex{1}, 0, "src")

	updated, _ := m.Update(TickMsg(time.Now()))
	m = updated.(Model)

	if !m.staleLines[140] || m.staleLines[136] {
		t.Errorf("staleLines = %v, want only 140", m.staleLines)
	}
}
