package tui

import (
	"fmt"
	"net"
	"strings"
	"time"

	"vic-monitor/internal/config"
	"vic-monitor/internal/monitor"
	"vic-monitor/internal/stats"
	"vic-monitor/internal/vic"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Colors
var (
	cyanColor = lipgloss.Color("#00FFFF")
	grayColor = lipgloss.Color("#666666")

	whiteColor  = lipgloss.Color("#FFFFFF")
	yellowColor = lipgloss.Color("#FFFF00")
	redColor    = lipgloss.Color("#FF6666")
)

// Styles
var (
	lineBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(cyanColor)

	staleBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(grayColor)

	statsStyle = lipgloss.NewStyle().
			Foreground(whiteColor)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(whiteColor).
			Background(lipgloss.Color("#1a1a2e")).
			Padding(0, 2)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(cyanColor).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(cyanColor).
			Padding(0, 1)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(whiteColor).
				Border(lipgloss.RoundedBorder()).
				BorderForeground(grayColor).
				Padding(0, 1)

	tabStaleStyle = lipgloss.NewStyle().
			Foreground(grayColor).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(grayColor).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(grayColor)
)

// pixelStyles paints one terminal cell per pixel in the palette color
var pixelStyles [16]lipgloss.Style

func init() {
	for i, c := range vic.Palette {
		pixelStyles[i] = lipgloss.NewStyle().Background(lipgloss.Color(c.RGB))
	}
}

// staleAfter greys out a line that has not been refreshed
const staleAfter = 2 * time.Second

// KeyMap defines keybindings
type KeyMap struct {
	Left    key.Binding
	Right   key.Binding
	Tab     key.Binding
	Glyphs  key.Binding
	Watch   key.Binding
	Unwatch key.Binding
	Reset   key.Binding
	Quit    key.Binding
}

var keys = KeyMap{
	Left:    key.NewBinding(key.WithKeys("left", "h")),
	Right:   key.NewBinding(key.WithKeys("right", "l")),
	Tab:     key.NewBinding(key.WithKeys("tab")),
	Glyphs:  key.NewBinding(key.WithKeys("g")),
	Watch:   key.NewBinding(key.WithKeys("n")),
	Unwatch: key.NewBinding(key.WithKeys("x")),
	Reset:   key.NewBinding(key.WithKeys("r")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c")),
}

// Receiver is the view of the live socket shown in the status line
type Receiver interface {
	State() vic.ReceiverState
	LocalAddr() net.Addr
}

// Model shows the watched scanlines of a live VIC stream
type Model struct {
	lineManager   *monitor.Manager
	statsTracker  *stats.Tracker
	receiver      Receiver
	lineWidth     int
	displayHeight int
	selectedLine  uint16
	lineList      []uint16
	staleLines    map[uint16]bool
	scrollOffset  int
	glyphs        bool
	width         int
	height        int
}

// NewModel creates a new TUI model. Line width and display height come from
// the configured wire layout.
func NewModel(lm *monitor.Manager, st *stats.Tracker, rx Receiver, proto config.ProtocolConfig) Model {
	return Model{
		lineManager:   lm,
		statsTracker:  st,
		receiver:      rx,
		lineWidth:     max(1, 2*proto.BytesPerLine),
		displayHeight: proto.DisplayHeight,
	}
}

// TickMsg is a message for periodic updates
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Tab):
			if len(m.lineList) > 1 {
				for i, n := range m.lineList {
					if n == m.selectedLine {
						m.selectedLine = m.lineList[(i+1)%len(m.lineList)]
						break
					}
				}
			}
		case key.Matches(msg, keys.Glyphs):
			m.glyphs = !m.glyphs
		case key.Matches(msg, keys.Right):
			if m.scrollOffset+m.visiblePixels() < m.lineWidth {
				m.scrollOffset += max(1, m.visiblePixels()/2)
			}
		case key.Matches(msg, keys.Left):
			m.scrollOffset = max(0, m.scrollOffset-max(1, m.visiblePixels()/2))
		case key.Matches(msg, keys.Watch):
			m.watchNext()
		case key.Matches(msg, keys.Unwatch):
			// The last watched line stays
			if m.lineManager.Count() > 1 {
				m.lineManager.Unwatch(m.selectedLine)
				m.updateLineList()
			}
		case key.Matches(msg, keys.Reset):
			m.statsTracker.Reset()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.updateLineList()
		return m, tickCmd()
	}

	return m, nil
}

// watchNext starts watching the first unwatched line below the selected one
func (m *Model) watchNext() {
	for n := int(m.selectedLine) + 1; n < m.displayHeight; n++ {
		if m.lineManager.Get(uint16(n)) == nil {
			m.lineManager.Watch(uint16(n))
			m.selectedLine = uint16(n)
			m.updateLineList()
			return
		}
	}
}

func (m *Model) updateLineList() {
	m.lineList = m.lineManager.Numbers()

	m.staleLines = make(map[uint16]bool)
	for _, n := range m.lineManager.StaleLines(staleAfter) {
		m.staleLines[n] = true
	}

	if len(m.lineList) > 0 {
		found := false
		for _, n := range m.lineList {
			if n == m.selectedLine {
				found = true
				break
			}
		}
		if !found {
			m.selectedLine = m.lineList[0]
		}
	}
}

// visiblePixels is how many pixels fit inside the bordered line box
func (m Model) visiblePixels() int {
	return max(1, min(m.lineWidth, m.width-2))
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("VIC Monitor") + "\n\n")

	if len(m.lineList) > 0 {
		var tabs []string
		for _, n := range m.lineList {
			tabText := fmt.Sprintf("Line %d", n)
			switch {
			case n == m.selectedLine:
				tabs = append(tabs, tabActiveStyle.Render(tabText))
			case m.staleLines[n]:
				tabs = append(tabs, tabStaleStyle.Render(tabText))
			default:
				tabs = append(tabs, tabInactiveStyle.Render(tabText))
			}
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...) + "\n\n")

		b.WriteString(m.renderStats() + "\n\n")
		b.WriteString(m.renderLine() + "\n")
	} else {
		b.WriteString(helpStyle.Render("No lines watched.") + "\n")
	}

	b.WriteString("\n" + m.renderStatus() + "\n")
	b.WriteString(helpStyle.Render("Tab: switch line | n/x: watch/unwatch | ←→: scroll | g: glyphs | r: reset stats | q: quit"))

	return b.String()
}

func (m Model) renderStatus() string {
	addr, state := "-", "stopped"
	if m.receiver != nil {
		if a := m.receiver.LocalAddr(); a != nil {
			addr = a.String()
			state = m.receiver.State().String()
		}
	}

	return helpStyle.Render(fmt.Sprintf(
		"Listening on %s (%s) | Watching %d lines | Sources: %d",
		addr,
		state,
		m.lineManager.Count(),
		len(m.statsTracker.GetSources()),
	))
}

func (m Model) renderStats() string {
	l := m.lineManager.Get(m.selectedLine)
	if l == nil {
		return ""
	}

	info := l.GetInfo()
	if info.UpdateCount == 0 {
		return helpStyle.Render("Waiting for VIC data...")
	}

	rate := m.statsTracker.GetPacketRate(info.Source)
	recent := m.statsTracker.GetRecentLossPercentage(info.Source)
	total := m.statsTracker.GetLossPercentage(info.Source)

	lossStr := fmt.Sprintf("%.1f%%", recent)
	if recent > 1 {
		lossStr = lipgloss.NewStyle().Foreground(redColor).Render(lossStr)
	} else if recent > 0 {
		lossStr = lipgloss.NewStyle().Foreground(yellowColor).Render(lossStr)
	}

	var outOfOrder, restarts uint64
	if src, ok := m.statsTracker.GetSource(info.Source); ok {
		outOfOrder, restarts = src.OutOfOrder, src.Restarts
	}

	stats := fmt.Sprintf(
		"Source: %s | Frame: %d | Updates: %d | Rate: %.1f pps | Loss: %s (total %.1f%%) | Out of order: %d | Restarts: %d",
		info.Source,
		info.Frame,
		info.UpdateCount,
		rate,
		lossStr,
		total,
		outOfOrder,
		restarts,
	)

	return statsStyle.Render(stats)
}

func (m Model) renderLine() string {
	l := m.lineManager.Get(m.selectedLine)
	if l == nil {
		return ""
	}

	info := l.GetInfo()
	width := m.visiblePixels()
	start := min(m.scrollOffset, max(0, len(info.Pixels)-width))
	end := min(len(info.Pixels), start+width)

	var body string
	switch {
	case len(info.Pixels) == 0:
		body = strings.Repeat(" ", width)
	case m.glyphs:
		body = vic.Render(info.Pixels[start:end])
	default:
		var sb strings.Builder
		for _, p := range info.Pixels[start:end] {
			sb.WriteString(pixelStyles[p&0x0F].Render(" "))
		}
		body = sb.String()
	}

	caption := helpStyle.Render(fmt.Sprintf("pixels %d-%d of %d", start, max(start, end-1), m.lineWidth))

	box := lineBoxStyle
	if m.staleLines[m.selectedLine] {
		box = staleBoxStyle
	}
	return box.Render(body) + "\n" + caption
}
