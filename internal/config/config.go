package config

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"vic-monitor/internal/vic"
)

// Config is the single source of truth shared by the live and replay drivers
type Config struct {
	Protocol ProtocolConfig `yaml:"protocol"`
	Live     LiveConfig     `yaml:"live"`
	Replay   ReplayConfig   `yaml:"replay"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ProtocolConfig describes the VIC wire layout
type ProtocolConfig struct {
	HeaderSize     int `yaml:"-"` // fixed by the wire format
	LinesPerPacket int `yaml:"-"` // fixed by the wire format
	// BytesPerLine is disputed between the two historical tools (96 vs 192).
	// Traffic that disagrees with it is reported at startup.
	BytesPerLine  int `yaml:"bytes_per_line"`
	DisplayHeight int `yaml:"display_height"`
}

// LiveConfig contains UDP listener configuration
type LiveConfig struct {
	BindAddress string        `yaml:"bind_address"`
	Port        int           `yaml:"port"`
	BufferSize  int           `yaml:"buffer_size"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
	TargetLine  int           `yaml:"target_line"`
	WatchLines  []int         `yaml:"watch_lines"` // extra lines shown by the TUI
}

// ReplayConfig contains capture replay configuration
type ReplayConfig struct {
	Prompt string `yaml:"prompt"`
}

// MetricsConfig contains the Prometheus endpoint configuration
type MetricsConfig struct {
	Address string `yaml:"address"` // empty disables the endpoint
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in VIC stream configuration
func Default() Config {
	return Config{
		Protocol: ProtocolConfig{
			HeaderSize:     vic.HeaderSize,
			LinesPerPacket: vic.LinesPerPacket,
			BytesPerLine:   vic.DefaultBytesPerLine,
			DisplayHeight:  vic.DisplayHeight,
		},
		Live: LiveConfig{
			BindAddress: "0.0.0.0",
			Port:        vic.DefaultPort,
			BufferSize:  vic.MaxDatagramSize,
			PollTimeout: time.Second,
			TargetLine:  vic.MiddleLine,
		},
		Replay: ReplayConfig{
			Prompt: "Press Enter for next packet...",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Protocol.Validate(); err != nil {
		return fmt.Errorf("protocol config: %w", err)
	}

	if err := c.Live.Validate(c.Protocol); err != nil {
		return fmt.Errorf("live config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates the wire layout
func (p *ProtocolConfig) Validate() error {
	if p.HeaderSize != vic.HeaderSize {
		return fmt.Errorf("header size is fixed at %d, got %d", vic.HeaderSize, p.HeaderSize)
	}

	if p.LinesPerPacket != vic.LinesPerPacket {
		return fmt.Errorf("lines per packet is fixed at %d, got %d", vic.LinesPerPacket, p.LinesPerPacket)
	}

	if p.BytesPerLine < 1 {
		return fmt.Errorf("bytes_per_line must be positive, got %d", p.BytesPerLine)
	}

	if p.DisplayHeight < 1 || p.DisplayHeight > 0x7FFF {
		return fmt.Errorf("display_height must be between 1 and 32767, got %d", p.DisplayHeight)
	}

	return nil
}

// Validate validates the listener against the wire layout
func (l *LiveConfig) Validate(p ProtocolConfig) error {
	if l.Port < 0 || l.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", l.Port)
	}

	if l.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if net.ParseIP(l.BindAddress) == nil {
		return fmt.Errorf("bind_address %q is not an IP address", l.BindAddress)
	}

	if need := p.HeaderSize + p.BytesPerLine; l.BufferSize < need {
		return fmt.Errorf("buffer_size must hold the header and one line (%d bytes), got %d", need, l.BufferSize)
	}

	if l.PollTimeout <= 0 {
		return fmt.Errorf("poll_timeout must be positive, got %s", l.PollTimeout)
	}

	if l.TargetLine < 0 || l.TargetLine >= p.DisplayHeight {
		return fmt.Errorf("target_line must be between 0 and %d, got %d", p.DisplayHeight-1, l.TargetLine)
	}

	for _, line := range l.WatchLines {
		if line < 0 || line >= p.DisplayHeight {
			return fmt.Errorf("watch_lines entry must be between 0 and %d, got %d", p.DisplayHeight-1, line)
		}
	}

	return nil
}

// Validate validates the metrics endpoint
func (m *MetricsConfig) Validate() error {
	if m.Address == "" {
		return nil
	}

	if _, _, err := net.SplitHostPort(m.Address); err != nil {
		return fmt.Errorf("invalid address %q: %w", m.Address, err)
	}

	if !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("path must start with /, got %q", m.Path)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	if _, err := parseLevel(l.Level); err != nil {
		return err
	}

	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format must be text or json, got %q", l.Format)
	}

	return nil
}

// ListenAddress returns the host:port the live receiver binds
func (l *LiveConfig) ListenAddress() string {
	return net.JoinHostPort(l.BindAddress, strconv.Itoa(l.Port))
}

// Lines returns the target line followed by any extra watched lines, without
// duplicates.
func (l *LiveConfig) Lines() []uint16 {
	seen := map[int]bool{l.TargetLine: true}
	lines := []uint16{uint16(l.TargetLine)}
	for _, line := range l.WatchLines {
		if !seen[line] {
			seen[line] = true
			lines = append(lines, uint16(line))
		}
	}
	return lines
}

// NewLogger builds a slog logger writing to w
func (l *LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
