// vic-monitor decodes and displays VIC raster packets.
//
// Usage: vic-monitor [live] [OPTIONS]
//        vic-monitor replay [OPTIONS] FILE
//        vic-monitor send [OPTIONS]
//
// live listens on UDP 0.0.0.0:11000 and prints the middle scanline (136) of
// the display each time a packet carrying it arrives. replay steps through a
// pcap file, printing the 4 scanlines of every VIC packet and waiting for
// Enter between packets. send emits a synthetic color-bar stream.
//
// Example:
//
//	$> vic-monitor replay ./capture.pcap
//	$> vic-monitor send -frames 10 & vic-monitor live -line 0
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"vic-monitor/internal/capture"
	"vic-monitor/internal/config"
	"vic-monitor/internal/metrics"
	"vic-monitor/internal/monitor"
	"vic-monitor/internal/stats"
	"vic-monitor/internal/stream"
	"vic-monitor/internal/tui"
	"vic-monitor/internal/vic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const usage = `vic-monitor decodes and displays VIC raster packets.

Usage: vic-monitor [live] [OPTIONS]
       vic-monitor replay [OPTIONS] FILE
       vic-monitor send [OPTIONS]

Run 'vic-monitor COMMAND -h' for the options of a command.
`

func main() {
	log.SetPrefix("vic-monitor: ")
	log.SetFlags(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := xmain(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("%+v", err)
	}
}

func xmain(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	cmd := "live"
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "live":
		return runLive(ctx, stdout, stderr, args)
	case "replay":
		return runReplay(ctx, stdout, stderr, args)
	case "send":
		return runSend(ctx, stderr, args)
	case "help":
		fmt.Fprint(stderr, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// loadConfig reads the optional config file; flag overrides are applied by
// the caller, which then validates again.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	return *cfg, nil
}

// openLog returns the log destination: fname if set, else def
func openLog(fname string, def io.Writer) (io.Writer, func(), error) {
	if fname == "" {
		return def, func() {}, nil
	}
	f, err := os.OpenFile(fname, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open log file %q: %w", fname, err)
	}
	return f, func() { _ = f.Close() }, nil
}

func runLive(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	fs := flag.NewFlagSet("live", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgPath   = fs.String("config", "", "path to a YAML configuration file")
		listen    = fs.String("listen", "", "UDP address to listen on (default from config, 0.0.0.0:11000)")
		line      = fs.Int("line", -1, "scanline to render (default from config, 136)")
		useTUI    = fs.Bool("tui", false, "show watched lines in an interactive terminal UI")
		metricsAt = fs.String("metrics", "", "serve Prometheus metrics on this address")
		logFile   = fs.String("log", "", "write logs to this file instead of stderr")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		host, port, err := net.SplitHostPort(*listen)
		if err != nil {
			return fmt.Errorf("invalid -listen address %q: %w", *listen, err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid -listen port %q: %w", port, err)
		}
		if host == "" {
			host = "0.0.0.0"
		}
		cfg.Live.BindAddress, cfg.Live.Port = host, p
	}
	if *line >= 0 {
		cfg.Live.TargetLine = *line
	}
	if *metricsAt != "" {
		cfg.Metrics.Address = *metricsAt
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logDst := stderr
	if *useTUI {
		// The alternate screen owns the terminal
		logDst = io.Discard
	}
	logDst, closeLog, err := openLog(*logFile, logDst)
	if err != nil {
		return err
	}
	defer closeLog()
	logger := cfg.Logging.NewLogger(logDst)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	tracker := stats.NewTracker()
	lines := monitor.NewManager(cfg.Live.Lines()...)

	var renderer *vic.Renderer
	if !*useTUI {
		renderer = vic.NewRenderer(stdout)
	}

	live := stream.NewLive(cfg, renderer, logger, m, stream.WithStats(tracker), stream.WithLines(lines))
	r, err := live.Listen()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return live.Serve(ctx, r)
	})

	if cfg.Metrics.Address != "" {
		logger.Info("serving metrics",
			slog.String("address", cfg.Metrics.Address),
			slog.String("path", cfg.Metrics.Path),
		)
		g.Go(func() error {
			if err := metrics.Serve(ctx, cfg.Metrics.Address, cfg.Metrics.Path, reg); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if *useTUI {
		g.Go(func() error {
			defer cancel()
			model := tui.NewModel(lines, tracker, r, cfg.Protocol)
			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("could not run TUI: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func runReplay(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgPath  = fs.String("config", "", "path to a YAML configuration file")
		auto     = fs.Bool("auto", false, "render the whole capture without waiting for Enter")
		interval = fs.Duration("interval", 0, "advance to the next packet after this delay instead of waiting for Enter")
		logFile  = fs.String("log", "", "write logs to this file instead of stderr")
	)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: vic-monitor replay [OPTIONS] FILE\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("missing path to input pcap file")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}

	logDst, closeLog, err := openLog(*logFile, stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	logger := cfg.Logging.NewLogger(logDst)

	rd, err := capture.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer rd.Close()

	var adv stream.Advancer
	switch {
	case *auto:
		adv = stream.Auto
	case *interval > 0:
		stepper := stream.NewStepper()
		defer stepper.Stop()
		go stepEvery(ctx, stepper, *interval)
		adv = stepper
	default:
		prompt := stream.NewPrompt(cfg.Replay.Prompt)
		defer prompt.Close()
		adv = prompt
	}

	replay := stream.NewReplay(cfg, vic.NewRenderer(stdout), logger, metrics.New(prometheus.NewRegistry()), adv)
	return replay.Run(ctx, rd)
}

// stepEvery releases one replayed packet per tick until ctx ends or the
// replay stops.
func stepEvery(ctx context.Context, s *stream.Stepper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.Step(ctx) {
				return
			}
		}
	}
}

func runSend(ctx context.Context, stderr io.Writer, args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		addr     = fs.String("addr", net.JoinHostPort("127.0.0.1", strconv.Itoa(vic.DefaultPort)), "UDP address to send to")
		frames   = fs.Int("frames", 0, "number of frames to send (0: until interrupted)")
		interval = fs.Duration("interval", 20*time.Millisecond, "delay between frames")
		bpl      = fs.Int("bytes-per-line", vic.DefaultBytesPerLine, "pixel bytes per line")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *bpl < 1 {
		return fmt.Errorf("invalid -bytes-per-line %d", *bpl)
	}

	conn, err := net.Dial("udp4", *addr)
	if err != nil {
		return fmt.Errorf("could not dial %s: %w", *addr, err)
	}
	defer conn.Close()

	sender := vic.NewSender(conn, *bpl, vic.DisplayHeight)
	log.Printf("sending to %s", conn.RemoteAddr())

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	sent := 0
	for *frames == 0 || sent < *frames {
		if err := sender.SendFrame(); err != nil {
			return fmt.Errorf("could not send frame %d: %w", sent, err)
		}
		sent++

		if *frames != 0 && sent == *frames {
			break
		}
		select {
		case <-ctx.Done():
			log.Printf("sent %d frames", sent)
			return nil
		case <-ticker.C:
		}
	}

	log.Printf("sent %d frames", sent)
	return nil
}
