package vic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/ipv4"
)

// ReceiverState is the state of the receive loop.
type ReceiverState int32

const (
	StateWaiting ReceiverState = iota
	StatePacketReceived
)

func (s ReceiverState) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StatePacketReceived:
		return "packet-received"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// packetConn is the part of *ipv4.PacketConn the receive loop uses
type packetConn interface {
	SetReadDeadline(t time.Time) error
	ReadFrom(b []byte) (int, *ipv4.ControlMessage, net.Addr, error)
}

// maxRetryDelay bounds the pause after a failed read
const maxRetryDelay = 100 * time.Millisecond

// Receiver listens for VIC datagrams on a single UDP socket
type Receiver struct {
	addr        string
	bufSize     int
	pollTimeout time.Duration
	logger      *slog.Logger

	conn    packetConn
	rawConn net.PacketConn
	state   atomic.Int32
	mu      sync.Mutex
	started bool
}

// NewReceiver creates a receiver for addr ("host:port"). Each wait for a
// datagram is bounded by pollTimeout so cancellation is observed promptly.
func NewReceiver(addr string, bufSize int, pollTimeout time.Duration) *Receiver {
	if bufSize <= 0 {
		bufSize = MaxDatagramSize
	}
	if pollTimeout <= 0 {
		pollTimeout = time.Second
	}
	return &Receiver{
		addr:        addr,
		bufSize:     bufSize,
		pollTimeout: pollTimeout,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger for receive errors. A nil logger is ignored.
func (r *Receiver) SetLogger(l *slog.Logger) {
	if l != nil {
		r.logger = l
	}
}

// Listen binds the UDP socket.
func (r *Receiver) Listen() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("receiver already started")
	}

	conn, err := net.ListenPacket("udp4", r.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", r.addr, err)
	}
	pc := ipv4.NewPacketConn(conn)

	// Destination address is informational; not every platform supports it
	_ = pc.SetControlMessage(ipv4.FlagDst, true)

	r.rawConn = conn
	r.conn = pc

	r.started = true
	return nil
}

// LocalAddr returns the bound address, or nil before Listen.
func (r *Receiver) LocalAddr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rawConn == nil {
		return nil
	}
	return r.rawConn.LocalAddr()
}

// State returns the current loop state.
func (r *Receiver) State() ReceiverState {
	return ReceiverState(r.state.Load())
}

// Serve reads datagrams until ctx is cancelled, calling handle for each one
// in receive order. The socket is closed when Serve returns.
func (r *Receiver) Serve(ctx context.Context, handle func(Datagram)) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("receiver not listening")
	}
	defer r.Stop()

	buf := make([]byte, r.bufSize)

	for {
		r.state.Store(int32(StateWaiting))

		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(r.pollTimeout)); err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, cm, src, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			// Transient receive errors never end the loop
			r.logger.Debug("receive failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(min(r.pollTimeout, maxRetryDelay)):
			}
			continue
		}

		r.state.Store(int32(StatePacketReceived))

		d := Datagram{
			Payload:    make([]byte, n),
			Source:     src,
			ReceivedAt: time.Now(),
		}
		copy(d.Payload, buf[:n])
		if cm != nil {
			d.Dst = cm.Dst
		}

		handle(d)
	}
}

// Stop closes the socket
func (r *Receiver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rawConn != nil {
		r.rawConn.Close()
		r.rawConn = nil
		r.conn = nil
	}
	r.started = false
}
