// Package capture reads packet trace files and classifies their frames down
// to UDP payloads.
package capture

import (
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
)

// Frame is one captured link-layer frame.
type Frame struct {
	Index     int // 0-based position in the capture
	Timestamp time.Time
	Data      []byte
	LinkType  layers.LinkType
}

// UDPPayload decodes the frame through its link, network and transport
// layers. ok is false unless the frame is IPv4 or IPv6 carrying UDP.
func (f Frame) UDPPayload() ([]byte, bool) {
	packet := gopacket.NewPacket(f.Data, f.LinkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	switch packet.NetworkLayer().(type) {
	case *layers.IPv4, *layers.IPv6:
	default:
		return nil, false
	}

	udp, ok := packet.TransportLayer().(*layers.UDP)
	if !ok {
		return nil, false
	}
	return udp.Payload, true
}

// Reader yields the frames of a pcap file in capture order
type Reader struct {
	r     *pcapgo.Reader
	c     io.Closer
	index int
}

// Open opens a pcap file. A missing, unreadable or malformed file header is
// reported here rather than on the first Next.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "capture: could not open %q", path)
	}

	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "capture: %q", path)
	}
	r.c = f
	return r, nil
}

// NewReader reads a pcap stream from r
func NewReader(r io.Reader) (*Reader, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "could not read pcap header")
	}
	return &Reader{r: pr}, nil
}

// LinkType returns the link type declared in the file header
func (r *Reader) LinkType() layers.LinkType {
	return r.r.LinkType()
}

// Next returns the next frame, or io.EOF after the last one. A record cut
// short by the end of the file is reported as io.ErrUnexpectedEOF.
func (r *Reader) Next() (Frame, error) {
	data, ci, err := r.r.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, errors.Wrapf(err, "capture: could not read frame %d", r.index)
	}

	f := Frame{
		Index:     r.index,
		Timestamp: ci.Timestamp,
		Data:      data,
		LinkType:  r.r.LinkType(),
	}
	r.index++
	return f, nil
}

// Close releases the underlying file
func (r *Reader) Close() error {
	if r.c == nil {
		return nil
	}
	err := r.c.Close()
	r.c = nil
	return err
}
