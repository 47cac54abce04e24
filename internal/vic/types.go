package vic

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// VIC stream wire constants
const (
	DefaultPort         = 11000
	HeaderSize          = 12
	LinesPerPacket      = 4
	PixelsPerLine       = 384
	BitsPerPixel        = 4
	DefaultBytesPerLine = PixelsPerLine / 2
	DisplayHeight       = 272
	MiddleLine          = DisplayHeight / 2
	MaxDatagramSize     = 2048

	// lineNumberMask drops the top bit of the line word, which marks the
	// last packet of a frame.
	lineNumberMask = 0x7FFF
	lastPacketFlag = 0x8000
)

// Sentinel errors. All are per-datagram conditions that callers skip.
var (
	ErrShortPacket      = errors.New("packet shorter than header")
	ErrInsufficientData = errors.New("insufficient pixel data for line")
	ErrLineNotCarried   = errors.New("packet does not carry line")
)

// ColorIndex selects one of the 16 palette entries.
type ColorIndex uint8

// Header is the part of the 12-byte packet header the decoder interprets.
type Header struct {
	StartLine  uint16 // first scanline carried by the packet, 15 bits
	LastPacket bool   // top bit of the line word
}

// Metadata holds the header fields outside the line word. The decode path
// never depends on them; they feed diagnostics only.
type Metadata struct {
	Sequence      uint16
	Frame         uint16
	PixelsPerLine uint16
	LinesPerPkt   uint8
	BitsPerPixel  uint8
	Encoding      uint16
}

// Line is one complete scanline decoded from a packet.
type Line struct {
	Number uint16
	Pixels []ColorIndex
}

// Datagram is one UDP payload as delivered by the receiver.
type Datagram struct {
	Payload    []byte
	Source     net.Addr
	Dst        net.IP
	ReceivedAt time.Time
}

// ParseError represents an error during packet parsing
type ParseError struct {
	Message string
	Offset  int
	Err     error
}

func (e *ParseError) Error() string {
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(message string, offset int, err error) *ParseError {
	return &ParseError{Message: message, Offset: offset, Err: err}
}

// LineError reports a scanline that does not fit in the pixel payload.
type LineError struct {
	Index int // line index within the packet
	Need  int // bytes required up to the end of the line
	Have  int // bytes available
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: need %d bytes, have %d", e.Index, e.Need, e.Have)
}

func (e *LineError) Unwrap() error {
	return ErrInsufficientData
}

// WidthMismatch reports traffic that disagrees with the configured line width.
type WidthMismatch struct {
	BytesPerLine  int
	PixelsPerLine int // from packet metadata, 0 if absent
	PayloadLen    int
}

func (e *WidthMismatch) Error() string {
	return fmt.Sprintf("configured %d bytes/line (%d pixels), packet reports %d pixels/line with %d payload bytes",
		e.BytesPerLine, e.BytesPerLine*2, e.PixelsPerLine, e.PayloadLen)
}
