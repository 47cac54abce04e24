package vic

import (
	"fmt"
	"io"
)

// Sender emits synthetic VIC frames: a diagonal color-bar pattern that
// shifts by one color per frame.
type Sender struct {
	w            io.Writer
	bytesPerLine int
	height       int
	seq          uint16
	frame        uint16
}

// NewSender creates a sender writing one packet per Write call to w, which
// is normally a connected UDP socket.
func NewSender(w io.Writer, bytesPerLine, height int) *Sender {
	return &Sender{w: w, bytesPerLine: bytesPerLine, height: height}
}

// PatternPixel is the color of pixel x on line y of frame f.
func PatternPixel(f, y, x int) ColorIndex {
	return ColorIndex((x + y + f) % 16)
}

// FramePackets builds the packets for one frame without sending them.
func (s *Sender) FramePackets() [][]byte {
	packets := make([][]byte, 0, (s.height+LinesPerPacket-1)/LinesPerPacket)
	width := 2 * s.bytesPerLine

	for start := 0; start < s.height; start += LinesPerPacket {
		pixels := make([]byte, 0, LinesPerPacket*s.bytesPerLine)
		line := make([]ColorIndex, width)
		for l := 0; l < LinesPerPacket; l++ {
			for x := range line {
				line[x] = PatternPixel(int(s.frame), start+l, x)
			}
			pixels = append(pixels, EncodePixelLine(line)...)
		}

		h := Header{
			StartLine:  uint16(start),
			LastPacket: start+LinesPerPacket >= s.height,
		}
		m := Metadata{
			Sequence:      s.seq,
			Frame:         s.frame,
			PixelsPerLine: uint16(width),
			LinesPerPkt:   LinesPerPacket,
			BitsPerPixel:  BitsPerPixel,
		}
		packets = append(packets, BuildPacket(h, m, pixels))
		s.seq++
	}
	s.frame++
	return packets
}

// SendFrame writes every packet of the next frame.
func (s *Sender) SendFrame() error {
	for _, p := range s.FramePackets() {
		if _, err := s.w.Write(p); err != nil {
			return fmt.Errorf("failed to send packet: %w", err)
		}
	}
	return nil
}
