package vic

import (
	"encoding/binary"
)

// DecodeHeader extracts the starting scanline from a raw packet. It reports
// false for payloads shorter than HeaderSize.
func DecodeHeader(payload []byte) (Header, bool) {
	if len(payload) < HeaderSize {
		return Header{}, false
	}

	// Line word (offset 4-5), little-endian
	word := uint16(payload[4]) | uint16(payload[5])<<8

	return Header{
		StartLine:  word & lineNumberMask,
		LastPacket: word&lastPacketFlag != 0,
	}, true
}

// ParseHeader is DecodeHeader with an error for callers that propagate one.
func ParseHeader(payload []byte) (Header, error) {
	h, ok := DecodeHeader(payload)
	if !ok {
		return Header{}, NewParseError("packet too short", 0, ErrShortPacket)
	}
	return h, nil
}

// DecodeMetadata reads the header fields outside the line word.
func DecodeMetadata(payload []byte) (Metadata, bool) {
	if len(payload) < HeaderSize {
		return Metadata{}, false
	}

	return Metadata{
		Sequence:      binary.LittleEndian.Uint16(payload[0:2]),
		Frame:         binary.LittleEndian.Uint16(payload[2:4]),
		PixelsPerLine: binary.LittleEndian.Uint16(payload[6:8]),
		LinesPerPkt:   payload[8],
		BitsPerPixel:  payload[9],
		Encoding:      binary.LittleEndian.Uint16(payload[10:12]),
	}, true
}

// PixelPayload returns the bytes after the header, or nil if there are none.
func PixelPayload(payload []byte) []byte {
	if len(payload) <= HeaderSize {
		return nil
	}
	return payload[HeaderSize:]
}

// DecodePixelLine expands one scanline of nibble-packed pixels. The high
// nibble of each byte is the left pixel.
func DecodePixelLine(pixels []byte, index, bytesPerLine int) ([]ColorIndex, error) {
	start := index * bytesPerLine
	end := start + bytesPerLine
	if index < 0 || index >= LinesPerPacket || bytesPerLine <= 0 || end > len(pixels) {
		return nil, &LineError{Index: index, Need: end, Have: len(pixels)}
	}

	line := make([]ColorIndex, 0, 2*bytesPerLine)
	for _, b := range pixels[start:end] {
		line = append(line, ColorIndex(b>>4), ColorIndex(b&0x0F))
	}
	return line, nil
}

// DecodeLines returns every complete scanline carried by a packet. Lines that
// run past the end of the payload are left out.
func DecodeLines(payload []byte, bytesPerLine int) (Header, []Line, error) {
	h, err := ParseHeader(payload)
	if err != nil {
		return Header{}, nil, err
	}

	pixels := PixelPayload(payload)
	var lines []Line
	for i := 0; i < LinesPerPacket; i++ {
		pix, err := DecodePixelLine(pixels, i, bytesPerLine)
		if err != nil {
			// Later lines end further out, so none of them fit either
			break
		}
		lines = append(lines, Line{Number: h.StartLine + uint16(i), Pixels: pix})
	}
	return h, lines, nil
}

// EncodePixelLine packs color indices two per byte, left pixel in the high
// nibble. An odd trailing pixel is paired with color 0.
func EncodePixelLine(line []ColorIndex) []byte {
	out := make([]byte, (len(line)+1)/2)
	for i, c := range line {
		if i%2 == 0 {
			out[i/2] = byte(c&0x0F) << 4
		} else {
			out[i/2] |= byte(c & 0x0F)
		}
	}
	return out
}

// BuildPacket assembles a raw packet from header fields and packed pixels.
func BuildPacket(h Header, m Metadata, pixels []byte) []byte {
	packet := make([]byte, HeaderSize+len(pixels))

	binary.LittleEndian.PutUint16(packet[0:2], m.Sequence)
	binary.LittleEndian.PutUint16(packet[2:4], m.Frame)

	word := h.StartLine & lineNumberMask
	if h.LastPacket {
		word |= lastPacketFlag
	}
	binary.LittleEndian.PutUint16(packet[4:6], word)

	binary.LittleEndian.PutUint16(packet[6:8], m.PixelsPerLine)
	packet[8] = m.LinesPerPkt
	packet[9] = m.BitsPerPixel
	binary.LittleEndian.PutUint16(packet[10:12], m.Encoding)

	copy(packet[HeaderSize:], pixels)
	return packet
}

// CheckLineWidth compares a packet against the configured bytes per line.
// It returns a *WidthMismatch when the metadata pixel count or the payload
// length disagrees with the configured width.
func CheckLineWidth(payload []byte, bytesPerLine int) error {
	m, ok := DecodeMetadata(payload)
	if !ok {
		return nil
	}

	payloadLen := len(payload) - HeaderSize
	metaMismatch := m.PixelsPerLine != 0 && int(m.PixelsPerLine) != 2*bytesPerLine
	lenMismatch := payloadLen != LinesPerPacket*bytesPerLine
	if metaMismatch || lenMismatch {
		return &WidthMismatch{
			BytesPerLine:  bytesPerLine,
			PixelsPerLine: int(m.PixelsPerLine),
			PayloadLen:    payloadLen,
		}
	}
	return nil
}
