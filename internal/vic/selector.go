package vic

// SelectLine reports whether a packet starting at startLine carries target,
// and if so the line's index within the packet. The span does not wrap: a
// packet near the top of the 15-bit range never matches low line numbers.
func SelectLine(startLine, target uint16) (int, bool) {
	if target < startLine {
		return 0, false
	}
	offset := int(target) - int(startLine)
	if offset >= LinesPerPacket {
		return 0, false
	}
	return offset, true
}

// ExtractLine decodes target from a raw packet. The error wraps
// ErrShortPacket, ErrLineNotCarried or ErrInsufficientData; the header is
// valid unless it is ErrShortPacket.
func ExtractLine(payload []byte, target uint16, bytesPerLine int) (Header, []ColorIndex, error) {
	h, err := ParseHeader(payload)
	if err != nil {
		return Header{}, nil, err
	}

	index, ok := SelectLine(h.StartLine, target)
	if !ok {
		return h, nil, ErrLineNotCarried
	}

	line, err := DecodePixelLine(PixelPayload(payload), index, bytesPerLine)
	if err != nil {
		return h, nil, err
	}
	return h, line, nil
}
