package vic

import (
	"io"
	"sync"
)

// Render maps each color index to its palette glyph, left to right.
func Render(line []ColorIndex) string {
	buf := make([]byte, len(line))
	for i, c := range line {
		buf[i] = c.Glyph()
	}
	return string(buf)
}

// Renderer writes one text line per scanline.
type Renderer struct {
	w   io.Writer
	mu  sync.Mutex
	buf []byte
}

// NewRenderer creates a renderer writing to w
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// WriteLine renders line followed by a newline.
func (r *Renderer) WriteLine(line []ColorIndex) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf = r.buf[:0]
	for _, c := range line {
		r.buf = append(r.buf, c.Glyph())
	}
	r.buf = append(r.buf, '\n')

	_, err := r.w.Write(r.buf)
	return err
}
