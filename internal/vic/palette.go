package vic

// Color is one palette entry: the text glyph and the display color.
type Color struct {
	Name  string
	Glyph byte
	RGB   string
}

// Palette is the fixed VIC-II color table, indexed by ColorIndex.
var Palette = [16]Color{
	{"black", ' ', "#000000"},
	{"white", '.', "#EFEFEF"},
	{"red", 'R', "#8D2F34"},
	{"cyan", 'C', "#6AD4CD"},
	{"purple", 'P', "#9835A4"},
	{"green", 'G', "#4CB442"},
	{"blue", 'B', "#2C29B1"},
	{"yellow", 'Y', "#EFEF5D"},
	{"orange", 'O', "#984E20"},
	{"brown", 'N', "#5B3800"},
	{"light red", 'r', "#D1676D"},
	{"dark grey", 'g', "#4A4A4A"},
	{"mid grey", 'm', "#7B7B7B"},
	{"light green", 'l', "#9FEF93"},
	{"light blue", 'L', "#6D6AEF"},
	{"light grey", 'E', "#B2B2B2"},
}

// Glyph returns the text glyph for c.
func (c ColorIndex) Glyph() byte {
	return Palette[c&0x0F].Glyph
}
