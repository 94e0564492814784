package icon

import "math"

const (
	glyphW   = 6
	glyphH   = 7
	glyphGap = 1
	// textFill is the share of the canvas the rendered number may occupy.
	textFill = 0.92
)

// digitGlyphs is a bold 6x7 bitmap font for 0-9 with two-pixel strokes.
var digitGlyphs = [10][glyphH]string{
	{".####.", "##..##", "##..##", "##..##", "##..##", "##..##", ".####."},
	{"..##..", ".###..", "####..", "..##..", "..##..", "..##..", "######"},
	{".####.", "##..##", "....##", "...##.", "..##..", ".##...", "######"},
	{".####.", "##..##", "....##", "..###.", "....##", "##..##", ".####."},
	{"...##.", "..###.", ".##.#.", "##..#.", "######", "....#.", "....#."},
	{"######", "##....", "#####.", "....##", "....##", "##..##", ".####."},
	{".####.", "##....", "##....", "#####.", "##..##", "##..##", ".####."},
	{"######", "....##", "...##.", "...##.", "..##..", "..##..", "..##.."},
	{".####.", "##..##", "##..##", ".####.", "##..##", "##..##", ".####."},
	{".####.", "##..##", "##..##", ".#####", "....##", "....##", ".####."},
}

// TextScale returns the integer pixel scale used to draw n digits on a
// canvas of the given size: the largest factor keeping the text within 92%
// of the canvas in both directions, never below 1.
func TextScale(size, n int) int {
	if n <= 0 {
		return 1
	}
	rawW := n*glyphW + (n-1)*glyphGap
	sx := float64(size) * textFill / float64(rawW)
	sy := float64(size) * textFill / float64(glyphH)
	return max(1, int(math.Floor(math.Min(sx, sy))))
}

// Digits draws the decimal digits of text centred on the canvas. Non-digit
// characters are skipped but still take up a glyph cell.
func (c *Canvas) Digits(text string, col RGB) {
	n := len(text)
	if n == 0 {
		return
	}
	scale := TextScale(c.size, n)
	rawW := n*glyphW + (n-1)*glyphGap
	totalW := rawW * scale
	totalH := glyphH * scale
	centre := float64(c.size) / 2
	startX := int(math.Floor(centre - float64(totalW)/2 + 0.5))
	startY := int(math.Floor(centre - float64(totalH)/2 + 0.5))

	offsetX := 0
	for _, ch := range text {
		if ch >= '0' && ch <= '9' {
			c.glyph(digitGlyphs[ch-'0'], startX+offsetX, startY, scale, col)
		}
		offsetX += (glyphW + glyphGap) * scale
	}
}

func (c *Canvas) glyph(rows [glyphH]string, x0, y0, scale int, col RGB) {
	for gy, row := range rows {
		for gx := 0; gx < glyphW; gx++ {
			if row[gx] != '#' {
				continue
			}
			for sy := 0; sy < scale; sy++ {
				for sx := 0; sx < scale; sx++ {
					c.set(x0+gx*scale+sx, y0+gy*scale+sy, col)
				}
			}
		}
	}
}
