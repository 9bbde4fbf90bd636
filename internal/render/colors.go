package render

import (
	"fmt"
	"image/color"
	"math"
)

var (
	White = color.RGBA{255, 255, 255, 255}
	Black = color.RGBA{0, 0, 0, 255}
)

// HexToRGB parses "#rrggbb" (the leading '#' is optional). Malformed input
// yields white so a bad palette entry is visible rather than fatal.
func HexToRGB(hex string) color.RGBA {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return White
	}
	for i := 0; i < 6; i++ {
		if _, ok := nibble(hex[i]); !ok {
			return White
		}
	}

	return color.RGBA{
		R: hexToByte(hex[0], hex[1]),
		G: hexToByte(hex[2], hex[3]),
		B: hexToByte(hex[4], hex[5]),
		A: 255,
	}
}

// RGBToHex formats c as "#rrggbb".
func RGBToHex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func hexToByte(h1, h2 byte) uint8 {
	hi, _ := nibble(h1)
	lo, _ := nibble(h2)
	return hi<<4 | lo
}

func nibble(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// RGBSimilarity returns how alike two colors are as a percentage: 100 for
// identical colors, 0 for black against white.
func RGBSimilarity(a, b color.RGBA) float64 {
	diff := absDiff(a.R, b.R) + absDiff(a.G, b.G) + absDiff(a.B, b.B)
	return 100 - float64(diff)/3/255*100
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

// ContrastText picks white or black text for a label drawn on bg.
func ContrastText(bg color.RGBA) color.RGBA {
	if RGBSimilarity(bg, White) < 80 {
		return White
	}
	return Black
}

// KindColor spreads kinds evenly around the hue wheel.
func KindColor(kind, kinds int) color.RGBA {
	if kinds < 1 {
		kinds = 1
	}
	hue := float64(((kind%kinds)+kinds)%kinds) / float64(kinds) * 360
	return hsv(hue, 0.7, 0.95)
}

// Palette returns one hex color per kind.
func Palette(kinds int) []string {
	out := make([]string, kinds)
	for i := range out {
		out[i] = RGBToHex(KindColor(i, kinds))
	}
	return out
}

func hsv(h, s, v float64) color.RGBA {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return color.RGBA{
		R: uint8(math.Round((r + m) * 255)),
		G: uint8(math.Round((g + m) * 255)),
		B: uint8(math.Round((b + m) * 255)),
		A: 255,
	}
}
