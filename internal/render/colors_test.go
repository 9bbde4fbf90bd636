package render

import (
	"image/color"
	"math"
	"testing"
)

func TestHexToRGB(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
	}{
		{"#ff0000", color.RGBA{255, 0, 0, 255}},
		{"00ff7F", color.RGBA{0, 255, 127, 255}},
		{"#1a2B3c", color.RGBA{0x1a, 0x2b, 0x3c, 255}},
		{"#fff", White},
		{"", White},
		{"#gg0000", White},
	}

	for _, tt := range tests {
		if got := HexToRGB(tt.in); got != tt.want {
			t.Errorf("HexToRGB(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}

	if hex := RGBToHex(color.RGBA{0x1a, 0x2b, 0x3c, 255}); hex != "#1a2b3c" {
		t.Errorf("Expected #1a2b3c, got %s", hex)
	}
}

func TestRGBSimilarity(t *testing.T) {
	if s := RGBSimilarity(White, White); s != 100 {
		t.Errorf("Expected identical colors at 100%%, got %g", s)
	}
	if s := RGBSimilarity(White, Black); s != 0 {
		t.Errorf("Expected black vs white at 0%%, got %g", s)
	}
	yellow := color.RGBA{255, 255, 0, 255}
	if s := RGBSimilarity(yellow, White); math.Abs(s-200.0/3) > 1e-9 {
		t.Errorf("Expected %g, got %g", 200.0/3, s)
	}
}

func TestContrastText(t *testing.T) {
	tests := []struct {
		name string
		bg   color.RGBA
		want color.RGBA
	}{
		{"dark background", color.RGBA{12, 12, 28, 255}, White},
		{"white background", White, Black},
		{"pale background", color.RGBA{230, 230, 210, 255}, Black},
		{"saturated background", color.RGBA{255, 0, 0, 255}, White},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContrastText(tt.bg); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestKindColorAndPalette(t *testing.T) {
	if KindColor(0, 5) != KindColor(5, 5) {
		t.Error("Expected kinds to wrap around the wheel")
	}
	if KindColor(-1, 5) != KindColor(4, 5) {
		t.Error("Expected negative kinds to wrap")
	}

	p := Palette(6)
	seen := make(map[string]bool)
	for _, hex := range p {
		if seen[hex] {
			t.Errorf("Duplicate palette color %s in %v", hex, p)
		}
		seen[hex] = true
		if HexToRGB(hex) == White {
			t.Errorf("Palette color %s does not parse", hex)
		}
	}
	if len(p) != 6 {
		t.Errorf("Expected 6 colors, got %d", len(p))
	}
}
