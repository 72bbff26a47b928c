package draw

import (
	"fmt"
	"image/color"
	"strings"
)

// ParseColor parses "#rgb", "#rrggbb" and "#rrggbbaa" hex colors.
// An empty string yields opaque black.
func ParseColor(s string) (color.RGBA, error) {
	if s == "" {
		return color.RGBA{A: 0xff}, nil
	}
	hex := strings.TrimPrefix(strings.ToLower(s), "#")

	var r, g, b, a uint8
	a = 0xff
	switch len(hex) {
	case 3:
		var r4, g4, b4 uint8
		if _, err := fmt.Sscanf(hex, "%1x%1x%1x", &r4, &g4, &b4); err != nil {
			return color.RGBA{}, fmt.Errorf("invalid color %q", s)
		}
		r, g, b = r4*0x11, g4*0x11, b4*0x11
	case 6:
		if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
			return color.RGBA{}, fmt.Errorf("invalid color %q", s)
		}
	case 8:
		if _, err := fmt.Sscanf(hex, "%02x%02x%02x%02x", &r, &g, &b, &a); err != nil {
			return color.RGBA{}, fmt.Errorf("invalid color %q", s)
		}
	default:
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}

// FormatColor renders a color back to "#rrggbb" form (alpha dropped when opaque)
func FormatColor(c color.RGBA) string {
	if c.A == 0xff {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}
