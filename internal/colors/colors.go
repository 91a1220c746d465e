// Package colors parses CSS-style hex colours. Parsing never fails: anything
// that is not a 3 or 6 digit hex colour is black.
package colors

import (
	"image/color"
	"regexp"
	"strconv"
	"strings"
)

var (
	hex6 = regexp.MustCompile(`^#?([0-9a-fA-F]{2})([0-9a-fA-F]{2})([0-9a-fA-F]{2})$`)
	hex3 = regexp.MustCompile(`^#?([0-9a-fA-F])([0-9a-fA-F])([0-9a-fA-F])$`)
)

// RGB is an 8-bit colour triple.
type RGB struct {
	R, G, B int
}

var (
	Black = RGB{0, 0, 0}
	White = RGB{255, 255, 255}
)

// ParseHex converts "#rrggbb", "rrggbb", "#rgb" or "rgb" to RGB.
func ParseHex(s string) RGB {
	c, _ := parse(s)
	return c
}

// ParseHexOr is ParseHex with a caller-chosen fallback.
func ParseHexOr(s string, fallback RGB) RGB {
	if c, ok := parse(s); ok {
		return c
	}
	return fallback
}

// Valid reports whether s is a parseable hex colour.
func Valid(s string) bool {
	_, ok := parse(s)
	return ok
}

func parse(s string) (RGB, bool) {
	s = strings.TrimSpace(s)
	if m := hex6.FindStringSubmatch(s); m != nil {
		return RGB{R: channel(m[1]), G: channel(m[2]), B: channel(m[3])}, true
	}
	if m := hex3.FindStringSubmatch(s); m != nil {
		return RGB{R: channel(m[1] + m[1]), G: channel(m[2] + m[2]), B: channel(m[3] + m[3])}, true
	}
	return Black, false
}

func channel(h string) int {
	v, err := strconv.ParseUint(h, 16, 8)
	if err != nil {
		return 0
	}
	return int(v)
}

// RGBA converts to an opaque color.RGBA.
func (c RGB) RGBA() color.RGBA {
	return color.RGBA{R: uint8(c.R), G: uint8(c.G), B: uint8(c.B), A: 255}
}

// Hex formats the colour as "#rrggbb".
func (c RGB) Hex() string {
	const digits = "0123456789abcdef"
	b := []byte{'#', 0, 0, 0, 0, 0, 0}
	for i, v := range []int{c.R, c.G, c.B} {
		b[1+2*i] = digits[(v>>4)&0xf]
		b[2+2*i] = digits[v&0xf]
	}
	return string(b)
}
