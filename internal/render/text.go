package render

import (
	"math"
	"strings"
)

// Ellipsis marks truncated text.
const Ellipsis = "..."

// Measurer returns the rendered width of s in mm for the current font.
type Measurer func(s string) float64

// WrapText breaks text into lines no wider than width. Explicit newlines
// are kept; words wider than the box are split by character.
func WrapText(text string, width float64, measure Measurer) []string {
	var lines []string
	for _, paragraph := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := ""
		for _, word := range words {
			candidate := word
			if line != "" {
				candidate = line + " " + word
			}
			if measure(candidate) <= width {
				line = candidate
				continue
			}
			if line != "" {
				lines = append(lines, line)
				line = ""
			}
			// word alone may still overflow
			for measure(word) > width {
				n := longestFit([]rune(word), width, "", measure)
				if n == 0 {
					n = 1
				}
				r := []rune(word)
				lines = append(lines, string(r[:n]))
				word = string(r[n:])
			}
			line = word
		}
		lines = append(lines, line)
	}
	return lines
}

// TruncateLine returns the longest prefix of line that still fits width
// with the ellipsis appended, found by binary search. The result is a pure
// function of line, width and measure.
//
// When the box is narrower than the ellipsis itself, the ellipsis is clipped
// to the dots that fit, possibly none.
func TruncateLine(line string, width float64, measure Measurer) string {
	if measure(Ellipsis) > width {
		dots := []rune(Ellipsis)
		return string(dots[:longestFit(dots, width, "", measure)])
	}
	runes := []rune(line)
	n := longestFit(runes, width, Ellipsis, measure)
	return strings.TrimRight(string(runes[:n]), " ") + Ellipsis
}

// longestFit returns the largest n such that measure(runes[:n]+suffix)
// fits width.
func longestFit(runes []rune, width float64, suffix string, measure Measurer) int {
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if measure(string(runes[:mid])+suffix) <= width {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// MaxLines is how many lines of lineHeight fit into height, at least one.
func MaxLines(height, lineHeight float64) int {
	if lineHeight <= 0 {
		return 1
	}
	n := int(math.Floor(height/lineHeight + 1e-9))
	if n < 1 {
		n = 1
	}
	return n
}

// FitText wraps text into the box and, when it does not fit vertically,
// cuts it after the last visible line and ellipsises that line.
func FitText(text string, width, height, lineHeight float64, measure Measurer) []string {
	lines := WrapText(text, width, measure)
	limit := MaxLines(height, lineHeight)
	if len(lines) <= limit {
		return lines
	}
	visible := append([]string(nil), lines[:limit]...)
	visible[limit-1] = TruncateLine(visible[limit-1], width, measure)
	return visible
}
