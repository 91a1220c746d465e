package render

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const utf8Family = "BadgeSans"

// utf8Fonts are the regular/bold TTF pairs looked up in the font dir.
var utf8Fonts = [][2]string{
	{"DejaVuSans.ttf", "DejaVuSans-Bold.ttf"},
	{"arial.ttf", "arialbd.ttf"},
}

// Fonts picks the faces used for badge text. With a UTF-8 TTF available
// every element uses it; otherwise text is mapped onto the PDF core fonts
// and translated to cp1252.
type Fonts struct {
	utf8      bool
	translate func(string) string
}

// SetupFonts registers UTF-8 fonts from dir on pdf when present.
func SetupFonts(pdf *gofpdf.Fpdf, dir string) Fonts {
	if dir != "" {
		for _, pair := range utf8Fonts {
			regular := filepath.Join(dir, pair[0])
			if _, err := os.Stat(regular); err != nil {
				continue
			}
			pdf.AddUTF8Font(utf8Family, "", regular)
			bold := filepath.Join(dir, pair[1])
			if _, err := os.Stat(bold); err != nil {
				bold = regular
			}
			pdf.AddUTF8Font(utf8Family, "B", bold)
			if pdf.Ok() {
				return Fonts{utf8: true, translate: func(s string) string { return s }}
			}
			pdf.ClearError()
		}
	}
	return Fonts{translate: pdf.UnicodeTranslatorFromDescriptor("")}
}

// Family maps a CSS font-family list onto a registered family.
func (f Fonts) Family(css string) string {
	if f.utf8 {
		return utf8Family
	}
	css = strings.ToLower(css)
	switch {
	case strings.Contains(css, "courier"), strings.Contains(css, "mono"):
		return "Courier"
	case strings.Contains(css, "times"), strings.Contains(css, "georgia"),
		strings.Contains(css, "serif") && !strings.Contains(css, "sans-serif"):
		return "Times"
	default:
		return "Helvetica"
	}
}

// Encode converts UTF-8 text for the selected fonts.
func (f Fonts) Encode(s string) string { return f.translate(s) }

// Measurer sets the font on pdf and returns a width function for it.
func (f Fonts) Measurer(pdf *gofpdf.Fpdf, family, style string, sizePt float64) Measurer {
	pdf.SetFont(family, style, sizePt)
	return func(s string) float64 { return pdf.GetStringWidth(f.Encode(s)) }
}

// FontStyle returns the gofpdf style string for an element style.
func FontStyle(bold bool) string {
	if bold {
		return "B"
	}
	return ""
}
