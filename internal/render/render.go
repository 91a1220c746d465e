// Package render holds what the badge drawing strategies share: the cell
// geometry, element resolution into positioned items, text fitting and trim
// marks. Strategies (vector PDF, printable HTML) only issue draw calls.
package render

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"badge-print-service/internal/models"
	"badge-print-service/internal/parser"
	"badge-print-service/internal/qrcache"
	"badge-print-service/internal/resolver"
	"badge-print-service/internal/units"
)

const (
	DefaultDPI        = 300
	DefaultOversample = 3
)

// Strategy draws composed badges into one output document.
type Strategy interface {
	Name() string
	ContentType() string
	BeginPage(number int) error
	DrawBadge(ctx context.Context, badge *Badge) error
	// DrawBlank keeps an unfilled cell of a partial page.
	DrawBlank(cell Cell) error
	Finish(w io.Writer) error
}

// Assets loads images for embedding.
type Assets interface {
	ImagePNG(ctx context.Context, url string, widthMM, heightMM float64, dpi int) ([]byte, error)
}

// Options are shared by all strategies.
type Options struct {
	PageWidthMm  float64
	PageHeightMm float64
	TrimMarks    models.TrimMarks
	Assets       Assets
	QR           *qrcache.Cache
	Oversample   float64
	DPI          int
	FontDir      string
	Logger       *slog.Logger
}

func (o Options) WithDefaults() Options {
	if o.Oversample <= 0 {
		o.Oversample = DefaultOversample
	}
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	if o.QR == nil {
		o.QR = qrcache.New()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.TrimMarks == "" {
		o.TrimMarks = models.TrimNone
	}
	return o
}

// Mode selects the layers to draw.
type Mode struct {
	ShowBackground bool
	ShowContent    bool
}

// ModeFor maps a format: print draws the background layer only, both draws
// background and content.
func ModeFor(f models.Format) Mode {
	if f == models.FormatPrint {
		return Mode{ShowBackground: true}
	}
	return Mode{ShowBackground: true, ShowContent: true}
}

// Item is one resolved, positioned element.
type Item struct {
	Element      models.Element
	Kind         models.ElementKind
	Layer        models.Layer
	Box          Box
	Value        *string
	FontPt       float64
	LineHeightMm float64
}

// Text returns the resolved value or "".
func (it Item) Text() string {
	if it.Value == nil {
		return ""
	}
	return *it.Value
}

// Hidden reports a null value: the element draws nothing, not even a
// placeholder.
func (it Item) Hidden() bool { return it.Value == nil }

// Badge is a fully composed badge ready for drawing.
type Badge struct {
	Cell          Cell
	RegistrantID  string
	BackgroundURL string
	Background    *models.Element
	Items         []Item
}

// Composer resolves and positions template elements for a registrant.
type Composer struct {
	Resolver *resolver.Resolver
	Event    *models.EventContext
	Mode     Mode
}

// Compose builds the badge for one cell. Background items come first so
// content is drawn on top.
func (c Composer) Compose(layers *parser.Layers, reg models.Registrant, cell Cell) *Badge {
	badge := &Badge{Cell: cell, RegistrantID: reg.ID()}
	if layers == nil {
		return badge
	}
	tr := NewTransform(cell, layers.WidthCm, layers.HeightCm)

	if c.Mode.ShowBackground {
		badge.BackgroundURL = layers.BackgroundURL
		badge.Background = layers.Background
		for i := range layers.BackgroundLayer {
			badge.Items = append(badge.Items, c.item(&layers.BackgroundLayer[i], reg, tr))
		}
	}
	if c.Mode.ShowContent {
		for i := range layers.Content {
			badge.Items = append(badge.Items, c.item(&layers.Content[i], reg, tr))
		}
	}
	return badge
}

func (c Composer) item(el *models.Element, reg models.Registrant, tr Transform) Item {
	fontPt := FontSizePt(el.Style, tr.ScaleY)
	it := Item{
		Element:      *el,
		Kind:         el.Kind(),
		Layer:        el.Layer(),
		Box:          tr.Apply(el),
		FontPt:       fontPt,
		LineHeightMm: LineHeightMm(el.Style, fontPt, tr.ScaleY),
	}
	if c.Resolver != nil {
		it.Value = c.Resolver.Resolve(el, reg, c.Event)
	}
	return it
}

// QROptions are the cache options for a QR item. The pixel size is the
// square side oversampled for print quality.
func QROptions(it Item, oversample float64) qrcache.Options {
	if oversample <= 0 {
		oversample = DefaultOversample
	}
	fg := it.Element.FgColor
	if fg == "" {
		fg = it.Element.Color
	}
	return qrcache.Options{
		Size:          units.MmToPx(SquareIn(it.Box).W) * oversample,
		BgColor:       it.Element.BgColor,
		FgColor:       fg,
		Level:         it.Element.QRLevel,
		IncludeMargin: it.Element.QRMargin,
	}
}

// ImageSkippable reports whether an image value must not be embedded: no
// value, a browser blob: URL, or the sample placeholder.
func ImageSkippable(value *string) bool {
	if value == nil {
		return true
	}
	v := strings.TrimSpace(*value)
	return v == "" || strings.HasPrefix(v, "blob:") || v == resolver.PlaceholderText
}

// TextAlign normalises CSS text-align to L, C or R.
func TextAlign(align string) string {
	switch strings.ToLower(align) {
	case "center":
		return "C"
	case "right", "end":
		return "R"
	default:
		return "L"
	}
}
