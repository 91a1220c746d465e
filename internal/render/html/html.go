// Package html draws badges into one printable HTML document. Geometry and
// line breaking are shared with the vector strategy, so a printed page
// matches the PDF cell for cell.
package html

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"badge-print-service/internal/colors"
	"badge-print-service/internal/models"
	"badge-print-service/internal/render"
)

const (
	Name        = "html"
	ContentType = "text/html; charset=utf-8"
)

var cssFamilies = map[string]string{
	"Helvetica": "Helvetica, Arial, sans-serif",
	"Times":     "'Times New Roman', Times, serif",
	"Courier":   "'Courier New', Courier, monospace",
}

type box struct {
	X, Y, W, H float64
}

func toBox(b render.Box) box { return box{X: b.X, Y: b.Y, W: b.W, H: b.H} }

type item struct {
	ID          string
	Box         box
	Style       template.CSS
	Lines       []string
	Image       template.URL
	Placeholder string
}

type badge struct {
	Box        box
	Registrant string
	Fill       template.CSS
	Background template.URL
	// MissingBackground draws the placeholder the PDF uses for an
	// unavailable background.
	MissingBackground bool
	Items             []item
}

type line struct {
	X1, Y1, X2, Y2 float64
}

type page struct {
	Number int
	Badges []badge
	Blanks []box
	Marks  []line
}

type document struct {
	Title    string
	WidthMm  float64
	HeightMm float64
	Dotted   bool
	Pages    []*page
}

// Renderer is a render.Strategy producing an HTML document. Pages are kept
// in memory until Finish.
type Renderer struct {
	opts    render.Options
	metrics *gofpdf.Fpdf
	fonts   render.Fonts
	log     *slog.Logger
	doc     document
}

// New creates an empty printable document.
func New(opts render.Options) *Renderer {
	opts = opts.WithDefaults()
	metrics := gofpdf.New("P", "mm", "A4", "")
	return &Renderer{
		opts:    opts,
		metrics: metrics,
		fonts:   render.SetupFonts(metrics, opts.FontDir),
		log:     opts.Logger.With("strategy", Name),
		doc: document{
			Title:    "Badges",
			WidthMm:  opts.PageWidthMm,
			HeightMm: opts.PageHeightMm,
			Dotted:   opts.TrimMarks == models.TrimDotted,
		},
	}
}

func (r *Renderer) Name() string        { return Name }
func (r *Renderer) ContentType() string { return ContentType }

func (r *Renderer) BeginPage(number int) error {
	r.doc.Pages = append(r.doc.Pages, &page{Number: number})
	return nil
}

func (r *Renderer) current() (*page, error) {
	if len(r.doc.Pages) == 0 {
		return nil, fmt.Errorf("html: no page started")
	}
	return r.doc.Pages[len(r.doc.Pages)-1], nil
}

func (r *Renderer) DrawBadge(ctx context.Context, b *render.Badge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := r.current()
	if err != nil {
		return err
	}
	cell := b.Cell.Box()
	out := badge{Box: toBox(cell), Registrant: b.RegistrantID}

	if bg := b.Background; bg != nil && colors.Valid(bg.BgColor) {
		out.Fill = template.CSS("background-color:" + colors.ParseHex(bg.BgColor).Hex())
	}
	if b.BackgroundURL != "" {
		if src, err := r.imageSource(ctx, b.BackgroundURL, cell); err != nil {
			r.log.Warn("background unavailable", "registrant", b.RegistrantID, "url", b.BackgroundURL, "error", err)
			out.MissingBackground = true
		} else {
			out.Background = src
		}
	}
	for i := range b.Items {
		if it, ok := r.item(ctx, b, &b.Items[i]); ok {
			out.Items = append(out.Items, it)
		}
	}
	p.Badges = append(p.Badges, out)
	for _, s := range render.TrimMarkSegments(cell, r.opts.TrimMarks) {
		p.Marks = append(p.Marks, line(s))
	}
	return nil
}

// DrawBlank records an empty slot so the printed grid keeps its alignment.
func (r *Renderer) DrawBlank(cell render.Cell) error {
	p, err := r.current()
	if err != nil {
		return err
	}
	p.Blanks = append(p.Blanks, toBox(cell.Box()))
	return nil
}

func (r *Renderer) Finish(w io.Writer) error {
	if err := pageTemplate.Execute(w, r.doc); err != nil {
		return fmt.Errorf("html: execute template: %w", err)
	}
	return nil
}

func (r *Renderer) item(ctx context.Context, b *render.Badge, it *render.Item) (out item, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("element draw panicked", "registrant", b.RegistrantID, "element", it.Element.ID, "panic", rec)
			out, ok = item{ID: it.Element.ID, Box: toBox(it.Box), Placeholder: " "}, true
		}
	}()
	if it.Hidden() {
		return item{}, false
	}
	out = item{ID: it.Element.ID, Box: toBox(it.Box)}

	switch it.Kind {
	case models.KindQR:
		square := render.SquareIn(it.Box)
		out.Box = toBox(square)
		img, err := r.opts.QR.GetOrCreate(it.Text(), render.QROptions(*it, r.opts.Oversample))
		if err != nil {
			r.log.Warn("qr encode failed", "registrant", b.RegistrantID, "element", it.Element.ID, "error", err)
			out.Placeholder = "QR Error"
			return out, true
		}
		out.Image = dataURI(img.PNG)
	case models.KindImage:
		if render.ImageSkippable(it.Value) {
			out.Placeholder = " "
			return out, true
		}
		src, err := r.imageSource(ctx, it.Text(), it.Box)
		if err != nil {
			r.log.Warn("image unavailable", "registrant", b.RegistrantID, "element", it.Element.ID, "error", err)
			out.Placeholder = " "
			return out, true
		}
		out.Image = src
	case models.KindText, models.KindTextarea, models.KindSelect, models.KindCheckbox:
		out.Style, out.Lines = r.text(it)
	default:
		return item{}, false
	}
	return out, true
}

// text lays the value out with the same font metrics the PDF uses.
func (r *Renderer) text(it *render.Item) (template.CSS, []string) {
	family := r.fonts.Family(it.Element.FontFamily)
	weight := render.FontStyle(it.Element.Bold())
	measure := r.fonts.Measurer(r.metrics, family, weight, it.FontPt)

	var lines []string
	if text := it.Text(); text != "" && it.Box.W > 0 && it.Box.H > 0 {
		lines = render.FitText(text, it.Box.W, it.Box.H, it.LineHeightMm, measure)
	}

	css := cssFamilies[family]
	if css == "" {
		css = cssFamilies["Helvetica"]
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "font-family:%s;font-size:%.2fpt;line-height:%.3fmm;color:%s;",
		css, it.FontPt, it.LineHeightMm, colors.ParseHex(it.Element.Color).Hex())
	if it.Element.Bold() {
		sb.WriteString("font-weight:bold;")
	}
	switch render.TextAlign(it.Element.TextAlign) {
	case "C":
		sb.WriteString("text-align:center;")
	case "R":
		sb.WriteString("text-align:right;")
	}
	if colors.Valid(it.Element.BgColor) {
		fmt.Fprintf(&sb, "background-color:%s;", colors.ParseHex(it.Element.BgColor).Hex())
	}
	return template.CSS(sb.String()), lines
}

// imageSource inlines the asset as a PNG data URI so the document prints
// without network access.
func (r *Renderer) imageSource(ctx context.Context, url string, b render.Box) (template.URL, error) {
	if strings.HasPrefix(url, "blob:") {
		return "", fmt.Errorf("blob URL %s", url)
	}
	if r.opts.Assets == nil {
		if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
			return template.URL(url), nil
		}
		return "", fmt.Errorf("no asset store for %s", url)
	}
	data, err := r.opts.Assets.ImagePNG(ctx, url, b.W, b.H, r.opts.DPI)
	if err != nil {
		return "", err
	}
	return dataURI(data), nil
}

func dataURI(png []byte) template.URL {
	var buf bytes.Buffer
	buf.WriteString("data:image/png;base64,")
	buf.WriteString(base64.StdEncoding.EncodeToString(png))
	return template.URL(buf.String())
}

var pageTemplate = template.Must(template.New("badges").Funcs(template.FuncMap{
	"mm":  func(v float64) string { return fmt.Sprintf("%.2fmm", v) },
	"num": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"sub": func(a, b float64) float64 { return a - b },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
@page { size: {{mm .WidthMm}} {{mm .HeightMm}}; margin: 0; }
html, body { margin: 0; padding: 0; }
.page { position: relative; overflow: hidden; width: {{mm .WidthMm}}; height: {{mm .HeightMm}}; page-break-after: always; break-after: page; }
.page:last-child { page-break-after: auto; break-after: auto; }
.badge, .blank, .el { position: absolute; box-sizing: border-box; overflow: hidden; }
.badge > img.bg { position: absolute; left: 0; top: 0; width: 100%; height: 100%; object-fit: cover; }
.el img { width: 100%; height: 100%; object-fit: cover; display: block; }
.el.text { display: flex; flex-direction: column; justify-content: center; }
.el.text div { white-space: pre; }
.placeholder { border: 0.2mm solid #c8c8c8; background: #f5f5f5; color: #c80000; font: bold 8pt Helvetica, Arial, sans-serif; display: flex; align-items: center; justify-content: center; }
svg.marks { position: absolute; left: 0; top: 0; pointer-events: none; }
@media print { .page { margin: 0; } }
</style>
</head>
<body>
{{- range .Pages}}
<div class="page" data-page="{{.Number}}">
{{- range .Badges}}
<div class="badge" data-registrant="{{.Registrant}}" style="left:{{mm .Box.X}};top:{{mm .Box.Y}};width:{{mm .Box.W}};height:{{mm .Box.H}};{{.Fill}}">
{{- if .Background}}<img class="bg" src="{{.Background}}" alt="">{{end}}
{{- if .MissingBackground}}<div class="el placeholder bg" data-element="background" style="left:0;top:0;width:100%;height:100%"></div>{{end}}
{{- $origin := .Box}}
{{- range .Items}}
{{- if .Placeholder}}
<div class="el placeholder" data-element="{{.ID}}" style="left:{{mm (sub .Box.X $origin.X)}};top:{{mm (sub .Box.Y $origin.Y)}};width:{{mm .Box.W}};height:{{mm .Box.H}}">{{.Placeholder}}</div>
{{- else if .Image}}
<div class="el" data-element="{{.ID}}" style="left:{{mm (sub .Box.X $origin.X)}};top:{{mm (sub .Box.Y $origin.Y)}};width:{{mm .Box.W}};height:{{mm .Box.H}}"><img src="{{.Image}}" alt=""></div>
{{- else}}
<div class="el text" data-element="{{.ID}}" style="left:{{mm (sub .Box.X $origin.X)}};top:{{mm (sub .Box.Y $origin.Y)}};width:{{mm .Box.W}};height:{{mm .Box.H}};{{.Style}}">
{{- range .Lines}}<div>{{.}}</div>{{end -}}
</div>
{{- end}}
{{- end}}
</div>
{{- end}}
{{- range .Blanks}}
<div class="blank" style="left:{{mm .X}};top:{{mm .Y}};width:{{mm .W}};height:{{mm .H}}"></div>
{{- end}}
{{- if .Marks}}
<svg class="marks" width="{{mm $.WidthMm}}" height="{{mm $.HeightMm}}" viewBox="0 0 {{num $.WidthMm}} {{num $.HeightMm}}">
{{- range .Marks}}
<line x1="{{num .X1}}" y1="{{num .Y1}}" x2="{{num .X2}}" y2="{{num .Y2}}" stroke="#787878" stroke-width="0.1"{{if $.Dotted}} stroke-dasharray="0.5 0.5"{{end}}/>
{{- end}}
</svg>
{{- end}}
</div>
{{- end}}
</body>
</html>
`))
