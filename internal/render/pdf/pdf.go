// Package pdf draws badges as vector PDF with gofpdf.
package pdf

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"

	"github.com/jung-kurt/gofpdf"

	"badge-print-service/internal/colors"
	"badge-print-service/internal/models"
	"badge-print-service/internal/render"
)

const (
	Name        = "vector"
	ContentType = "application/pdf"

	placeholderGrey = 200
	trimGrey        = 120
	trimLineMm      = 0.1
)

// Renderer is a render.Strategy producing one PDF document.
type Renderer struct {
	opts   render.Options
	doc    *gofpdf.Fpdf
	fonts  render.Fonts
	log    *slog.Logger
	images map[string]bool
}

// New creates an empty document with the page size from opts.
func New(opts render.Options) *Renderer {
	opts = opts.WithDefaults()
	doc := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size: gofpdf.SizeType{
			Wd: opts.PageWidthMm,
			Ht: opts.PageHeightMm,
		},
	})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.SetCellMargin(0)
	doc.SetCreator("badge-print-service", true)

	return &Renderer{
		opts:   opts,
		doc:    doc,
		fonts:  render.SetupFonts(doc, opts.FontDir),
		log:    opts.Logger.With("strategy", Name),
		images: make(map[string]bool),
	}
}

func (r *Renderer) Name() string        { return Name }
func (r *Renderer) ContentType() string { return ContentType }

func (r *Renderer) BeginPage(number int) error {
	r.doc.AddPage()
	if err := r.doc.Error(); err != nil {
		return fmt.Errorf("pdf: add page %d: %w", number, err)
	}
	return nil
}

// DrawBadge draws the background, every item and the trim marks of one
// badge. Failures of single elements are logged and replaced by
// placeholders.
func (r *Renderer) DrawBadge(ctx context.Context, badge *render.Badge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cell := badge.Cell.Box()

	if bg := badge.Background; bg != nil && colors.Valid(bg.BgColor) {
		r.fill(cell, colors.ParseHex(bg.BgColor))
	}
	if badge.BackgroundURL != "" {
		r.safely(badge, "background", func() error {
			return r.drawImage(ctx, badge.BackgroundURL, cell)
		})
	}
	for i := range badge.Items {
		it := &badge.Items[i]
		r.safely(badge, it.Element.ID, func() error { return r.drawItem(ctx, it) })
	}

	r.drawTrimMarks(cell)
	return r.doc.Error()
}

// DrawBlank leaves an unfilled cell empty. The grid position is kept by the
// caller.
func (r *Renderer) DrawBlank(render.Cell) error { return nil }

func (r *Renderer) Finish(w io.Writer) error {
	if r.doc.PageCount() == 0 {
		r.doc.AddPage()
	}
	if err := r.doc.Output(w); err != nil {
		return fmt.Errorf("failed to output PDF: %w", err)
	}
	return nil
}

// safely runs one element draw, turning errors and panics into a log line.
// A failed gofpdf call poisons the document, so its error is cleared.
func (r *Renderer) safely(badge *render.Badge, element string, draw func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("element draw panicked", "registrant", badge.RegistrantID, "element", element, "panic", rec)
			r.doc.ClearError()
		}
	}()
	if err := draw(); err != nil {
		r.log.Warn("element draw failed", "registrant", badge.RegistrantID, "element", element, "error", err)
		r.doc.ClearError()
	}
}

func (r *Renderer) drawItem(ctx context.Context, it *render.Item) error {
	if it.Hidden() {
		return nil
	}
	switch it.Kind {
	case models.KindQR:
		return r.drawQR(it)
	case models.KindImage:
		if render.ImageSkippable(it.Value) {
			r.placeholder(it.Box, "")
			return nil
		}
		return r.drawImage(ctx, it.Text(), it.Box)
	case models.KindText, models.KindTextarea, models.KindSelect, models.KindCheckbox:
		if colors.Valid(it.Element.BgColor) {
			r.fill(it.Box, colors.ParseHex(it.Element.BgColor))
		}
		r.drawText(it)
		return nil
	default:
		return nil
	}
}

func (r *Renderer) drawText(it *render.Item) {
	text := it.Text()
	if text == "" || it.Box.W <= 0 || it.Box.H <= 0 {
		return
	}
	family := r.fonts.Family(it.Element.FontFamily)
	style := render.FontStyle(it.Element.Bold())
	measure := r.fonts.Measurer(r.doc, family, style, it.FontPt)

	c := colors.ParseHex(it.Element.Color)
	r.doc.SetTextColor(c.R, c.G, c.B)

	lines := render.FitText(text, it.Box.W, it.Box.H, it.LineHeightMm, measure)
	y := it.Box.Y
	if block := float64(len(lines)) * it.LineHeightMm; block < it.Box.H {
		y += (it.Box.H - block) / 2
	}
	align := render.TextAlign(it.Element.TextAlign) + "M"
	for i, line := range lines {
		r.doc.SetXY(it.Box.X, y+float64(i)*it.LineHeightMm)
		r.doc.CellFormat(it.Box.W, it.LineHeightMm, r.fonts.Encode(line), "", 0, align, false, 0, "")
	}
}

func (r *Renderer) drawQR(it *render.Item) error {
	square := render.SquareIn(it.Box)
	img, err := r.opts.QR.GetOrCreate(it.Text(), render.QROptions(*it, r.opts.Oversample))
	if err != nil {
		r.placeholder(square, "QR Error")
		return err
	}
	name := "qr_" + digest(img.Key)
	if err := r.register(name, img.PNG); err != nil {
		r.placeholder(square, "QR Error")
		return err
	}
	r.doc.ImageOptions(name, square.X, square.Y, square.W, square.H, false,
		gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	return nil
}

// drawImage embeds url fitted to box, or a bordered placeholder when the
// asset cannot be loaded.
func (r *Renderer) drawImage(ctx context.Context, url string, box render.Box) error {
	if box.W <= 0 || box.H <= 0 {
		return nil
	}
	if r.opts.Assets == nil {
		r.placeholder(box, "")
		return fmt.Errorf("no asset store for %s", url)
	}
	data, err := r.opts.Assets.ImagePNG(ctx, url, box.W, box.H, r.opts.DPI)
	if err != nil {
		r.placeholder(box, "")
		return err
	}
	name := fmt.Sprintf("img_%s_%.1f_%.1f", digest(url), box.W, box.H)
	if err := r.register(name, data); err != nil {
		r.placeholder(box, "")
		return err
	}
	r.doc.ImageOptions(name, box.X, box.Y, box.W, box.H, false,
		gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	return nil
}

func (r *Renderer) register(name string, png []byte) error {
	if r.images[name] {
		return nil
	}
	info := r.doc.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))
	if info == nil || !r.doc.Ok() {
		return fmt.Errorf("failed to register image %s: %v", name, r.doc.Error())
	}
	r.images[name] = true
	return nil
}

// placeholder draws a light bordered box with an optional centred label.
func (r *Renderer) placeholder(box render.Box, label string) {
	if box.W <= 0 || box.H <= 0 {
		return
	}
	r.doc.SetLineWidth(0.2)
	r.doc.SetDashPattern([]float64{}, 0)
	r.doc.SetDrawColor(placeholderGrey, placeholderGrey, placeholderGrey)
	r.doc.SetFillColor(245, 245, 245)
	r.doc.Rect(box.X, box.Y, box.W, box.H, "FD")
	if label == "" {
		return
	}
	r.doc.SetFont(r.fonts.Family(""), "B", 8)
	r.doc.SetTextColor(200, 0, 0)
	r.doc.SetXY(box.X, box.Y)
	r.doc.CellFormat(box.W, box.H, r.fonts.Encode(label), "", 0, "CM", false, 0, "")
}

func (r *Renderer) fill(box render.Box, c colors.RGB) {
	r.doc.SetFillColor(c.R, c.G, c.B)
	r.doc.Rect(box.X, box.Y, box.W, box.H, "F")
}

func (r *Renderer) drawTrimMarks(cell render.Box) {
	segments := render.TrimMarkSegments(cell, r.opts.TrimMarks)
	if len(segments) == 0 {
		return
	}
	r.doc.SetLineWidth(trimLineMm)
	r.doc.SetDrawColor(trimGrey, trimGrey, trimGrey)
	if r.opts.TrimMarks == models.TrimDotted {
		r.doc.SetDashPattern([]float64{0.5, 0.5}, 0)
	}
	for _, s := range segments {
		r.doc.Line(s.X1, s.Y1, s.X2, s.Y2)
	}
	r.doc.SetDashPattern([]float64{}, 0)
}

func digest(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:8])
}
