// Package generator assembles badge documents: it partitions registrants
// into grid pages, composes every badge and hands the draw calls to a
// render strategy.
package generator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"badge-print-service/internal/cache"
	"badge-print-service/internal/grid"
	"badge-print-service/internal/models"
	"badge-print-service/internal/parser"
	"badge-print-service/internal/qrcache"
	"badge-print-service/internal/render"
	"badge-print-service/internal/render/html"
	"badge-print-service/internal/render/pdf"
	"badge-print-service/internal/resolver"
	"badge-print-service/internal/tracker"
)

const DefaultTrackTimeout = 5 * time.Second

var (
	ErrNoRegistrants = errors.New("generator: no registrants to render")
	ErrTooMany       = errors.New("generator: too many registrants")
)

// Output selects the render strategy.
type Output string

const (
	OutputPDF  Output = "pdf"
	OutputHTML Output = "html"
)

// Request is one generation run.
type Request struct {
	Template    models.BadgeTemplate
	Registrants []models.Registrant
	Event       *models.EventContext
	Settings    models.LayoutSettings
	Output      Output
	// Mode overrides the layers derived from Settings.Format.
	Mode *render.Mode
	// EventID and TicketID scope the "new" filter and counter updates.
	EventID  string
	TicketID string
}

// Cell is one grid slot; a nil Registrant is a blank placeholder.
type Cell struct {
	Index      int
	Col, Row   int
	XMm, YMm   float64
	Registrant models.Registrant
}

func (c Cell) Blank() bool { return c.Registrant == nil }

type Page struct {
	Number int
	Cells  []Cell
}

// Result is a finished document. It is only produced when every page
// rendered.
type Result struct {
	Document      []byte
	ContentType   string
	Pages         int
	Badges        int
	Layout        grid.Layout
	RegistrantIDs []string
	QR            qrcache.Stats
	Elapsed       time.Duration
}

// Config wires a Generator.
type Config struct {
	Templates      *parser.Cache
	Resolver       *resolver.Resolver
	Assets         render.Assets
	Tracker        *tracker.Tracker
	FontDir        string
	QRWorkers      int
	Oversample     float64
	MaxRegistrants int
	// TrackTimeout bounds counter notification after a run.
	TrackTimeout time.Duration
	Logger       *slog.Logger
}

// Preloader warms image renditions ahead of drawing.
type Preloader interface {
	PreloadImages(ctx context.Context, requests []cache.ImageRequest) map[string][]byte
}

type Generator struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config) *Generator {
	if cfg.Templates == nil {
		cfg.Templates = parser.NewCache(10*time.Minute, "")
	}
	if cfg.Resolver == nil {
		cfg.Resolver = resolver.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QRWorkers <= 0 {
		cfg.QRWorkers = 8
	}
	if cfg.TrackTimeout <= 0 {
		cfg.TrackTimeout = DefaultTrackTimeout
	}
	return &Generator{cfg: cfg, log: cfg.Logger.With("component", "generator")}
}

// Paginate partitions registrants into pages of layout.BadgesPerPage. The
// last page is padded with blank cells so the grid stays aligned.
func Paginate(layout grid.Layout, registrants []models.Registrant) []Page {
	per := layout.BadgesPerPage
	if per <= 0 || len(registrants) == 0 {
		return nil
	}
	chunks := lo.Chunk(registrants, per)
	pages := make([]Page, len(chunks))
	for p, chunk := range chunks {
		cells := make([]Cell, per)
		for i := range cells {
			col, row := layout.CellPosition(i)
			x, y := layout.CellOrigin(i)
			cells[i] = Cell{Index: i, Col: col, Row: row, XMm: x, YMm: y}
			if i < len(chunk) {
				cells[i].Registrant = chunk[i]
			}
		}
		pages[p] = Page{Number: p + 1, Cells: cells}
	}
	return pages
}

// Generate renders the whole run. Cancellation is checked between pages;
// a canceled or failed run returns no document.
func (g *Generator) Generate(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			g.log.Error("generation panicked", "panic", rec)
			res, err = nil, fmt.Errorf("generator: render failed: %v", rec)
		}
	}()

	settings := req.Settings.WithDefaults()
	registrants, err := g.selectRegistrants(ctx, req, settings)
	if err != nil {
		return nil, err
	}

	layers := g.cfg.Templates.Get(&req.Template)
	layout := grid.ForSettings(settings, layers.WidthCm, layers.HeightCm)
	if settings.Preview && len(registrants) > layout.BadgesPerPage {
		registrants = registrants[:layout.BadgesPerPage]
	}
	pages := Paginate(layout, registrants)

	mode := render.ModeFor(settings.Format)
	if req.Mode != nil {
		mode = *req.Mode
	}
	composer := render.Composer{Resolver: g.cfg.Resolver, Event: req.Event, Mode: mode}

	// one QR cache per run, dropped with the strategy
	qr := qrcache.New()
	defer qr.Clear()

	badges := g.compose(composer, layers, layout, pages)
	if err := qr.Prewarm(ctx, g.qrRequests(badges), g.cfg.QRWorkers); err != nil {
		return nil, err
	}
	if p, ok := g.cfg.Assets.(Preloader); ok {
		warmed := p.PreloadImages(ctx, imageRequests(badges))
		g.log.Debug("images preloaded", "count", len(warmed))
	}

	strategy := g.strategy(req.Output, render.Options{
		PageWidthMm:  layout.PageWidthMm,
		PageHeightMm: layout.PageHeightMm,
		TrimMarks:    settings.TrimMarks,
		Assets:       g.cfg.Assets,
		QR:           qr,
		Oversample:   g.cfg.Oversample,
		FontDir:      g.cfg.FontDir,
		Logger:       g.cfg.Logger,
	})

	for p, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := strategy.BeginPage(page.Number); err != nil {
			return nil, err
		}
		for i, cell := range page.Cells {
			if cell.Blank() {
				if err := strategy.DrawBlank(renderCell(layout, cell)); err != nil {
					return nil, err
				}
				continue
			}
			if err := strategy.DrawBadge(ctx, badges[p][i]); err != nil {
				return nil, fmt.Errorf("generator: page %d cell %d: %w", page.Number, i, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := strategy.Finish(&buf); err != nil {
		return nil, err
	}

	res = &Result{
		Document:      buf.Bytes(),
		ContentType:   strategy.ContentType(),
		Pages:         len(pages),
		Badges:        len(registrants),
		Layout:        layout,
		RegistrantIDs: lo.Map(registrants, func(r models.Registrant, _ int) string { return r.ID() }),
		QR:            qr.Stats(),
		Elapsed:       time.Since(start),
	}
	g.log.Info("badges generated",
		"strategy", strategy.Name(),
		"pages", res.Pages,
		"badges", res.Badges,
		"grid", fmt.Sprintf("%dx%d", layout.Cols, layout.Rows),
		"qr_hits", res.QR.Hits,
		"qr_misses", res.QR.Misses,
		"elapsed", res.Elapsed,
	)

	if !settings.Preview {
		g.track(ctx, req, settings, registrants)
	}
	return res, nil
}

// selectRegistrants drops null entries, then applies the request limit and
// the "new" filter.
func (g *Generator) selectRegistrants(ctx context.Context, req Request, settings models.LayoutSettings) ([]models.Registrant, error) {
	registrants := lo.Filter(req.Registrants, func(r models.Registrant, _ int) bool { return len(r) > 0 })
	if dropped := len(req.Registrants) - len(registrants); dropped > 0 {
		g.log.Warn("skipping empty registrants", "count", dropped)
	}
	if g.cfg.MaxRegistrants > 0 && len(registrants) > g.cfg.MaxRegistrants {
		return nil, fmt.Errorf("%w: %d exceeds limit %d", ErrTooMany, len(registrants), g.cfg.MaxRegistrants)
	}
	if settings.FilterMode == models.FilterNew && g.cfg.Tracker != nil {
		filtered, err := g.cfg.Tracker.FilterNew(ctx, req.EventID, req.TicketID, registrants)
		if err != nil {
			// an unavailable store yields an empty selection, never a crash
			g.log.Warn("new-only filter unavailable", "event", req.EventID, "ticket", req.TicketID, "error", err)
			filtered = nil
		}
		registrants = filtered
	}
	if len(registrants) == 0 {
		return nil, ErrNoRegistrants
	}
	return registrants, nil
}

func (g *Generator) compose(c render.Composer, layers *parser.Layers, layout grid.Layout, pages []Page) [][]*render.Badge {
	out := make([][]*render.Badge, len(pages))
	for p, page := range pages {
		out[p] = make([]*render.Badge, len(page.Cells))
		for i, cell := range page.Cells {
			if cell.Blank() {
				continue
			}
			out[p][i] = c.Compose(layers, cell.Registrant, renderCell(layout, cell))
		}
	}
	return out
}

func (g *Generator) qrRequests(badges [][]*render.Badge) []qrcache.Request {
	var reqs []qrcache.Request
	for _, page := range badges {
		for _, b := range page {
			if b == nil {
				continue
			}
			for _, it := range b.Items {
				if it.Kind != models.KindQR || it.Hidden() {
					continue
				}
				reqs = append(reqs, qrcache.Request{Value: it.Text(), Options: render.QROptions(it, g.cfg.Oversample)})
			}
		}
	}
	return reqs
}

// imageRequests lists every embeddable image at the box it is drawn into,
// so the renditions match what the strategies ask for.
func imageRequests(badges [][]*render.Badge) []cache.ImageRequest {
	var reqs []cache.ImageRequest
	add := func(url string, box render.Box) {
		if box.W > 0 && box.H > 0 {
			reqs = append(reqs, cache.ImageRequest{URL: url, Width: box.W, Height: box.H, DPI: render.DefaultDPI})
		}
	}
	for _, page := range badges {
		for _, b := range page {
			if b == nil {
				continue
			}
			if b.BackgroundURL != "" {
				add(b.BackgroundURL, b.Cell.Box())
			}
			for _, it := range b.Items {
				if it.Kind == models.KindImage && !render.ImageSkippable(it.Value) {
					add(it.Text(), it.Box)
				}
			}
		}
	}
	return lo.UniqBy(reqs, func(r cache.ImageRequest) string {
		return fmt.Sprintf("%s_%.1f_%.1f", r.URL, r.Width, r.Height)
	})
}

func (g *Generator) strategy(out Output, opts render.Options) render.Strategy {
	if out == OutputHTML {
		return html.New(opts)
	}
	return pdf.New(opts)
}

func (g *Generator) track(ctx context.Context, req Request, settings models.LayoutSettings, registrants []models.Registrant) {
	if g.cfg.Tracker == nil {
		return
	}
	action := tracker.ActionDownload
	if req.Output == OutputHTML {
		action = tracker.ActionPrint
	}
	// the document is done; a client hanging up must not lose the counts,
	// and slow transports must not hold the response for long
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.TrackTimeout)
	defer cancel()
	_ = g.cfg.Tracker.Record(ctx, tracker.Batch{
		EventID:     req.EventID,
		TicketID:    req.TicketID,
		Action:      action,
		IsNewOnly:   settings.FilterMode == models.FilterNew,
		Registrants: registrants,
	})
}

func renderCell(layout grid.Layout, c Cell) render.Cell {
	return render.Cell{
		Index:    c.Index,
		Col:      c.Col,
		Row:      c.Row,
		XMm:      c.XMm,
		YMm:      c.YMm,
		WidthMm:  layout.BadgeWidthMm,
		HeightMm: layout.BadgeHeightMm,
	}
}
