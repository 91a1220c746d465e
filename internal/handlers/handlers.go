package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"badge-print-service/internal/apperr"
	"badge-print-service/internal/cache"
	"badge-print-service/internal/generator"
	"badge-print-service/internal/grid"
	"badge-print-service/internal/models"
	"badge-print-service/internal/parser"
	"badge-print-service/internal/resolver"
)

const Version = "2.0.0"

// Deps are the services the HTTP layer delegates to.
type Deps struct {
	Generator *generator.Generator
	Store     *cache.Store
	Templates *parser.Cache
	Resolver  *resolver.Resolver
	CDNBase   string
	Logger    *slog.Logger
}

// Handler serves the badge API.
type Handler struct {
	Deps
	log       *slog.Logger
	startTime time.Time
}

func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Resolver == nil {
		d.Resolver = resolver.New(resolver.WithCDNBase(d.CDNBase))
	}
	if d.Templates == nil {
		d.Templates = parser.NewCache(10*time.Minute, d.CDNBase)
	}
	if d.Generator == nil {
		d.Generator = generator.New(generator.Config{
			Templates: d.Templates,
			Resolver:  d.Resolver,
			Logger:    d.Logger,
		})
	}
	return &Handler{Deps: d, log: d.Logger.With("component", "http"), startTime: time.Now()}
}

// Register mounts every route on app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/", h.Index)
	app.Get("/health", h.HealthCheck)

	api := app.Group("/api")
	api.Post("/layout", h.Layout)

	badges := api.Group("/badges")
	badges.Post("/parse", h.ParseTemplate)
	badges.Post("/resolve", h.Resolve)
	badges.Post("/preview", h.Preview)
	badges.Post("/download", h.Download)
	badges.Post("/print", h.Print)

	api.Get("/cache/stats", h.CacheStats)
	api.Post("/cache/clear", h.ClearCache)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Not found",
			"path":  c.Path(),
		})
	})
}

func (h *Handler) Index(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "Badge Print Service",
		"version": Version,
		"status":  "running",
	})
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(models.HealthResponse{
		Status:  "healthy",
		Version: Version,
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Layout computes the grid for a paper size and badge size.
func (h *Handler) Layout(c *fiber.Ctx) error {
	var req models.LayoutRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("Invalid request body", err)
	}
	if req.BadgeWidthCm <= 0 {
		req.BadgeWidthCm = models.DefaultBadgeWidthCm
	}
	if req.BadgeHeightCm <= 0 {
		req.BadgeHeightCm = models.DefaultBadgeHeightCm
	}
	settings := models.LayoutSettings{PaperSize: req.PaperSize, Orientation: req.Orientation}.WithDefaults()
	return c.JSON(grid.ForSettings(settings, req.BadgeWidthCm, req.BadgeHeightCm))
}

// ParseTemplate returns the layer split of a template.
func (h *Handler) ParseTemplate(c *fiber.Ctx) error {
	var tpl models.BadgeTemplate
	if err := c.BodyParser(&tpl); err != nil {
		return apperr.BadRequest("Invalid template", err)
	}
	layers := h.Templates.Get(&tpl)
	return c.JSON(fiber.Map{
		"background":      layers.Background,
		"backgroundLayer": layers.BackgroundLayer,
		"content":         layers.Content,
		"backgroundUrl":   layers.BackgroundURL,
		"width":           layers.WidthCm,
		"height":          layers.HeightCm,
		"count":           layers.Count(),
	})
}

// Resolve shows the value every element takes for one registrant.
func (h *Handler) Resolve(c *fiber.Ctx) error {
	var req models.ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("Invalid request body", err)
	}
	layers := h.Templates.Get(&req.Template)

	var out []models.ResolvedElement
	add := func(el *models.Element) {
		v := h.Resolver.ResolveValue(el, req.Registrant, &req.Event)
		out = append(out, models.ResolvedElement{
			ID:     el.ID,
			Kind:   el.Kind().String(),
			Layer:  el.Layer().String(),
			Value:  v.Ptr(),
			Source: v.Source,
		})
	}
	for i := range layers.BackgroundLayer {
		add(&layers.BackgroundLayer[i])
	}
	for i := range layers.Content {
		add(&layers.Content[i])
	}
	return c.JSON(fiber.Map{"elements": out})
}

// Preview renders the first page as PDF.
func (h *Handler) Preview(c *fiber.Ctx) error {
	return h.generate(c, generator.OutputPDF, true, "inline")
}

// Download renders every registrant as one PDF.
func (h *Handler) Download(c *fiber.Ctx) error {
	return h.generate(c, generator.OutputPDF, false, "attachment")
}

// Print renders every registrant as a printable HTML page.
func (h *Handler) Print(c *fiber.Ctx) error {
	return h.generate(c, generator.OutputHTML, false, "inline")
}

func (h *Handler) generate(c *fiber.Ctx, out generator.Output, preview bool, disposition string) error {
	var req models.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("Invalid request body", err)
	}
	settings := req.Settings
	settings.Preview = settings.Preview || preview

	res, err := h.Generator.Generate(c.UserContext(), generator.Request{
		Template:    req.Template,
		Registrants: req.Registrants,
		Event:       &req.Event,
		Settings:    settings,
		Output:      out,
		EventID:     req.EventID,
		TicketID:    req.TicketID,
	})
	switch {
	case errors.Is(err, generator.ErrNoRegistrants):
		return apperr.Unprocessable("No registrants to render", err)
	case errors.Is(err, generator.ErrTooMany):
		return apperr.BadRequest(err.Error(), err)
	case err != nil:
		return apperr.From(fmt.Errorf("generate badges: %w", err))
	}

	ext := "pdf"
	if out == generator.OutputHTML {
		ext = "html"
	}
	filename := fmt.Sprintf("badges_%s.%s", time.Now().UTC().Format("20060102_150405"), ext)

	c.Set("X-Badge-Pages", strconv.Itoa(res.Pages))
	c.Set("X-Badge-Count", strconv.Itoa(res.Badges))
	c.Set("X-Badge-Grid", fmt.Sprintf("%dx%d", res.Layout.Cols, res.Layout.Rows))

	// JSON clients get the document base64 encoded
	if c.Get(fiber.HeaderAccept) == fiber.MIMEApplicationJSON {
		return c.JSON(fiber.Map{
			"success":         true,
			"document":        base64.StdEncoding.EncodeToString(res.Document),
			"contentType":     res.ContentType,
			"filename":        filename,
			"pages":           res.Pages,
			"badges":          res.Badges,
			"layout":          res.Layout,
			"registrationIds": res.RegistrantIDs,
		})
	}

	c.Set(fiber.HeaderContentType, res.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("%s; filename=%s", disposition, filename))
	return c.Send(res.Document)
}

// CacheStats returns asset and template cache statistics.
func (h *Handler) CacheStats(c *fiber.Ctx) error {
	stats := fiber.Map{"template_items": h.Templates.ItemCount()}
	if h.Store != nil {
		for k, v := range h.Store.Stats() {
			stats[k] = v
		}
	}
	return c.JSON(stats)
}

// ClearCache clears all cached data
func (h *Handler) ClearCache(c *fiber.Ctx) error {
	h.Templates.Flush()
	if h.Store != nil {
		if err := h.Store.Clear(); err != nil {
			return apperr.Internal(err)
		}
	}
	h.log.Info("caches cleared")
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Cache cleared",
	})
}
