// Package qrcache memoises encoded QR images for one generation run.
//
// A Cache is created per run and dropped (or Cleared) when the run ends; it
// is never shared across runs. All methods are safe for concurrent use.
package qrcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
	"github.com/skip2/go-qrcode"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"badge-print-service/internal/colors"
)

var ErrEmptyValue = errors.New("qrcache: empty QR value")

const (
	minSize = 64
	maxSize = 2048
)

// Options are the encoding parameters that affect the produced image.
type Options struct {
	Size          float64 // pixels, rounded
	BgColor       string
	FgColor       string
	Level         string // L, M, Q or H
	IncludeMargin bool
}

// Image is one encoded QR code.
type Image struct {
	Key  string
	PNG  []byte
	Size int
}

// Request pairs a value with its options, used for batch pre-generation.
type Request struct {
	Value   string
	Options Options
}

// Stats reports cache effectiveness for a run.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Errors  int64 `json:"errors"`
}

// Encoder turns a value into PNG bytes. The default uses go-qrcode.
type Encoder func(value string, opts Options) ([]byte, error)

type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Image
	group   singleflight.Group
	encode  Encoder

	hits   atomic.Int64
	misses atomic.Int64
	errs   atomic.Int64
}

// New creates an empty cache using the go-qrcode encoder.
func New() *Cache {
	return NewWithEncoder(EncodePNG)
}

func NewWithEncoder(enc Encoder) *Cache {
	return &Cache{entries: make(map[string]*Image), encode: enc}
}

// Key is the canonical cache key of a value and options.
func Key(value string, opts Options) string {
	n := opts.normalize()
	// field order is fixed by the struct, so the encoding is canonical
	body, _ := json.Marshal(struct {
		Value  string `json:"value"`
		Size   int    `json:"size"`
		Bg     string `json:"bgColor"`
		Fg     string `json:"fgColor"`
		Level  string `json:"level"`
		Margin bool   `json:"margin"`
	}{value, n.requestedSize(), n.BgColor, n.FgColor, n.Level, n.IncludeMargin})
	return string(body)
}

// GetOrCreate returns the cached image for value/opts, encoding it on first
// use. Concurrent requests for the same key share one encode.
func (c *Cache) GetOrCreate(value string, opts Options) (*Image, error) {
	if strings.TrimSpace(value) == "" {
		c.errs.Add(1)
		return nil, ErrEmptyValue
	}
	key := Key(value, opts)

	c.mu.RLock()
	img, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return img, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		existing, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return existing, nil
		}

		c.misses.Add(1)
		n := opts.normalize()
		png, err := c.encode(value, n)
		if err != nil {
			c.errs.Add(1)
			return nil, fmt.Errorf("qrcache: encode %q: %w", value, err)
		}
		created := &Image{Key: key, PNG: png, Size: n.size()}
		c.mu.Lock()
		c.entries[key] = created
		c.mu.Unlock()
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Image), nil
}

// Prewarm encodes the unique set of requests concurrently before rendering.
// Individual encode failures are left for the renderer to surface as
// placeholders; only context cancellation is returned.
func (c *Cache) Prewarm(ctx context.Context, requests []Request, workers int) error {
	unique := lo.UniqBy(requests, func(r Request) string { return Key(r.Value, r.Options) })
	if workers <= 0 {
		workers = 8
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, req := range unique {
		if strings.TrimSpace(req.Value) == "" {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, _ = c.GetOrCreate(req.Value, req.Options)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Clear drops every entry. The cache stays usable.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Image)
	c.mu.Unlock()
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{Entries: n, Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errs.Load()}
}

func (o Options) normalize() Options {
	o.Level = strings.ToUpper(strings.TrimSpace(o.Level))
	switch o.Level {
	case "L", "M", "Q", "H":
	default:
		o.Level = "M"
	}
	o.BgColor = colors.ParseHexOr(o.BgColor, colors.White).Hex()
	o.FgColor = colors.ParseHexOr(o.FgColor, colors.Black).Hex()
	return o
}

// requestedSize is the rounded pixel size as asked for. Keys use it, so two
// sizes that clamp to the same bitmap still cache separately.
func (o Options) requestedSize() int { return int(math.Round(o.Size)) }

// size is the pixel size actually encoded.
func (o Options) size() int {
	s := int(math.Round(o.Size))
	return lo.Clamp(s, minSize, maxSize)
}

func (o Options) recovery() qrcode.RecoveryLevel {
	switch o.Level {
	case "L":
		return qrcode.Low
	case "Q":
		return qrcode.High
	case "H":
		return qrcode.Highest
	default:
		return qrcode.Medium
	}
}

// EncodePNG encodes value with go-qrcode using the option colours.
func EncodePNG(value string, opts Options) ([]byte, error) {
	opts = opts.normalize()
	q, err := qrcode.New(value, opts.recovery())
	if err != nil {
		return nil, err
	}
	q.BackgroundColor = colors.ParseHex(opts.BgColor).RGBA()
	q.ForegroundColor = colors.ParseHex(opts.FgColor).RGBA()
	q.DisableBorder = !opts.IncludeMargin
	return q.PNG(opts.size())
}
