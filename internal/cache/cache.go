// Package cache downloads and caches the images embedded into badges
// (template backgrounds, event banners, attendee photos).
//
// Raw downloads are kept on disk keyed by URL hash; decoded, resized PNG
// renditions are kept in memory keyed by URL and target size.
package cache

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	gocache "github.com/patrickmn/go-cache"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"
)

var (
	ErrEmptyURL = errors.New("cache: empty image URL")
	// ErrBlobURL is returned for browser-local blob: references, which can
	// never be fetched server-side.
	ErrBlobURL = errors.New("cache: blob URLs cannot be embedded")
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultFailureTTL = time.Minute
	maxImageBytes     = 25 << 20
)

// Config configures a Store.
type Config struct {
	Dir       string
	Timeout   time.Duration
	MemoryTTL time.Duration
	// FailureTTL is how long a failed download is remembered before the
	// URL is tried again.
	FailureTTL time.Duration
	Client     *http.Client
}

// Store fetches images with a per-image timeout and caches them.
type Store struct {
	dir        string
	timeout    time.Duration
	client     *http.Client
	paths      *gocache.Cache
	renditions *gocache.Cache
	failures   *gocache.Cache
	downloads  singleflight.Group
	fileMu     sync.RWMutex
}

// ImageRequest is an image to be loaded at a given physical size.
type ImageRequest struct {
	URL    string
	Width  float64 // in mm
	Height float64 // in mm
	DPI    int
}

// NewStore creates the cache directories and HTTP client.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(os.TempDir(), "badge-cache")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = 10 * time.Minute
	}
	if cfg.FailureTTL <= 0 {
		cfg.FailureTTL = DefaultFailureTTL
	}
	if err := os.MkdirAll(filepath.Join(cfg.Dir, "images"), 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir %s: %w", cfg.Dir, err)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        200,
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Store{
		dir:        cfg.Dir,
		timeout:    cfg.Timeout,
		client:     client,
		paths:      gocache.New(5*time.Minute, 10*time.Minute),
		renditions: gocache.New(cfg.MemoryTTL, 2*cfg.MemoryTTL),
		failures:   gocache.New(cfg.FailureTTL, 2*cfg.FailureTTL),
	}, nil
}

// Dir returns the cache directory path.
func (s *Store) Dir() string { return s.dir }

// ============ RAW DOWNLOADS ============

// Fetch returns the raw bytes behind url, downloading at most once.
func (s *Store) Fetch(ctx context.Context, url string) ([]byte, error) {
	url = strings.TrimSpace(url)
	switch {
	case url == "":
		return nil, ErrEmptyURL
	case strings.HasPrefix(url, "blob:"):
		return nil, ErrBlobURL
	case strings.HasPrefix(url, "data:"):
		return decodeDataURI(url)
	}

	path, err := s.imagePath(ctx, url)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// imagePath returns the cached file for url, downloading if needed.
// Concurrent callers for one URL share a single download, and a failed
// download is remembered for FailureTTL so a broken URL costs one timeout.
func (s *Store) imagePath(ctx context.Context, url string) (string, error) {
	hash := md5.Sum([]byte(url))
	cacheKey := hex.EncodeToString(hash[:])

	if cached, found := s.paths.Get("img:" + cacheKey); found {
		path := cached.(string)
		if nonEmpty(path) {
			return path, nil
		}
	}
	if failed, found := s.failures.Get(cacheKey); found {
		return "", failed.(error)
	}

	ext := filepath.Ext(strings.SplitN(url, "?", 2)[0])
	if ext == "" || len(ext) > 5 {
		ext = ".img"
	}
	cachePath := filepath.Join(s.dir, "images", cacheKey+ext)

	s.fileMu.RLock()
	defer s.fileMu.RUnlock()

	path, err, _ := s.downloads.Do(cacheKey, func() (any, error) {
		// a previous flight may have settled the URL meanwhile
		if failed, found := s.failures.Get(cacheKey); found {
			return "", failed.(error)
		}
		if !nonEmpty(cachePath) {
			if err := s.download(ctx, url, cachePath); err != nil {
				err = fmt.Errorf("failed to download image from %s: %w", url, err)
				// the caller going away says nothing about the URL
				if ctx.Err() == nil {
					s.failures.Set(cacheKey, err, gocache.DefaultExpiration)
				}
				return "", err
			}
			if !nonEmpty(cachePath) {
				err := fmt.Errorf("downloaded image file is empty: %s (from %s)", cachePath, url)
				s.failures.Set(cacheKey, err, gocache.DefaultExpiration)
				return "", err
			}
		}
		s.paths.Set("img:"+cacheKey, cachePath, gocache.DefaultExpiration)
		return cachePath, nil
	})
	if err != nil {
		return "", err
	}
	return path.(string), nil
}

func (s *Store) download(ctx context.Context, url, destPath string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	tmpPath := destPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, io.LimitReader(resp.Body, maxImageBytes))
	out.Close()
	if err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, destPath)
}

// ============ PNG RENDITIONS ============

// ImagePNG returns url decoded (PNG, JPEG, GIF, WebP), scaled and cropped to
// cover widthMM x heightMM at dpi, re-encoded as 8-bit PNG for gofpdf.
func (s *Store) ImagePNG(ctx context.Context, url string, widthMM, heightMM float64, dpi int) ([]byte, error) {
	if dpi <= 0 {
		dpi = 300
	}
	hash := md5.Sum([]byte(url))
	cacheKey := fmt.Sprintf("img_data:%s_%.1f_%.1f_%d", hex.EncodeToString(hash[:]), widthMM, heightMM, dpi)
	if cached, found := s.renditions.Get(cacheKey); found {
		return cached.([]byte), nil
	}

	raw, err := s.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	pixelWidth := int(widthMM * float64(dpi) / 25.4)
	pixelHeight := int(heightMM * float64(dpi) / 25.4)
	if pixelWidth > 0 && pixelHeight > 0 {
		img = imaging.Fill(img, pixelWidth, pixelHeight, imaging.Center, imaging.Lanczos)
	}

	processed, err := encodePNG(img)
	if err != nil {
		return nil, err
	}
	s.renditions.Set(cacheKey, processed, gocache.DefaultExpiration)
	return processed, nil
}

// PreloadImages fetches and processes images in parallel. Failed images are
// absent from the result.
func (s *Store) PreloadImages(ctx context.Context, requests []ImageRequest) map[string][]byte {
	results := make(map[string][]byte)
	var mu sync.Mutex
	var wg sync.WaitGroup

	sem := make(chan struct{}, 20)

	for _, req := range requests {
		if req.URL == "" || strings.HasPrefix(req.URL, "blob:") {
			continue
		}

		wg.Add(1)
		go func(r ImageRequest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			data, err := s.ImagePNG(ctx, r.URL, r.Width, r.Height, r.DPI)
			if err == nil {
				mu.Lock()
				results[r.URL] = data
				mu.Unlock()
			}
		}(req)
	}

	wg.Wait()
	return results
}

// ============ HELPER FUNCTIONS ============

func encodePNG(img image.Image) ([]byte, error) {
	// gofpdf needs 8-bit NRGBA
	nrgba := imaging.Clone(img)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, nrgba, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 || !strings.Contains(uri[:comma], ";base64") {
		return nil, fmt.Errorf("cache: unsupported data URI")
	}
	return base64.StdEncoding.DecodeString(uri[comma+1:])
}

func nonEmpty(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && stat.Size() > 0
}

// Clear removes every cached file and memory entry.
func (s *Store) Clear() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	s.paths.Flush()
	s.renditions.Flush()
	s.failures.Flush()
	if err := os.RemoveAll(filepath.Join(s.dir, "images")); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(s.dir, "images"), 0o755)
}

// Stats returns cache statistics.
func (s *Store) Stats() map[string]interface{} {
	return map[string]interface{}{
		"memory_items":    s.paths.ItemCount(),
		"rendition_items": s.renditions.ItemCount(),
		"failed_urls":     s.failures.ItemCount(),
		"cache_dir":       s.dir,
	}
}
