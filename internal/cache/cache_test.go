package cache

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newStore(t *testing.T, timeout time.Duration) *Store {
	t.Helper()
	s, err := NewStore(Config{Dir: t.TempDir(), Timeout: timeout})
	require.NoError(t, err)
	return s
}

func TestFetch_DownloadsOnce(t *testing.T) {
	body := pngBytes(t, 40, 20)
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	s := newStore(t, time.Second)
	for i := 0; i < 3; i++ {
		got, err := s.Fetch(context.Background(), srv.URL+"/bg.png")
		require.NoError(t, err)
		assert.Equal(t, body, got)
	}
	assert.EqualValues(t, 1, hits.Load())
}

func TestFetch_Rejections(t *testing.T) {
	s := newStore(t, time.Second)

	_, err := s.Fetch(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyURL)

	_, err = s.Fetch(context.Background(), "blob:https://app.example.com/1234")
	assert.ErrorIs(t, err, ErrBlobURL)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()
	_, err = s.Fetch(context.Background(), srv.URL+"/missing.png")
	assert.ErrorContains(t, err, "bad status")
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	s := newStore(t, 50*time.Millisecond)
	start := time.Now()
	_, err := s.Fetch(context.Background(), srv.URL+"/slow.png")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestImagePNG_BrokenURLCostsOneTimeout(t *testing.T) {
	var hits atomic.Int64
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	s := newStore(t, 200*time.Millisecond)
	url := srv.URL + "/never.png"

	start := time.Now()
	reqs := make([]ImageRequest, 5)
	for i := range reqs {
		reqs[i] = ImageRequest{URL: url, Width: 85, Height: 55, DPI: 72}
	}
	assert.Empty(t, s.PreloadImages(context.Background(), reqs))
	for i := 0; i < 10; i++ {
		_, err := s.ImagePNG(context.Background(), url, 85, 55, 72)
		require.Error(t, err)
	}

	assert.EqualValues(t, 1, hits.Load())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, s.Stats()["failed_urls"])

	// a cleared store tries the URL again
	require.NoError(t, s.Clear())
	_, err := s.Fetch(context.Background(), url)
	require.Error(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestFetch_CanceledCallerIsNotRemembered(t *testing.T) {
	body := pngBytes(t, 4, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	s := newStore(t, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Fetch(ctx, srv.URL+"/a.png")
	require.Error(t, err)

	got, err := s.Fetch(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestFetch_DataURI(t *testing.T) {
	body := pngBytes(t, 2, 2)
	s := newStore(t, time.Second)
	got, err := s.Fetch(context.Background(), "data:image/png;base64,"+base64.StdEncoding.EncodeToString(body))
	require.NoError(t, err)
	assert.Equal(t, body, got)

	_, err = s.Fetch(context.Background(), "data:text/plain,hello")
	assert.Error(t, err)
}

func TestImagePNG_ResizesAndCaches(t *testing.T) {
	body := pngBytes(t, 400, 100)
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	s := newStore(t, time.Second)
	// 25.4mm at 100 dpi = 100px square
	data, err := s.ImagePNG(context.Background(), srv.URL+"/photo.png", 25.4, 25.4, 100)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())

	again, err := s.ImagePNG(context.Background(), srv.URL+"/photo.png", 25.4, 25.4, 100)
	require.NoError(t, err)
	assert.Equal(t, data, again)
	assert.EqualValues(t, 1, hits.Load())
}

func TestPreloadImages_SkipsFailures(t *testing.T) {
	body := pngBytes(t, 10, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok.png" {
			_, _ = w.Write(body)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s := newStore(t, time.Second)
	got := s.PreloadImages(context.Background(), []ImageRequest{
		{URL: srv.URL + "/ok.png", Width: 10, Height: 10, DPI: 72},
		{URL: srv.URL + "/gone.png", Width: 10, Height: 10, DPI: 72},
		{URL: "blob:x", Width: 10, Height: 10},
		{URL: ""},
	})
	assert.Len(t, got, 1)
	assert.Contains(t, got, srv.URL+"/ok.png")
}

func TestClear(t *testing.T) {
	body := pngBytes(t, 4, 4)
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	s := newStore(t, time.Second)
	_, err := s.Fetch(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	require.NoError(t, s.Clear())
	_, err = s.Fetch(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
	assert.Equal(t, s.Dir(), s.Stats()["cache_dir"])
}
