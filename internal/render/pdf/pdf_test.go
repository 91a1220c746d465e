package pdf

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"badge-print-service/internal/models"
	"badge-print-service/internal/qrcache"
	"badge-print-service/internal/render"
)

type fakeAssets struct {
	calls []string
	err   error
}

func (f *fakeAssets) ImagePNG(_ context.Context, url string, _, _ float64, _ int) ([]byte, error) {
	f.calls = append(f.calls, url)
	if f.err != nil {
		return nil, f.err
	}
	q, err := qrcache.EncodePNG("image", qrcache.Options{Size: 64})
	return q, err
}

func str(s string) *string { return &s }

func testBadge() *render.Badge {
	cell := render.Cell{XMm: 10, YMm: 10, WidthMm: 85, HeightMm: 55}
	return &render.Badge{
		Cell:         cell,
		RegistrantID: "r1",
		Items: []render.Item{
			{
				Element:      models.Element{ID: "name", Style: models.Style{Color: "#333", FontWeight: "bold"}},
				Kind:         models.KindText,
				Box:          render.Box{X: 15, Y: 15, W: 60, H: 10},
				Value:        str("Jane Doe"),
				FontPt:       12,
				LineHeightMm: 5,
			},
			{
				Element:      models.Element{ID: "bio", Style: models.Style{BgColor: "#eeeeee"}},
				Kind:         models.KindTextarea,
				Box:          render.Box{X: 15, Y: 30, W: 30, H: 5},
				Value:        str("a very long biography that will never fit into a single line"),
				FontPt:       10,
				LineHeightMm: 4.5,
			},
			{
				Element: models.Element{ID: "qr"},
				Kind:    models.KindQR,
				Box:     render.Box{X: 70, Y: 35, W: 20, H: 25},
				Value:   str("r1"),
			},
		},
	}
}

func newRenderer(assets render.Assets, marks models.TrimMarks) *Renderer {
	return New(render.Options{
		PageWidthMm:  210,
		PageHeightMm: 297,
		TrimMarks:    marks,
		Assets:       assets,
	})
}

func TestRenderer_ProducesValidPDF(t *testing.T) {
	for _, marks := range []models.TrimMarks{models.TrimNone, models.TrimDotted, models.TrimCorners} {
		t.Run(string(marks), func(t *testing.T) {
			r := newRenderer(nil, marks)
			require.NoError(t, r.BeginPage(1))
			require.NoError(t, r.DrawBadge(context.Background(), testBadge()))
			require.NoError(t, r.DrawBlank(render.Cell{}))
			require.NoError(t, r.BeginPage(2))
			require.NoError(t, r.DrawBadge(context.Background(), testBadge()))

			var buf bytes.Buffer
			require.NoError(t, r.Finish(&buf))
			pages, err := Validate(buf.Bytes())
			require.NoError(t, err)
			assert.Equal(t, 2, pages)
		})
	}
}

func TestRenderer_QRCacheReusedAcrossBadges(t *testing.T) {
	qr := qrcache.New()
	r := New(render.Options{PageWidthMm: 210, PageHeightMm: 297, QR: qr})
	require.NoError(t, r.BeginPage(1))
	for i := 0; i < 4; i++ {
		require.NoError(t, r.DrawBadge(context.Background(), testBadge()))
	}
	stats := qr.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(3), stats.Hits)
}

func TestRenderer_ImageFallbacks(t *testing.T) {
	assets := &fakeAssets{}
	badge := &render.Badge{
		Cell:          render.Cell{WidthMm: 85, HeightMm: 55},
		BackgroundURL: "https://cdn/bg.png",
		Items: []render.Item{
			{Element: models.Element{ID: "blob"}, Kind: models.KindImage, Box: render.Box{W: 10, H: 10}, Value: str("blob:https://app/x")},
			{Element: models.Element{ID: "sample"}, Kind: models.KindImage, Box: render.Box{W: 10, H: 10}, Value: str("Sample Text")},
			{Element: models.Element{ID: "banner"}, Kind: models.KindImage, Box: render.Box{W: 10, H: 10}},
			{Element: models.Element{ID: "photo"}, Kind: models.KindImage, Box: render.Box{W: 10, H: 10}, Value: str("https://cdn/p.png")},
		},
	}
	r := newRenderer(assets, models.TrimNone)
	require.NoError(t, r.BeginPage(1))
	require.NoError(t, r.DrawBadge(context.Background(), badge))
	assert.Equal(t, []string{"https://cdn/bg.png", "https://cdn/p.png"}, assets.calls)

	var buf bytes.Buffer
	require.NoError(t, r.Finish(&buf))
	_, err := Validate(buf.Bytes())
	assert.NoError(t, err)
}

func TestRenderer_BrokenAssetsDoNotAbort(t *testing.T) {
	assets := &fakeAssets{err: errors.New("timeout")}
	badge := testBadge()
	badge.BackgroundURL = "https://cdn/broken.png"
	badge.Items = append(badge.Items,
		render.Item{Kind: models.KindImage, Box: render.Box{W: 10, H: 10}, Value: str("https://cdn/broken.png")},
		render.Item{Kind: models.KindQR, Box: render.Box{W: 10, H: 10}, Value: str("")},
	)
	r := newRenderer(assets, models.TrimCorners)
	require.NoError(t, r.BeginPage(1))
	require.NoError(t, r.DrawBadge(context.Background(), badge))

	var buf bytes.Buffer
	require.NoError(t, r.Finish(&buf))
	pages, err := Validate(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
}

func TestRenderer_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newRenderer(nil, models.TrimNone)
	require.NoError(t, r.BeginPage(1))
	assert.ErrorIs(t, r.DrawBadge(ctx, testBadge()), context.Canceled)
}

func TestValidate_RejectsGarbage(t *testing.T) {
	_, err := Validate([]byte("hello"))
	assert.Error(t, err)
}
