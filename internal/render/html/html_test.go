package html

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"badge-print-service/internal/models"
	"badge-print-service/internal/render"
)

func str(s string) *string { return &s }

func sampleBadge() *render.Badge {
	return &render.Badge{
		Cell:         render.Cell{XMm: 10, YMm: 10, WidthMm: 85, HeightMm: 55},
		RegistrantID: "r1",
		Background:   &models.Element{Style: models.Style{BgColor: "#ff0000"}},
		Items: []render.Item{
			{
				Element:      models.Element{ID: "name", Style: models.Style{TextAlign: "center", FontWeight: "bold"}},
				Kind:         models.KindText,
				Box:          render.Box{X: 15, Y: 15, W: 60, H: 10},
				Value:        str("<Jane & Doe>"),
				FontPt:       12,
				LineHeightMm: 5,
			},
			{
				Element: models.Element{ID: "qr"},
				Kind:    models.KindQR,
				Box:     render.Box{X: 70, Y: 35, W: 20, H: 20},
				Value:   str("r1"),
			},
			{
				Element: models.Element{ID: "photo"},
				Kind:    models.KindImage,
				Box:     render.Box{X: 15, Y: 35, W: 20, H: 20},
				Value:   str("blob:https://app/1"),
			},
			{
				Element: models.Element{ID: "banner"},
				Kind:    models.KindImage,
				Box:     render.Box{X: 40, Y: 35, W: 20, H: 20},
			},
		},
	}
}

func renderDoc(t *testing.T, marks models.TrimMarks, draw func(r *Renderer)) string {
	t.Helper()
	r := New(render.Options{PageWidthMm: 210, PageHeightMm: 297, TrimMarks: marks})
	draw(r)
	var buf bytes.Buffer
	require.NoError(t, r.Finish(&buf))
	return buf.String()
}

func TestRenderer_Document(t *testing.T) {
	out := renderDoc(t, models.TrimNone, func(r *Renderer) {
		require.NoError(t, r.BeginPage(1))
		require.NoError(t, r.DrawBadge(context.Background(), sampleBadge()))
		require.NoError(t, r.DrawBlank(render.Cell{XMm: 105, YMm: 10, WidthMm: 85, HeightMm: 55}))
	})

	assert.Contains(t, out, "@page { size: 210.00mm 297.00mm")
	assert.Contains(t, out, `data-registrant="r1"`)
	assert.Contains(t, out, "&lt;Jane &amp; Doe&gt;")
	assert.Contains(t, out, "text-align:center")
	assert.Contains(t, out, "font-weight:bold")
	assert.Contains(t, out, "background-color:#ff0000")
	assert.Contains(t, out, "data:image/png;base64,")
	assert.Contains(t, out, `class="blank"`)
	assert.Contains(t, out, "left:105.00mm")
	// element boxes are relative to the badge
	assert.Contains(t, out, `data-element="name" style="left:5.00mm;top:5.00mm`)
	assert.Contains(t, out, `data-element="photo"`)
	assert.NotContains(t, out, "blob:")
	assert.NotContains(t, out, `data-element="banner"`)
	assert.NotContains(t, out, "<svg")
}

func TestRenderer_TrimMarks(t *testing.T) {
	out := renderDoc(t, models.TrimDotted, func(r *Renderer) {
		require.NoError(t, r.BeginPage(1))
		require.NoError(t, r.DrawBadge(context.Background(), sampleBadge()))
	})
	assert.Equal(t, 4, strings.Count(out, "<line "))
	assert.Contains(t, out, `stroke-dasharray="0.5 0.5"`)

	out = renderDoc(t, models.TrimCorners, func(r *Renderer) {
		require.NoError(t, r.BeginPage(1))
		require.NoError(t, r.DrawBadge(context.Background(), sampleBadge()))
	})
	assert.Equal(t, 8, strings.Count(out, "<line "))
	assert.NotContains(t, out, "stroke-dasharray")
}

func TestRenderer_Pages(t *testing.T) {
	out := renderDoc(t, models.TrimNone, func(r *Renderer) {
		for n := 1; n <= 3; n++ {
			require.NoError(t, r.BeginPage(n))
			require.NoError(t, r.DrawBadge(context.Background(), sampleBadge()))
		}
	})
	assert.Equal(t, 3, strings.Count(out, `class="page"`))
	assert.Contains(t, out, `data-page="3"`)
}

func TestRenderer_QRError(t *testing.T) {
	b := sampleBadge()
	b.Items[1].Value = str("")
	out := renderDoc(t, models.TrimNone, func(r *Renderer) {
		require.NoError(t, r.BeginPage(1))
		require.NoError(t, r.DrawBadge(context.Background(), b))
	})
	assert.Contains(t, out, "QR Error")
}

func TestRenderer_RequiresPage(t *testing.T) {
	r := New(render.Options{PageWidthMm: 210, PageHeightMm: 297})
	assert.Error(t, r.DrawBadge(context.Background(), sampleBadge()))
	assert.Error(t, r.DrawBlank(render.Cell{}))
}

type brokenAssets struct{}

func (brokenAssets) ImagePNG(context.Context, string, float64, float64, int) ([]byte, error) {
	return nil, errors.New("timeout")
}

func TestRenderer_MissingBackgroundPlaceholder(t *testing.T) {
	draw := func(opts render.Options, url string) string {
		b := sampleBadge()
		b.BackgroundURL = url
		r := New(opts)
		require.NoError(t, r.BeginPage(1))
		require.NoError(t, r.DrawBadge(context.Background(), b))
		var buf bytes.Buffer
		require.NoError(t, r.Finish(&buf))
		return buf.String()
	}
	page := render.Options{PageWidthMm: 210, PageHeightMm: 297}

	withStore := page
	withStore.Assets = brokenAssets{}
	out := draw(withStore, "https://cdn.example.com/bg.png")
	assert.Contains(t, out, `data-element="background"`)
	assert.NotContains(t, out, `<img class="bg"`)

	out = draw(page, "blob:https://app/bg")
	assert.Contains(t, out, `data-element="background"`)

	// without a store remote backgrounds are referenced directly
	out = draw(page, "https://cdn.example.com/bg.png")
	assert.NotContains(t, out, `data-element="background"`)
	assert.Contains(t, out, `<img class="bg" src="https://cdn.example.com/bg.png"`)
}
