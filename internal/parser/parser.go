// Package parser splits a stored badge template into its background and
// content layers. Parsing is total: malformed input yields empty layers.
package parser

import (
	"encoding/json"
	"strings"

	"badge-print-service/internal/models"
)

// Layers is the parsed form of a badge template, reused for every
// registrant of a generation run.
type Layers struct {
	Background      *models.Element
	BackgroundLayer []models.Element
	Content         []models.Element
	// BackgroundURL is the resolved background image, empty when none.
	BackgroundURL string
	WidthCm       float64
	HeightCm      float64
}

// Meta is badge-level data that is not part of the element list.
type Meta struct {
	BackgroundImage string
	WidthCm         float64
	HeightCm        float64
	CDNBase         string
}

// MetaFor builds Meta from a template.
func MetaFor(tpl *models.BadgeTemplate, cdnBase string) Meta {
	w, h := tpl.Size()
	return Meta{
		BackgroundImage: tpl.BackgroundImage,
		WidthCm:         w,
		HeightCm:        h,
		CDNBase:         cdnBase,
	}
}

// Parse classifies elements in a single pass, preserving their order.
func Parse(elements []models.Element, meta Meta) *Layers {
	layers := &Layers{
		BackgroundLayer: []models.Element{},
		Content:         []models.Element{},
		WidthCm:         meta.WidthCm,
		HeightCm:        meta.HeightCm,
	}
	if layers.WidthCm <= 0 {
		layers.WidthCm = models.DefaultBadgeWidthCm
	}
	if layers.HeightCm <= 0 {
		layers.HeightCm = models.DefaultBadgeHeightCm
	}

	for i := range elements {
		el := elements[i]
		switch {
		case el.Kind() == models.KindBackground && layers.Background == nil:
			layers.Background = &el
		case el.Layer() == models.LayerBackground:
			layers.BackgroundLayer = append(layers.BackgroundLayer, el)
		default:
			layers.Content = append(layers.Content, el)
		}
	}

	src := meta.BackgroundImage
	if layers.Background != nil && layers.Background.Src != "" {
		src = layers.Background.Src
	}
	layers.BackgroundURL = ResolveAssetURL(src, meta.CDNBase)
	return layers
}

// ParseJSON parses a raw stored template. Anything that is not a JSON array
// of elements, or an object with an "elements" array, yields empty layers.
func ParseJSON(raw []byte, meta Meta) *Layers {
	var elements []models.Element
	if err := json.Unmarshal(raw, &elements); err != nil {
		var tpl models.BadgeTemplate
		if err := json.Unmarshal(raw, &tpl); err != nil {
			return Parse(nil, meta)
		}
		elements = tpl.Elements
	}
	return Parse(elements, meta)
}

// ResolveAssetURL returns http(s) and blob: references untouched and
// prefixes anything else with the CDN base.
func ResolveAssetURL(ref, cdnBase string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http") || strings.HasPrefix(ref, "blob:") || strings.HasPrefix(ref, "data:") {
		return ref
	}
	if cdnBase == "" {
		return ref
	}
	return strings.TrimRight(cdnBase, "/") + "/" + strings.TrimLeft(ref, "/")
}

// Count returns the number of elements across all layers.
func (l *Layers) Count() int {
	n := len(l.BackgroundLayer) + len(l.Content)
	if l.Background != nil {
		n++
	}
	return n
}
