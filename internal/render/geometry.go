package render

import (
	"math"

	"badge-print-service/internal/models"
	"badge-print-service/internal/units"
)

const (
	defaultFontSizePx = 14
	lineHeightFactor  = 1.2

	dottedOffsetMm = 2.0
	cornerOffsetMm = 0.1
	cornerArmMm    = 4.0
)

// Box is a rectangle in page millimeters.
type Box struct {
	X, Y, W, H float64
}

// Cell is one badge slot on a page.
type Cell struct {
	Index    int
	Col, Row int
	XMm, YMm float64
	WidthMm  float64
	HeightMm float64
}

func (c Cell) Box() Box { return Box{X: c.XMm, Y: c.YMm, W: c.WidthMm, H: c.HeightMm} }

// Transform maps template centimeters into a cell on the page.
type Transform struct {
	OriginX, OriginY float64
	ScaleX, ScaleY   float64
}

// NewTransform scales a template of templateWidthCm x templateHeightCm into
// the cell.
func NewTransform(cell Cell, templateWidthCm, templateHeightCm float64) Transform {
	t := Transform{OriginX: cell.XMm, OriginY: cell.YMm, ScaleX: 1, ScaleY: 1}
	if templateWidthCm > 0 {
		t.ScaleX = cell.WidthMm / units.CmToMm(templateWidthCm)
	}
	if templateHeightCm > 0 {
		t.ScaleY = cell.HeightMm / units.CmToMm(templateHeightCm)
	}
	return t
}

// Apply returns the element's box in page millimeters.
func (t Transform) Apply(el *models.Element) Box {
	return Box{
		X: t.OriginX + units.CmToMm(el.PositionXCm.Float())*t.ScaleX,
		Y: t.OriginY + units.CmToMm(el.PositionYCm.Float())*t.ScaleY,
		W: math.Max(units.CmToMm(el.WidthCm.Float())*t.ScaleX, 0),
		H: math.Max(units.CmToMm(el.HeightCm.Float())*t.ScaleY, 0),
	}
}

// FontSizePt converts the element's pixel font size to points, scaled with
// the cell.
func FontSizePt(style models.Style, scale float64) float64 {
	px := style.FontSize.Float()
	if px <= 0 {
		px = defaultFontSizePx
	}
	if scale <= 0 {
		scale = 1
	}
	return units.PxToPt(px) * scale
}

// LineHeightMm derives the line height from lineHeight or fontSize x 1.2.
// Small lineHeight values are multipliers, larger ones are pixels.
func LineHeightMm(style models.Style, fontPt, scale float64) float64 {
	lh := style.LineHeight.Float()
	switch {
	case lh > 0 && lh <= 4:
		return units.PtToMm(fontPt) * lh
	case lh > 4:
		if scale <= 0 {
			scale = 1
		}
		return units.PxToMm(lh) * scale
	default:
		return units.PtToMm(fontPt) * lineHeightFactor
	}
}

// SquareIn returns the largest square centred in b.
func SquareIn(b Box) Box {
	side := math.Min(b.W, b.H)
	return Box{X: b.X + (b.W-side)/2, Y: b.Y + (b.H-side)/2, W: side, H: side}
}

// Segment is a straight line in page millimeters.
type Segment struct {
	X1, Y1, X2, Y2 float64
}

// TrimMarkSegments returns the trim mark lines around a badge cell: a
// rectangle 2mm outside the badge for dotted marks, or four L-shaped
// brackets just outside each corner.
func TrimMarkSegments(b Box, marks models.TrimMarks) []Segment {
	switch marks {
	case models.TrimDotted:
		x0, y0 := b.X-dottedOffsetMm, b.Y-dottedOffsetMm
		x1, y1 := b.X+b.W+dottedOffsetMm, b.Y+b.H+dottedOffsetMm
		return []Segment{
			{x0, y0, x1, y0},
			{x1, y0, x1, y1},
			{x1, y1, x0, y1},
			{x0, y1, x0, y0},
		}
	case models.TrimCorners:
		x0, y0 := b.X-cornerOffsetMm, b.Y-cornerOffsetMm
		x1, y1 := b.X+b.W+cornerOffsetMm, b.Y+b.H+cornerOffsetMm
		arm := math.Min(cornerArmMm, math.Min(b.W, b.H)/2)
		return []Segment{
			{x0, y0, x0 + arm, y0}, {x0, y0, x0, y0 + arm},
			{x1, y0, x1 - arm, y0}, {x1, y0, x1, y0 + arm},
			{x0, y1, x0 + arm, y1}, {x0, y1, x0, y1 - arm},
			{x1, y1, x1 - arm, y1}, {x1, y1, x1, y1 - arm},
		}
	default:
		return nil
	}
}
