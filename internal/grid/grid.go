// Package grid packs fixed-size badges onto a paper sheet.
package grid

import (
	"math"
	"strings"

	"badge-print-service/internal/models"
	"badge-print-service/internal/units"
)

const (
	PaddingMm = 10.0
	MinGapMm  = 2.0

	MinBadgeWidthMm  = 30.0
	MinBadgeHeightMm = 20.0
)

// Layout is the computed arrangement of badge cells on one page.
type Layout struct {
	Cols          int     `json:"cols"`
	Rows          int     `json:"rows"`
	BadgesPerPage int     `json:"badgesPerPage"`
	BadgeWidthMm  float64 `json:"badgeWidthMm"`
	BadgeHeightMm float64 `json:"badgeHeightMm"`
	GapMm         float64 `json:"gapMm"`
	PaddingMm     float64 `json:"paddingMm"`
	PageWidthMm   float64 `json:"pageWidthMm"`
	PageHeightMm  float64 `json:"pageHeightMm"`
	// Forced is set when the badge did not fit and a single clipped cell
	// spanning the usable area is used instead.
	Forced bool `json:"forced"`
}

// PageSize returns the page dimensions in mm for a paper size and
// orientation. Unknown sizes fall back to A4.
func PageSize(paper models.PaperSize, orientation models.Orientation) (widthMm, heightMm float64) {
	switch strings.ToUpper(string(paper)) {
	case "A3":
		widthMm, heightMm = 297, 420
	case "LETTER":
		widthMm, heightMm = 215.9, 279.4
	default:
		widthMm, heightMm = 210, 297
	}
	if strings.EqualFold(string(orientation), string(models.Landscape)) {
		widthMm, heightMm = heightMm, widthMm
	}
	return widthMm, heightMm
}

// Compute derives the grid for a page and badge size. It is pure: equal
// inputs always give equal layouts.
func Compute(pageWidthMm, pageHeightMm, badgeWidthCm, badgeHeightCm float64) Layout {
	badgeW := math.Max(units.CmToMm(badgeWidthCm), MinBadgeWidthMm)
	badgeH := math.Max(units.CmToMm(badgeHeightCm), MinBadgeHeightMm)
	if math.IsNaN(badgeW) {
		badgeW = MinBadgeWidthMm
	}
	if math.IsNaN(badgeH) {
		badgeH = MinBadgeHeightMm
	}

	usableW := pageWidthMm - 2*PaddingMm
	usableH := pageHeightMm - 2*PaddingMm

	layout := Layout{
		PaddingMm:    PaddingMm,
		PageWidthMm:  pageWidthMm,
		PageHeightMm: pageHeightMm,
	}

	if badgeW > usableW || badgeH > usableH {
		layout.Cols, layout.Rows, layout.BadgesPerPage = 1, 1, 1
		layout.BadgeWidthMm = math.Max(usableW, 0)
		layout.BadgeHeightMm = math.Max(usableH, 0)
		layout.Forced = true
		return layout
	}

	cols := fit(usableW, badgeW)
	rows := fit(usableH, badgeH)

	// a single column or row has no gap on that axis, so the grid gap is 0
	gap := math.Min(spread(usableW, badgeW, cols), spread(usableH, badgeH, rows))

	layout.Cols = cols
	layout.Rows = rows
	layout.BadgesPerPage = cols * rows
	layout.BadgeWidthMm = badgeW
	layout.BadgeHeightMm = badgeH
	layout.GapMm = math.Max(gap, 0)
	return layout
}

// ForSettings computes the layout for paper settings and a badge size in cm.
func ForSettings(settings models.LayoutSettings, badgeWidthCm, badgeHeightCm float64) Layout {
	w, h := PageSize(settings.PaperSize, settings.Orientation)
	return Compute(w, h, badgeWidthCm, badgeHeightCm)
}

func fit(usable, size float64) int {
	n := int(math.Floor((usable + MinGapMm) / (size + MinGapMm)))
	if n < 1 {
		n = 1
	}
	return n
}

func spread(usable, size float64, n int) float64 {
	if n <= 1 {
		return 0
	}
	return (usable - float64(n)*size) / float64(n-1)
}

// CellOrigin returns the top-left corner of the cell at index (row-major).
func (l Layout) CellOrigin(index int) (x, y float64) {
	col, row := l.CellPosition(index)
	x = l.PaddingMm + float64(col)*(l.BadgeWidthMm+l.GapMm)
	y = l.PaddingMm + float64(row)*(l.BadgeHeightMm+l.GapMm)
	return x, y
}

// CellPosition returns the column and row of a cell index.
func (l Layout) CellPosition(index int) (col, row int) {
	if l.Cols <= 0 {
		return 0, 0
	}
	return index % l.Cols, index / l.Cols
}

// UsedWidth is the horizontal extent of the grid without padding.
func (l Layout) UsedWidth() float64 {
	return float64(l.Cols)*l.BadgeWidthMm + float64(l.Cols-1)*l.GapMm
}

// UsedHeight is the vertical extent of the grid without padding.
func (l Layout) UsedHeight() float64 {
	return float64(l.Rows)*l.BadgeHeightMm + float64(l.Rows-1)*l.GapMm
}
