// Package units converts between the physical and screen units used by the
// badge pipeline. Screen pixels assume 96 DPI.
package units

import "math"

const (
	pxPerCm = 37.795275591
	pxPerMm = 3.7795275591
	mmPerPt = 25.4 / 72
	ptPerPx = 0.75
)

// CmToPx converts centimeters to 96 DPI pixels.
func CmToPx(cm float64) float64 { return cm * pxPerCm }

// MmToPx converts millimeters to 96 DPI pixels.
func MmToPx(mm float64) float64 { return mm * pxPerMm }

// PxToMm converts 96 DPI pixels to millimeters.
func PxToMm(px float64) float64 { return px / pxPerMm }

// PtToMm converts typographic points to millimeters.
func PtToMm(pt float64) float64 { return pt * mmPerPt }

// MmToPt converts millimeters to typographic points.
func MmToPt(mm float64) float64 { return mm / mmPerPt }

// PxToPt converts CSS pixels to points (font sizes).
func PxToPt(px float64) float64 { return px * ptPerPx }

func CmToMm(cm float64) float64 { return cm * 10 }

func MmToCm(mm float64) float64 { return mm / 10 }

// RoundPx rounds a pixel value for on-screen preview output. PDF coordinates
// must never be rounded.
func RoundPx(px float64) float64 { return math.Round(px) }
