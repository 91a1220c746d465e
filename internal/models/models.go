package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ============ TEMPLATE STRUCTURES ============

const (
	DefaultBadgeWidthCm  = 8.5
	DefaultBadgeHeightCm = 5.5
)

// BadgeTemplate is a stored badge design. Geometry is in centimeters.
type BadgeTemplate struct {
	ID              string    `json:"id"`
	Name            string    `json:"name,omitempty"`
	Elements        []Element `json:"elements"`
	BackgroundImage string    `json:"backgroundImage,omitempty"`
	WidthCm         Number    `json:"width"`
	HeightCm        Number    `json:"height"`
}

// UnmarshalJSON accepts either a template object or a bare element array.
func (t *BadgeTemplate) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var elements []Element
		if err := json.Unmarshal(trimmed, &elements); err != nil {
			return fmt.Errorf("badge template elements: %w", err)
		}
		*t = BadgeTemplate{Elements: elements}
		return nil
	}
	type plain BadgeTemplate
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*t = BadgeTemplate(p)
	return nil
}

// Size returns the badge size in cm, falling back to 8.5x5.5 for unset or
// non-positive dimensions.
func (t *BadgeTemplate) Size() (widthCm, heightCm float64) {
	widthCm, heightCm = float64(t.WidthCm), float64(t.HeightCm)
	if widthCm <= 0 {
		widthCm = DefaultBadgeWidthCm
	}
	if heightCm <= 0 {
		heightCm = DefaultBadgeHeightCm
	}
	return widthCm, heightCm
}

// Element is one positioned visual unit of a badge.
type Element struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Preset    string `json:"preset,omitempty"`
	Var       string `json:"var,omitempty"`
	FieldType string `json:"fieldType,omitempty"`
	Content   string `json:"content,omitempty"`
	Label     string `json:"label,omitempty"`
	Src       string `json:"src,omitempty"`

	PositionXCm Number `json:"positionX"`
	PositionYCm Number `json:"positionY"`
	WidthCm     Number `json:"width"`
	HeightCm    Number `json:"height"`

	Style

	QRLevel  string `json:"qrLevel,omitempty"`
	QRMargin bool   `json:"includeMargin,omitempty"`
}

type Style struct {
	Color      string `json:"color,omitempty"`
	FontSize   Number `json:"fontSize,omitempty"` // px
	FontWeight string `json:"fontWeight,omitempty"`
	FontFamily string `json:"fontFamily,omitempty"`
	TextAlign  string `json:"textAlign,omitempty"`
	LineHeight Number `json:"lineHeight,omitempty"`
	BgColor    string `json:"bgColor,omitempty"`
	FgColor    string `json:"fgColor,omitempty"`
}

// Bold reports whether the font weight asks for a bold face.
func (s Style) Bold() bool {
	switch strings.ToLower(s.FontWeight) {
	case "bold", "bolder", "600", "700", "800", "900":
		return true
	}
	return false
}

// ElementKind is the closed set of element kinds the renderer understands.
type ElementKind int

const (
	KindUnknown ElementKind = iota
	KindText
	KindTextarea
	KindQR
	KindImage
	KindSelect
	KindCheckbox
	KindBackground
)

var kindNames = map[ElementKind]string{
	KindUnknown:    "unknown",
	KindText:       "text",
	KindTextarea:   "textarea",
	KindQR:         "qr",
	KindImage:      "image",
	KindSelect:     "select",
	KindCheckbox:   "checkbox",
	KindBackground: "background",
}

func (k ElementKind) String() string { return kindNames[k] }

// Kind maps the stored type string to an ElementKind. This is the only place
// element type strings are interpreted.
func (e *Element) Kind() ElementKind {
	switch strings.ToLower(strings.TrimSpace(e.Type)) {
	case "text", "heading", "label", "email", "number", "phone":
		return KindText
	case "textarea", "paragraph":
		return KindTextarea
	case "qr", "qrcode":
		return KindQR
	case "image", "img", "photo", "file":
		return KindImage
	case "select", "dropdown", "radio", "multiplechoice":
		return KindSelect
	case "checkbox":
		return KindCheckbox
	case "background":
		return KindBackground
	default:
		return KindUnknown
	}
}

// Layer is the derived layer class of an element.
type Layer int

const (
	LayerContent Layer = iota
	LayerBackground
)

func (l Layer) String() string {
	if l == LayerBackground {
		return "background"
	}
	return "content"
}

var backgroundPresets = map[string]bool{
	"event":       true,
	"ticket":      true,
	"location":    true,
	"startDate":   true,
	"endDate":     true,
	"description": true,
	"banner":      true,
}

// Layer classifies the element: background type or one of the static event
// presets belong to the background layer, everything else is content.
func (e *Element) Layer() Layer {
	if e.Kind() == KindBackground || backgroundPresets[e.Preset] {
		return LayerBackground
	}
	return LayerContent
}

// ============ REGISTRANT STRUCTURES ============

// Registrant is an attendee record as delivered by the registration API.
// It is never mutated by the badge pipeline.
type Registrant map[string]any

// ID returns the registrant identifier used for QR payloads and counters.
func (r Registrant) ID() string {
	for _, key := range []string{"_id", "id", "registrationId"} {
		if s := scalarString(r[key]); s != "" {
			return s
		}
	}
	return ""
}

// TicketID returns the id of the nested ticket object, or a flat ticketId.
// A scalar ticket is a display title, not an id.
func (r Registrant) TicketID() string { return r.refID("ticket", "ticketId") }

// EventID returns the id of the nested event object, or a flat eventId.
func (r Registrant) EventID() string { return r.refID("event", "eventId") }

// Map returns a nested object field or nil.
func (r Registrant) Map(key string) map[string]any {
	if m, ok := r[key].(map[string]any); ok {
		return m
	}
	if m, ok := r[key].(Registrant); ok {
		return m
	}
	return nil
}

// FormData returns the custom-form answers map, or nil.
func (r Registrant) FormData() map[string]any { return r.Map("formData") }

func (r Registrant) refID(nested, flat string) string {
	if m := r.Map(nested); m != nil {
		for _, key := range []string{"_id", "id"} {
			if s := scalarString(m[key]); s != "" {
				return s
			}
		}
	}
	return scalarString(r[flat])
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	}
	return ""
}

// EventContext carries event-level data used by background presets.
type EventContext struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Banner      string `json:"banner"`
	Location    string `json:"location"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
}

// ============ LAYOUT SETTINGS ============

type PaperSize string

const (
	PaperA4     PaperSize = "A4"
	PaperA3     PaperSize = "A3"
	PaperLetter PaperSize = "Letter"
)

type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// Format selects which layers are rendered.
type Format string

const (
	FormatPrint Format = "print" // background layer only
	FormatBoth  Format = "both"
)

type TrimMarks string

const (
	TrimNone    TrimMarks = "none"
	TrimDotted  TrimMarks = "dotted"
	TrimCorners TrimMarks = "corners"
)

type FilterMode string

const (
	FilterAll FilterMode = "all"
	FilterNew FilterMode = "new"
)

// LayoutSettings controls one generation run.
type LayoutSettings struct {
	PaperSize   PaperSize   `json:"paperSize"`
	Orientation Orientation `json:"orientation"`
	Format      Format      `json:"format"`
	TrimMarks   TrimMarks   `json:"trimMarks"`
	Preview     bool        `json:"preview"`
	FilterMode  FilterMode  `json:"filterMode"`
}

// WithDefaults fills unset fields with A4 portrait, both layers, no marks.
func (s LayoutSettings) WithDefaults() LayoutSettings {
	if s.PaperSize == "" {
		s.PaperSize = PaperA4
	}
	if s.Orientation == "" {
		s.Orientation = Portrait
	}
	if s.Format == "" {
		s.Format = FormatBoth
	}
	if s.TrimMarks == "" {
		s.TrimMarks = TrimNone
	}
	if s.FilterMode == "" {
		s.FilterMode = FilterAll
	}
	return s
}

// ============ REQUEST/RESPONSE STRUCTURES ============

type GenerateRequest struct {
	Template    BadgeTemplate  `json:"template"`
	Registrants []Registrant   `json:"registrants"`
	Event       EventContext   `json:"event"`
	Settings    LayoutSettings `json:"settings"`
	EventID     string         `json:"eventId"`
	TicketID    string         `json:"ticketId"`
}

type LayoutRequest struct {
	PaperSize     PaperSize   `json:"paperSize"`
	Orientation   Orientation `json:"orientation"`
	BadgeWidthCm  float64     `json:"badgeWidth"`
	BadgeHeightCm float64     `json:"badgeHeight"`
}

type ResolveRequest struct {
	Template   BadgeTemplate `json:"template"`
	Registrant Registrant    `json:"registrant"`
	Event      EventContext  `json:"event"`
}

type ResolvedElement struct {
	ID     string  `json:"id"`
	Kind   string  `json:"kind"`
	Layer  string  `json:"layer"`
	Value  *string `json:"value"`
	Source string  `json:"source"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}
