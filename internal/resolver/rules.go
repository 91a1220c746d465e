package resolver

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"badge-print-service/internal/models"
	"badge-print-service/internal/parser"
)

const textareaLimit = 50

var (
	tagRegex        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// PresetRules are the presets with bespoke extraction rules. Each matches
// only when the element names that preset.
func (r *Resolver) PresetRules() []Rule {
	preset := func(name string, fn func(Input) Value) Rule {
		return newRule("preset:"+name, func(in Input) (Value, bool) {
			if in.Element.Preset != name {
				return Value{}, false
			}
			return fn(in), true
		})
	}
	return []Rule{
		preset("name", func(in Input) Value { return text(fullName(in.Registrant)) }),
		preset("firstName", func(in Input) Value {
			return text(lookup(in.Registrant, "firstName"))
		}),
		preset("event", func(in Input) Value {
			if s := nestedTitle(in.Registrant["event"]); s != "" {
				return text(s)
			}
			return text(in.Event.Title)
		}),
		preset("ticket", func(in Input) Value { return text(nestedTitle(in.Registrant["ticket"])) }),
		preset("description", func(in Input) Value {
			desc := in.Event.Description
			if desc == "" {
				desc = lookup(in.Registrant.Map("event"), "description")
			}
			return text(stripTags(desc))
		}),
		preset("banner", func(in Input) Value {
			ref := in.Event.Banner
			if ref == "" {
				ref = lookup(in.Registrant.Map("event"), "banner", "bannerImage")
			}
			if ref == "" {
				return Value{Null: true}
			}
			return text(parser.ResolveAssetURL(ref, r.cdnBase))
		}),
		preset("location", func(in Input) Value {
			if s := lookup(in.Registrant.Map("event"), "location", "venue"); s != "" {
				return text(s)
			}
			return text(in.Event.Location)
		}),
		preset("startDate", func(in Input) Value {
			if s := lookup(in.Registrant.Map("event"), "startDate"); s != "" {
				return text(r.formatDate(s, false))
			}
			return text(r.formatDate(in.Event.StartDate, false))
		}),
		preset("endDate", func(in Input) Value {
			if s := lookup(in.Registrant.Map("event"), "endDate"); s != "" {
				return text(r.formatDate(s, false))
			}
			return text(r.formatDate(in.Event.EndDate, false))
		}),
		preset("ticketStartDate", func(in Input) Value {
			return text(r.formatDate(lookup(in.Registrant.Map("ticket"), "startDate", "startTime"), false))
		}),
		preset("ticketEndDate", func(in Input) Value {
			return text(r.formatDate(lookup(in.Registrant.Map("ticket"), "endDate", "endTime"), false))
		}),
		preset("ticketNumber", func(in Input) Value {
			if s := lookup(in.Registrant, "formattedTicketNumber", "ticketNumber"); s != "" {
				return text(s)
			}
			return text(lookup(in.Registrant.Map("ticket"), "formattedTicketNumber", "ticketNumber", "number"))
		}),
	}
}

// QRRule encodes the registrant identifier for every QR element,
// regardless of preset or var.
func QRRule() Rule {
	return newRule("qr", func(in Input) (Value, bool) {
		if in.Element.Kind() != models.KindQR {
			return Value{}, false
		}
		return text(in.Registrant.ID()), true
	})
}

// FormFieldRule resolves custom registration form answers by element var,
// formatted according to the element's field type.
func (r *Resolver) FormFieldRule() Rule {
	return newRule("formData", func(in Input) (Value, bool) {
		key := in.Element.Var
		form := in.Registrant.FormData()
		if key == "" || form == nil {
			return Value{}, false
		}
		raw, present := form[key]
		if !present {
			return Value{}, false
		}
		return text(r.formatField(in.Element.FieldType, raw)), true
	})
}

// FallbackRule always matches: registrant[preset], registrant[var],
// element content, element label, then the empty string.
func (r *Resolver) FallbackRule() Rule {
	return newRule("fallback", func(in Input) (Value, bool) {
		el := in.Element
		for _, key := range []string{el.Preset, el.Var} {
			if key == "" {
				continue
			}
			if s := Stringify(in.Registrant[key]); s != "" {
				return text(s), true
			}
		}
		if el.Content != "" {
			return text(el.Content), true
		}
		return text(el.Label), true
	})
}

func (r *Resolver) formatField(fieldType string, raw any) string {
	switch strings.ToLower(fieldType) {
	case "checkbox":
		if truthy(raw) {
			return r.locale.Checked
		}
		return r.locale.Unchecked
	case "multiplechoice", "multiple-choice", "multiselect", "multi-select":
		items := listItems(raw)
		for i, item := range items {
			items[i] = "• " + item
		}
		return strings.Join(items, "\n")
	case "date":
		return r.formatDate(Stringify(raw), false)
	case "datetime", "datetime-local":
		return r.formatDate(Stringify(raw), true)
	case "textarea", "paragraph":
		return truncateRunes(Stringify(raw), textareaLimit)
	default:
		return Stringify(raw)
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// formatDate renders an ISO-ish date in the locale layout. Unparseable input
// is returned unchanged.
func (r *Resolver) formatDate(s string, withTime bool) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		t = t.In(r.locale.location())
		if withTime {
			return t.Format(r.locale.DateTimeLayout)
		}
		return t.Format(r.locale.DateLayout)
	}
	return s
}

func fullName(reg models.Registrant) string {
	if s := lookup(reg, "fullName", "name"); s != "" {
		return s
	}
	joined := strings.TrimSpace(lookup(reg, "firstName") + " " + lookup(reg, "lastName"))
	if joined != "" {
		return joined
	}
	return PlaceholderText
}

// nestedTitle reads title/name/value of a nested object, or the raw scalar.
func nestedTitle(v any) string {
	if m, ok := v.(map[string]any); ok {
		return lookup(m, "title", "name", "value")
	}
	if _, ok := v.([]any); ok {
		return ""
	}
	return strings.TrimSpace(Stringify(v))
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "", "false", "0", "no", "off":
			return false
		}
		return true
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	case nil:
		return false
	}
	return true
}

func listItems(v any) []string {
	switch x := v.(type) {
	case []any:
		items := make([]string, 0, len(x))
		for _, item := range x {
			if s := Stringify(item); s != "" {
				items = append(items, s)
			}
		}
		return items
	case nil:
		return nil
	default:
		if s := Stringify(x); s != "" {
			return []string{s}
		}
		return nil
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func stripTags(s string) string {
	s = tagRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func jsonString(v any) string {
	body, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(body)
}
