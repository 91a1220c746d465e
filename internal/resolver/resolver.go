// Package resolver turns a badge element and a registrant into the value
// the element displays. Resolution is an ordered list of rules; the first
// rule that matches decides the value. Resolution never fails: missing data
// degrades to a placeholder or an empty string.
package resolver

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"badge-print-service/internal/models"
)

// Input is everything a rule may look at.
type Input struct {
	Element    *models.Element
	Registrant models.Registrant
	Event      *models.EventContext
}

// Value is a resolved element value. Null means "render nothing".
type Value struct {
	Text   string
	Null   bool
	Source string
}

// Ptr returns the value as a *string, nil when Null.
func (v Value) Ptr() *string {
	if v.Null {
		return nil
	}
	s := v.Text
	return &s
}

// Rule is one step of the resolution chain.
type Rule interface {
	Name() string
	// Resolve reports ok=false when the rule does not apply.
	Resolve(in Input) (v Value, ok bool)
}

type ruleFunc struct {
	name string
	fn   func(in Input) (Value, bool)
}

func (r ruleFunc) Name() string                   { return r.name }
func (r ruleFunc) Resolve(in Input) (Value, bool) { return r.fn(in) }

func newRule(name string, fn func(Input) (Value, bool)) Rule {
	return ruleFunc{name: name, fn: fn}
}

// Resolver applies a rule chain.
type Resolver struct {
	rules   []Rule
	locale  Locale
	cdnBase string
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithLocale(l Locale) Option { return func(r *Resolver) { r.locale = l } }

func WithCDNBase(base string) Option { return func(r *Resolver) { r.cdnBase = base } }

// New builds a resolver with the standard chain: QR, preset rules, custom
// form fields, generic fallback. QR elements always encode the registrant
// id, whatever preset they carry.
func New(opts ...Option) *Resolver {
	r := &Resolver{locale: DefaultLocale()}
	for _, opt := range opts {
		opt(r)
	}
	r.rules = append([]Rule{QRRule()}, r.PresetRules()...)
	r.rules = append(r.rules, r.FormFieldRule(), r.FallbackRule())
	return r
}

// Rules returns the chain in evaluation order.
func (r *Resolver) Rules() []Rule { return r.rules }

// Resolve returns the display value for el, or nil when the element should
// render nothing.
func (r *Resolver) Resolve(el *models.Element, reg models.Registrant, ev *models.EventContext) *string {
	return r.ResolveValue(el, reg, ev).Ptr()
}

// ResolveValue is Resolve with the name of the matching rule attached.
func (r *Resolver) ResolveValue(el *models.Element, reg models.Registrant, ev *models.EventContext) Value {
	if el == nil {
		return Value{Source: "none"}
	}
	if ev == nil {
		ev = &models.EventContext{}
	}
	in := Input{Element: el, Registrant: reg, Event: ev}
	for _, rule := range r.rules {
		if v, ok := apply(rule, in); ok {
			v.Source = rule.Name()
			if !v.Null {
				v.Text = norm.NFC.String(v.Text)
			}
			return v
		}
	}
	return Value{Source: "none"}
}

// apply runs a rule, treating a panic as "no match".
func apply(rule Rule, in Input) (v Value, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			v, ok = Value{}, false
		}
	}()
	return rule.Resolve(in)
}

func text(s string) Value { return Value{Text: s} }

// Stringify renders an arbitrary JSON value as display text. Objects are
// unwrapped via value, label, name, title; arrays are comma-joined.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return trimFloat(x)
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			if s := Stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(x, ", ")
	case map[string]any:
		for _, key := range []string{"value", "label", "name", "title"} {
			if inner, ok := x[key]; ok && inner != nil {
				if s := Stringify(inner); s != "" {
					return s
				}
			}
		}
		return jsonString(x)
	case models.Registrant:
		return Stringify(map[string]any(x))
	default:
		return fmt.Sprint(x)
	}
}

func lookup(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := strings.TrimSpace(Stringify(m[key])); s != "" {
			return s
		}
	}
	return ""
}
