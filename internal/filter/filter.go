// Package filter evaluates list filters against items fetched from the
// platform API and combines item and filter streams into filtered lists.
package filter

import (
	"fmt"
	"strings"
)

// Item is one decoded JSON object from the platform API.
type Item map[string]any

// Kind is the input widget a view offers for a filter.
type Kind int

const (
	KindInput Kind = iota // free text
	KindAutoComplete
	KindSelect      // one of Options
	KindMultiSelect // any of Options
	KindCheckbox    // on|off
	KindNumber
)

var kindNames = [...]string{"input", "autocomplete", "select", "multiselect", "checkbox", "number"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown filter kind: %s", s)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// SuggestFunc lazily produces completion candidates for a filter value.
type SuggestFunc func() []string

// Definition describes a filterable field of a view. Definitions are
// declared per view and never persisted.
type Definition struct {
	Name      string      `json:"name" yaml:"name"`
	Field     string      `json:"field" yaml:"field"`
	Predicate Predicate   `json:"predicate" yaml:"predicate"`
	Kind      Kind        `json:"kind" yaml:"kind"`
	Options   []string    `json:"options,omitempty" yaml:"options,omitempty"`
	Exact     bool        `json:"exact,omitempty" yaml:"exact,omitempty"`
	Suggest   SuggestFunc `json:"-" yaml:"-"`
}

// Bind creates an active filter from the definition.
func (d Definition) Bind(v Value) Active {
	return Active{Name: d.Name, Field: d.Field, Value: v}
}

// Suggestions returns the lazy suggestion source's candidates, falling back
// to the static options.
func (d Definition) Suggestions() []string {
	if d.Suggest != nil {
		return d.Suggest()
	}
	return d.Options
}

// Active is a definition bound to a concrete value. Names are not unique:
// two active filters with the same name both apply.
type Active struct {
	Name  string
	Field string
	Value Value
	Exact *bool // overrides Definition.Exact when set
}

// WithExact returns a copy of a with the exact override set.
func (a Active) WithExact(exact bool) Active {
	a.Exact = &exact
	return a
}

// String renders the filter with the operator ParseFilter accepts for it:
// "=" defers to the definition, "==" forces exact, "~" forces substring.
func (a Active) String() string {
	op := "="
	if a.Exact != nil {
		op = "~"
		if *a.Exact {
			op = "=="
		}
	}
	return fmt.Sprintf("%s %s %s", a.Name, op, a.Value)
}

// Find returns the definition with the given name.
func Find(defs []Definition, name string) (Definition, bool) {
	for _, d := range defs {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}
