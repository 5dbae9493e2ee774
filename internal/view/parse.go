package view

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kokistudios/orbctl/internal/filter"
)

// ParseValue builds a filter value from user input. MultiSelect accepts
// repeated or comma-separated values that must be among the options.
func ParseValue(def filter.Definition, raw []string) (filter.Value, error) {
	if def.Kind == filter.KindMultiSelect {
		var picked []string
		for _, r := range raw {
			for _, p := range strings.Split(r, ",") {
				p = strings.TrimSpace(p)
				if p == "" {
					continue
				}
				if len(def.Options) > 0 && !containsFold(def.Options, &p) {
					return filter.Value{}, fmt.Errorf("%s: %q is not one of %s", def.Name, p, strings.Join(def.Options, ", "))
				}
				picked = append(picked, p)
			}
		}
		if len(picked) == 0 {
			return filter.Value{}, fmt.Errorf("%s: at least one value is required", def.Name)
		}
		return filter.List(picked...), nil
	}

	if len(raw) != 1 {
		return filter.Value{}, fmt.Errorf("%s takes exactly one value", def.Name)
	}
	s := strings.TrimSpace(raw[0])
	switch def.Kind {
	case filter.KindNumber:
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return filter.Value{}, fmt.Errorf("%s: %q is not a number", def.Name, s)
		}
	case filter.KindCheckbox:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return filter.Value{}, fmt.Errorf("%s: %q is not on/off", def.Name, s)
		}
		s = strconv.FormatBool(b)
	case filter.KindSelect:
		if len(def.Options) > 0 && !containsFold(def.Options, &s) {
			return filter.Value{}, fmt.Errorf("%s: %q is not one of %s", def.Name, s, strings.Join(def.Options, ", "))
		}
	}
	if s == "" {
		return filter.Value{}, fmt.Errorf("%s: value is empty", def.Name)
	}
	return filter.Text(s), nil
}

// containsFold reports whether options holds *v ignoring case, and
// rewrites *v to the option's spelling.
func containsFold(options []string, v *string) bool {
	for _, o := range options {
		if strings.EqualFold(o, *v) {
			*v = o
			return true
		}
	}
	return false
}
