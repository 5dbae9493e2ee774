package view

import (
	"fmt"
	"strings"

	"github.com/kokistudios/orbctl/internal/filter"
)

// ParseFilter parses a filter expression against the view's definitions:
//
//	Name=value     definition default matching
//	Name==value    exact match
//	Name~value     substring match
//
// MultiSelect values are comma separated.
func (v View) ParseFilter(expr string) (filter.Active, error) {
	name, op, raw, ok := splitExpr(expr)
	if !ok {
		return filter.Active{}, fmt.Errorf("invalid filter %q: expected Name=value", expr)
	}
	def, found := v.DefinitionFold(name)
	if !found {
		return filter.Active{}, fmt.Errorf("unknown filter %q for %s (available: %s)", name, v.Name, strings.Join(v.FilterNames(), ", "))
	}
	val, err := ParseValue(def, []string{raw})
	if err != nil {
		return filter.Active{}, err
	}
	a := def.Bind(val)
	switch op {
	case "==":
		a = a.WithExact(true)
	case "~":
		a = a.WithExact(false)
	}
	return a, nil
}

// FilterNames lists the view's definition names.
func (v View) FilterNames() []string {
	out := make([]string, len(v.Definitions))
	for i, d := range v.Definitions {
		out[i] = d.Name
	}
	return out
}

func splitExpr(expr string) (name, op, value string, ok bool) {
	i := strings.IndexAny(expr, "=~")
	if i <= 0 {
		return "", "", "", false
	}
	name = strings.TrimSpace(expr[:i])
	op = expr[i : i+1]
	rest := expr[i+1:]
	if op == "=" && strings.HasPrefix(rest, "=") {
		op = "=="
		rest = rest[1:]
	}
	if name == "" {
		return "", "", "", false
	}
	return name, op, rest, true
}
