package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Matcher decides whether one item satisfies one filter value.
type Matcher interface {
	Match(item Item, field string, v Value, exact bool) bool
}

// Predicate selects one of the closed set of matchers. It is a plain enum
// so definitions stay serializable.
type Predicate int

const (
	PredicateString Predicate = iota
	PredicateNumber
	PredicateTags
	PredicateMultiSelect
)

var predicateNames = [...]string{"string", "number", "tags", "multiselect"}

var matchers = [...]Matcher{
	PredicateString:      stringMatcher{},
	PredicateNumber:      numberMatcher{},
	PredicateTags:        tagsMatcher{},
	PredicateMultiSelect: multiSelectMatcher{},
}

func (p Predicate) String() string {
	if p < 0 || int(p) >= len(predicateNames) {
		return "unknown"
	}
	return predicateNames[p]
}

func ParsePredicate(s string) (Predicate, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range predicateNames {
		if n == s {
			return Predicate(i), nil
		}
	}
	return 0, fmt.Errorf("unknown predicate: %s", s)
}

func (p Predicate) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Predicate) UnmarshalText(b []byte) error {
	parsed, err := ParsePredicate(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Match dispatches to the predicate's matcher. Unknown predicates never match.
func (p Predicate) Match(item Item, field string, v Value, exact bool) bool {
	if p < 0 || int(p) >= len(matchers) {
		return false
	}
	return matchers[p].Match(item, field, v, exact)
}

type stringMatcher struct{}

func (stringMatcher) Match(item Item, field string, v Value, exact bool) bool {
	return MatchString(item, field, v.Text, exact)
}

type numberMatcher struct{}

func (numberMatcher) Match(item Item, field string, v Value, _ bool) bool {
	return MatchNumber(item, field, v.Text)
}

type tagsMatcher struct{}

func (tagsMatcher) Match(item Item, field string, v Value, exact bool) bool {
	for _, c := range v.Candidates() {
		if MatchTags(item, field, c, exact) {
			return true
		}
	}
	return false
}

type multiSelectMatcher struct{}

func (multiSelectMatcher) Match(item Item, field string, v Value, exact bool) bool {
	return MatchMultiSelect(item, field, v.Candidates(), exact)
}

func MatchExact(candidate, target string) bool {
	return candidate == target
}

// MatchSubstring reports whether target occurs in candidate, ignoring case.
func MatchSubstring(candidate, target string) bool {
	return strings.Contains(strings.ToLower(candidate), strings.ToLower(target))
}

// MatchString compares item[field] to value. Absent or falsy fields read as "".
func MatchString(item Item, field, value string, exact bool) bool {
	s, _ := textOf(item[field])
	if exact {
		return MatchExact(s, value)
	}
	return MatchSubstring(s, value)
}

// MatchNumber compares item[field] (absent reads as 0) to value numerically.
// When either side is not a number the text forms are compared instead.
func MatchNumber(item Item, field, value string) bool {
	raw := item[field]
	s, scalar := textOf(raw)
	if raw != nil && !scalar {
		return false
	}
	if s == "" {
		raw, s = float64(0), "0"
	}
	got, gotOK := numberOf(raw)
	want, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if gotOK && err == nil {
		return got == want
	}
	return s == value
}

// MatchTags matches value against the "key:value" projection of the map at
// item[field]. Spaces in value are ignored. Any single tag matching is enough.
func MatchTags(item Item, field, value string, exact bool) bool {
	if item == nil {
		return false
	}
	tags, ok := tagPairs(item[field])
	if !ok {
		return false
	}
	match := MatchSubstring
	if exact {
		match = MatchExact
	}
	want := strings.ReplaceAll(value, " ", "")
	for _, t := range tags {
		if match(t, want) {
			return true
		}
	}
	return false
}

// MatchMultiSelect reports whether item[field] matches any of values. Text
// fields match by equality (exact) or case-sensitive containment; list
// fields match when any element equals a candidate.
func MatchMultiSelect(item Item, field string, values []string, exact bool) bool {
	raw, ok := item[field]
	if !ok || raw == nil {
		return false
	}
	if elems, isList := raw.([]any); isList {
		for _, e := range elems {
			s, _ := textOf(e)
			for _, c := range values {
				if s == c {
					return true
				}
			}
		}
		return false
	}
	if _, isMap := raw.(map[string]any); isMap {
		return false
	}
	s, _ := textOf(raw)
	matched := false
	for _, c := range values {
		if exact {
			matched = s == c || matched
		} else {
			matched = strings.Contains(s, c) || matched
		}
	}
	return matched
}

// textOf renders a scalar JSON value. Falsy values ("", 0, false, nil) and
// composite values render as "" with ok reporting whether x was a scalar.
func textOf(x any) (string, bool) {
	switch t := x.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case float64:
		if t == 0 {
			return "", true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		if t == 0 {
			return "", true
		}
		return strconv.Itoa(t), true
	case int64:
		if t == 0 {
			return "", true
		}
		return strconv.FormatInt(t, 10), true
	case bool:
		if !t {
			return "", true
		}
		return "true", true
	default:
		return "", false
	}
}

func numberOf(x any) (float64, bool) {
	switch t := x.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// tagPairs projects a tag map to sorted "key:value" strings.
func tagPairs(x any) ([]string, bool) {
	var pairs []string
	switch m := x.(type) {
	case map[string]any:
		for k, v := range m {
			pairs = append(pairs, k+":"+tagValue(v))
		}
	case map[string]string:
		for k, v := range m {
			pairs = append(pairs, k+":"+v)
		}
	default:
		return nil, false
	}
	sort.Strings(pairs)
	return pairs, true
}

func tagValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
