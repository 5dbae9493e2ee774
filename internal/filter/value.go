package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value is the parameter bound to an active filter. Single-valued filters
// carry Text; multi-select filters carry List.
type Value struct {
	Text string
	List []string
}

func Text(s string) Value { return Value{Text: s} }

func List(values ...string) Value {
	if values == nil {
		values = []string{}
	}
	return Value{List: values}
}

// IsList reports whether v holds multi-select candidates.
func (v Value) IsList() bool { return v.List != nil }

// Candidates returns the list values, or the text value as a one-element list.
func (v Value) Candidates() []string {
	if v.IsList() {
		return v.List
	}
	return []string{v.Text}
}

// Equal compares by content.
func (v Value) Equal(o Value) bool {
	if v.IsList() != o.IsList() {
		return false
	}
	if !v.IsList() {
		return v.Text == o.Text
	}
	if len(v.List) != len(o.List) {
		return false
	}
	for i := range v.List {
		if v.List[i] != o.List[i] {
			return false
		}
	}
	return true
}

func (v Value) String() string {
	if v.IsList() {
		return "[" + strings.Join(v.List, ", ") + "]"
	}
	return v.Text
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsList() {
		return json.Marshal(v.List)
	}
	return json.Marshal(v.Text)
}

// UnmarshalJSON accepts a string, a number, a bool, null, or an array of
// those.
func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		list := make([]string, 0, len(raw))
		for _, r := range raw {
			s, err := scalarText(r)
			if err != nil {
				return err
			}
			list = append(list, s)
		}
		*v = Value{List: list}
		return nil
	}
	s, err := scalarText(b)
	if err != nil {
		return err
	}
	*v = Value{Text: s}
	return nil
}

func scalarText(b []byte) (string, error) {
	var x any
	if err := json.Unmarshal(b, &x); err != nil {
		return "", err
	}
	switch t := x.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("unsupported filter value: %s", string(b))
	}
}
