package filter

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bound is an optional numeric limit. The zero value is unset, which is
// different from a limit of 0.
type Bound struct {
	value float64
	set   bool
}

func Value(v float64) Bound {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Bound{}
	}
	return Bound{value: v, set: true}
}

// ParseBound reads a bound from user text. Empty or non-numeric text yields
// an unset bound.
func ParseBound(raw string) Bound {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if raw == "" {
		return Bound{}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Bound{}
	}
	return Value(v)
}

func (b Bound) Get() (float64, bool) {
	return b.value, b.set
}

func (b Bound) IsSet() bool {
	return b.set
}

func (b Bound) String() string {
	if !b.set {
		return ""
	}
	return strconv.FormatFloat(b.value, 'f', -1, 64)
}

func (b Bound) MarshalJSON() ([]byte, error) {
	if !b.set {
		return []byte("null"), nil
	}
	return json.Marshal(b.value)
}

func (b *Bound) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = Bound{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = ParseBound(s)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		*b = Bound{}
		return nil
	}
	*b = Value(v)
	return nil
}

func (b *Bound) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode || node.Tag == "!!null" {
		*b = Bound{}
		return nil
	}
	*b = ParseBound(node.Value)
	return nil
}

// Range is an inclusive [Min, Max] interval with optional ends.
type Range struct {
	Min Bound `json:"min" yaml:"min"`
	Max Bound `json:"max" yaml:"max"`
}

func Between(min, max float64) Range {
	return Range{Min: Value(min), Max: Value(max)}
}

func (r Range) Contains(v float64) bool {
	if min, ok := r.Min.Get(); ok && v < min {
		return false
	}
	if max, ok := r.Max.Get(); ok && v > max {
		return false
	}
	return true
}

func (r Range) IsSet() bool {
	return r.Min.IsSet() || r.Max.IsSet()
}
