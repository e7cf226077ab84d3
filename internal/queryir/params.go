package queryir

import (
	"fmt"
	"slices"
)

// Param is a named bind value. Value is a Go native value: string, int64,
// bool, or []any of those.
type Param struct {
	Name  string
	Value any
}

// Params is the ordered parameter list shared by a data and count query.
type Params []Param

// Add appends a parameter. Names must be unique.
func (ps *Params) Add(name string, v any) error {
	if _, ok := ps.Get(name); ok {
		return fmt.Errorf("parameter %q bound twice", name)
	}
	*ps = append(*ps, Param{Name: name, Value: v})
	return nil
}

// Get returns the value bound to name.
func (ps Params) Get(name string) (any, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Names returns the parameter names in binding order.
func (ps Params) Names() []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}

// Map returns the parameters keyed by name.
func (ps Params) Map() map[string]any {
	out := make(map[string]any, len(ps))
	for _, p := range ps {
		out[p.Name] = p.Value
	}
	return out
}

// Clone returns a copy; list values are copied too.
func (ps Params) Clone() Params {
	out := make(Params, len(ps))
	for i, p := range ps {
		if l, ok := p.Value.([]any); ok {
			p.Value = slices.Clone(l)
		}
		out[i] = p
	}
	return out
}
