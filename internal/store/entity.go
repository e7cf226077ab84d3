package store

import (
	"fmt"
	"strconv"

	"github.com/roach88/criteria/internal/schema"
)

// Entity is one materialized row.
type Entity struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`

	// Attrs holds scalar fields by field name.
	Attrs map[string]any `json:"attrs"`

	// Refs holds the target ids of to-one associations that are set.
	Refs map[string]int64 `json:"refs,omitempty"`

	// Assoc holds loaded associations: *Entity for to-one fields,
	// []*Entity for collections and []any for element collections.
	Assoc map[string]any `json:"assoc,omitempty"`
}

// Initialized reports whether the association field has been loaded.
func (e *Entity) Initialized(field string) bool {
	_, ok := e.Assoc[field]
	return ok
}

// Related returns a loaded collection association.
func (e *Entity) Related(field string) []*Entity {
	list, _ := e.Assoc[field].([]*Entity)
	return list
}

func (e *Entity) setAssoc(field string, v any) {
	if e.Assoc == nil {
		e.Assoc = make(map[string]any)
	}
	e.Assoc[field] = v
}

// newEntity materializes vals, named by field, as an entity of meta.
func newEntity(meta *schema.Entity, names []string, vals []any) (*Entity, error) {
	e := &Entity{Type: meta.Name, Attrs: make(map[string]any, len(names))}
	for i, name := range names {
		v := normalize(vals[i])
		if name == "id" {
			id, err := toInt64(v)
			if err != nil {
				return nil, fmt.Errorf("%s id: %w", meta.Name, err)
			}
			e.ID = id
			continue
		}
		f, ok := meta.Field(name)
		if !ok {
			return nil, schema.NewUnknownField(meta.Name, name, "column")
		}
		if f.Kind != schema.SingleValued {
			e.Attrs[name] = v
			continue
		}
		if v == nil {
			continue
		}
		id, err := toInt64(v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", meta.Name, name, err)
		}
		if e.Refs == nil {
			e.Refs = make(map[string]int64)
		}
		e.Refs[name] = id
	}
	return e, nil
}

// normalize turns driver byte slices into strings.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	default:
		return 0, fmt.Errorf("cannot use %T as an identifier", v)
	}
}
