package schema

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Registry is the validated set of entity descriptors.
type Registry struct {
	entities map[string]*Entity
	order    []string
}

// NewRegistry applies naming defaults to the given descriptors and
// validates them. All problems are reported together.
func NewRegistry(entities ...*Entity) (*Registry, error) {
	r := &Registry{entities: make(map[string]*Entity, len(entities))}
	v := &validator{}

	for _, e := range entities {
		if e == nil || e.Name == "" {
			v.add(invalid("", "", "entity without a name"))
			continue
		}
		if _, dup := r.entities[e.Name]; dup {
			v.add(invalid(e.Name, "", "entity declared twice"))
			continue
		}
		e.applyDefaults()
		e.byName = make(map[string]*Field, len(e.Fields))
		for _, f := range e.Fields {
			if f == nil || f.Name == "" {
				v.add(invalid(e.Name, "", "field without a name"))
				continue
			}
			if _, dup := e.byName[f.Name]; dup {
				v.add(invalid(e.Name, f.Name, "field declared twice"))
				continue
			}
			e.byName[f.Name] = f
		}
		r.entities[e.Name] = e
		r.order = append(r.order, e.Name)
	}

	for _, name := range r.order {
		v.validateEntity(r, r.entities[name])
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	return r, nil
}

// MustRegistry is NewRegistry for statically known descriptors; it panics on
// error.
func MustRegistry(entities ...*Entity) *Registry {
	r, err := NewRegistry(entities...)
	if err != nil {
		panic(err)
	}
	return r
}

// Entity looks up a descriptor by simple name.
func (r *Registry) Entity(name string) (*Entity, error) {
	if e, ok := r.entities[name]; ok {
		return e, nil
	}
	return nil, &ConfigError{
		Code:    ErrCodeUnknownEntity,
		Entity:  name,
		Message: "no descriptor registered",
	}
}

// Entities returns the descriptors in declaration order.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entities[name])
	}
	return out
}

// Step is one hop of a resolved field path.
type Step struct {
	Owner  *Entity
	Field  *Field
	Target *Entity // nil for Scalar and Elements fields
}

// Walk resolves a dotted field path starting at entity. Every hop but the
// last must be an association.
func (r *Registry) Walk(entity string, path []string) ([]Step, error) {
	cur, err := r.Entity(entity)
	if err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(path))
	for i, name := range path {
		f, ok := cur.Field(name)
		if !ok {
			return nil, &ConfigError{
				Code:    ErrCodeUnknownField,
				Entity:  cur.Name,
				Field:   name,
				Message: fmt.Sprintf("path %q does not resolve", strings.Join(path, ".")),
			}
		}
		step := Step{Owner: cur, Field: f}
		if f.Kind.IsAssociation() {
			step.Target = r.entities[f.Target]
		}
		steps = append(steps, step)
		if i == len(path)-1 {
			break
		}
		if step.Target == nil {
			return nil, &ConfigError{
				Code:    ErrCodeNotAssociation,
				Entity:  cur.Name,
				Field:   name,
				Message: fmt.Sprintf("path %q continues past a %s field", strings.Join(path, "."), f.Kind),
			}
		}
		cur = step.Target
	}
	return steps, nil
}

// Document is the YAML form of a descriptor table.
type Document struct {
	Entities []*Entity `yaml:"entities"`
}

// Parse decodes a YAML descriptor table and builds a registry from it.
func Parse(data []byte) (*Registry, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode descriptors: %w", err)
	}
	return NewRegistry(doc.Entities...)
}

// LoadFile reads a YAML descriptor table from path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptors %s: %w", path, err)
	}
	return Parse(data)
}

// Marshal encodes the registry back to its YAML form, with defaults applied.
func (r *Registry) Marshal() ([]byte, error) {
	return yaml.Marshal(Document{Entities: r.Entities()})
}

// validator accumulates problems during descriptor validation.
type validator struct {
	errs []error
}

func (v *validator) add(err *ConfigError) {
	v.errs = append(v.errs, err)
}

func (v *validator) err() error {
	return errors.Join(v.errs...)
}

func (v *validator) validateEntity(r *Registry, e *Entity) {
	for _, f := range e.Fields {
		if f == nil || f.Name == "" {
			continue
		}
		v.validateField(r, e, f)
	}
}

func (v *validator) validateField(r *Registry, e *Entity, f *Field) {
	if f.Name == "id" {
		v.add(invalid(e.Name, f.Name, "the identifier is implicit and cannot be redeclared"))
	}
	if strings.Contains(f.Name, ".") {
		v.add(invalid(e.Name, f.Name, "field names cannot contain '.'"))
	}

	if f.Kind.IsAssociation() {
		if f.Target == "" {
			v.add(invalid(e.Name, f.Name, "%s association needs a target", f.Kind))
		} else if _, ok := r.entities[f.Target]; !ok {
			v.add(invalid(e.Name, f.Name, "target %q is not registered", f.Target))
		}
	} else if f.Target != "" {
		v.add(invalid(e.Name, f.Name, "%s field cannot have a target", f.Kind))
	}

	if f.Virtual {
		if f.Kind != Scalar || f.Column != "" {
			v.add(invalid(e.Name, f.Name, "virtual field cannot have storage"))
		}
		if f.FilterOverride == "" && f.SortOverride == "" {
			v.add(invalid(e.Name, f.Name, "virtual field needs a filter or sort override"))
		}
	}

	switch f.Kind {
	case OrderedCollection:
		if f.OrderColumn == "" {
			v.add(invalid(e.Name, f.Name, "ordered collection needs an order column"))
		}
	case Elements:
		if f.JoinTable == "" {
			v.add(invalid(e.Name, f.Name, "element collection needs a join table"))
		}
	}

	if f.FilterOverride != "" {
		if err := CheckFilterOverride(e.Name, f.Name, f.FilterOverride); err != nil {
			v.add(err)
		}
	}
}

// CheckFilterOverride rejects override expressions that are not of the form
// "<token> <rest>".
func CheckFilterOverride(entity, field, expr string) *ConfigError {
	if !strings.Contains(strings.TrimSpace(expr), " ") {
		return &ConfigError{
			Code:    ErrCodeInvalidOverride,
			Entity:  entity,
			Field:   field,
			Message: fmt.Sprintf("filter override %q must be an expression such as 'name like ?'", expr),
		}
	}
	return nil
}
