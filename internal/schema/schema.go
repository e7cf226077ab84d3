// Package schema holds the statically declared entity model the query
// generator works against.
//
// Each entity is described once by a table of field descriptors
// (name -> kind, storage mapping, optional override expressions). The
// registry is built and validated at startup and is read-only afterwards,
// so it can be shared between goroutines without locking.
package schema

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/iancoleman/strcase"
	"gopkg.in/yaml.v3"
)

// Kind classifies a field.
type Kind int

const (
	// Scalar is a plain column.
	Scalar Kind = iota

	// SingleValued is a to-one association stored as a foreign key column on
	// the owner's table.
	SingleValued

	// OrderedCollection is a to-many association with an explicit index
	// column. It can be fetch-joined safely.
	OrderedCollection

	// Bag is an unordered to-many association. Fetch-joining more than one
	// bag multiplies rows, so bags are initialized after the main query.
	Bag

	// Elements is a collection of scalar values kept in a side table, such
	// as a role's permissions.
	Elements
)

var kindNames = map[Kind]string{
	Scalar:            "scalar",
	SingleValued:      "single",
	OrderedCollection: "ordered",
	Bag:               "bag",
	Elements:          "elements",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String. Empty means Scalar.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Scalar, nil
	}
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown field kind %q", s)
}

// UnmarshalYAML decodes a kind name.
func (k *Kind) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalYAML encodes a kind by name.
func (k Kind) MarshalYAML() (any, error) {
	return k.String(), nil
}

// IsAssociation reports whether the field points at another entity.
func (k Kind) IsAssociation() bool {
	return k == SingleValued || k == OrderedCollection || k == Bag
}

// IsCollection reports whether the field holds many values.
func (k Kind) IsCollection() bool {
	return k == OrderedCollection || k == Bag || k == Elements
}

// Field describes one field of an entity.
//
// Storage mapping by kind:
//   - Scalar: Column on the owner table.
//   - SingleValued: Column is the foreign key on the owner table.
//   - OrderedCollection, Bag: with JoinTable, rows of JoinTable link
//     JoinColumn (owner id) to InverseJoinColumn (target id); without it,
//     JoinColumn is the foreign key on the target table.
//   - Elements: JoinTable holds JoinColumn (owner id) and Column (value).
type Field struct {
	Name              string `yaml:"name"`
	Kind              Kind   `yaml:"kind,omitempty"`
	Column            string `yaml:"column,omitempty"`
	Target            string `yaml:"target,omitempty"`
	JoinTable         string `yaml:"join_table,omitempty"`
	JoinColumn        string `yaml:"join_column,omitempty"`
	InverseJoinColumn string `yaml:"inverse_join_column,omitempty"`
	OrderColumn       string `yaml:"order_column,omitempty"`

	// FilterOverride replaces the generated filter expression. Each "?"
	// is bound to the filter value.
	FilterOverride string `yaml:"filter_override,omitempty"`

	// SortOverride replaces the field name in ORDER BY.
	SortOverride string `yaml:"sort_override,omitempty"`

	// Virtual fields have no storage and exist only for their overrides,
	// e.g. a "resourceTypeId" filter over "resourceType.id = ?".
	Virtual bool `yaml:"virtual,omitempty"`
}

// IsBag reports whether the field must be initialized after the main query.
func (f *Field) IsBag() bool {
	return f.Kind == Bag
}

// Entity describes a persistent entity.
type Entity struct {
	Name     string   `yaml:"name"`
	Table    string   `yaml:"table,omitempty"`
	IDColumn string   `yaml:"id_column,omitempty"`
	Fields   []*Field `yaml:"fields"`

	byName map[string]*Field
}

// Field looks up a declared field. The identifier is always present, even
// when not declared.
func (e *Entity) Field(name string) (*Field, bool) {
	if f, ok := e.byName[name]; ok {
		return f, true
	}
	if name == "id" {
		return &Field{Name: "id", Kind: Scalar, Column: e.IDColumn}, true
	}
	return nil, false
}

// Alias is the query alias of the entity.
func (e *Entity) Alias() string {
	return Alias(e.Name)
}

// Alias derives a query alias from an entity's simple name: the lowercase of
// each uppercase letter, in order. "AlertDefinition" yields "ad". A name
// without uppercase letters falls back to its lowercased first letter.
func Alias(entity string) string {
	var b strings.Builder
	for _, r := range entity {
		if unicode.IsUpper(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	if b.Len() == 0 && entity != "" {
		r := []rune(entity)
		b.WriteRune(unicode.ToLower(r[0]))
	}
	return b.String()
}

// applyDefaults fills in storage names left empty using snake_case
// conventions.
func (e *Entity) applyDefaults() {
	if e.Table == "" {
		e.Table = strcase.ToSnake(e.Name)
	}
	if e.IDColumn == "" {
		e.IDColumn = "id"
	}
	owner := strcase.ToSnake(e.Name) + "_id"
	for _, f := range e.Fields {
		switch f.Kind {
		case Scalar:
			if f.Column == "" && !f.Virtual {
				f.Column = strcase.ToSnake(f.Name)
			}
		case SingleValued:
			if f.Column == "" {
				f.Column = strcase.ToSnake(f.Name) + "_id"
			}
		case OrderedCollection, Bag:
			if f.JoinColumn == "" {
				f.JoinColumn = owner
			}
			if f.JoinTable != "" && f.InverseJoinColumn == "" {
				f.InverseJoinColumn = strcase.ToSnake(f.Target) + "_id"
			}
		case Elements:
			if f.JoinColumn == "" {
				f.JoinColumn = owner
			}
			if f.Column == "" {
				f.Column = strcase.ToSnake(f.Name)
			}
		}
	}
}
