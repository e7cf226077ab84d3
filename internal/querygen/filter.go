package querygen

import (
	"fmt"
	"strings"

	"github.com/roach88/criteria/internal/queryir"
	"github.com/roach88/criteria/internal/schema"
	"github.com/roach88/criteria/internal/value"
)

// overrideKeywords start override expressions that are left untouched:
// no alias prefix and no LOWER wrapping.
var overrideKeywords = map[string]bool{
	"NOT":    true,
	"EXISTS": true,
}

// filters emits one predicate per active filter, in field name order.
func (b *build) filters() error {
	for _, name := range b.c.FilterNames() {
		v := b.c.Filters[name]
		if v == value.Off {
			continue
		}

		var (
			pred queryir.Predicate
			err  error
		)
		if expr, ok := b.filterOverride(name); ok {
			pred, err = b.overridePredicate(name, expr, v)
		} else {
			pred, err = b.fieldPredicate(name, v)
		}
		if err != nil {
			return err
		}
		b.filterTerms = append(b.filterTerms, pred)
	}
	return nil
}

// filterOverride returns the request override for field, falling back to
// the one declared in the schema.
func (b *build) filterOverride(field string) (string, bool) {
	if expr, ok := b.c.FilterOverrides[field]; ok {
		return expr, true
	}
	if f, ok := b.ent.Field(field); ok && f.FilterOverride != "" {
		return f.FilterOverride, true
	}
	return "", false
}

// fieldPredicate builds the default predicate for a declared scalar field.
func (b *build) fieldPredicate(name string, v value.Value) (queryir.Predicate, error) {
	f, ok := b.ent.Field(name)
	if !ok {
		return nil, schema.NewUnknownField(b.ent.Name, name, "filter")
	}
	if f.Kind != schema.Scalar {
		return nil, &schema.ConfigError{
			Code:    schema.ErrCodeNotAssociation,
			Entity:  b.ent.Name,
			Field:   name,
			Message: fmt.Sprintf("filter on %s field needs an override", f.Kind),
		}
	}
	if v == value.On {
		return nil, &schema.ConfigError{
			Code:    schema.ErrCodeInvalidOverride,
			Entity:  b.ent.Name,
			Field:   name,
			Message: "non-binding filter has no override",
		}
	}

	if err := b.bind(name, v); err != nil {
		return nil, err
	}
	switch v.(type) {
	case value.String:
		return queryir.Like{
			Path:   b.path(name),
			Lower:  !b.c.CaseSensitive,
			Param:  name,
			Escape: b.gen.escape,
		}, nil
	case value.List:
		return queryir.In{Path: b.path(name), Param: name}, nil
	default:
		return queryir.Compare{Path: b.path(name), Param: name}, nil
	}
}

// overridePredicate rewrites an override expression into a Raw fragment.
//
// Each ? is replaced left to right: a single one by :field, several by
// :field_1 .. :field_n bound element-wise from a list of the same length.
// Unless the expression starts with NOT or EXISTS it is rooted at the
// query alias; a case-insensitive fuzzy expression lowercases its first
// token instead. Fuzzy expressions (" like " outside a subselect) get the
// ESCAPE clause.
func (b *build) overridePredicate(name, expr string, v value.Value) (queryir.Predicate, error) {
	expr = strings.TrimSpace(expr)
	if cerr := schema.CheckFilterOverride(b.ent.Name, name, expr); cerr != nil {
		return nil, cerr
	}

	lower := strings.ToLower(expr)
	fuzzy := strings.Contains(lower, " like ") && !strings.Contains(lower, "select")
	caseInsensitive := !b.c.CaseSensitive && fuzzy

	params, err := b.bindOverride(name, strings.Count(expr, "?"), v)
	if err != nil {
		return nil, err
	}
	for _, p := range params {
		expr = strings.Replace(expr, "?", ":"+p, 1)
	}

	first, rest, _ := strings.Cut(expr, " ")
	if !overrideKeywords[strings.ToUpper(first)] {
		if caseInsensitive {
			expr = "LOWER( " + b.alias + "." + first + " ) " + strings.TrimLeft(rest, " ")
		} else {
			expr = b.alias + "." + expr
		}
	}

	raw := queryir.Raw{Text: expr, Params: params}
	if fuzzy {
		raw.Escape = b.gen.escape
	}
	return raw, nil
}

// bindOverride binds v for an override with n placeholders and returns
// the parameter names in placeholder order.
func (b *build) bindOverride(name string, n int, v value.Value) ([]string, error) {
	invalid := func(format string, args ...any) error {
		return &schema.ConfigError{
			Code:    schema.ErrCodeInvalidOverride,
			Entity:  b.ent.Name,
			Field:   name,
			Message: fmt.Sprintf(format, args...),
		}
	}

	switch {
	case v == value.On:
		if n != 0 {
			return nil, invalid("non-binding filter override has %d placeholders", n)
		}
		return nil, nil
	case n == 0:
		return nil, invalid("override binds no value; use a non-binding filter")
	case n == 1:
		if err := b.bind(name, v); err != nil {
			return nil, err
		}
		return []string{name}, nil
	}

	list, ok := v.(value.List)
	if !ok || len(list) != n {
		return nil, invalid("override has %d placeholders and needs a list of %d values", n, n)
	}
	names := make([]string, n)
	for i, elem := range list {
		names[i] = fmt.Sprintf("%s_%d", name, i+1)
		if err := b.bind(names[i], elem); err != nil {
			return nil, err
		}
	}
	return names, nil
}

func (b *build) bind(name string, v value.Value) error {
	if err := b.params.Add(name, FormatBindValue(v, b.formatting())); err != nil {
		return &schema.ConfigError{
			Code:    schema.ErrCodeInvalidOverride,
			Entity:  b.ent.Name,
			Field:   name,
			Message: err.Error(),
		}
	}
	return nil
}
