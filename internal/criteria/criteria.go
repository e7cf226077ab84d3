// Package criteria holds the declarative request consumed by the query
// generator: what to filter, sort, fetch and authorize, and which page to
// return.
//
// A Criteria is plain data. The generator clones it before use, so a
// request handed to a generation call cannot change underneath it.
package criteria

import (
	"maps"
	"slices"

	"github.com/roach88/criteria/internal/value"
)

// FilterOff and FilterOn are the non-binding filter values. An OFF filter is
// skipped; an ON filter keeps its override fragment without binding a value.
const (
	FilterOff = value.Off
	FilterOn  = value.On
)

// Criteria is the filter/sort/fetch/authorization request for one entity.
type Criteria struct {
	// Entity is the simple name of the queried entity, e.g. "AlertDefinition".
	Entity string

	// Filters maps field name to bound value. Generation iterates the names
	// in sorted order so the produced text is deterministic.
	Filters map[string]value.Value

	// Fetches is the set of association fields to eager-load.
	Fetches map[string]bool

	// Sorts are explicit ORDER BY entries, in order.
	Sorts []OrderingField

	// DefaultOrdering is used when Sorts is empty.
	DefaultOrdering []OrderingField

	// FilterOverrides and SortOverrides replace the expression generated for
	// a field. They take precedence over overrides declared in the schema.
	FilterOverrides map[string]string
	SortOverrides   map[string]string

	// PageNumber is zero-based. PageSize <= 0 means unlimited.
	PageNumber int
	PageSize   int

	// PageControlOverride replaces normal sorting entirely: its ordering
	// fields are rendered verbatim.
	PageControlOverride *PageControl

	CaseSensitive   bool
	Strict          bool
	FiltersOptional bool

	RequiredPermissions []Permission

	// DisableSortID stops the implicit "id ASC" tiebreaker that is otherwise
	// appended whenever paging is limited.
	DisableSortID bool
}

// New returns an empty request for entity.
func New(entity string) *Criteria {
	return &Criteria{Entity: entity}
}

// AddFilter sets the bound value for a filter field.
func (c *Criteria) AddFilter(field string, v value.Value) *Criteria {
	if c.Filters == nil {
		c.Filters = make(map[string]value.Value)
	}
	c.Filters[field] = v
	return c
}

// Fetch marks an association for eager loading.
func (c *Criteria) Fetch(field string) *Criteria {
	if c.Fetches == nil {
		c.Fetches = make(map[string]bool)
	}
	c.Fetches[field] = true
	return c
}

// AddSort appends an ordering field. A field already sorted on is replaced
// in place so the first declaration keeps its position.
func (c *Criteria) AddSort(field string, ord Ordering) *Criteria {
	for i := range c.Sorts {
		if c.Sorts[i].Field == field {
			c.Sorts[i].Ordering = ord
			return c
		}
	}
	c.Sorts = append(c.Sorts, OrderingField{Field: field, Ordering: ord})
	return c
}

// SetPaging selects a zero-based page of the given size.
func (c *Criteria) SetPaging(pageNumber, pageSize int) *Criteria {
	c.PageNumber = pageNumber
	c.PageSize = pageSize
	return c
}

// ClearPaging makes the request unlimited.
func (c *Criteria) ClearPaging() *Criteria {
	c.PageNumber = 0
	c.PageSize = 0
	return c
}

// SetPageControlOverride forces an arbitrary page control.
func (c *Criteria) SetPageControlOverride(pc PageControl) *Criteria {
	pc = pc.Clone()
	c.PageControlOverride = &pc
	return c
}

// SetFilterOverride registers a raw filter expression for field. Each "?"
// in expr becomes a named parameter derived from the field name.
func (c *Criteria) SetFilterOverride(field, expr string) *Criteria {
	if c.FilterOverrides == nil {
		c.FilterOverrides = make(map[string]string)
	}
	c.FilterOverrides[field] = expr
	return c
}

// SetSortOverride registers a raw sort expression for field.
func (c *Criteria) SetSortOverride(field, expr string) *Criteria {
	if c.SortOverrides == nil {
		c.SortOverrides = make(map[string]string)
	}
	c.SortOverrides[field] = expr
	return c
}

// RequirePermissions appends required permissions.
func (c *Criteria) RequirePermissions(perms ...Permission) *Criteria {
	c.RequiredPermissions = append(c.RequiredPermissions, perms...)
	return c
}

// FilterNames returns the filter field names in sorted order.
func (c *Criteria) FilterNames() []string {
	return slices.Sorted(maps.Keys(c.Filters))
}

// FetchNames returns the fetched field names in sorted order.
func (c *Criteria) FetchNames() []string {
	names := make([]string, 0, len(c.Fetches))
	for name, on := range c.Fetches {
		if on {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// HasCustomizedSorting reports whether a page control override is set.
func (c *Criteria) HasCustomizedSorting() bool {
	return c.PageControlOverride != nil
}

// PageControl resolves the effective page control.
//
// An override is returned as is. Otherwise the page number and size come
// from the request, ordering from Sorts (or DefaultOrdering when there are
// none), and "id ASC" is appended when paging is limited so consecutive
// pages never overlap.
func (c *Criteria) PageControl() PageControl {
	if c.PageControlOverride != nil {
		return c.PageControlOverride.Clone()
	}

	pc := NewPageControl(c.PageNumber, c.PageSize)
	ordering := c.Sorts
	if len(ordering) == 0 {
		ordering = c.DefaultOrdering
	}
	for _, of := range ordering {
		pc.AddOrdering(of.Field, of.Ordering)
	}
	if !pc.IsUnlimited() && !c.DisableSortID {
		pc.AddOrdering("id", ASC)
	}
	return pc
}

// Clone returns a deep copy of c.
func (c *Criteria) Clone() *Criteria {
	out := *c
	if c.Filters != nil {
		out.Filters = make(map[string]value.Value, len(c.Filters))
		for k, v := range c.Filters {
			if l, ok := v.(value.List); ok {
				v = slices.Clone(l)
			}
			out.Filters[k] = v
		}
	}
	out.Fetches = maps.Clone(c.Fetches)
	out.Sorts = slices.Clone(c.Sorts)
	out.DefaultOrdering = slices.Clone(c.DefaultOrdering)
	out.FilterOverrides = maps.Clone(c.FilterOverrides)
	out.SortOverrides = maps.Clone(c.SortOverrides)
	out.RequiredPermissions = slices.Clone(c.RequiredPermissions)
	if c.PageControlOverride != nil {
		pc := c.PageControlOverride.Clone()
		out.PageControlOverride = &pc
	}
	return &out
}
