package criteria

import (
	"fmt"
	"strings"
)

// Ordering is a sort direction.
type Ordering string

const (
	ASC  Ordering = "ASC"
	DESC Ordering = "DESC"
)

// ParseOrdering accepts "asc"/"desc" in any case. Empty means ASC.
func ParseOrdering(s string) (Ordering, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ASC":
		return ASC, nil
	case "DESC":
		return DESC, nil
	default:
		return "", fmt.Errorf("invalid ordering %q: must be ASC or DESC", s)
	}
}

// OrderingField is one ORDER BY entry. Order within a slice is significant.
type OrderingField struct {
	Field    string   `yaml:"field" json:"field"`
	Ordering Ordering `yaml:"ordering" json:"ordering"`
}

// PageControl describes which page to fetch and how to order rows.
//
// A PageSize of zero or less means unlimited: every row on a single page.
type PageControl struct {
	PageNumber     int             `yaml:"page_number" json:"page_number"`
	PageSize       int             `yaml:"page_size" json:"page_size"`
	OrderingFields []OrderingField `yaml:"ordering,omitempty" json:"ordering,omitempty"`
}

// Unlimited returns a page control that fetches all rows.
func Unlimited() PageControl {
	return PageControl{}
}

// NewPageControl returns a limited page control.
func NewPageControl(pageNumber, pageSize int) PageControl {
	return PageControl{PageNumber: pageNumber, PageSize: pageSize}
}

// IsUnlimited reports whether all rows are fetched at once.
func (pc PageControl) IsUnlimited() bool {
	return pc.PageSize <= 0
}

// StartRow is the zero-based offset of the first row of the page.
func (pc PageControl) StartRow() int {
	if pc.IsUnlimited() || pc.PageNumber < 0 {
		return 0
	}
	return pc.PageNumber * pc.PageSize
}

// AddOrdering appends an ordering field unless the field is already present.
func (pc *PageControl) AddOrdering(field string, ord Ordering) {
	for _, of := range pc.OrderingFields {
		if of.Field == field {
			return
		}
	}
	pc.OrderingFields = append(pc.OrderingFields, OrderingField{Field: field, Ordering: ord})
}

// Clone returns a copy that shares no slices with pc.
func (pc PageControl) Clone() PageControl {
	out := pc
	out.OrderingFields = append([]OrderingField(nil), pc.OrderingFields...)
	return out
}

// Next returns the control for the following page with the same size and ordering.
func (pc PageControl) Next() PageControl {
	out := pc.Clone()
	out.PageNumber++
	return out
}

func (pc PageControl) String() string {
	if pc.IsUnlimited() {
		return "PageControl[unlimited]"
	}
	return fmt.Sprintf("PageControl[page=%d, size=%d]", pc.PageNumber, pc.PageSize)
}
