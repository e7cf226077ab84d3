package criteria

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/criteria/internal/value"
)

// Request is the on-disk form of a criteria request, as read by the CLI.
//
// Example:
//
//	entity: AlertDefinition
//	filters:
//	  name: foo
//	  priority: [HIGH, MEDIUM]
//	fetch: [conditions, resource]
//	sort:
//	  - field: name
//	    ordering: ASC
//	page: {number: 0, size: 50}
//	authorization:
//	  subject_id: 2
//	  type: resource
//	  join_path: resource
type Request struct {
	Entity              string            `yaml:"entity"`
	Filters             map[string]any    `yaml:"filters,omitempty"`
	Fetch               []string          `yaml:"fetch,omitempty"`
	Sort                []OrderingField   `yaml:"sort,omitempty"`
	Page                *PageSpec         `yaml:"page,omitempty"`
	PageControlOverride *PageControl      `yaml:"page_control_override,omitempty"`
	FilterOverrides     map[string]string `yaml:"filter_overrides,omitempty"`
	SortOverrides       map[string]string `yaml:"sort_overrides,omitempty"`
	CaseSensitive       bool              `yaml:"case_sensitive,omitempty"`
	Strict              bool              `yaml:"strict,omitempty"`
	FiltersOptional     bool              `yaml:"filters_optional,omitempty"`
	Permissions         []Permission      `yaml:"permissions,omitempty"`
	DisableSortID       bool              `yaml:"disable_sort_id,omitempty"`
	Authorization       *AuthSpec         `yaml:"authorization,omitempty"`
}

// PageSpec is the paging section of a request file.
type PageSpec struct {
	Number int `yaml:"number"`
	Size   int `yaml:"size"`
}

// AuthSpec is the authorization section of a request file.
type AuthSpec struct {
	SubjectID int64  `yaml:"subject_id"`
	Type      string `yaml:"type"`
	JoinPath  string `yaml:"join_path,omitempty"`
}

// LoadRequestFile reads and decodes a request file.
func LoadRequestFile(path string) (*Criteria, *AuthorizationContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read request %s: %w", path, err)
	}
	c, auth, err := ParseRequest(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse request %s: %w", path, err)
	}
	return c, auth, nil
}

// ParseRequest decodes YAML request bytes. Unknown keys are rejected.
func ParseRequest(data []byte) (*Criteria, *AuthorizationContext, error) {
	var req Request
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return nil, nil, err
	}
	return req.Build()
}

// Build converts the decoded request into a Criteria and optional
// authorization context.
func (r *Request) Build() (*Criteria, *AuthorizationContext, error) {
	if r.Entity == "" {
		return nil, nil, fmt.Errorf("entity is required")
	}

	c := New(r.Entity)
	for name, raw := range r.Filters {
		v, err := value.FromAny(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("filter %q: %w", name, err)
		}
		c.AddFilter(name, v)
	}
	for _, f := range r.Fetch {
		c.Fetch(f)
	}
	for _, s := range r.Sort {
		ord, err := ParseOrdering(string(s.Ordering))
		if err != nil {
			return nil, nil, fmt.Errorf("sort %q: %w", s.Field, err)
		}
		c.AddSort(s.Field, ord)
	}
	if r.Page != nil {
		c.SetPaging(r.Page.Number, r.Page.Size)
	}
	if r.PageControlOverride != nil {
		c.SetPageControlOverride(*r.PageControlOverride)
	}
	for field, expr := range r.FilterOverrides {
		c.SetFilterOverride(field, expr)
	}
	for field, expr := range r.SortOverrides {
		c.SetSortOverride(field, expr)
	}
	c.CaseSensitive = r.CaseSensitive
	c.Strict = r.Strict
	c.FiltersOptional = r.FiltersOptional
	c.DisableSortID = r.DisableSortID
	c.RequirePermissions(r.Permissions...)

	if r.Authorization == nil {
		return c, nil, nil
	}
	tt, err := ParseTokenType(r.Authorization.Type)
	if err != nil {
		return nil, nil, err
	}
	auth := &AuthorizationContext{
		SubjectID: r.Authorization.SubjectID,
		Type:      tt,
		JoinPath:  r.Authorization.JoinPath,
	}
	return c, auth, nil
}
