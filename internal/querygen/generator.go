// Package querygen translates a criteria request into a data query and a
// count query over the entity model.
//
// Generation is a pure function of the request, the registry and the
// escape character; the generator holds no mutable state between calls and
// is safe for concurrent use once constructed.
package querygen

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/criteria/internal/criteria"
	"github.com/roach88/criteria/internal/dialect"
	"github.com/roach88/criteria/internal/queryir"
	"github.com/roach88/criteria/internal/querytext"
	"github.com/roach88/criteria/internal/schema"
	"github.com/roach88/criteria/internal/value"
)

// Parameter names used by authorization fragments.
const (
	ParamSubjectID         = "subjectId"
	ParamRequiredPerms     = "requiredPerms"
	ParamRequiredPermsSize = "requiredPermsSize"
)

// Join aliases used by authorization fragments.
const (
	AliasAuthResource = "authRes"
	AliasAuthGroup    = "authGroup"
	AliasAuthRole     = "authRole"
	AliasAuthSubject  = "authSubject"
)

// Generated is the query pair produced for one request.
type Generated struct {
	Entity string
	Alias  string

	// Data selects the page rows; Count counts all matching rows. Both share
	// Params.
	Data   queryir.Select
	Count  queryir.Select
	Params queryir.Params

	// Bags lists fetch fields that were left out of the data query and must
	// be initialized per row after fetching.
	Bags []string

	// JoinFetches lists fetch fields loaded by the data query itself.
	JoinFetches []string

	// PageControl is the resolved paging and ordering of the request.
	PageControl criteria.PageControl
}

// DataText renders the data query.
func (g *Generated) DataText() string { return querytext.Render(g.Data) }

// CountText renders the count query.
func (g *Generated) CountText() string { return querytext.Render(g.Count) }

// Fingerprint identifies the data query together with its bind values.
// Paging is not part of it, so every page of a request shares one.
func (g *Generated) Fingerprint() (string, error) {
	return value.Fingerprint(g.DataText(), g.Params.Map())
}

// Generator builds query pairs against a registry.
type Generator struct {
	reg              *schema.Registry
	escape           string
	backslashLiteral bool
	logger           *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger used for debug records of generated queries.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = l
	}
}

// New creates a Generator. The escape character is resolved from esc now
// and kept until Reinitialize is called.
func New(reg *schema.Registry, esc dialect.EscapeProvider, opts ...Option) *Generator {
	g := &Generator{
		reg:    reg,
		logger: slog.Default(),
	}
	g.Reinitialize(esc)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Reinitialize re-resolves the escape character, e.g. after switching
// backends. It must not run concurrently with Generate.
func (g *Generator) Reinitialize(esc dialect.EscapeProvider) {
	g.escape = dialect.EscapeChar(esc)
	g.backslashLiteral = false
	if d, ok := esc.(interface{ BackslashLiteral() bool }); ok {
		g.backslashLiteral = d.BackslashLiteral()
	}
}

// EscapeCharacter returns the resolved escape character.
func (g *Generator) EscapeCharacter() string {
	return g.escape
}

// Registry returns the registry the generator resolves fields against.
func (g *Generator) Registry() *schema.Registry {
	return g.reg
}

// Generate builds the data and count queries for c. auth may be nil.
//
// The request is copied first, so the caller may reuse it afterwards.
// Unknown entities and fields are reported as *schema.ConfigError.
func (g *Generator) Generate(c *criteria.Criteria, auth *criteria.AuthorizationContext) (*Generated, error) {
	if c == nil {
		return nil, fmt.Errorf("nil criteria")
	}
	c = c.Clone()

	ent, err := g.reg.Entity(c.Entity)
	if err != nil {
		return nil, err
	}

	b := &build{
		gen:   g,
		c:     c,
		ent:   ent,
		alias: ent.Alias(),
		pc:    c.PageControl(),
	}

	if err := b.fetches(); err != nil {
		return nil, err
	}
	if err := b.filters(); err != nil {
		return nil, err
	}
	if err := b.authorization(auth); err != nil {
		return nil, err
	}
	if err := b.ordering(); err != nil {
		return nil, err
	}

	out := b.assemble()
	for _, q := range []queryir.Select{out.Data, out.Count} {
		if res := queryir.Validate(q, out.Params); !res.Valid {
			return nil, fmt.Errorf("generated %s query is malformed: %s", q.Entity, strings.Join(res.Problems, "; "))
		}
	}

	g.logger.Debug("criteria query generated",
		"entity", out.Entity,
		"data", out.DataText(),
		"count", out.CountText(),
		"params", out.Params.Names(),
		"bags", out.Bags)

	return out, nil
}

// build carries the state of one Generate call.
type build struct {
	gen   *Generator
	c     *criteria.Criteria
	ent   *schema.Entity
	alias string
	pc    criteria.PageControl

	fetchJoins  []queryir.Join
	authJoins   []queryir.Join
	orderJoins  []queryir.Join
	filterTerms []queryir.Predicate
	authPreds   []queryir.Predicate
	orderBy     []queryir.Order
	params      queryir.Params
	bags        []string
	joinFetches []string
}

func (b *build) formatting() Formatting {
	return Formatting{
		Strict:           b.c.Strict,
		CaseSensitive:    b.c.CaseSensitive,
		Escape:           b.gen.escape,
		BackslashLiteral: b.gen.backslashLiteral,
	}
}

func (b *build) path(fields ...string) queryir.Path {
	return queryir.Path{Root: b.alias, Fields: fields}
}

// fetches splits fetch fields into join fetches and deferred bags.
func (b *build) fetches() error {
	for _, name := range b.c.FetchNames() {
		f, ok := b.ent.Field(name)
		if !ok {
			return schema.NewUnknownField(b.ent.Name, name, "fetch")
		}
		switch f.Kind {
		case schema.Bag, schema.Elements:
			b.bags = append(b.bags, name)
		case schema.SingleValued, schema.OrderedCollection:
			b.fetchJoins = append(b.fetchJoins, queryir.Join{Kind: queryir.LeftJoinFetch, Path: b.path(name)})
			b.joinFetches = append(b.joinFetches, name)
		default:
			return &schema.ConfigError{
				Code:    schema.ErrCodeNotAssociation,
				Entity:  b.ent.Name,
				Field:   name,
				Message: "only associations can be fetched",
			}
		}
	}
	return nil
}

func (b *build) assemble() *Generated {
	where := make([]queryir.Predicate, 0, 1+len(b.authPreds))
	if len(b.filterTerms) > 0 {
		op := queryir.AND
		if b.c.FiltersOptional {
			op = queryir.OR
		}
		where = append(where, queryir.Group{Op: op, Terms: b.filterTerms})
	}
	where = append(where, b.authPreds...)

	dataJoins := make([]queryir.Join, 0, len(b.fetchJoins)+len(b.authJoins)+len(b.orderJoins))
	dataJoins = append(dataJoins, b.fetchJoins...)
	dataJoins = append(dataJoins, b.authJoins...)
	dataJoins = append(dataJoins, b.orderJoins...)

	return &Generated{
		Entity: b.ent.Name,
		Alias:  b.alias,
		Data: queryir.Select{
			Entity:  b.ent.Name,
			Alias:   b.alias,
			Joins:   dataJoins,
			Where:   where,
			OrderBy: b.orderBy,
		},
		Count: queryir.Select{
			Entity: b.ent.Name,
			Alias:  b.alias,
			Count:  true,
			Joins:  append([]queryir.Join(nil), b.authJoins...),
			Where:  where,
		},
		Params:      b.params,
		Bags:        b.bags,
		JoinFetches: b.joinFetches,
		PageControl: b.pc,
	}
}
