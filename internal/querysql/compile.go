// Package querysql compiles query IR into vendor SQL with positional bind
// arguments.
//
// Paths are resolved through the schema registry: every alias maps to an
// entity, scalar fields map to columns, and association hops become joins.
// Values are never interpolated; every parameter becomes one placeholder
// per value, lists expand element-wise.
package querysql

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/criteria/internal/criteria"
	"github.com/roach88/criteria/internal/dialect"
	"github.com/roach88/criteria/internal/queryir"
	"github.com/roach88/criteria/internal/schema"
)

// Statement is one compiled query.
type Statement struct {
	// SQL is the statement without its ORDER BY clause.
	SQL string

	// OrderBy is a complete " ORDER BY ..." fragment, or empty.
	OrderBy string

	// Args bind to the placeholders in order.
	Args []any

	// Columns names the root fields selected by a data statement, in
	// select order. The identifier always comes first.
	Columns []string

	// Extra counts ordering columns selected after Columns. They exist
	// only to satisfy SELECT DISTINCT and are discarded when scanning.
	Extra int
}

// Text returns the full unpaged statement.
func (s Statement) Text() string {
	return s.SQL + s.OrderBy
}

// SQLCompiler compiles query IR for one dialect.
//
// CRITICAL: All values are parameterized, never interpolated.
type SQLCompiler struct {
	reg *schema.Registry
	d   dialect.Dialect
}

// NewSQLCompiler creates a compiler resolving paths against reg.
func NewSQLCompiler(reg *schema.Registry, d dialect.Dialect) *SQLCompiler {
	return &SQLCompiler{reg: reg, d: d}
}

// Dialect returns the target dialect.
func (c *SQLCompiler) Dialect() dialect.Dialect {
	return c.d
}

// Compile converts a query and its parameters to SQL.
//
// Fetch joins are not rendered: they never restrict rows, and callers load
// fetched associations separately. A data query that joins a collection
// selects DISTINCT rows; a count query always counts distinct identifiers.
func (c *SQLCompiler) Compile(q queryir.Query, params queryir.Params) (Statement, error) {
	var sel queryir.Select
	switch query := q.(type) {
	case queryir.Select:
		sel = query
	case *queryir.Select:
		if query == nil {
			return Statement{}, fmt.Errorf("cannot compile nil query")
		}
		sel = *query
	default:
		return Statement{}, fmt.Errorf("unsupported query type: %T", q)
	}

	root, err := c.reg.Entity(sel.Entity)
	if err != nil {
		return Statement{}, err
	}

	s := &scope{
		c:        c,
		aliases:  map[string]*schema.Entity{sel.Alias: root},
		implicit: map[string]string{},
		values:   params.Map(),
	}

	for _, j := range sel.Joins {
		if err := s.explicitJoin(j); err != nil {
			return Statement{}, fmt.Errorf("join %s: %w", j.Path, err)
		}
	}

	var where []string
	for _, p := range sel.Where {
		frag, err := s.predicate(p)
		if err != nil {
			return Statement{}, err
		}
		where = append(where, frag)
	}

	var orderBy []string
	for _, o := range sel.OrderBy {
		frag, err := s.operand(o.By)
		if err != nil {
			return Statement{}, fmt.Errorf("order by: %w", err)
		}
		orderBy = append(orderBy, frag+" "+o.Direction)
	}

	stmt := Statement{Args: s.args}
	var b strings.Builder
	b.WriteString("SELECT ")
	if sel.Count {
		fmt.Fprintf(&b, "COUNT(DISTINCT %s.%s)", sel.Alias, root.IDColumn)
	} else {
		cols, names := SelectList(sel.Alias, root)
		stmt.Columns = names
		if s.collection {
			b.WriteString("DISTINCT ")
			extra := distinctOrderColumns(sel.OrderBy, orderBy, cols)
			cols = append(cols, extra...)
			stmt.Extra = len(extra)
		}
		b.WriteString(strings.Join(cols, ", "))
	}
	fmt.Fprintf(&b, " FROM %s %s", root.Table, sel.Alias)
	for _, j := range s.joins {
		b.WriteString(" " + j)
	}
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	stmt.SQL = b.String()
	if len(orderBy) > 0 && !sel.Count {
		stmt.OrderBy = " ORDER BY " + strings.Join(orderBy, ", ")
	}
	return stmt, nil
}

// Page renders s for the given page using the dialect's paging form.
func (c *SQLCompiler) Page(s Statement, pc criteria.PageControl) string {
	if pc.IsUnlimited() {
		return s.Text()
	}
	return c.d.Paginate(s.SQL, s.OrderBy, pc.PageSize, pc.StartRow())
}

// SelectList returns the columns of an entity row: the identifier,
// stored scalars and to-one foreign keys, in declaration order.
func SelectList(alias string, e *schema.Entity) (cols, names []string) {
	cols = []string{alias + "." + e.IDColumn}
	names = []string{"id"}
	for _, f := range e.Fields {
		if f.Virtual {
			continue
		}
		switch f.Kind {
		case schema.Scalar, schema.SingleValued:
			cols = append(cols, alias+"."+f.Column)
			names = append(names, f.Name)
		}
	}
	return cols, names
}

// distinctOrderColumns lists ORDER BY expressions missing from the select
// list; SELECT DISTINCT requires them to be selected.
func distinctOrderColumns(order []queryir.Order, rendered, cols []string) []string {
	var extra []string
	for i, o := range order {
		if _, ordinal := o.By.(queryir.Ordinal); ordinal {
			continue
		}
		expr := strings.TrimSuffix(rendered[i], " "+o.Direction)
		if slices.Contains(cols, expr) || slices.Contains(extra, expr) {
			continue
		}
		extra = append(extra, expr)
	}
	return extra
}

// scope tracks aliases, joins and arguments while one query compiles.
type scope struct {
	c          *SQLCompiler
	aliases    map[string]*schema.Entity
	implicit   map[string]string
	joins      []string
	args       []any
	values     map[string]any
	sub        map[string]bool
	next       int
	collection bool
}

func (s *scope) placeholder(v any) string {
	s.args = append(s.args, v)
	return s.c.d.Placeholder(len(s.args))
}

// bindParam renders the placeholders for a named parameter. A list
// expands to one placeholder per element; an empty list renders NULL so
// that IN ( NULL ) matches nothing.
func (s *scope) bindParam(name string) (string, error) {
	v, ok := s.values[name]
	if !ok {
		return "", fmt.Errorf("parameter %q is not bound", name)
	}
	list, isList := v.([]any)
	if !isList {
		return s.placeholder(v), nil
	}
	if len(list) == 0 {
		return "NULL", nil
	}
	parts := make([]string, len(list))
	for i, e := range list {
		parts[i] = s.placeholder(e)
	}
	return strings.Join(parts, ", "), nil
}

func joinKeyword(k queryir.JoinKind) string {
	if k == queryir.LeftJoin {
		return "LEFT JOIN"
	}
	return "JOIN"
}

func (s *scope) explicitJoin(j queryir.Join) error {
	if j.Kind == queryir.LeftJoinFetch {
		return nil
	}
	owner, ok := s.aliases[j.Path.Root]
	if !ok {
		return fmt.Errorf("unknown alias %q", j.Path.Root)
	}
	if len(j.Path.Fields) == 0 {
		return fmt.Errorf("join needs at least one hop")
	}
	kw := joinKeyword(j.Kind)

	from := j.Path.Root
	for i, name := range j.Path.Fields {
		as := j.Alias
		if i < len(j.Path.Fields)-1 {
			as = s.newAlias()
		}
		target, err := s.hop(kw, from, owner, name, as)
		if err != nil {
			return err
		}
		from, owner = as, target
	}
	s.aliases[j.Alias] = owner
	return nil
}

func (s *scope) newAlias() string {
	s.next++
	return "j" + strconv.Itoa(s.next)
}

// hop emits the join clauses for one association hop from alias "from"
// and returns the target entity, reachable as "as".
func (s *scope) hop(kw, from string, owner *schema.Entity, name, as string) (*schema.Entity, error) {
	f, ok := owner.Field(name)
	if !ok {
		return nil, schema.NewUnknownField(owner.Name, name, "join")
	}
	if !f.Kind.IsAssociation() {
		return nil, &schema.ConfigError{
			Code:    schema.ErrCodeNotAssociation,
			Entity:  owner.Name,
			Field:   name,
			Message: fmt.Sprintf("cannot join through a %s field", f.Kind),
		}
	}
	target, err := s.c.reg.Entity(f.Target)
	if err != nil {
		return nil, err
	}

	switch {
	case f.Kind == schema.SingleValued:
		s.joins = append(s.joins, fmt.Sprintf("%s %s %s ON %s.%s = %s.%s",
			kw, target.Table, as, as, target.IDColumn, from, f.Column))
	case f.JoinTable != "":
		link := as + "_l"
		s.joins = append(s.joins,
			fmt.Sprintf("%s %s %s ON %s.%s = %s.%s", kw, f.JoinTable, link, link, f.JoinColumn, from, owner.IDColumn),
			fmt.Sprintf("%s %s %s ON %s.%s = %s.%s", kw, target.Table, as, as, target.IDColumn, link, f.InverseJoinColumn))
		s.collection = true
	default:
		s.joins = append(s.joins, fmt.Sprintf("%s %s %s ON %s.%s = %s.%s",
			kw, target.Table, as, as, f.JoinColumn, from, owner.IDColumn))
		s.collection = true
	}
	return target, nil
}

// column resolves a path to a qualified column. Intermediate hops must be
// to-one associations and become inner joins, shared between paths.
// "x.assoc.id" and "x.assoc" both resolve to the foreign key column.
func (s *scope) column(p queryir.Path) (string, error) {
	owner, ok := s.aliases[p.Root]
	if !ok {
		return "", fmt.Errorf("path %s uses unknown alias %q", p, p.Root)
	}
	if len(p.Fields) == 0 {
		return p.Root + "." + owner.IDColumn, nil
	}

	from := p.Root
	for i, name := range p.Fields[:len(p.Fields)-1] {
		f, ok := owner.Field(name)
		if !ok {
			return "", schema.NewUnknownField(owner.Name, name, "path")
		}
		if f.Kind != schema.SingleValued {
			return "", &schema.ConfigError{
				Code:    schema.ErrCodeNotAssociation,
				Entity:  owner.Name,
				Field:   name,
				Message: fmt.Sprintf("path %s cannot navigate a %s field", p, f.Kind),
			}
		}
		if i == len(p.Fields)-2 && p.Fields[i+1] == "id" {
			return from + "." + f.Column, nil
		}

		key := from + "." + name
		as, seen := s.implicit[key]
		if !seen {
			as = s.newAlias()
			if _, err := s.hop("JOIN", from, owner, name, as); err != nil {
				return "", err
			}
			s.implicit[key] = as
		}
		owner, _ = s.c.reg.Entity(f.Target)
		from = as
	}

	last := p.Fields[len(p.Fields)-1]
	f, ok := owner.Field(last)
	if !ok {
		return "", schema.NewUnknownField(owner.Name, last, "path")
	}
	switch {
	case f.Virtual:
		return "", fmt.Errorf("path %s ends at virtual field %s.%s", p, owner.Name, last)
	case f.Kind == schema.Scalar, f.Kind == schema.SingleValued:
		return from + "." + f.Column, nil
	default:
		return "", fmt.Errorf("path %s ends at %s field %s.%s", p, f.Kind, owner.Name, last)
	}
}

func (s *scope) predicate(p queryir.Predicate) (string, error) {
	switch pred := p.(type) {
	case queryir.Like:
		col, err := s.column(pred.Path)
		if err != nil {
			return "", err
		}
		if pred.Lower {
			col = "LOWER(" + col + ")"
		}
		val, err := s.bindParam(pred.Param)
		if err != nil {
			return "", err
		}
		return col + " LIKE " + val + s.escape(pred.Escape), nil
	case queryir.Compare:
		col, err := s.column(pred.Path)
		if err != nil {
			return "", err
		}
		val, err := s.bindParam(pred.Param)
		if err != nil {
			return "", err
		}
		return col + " = " + val, nil
	case queryir.In:
		col, err := s.column(pred.Path)
		if err != nil {
			return "", err
		}
		val, err := s.bindParam(pred.Param)
		if err != nil {
			return "", err
		}
		return col + " IN (" + val + ")", nil
	case queryir.Raw:
		text, err := s.rewrite(pred.Text)
		if err != nil {
			return "", err
		}
		return "(" + text + s.escape(pred.Escape) + ")", nil
	case queryir.PermissionCount:
		return s.permissionCount(pred)
	case queryir.Group:
		parts := make([]string, len(pred.Terms))
		for i, t := range pred.Terms {
			frag, err := s.predicate(t)
			if err != nil {
				return "", err
			}
			parts[i] = frag
		}
		return "(" + strings.Join(parts, " "+string(pred.Op)+" ") + ")", nil
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// escape binds the escape character instead of quoting it, since vendors
// disagree on backslashes inside string literals.
func (s *scope) escape(esc string) string {
	if esc == "" {
		return ""
	}
	return " ESCAPE " + s.placeholder(esc)
}

// subselectFrom matches the FROM clause of a subselect inside an override:
// an entity name and the alias it binds.
var subselectFrom = regexp.MustCompile(`(?i:\bFROM)\s+([A-Za-z_][A-Za-z0-9_]*)\s+(?:(?i:AS)\s+)?([A-Za-z_][A-Za-z0-9_]*)`)

// fragmentToken matches a subselect FROM clause, a parameter reference,
// an identifier with an optional dotted path, or a string literal.
var fragmentToken = regexp.MustCompile(subselectFrom.String() +
	`|:([A-Za-z_][A-Za-z0-9_]*)|\b([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)|('(?:[^']|'')*')`)

// clauseKeywords cannot follow an entity name as its alias.
var clauseKeywords = map[string]bool{
	"WHERE": true, "JOIN": true, "INNER": true, "LEFT": true, "ON": true,
	"GROUP": true, "ORDER": true, "HAVING": true, "UNION": true,
	"AND": true, "OR": true, "LIMIT": true,
}

// rewrite translates an override fragment. Subselect entities become
// tables and their aliases join the scope, and parameters become
// placeholders. A bare alias becomes its identifier column, a path rooted
// at a known alias becomes a column. String literals and anything else
// are kept.
func (s *scope) rewrite(text string) (string, error) {
	if err := s.subselects(text); err != nil {
		return "", err
	}

	var b strings.Builder
	last := 0
	for _, m := range fragmentToken.FindAllStringSubmatchIndex(text, -1) {
		b.WriteString(text[last:m[0]])
		last = m[1]

		var (
			out string
			err error
		)
		switch {
		case m[2] >= 0:
			var e *schema.Entity
			if e, err = s.c.reg.Entity(text[m[2]:m[3]]); err == nil {
				out = "FROM " + e.Table + " " + text[m[4]:m[5]]
			}
		case m[6] >= 0:
			out, err = s.bindParam(text[m[6]:m[7]])
		case m[8] >= 0:
			out, err = s.identifier(text[m[8]:m[9]])
		default:
			out = text[m[10]:m[11]]
		}
		if err != nil {
			return "", err
		}
		b.WriteString(out)
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

// subselects registers the alias of every subselect FROM clause in text.
// A subselect alias may not shadow an alias of the enclosing query.
func (s *scope) subselects(text string) error {
	for _, m := range subselectFrom.FindAllStringSubmatch(text, -1) {
		name, alias := m[1], m[2]
		if clauseKeywords[strings.ToUpper(alias)] {
			return &schema.ConfigError{
				Code:    schema.ErrCodeInvalidOverride,
				Entity:  name,
				Message: fmt.Sprintf("subselect from %s needs an alias", name),
			}
		}
		e, err := s.c.reg.Entity(name)
		if err != nil {
			return err
		}
		if _, taken := s.aliases[alias]; taken && !s.sub[alias] {
			return &schema.ConfigError{
				Code:    schema.ErrCodeInvalidOverride,
				Entity:  name,
				Message: fmt.Sprintf("subselect alias %q shadows a query alias", alias),
			}
		}
		if s.sub == nil {
			s.sub = map[string]bool{}
		}
		s.aliases[alias] = e
		s.sub[alias] = true
	}
	return nil
}

// identifier resolves a token rooted at a known alias. Paths from a
// subselect alias stay inside its row: joins would land in the enclosing
// query.
func (s *scope) identifier(tok string) (string, error) {
	p := queryir.P(tok)
	e, known := s.aliases[p.Root]
	if !known {
		return tok, nil
	}
	if s.sub[p.Root] && len(p.Fields) > 1 && (len(p.Fields) > 2 || p.Fields[1] != "id") {
		return "", &schema.ConfigError{
			Code:    schema.ErrCodeInvalidOverride,
			Entity:  e.Name,
			Field:   p.Fields[0],
			Message: fmt.Sprintf("subselect path %s cannot navigate associations", p),
		}
	}
	return s.column(p)
}

func (s *scope) operand(o queryir.Operand) (string, error) {
	switch by := o.(type) {
	case queryir.Path:
		return s.column(by)
	case queryir.Ordinal:
		return string(by), nil
	case queryir.Verbatim:
		return s.rewrite(string(by))
	default:
		return "", fmt.Errorf("unsupported order operand: %T", o)
	}
}

// permissionCount renders the required-permission check against the
// Subject -> roles -> permissions tables of the registry.
func (s *scope) permissionCount(p queryir.PermissionCount) (string, error) {
	subject, err := s.c.reg.Entity("Subject")
	if err != nil {
		return "", err
	}
	roles, ok := subject.Field("roles")
	if !ok || !roles.Kind.IsCollection() {
		return "", schema.NewUnknownField(subject.Name, "roles", "permission check")
	}
	role, err := s.c.reg.Entity(roles.Target)
	if err != nil {
		return "", err
	}
	perms, ok := role.Field("permissions")
	if !ok || perms.Kind != schema.Elements {
		return "", schema.NewUnknownField(role.Name, "permissions", "permission check")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "(SELECT COUNT(DISTINCT pp.%s) FROM %s ps", perms.Column, subject.Table)
	roleID := "psr." + role.IDColumn
	if roles.JoinTable != "" {
		fmt.Fprintf(&b, " JOIN %s psr ON psr.%s = ps.%s", roles.JoinTable, roles.JoinColumn, subject.IDColumn)
		roleID = "psr." + roles.InverseJoinColumn
	} else {
		fmt.Fprintf(&b, " JOIN %s psr ON psr.%s = ps.%s", role.Table, roles.JoinColumn, subject.IDColumn)
	}
	fmt.Fprintf(&b, " JOIN %s pp ON pp.%s = %s", perms.JoinTable, perms.JoinColumn, roleID)

	subjectVal, err := s.bindParam(p.SubjectParam)
	if err != nil {
		return "", err
	}
	permVals, err := s.bindParam(p.PermsParam)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, " WHERE ps.%s = %s AND pp.%s IN (%s))", subject.IDColumn, subjectVal, perms.Column, permVals)

	size, err := s.bindParam(p.SizeParam)
	if err != nil {
		return "", err
	}
	return b.String() + " = " + size, nil
}
