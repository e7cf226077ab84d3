package queryir

import (
	"fmt"
	"regexp"
)

// ValidationResult contains the structural problems found in a query.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems lists every violation found, in traversal order.
	Problems []string
}

// Validate checks a query against its parameter list.
//
// Rules:
//  1. Every path is rooted at the query alias or an earlier join alias
//  2. Join aliases are unique; fetch joins have none, other joins need one
//  3. A count query carries no fetch joins and no ORDER BY
//  4. Every referenced parameter is bound, and every bound one is used
//  5. Groups are non-empty AND / OR conjunctions
//
// Validate is a pure function with no side effects.
func Validate(query Query, params Params) ValidationResult {
	v := &validator{
		problems: []string{},
		used:     map[string]bool{},
	}
	v.validateQuery(query, params)

	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
	aliases  map[string]bool
	params   Params
	used     map[string]bool
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query, params Params) {
	switch query := q.(type) {
	case Select:
		v.validateSelect(query, params)
	case *Select:
		if query == nil {
			v.addProblem("nil query")
			return
		}
		v.validateSelect(*query, params)
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select, params Params) {
	v.params = params
	if sel.Entity == "" {
		v.addProblem("select without entity")
	}
	if sel.Alias == "" {
		v.addProblem("select without alias")
	}
	v.aliases = map[string]bool{sel.Alias: true}

	for _, j := range sel.Joins {
		v.validateJoin(sel, j)
	}
	for _, p := range sel.Where {
		v.validatePredicate(p)
	}
	if sel.Count && len(sel.OrderBy) > 0 {
		v.addProblem("count query has ORDER BY")
	}
	for _, o := range sel.OrderBy {
		v.validateOrder(o)
	}

	for _, p := range params {
		if !v.used[p.Name] {
			v.addProblem("parameter %q is bound but never referenced", p.Name)
		}
	}
}

func (v *validator) validateJoin(sel Select, j Join) {
	v.checkPath(j.Path, "join")
	if len(j.Path.Fields) == 0 {
		v.addProblem("join on bare alias %q", j.Path.Root)
	}
	switch j.Kind {
	case LeftJoinFetch:
		if sel.Count {
			v.addProblem("count query fetch-joins %s", j.Path)
		}
		if j.Alias != "" {
			v.addProblem("fetch join %s cannot declare alias %q", j.Path, j.Alias)
		}
	case InnerJoin, LeftJoin:
		if j.Alias == "" {
			v.addProblem("%s %s needs an alias", j.Kind, j.Path)
			return
		}
		if v.aliases[j.Alias] {
			v.addProblem("alias %q declared twice", j.Alias)
		}
		v.aliases[j.Alias] = true
	default:
		v.addProblem("unknown join kind %d", int(j.Kind))
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case Like:
		v.checkPath(pred.Path, "like")
		v.useParam(pred.Param)
		if len([]rune(pred.Escape)) != 1 {
			v.addProblem("like on %s needs a single escape character, got %q", pred.Path, pred.Escape)
		}
	case Compare:
		v.checkPath(pred.Path, "compare")
		v.useParam(pred.Param)
	case In:
		v.checkPath(pred.Path, "in")
		v.useParam(pred.Param)
		if val, ok := v.params.Get(pred.Param); ok {
			if _, isList := val.([]any); !isList {
				v.addProblem("IN parameter %q is not a list", pred.Param)
			}
		}
	case Raw:
		v.validateRaw(pred)
	case PermissionCount:
		v.useParam(pred.SubjectParam)
		v.useParam(pred.PermsParam)
		v.useParam(pred.SizeParam)
	case Group:
		if pred.Op != AND && pred.Op != OR {
			v.addProblem("group with conjunction %q", pred.Op)
		}
		if len(pred.Terms) == 0 {
			v.addProblem("empty group")
		}
		for _, t := range pred.Terms {
			v.validatePredicate(t)
		}
	case nil:
		v.addProblem("nil predicate")
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}

var rawParamRef = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

func (v *validator) validateRaw(r Raw) {
	if r.Text == "" {
		v.addProblem("empty override fragment")
	}
	declared := map[string]bool{}
	for _, name := range r.Params {
		declared[name] = true
		v.useParam(name)
	}
	for _, m := range rawParamRef.FindAllStringSubmatch(r.Text, -1) {
		if !declared[m[1]] {
			v.addProblem("override fragment references undeclared parameter %q", m[1])
		}
	}
}

func (v *validator) validateOrder(o Order) {
	if o.Direction != "ASC" && o.Direction != "DESC" {
		v.addProblem("order direction %q", o.Direction)
	}
	switch by := o.By.(type) {
	case Path:
		v.checkPath(by, "order")
	case Ordinal, Verbatim:
	default:
		v.addProblem("unknown order operand: %T", o.By)
	}
}

func (v *validator) checkPath(p Path, where string) {
	if !v.aliases[p.Root] {
		v.addProblem("%s path %s uses undeclared alias %q", where, p, p.Root)
	}
}

func (v *validator) useParam(name string) {
	if _, ok := v.params.Get(name); !ok {
		v.addProblem("parameter %q is referenced but not bound", name)
	}
	v.used[name] = true
}
