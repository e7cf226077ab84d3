// Package querytext renders query IR as object-query text, the form used
// for logging, golden tests and the CLI "generate" command.
//
//	SELECT x FROM Entity x LEFT JOIN FETCH x.definition
//	  WHERE ( LOWER( x.name ) like :name ESCAPE '\' ) ORDER BY x.name ASC
//
// Text is a single line. Parameters stay as ":name" references unless
// Inline is used.
package querytext

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/criteria/internal/queryir"
)

// Render returns the text of q.
func Render(q queryir.Select) string {
	var b strings.Builder

	b.WriteString("SELECT ")
	if q.Count {
		fmt.Fprintf(&b, "COUNT(%s)", q.Alias)
	} else {
		b.WriteString(q.Alias)
	}
	fmt.Fprintf(&b, " FROM %s %s", q.Entity, q.Alias)

	for _, j := range q.Joins {
		fmt.Fprintf(&b, " %s %s", j.Kind, j.Path)
		if j.Alias != "" {
			b.WriteString(" " + j.Alias)
		}
	}

	if len(q.Where) > 0 {
		parts := make([]string, len(q.Where))
		for i, p := range q.Where {
			parts[i] = Predicate(p)
		}
		b.WriteString(" WHERE " + strings.Join(parts, " AND "))
	}

	if len(q.OrderBy) > 0 {
		parts := make([]string, len(q.OrderBy))
		for i, o := range q.OrderBy {
			parts[i] = operand(o.By) + " " + o.Direction
		}
		b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}

	return b.String()
}

// Predicate renders a single predicate.
func Predicate(p queryir.Predicate) string {
	switch pred := p.(type) {
	case queryir.Like:
		left := pred.Path.String()
		if pred.Lower {
			left = "LOWER( " + left + " )"
		}
		return fmt.Sprintf("%s like :%s%s", left, pred.Param, escapeClause(pred.Escape))
	case queryir.Compare:
		return fmt.Sprintf("%s = :%s", pred.Path, pred.Param)
	case queryir.In:
		return fmt.Sprintf("%s IN ( :%s )", pred.Path, pred.Param)
	case queryir.Raw:
		return pred.Text + escapeClause(pred.Escape)
	case queryir.PermissionCount:
		return fmt.Sprintf("(SELECT COUNT(DISTINCT p) FROM Subject inner JOIN inner.roles r JOIN r.permissions p"+
			" WHERE inner.id = :%s AND p IN ( :%s )) = :%s", pred.SubjectParam, pred.PermsParam, pred.SizeParam)
	case queryir.Group:
		parts := make([]string, len(pred.Terms))
		for i, t := range pred.Terms {
			parts[i] = Predicate(t)
		}
		return "( " + strings.Join(parts, " "+string(pred.Op)+" ") + " )"
	default:
		return fmt.Sprintf("/* unsupported predicate %T */", p)
	}
}

func operand(o queryir.Operand) string {
	switch by := o.(type) {
	case queryir.Path:
		return by.String()
	case queryir.Ordinal:
		return string(by)
	case queryir.Verbatim:
		return string(by)
	default:
		return fmt.Sprintf("/* unsupported operand %T */", o)
	}
}

func escapeClause(esc string) string {
	if esc == "" {
		return ""
	}
	return " ESCAPE '" + esc + "'"
}

var paramRef = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// Inline renders q with every bound parameter replaced by a literal. The
// result is for debugging only and must never be executed.
func Inline(q queryir.Select, params queryir.Params) string {
	values := params.Map()
	return paramRef.ReplaceAllStringFunc(Render(q), func(ref string) string {
		v, ok := values[ref[1:]]
		if !ok {
			return ref
		}
		return Literal(v)
	})
}

// Literal formats a Go native bind value as query text.
func Literal(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = Literal(e)
		}
		return strings.Join(parts, ", ")
	case nil:
		return "NULL"
	default:
		return fmt.Sprint(val)
	}
}
