package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/criteria/internal/queryir"
	"github.com/roach88/criteria/internal/querytext"
	"github.com/roach88/criteria/internal/store"
)

// formatEntity renders a row on one line: type and id, then attributes,
// to-one references and loaded associations, each sorted by field name.
//
//	AlertDefinition#1 name="cpu high" priority="HIGH" resource->1 conditions=[2]
func formatEntity(e *store.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s#%d", e.Type, e.ID)

	for _, k := range slices.Sorted(maps.Keys(e.Attrs)) {
		fmt.Fprintf(&b, " %s=%s", k, formatScalar(e.Attrs[k]))
	}
	for _, k := range slices.Sorted(maps.Keys(e.Refs)) {
		if _, loaded := e.Assoc[k]; loaded {
			continue
		}
		fmt.Fprintf(&b, " %s->%d", k, e.Refs[k])
	}
	for _, k := range slices.Sorted(maps.Keys(e.Assoc)) {
		switch v := e.Assoc[k].(type) {
		case *store.Entity:
			if v == nil {
				fmt.Fprintf(&b, " %s=null", k)
				continue
			}
			fmt.Fprintf(&b, " %s=%s#%d", k, v.Type, v.ID)
		case []*store.Entity:
			fmt.Fprintf(&b, " %s=[%d]", k, len(v))
		case []any:
			parts := make([]string, len(v))
			for i, el := range v {
				parts[i] = formatScalar(el)
			}
			fmt.Fprintf(&b, " %s=[%s]", k, strings.Join(parts, ","))
		default:
			fmt.Fprintf(&b, " %s=%v", k, v)
		}
	}
	return b.String()
}

func formatScalar(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprint(val)
	}
}

// writeParams lists bind parameters in binding order.
func writeParams(w io.Writer, params queryir.Params) {
	if len(params) == 0 {
		return
	}
	fmt.Fprintln(w, "Parameters:")
	for _, p := range params {
		fmt.Fprintf(w, "  %s = %s\n", p.Name, querytext.Literal(p.Value))
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
