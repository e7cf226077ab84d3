package querygen

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/criteria/internal/criteria"
	"github.com/roach88/criteria/internal/queryir"
)

// ordering builds the ORDER BY entries of the data query.
//
// With an overriding page control each field is used verbatim, without
// sort overrides. Otherwise a sort override replaces the field name, a
// numeric value is a column ordinal, a single name is a field of the alias, and a dotted path gets a
// LEFT JOIN on everything but its last hop, shared by paths with the same
// prefix.
func (b *build) ordering() error {
	custom := b.c.HasCustomizedSorting()
	var joined []string

	for _, of := range b.pc.OrderingFields {
		dir := string(of.Ordering)
		if dir == "" {
			dir = string(criteria.ASC)
		}

		if custom {
			b.orderBy = append(b.orderBy, queryir.Order{By: queryir.Verbatim(of.Field), Direction: dir})
			continue
		}

		expr, overridden := b.sortOverride(of.Field)
		if !overridden {
			expr = of.Field
		}
		if isNumber(expr) {
			b.orderBy = append(b.orderBy, queryir.Order{By: queryir.Ordinal(expr), Direction: dir})
			continue
		}

		hops := strings.Split(expr, ".")
		if !overridden {
			if _, err := b.gen.reg.Walk(b.ent.Name, hops); err != nil {
				return err
			}
		}

		if len(hops) == 1 {
			b.orderBy = append(b.orderBy, queryir.Order{By: b.path(hops[0]), Direction: dir})
			continue
		}

		root := strings.Join(hops[:len(hops)-1], ".")
		idx := slices.Index(joined, root)
		if idx < 0 {
			idx = len(joined)
			joined = append(joined, root)
			b.orderJoins = append(b.orderJoins, queryir.Join{
				Kind:  queryir.LeftJoin,
				Path:  b.path(hops[:len(hops)-1]...),
				Alias: orderingAlias(idx),
			})
		}
		b.orderBy = append(b.orderBy, queryir.Order{
			By:        queryir.Path{Root: orderingAlias(idx), Fields: hops[len(hops)-1:]},
			Direction: dir,
		})
	}
	return nil
}

func (b *build) sortOverride(field string) (string, bool) {
	if expr, ok := b.c.SortOverrides[field]; ok {
		return expr, true
	}
	if f, ok := b.ent.Field(field); ok && f.SortOverride != "" {
		return f.SortOverride, true
	}
	return "", false
}

func orderingAlias(i int) string {
	return fmt.Sprintf("orderingField%d", i)
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
