package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/criteria/internal/criteria"
	"github.com/roach88/criteria/internal/querygen"
	"github.com/roach88/criteria/internal/querysql"
	"github.com/roach88/criteria/internal/schema"
)

// Select runs the data query of g for one page.
//
// Rows are materialized from the leading columns the compiler names; the
// ordering columns of a DISTINCT select and the row numbers of paging
// wrappers that follow them are dropped. Join-fetched fields are loaded
// for the whole page before returning.
func (s *Store) Select(ctx context.Context, g *querygen.Generated, pc criteria.PageControl) ([]*Entity, error) {
	meta, err := s.reg.Entity(g.Entity)
	if err != nil {
		return nil, err
	}
	stmt, err := s.sql.Compile(g.Data, g.Params)
	if err != nil {
		return nil, fmt.Errorf("compile data query: %w", err)
	}

	query := s.sql.Page(stmt, pc)
	vals, err := s.query(ctx, query, stmt.Args)
	if err != nil {
		return nil, fmt.Errorf("data query: %w", err)
	}

	out := make([]*Entity, 0, len(vals))
	for _, row := range vals {
		if len(row) < len(stmt.Columns) {
			return nil, fmt.Errorf("data query returned %d columns, want at least %d", len(row), len(stmt.Columns))
		}
		e, err := newEntity(meta, stmt.Columns, row[:len(stmt.Columns)])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	for _, field := range g.JoinFetches {
		if err := s.load(ctx, meta, field, out); err != nil {
			return nil, fmt.Errorf("fetch %s.%s: %w", meta.Name, field, err)
		}
	}
	return out, nil
}

// Count runs the count query of g.
func (s *Store) Count(ctx context.Context, g *querygen.Generated) (int64, error) {
	stmt, err := s.sql.Compile(g.Count, g.Params)
	if err != nil {
		return 0, fmt.Errorf("compile count query: %w", err)
	}
	s.logger.Debug("executing statement", "sql", stmt.Text(), "args", len(stmt.Args))

	var n int64
	if err := s.db.QueryRowContext(ctx, stmt.Text(), stmt.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count query: %w", err)
	}
	return n, nil
}

// Initialize loads one association field of e.
func (s *Store) Initialize(ctx context.Context, e *Entity, field string) error {
	meta, err := s.reg.Entity(e.Type)
	if err != nil {
		return err
	}
	if err := s.load(ctx, meta, field, []*Entity{e}); err != nil {
		return fmt.Errorf("initialize %s.%s: %w", e.Type, field, err)
	}
	return nil
}

// load fills the association field of every row with one query.
func (s *Store) load(ctx context.Context, meta *schema.Entity, field string, rows []*Entity) error {
	f, ok := meta.Field(field)
	if !ok {
		return schema.NewUnknownField(meta.Name, field, "fetch")
	}
	if len(rows) == 0 {
		return nil
	}

	switch f.Kind {
	case schema.SingleValued:
		return s.loadReferences(ctx, f, rows)
	case schema.OrderedCollection, schema.Bag:
		return s.loadCollection(ctx, meta, f, rows)
	case schema.Elements:
		return s.loadElements(ctx, f, rows)
	default:
		return &schema.ConfigError{
			Code:    schema.ErrCodeNotAssociation,
			Entity:  meta.Name,
			Field:   field,
			Message: "only associations can be loaded",
		}
	}
}

func (s *Store) loadReferences(ctx context.Context, f *schema.Field, rows []*Entity) error {
	target, err := s.reg.Entity(f.Target)
	if err != nil {
		return err
	}
	var ids []int64
	for _, e := range rows {
		if id, ok := e.Refs[f.Name]; ok && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}

	byID := make(map[int64]*Entity, len(ids))
	if len(ids) > 0 {
		alias := target.Alias()
		cols, names := querysql.SelectList(alias, target)
		in, args := s.in(ids)
		query := fmt.Sprintf("SELECT %s FROM %s %s WHERE %s.%s IN (%s)",
			strings.Join(cols, ", "), target.Table, alias, alias, target.IDColumn, in)
		vals, err := s.query(ctx, query, args)
		if err != nil {
			return err
		}
		for _, row := range vals {
			e, err := newEntity(target, names, row[:len(names)])
			if err != nil {
				return err
			}
			byID[e.ID] = e
		}
	}

	for _, e := range rows {
		var ref *Entity
		if id, ok := e.Refs[f.Name]; ok {
			ref = byID[id]
		}
		e.setAssoc(f.Name, ref)
	}
	return nil
}

// loadCollection selects the owner id followed by the target row, ordered
// by owner and then by the order column or identifier.
func (s *Store) loadCollection(ctx context.Context, owner *schema.Entity, f *schema.Field, rows []*Entity) error {
	target, err := s.reg.Entity(f.Target)
	if err != nil {
		return err
	}
	const alias, link = "t", "l"
	cols, names := querysql.SelectList(alias, target)
	in, args := s.in(ownerIDs(rows))

	var query string
	if f.JoinTable != "" {
		order := alias + "." + target.IDColumn
		if f.OrderColumn != "" {
			order = link + "." + f.OrderColumn
		}
		query = fmt.Sprintf("SELECT %s.%s, %s FROM %s %s JOIN %s %s ON %s.%s = %s.%s WHERE %s.%s IN (%s) ORDER BY %s.%s, %s",
			link, f.JoinColumn, strings.Join(cols, ", "),
			target.Table, alias, f.JoinTable, link, link, f.InverseJoinColumn, alias, target.IDColumn,
			link, f.JoinColumn, in,
			link, f.JoinColumn, order)
	} else {
		order := alias + "." + target.IDColumn
		if f.OrderColumn != "" {
			order = alias + "." + f.OrderColumn
		}
		query = fmt.Sprintf("SELECT %s.%s, %s FROM %s %s WHERE %s.%s IN (%s) ORDER BY %s.%s, %s",
			alias, f.JoinColumn, strings.Join(cols, ", "),
			target.Table, alias,
			alias, f.JoinColumn, in,
			alias, f.JoinColumn, order)
	}

	vals, err := s.query(ctx, query, args)
	if err != nil {
		return err
	}
	byOwner := make(map[int64][]*Entity)
	for _, row := range vals {
		oid, err := toInt64(normalize(row[0]))
		if err != nil {
			return fmt.Errorf("%s owner id: %w", owner.Name, err)
		}
		e, err := newEntity(target, names, row[1:1+len(names)])
		if err != nil {
			return err
		}
		byOwner[oid] = append(byOwner[oid], e)
	}

	for _, e := range rows {
		list := byOwner[e.ID]
		if list == nil {
			list = []*Entity{}
		}
		e.setAssoc(f.Name, list)
	}
	return nil
}

func (s *Store) loadElements(ctx context.Context, f *schema.Field, rows []*Entity) error {
	in, args := s.in(ownerIDs(rows))
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (%s) ORDER BY %s, %s",
		f.JoinColumn, f.Column, f.JoinTable, f.JoinColumn, in, f.JoinColumn, f.Column)
	vals, err := s.query(ctx, query, args)
	if err != nil {
		return err
	}

	byOwner := make(map[int64][]any)
	for _, row := range vals {
		oid, err := toInt64(normalize(row[0]))
		if err != nil {
			return err
		}
		byOwner[oid] = append(byOwner[oid], normalize(row[1]))
	}
	for _, e := range rows {
		list := byOwner[e.ID]
		if list == nil {
			list = []any{}
		}
		e.setAssoc(f.Name, list)
	}
	return nil
}

func ownerIDs(rows []*Entity) []int64 {
	ids := make([]int64, 0, len(rows))
	for _, e := range rows {
		if !slices.Contains(ids, e.ID) {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// in renders one placeholder per id.
func (s *Store) in(ids []int64) (string, []any) {
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = s.d.Placeholder(i + 1)
		args[i] = id
	}
	return strings.Join(ph, ", "), args
}

// query runs a statement and reads every row as raw column values.
func (s *Store) query(ctx context.Context, query string, args []any) ([][]any, error) {
	s.logger.Debug("executing statement", "sql", query, "args", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
