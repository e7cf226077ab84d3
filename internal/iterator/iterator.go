// Package iterator streams the rows of a criteria request across pages.
package iterator

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/roach88/criteria/internal/criteria"
	"github.com/roach88/criteria/internal/pager"
)

// DefaultPageSize is used for requests without a page size.
const DefaultPageSize = 200

// ErrExhausted is returned by Next once every row has been consumed.
var ErrExhausted = errors.New("iterator: no more rows")

// PageSource runs one page of a request. *runner.Runner satisfies it.
type PageSource[T any] interface {
	Run(ctx context.Context, c *criteria.Criteria, auth *criteria.AuthorizationContext) (pager.Page[T], error)
}

// Iterator is a forward-only sequence over all pages of a request.
//
// Each page is fetched with the same page size, and the total is re-read
// with every page, so the sequence follows a dataset that changes while it
// is read without any guarantee across pages. An Iterator is not safe for
// concurrent use.
type Iterator[T any] struct {
	src  PageSource[T]
	c    *criteria.Criteria
	auth *criteria.AuthorizationContext

	// number is the page number being advanced: the override's when the
	// request carries one, the request's own otherwise.
	number *int

	rows     []T
	pos      int
	consumed int64
	total    int64
}

// New fetches the first page of c and returns an iterator positioned
// before its first row. Iteration starts at the request's page number, or
// at the page number of its page control override when one is set. An
// unlimited request is paged by DefaultPageSize.
func New[T any](ctx context.Context, src PageSource[T], c *criteria.Criteria, auth *criteria.AuthorizationContext) (*Iterator[T], error) {
	if c == nil {
		return nil, fmt.Errorf("iterator needs a criteria request")
	}
	c = c.Clone()
	number, size := &c.PageNumber, &c.PageSize
	if pc := c.PageControlOverride; pc != nil {
		number, size = &pc.PageNumber, &pc.PageSize
	}
	*number = max(*number, 0)
	if *size <= 0 {
		*size = DefaultPageSize
	}

	it := &Iterator[T]{
		src:      src,
		c:        c,
		auth:     auth,
		number:   number,
		consumed: int64(*number) * int64(*size),
	}
	if err := it.load(ctx); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *Iterator[T]) load(ctx context.Context) error {
	page, err := it.src.Run(ctx, it.c, it.auth)
	if err != nil {
		return fmt.Errorf("fetch page %d: %w", *it.number, err)
	}
	it.rows = page.Rows
	it.pos = 0
	it.total = page.Total
	return nil
}

// HasNext reports whether rows remain according to the last total read.
func (it *Iterator[T]) HasNext() bool {
	return it.consumed < it.total
}

// Total is the row count observed with the most recent page.
func (it *Iterator[T]) Total() int64 {
	return it.total
}

// Next returns the next row, fetching the following page when the current
// one is used up. It returns ErrExhausted past the end, including when a
// page comes back empty because rows were deleted meanwhile.
func (it *Iterator[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if it.pos >= len(it.rows) {
		if !it.HasNext() {
			return zero, ErrExhausted
		}
		*it.number++
		if err := it.load(ctx); err != nil {
			*it.number--
			return zero, err
		}
		if len(it.rows) == 0 {
			it.total = it.consumed
			return zero, ErrExhausted
		}
	}
	row := it.rows[it.pos]
	it.pos++
	it.consumed++
	return row, nil
}

// All yields every remaining row. A fetch error is yielded once and ends
// the sequence.
func (it *Iterator[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for it.HasNext() {
			row, err := it.Next(ctx)
			if errors.Is(err, ErrExhausted) {
				return
			}
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}
