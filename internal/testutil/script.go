package testutil

import (
	"context"
	"sync"

	"github.com/roach88/criteria/internal/criteria"
)

// Round is what a Script answers for one data+count round.
type Round[T any] struct {
	Rows     []T
	Total    int64
	DataErr  error
	CountErr error
}

// Script answers data and count queries from a fixed list of rounds.
//
// Each Count call finishes a round; the last round repeats once the list
// runs out. Its Data and Count methods fit pager.Query.
type Script[T any] struct {
	mu     sync.Mutex
	rounds []Round[T]
	idx    int
	pages  []criteria.PageControl
	counts int
}

// NewScript creates a script over rounds.
func NewScript[T any](rounds ...Round[T]) *Script[T] {
	return &Script[T]{rounds: rounds}
}

func (s *Script[T]) current() Round[T] {
	if len(s.rounds) == 0 {
		return Round[T]{}
	}
	return s.rounds[min(s.idx, len(s.rounds)-1)]
}

// Data returns the rows of the current round.
func (s *Script[T]) Data(_ context.Context, pc criteria.PageControl) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, pc)
	r := s.current()
	if r.DataErr != nil {
		s.idx++
		return nil, r.DataErr
	}
	return r.Rows, nil
}

// Count returns the total of the current round and moves to the next.
func (s *Script[T]) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts++
	r := s.current()
	s.idx++
	return r.Total, r.CountErr
}

// DataCalls returns the page controls Data was called with.
func (s *Script[T]) DataCalls() []criteria.PageControl {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]criteria.PageControl(nil), s.pages...)
}

// CountCalls returns how often Count was called.
func (s *Script[T]) CountCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}
