package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/criteria/internal/dialect"
	"github.com/roach88/criteria/internal/pager"
	"github.com/roach88/criteria/internal/querygen"
	"github.com/roach88/criteria/internal/runner"
	"github.com/roach88/criteria/internal/testutil"
)

// openTestStore opens an empty store in a temporary directory.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), dialect.SQLite{}, path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestStore opens a store holding the demo data.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s := openTestStore(t)
	if err := s.Seed(context.Background()); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	return s
}

// newTestRunner runs criteria against s without real backoff sleeps.
func newTestRunner(s *Store) *runner.Runner[*Entity] {
	return runner.New[*Entity](
		querygen.New(s.Registry(), s.Dialect()),
		s,
		runner.WithPagerOptions(pager.WithSleeper(testutil.NewFakeClock())),
	)
}

func ids(rows []*Entity) []int64 {
	out := make([]int64, len(rows))
	for i, e := range rows {
		out[i] = e.ID
	}
	return out
}
