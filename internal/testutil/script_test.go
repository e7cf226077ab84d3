package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/criteria/internal/criteria"
)

func TestScript_RoundsThenRepeatLast(t *testing.T) {
	ctx := context.Background()
	s := NewScript(
		Round[string]{Rows: []string{"a"}, Total: 3},
		Round[string]{Rows: []string{"a", "b"}, Total: 2},
	)
	pc := criteria.NewPageControl(0, 2)

	rows, err := s.Data(ctx, pc)
	require.NoError(t, err)
	total, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, rows)
	assert.Equal(t, int64(3), total)

	for i := 0; i < 2; i++ {
		rows, _ = s.Data(ctx, pc)
		total, _ = s.Count(ctx)
		assert.Equal(t, []string{"a", "b"}, rows)
		assert.Equal(t, int64(2), total)
	}

	assert.Equal(t, 3, s.CountCalls())
	assert.Len(t, s.DataCalls(), 3)
}

func TestScript_Errors(t *testing.T) {
	boom := errors.New("boom")
	s := NewScript(Round[int]{DataErr: boom})

	_, err := s.Data(context.Background(), criteria.Unlimited())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.CountCalls())
}
