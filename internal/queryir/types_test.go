package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPath(t *testing.T) {
	p := P("ad.resource.name")
	assert.Equal(t, "ad", p.Root)
	assert.Equal(t, []string{"resource", "name"}, p.Fields)
	assert.Equal(t, "ad.resource.name", p.String())
	assert.Equal(t, "ad", P("ad").String())
}

func TestSealedInterfaces(t *testing.T) {
	var _ Query = Select{}
	var _ Query = &Select{}

	preds := []Predicate{Like{}, Compare{}, In{}, Raw{}, PermissionCount{}, Group{}}
	assert.Len(t, preds, 6)

	ops := []Operand{Path{}, Ordinal("1"), Verbatim("x ASC")}
	assert.Len(t, ops, 3)
}

func TestJoinKindString(t *testing.T) {
	assert.Equal(t, "JOIN", InnerJoin.String())
	assert.Equal(t, "LEFT JOIN", LeftJoin.String())
	assert.Equal(t, "LEFT JOIN FETCH", LeftJoinFetch.String())
}

func TestParams(t *testing.T) {
	var ps Params
	require.NoError(t, ps.Add("name", "%foo%"))
	require.NoError(t, ps.Add("ids", []any{int64(1), int64(2)}))
	assert.Error(t, ps.Add("name", "again"))

	v, ok := ps.Get("ids")
	require.True(t, ok)
	assert.Equal(t, []any{int64(1), int64(2)}, v)
	assert.Equal(t, []string{"name", "ids"}, ps.Names())
	assert.Equal(t, map[string]any{"name": "%foo%", "ids": []any{int64(1), int64(2)}}, ps.Map())

	cp := ps.Clone()
	cp[1].Value.([]any)[0] = int64(9)
	v, _ = ps.Get("ids")
	assert.Equal(t, []any{int64(1), int64(2)}, v)
}
