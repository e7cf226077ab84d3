package querygen

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/criteria/internal/criteria"
	"github.com/roach88/criteria/internal/dialect"
	"github.com/roach88/criteria/internal/queryir"
	"github.com/roach88/criteria/internal/querytext"
	"github.com/roach88/criteria/internal/schema"
	"github.com/roach88/criteria/internal/value"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.LoadFile("testdata/entities.yaml")
	require.NoError(t, err)
	return reg
}

func testGenerator(t *testing.T) *Generator {
	t.Helper()
	return New(testRegistry(t), dialect.SQLite{})
}

// describe is the golden file form of a generated pair.
func describe(g *Generated) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "data:  %s\n", g.DataText())
	fmt.Fprintf(&b, "count: %s\n", g.CountText())
	for _, p := range g.Params {
		fmt.Fprintf(&b, "param: %s = %s\n", p.Name, querytext.Literal(p.Value))
	}
	if len(g.Bags) > 0 {
		fmt.Fprintf(&b, "bags:  %s\n", strings.Join(g.Bags, ", "))
	}
	return []byte(b.String())
}

func assertGolden(t *testing.T, name string, g *Generated) {
	t.Helper()
	gd := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	gd.Assert(t, name, describe(g))
}

func TestGenerate_Golden(t *testing.T) {
	tests := []struct {
		name string
		c    *criteria.Criteria
		auth *criteria.AuthorizationContext
	}{
		{
			name: "fetch_and_fuzzy_filter",
			c: criteria.New("AlertDefinition").
				AddFilter("name", value.String("foo")).
				Fetch("resource").
				AddSort("name", criteria.ASC),
		},
		{
			name: "resource_authorization_paged",
			c: criteria.New("AlertDefinition").
				AddFilter("resourceName", value.String("Web")).
				Fetch("conditions").
				Fetch("notifications").
				AddSort("resource.name", criteria.DESC).
				SetPaging(1, 20).
				RequirePermissions(criteria.PermManageAlerts),
			auth: criteria.ResourceAuthorization(7, "resource"),
		},
		{
			name: "group_authorization_optional_filters",
			c: func() *criteria.Criteria {
				c := criteria.New("ResourceGroup").
					AddFilter("name", value.String("Web%")).
					AddFilter("description", value.String("x"))
				c.FiltersOptional = true
				c.CaseSensitive = true
				c.Strict = true
				return c
			}(),
			auth: criteria.GroupAuthorization(3, ""),
		},
		{
			name: "overrides",
			c: func() *criteria.Criteria {
				c := criteria.New("AlertDefinition").
					AddFilter("ctimeRange", value.Ints(100, 200)).
					AddFilter("description", criteria.FilterOff).
					AddFilter("enabledOnly", criteria.FilterOn).
					AddFilter("noNotifications", criteria.FilterOn).
					AddFilter("priorities", value.Strings("HIGH", "MEDIUM")).
					AddFilter("resourceId", value.Int(5)).
					SetFilterOverride("noNotifications", "NOT EXISTS ( SELECT an FROM AlertNotification an WHERE an.alertDefinition = ad )").
					AddSort("1", criteria.DESC).
					AddSort("priority", criteria.ASC).
					SetPaging(0, 10)
				c.DisableSortID = true
				return c
			}(),
		},
		{
			name: "page_control_override",
			c: criteria.New("Resource").
				AddFilter("pluginName", value.String("JBoss")).
				Fetch("childResources").
				Fetch("resourceType").
				AddSort("description", criteria.DESC).
				SetPageControlOverride(criteria.PageControl{
					PageSize:       5,
					OrderingFields: []criteria.OrderingField{{Field: "r.name", Ordering: criteria.ASC}},
				}),
		},
	}

	gen := testGenerator(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, err := gen.Generate(tc.c, tc.auth)
			require.NoError(t, err)
			assertGolden(t, tc.name, g)
		})
	}
}

func TestGenerated_Fingerprint(t *testing.T) {
	gen := testGenerator(t)
	fingerprint := func(c *criteria.Criteria) string {
		t.Helper()
		g, err := gen.Generate(c, criteria.ResourceAuthorization(5, ""))
		require.NoError(t, err)
		fp, err := g.Fingerprint()
		require.NoError(t, err)
		return fp
	}
	request := func() *criteria.Criteria {
		return criteria.New("Resource").
			AddFilter("name", value.String("web")).
			AddFilter("inventoryStatus", value.Strings("COMMITTED", "NEW")).
			RequirePermissions(criteria.PermControl)
	}

	base := fingerprint(request())
	assert.Len(t, base, 64)
	assert.Equal(t, base, fingerprint(request()))

	paged := fingerprint(request().SetPaging(0, 10))
	assert.Equal(t, paged, fingerprint(request().SetPaging(3, 10)), "pages of one request share a fingerprint")
	assert.NotEqual(t, base, fingerprint(request().AddFilter("name", value.String("db"))))
	assert.NotEqual(t, base, fingerprint(request().AddSort("name", criteria.DESC)))
}

func TestGenerate_Alias(t *testing.T) {
	gen := testGenerator(t)
	for entity, alias := range map[string]string{
		"AlertDefinition": "ad",
		"Resource":        "r",
		"ResourceGroup":   "rg",
	} {
		g, err := gen.Generate(criteria.New(entity), nil)
		require.NoError(t, err)
		assert.Equal(t, alias, g.Alias)
		assert.Equal(t, fmt.Sprintf("SELECT %s FROM %s %s", alias, entity, alias), g.DataText())
		assert.Equal(t, fmt.Sprintf("SELECT COUNT(%s) FROM %s %s", alias, entity, alias), g.CountText())
	}
}

func TestGenerate_CountQueryHasNoFetchesOrOrdering(t *testing.T) {
	c := criteria.New("Resource").
		AddFilter("name", value.String("a")).
		Fetch("resourceType").
		Fetch("parentResource").
		AddSort("resourceType.name", criteria.ASC).
		SetPaging(2, 15)

	g, err := testGenerator(t).Generate(c, criteria.ResourceAuthorization(1, ""))
	require.NoError(t, err)

	count := g.CountText()
	assert.NotContains(t, count, "FETCH")
	assert.NotContains(t, count, "ORDER BY")
	assert.NotContains(t, count, "orderingField")
	assert.Contains(t, count, "JOIN r.implicitGroups authGroup")
	assert.Empty(t, g.Count.OrderBy)

	assert.Equal(t, []string{"parentResource", "resourceType"}, g.JoinFetches)
	assert.Contains(t, g.DataText(), "ORDER BY orderingField0.name ASC, r.id ASC")
	assert.Equal(t, 2, g.PageControl.PageNumber)
	assert.Equal(t, 15, g.PageControl.PageSize)
}

func TestGenerate_ParamsMatchReferences(t *testing.T) {
	c := criteria.New("AlertDefinition").
		AddFilter("name", value.String("n")).
		AddFilter("priority", value.String("HIGH")).
		AddFilter("ctimeRange", value.Ints(1, 2)).
		AddFilter("resourceId", value.Int(3)).
		RequirePermissions(criteria.PermManageAlerts, criteria.PermViewResource)

	g, err := testGenerator(t).Generate(c, criteria.ResourceAuthorization(9, "resource"))
	require.NoError(t, err)

	for _, q := range []queryir.Select{g.Data, g.Count} {
		res := queryir.Validate(q, g.Params)
		assert.True(t, res.Valid, res.Problems)
	}
	assert.Equal(t,
		[]string{"ctimeRange_1", "ctimeRange_2", "name", "priority", "resourceId", "subjectId", "requiredPerms", "requiredPermsSize"},
		g.Params.Names())
}

func TestGenerate_CaseFolding(t *testing.T) {
	gen := testGenerator(t)

	c := criteria.New("Resource").AddFilter("name", value.String("WebApp"))
	g, err := gen.Generate(c, nil)
	require.NoError(t, err)
	assert.Contains(t, g.DataText(), "LOWER( r.name ) like :name")
	v, _ := g.Params.Get("name")
	assert.Equal(t, "%webapp%", v)

	c.CaseSensitive = true
	g, err = gen.Generate(c, nil)
	require.NoError(t, err)
	assert.Contains(t, g.DataText(), "( r.name like :name ESCAPE")
	assert.NotContains(t, g.DataText(), "LOWER")
	v, _ = g.Params.Get("name")
	assert.Equal(t, "%WebApp%", v)
}

func TestGenerate_OverrideCaseFolding(t *testing.T) {
	gen := testGenerator(t)

	c := criteria.New("Resource").
		AddFilter("pluginName", value.String("JBoss")).
		AddFilter("resourceTypeId", value.Int(4))
	g, err := gen.Generate(c, nil)
	require.NoError(t, err)
	assert.Contains(t, g.DataText(), `LOWER( r.resourceType.plugin ) like :pluginName ESCAPE '\'`)
	assert.Contains(t, g.DataText(), "r.resourceType.id = :resourceTypeId")
	assert.NotContains(t, g.DataText(), "resourceTypeId ESCAPE")

	c.CaseSensitive = true
	g, err = gen.Generate(c, nil)
	require.NoError(t, err)
	assert.Contains(t, g.DataText(), `r.resourceType.plugin like :pluginName ESCAPE '\'`)
}

func TestGenerate_RequestOverrideWins(t *testing.T) {
	c := criteria.New("Resource").
		AddFilter("resourceTypeId", value.Int(4)).
		SetFilterOverride("resourceTypeId", "parentResource.resourceType.id = ?")

	g, err := testGenerator(t).Generate(c, nil)
	require.NoError(t, err)
	assert.Contains(t, g.DataText(), "r.parentResource.resourceType.id = :resourceTypeId")
}

func TestGenerate_SubselectOverrideIsNotFuzzy(t *testing.T) {
	c := criteria.New("Resource").
		AddFilter("tagged", value.String("x")).
		SetFilterOverride("tagged", "EXISTS ( SELECT t FROM Tag t WHERE t.name like ? )")

	g, err := testGenerator(t).Generate(c, nil)
	require.NoError(t, err)
	assert.Contains(t, g.DataText(), "( EXISTS ( SELECT t FROM Tag t WHERE t.name like :tagged ) )")
	assert.NotContains(t, g.DataText(), "ESCAPE")
}

func TestGenerate_CollectionFilterWithoutOverride(t *testing.T) {
	c := criteria.New("AlertDefinition").AddFilter("priority", value.Strings("HIGH", "LOW"))

	g, err := testGenerator(t).Generate(c, nil)
	require.NoError(t, err)
	assert.Contains(t, g.DataText(), "ad.priority IN ( :priority )")
	v, _ := g.Params.Get("priority")
	assert.Equal(t, []any{"HIGH", "LOW"}, v)
}

func TestGenerate_AuthorizationAlwaysAnded(t *testing.T) {
	c := criteria.New("Resource").
		AddFilter("name", value.String("a")).
		AddFilter("description", value.String("b")).
		RequirePermissions(criteria.PermControl, criteria.PermControl)
	c.FiltersOptional = true

	g, err := testGenerator(t).Generate(c, criteria.ResourceAuthorization(5, ""))
	require.NoError(t, err)

	for _, text := range []string{g.DataText(), g.CountText()} {
		assert.Contains(t, text, "( LOWER( r.description ) like :description ESCAPE '\\' OR LOWER( r.name ) like :name ESCAPE '\\' )")
		assert.Contains(t, text, ") AND authSubject.id = :subjectId AND (SELECT COUNT(DISTINCT p)")
		assert.NotContains(t, text, "OR authSubject")
	}

	perms, _ := g.Params.Get(ParamRequiredPerms)
	assert.Equal(t, []any{"CONTROL"}, perms)
	size, _ := g.Params.Get(ParamRequiredPermsSize)
	assert.Equal(t, int64(1), size)
}

func TestGenerate_FilterOnAuthorizationParameterName(t *testing.T) {
	for _, name := range []string{ParamSubjectID, ParamRequiredPerms} {
		t.Run(name, func(t *testing.T) {
			c := criteria.New("Resource").
				AddFilter(name, value.Int(1)).
				SetFilterOverride(name, "id = ?").
				RequirePermissions(criteria.PermControl)

			_, err := testGenerator(t).Generate(c, criteria.ResourceAuthorization(5, ""))
			require.Error(t, err)
			assert.True(t, schema.IsConfigError(err))
			assert.Contains(t, err.Error(), "reserved for authorization")
		})
	}
}

func TestGenerate_PermissionsWithoutAuthorizationIgnored(t *testing.T) {
	var logs bytes.Buffer
	gen := New(testRegistry(t), dialect.SQLite{},
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	c := criteria.New("Resource").RequirePermissions(criteria.PermViewResource)
	g, err := gen.Generate(c, nil)
	require.NoError(t, err)

	assert.NotContains(t, g.DataText(), "requiredPerms")
	assert.Empty(t, g.Params)
	assert.Contains(t, logs.String(), "required permissions ignored")
}

func TestGenerate_GroupAuthorizationWithJoinPath(t *testing.T) {
	c := criteria.New("Role")

	_, err := testGenerator(t).Generate(c, criteria.GroupAuthorization(1, "resourceGroups"))
	require.NoError(t, err)

	c = criteria.New("Resource")
	g, err := testGenerator(t).Generate(c, criteria.GroupAuthorization(1, "implicitGroups"))
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT r FROM Resource r JOIN r.implicitGroups authGroup JOIN authGroup.roles authRole"+
			" JOIN authRole.subjects authSubject WHERE authSubject.id = :subjectId",
		g.DataText())
}

func TestGenerate_OrderingJoinsShareRoot(t *testing.T) {
	c := criteria.New("Resource").
		AddSort("typeName", criteria.ASC).
		AddSort("resourceType.plugin", criteria.DESC).
		AddSort("parentResource.name", criteria.ASC)

	g, err := testGenerator(t).Generate(c, nil)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT r FROM Resource r LEFT JOIN r.resourceType orderingField0 LEFT JOIN r.parentResource orderingField1"+
			" ORDER BY orderingField0.name ASC, orderingField0.plugin DESC, orderingField1.name ASC",
		g.DataText())
}

func TestGenerate_OverridePageControlSkipsSortOverrides(t *testing.T) {
	c := criteria.New("Resource").
		SetPageControlOverride(criteria.PageControl{
			PageSize:       10,
			OrderingFields: []criteria.OrderingField{{Field: "typeName", Ordering: criteria.DESC}},
		})

	g, err := testGenerator(t).Generate(c, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT r FROM Resource r ORDER BY typeName DESC", g.DataText())
	assert.NotContains(t, g.DataText(), "orderingField")
}

func TestGenerate_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		c    *criteria.Criteria
		auth *criteria.AuthorizationContext
		code schema.ConfigErrorCode
	}{
		{"unknown entity", criteria.New("Nope"), nil, schema.ErrCodeUnknownEntity},
		{"unknown filter", criteria.New("Resource").AddFilter("colour", value.String("red")), nil, schema.ErrCodeUnknownField},
		{"unknown sort", criteria.New("Resource").AddSort("colour", criteria.ASC), nil, schema.ErrCodeUnknownField},
		{"unknown fetch", criteria.New("Resource").Fetch("colour"), nil, schema.ErrCodeUnknownField},
		{"scalar fetch", criteria.New("Resource").Fetch("name"), nil, schema.ErrCodeNotAssociation},
		{"association filter", criteria.New("Resource").AddFilter("resourceType", value.Int(1)), nil, schema.ErrCodeNotAssociation},
		{"sort through scalar", criteria.New("Resource").AddSort("name.length", criteria.ASC), nil, schema.ErrCodeNotAssociation},
		{"non-binding without override", criteria.New("Resource").AddFilter("name", criteria.FilterOn), nil, schema.ErrCodeInvalidOverride},
		{"non-binding with placeholder", criteria.New("Resource").AddFilter("resourceTypeId", criteria.FilterOn), nil, schema.ErrCodeInvalidOverride},
		{"placeholder count mismatch", criteria.New("AlertDefinition").AddFilter("ctimeRange", value.Ints(1)), nil, schema.ErrCodeInvalidOverride},
		{"placeholders need a list", criteria.New("AlertDefinition").AddFilter("ctimeRange", value.Int(1)), nil, schema.ErrCodeInvalidOverride},
		{"override binds nothing", criteria.New("AlertDefinition").AddFilter("enabledOnly", value.Bool(true)), nil, schema.ErrCodeInvalidOverride},
		{"bad request override", criteria.New("Resource").AddFilter("x", value.Int(1)).SetFilterOverride("x", "broken"), nil, schema.ErrCodeInvalidOverride},
		{"bad join path", criteria.New("AlertDefinition"), criteria.ResourceAuthorization(1, "nowhere"), schema.ErrCodeUnknownField},
		{"anchor without chain", criteria.New("AlertDefinition"), criteria.ResourceAuthorization(1, ""), schema.ErrCodeUnknownField},
	}

	gen := testGenerator(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := gen.Generate(tc.c, tc.auth)
			require.Error(t, err)
			var ce *schema.ConfigError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tc.code, ce.Code)
		})
	}
}

func TestGenerate_DoesNotMutateRequest(t *testing.T) {
	c := criteria.New("Resource").
		AddFilter("name", value.String("Web")).
		SetPaging(0, 10)

	g, err := testGenerator(t).Generate(c, nil)
	require.NoError(t, err)

	assert.Empty(t, c.Sorts)
	assert.Equal(t, value.String("Web"), c.Filters["name"])
	assert.Len(t, g.PageControl.OrderingFields, 1)
}

func TestGenerate_Concurrent(t *testing.T) {
	gen := testGenerator(t)
	want, err := gen.Generate(criteria.New("Resource").AddFilter("name", value.String("a")), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := gen.Generate(criteria.New("Resource").AddFilter("name", value.String("a")), nil)
			assert.NoError(t, err)
			assert.Equal(t, want.DataText(), g.DataText())
		}()
	}
	wg.Wait()
}

func TestReinitialize(t *testing.T) {
	gen := testGenerator(t)
	assert.Equal(t, `\`, gen.EscapeCharacter())

	gen.Reinitialize(dialect.Oracle{})
	assert.Equal(t, "!", gen.EscapeCharacter())

	g, err := gen.Generate(criteria.New("Resource").AddFilter("name", value.String(`a\b`)), nil)
	require.NoError(t, err)
	assert.Contains(t, g.DataText(), "ESCAPE '!'")
	v, _ := g.Params.Get("name")
	assert.Equal(t, `%a\b%`, v)

	gen.Reinitialize(dialect.Postgres{})
	assert.Equal(t, `\`, gen.EscapeCharacter())
	g, err = gen.Generate(criteria.New("Resource").AddFilter("name", value.String(`a\b`)), nil)
	require.NoError(t, err)
	v, _ = g.Params.Get("name")
	assert.Equal(t, `%a\\b%`, v)

	gen.Reinitialize(nil)
	assert.Equal(t, `\`, gen.EscapeCharacter())
}
