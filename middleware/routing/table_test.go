package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := NewTable([]Route{
		{ID: "auth", Path: "/api/auth/**", StripPrefix: 1, URI: "http://auth:8082"},
		{ID: "api", Path: "/api/**", StripPrefix: 1, URI: "http://core:9000/v1/"},
		{ID: "auth-admin", Path: "/api/auth/admin", StripPrefix: 3, URI: "https://admin.internal"},
	})
	require.NoError(t, err)
	return tbl
}

func TestTable_LongestPrefixWins(t *testing.T) {
	tbl := testTable(t)

	cases := map[string]string{
		"/api/auth/login":       "auth",
		"/api/auth":             "auth",
		"/api/auth/admin/users": "auth-admin",
		"/api/authz":            "api",
		"/api/orders/1":         "api",
	}
	for path, want := range cases {
		e, err := tbl.Resolve(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, e.ID, path)
	}
}

func TestTable_NotFound(t *testing.T) {
	_, err := testTable(t).Resolve("/health")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEntry_Rewrite(t *testing.T) {
	tbl := testTable(t)

	cases := []struct {
		path, query, want string
	}{
		{"/api/auth/login", "next=%2Fhome", "http://auth:8082/auth/login?next=%2Fhome"},
		{"/api/auth", "", "http://auth:8082/auth"},
		{"/api/orders/1", "", "http://core:9000/v1/orders/1"},
		{"/api/auth/admin", "", "https://admin.internal/"},
		{"/api/auth/admin/users/7", "", "https://admin.internal/users/7"},
		{"/api/orders/a%2Fb", "", "http://core:9000/v1/orders/a%2Fb"},
		{"/api/orders/caf%C3%A9", "", "http://core:9000/v1/orders/caf%C3%A9"},
	}
	for _, tc := range cases {
		e, err := tbl.Resolve(tc.path)
		require.NoError(t, err)
		assert.Equal(t, tc.want, e.Rewrite(tc.path, tc.query).String(), tc.path)
	}
}

func TestEntry_RewriteDoesNotMutateTarget(t *testing.T) {
	e, err := testTable(t).Resolve("/api/auth/login")
	require.NoError(t, err)
	_ = e.Rewrite("/api/auth/login", "a=1")
	assert.Equal(t, "http://auth:8082", e.Target.String())
}

func TestNewTable_Validation(t *testing.T) {
	cases := map[string][]Route{
		"relative uri":     {{ID: "a", Path: "/a/**", URI: "auth:8082"}},
		"bad scheme":       {{ID: "a", Path: "/a/**", URI: "ftp://x"}},
		"no leading slash": {{ID: "a", Path: "a/**", URI: "http://x"}},
		"inner wildcard":   {{ID: "a", Path: "/a/*/b", URI: "http://x"}},
		"negative strip":   {{ID: "a", Path: "/a", StripPrefix: -1, URI: "http://x"}},
		"duplicate prefix": {
			{ID: "a", Path: "/a/**", URI: "http://x"},
			{ID: "b", Path: "/a", URI: "http://y"},
		},
	}
	for name, routes := range cases {
		_, err := NewTable(routes)
		assert.Error(t, err, name)
	}
}

func TestNewTable_CatchAll(t *testing.T) {
	tbl, err := NewTable([]Route{{ID: "all", Path: "/**", URI: "http://x"}})
	require.NoError(t, err)
	e, err := tbl.Resolve("/anything/here")
	require.NoError(t, err)
	assert.Equal(t, "http://x/anything/here", e.Rewrite("/anything/here", "").String())
}

func TestEntry_RewriteKeepsEncodedSlashInsideSegment(t *testing.T) {
	e, err := testTable(t).Resolve("/api/orders/a/b")
	require.NoError(t, err)

	u := e.Rewrite("/api/orders/a%2Fb/items", "")

	assert.Equal(t, "/v1/orders/a/b/items", u.Path)
	assert.Equal(t, "/v1/orders/a%2Fb/items", u.EscapedPath())
	assert.Equal(t, "/v1/orders/a%2Fb/items", u.RequestURI())
}
