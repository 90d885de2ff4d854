package authz

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moonkev/flexds/internal/authctx"
)

func TestCheckResourceAccessAdminAllBypasses(t *testing.T) {
	ctx := &authctx.Context{Scopes: []string{"admin:all"}}
	require.True(t, CheckResourceAccess(ctx, "cluster", ActionWrite, "payments"))
}

func TestCheckResourceAccessTeamAgnosticScope(t *testing.T) {
	ctx := &authctx.Context{Scopes: []string{"cluster:read"}}
	require.True(t, CheckResourceAccess(ctx, "cluster", ActionRead, ""))
	require.False(t, CheckResourceAccess(ctx, "cluster", ActionWrite, ""))
}

func TestCheckResourceAccessTeamScopedExactAndWildcard(t *testing.T) {
	ctx := &authctx.Context{Scopes: []string{"team:payments:cluster:write"}}
	require.True(t, CheckResourceAccess(ctx, "cluster", ActionWrite, "payments"))
	require.False(t, CheckResourceAccess(ctx, "cluster", ActionWrite, "checkout"))

	wildcard := &authctx.Context{Scopes: []string{"team:payments:*:*"}}
	require.True(t, CheckResourceAccess(wildcard, "listener", ActionWrite, "payments"))
}

func TestCheckResourceAccessUnsetTeamAllowsAnyTeamScopedMatch(t *testing.T) {
	ctx := &authctx.Context{Scopes: []string{"team:payments:cluster:read"}}
	require.True(t, CheckResourceAccess(ctx, "cluster", ActionRead, ""))
}

func TestCheckResourceAccessDeniesWithoutMatchingScope(t *testing.T) {
	ctx := &authctx.Context{Scopes: []string{"team:payments:route:read"}}
	require.False(t, CheckResourceAccess(ctx, "cluster", ActionWrite, "payments"))
}

func TestExtractTeamScopesDedupes(t *testing.T) {
	ctx := &authctx.Context{Scopes: []string{
		"team:payments:cluster:read",
		"team:payments:route:write",
		"team:checkout:cluster:read",
		"admin:all",
	}}
	teams := ExtractTeamScopes(ctx)
	require.ElementsMatch(t, []string{"payments", "checkout"}, teams)
}

func TestExtractOrgScopes(t *testing.T) {
	ctx := &authctx.Context{Scopes: []string{"org:acme:admin", "org:acme:admin", "org:other:member"}}
	roles := ExtractOrgScopes(ctx)
	require.ElementsMatch(t, []OrgRole{{Org: "acme", Role: "admin"}, {Org: "other", Role: "member"}}, roles)
}

func TestActionForRequest(t *testing.T) {
	require.Equal(t, ActionRead, ActionForRequest("GET", "/clusters"))
	require.Equal(t, ActionWrite, ActionForRequest("POST", "/clusters"))
	require.Equal(t, ActionRead, ActionForRequest("POST", "/clusters/123/export"))
	require.Equal(t, ActionRead, ActionForRequest("POST", "/clusters/compare"))
	require.Equal(t, ActionRead, ActionForRequest("POST", "/clusters/search"))
	require.Equal(t, ActionRead, ActionForRequest("DELETE", "/teams/payments/query"))
}
