package authctx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasScopeMatchesVerbatim(t *testing.T) {
	ctx := &Context{Scopes: []string{"admin:all", "cluster:read"}}
	require.True(t, ctx.HasScope("admin:all"))
	require.True(t, ctx.HasScope("cluster:read"))
	require.False(t, ctx.HasScope("cluster:write"))
}

func TestHasScopeOnEmptyContext(t *testing.T) {
	ctx := &Context{}
	require.False(t, ctx.HasScope("admin:all"))
}

func TestIsOnTeamMatchesResolvedTeams(t *testing.T) {
	ctx := &Context{Teams: []string{"payments", "checkout"}}
	require.True(t, ctx.IsOnTeam("payments"))
	require.False(t, ctx.IsOnTeam("fraud"))
}
