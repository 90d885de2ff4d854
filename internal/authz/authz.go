// Package authz implements the core's authorization decision: given a
// caller's resolved scopes, whether a (resource, action, team?) request is
// allowed. It never issues, signs, or validates tokens; it only evaluates
// the scope strings an AuthContext already carries.
package authz

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/moonkev/flexds/internal/authctx"
)

// Action is the coarse-grained operation class a scope grants.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// CheckResourceAccess implements the decision function for
// (context, resource, action, team?):
//  1. admin:all always allows.
//  2. A team-agnostic "{resource}:{action}" scope allows.
//  3. If team is set, a team-scoped scope for that team/(resource,action),
//     including the "*" resource/action wildcards, allows.
//  4. If team is unset, any team-scoped permission for (resource, action)
//     across any team allows (the caller is expected to filter listings with
//     ExtractTeamScopes).
//  5. Otherwise deny.
func CheckResourceAccess(ctx *authctx.Context, resource string, action Action, team string) bool {
	if ctx == nil {
		return false
	}
	if ctx.HasScope("admin:all") {
		return true
	}
	if ctx.HasScope(fmt.Sprintf("%s:%s", resource, action)) {
		return true
	}
	if team != "" {
		candidates := []string{
			fmt.Sprintf("team:%s:%s:%s", team, resource, action),
			fmt.Sprintf("team:%s:%s:*", team, resource),
			fmt.Sprintf("team:%s:*:*", team),
		}
		for _, c := range candidates {
			if ctx.HasScope(c) {
				return true
			}
		}
		return false
	}
	for _, scope := range ctx.Scopes {
		t, r, a, ok := parseTeamScope(scope)
		if !ok {
			continue
		}
		_ = t
		if (r == resource || r == "*") && (a == string(action) || a == "*") {
			return true
		}
	}
	return false
}

// parseTeamScope splits "team:T:R:A" into (T, R, A, true), or returns
// ok=false for any other shape.
func parseTeamScope(scope string) (team, resource, action string, ok bool) {
	parts := strings.SplitN(scope, ":", 4)
	if len(parts) != 4 || parts[0] != "team" {
		return "", "", "", false
	}
	return parts[1], parts[2], parts[3], true
}

// ExtractTeamScopes returns the unique team names the context has any
// team-scoped permission for. An admin:all holder contributes no team from
// that scope alone.
func ExtractTeamScopes(ctx *authctx.Context) []string {
	seen := make(map[string]struct{})
	var teams []string
	for _, scope := range ctx.Scopes {
		team, _, _, ok := parseTeamScope(scope)
		if !ok {
			continue
		}
		if _, dup := seen[team]; dup {
			continue
		}
		seen[team] = struct{}{}
		teams = append(teams, team)
	}
	return teams
}

// OrgRole is one (org, role) pair extracted from an "org:{name}:{role}"
// scope.
type OrgRole struct {
	Org  string
	Role string
}

// ExtractOrgScopes returns the unique (org, role) pairs the context holds.
func ExtractOrgScopes(ctx *authctx.Context) []OrgRole {
	seen := make(map[OrgRole]struct{})
	var out []OrgRole
	for _, scope := range ctx.Scopes {
		parts := strings.SplitN(scope, ":", 3)
		if len(parts) != 3 || parts[0] != "org" {
			continue
		}
		if parts[2] != "admin" && parts[2] != "member" {
			continue
		}
		pair := OrgRole{Org: parts[1], Role: parts[2]}
		if _, dup := seen[pair]; dup {
			continue
		}
		seen[pair] = struct{}{}
		out = append(out, pair)
	}
	return out
}

// ActionForRequest maps an HTTP method and path to the Action it requires:
// GET/HEAD/OPTIONS are read, POST/PUT/PATCH/DELETE are write, except paths
// ending in "/export" or "/compare", or containing "/search" or "/query" as
// a complete path segment, which are always read regardless of method.
func ActionForRequest(method, path string) Action {
	if hasReadOnlyException(path) {
		return ActionRead
	}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ActionRead
	default:
		return ActionWrite
	}
}

func hasReadOnlyException(path string) bool {
	trimmed := strings.TrimSuffix(path, "/")
	if strings.HasSuffix(trimmed, "/export") || strings.HasSuffix(trimmed, "/compare") {
		return true
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == "search" || segment == "query" {
			return true
		}
	}
	return false
}
