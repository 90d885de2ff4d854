package model

// Organization is the root tenant boundary.
type Organization struct {
	ID          string
	Name        string
	DisplayName string
	Owner       string
	Settings    map[string]string
}

func (o *Organization) Validate() error {
	if o.Name == "" {
		return invalid("name", "organization name must not be empty")
	}
	return nil
}

// Team is the leaf tenant boundary, scoped to a single organization.
type Team struct {
	ID    string
	Name  string
	OrgID string
	Owner string
}

func (t *Team) Validate() error {
	if t.Name == "" {
		return invalid("name", "team name must not be empty")
	}
	if t.OrgID == "" {
		return invalid("org_id", "team must belong to an organization")
	}
	return nil
}

// Role is a membership's permission tier within an organization.
type Role string

const (
	RoleOwner  Role = "Owner"
	RoleAdmin  Role = "Admin"
	RoleMember Role = "Member"
	RoleViewer Role = "Viewer"
)

func (r Role) valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// Membership ties a user to an organization with a role.
type Membership struct {
	UserID string
	OrgID  string
	Role   Role
}

func (m *Membership) Validate() error {
	if m.UserID == "" {
		return invalid("user_id", "membership requires a user id")
	}
	if m.OrgID == "" {
		return invalid("org_id", "membership requires an organization id")
	}
	if !m.Role.valid() {
		return invalid("role", "unknown role %q", m.Role)
	}
	return nil
}

// TokenStatus reflects whether a token may still be used.
type TokenStatus string

const (
	TokenActive  TokenStatus = "Active"
	TokenRevoked TokenStatus = "Revoked"
)

// Token is consumed as an AuthContext by the core; the core never issues or
// hashes tokens itself.
type Token struct {
	ID     string
	Name   string
	Status TokenStatus
	Scopes []string
}

func (t *Token) Validate() error {
	if t.Name == "" {
		return invalid("name", "token name must not be empty")
	}
	switch t.Status {
	case TokenActive, TokenRevoked:
	default:
		return invalid("status", "unknown token status %q", t.Status)
	}
	return nil
}

// WouldLeaveOrgWithoutOwner reports whether applying the given membership
// mutation (delete, or role change away from Owner) to orgID's membership
// set would drop its owner count to zero, given it currently has at least
// one. The org is otherwise untouched: last-owner protection only blocks
// the specific mutation that would zero it out.
func WouldLeaveOrgWithoutOwner(memberships []Membership, orgID, mutatedUserID string, removed bool, newRole Role) bool {
	owners := 0
	hadOwner := false
	for _, m := range memberships {
		if m.OrgID != orgID {
			continue
		}
		if m.Role == RoleOwner {
			hadOwner = true
			owners++
		}
	}
	if !hadOwner {
		return false
	}
	remaining := owners
	for _, m := range memberships {
		if m.OrgID != orgID || m.UserID != mutatedUserID || m.Role != RoleOwner {
			continue
		}
		if removed || newRole != RoleOwner {
			remaining--
		}
	}
	return remaining <= 0
}
