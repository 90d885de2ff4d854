package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMembershipValidateRejectsUnknownRole(t *testing.T) {
	m := &Membership{UserID: "u1", OrgID: "o1", Role: Role("SuperUser")}
	require.Error(t, m.Validate())
}

func TestWouldLeaveOrgWithoutOwnerDetectsLastOwnerDeletion(t *testing.T) {
	memberships := []Membership{
		{UserID: "u1", OrgID: "o1", Role: RoleOwner},
		{UserID: "u2", OrgID: "o1", Role: RoleMember},
	}
	require.True(t, WouldLeaveOrgWithoutOwner(memberships, "o1", "u1", true, ""))
}

func TestWouldLeaveOrgWithoutOwnerAllowsDemotingOneOfMultipleOwners(t *testing.T) {
	memberships := []Membership{
		{UserID: "u1", OrgID: "o1", Role: RoleOwner},
		{UserID: "u2", OrgID: "o1", Role: RoleOwner},
	}
	require.False(t, WouldLeaveOrgWithoutOwner(memberships, "o1", "u1", false, RoleAdmin))
}

func TestWouldLeaveOrgWithoutOwnerBlocksDemotingLastOwner(t *testing.T) {
	memberships := []Membership{
		{UserID: "u1", OrgID: "o1", Role: RoleOwner},
	}
	require.True(t, WouldLeaveOrgWithoutOwner(memberships, "o1", "u1", false, RoleAdmin))
}

func TestWouldLeaveOrgWithoutOwnerIgnoresOrgsWithNoOwnerAtAll(t *testing.T) {
	memberships := []Membership{
		{UserID: "u1", OrgID: "o1", Role: RoleMember},
	}
	require.False(t, WouldLeaveOrgWithoutOwner(memberships, "o1", "u1", true, ""))
}

func TestWouldLeaveOrgWithoutOwnerScopesByOrg(t *testing.T) {
	memberships := []Membership{
		{UserID: "u1", OrgID: "o1", Role: RoleOwner},
		{UserID: "u1", OrgID: "o2", Role: RoleOwner},
	}
	// mutating a user with no o1 membership leaves o1's owner count intact
	require.False(t, WouldLeaveOrgWithoutOwner(memberships, "o1", "u1-not-a-member", true, ""))
	require.True(t, WouldLeaveOrgWithoutOwner(memberships, "o2", "u1", true, ""))
}
