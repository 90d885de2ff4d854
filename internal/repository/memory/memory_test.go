package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moonkev/flexds/internal/model"
	"github.com/moonkev/flexds/internal/repository"
)

func TestCreateClusterRejectsDuplicateName(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := &model.Cluster{
		Name: "checkout",
		Configuration: model.ClusterConfiguration{
			Endpoints: []string{"10.0.0.1:8080"},
		},
	}
	require.NoError(t, s.CreateCluster(ctx, c))
	require.NotEmpty(t, c.ID)

	dup := &model.Cluster{
		Name: "checkout",
		Configuration: model.ClusterConfiguration{
			Endpoints: []string{"10.0.0.2:8080"},
		},
	}
	require.ErrorIs(t, s.CreateCluster(ctx, dup), repository.ErrAlreadyExists)
}

func TestGetClusterByIDNotFound(t *testing.T) {
	s := New()
	_, err := s.GetClusterByID(context.Background(), "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListClustersFiltersByTeam(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateCluster(ctx, &model.Cluster{
		Name: "payments-a", Team: "payments",
		Configuration: model.ClusterConfiguration{Endpoints: []string{"10.0.0.1:8080"}},
	}))
	require.NoError(t, s.CreateCluster(ctx, &model.Cluster{
		Name: "checkout-a", Team: "checkout",
		Configuration: model.ClusterConfiguration{Endpoints: []string{"10.0.0.2:8080"}},
	}))

	out, err := s.ListClusters(ctx, repository.TeamFilter{Teams: []string{"payments"}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "payments-a", out[0].Name)
}

func TestCreateListenerRejectsAddressPortCollision(t *testing.T) {
	s := New()
	ctx := context.Background()
	first := &model.Listener{Name: "edge-a", Address: "0.0.0.0", Port: 10000}
	require.NoError(t, s.CreateListener(ctx, first))

	collide := &model.Listener{Name: "edge-b", Address: "0.0.0.0", Port: 10000}
	require.ErrorIs(t, s.CreateListener(ctx, collide), repository.ErrAlreadyExists)
}

func TestFindListenerByAddressPort(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateListener(ctx, &model.Listener{Name: "edge", Address: "0.0.0.0", Port: 10001}))

	found, err := s.FindListenerByAddressPort(ctx, "0.0.0.0", 10001)
	require.NoError(t, err)
	require.Equal(t, "edge", found.Name)

	_, err = s.FindListenerByAddressPort(ctx, "0.0.0.0", 9999)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListFilterRowsByAttachment(t *testing.T) {
	s := New()
	ctx := context.Background()
	f := &model.FilterRow{
		Name:       "rbac-edge",
		FilterType: "rbac",
		Attachments: []model.FilterAttachment{
			{Point: model.AttachListener, ResourceID: "listener-1"},
		},
	}
	require.NoError(t, s.CreateFilterRow(ctx, f))

	out, err := s.ListFilterRowsByAttachment(ctx, model.AttachListener, "listener-1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "rbac-edge", out[0].Name)

	none, err := s.ListFilterRowsByAttachment(ctx, model.AttachListener, "listener-2")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestCreateApiDefinitionRejectsDuplicateTeamDomain(t *testing.T) {
	s := New()
	ctx := context.Background()
	d := &model.ApiDefinition{Team: "payments", Domain: "payments.example.com"}
	require.NoError(t, s.CreateApiDefinition(ctx, d))

	dup := &model.ApiDefinition{Team: "payments", Domain: "payments.example.com"}
	require.ErrorIs(t, s.CreateApiDefinition(ctx, dup), repository.ErrAlreadyExists)
}

func TestUpdateBootstrapMetadata(t *testing.T) {
	s := New()
	ctx := context.Background()
	d := &model.ApiDefinition{Team: "payments", Domain: "payments.example.com"}
	require.NoError(t, s.CreateApiDefinition(ctx, d))

	require.NoError(t, s.UpdateBootstrapMetadata(ctx, d.ID, 3, "s3://bootstraps/payments/3.json"))

	got, err := s.GetApiDefinitionByID(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.BootstrapRevision)
	require.Equal(t, "s3://bootstraps/payments/3.json", got.BootstrapURI)
}

func TestMembershipLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.UpdateMembership(ctx, model.Membership{UserID: "u1", OrgID: "org1", Role: model.RoleMember}))

	list, err := s.ListMemberships(ctx, "org1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeleteMembership(ctx, "org1", "u1"))
	require.ErrorIs(t, s.DeleteMembership(ctx, "org1", "u1"), repository.ErrNotFound)
}

func TestWasmBinaryRoundTrip(t *testing.T) {
	s := New()
	s.PutWasmBinary("bin-1", []byte{0x00, 0x61, 0x73, 0x6d})

	got, err := s.GetWasmBinary(context.Background(), "bin-1")
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x61, 0x73, 0x6d}, got)

	_, err = s.GetWasmBinary(context.Background(), "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}
