package xds

import (
	"testing"

	discoverypb "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	"github.com/stretchr/testify/require"
	statuspb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/moonkev/flexds/internal/cache"
)

func TestHandleRequestFirstRequestReturnsSnapshot(t *testing.T) {
	c := cache.New()
	c.Apply(cache.ClusterTypeURL, []cache.BuiltResource{{Name: "c1", Any: &anypb.Any{TypeUrl: cache.ClusterTypeURL}}})
	s := NewServer(c)
	state := newStreamState()

	resp := s.handleRequest(&discoverypb.DiscoveryRequest{TypeUrl: cache.ClusterTypeURL}, state)
	require.NotNil(t, resp)
	require.Equal(t, cache.ClusterTypeURL, resp.TypeUrl)
	require.Len(t, resp.Resources, 1)
	require.NotEmpty(t, resp.Nonce)
}

func TestHandleRequestIgnoresStaleNonce(t *testing.T) {
	c := cache.New()
	s := NewServer(c)
	state := newStreamState()
	state.recordNonce(cache.ClusterTypeURL, "current-nonce")

	resp := s.handleRequest(&discoverypb.DiscoveryRequest{
		TypeUrl:       cache.ClusterTypeURL,
		ResponseNonce: "stale-nonce",
	}, state)
	require.Nil(t, resp)
}

func TestHandleRequestAcceptsMatchingNonce(t *testing.T) {
	c := cache.New()
	s := NewServer(c)
	state := newStreamState()
	state.recordNonce(cache.ClusterTypeURL, "current-nonce")

	resp := s.handleRequest(&discoverypb.DiscoveryRequest{
		TypeUrl:       cache.ClusterTypeURL,
		ResponseNonce: "current-nonce",
	}, state)
	require.NotNil(t, resp)
}

func TestHandleRequestNackDoesNotRespond(t *testing.T) {
	c := cache.New()
	s := NewServer(c)
	state := newStreamState()
	state.recordNonce(cache.ClusterTypeURL, "current-nonce")

	resp := s.handleRequest(&discoverypb.DiscoveryRequest{
		TypeUrl:       cache.ClusterTypeURL,
		ResponseNonce: "current-nonce",
		ErrorDetail:   &statuspb.Status{Message: "nack"},
	}, state)
	require.Nil(t, resp)
}

func TestHandleRequestFiltersByResourceNames(t *testing.T) {
	c := cache.New()
	c.Apply(cache.ClusterTypeURL, []cache.BuiltResource{
		{Name: "c1", Any: &anypb.Any{TypeUrl: cache.ClusterTypeURL}},
		{Name: "c2", Any: &anypb.Any{TypeUrl: cache.ClusterTypeURL}},
	})
	s := NewServer(c)
	state := newStreamState()

	resp := s.handleRequest(&discoverypb.DiscoveryRequest{
		TypeUrl:       cache.ClusterTypeURL,
		ResourceNames: []string{"c1"},
	}, state)
	require.Len(t, resp.Resources, 1)
}

func TestNotifyVersionBumpWakesRegisteredStreams(t *testing.T) {
	s := NewServer(cache.New())
	active := &activeStream{state: newStreamState(), notifyCh: make(chan struct{}, 1)}
	s.register(active)
	defer s.unregister(active)

	s.NotifyVersionBump()
	select {
	case <-active.notifyCh:
	default:
		t.Fatal("expected a pending notification")
	}
}
