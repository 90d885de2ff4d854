// Package xds implements the Aggregated Discovery Service (ADS) gRPC
// endpoint: a hand-rolled streaming server driving internal/cache directly,
// in place of go-control-plane's pkg/server/v3 + pkg/cache/v3 snapshot
// cache machinery.
package xds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	discoverypb "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"

	"github.com/moonkev/flexds/internal/cache"
	"github.com/moonkev/flexds/internal/idgen"
	"github.com/moonkev/flexds/internal/telemetry"
)

var log = slog.Default()

// outboundQueueSize bounds each stream's pending-response buffer; a stream
// that cannot keep up is disconnected rather than let the queue grow
// unbounded.
const outboundQueueSize = 100

// TrackedTypeURLs are the resource types the server answers
// DiscoveryRequests for and pushes unsolicited updates on version bumps.
var TrackedTypeURLs = []string{
	cache.ClusterTypeURL,
	cache.RouteTypeURL,
	cache.ListenerTypeURL,
	cache.SecretTypeURL,
}

// Server implements discoverypb.AggregatedDiscoveryServiceServer directly
// against internal/cache.
type Server struct {
	discoverypb.UnimplementedAggregatedDiscoveryServiceServer

	cache *cache.Cache

	mu      sync.Mutex
	streams map[*activeStream]struct{}
}

type activeStream struct {
	state    *streamState
	notifyCh chan struct{}
}

// NewServer constructs an ADS server over c.
func NewServer(c *cache.Cache) *Server {
	return &Server{cache: c, streams: make(map[*activeStream]struct{})}
}

// NotifyVersionBump wakes every live stream so it re-evaluates the cache
// and pushes fresh responses for whatever types it has requested,
// regardless of whether the client sent a new DiscoveryRequest.
func (s *Server) NotifyVersionBump() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for st := range s.streams {
		select {
		case st.notifyCh <- struct{}{}:
		default:
			// a wake-up is already pending for this stream
		}
	}
}

func (s *Server) register(st *activeStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[st] = struct{}{}
	telemetry.MetricADSActiveStreams.Set(float64(len(s.streams)))
}

func (s *Server) unregister(st *activeStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, st)
	telemetry.MetricADSActiveStreams.Set(float64(len(s.streams)))
}

// StreamAggregatedResources is the ADS protocol core. A reader goroutine
// consumes DiscoveryRequests and updates per-type requested-names state;
// the calling goroutine drains an outbound channel and writes
// DiscoveryResponses, woken either by an incoming request or by a cache
// version bump via NotifyVersionBump.
func (s *Server) StreamAggregatedResources(stream discoverypb.AggregatedDiscoveryService_StreamAggregatedResourcesServer) error {
	ctx := stream.Context()
	state := newStreamState()
	active := &activeStream{state: state, notifyCh: make(chan struct{}, 1)}
	s.register(active)
	defer s.unregister(active)

	outbound := make(chan *discoverypb.DiscoveryResponse, outboundQueueSize)
	errCh := make(chan error, 1)

	go s.recvLoop(ctx, stream, state, outbound, errCh)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case resp := <-outbound:
			if err := stream.Send(resp); err != nil {
				return err
			}
		case <-active.notifyCh:
			for _, typeURL := range state.trackedTypes() {
				resp := s.buildResponse(typeURL, state)
				select {
				case outbound <- resp:
				default:
					return fmt.Errorf("xds: stream outbound queue full for %s", typeURL)
				}
			}
		}
	}
}

func (s *Server) recvLoop(
	ctx context.Context,
	stream discoverypb.AggregatedDiscoveryService_StreamAggregatedResourcesServer,
	state *streamState,
	outbound chan *discoverypb.DiscoveryResponse,
	errCh chan error,
) {
	for {
		req, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				errCh <- nil
			} else {
				errCh <- err
			}
			return
		}
		resp := s.handleRequest(req, state)
		if resp == nil {
			continue
		}
		select {
		case outbound <- resp:
		case <-ctx.Done():
			return
		}
	}
}

// handleRequest implements the stale-nonce check, NACK logging, requested-
// names bookkeeping, and response construction. It returns nil when the
// request produces no response: a stale request, or a NACK that will be
// retried on the next cache version bump rather than answered immediately.
func (s *Server) handleRequest(req *discoverypb.DiscoveryRequest, state *streamState) *discoverypb.DiscoveryResponse {
	typeURL := req.GetTypeUrl()

	if state.isStaleNonce(typeURL, req.GetResponseNonce()) {
		log.Debug("ignoring stale ads request", "type_url", typeURL, "nonce", req.GetResponseNonce())
		return nil
	}
	if req.GetErrorDetail() != nil {
		log.Warn("ads nack received", "type_url", typeURL, "node", req.GetNode().GetId(), "error", req.GetErrorDetail().GetMessage())
		return nil
	}
	if req.GetResponseNonce() != "" {
		state.recordAck(typeURL, req.GetVersionInfo())
	}

	state.setRequested(typeURL, req.GetResourceNames())
	return s.buildResponse(typeURL, state)
}

func (s *Server) buildResponse(typeURL string, state *streamState) *discoverypb.DiscoveryResponse {
	version, resources := s.cache.Snapshot(typeURL, state.namesFor(typeURL))
	nonce := idgen.New()
	state.recordNonce(typeURL, nonce)
	return &discoverypb.DiscoveryResponse{
		VersionInfo: version,
		Resources:   resources,
		TypeUrl:     typeURL,
		Nonce:       nonce,
	}
}

// DeltaAggregatedResources is exposed as a stub: it drains the stream until
// the client closes or the context is cancelled, never producing a
// response. Incremental xDS is not implemented.
func (s *Server) DeltaAggregatedResources(stream discoverypb.AggregatedDiscoveryService_DeltaAggregatedResourcesServer) error {
	ctx := stream.Context()
	for {
		if _, err := stream.Recv(); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// RunGRPC starts the ADS gRPC server on port and blocks until ctx is
// cancelled, at which point it gracefully stops: in-flight streams drain
// and close, no new streams are accepted.
func RunGRPC(ctx context.Context, srv *Server, port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("xds: listen on port %d: %w", port, err)
	}

	grpcServer := grpc.NewServer(
		grpc.MaxConcurrentStreams(1000000),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	discoverypb.RegisterAggregatedDiscoveryServiceServer(grpcServer, srv)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("ads server listening", "port", port)
		serveErr <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		log.Info("context cancelled, stopping ads server")
		grpcServer.GracefulStop()
		<-serveErr
		log.Info("ads server stopped")
		return nil
	case err := <-serveErr:
		if err != nil {
			log.Error("ads serve error", "error", err)
			os.Exit(1)
		}
		return err
	}
}
