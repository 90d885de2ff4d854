package xds

import "sync"

// streamState is the per-stream bookkeeping the ADS protocol requires: the
// last resource_names seen per type, the last acked version, and the last
// nonce issued per type.
type streamState struct {
	mu           sync.Mutex
	requested    map[string]map[string]struct{}
	ackedVersion map[string]string
	lastNonce    map[string]string
}

func newStreamState() *streamState {
	return &streamState{
		requested:    make(map[string]map[string]struct{}),
		ackedVersion: make(map[string]string),
		lastNonce:    make(map[string]string),
	}
}

// trackedTypes returns every type URL this stream has ever requested, used
// to decide which types to push a fresh response for on a version bump.
func (s *streamState) trackedTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.requested))
	for t := range s.requested {
		out = append(out, t)
	}
	return out
}

func (s *streamState) setRequested(typeURL string, names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	s.requested[typeURL] = set
}

func (s *streamState) namesFor(typeURL string) map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requested[typeURL]
}

func (s *streamState) isStaleNonce(typeURL, responseNonce string) bool {
	if responseNonce == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return responseNonce != s.lastNonce[typeURL]
}

func (s *streamState) recordNonce(typeURL, nonce string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastNonce[typeURL] = nonce
}

func (s *streamState) recordAck(typeURL, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ackedVersion[typeURL] = version
}
