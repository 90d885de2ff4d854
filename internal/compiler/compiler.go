// Package compiler implements the deterministic, pure model-to-Envoy-proto
// functions. Every exported Compile* function takes an already-validated
// model value and returns a cache.BuiltResource wrapping the canonical Any
// payload, or an error when the input cannot be encoded: protobuf
// marshaling fails, inline secret bytes are not valid base64, or a value
// the compiler has no mapping for (an unknown match or secret type, an HCM
// with neither a route config name nor an inline route config). Model
// invariants are not re-validated.
package compiler

import (
	"log/slog"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/moonkev/flexds/internal/cache"
)

func anyOf(msg proto.Message) (*anypb.Any, error) {
	return anypb.New(msg)
}

func built(name string, msg proto.Message) (cache.BuiltResource, error) {
	any, err := anyOf(msg)
	if err != nil {
		return cache.BuiltResource{}, err
	}
	return cache.BuiltResource{Name: name, Any: any}, nil
}

var log = slog.Default()
