package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/anypb"
)

func resource(name string, value []byte) BuiltResource {
	return BuiltResource{Name: name, Any: &anypb.Any{TypeUrl: ClusterTypeURL, Value: value}}
}

func TestApplyMonotonicity(t *testing.T) {
	c := New()
	start := c.Version()

	_, changed := c.Apply(ClusterTypeURL, []BuiltResource{resource("x", []byte("a"))})
	require.True(t, changed)
	v1 := c.Version()
	require.Greater(t, v1, start)

	// Identical bytes: no version bump.
	_, changed = c.Apply(ClusterTypeURL, []BuiltResource{resource("x", []byte("a"))})
	require.False(t, changed)
	require.Equal(t, v1, c.Version())

	// Different bytes: version bumps exactly once more.
	_, changed = c.Apply(ClusterTypeURL, []BuiltResource{resource("x", []byte("b"))})
	require.True(t, changed)
	require.Equal(t, v1+1, c.Version())
}

func TestSnapshotFiltersByRequestedNames(t *testing.T) {
	c := New()
	c.Apply(ClusterTypeURL, []BuiltResource{
		resource("a", []byte("1")),
		resource("b", []byte("2")),
	})

	_, all := c.Snapshot(ClusterTypeURL, nil)
	require.Len(t, all, 2)

	_, filtered := c.Snapshot(ClusterTypeURL, map[string]struct{}{"a": {}})
	require.Len(t, filtered, 1)
}

func TestApplyEmptyReplacesPriorSnapshot(t *testing.T) {
	c := New()
	c.Apply(ClusterTypeURL, []BuiltResource{resource("a", []byte("1"))})
	version, changed := c.Apply(ClusterTypeURL, nil)
	require.True(t, changed)
	require.Equal(t, 0, c.ResourceCount(ClusterTypeURL))
	require.Equal(t, c.Version(), version)
}
