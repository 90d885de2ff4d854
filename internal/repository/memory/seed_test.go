package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadSeedFileRejectsReservedListenerPort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	contents := `
listeners:
  - name: edge
    address: 0.0.0.0
    port: 18000
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	store := New()
	_, err := LoadSeedFile(context.Background(), store, path, []uint32{18000})
	require.Error(t, err)
	require.Contains(t, err.Error(), "reserved port")
}

func TestLoadSeedFileAllowsNonReservedListenerPort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	contents := `
listeners:
  - name: edge
    address: 0.0.0.0
    port: 10700
refresh_interval: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	store := New()
	doc, err := LoadSeedFile(context.Background(), store, path, []uint32{18000})
	require.NoError(t, err)
	require.NotNil(t, doc.RefreshInterval)
	require.Equal(t, 30*time.Second, doc.RefreshInterval.ToDuration())
}
