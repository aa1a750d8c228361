package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flathits/blobstore"
	"github.com/hupe1980/flathits/config"
	"github.com/hupe1980/flathits/hitfile"
	"github.com/hupe1980/flathits/table"
	"github.com/hupe1980/flathits/testutil"
)

func fixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	rng := testutil.NewRNG(11)
	testutil.MustArchive(t, blobstore.NewLocalStore(dir), "run1.hit", map[string]*table.Table{
		"CDCHitTree": rng.Hits(testutil.HitSpec{Prefix: "CDCHit.f", Events: 3, FirstEvent: 1, MaxHits: 5}),
		"CTHHitTree": rng.Hits(testutil.HitSpec{Prefix: "CTHHit.f", Events: 3, FirstEvent: 1, MaxHits: 2}),
	})
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestColumns(t *testing.T) {
	dir := fixture(t)

	out, err := runCLI(t, "-root", dir, "columns", "run1.hit", "CDCHitTree")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Contains(t, lines, "CDCHit.fEdep")
	assert.Contains(t, lines, "CDCHit.fEventNumber")
	assert.Len(t, lines, 8)
}

func TestInspect(t *testing.T) {
	dir := fixture(t)

	out, err := runCLI(t, "-root", dir, "inspect", "run1.hit")
	require.NoError(t, err)
	assert.Contains(t, out, "tree CDCHitTree")
	assert.Contains(t, out, "tree CTHHitTree")
	assert.Contains(t, out, "CTHHit.fPosition")
}

func TestEvents(t *testing.T) {
	dir := fixture(t)

	out, err := runCLI(t, "-root", dir, "events", "-geometry", "CDC", "-events", "3,1", "-show", "Layer,EventNumber", "run1.hit")
	require.NoError(t, err)
	assert.Contains(t, out, "in 3 events")
	assert.Contains(t, out, "EVENT")
	assert.Contains(t, out, "CDCHit.fLayer")

	i3 := strings.Index(out, "\n3 ")
	i1 := strings.Index(out, "\n1 ")
	require.Positive(t, i3)
	require.Positive(t, i1)
	assert.Less(t, i3, i1)
}

func TestEvents_ConfigurationError(t *testing.T) {
	dir := fixture(t)

	_, err := runCLI(t, "-root", dir, "events", "-geometry", "CDC", "-select", "Edep >= 0", "run1.hit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration error")

	_, err = runCLI(t, "-root", dir, "events", "run1.hit")
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := fixture(t)
	cfgPath := filepath.Join(dir, "hitdump.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
storage:
  kind: local
  root: `+dir+`
resources:
  memory_limit_bytes: 1048576
  io_limit_bytes_per_sec: 104857600
geometries:
  - name: CDC
    path: run1.hit
  - name: CTH
    path: run1.hit
    columns: [Edep]
`), 0o600))

	out, err := runCLI(t, "-config", cfgPath, "-block-cache", "65536", "load")
	require.NoError(t, err)
	assert.Contains(t, out, "GEOMETRY")
	assert.Contains(t, out, "CDC")
	assert.Contains(t, out, "CTH")
}

func TestConvert(t *testing.T) {
	dir := fixture(t)

	out, err := runCLI(t, "-root", dir, "convert", "-compression", "lz4", "-codec", "json", "-xz", "run1.hit", "run1.lz4.hit")
	require.NoError(t, err)
	assert.Contains(t, out, "2 trees")

	store := blobstore.NewLocalStore(dir)
	reader := hitfile.NewReader(store)
	ctx := context.Background()
	for _, tree := range []string{"CDCHitTree", "CTHHitTree"} {
		names, err := reader.ListColumns(ctx, "run1.hit", tree)
		require.NoError(t, err)
		want, err := reader.ReadTable(ctx, "run1.hit", tree, names, "")
		require.NoError(t, err)
		got, err := reader.ReadTable(ctx, "run1.lz4.hit", tree, names, "")
		require.NoError(t, err)
		testutil.AssertTablesEqual(t, want, got)
	}

	_, err = runCLI(t, "-root", dir, "convert", "-compression", "brotli", "run1.hit", "x.hit")
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, err := openStore(ctx, config.Storage{Kind: "local", Root: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &blobstore.LocalStore{}, s)

	rc := config.Resources{IOLimitBytesPerSec: 1 << 20}.Controller()
	s, err = openStore(ctx, config.Storage{Kind: "local"}, rc)
	require.NoError(t, err)
	assert.IsType(t, &blobstore.Throttled{}, s)

	_, err = openStore(ctx, config.Storage{Kind: "minio", Bucket: "b"}, nil)
	assert.Error(t, err)

	s, err = openStore(ctx, config.Storage{Kind: "minio", Bucket: "b", Endpoint: "localhost:9000"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = openStore(ctx, config.Storage{Kind: "ftp"}, nil)
	assert.Error(t, err)
}

func TestUsage(t *testing.T) {
	_, err := runCLI(t)
	assert.ErrorIs(t, err, errUsage)

	_, err = runCLI(t, "frobnicate")
	assert.ErrorIs(t, err, errUsage)
}
