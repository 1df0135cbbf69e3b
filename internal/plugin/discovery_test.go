package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePluginFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func validPluginSource(name string, deps string) string {
	src := "# Plugin: " + name + "\n# Version: 1.0.0\n"
	if deps != "" {
		src += "# Dependencies: " + deps + "\n"
	}
	src += "\nfunction setup(host)\nend\n"
	return src
}

func newTestScanner(t *testing.T, dir string) (*Scanner, *Registry) {
	t.Helper()
	log := testLogger(t)
	registry := NewRegistry(filepath.Join(t.TempDir(), "registry.json"), log)
	return NewScanner(dir, registry, log), registry
}

func TestScanDiscoversPlugins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePluginFile(t, dir, "alpha.lua", validPluginSource("alpha", ""))
	writePluginFile(t, dir, "beta.lua", validPluginSource("beta", "alpha"))

	scanner, registry := newTestScanner(t, dir)
	scanned, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, scanned, 2)

	alpha, ok := registry.Get("alpha")
	require.True(t, ok)
	require.Equal(t, StateDiscovered, alpha.State)
	require.Equal(t, "1.0.0", alpha.Version)

	beta, ok := registry.Get("beta")
	require.True(t, ok)
	require.Equal(t, []string{"alpha"}, beta.Dependencies)
}

func TestScanSkipsNonCandidates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePluginFile(t, dir, "keep.lua", validPluginSource("keep", ""))
	writePluginFile(t, dir, "_disabled.lua", validPluginSource("disabled", ""))
	writePluginFile(t, dir, "notes.txt", "not a plugin")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.lua"), 0o755))

	scanner, registry := newTestScanner(t, dir)
	scanned, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, scanned, 1)
	require.Equal(t, "keep", scanned[0].Name)

	_, ok := registry.Get("disabled")
	require.False(t, ok)
}

func TestScanMissingDirectory(t *testing.T) {
	t.Parallel()

	scanner, _ := newTestScanner(t, filepath.Join(t.TempDir(), "absent"))
	scanned, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Empty(t, scanned)
}

func TestScanBrokenPluginDoesNotAbort(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePluginFile(t, dir, "good.lua", validPluginSource("good", ""))
	writePluginFile(t, dir, "broken.lua", "# Plugin: broken\nfunction setup(\n")

	scanner, registry := newTestScanner(t, dir)
	_, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	good, ok := registry.Get("good")
	require.True(t, ok)
	require.Equal(t, StateDiscovered, good.State)

	broken, ok := registry.Get("broken")
	require.True(t, ok)
	require.Equal(t, StateError, broken.State)
	require.NotEmpty(t, broken.LastError)
}

func TestRescanIsIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePluginFile(t, dir, "alpha.lua", validPluginSource("alpha", ""))

	scanner, registry := newTestScanner(t, dir)
	_, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	_, err = scanner.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, registry.All(), 1)
	alpha, ok := registry.Get("alpha")
	require.True(t, ok)
	require.Equal(t, StateDiscovered, alpha.State)
}

func TestRescanLeavesLoadedUntouched(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePluginFile(t, dir, "alpha.lua", validPluginSource("alpha", ""))

	scanner, registry := newTestScanner(t, dir)
	_, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	alpha, _ := registry.Get("alpha")
	alpha.State = StateLoaded
	registry.Upsert(alpha)

	// The file changes on disk, but the loaded record is not disturbed.
	writePluginFile(t, dir, "alpha.lua", "# Plugin: alpha\nbroken(\n")
	_, err = scanner.Scan(context.Background())
	require.NoError(t, err)

	after, _ := registry.Get("alpha")
	require.Equal(t, StateLoaded, after.State)
	require.Empty(t, after.LastError)
}

func TestRescanPreservesUnloadedState(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePluginFile(t, dir, "alpha.lua", validPluginSource("alpha", ""))

	scanner, registry := newTestScanner(t, dir)
	_, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	alpha, _ := registry.Get("alpha")
	alpha.State = StateUnloaded
	registry.Upsert(alpha)

	_, err = scanner.Scan(context.Background())
	require.NoError(t, err)

	after, _ := registry.Get("alpha")
	require.Equal(t, StateUnloaded, after.State)
}

func TestScanFlagsMissingFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writePluginFile(t, dir, "alpha.lua", validPluginSource("alpha", ""))

	scanner, registry := newTestScanner(t, dir)
	_, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	_, err = scanner.Scan(context.Background())
	require.NoError(t, err)

	alpha, ok := registry.Get("alpha")
	require.True(t, ok, "missing plugin stays registered until pruned")
	require.True(t, alpha.Missing)

	removed := scanner.Prune()
	require.Equal(t, []string{"alpha"}, removed)
	_, ok = registry.Get("alpha")
	require.False(t, ok)
}

func TestPruneKeepsLoadedMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writePluginFile(t, dir, "alpha.lua", validPluginSource("alpha", ""))

	scanner, registry := newTestScanner(t, dir)
	_, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	alpha, _ := registry.Get("alpha")
	alpha.State = StateLoaded
	registry.Upsert(alpha)

	require.NoError(t, os.Remove(path))
	_, err = scanner.Scan(context.Background())
	require.NoError(t, err)

	require.Empty(t, scanner.Prune(), "a loaded plugin is never pruned")
	_, ok := registry.Get("alpha")
	require.True(t, ok)
}

func TestScanHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePluginFile(t, dir, "alpha.lua", validPluginSource("alpha", ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scanner, _ := newTestScanner(t, dir)
	_, err := scanner.Scan(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
