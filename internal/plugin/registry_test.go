package plugin

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wardenbot/warden/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Options{Level: "disabled", Writer: io.Discard})
	require.NoError(t, err)
	return log
}

func TestRegistryUpsertGetRemove(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(filepath.Join(t.TempDir(), "registry.json"), testLogger(t))

	registry.Upsert(&Descriptor{
		Metadata: Metadata{Name: "echo", Version: "1.0.0"},
		State:    StateDiscovered,
	})

	desc, ok := registry.Get("echo")
	require.True(t, ok)
	require.Equal(t, "echo", desc.Name)
	require.Equal(t, StateDiscovered, desc.State)

	_, ok = registry.Get("ghost")
	require.False(t, ok)

	registry.Remove("echo")
	_, ok = registry.Get("echo")
	require.False(t, ok)

	registry.Remove("ghost") // no-op
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(filepath.Join(t.TempDir(), "registry.json"), testLogger(t))
	registry.Upsert(&Descriptor{
		Metadata: Metadata{Name: "echo", Dependencies: []string{"base"}},
	})

	desc, ok := registry.Get("echo")
	require.True(t, ok)
	desc.State = StateError
	desc.Dependencies[0] = "mutated"

	fresh, ok := registry.Get("echo")
	require.True(t, ok)
	require.Equal(t, StateDiscovered, fresh.State)
	require.Equal(t, []string{"base"}, fresh.Dependencies)
}

func TestRegistryAllSorted(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(filepath.Join(t.TempDir(), "registry.json"), testLogger(t))
	for _, name := range []string{"zeta", "alpha", "mid"} {
		registry.Upsert(&Descriptor{Metadata: Metadata{Name: name}})
	}

	all := registry.All()
	require.Len(t, all, 3)
	require.Equal(t, "alpha", all[0].Name)
	require.Equal(t, "mid", all[1].Name)
	require.Equal(t, "zeta", all[2].Name)
}

func TestRegistryPersistRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "registry.json")
	registry := NewRegistry(path, testLogger(t))

	loaded := &Descriptor{
		Metadata: Metadata{Name: "loaded_one", Version: "2.0.0"},
	}
	loaded.setLoaded(time.Now().UTC())
	registry.Upsert(loaded)
	registry.Upsert(&Descriptor{
		Metadata: Metadata{Name: "dormant"},
		State:    StateUnloaded,
	})

	require.NoError(t, registry.Persist())

	restored := NewRegistry(path, testLogger(t))
	autoload := restored.Restore()
	require.Len(t, autoload, 1)
	require.Contains(t, autoload, "loaded_one")
}

func TestRegistryPersistSnapshotFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "registry.json")
	registry := NewRegistry(path, testLogger(t))
	registry.Upsert(&Descriptor{Metadata: Metadata{Name: "echo", Version: "1.0.0"}})

	require.NoError(t, registry.Persist())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var file map[string]any
	require.NoError(t, json.Unmarshal(data, &file))
	require.Equal(t, "1.0", file["version"])
	require.NotEmpty(t, file["updated_at"])

	plugins, ok := file["plugins"].([]any)
	require.True(t, ok)
	require.Len(t, plugins, 1)
}

func TestRegistryRestoreMissingSnapshot(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(filepath.Join(t.TempDir(), "nonexistent.json"), testLogger(t))
	require.Empty(t, registry.Restore())
}

func TestRegistryRestoreCorruptSnapshot(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	registry := NewRegistry(path, testLogger(t))
	require.Empty(t, registry.Restore(), "corrupt snapshot starts empty, never fails")
}
