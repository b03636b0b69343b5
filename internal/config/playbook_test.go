package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPlaybookCoversAllCategories(t *testing.T) {
	pb := DefaultPlaybook()
	for _, cat := range []string{"symptoms", "timeline", "changes", "configuration", "scope", "metrics", "environment"} {
		entry, ok := pb.Lookup(cat)
		require.True(t, ok, "missing playbook entry for %s", cat)
		assert.NotEmpty(t, entry.Label)
	}
}

func TestLoadPlaybookOverridesPerCategory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "playbook.yaml")
	content := `
entries:
  scope:
    label: "Custom scope ask"
    commands: ["wc -l affected_users.csv"]
    critical: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	pb, err := LoadPlaybook(path)
	require.NoError(t, err)

	scope, ok := pb.Lookup("scope")
	require.True(t, ok)
	assert.Equal(t, "Custom scope ask", scope.Label)

	// Other categories keep the built-in defaults.
	_, ok = pb.Lookup("symptoms")
	assert.True(t, ok)
}

func TestLoadPlaybookMissingFileUsesDefaults(t *testing.T) {
	pb, err := LoadPlaybook(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	_, ok := pb.Lookup("metrics")
	assert.True(t, ok)
}

func TestPlaybookWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "playbook.yaml")

	holder := NewPlaybookHolder(DefaultPlaybook())
	watcher, err := NewPlaybookWatcher(path, holder)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	content := `
entries:
  metrics:
    label: "Reloaded metrics ask"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		entry, _ := holder.Get().Lookup("metrics")
		if entry.Label == "Reloaded metrics ask" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("playbook was not reloaded within deadline")
}
