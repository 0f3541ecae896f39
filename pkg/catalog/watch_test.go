package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yml")
	require.NoError(t, os.WriteFile(path, DefaultYAML(), 0o600))

	def, err := Load(path)
	require.NoError(t, err)
	c, err := New(def)
	require.NoError(t, err)
	require.False(t, c.Allows("receptionist", "reports", "view"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, c, zap.NewNop()) }()

	updated := strings.Replace(string(DefaultYAML()),
		"      billing: {view: true, create: true}\n      inventory: {view: true}\n",
		"      billing: {view: true, create: true}\n      inventory: {view: true}\n      reports: {view: true}\n", 1)
	require.NotEqual(t, string(DefaultYAML()), updated)

	// The watcher may not be registered yet; keep rewriting until it sees it.
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(updated), 0o600)
		return c.Allows("receptionist", "reports", "view")
	}, 5*time.Second, 50*time.Millisecond)

	// An invalid file leaves the catalog untouched.
	require.NoError(t, os.WriteFile(path, []byte("categories: [\n"), 0o600))
	time.Sleep(100 * time.Millisecond)
	assert.True(t, c.Allows("receptionist", "reports", "view"))

	cancel()
	assert.NoError(t, <-done)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
