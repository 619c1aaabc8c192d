package channels

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/eyebeam/focusd/internal/bundle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostsChannel_ApplyRevert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	original := "127.0.0.1 localhost\n255.255.255.255 broadcasthost\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	ch := NewHostsChannel(path)

	e1, err := bundle.NewWebsiteEntry("example.com", 0, -1)
	require.NoError(t, err)

	require.NoError(t, ch.Apply(context.Background(), []bundle.Entry{e1}, false))

	hosts, err := parseHostsFile(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"example.com", "example.com"}, hosts)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "localhost")
	assert.Contains(t, string(data), "broadcasthost")

	// apply is idempotent.
	require.NoError(t, ch.Apply(context.Background(), []bundle.Entry{e1}, false))
	data2, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(data2))

	// revert restores the file bit-for-bit (spec invariant 8).
	require.NoError(t, ch.Revert(context.Background()))
	data3, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(data3))
}

func TestHostsChannel_Allowlist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, os.WriteFile(path, []byte("127.0.0.1 localhost\n"), 0o644))

	ch := NewHostsChannel(path)
	e1, err := bundle.NewWebsiteEntry("example.com", 0, -1)
	require.NoError(t, err)

	require.NoError(t, ch.Apply(context.Background(), []bundle.Entry{e1}, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1 localhost\n", string(data))
}
