package channels

import (
	"context"
	"strings"
	"testing"

	"github.com/eyebeam/focusd/internal/bundle"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKillerChannel_ApplyRevert(t *testing.T) {
	k := NewKillerChannel()

	appEntry, err := bundle.NewAppEntry("com.example.nonexistent")
	require.NoError(t, err)

	require.NoError(t, k.Apply(context.Background(), []bundle.Entry{appEntry}, false))
	assert.NotNil(t, k.cancel)

	require.NoError(t, k.Revert(context.Background()))
	assert.Nil(t, k.cancel)

	// Revert is safe to call again with no Apply in effect.
	require.NoError(t, k.Revert(context.Background()))
}

func TestKillerChannel_NeverTargetsOwnPID(t *testing.T) {
	k := NewKillerChannel()
	assert.NotZero(t, k.ownPID)

	// sweep with no targets is a no-op and must not panic.
	k.sweep(context.Background(), nil)

	// targeting this process's own name must not terminate it.
	self, err := process.NewProcess(k.ownPID)
	require.NoError(t, err)
	name, err := self.Name()
	require.NoError(t, err)

	k.sweep(context.Background(), map[string]bool{strings.ToLower(name): true})
	assert.Empty(t, k.Killed())
}
