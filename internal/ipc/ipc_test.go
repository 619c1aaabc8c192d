package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eyebeam/focusd/internal/daemon"
	"github.com/eyebeam/focusd/internal/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) (c *ipc.Client, auth *ipc.Authority, d *daemon.Daemon) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "daemon.db")
	store, err := daemon.OpenStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	d = daemon.New(store, nil)

	auth, err = ipc.NewAuthority()
	require.NoError(t, err)

	srv := ipc.NewServer(auth, d, uint32(os.Getuid()), true)

	sockPath := filepath.Join(t.TempDir(), "focusd.sock")

	ready := make(chan struct{})

	go func() {
		close(ready)
		_ = srv.Serve(sockPath)
	}()

	<-ready
	// Give Serve a moment to bind the socket before the client dials.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(sockPath); err == nil {
			break
		}

		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for socket")
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Cleanup(func() { _ = srv.Shutdown() })

	return ipc.NewClient(sockPath), auth, d
}

func TestIPC_VersionAndStatus(t *testing.T) {
	c, _, _ := startTestServer(t)

	ver, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, ver.Version)

	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.State.IsRunning)
}

func TestIPC_StartBlockRequiresToken(t *testing.T) {
	c, _, _ := startTestServer(t)

	err := c.StartBlock(context.Background(), ipc.StartBlockRequest{
		Token:   "garbage",
		EndDate: time.Now().Add(time.Hour),
	})
	assert.Error(t, err)
}

func TestIPC_StartBlockWithValidToken(t *testing.T) {
	c, auth, _ := startTestServer(t)

	token, err := auth.Grant(ipc.RightStartBlock)
	require.NoError(t, err)

	err = c.StartBlock(context.Background(), ipc.StartBlockRequest{
		Token:   token,
		EndDate: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.State.IsRunning)
}

func TestIPC_StartScheduledBlockNoTokenRequired(t *testing.T) {
	c, _, d := startTestServer(t)

	end := time.Now().Add(time.Hour)
	require.NoError(t, d.RegisterSchedule(daemon.ApprovedSchedule{ID: "seg-1", EndDate: end}))

	err := c.StartScheduledBlock(context.Background(), ipc.StartScheduledBlockRequest{
		ID:      "seg-1",
		EndDate: end,
	})
	require.NoError(t, err)
}

func TestIPC_StartScheduledBlockRejectsUnknownID(t *testing.T) {
	c, _, _ := startTestServer(t)

	err := c.StartScheduledBlock(context.Background(), ipc.StartScheduledBlockRequest{
		ID:      "unknown",
		EndDate: time.Now().Add(time.Hour),
	})
	assert.Error(t, err)
}
