//go:build darwin

package ipc

import (
	"net"

	"github.com/AdguardTeam/golibs/errors"
	"golang.org/x/sys/unix"
)

// PeerUID reads the connecting UID of a Unix domain socket connection via
// LOCAL_PEERCRED, macOS's equivalent of Linux's SO_PEERCRED, recovering
// SCXPCClient's implicit "same user" check.
func PeerUID(conn *net.UnixConn) (uid uint32, err error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, errors.Annotate(err, "ipc: getting raw conn: %w")
	}

	var cred *unix.Xucred
	var sockErr error

	ctrlErr := raw.Control(func(fd uintptr) {
		cred, sockErr = unix.GetsockoptXucred(int(fd), unix.SOL_LOCAL, unix.LOCAL_PEERCRED)
	})
	if ctrlErr != nil {
		return 0, errors.Annotate(ctrlErr, "ipc: reading peer credentials: %w")
	}

	if sockErr != nil {
		return 0, errors.Annotate(sockErr, "ipc: reading peer credentials: %w")
	}

	return cred.Uid, nil
}
