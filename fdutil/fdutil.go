// Package fdutil wraps the handful of fcntl/socket primitives the
// multiprocessing substrate needs: toggling CLOEXEC and NONBLOCK on an
// inherited descriptor, and creating the SOCK_SEQPACKET pairs the typed
// channel rides on. One function each, mirroring imp::{enable,disable}_*
// and ipc::channel's socketpair(2) call in the original implementation.
package fdutil

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SetCloexec sets or clears FD_CLOEXEC on fd.
func SetCloexec(fd int, on bool) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return fmt.Errorf("fdutil: F_GETFD on fd %d: %w", fd, err)
	}
	if on {
		flags |= unix.FD_CLOEXEC
	} else {
		flags &^= unix.FD_CLOEXEC
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags); err != nil {
		return fmt.Errorf("fdutil: F_SETFD on fd %d: %w", fd, err)
	}
	return nil
}

// SetNonblock sets or clears O_NONBLOCK on fd. The cooperative channel
// flavor sets it on construction and clears it again when a Receiver or
// Sender is converted back to the blocking flavor.
func SetNonblock(fd int, on bool) error {
	return unix.SetNonblock(fd, on)
}

// Socketpair creates a CLOEXEC AF_UNIX SOCK_SEQPACKET pair, the wire the
// typed channel is built on (spec §3 "Packet-level framing").
func Socketpair() (a, b int, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("fdutil: socketpair: %w", err)
	}
	return fds[0], fds[1], nil
}
