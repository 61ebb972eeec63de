package fdutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSocketpairIsSeqpacketCloexec(t *testing.T) {
	a, b, err := Socketpair()
	require.NoError(t, err)
	defer unix.Close(a)
	defer unix.Close(b)

	flags, err := unix.FcntlInt(uintptr(a), unix.F_GETFD, 0)
	require.NoError(t, err)
	require.NotZero(t, flags&unix.FD_CLOEXEC)
}

func TestSetCloexecToggles(t *testing.T) {
	a, b, err := Socketpair()
	require.NoError(t, err)
	defer unix.Close(a)
	defer unix.Close(b)

	require.NoError(t, SetCloexec(a, false))
	flags, err := unix.FcntlInt(uintptr(a), unix.F_GETFD, 0)
	require.NoError(t, err)
	require.Zero(t, flags&unix.FD_CLOEXEC)

	require.NoError(t, SetCloexec(a, true))
	flags, err = unix.FcntlInt(uintptr(a), unix.F_GETFD, 0)
	require.NoError(t, err)
	require.NotZero(t, flags&unix.FD_CLOEXEC)
}

func TestSetNonblockToggles(t *testing.T) {
	a, b, err := Socketpair()
	require.NoError(t, err)
	defer unix.Close(a)
	defer unix.Close(b)

	require.NoError(t, SetNonblock(a, true))
	require.NoError(t, SetNonblock(a, false))
}
