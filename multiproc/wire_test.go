package multiproc

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSendRecvMessageSmall(t *testing.T) {
	a, b, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(a)
	defer unix.Close(b)

	payload := []byte("a short message")
	require.NoError(t, sendMessage(a, payload, nil))

	got, fds, ok, err := recvMessage(b)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, fds)
	require.Equal(t, payload, got)
}

func TestSendRecvMessageSpansMultiplePackets(t *testing.T) {
	a, b, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(a)
	defer unix.Close(b)

	payload := make([]byte, MaxPacketSize*3+17)
	for i := range payload {
		payload[i] = byte(i)
	}

	done := make(chan error, 1)
	go func() { done <- sendMessage(a, payload, nil) }()

	got, _, ok, err := recvMessage(b)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payload, got)
	require.NoError(t, <-done)
}

func TestRecvMessageNoneOnCleanClose(t *testing.T) {
	a, b, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(b)
	require.NoError(t, unix.Close(a))

	_, _, ok, err := recvMessage(b)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRecvMessageErrorOnMidMessageClose(t *testing.T) {
	a, b, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(b)

	require.NoError(t, writePacket(a, []byte("partial"), nil, false))
	require.NoError(t, unix.Close(a))

	_, _, _, err = recvMessage(b)
	require.Error(t, err)
}

func TestWritePacketRejectsTooManyFds(t *testing.T) {
	a, b, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(a)
	defer unix.Close(b)

	fds := make([]int, MaxFdsPerPacket+1)
	for i := range fds {
		fds[i] = a
	}
	err = writePacket(a, nil, fds, true)
	require.Error(t, err)
}
