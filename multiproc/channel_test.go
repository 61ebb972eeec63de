package multiproc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelSendRecvRoundTrip(t *testing.T) {
	tx, rx, err := Channel[Int32, *Int32]()
	require.NoError(t, err)
	defer tx.Close()
	defer rx.Close()

	require.NoError(t, tx.Send(Int32(99)))
	v, ok, err := rx.Recv()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Int32(99), v)
}

func TestChannelRecvReturnsNotOkOnSenderClose(t *testing.T) {
	tx, rx, err := Channel[Int32, *Int32]()
	require.NoError(t, err)
	defer rx.Close()
	require.NoError(t, tx.Close())

	_, ok, err := rx.Recv()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDuplexBothDirections(t *testing.T) {
	a, b, err := Duplex[String, *String, Int32, *Int32]()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.Send(String("ping")))
	got, ok, err := b.Recv()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, String("ping"), got)

	require.NoError(t, b.Send(Int32(7)))
	num, ok, err := a.Recv()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Int32(7), num)
}
