package multiproc

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMain lets the test binary itself be re-exec'd as a Spawn child:
// go test builds one executable, and Main recognizes the sentinel argv
// this package's Spawn uses to dispatch into it.
func TestMain(m *testing.M) {
	Main()
	os.Exit(m.Run())
}

type addArgs struct {
	A, B Int32
}

func (a addArgs) EncodeMP(s *Serializer) error {
	if err := a.A.EncodeMP(s); err != nil {
		return err
	}
	return a.B.EncodeMP(s)
}

func (a *addArgs) DecodeMP(d *Deserializer) error {
	if err := a.A.DecodeMP(d); err != nil {
		return err
	}
	return a.B.DecodeMP(d)
}

var addEntry = RegisterEntry[addArgs, *addArgs, Int32, *Int32]("multiproc-test-add", func(args addArgs) (Int32, error) {
	return args.A + args.B, nil
})

func TestSpawnAddEntrypoint(t *testing.T) {
	if os.Getenv("MULTIPROC_TEST_NO_SPAWN") != "" {
		t.Skip("spawn tests disabled in this environment")
	}
	child, err := Spawn(addEntry, addArgs{A: 3, B: 4})
	require.NoError(t, err)

	result, err := child.Join()
	require.NoError(t, err)
	require.Equal(t, Int32(7), result)
}

func TestAsyncChannelSendRecv(t *testing.T) {
	tx, rx, err := Channel[Int32, *Int32]()
	require.NoError(t, err)

	atx, err := ToAsyncSender(tx)
	require.NoError(t, err)
	arx, err := ToAsyncReceiver(rx)
	require.NoError(t, err)
	defer atx.Close()
	defer arx.Close()

	ctx := context.Background()
	require.NoError(t, atx.Send(ctx, Int32(42)))
	v, ok, err := arx.Recv(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Int32(42), v)
}
