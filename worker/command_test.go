package worker

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sunwalker/invoker/multiproc"
)

func TestCommandCompileRoundTrip(t *testing.T) {
	s := multiproc.NewSerializer()
	defer s.Release()

	in := Compile("judge-42")
	require.NoError(t, in.EncodeMP(s))

	var out Command
	d := multiproc.NewDeserializer(s.Bytes(), s.Fds())
	require.NoError(t, out.DecodeMP(d))
	require.Equal(t, in, out)
}

func TestCommandTestRoundTrip(t *testing.T) {
	s := multiproc.NewSerializer()
	defer s.Release()

	in := Test(17)
	require.NoError(t, in.EncodeMP(s))

	var out Command
	d := multiproc.NewDeserializer(s.Bytes(), s.Fds())
	require.NoError(t, out.DecodeMP(d))
	require.Equal(t, in, out)
}

func TestMapDependencyGraphCloneIsIndependent(t *testing.T) {
	g := NewMapDependencyGraph()
	g.FailTest(1)

	clone := g.Clone().(*MapDependencyGraph)
	clone.FailTest(2)

	_, gHas2 := g.Failed[2]
	require.False(t, gHas2)
	_, cloneHas1 := clone.Failed[1]
	require.True(t, cloneHas1)
}

func TestMapDependencyGraphShouldSkip(t *testing.T) {
	g := NewMapDependencyGraph()
	require.False(t, g.ShouldSkip(1))

	g.FailTest(1)
	require.True(t, g.ShouldSkip(1))
	require.False(t, g.ShouldSkip(2))
}
