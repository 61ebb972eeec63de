package invokererr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	e := New(Codec, "unknown variant index %d", 7)
	assert.Equal(t, "codec-error: unknown variant index 7", e.Error())

	cause := errors.New("short read")
	wrapped := Wrap(Channel, cause, "recv failed")
	assert.Equal(t, "channel-error: recv failed: short read", wrapped.Error())
	assert.Same(t, cause, errors.Unwrap(wrapped))
}

func TestErrorIsByKind(t *testing.T) {
	a := New(Sandbox, "mount failed")
	b := New(Sandbox, "a different message")
	c := New(ChildFailed, "exit 1")

	require.True(t, errors.Is(a, b))
	require.False(t, errors.Is(a, c))
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		Codec:            "codec-error",
		Channel:          "channel-error",
		Sandbox:          "sandbox-setup",
		ChildFailed:      "child-failed",
		NoValue:          "no-value",
		Configuration:    "configuration-failure",
		InvokerFailure:   "invoker-failure",
		ConductorFailure: "conductor-failure",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}
