package multiproc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type regTestValue struct{ N Int32 }

func (v regTestValue) TypeKey() string { return "multiproc-registry-test-value" }
func (v regTestValue) EncodeMP(s *Serializer) error { return v.N.EncodeMP(s) }

func init() {
	registerBoxed("multiproc-registry-test-value", func(d *Deserializer) (Boxed, error) {
		var n Int32
		if err := n.DecodeMP(d); err != nil {
			return nil, err
		}
		return regTestValue{N: n}, nil
	})
}

func TestEncodeDecodeBoxedRoundTrip(t *testing.T) {
	s := NewSerializer()
	defer s.Release()

	require.NoError(t, EncodeBoxed(s, regTestValue{N: 9}))

	d := NewDeserializer(s.Bytes(), s.Fds())
	got, err := DecodeBoxed(d)
	require.NoError(t, err)
	require.Equal(t, regTestValue{N: 9}, got)
}

func TestDecodeBoxedUnknownKey(t *testing.T) {
	s := NewSerializer()
	defer s.Release()
	s.PutString("no-such-type")

	d := NewDeserializer(s.Bytes(), s.Fds())
	_, err := DecodeBoxed(d)
	require.Error(t, err)
}

func TestRegisterBoxedDuplicateKeyPanics(t *testing.T) {
	require.Panics(t, func() {
		registerBoxed("multiproc-registry-test-value", func(d *Deserializer) (Boxed, error) { return nil, nil })
	})
}
