package multiproc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializerDeserializerRoundTrip(t *testing.T) {
	s := NewSerializer()
	defer s.Release()

	s.PutUint8(0x12)
	s.PutUint16(0x3456)
	s.PutUint32(0x789abcde)
	s.PutUint64(0x0102030405060708)
	s.PutBool(true)
	s.PutString("hello")
	s.PutFd(7)

	d := NewDeserializer(append([]byte(nil), s.Bytes()...), append([]int(nil), s.Fds()...))

	u8, err := d.GetUint8()
	require.NoError(t, err)
	require.EqualValues(t, 0x12, u8)

	u16, err := d.GetUint16()
	require.NoError(t, err)
	require.EqualValues(t, 0x3456, u16)

	u32, err := d.GetUint32()
	require.NoError(t, err)
	require.EqualValues(t, 0x789abcde, u32)

	u64, err := d.GetUint64()
	require.NoError(t, err)
	require.EqualValues(t, 0x0102030405060708, u64)

	b, err := d.GetBool()
	require.NoError(t, err)
	require.True(t, b)

	str, err := d.GetString()
	require.NoError(t, err)
	require.Equal(t, "hello", str)

	fd, err := d.GetFd()
	require.NoError(t, err)
	require.Equal(t, 7, fd)
}

func TestDeserializerTruncatedBuffer(t *testing.T) {
	d := NewDeserializer([]byte{0x01}, nil)
	_, err := d.GetUint32()
	require.Error(t, err)
}

func TestDeserializerExhaustedFds(t *testing.T) {
	d := NewDeserializer(nil, nil)
	_, err := d.GetFd()
	require.Error(t, err)
}

func TestBuiltinInt32RoundTrip(t *testing.T) {
	s := NewSerializer()
	defer s.Release()
	var in Int32 = -42
	require.NoError(t, in.EncodeMP(s))

	var out Int32
	d := NewDeserializer(s.Bytes(), s.Fds())
	require.NoError(t, out.DecodeMP(d))
	require.Equal(t, in, out)
}

func TestBuiltinBytesRoundTrip(t *testing.T) {
	s := NewSerializer()
	defer s.Release()
	in := Bytes("some payload")
	require.NoError(t, in.EncodeMP(s))

	var out Bytes
	d := NewDeserializer(s.Bytes(), s.Fds())
	require.NoError(t, out.DecodeMP(d))
	require.Equal(t, in, out)
}

func TestEncodeDecodeSlice(t *testing.T) {
	s := NewSerializer()
	defer s.Release()
	items := []Int32{1, 2, 3}
	require.NoError(t, EncodeSlice(s, items, func(v Int32, s *Serializer) error { return v.EncodeMP(s) }))

	d := NewDeserializer(s.Bytes(), s.Fds())
	out, err := DecodeSlice(d, func(d *Deserializer) (Int32, error) {
		var v Int32
		err := v.DecodeMP(d)
		return v, err
	})
	require.NoError(t, err)
	require.Equal(t, items, out)
}
