package multiproc

// Builtins: the primitive and container Encoder/Decoder implementations
// every other transportable type is assembled from. Go has no derive
// macro, so these are the concrete leaves that a hand-written EncodeMP/
// DecodeMP pair composes, the same role builtins.rs plays for the
// generated impls in the source this is grounded on.

// Int32 is a transportable 32-bit signed integer.
type Int32 int32

func (v Int32) EncodeMP(s *Serializer) error { s.PutUint32(uint32(v)); return nil }

func (v *Int32) DecodeMP(d *Deserializer) error {
	x, err := d.GetUint32()
	if err != nil {
		return err
	}
	*v = Int32(x)
	return nil
}

// Int64 is a transportable 64-bit signed integer.
type Int64 int64

func (v Int64) EncodeMP(s *Serializer) error { s.PutUint64(uint64(v)); return nil }

func (v *Int64) DecodeMP(d *Deserializer) error {
	x, err := d.GetUint64()
	if err != nil {
		return err
	}
	*v = Int64(x)
	return nil
}

// Bool is a transportable boolean.
type Bool bool

func (v Bool) EncodeMP(s *Serializer) error { s.PutBool(bool(v)); return nil }

func (v *Bool) DecodeMP(d *Deserializer) error {
	x, err := d.GetBool()
	if err != nil {
		return err
	}
	*v = Bool(x)
	return nil
}

// Bytes is a transportable length-prefixed byte string.
type Bytes []byte

func (v Bytes) EncodeMP(s *Serializer) error { s.PutBytes(v); return nil }

func (v *Bytes) DecodeMP(d *Deserializer) error {
	b, err := d.GetBytes()
	if err != nil {
		return err
	}
	*v = b
	return nil
}

// String is a transportable length-prefixed string.
type String string

func (v String) EncodeMP(s *Serializer) error { s.PutString(string(v)); return nil }

func (v *String) DecodeMP(d *Deserializer) error {
	x, err := d.GetString()
	if err != nil {
		return err
	}
	*v = String(x)
	return nil
}

// Unit is the nullary transportable value: no fields, no fds. It stands
// in for Rust's () return type and for commands that carry no payload.
type Unit struct{}

func (Unit) EncodeMP(s *Serializer) error    { return nil }
func (*Unit) DecodeMP(d *Deserializer) error { return nil }

// Fd is a transportable open file descriptor. Encoding it appends the raw
// descriptor to the message's fd list; decoding pops the next one and
// adopts ownership (spec §3 "fd-bearing types").
type Fd int

func (v Fd) EncodeMP(s *Serializer) error { s.PutFd(int(v)); return nil }

func (v *Fd) DecodeMP(d *Deserializer) error {
	fd, err := d.GetFd()
	if err != nil {
		return err
	}
	*v = Fd(fd)
	return nil
}

// EncodeSlice writes a length followed by each element, encoded with
// encode — the generic shape of every variable-length container (spec
// §4.1).
func EncodeSlice[T any](s *Serializer, items []T, encode func(T, *Serializer) error) error {
	s.PutUint32(uint32(len(items)))
	for _, it := range items {
		if err := encode(it, s); err != nil {
			return err
		}
	}
	return nil
}

// DecodeSlice reads a length-prefixed sequence written by EncodeSlice.
func DecodeSlice[T any](d *Deserializer, decode func(*Deserializer) (T, error)) ([]T, error) {
	n, err := d.GetUint32()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := decode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
