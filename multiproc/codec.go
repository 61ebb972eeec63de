// Package multiproc is the typed inter-process object channel: a
// serialization substrate that moves arbitrary user-defined values,
// including open file descriptors and registered closures, between a
// parent invoker and a child worker process over an AF_UNIX SOCK_SEQPACKET
// socket. It is the Go rendition of the `multiprocessing` crate this
// system is built on (serde-equivalent codec, ipc, imp, fns, delayed).
package multiproc

import (
	"encoding/binary"

	"github.com/bytedance/gopkg/lang/mcache"
	"github.com/sunwalker/invoker/invokererr"
)

// Encoder is implemented by every transportable type's serialize-self
// operation: write the value's fields, in declared order, into s.
type Encoder interface {
	EncodeMP(s *Serializer) error
}

// Decoder is implemented by a pointer to every transportable type's
// deserialize-self operation: read fields in the same order they were
// written, filling in the receiver.
type Decoder interface {
	DecodeMP(d *Deserializer) error
}

// DecoderPtr constrains a type parameter PT to "pointer to T, and that
// pointer implements Decoder" — the generic-Go analogue of the
// compile-time-synthesized deserialize-self the source language derives
// for every transportable type (spec §4.1, DESIGN NOTES "boxed
// polymorphism").
type DecoderPtr[T any] interface {
	*T
	Decoder
}

// Serializer accumulates an ordered byte buffer and an ordered list of
// file descriptors as values are encoded into it (spec §3 "byte buffer +
// fd list").
type Serializer struct {
	buf []byte
	fds []int
}

// NewSerializer returns an empty Serializer backed by a pooled buffer.
func NewSerializer() *Serializer {
	return &Serializer{buf: mcache.Malloc(0, 256)}
}

// Release returns the Serializer's backing buffer to the pool. Callers
// must not use the Serializer (or any slice obtained from Bytes) after
// calling Release.
func (s *Serializer) Release() {
	mcache.Free(s.buf)
	s.buf = nil
}

// Bytes returns the accumulated byte buffer.
func (s *Serializer) Bytes() []byte { return s.buf }

// Fds returns the accumulated file descriptor list, in the order
// encountered.
func (s *Serializer) Fds() []int { return s.fds }

func (s *Serializer) PutUint8(v uint8) { s.buf = append(s.buf, v) }

func (s *Serializer) PutUint16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	s.buf = append(s.buf, tmp[:]...)
}

func (s *Serializer) PutUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	s.buf = append(s.buf, tmp[:]...)
}

func (s *Serializer) PutUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	s.buf = append(s.buf, tmp[:]...)
}

func (s *Serializer) PutBool(v bool) {
	if v {
		s.PutUint8(1)
	} else {
		s.PutUint8(0)
	}
}

// PutBytes writes a length-prefixed byte string (spec §4.1 "variable-
// length containers write a length followed by elements").
func (s *Serializer) PutBytes(b []byte) {
	s.PutUint32(uint32(len(b)))
	s.buf = append(s.buf, b...)
}

func (s *Serializer) PutString(str string) { s.PutBytes([]byte(str)) }

// PutFd appends fd to the descriptor list. The sender must not use fd
// again after the message containing it is successfully sent — ownership
// transfers to the receiver (spec §9 "ownership of transferred fds").
func (s *Serializer) PutFd(fd int) { s.fds = append(s.fds, fd) }

// Deserializer is constructed from a received byte buffer and the list of
// file descriptors received alongside it, and decodes a value of a
// statically-known schema by consuming both in order.
type Deserializer struct {
	buf   []byte
	pos   int
	fds   []int
	fdPos int
}

// NewDeserializer wraps an already-received message for decoding.
func NewDeserializer(buf []byte, fds []int) *Deserializer {
	return &Deserializer{buf: buf, fds: fds}
}

func (d *Deserializer) need(n int) error {
	if d.pos+n > len(d.buf) {
		return invokererr.New(invokererr.Codec, "truncated buffer: need %d bytes, have %d", n, len(d.buf)-d.pos)
	}
	return nil
}

func (d *Deserializer) GetUint8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

func (d *Deserializer) GetUint16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *Deserializer) GetUint32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *Deserializer) GetUint64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *Deserializer) GetBool() (bool, error) {
	v, err := d.GetUint8()
	return v != 0, err
}

func (d *Deserializer) GetBytes() ([]byte, error) {
	n, err := d.GetUint32()
	if err != nil {
		return nil, err
	}
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, d.buf[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return b, nil
}

func (d *Deserializer) GetString() (string, error) {
	b, err := d.GetBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GetFd pops the next file descriptor from the received list, adopting
// ownership of it.
func (d *Deserializer) GetFd() (int, error) {
	if d.fdPos >= len(d.fds) {
		return 0, invokererr.New(invokererr.Codec, "truncated descriptor list")
	}
	fd := d.fds[d.fdPos]
	d.fdPos++
	return fd, nil
}
