package multiproc

import (
	"github.com/sunwalker/invoker/fdutil"
	"github.com/sunwalker/invoker/invokererr"
	"golang.org/x/sys/unix"
)

// Sender is the blocking-flavor typed sender half of a channel created by
// Channel or Duplex (spec §4.2).
type Sender[T Encoder] struct {
	fd int
}

// Send serializes v and writes it as one framed message.
func (s *Sender[T]) Send(v T) error {
	ser := NewSerializer()
	defer ser.Release()
	if err := v.EncodeMP(ser); err != nil {
		return invokererr.Wrap(invokererr.Codec, err, "encode value")
	}
	return sendMessage(s.fd, ser.Bytes(), ser.Fds())
}

func (s *Sender[T]) Close() error { return unix.Close(s.fd) }
func (s *Sender[T]) Fd() int      { return s.fd }

// Receiver is the blocking-flavor typed receiver half of a channel.
type Receiver[T any, PT DecoderPtr[T]] struct {
	fd int
}

// Recv reads the next framed message and decodes it. ok is false iff the
// peer closed the channel without sending a message (spec §4.2 "receive
// protocol").
func (r *Receiver[T, PT]) Recv() (value T, ok bool, err error) {
	payload, fds, ok, err := recvMessage(r.fd)
	if err != nil || !ok {
		return value, ok, err
	}
	d := NewDeserializer(payload, fds)
	pt := PT(&value)
	if derr := pt.DecodeMP(d); derr != nil {
		return value, false, invokererr.Wrap(invokererr.Codec, derr, "decode value")
	}
	return value, true, nil
}

func (r *Receiver[T, PT]) Close() error { return unix.Close(r.fd) }
func (r *Receiver[T, PT]) Fd() int      { return r.fd }

// Channel creates a fresh CLOEXEC SOCK_SEQPACKET pair bound to a typed
// Sender/Receiver (spec §4.2 "channel<T>()").
func Channel[T Encoder, PT DecoderPtr[T]]() (*Sender[T], *Receiver[T, PT], error) {
	a, b, err := fdutil.Socketpair()
	if err != nil {
		return nil, nil, invokererr.Wrap(invokererr.InvokerFailure, err, "create channel")
	}
	return &Sender[T]{fd: a}, &Receiver[T, PT]{fd: b}, nil
}

// DuplexEnd is one symmetric end of a Duplex: it can send S and receive R.
type DuplexEnd[S Encoder, R any, PR DecoderPtr[R]] struct {
	*Sender[S]
	*Receiver[R, PR]
}

// Close closes both the send and receive halves, returning the first
// error encountered.
func (d *DuplexEnd[S, R, PR]) Close() error {
	sErr := d.Sender.Close()
	rErr := d.Receiver.Close()
	if sErr != nil {
		return sErr
	}
	return rErr
}

// Duplex creates a symmetric pair where each end can send A (resp. B) and
// receive the other (spec §4.2 "duplex<A,B>()").
func Duplex[A Encoder, PA DecoderPtr[A], B Encoder, PB DecoderPtr[B]]() (*DuplexEnd[A, B, PB], *DuplexEnd[B, A, PA], error) {
	aTx, aRx, err := Channel[A, PA]()
	if err != nil {
		return nil, nil, err
	}
	bTx, bRx, err := Channel[B, PB]()
	if err != nil {
		_ = aTx.Close()
		_ = aRx.Close()
		return nil, nil, err
	}
	end1 := &DuplexEnd[A, B, PB]{Sender: aTx, Receiver: bRx}
	end2 := &DuplexEnd[B, A, PA]{Sender: bTx, Receiver: aRx}
	return end1, end2, nil
}
