package multiproc

import (
	"context"
	"errors"
	"sync"

	"github.com/sunwalker/invoker/fdutil"
	"github.com/sunwalker/invoker/invokererr"
	"github.com/sunwalker/invoker/multiproc/internal/reactor"
	"golang.org/x/sys/unix"
)

var sharedReactor struct {
	once sync.Once
	r    *reactor.Reactor
	err  error
}

func getReactor() (*reactor.Reactor, error) {
	sharedReactor.once.Do(func() {
		sharedReactor.r, sharedReactor.err = reactor.New()
	})
	return sharedReactor.r, sharedReactor.err
}

func isAgain(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// AsyncSender is the cooperative-flavor counterpart of Sender: its Send
// suspends the calling goroutine on the shared reactor instead of
// blocking the OS thread (spec §4.2 "cooperative channel flavor").
type AsyncSender[T Encoder] struct {
	fd int
	re *reactor.Reactor
}

// ToAsyncSender converts a blocking Sender into its cooperative form,
// switching the underlying descriptor to non-blocking mode.
func ToAsyncSender[T Encoder](s *Sender[T]) (*AsyncSender[T], error) {
	re, err := getReactor()
	if err != nil {
		return nil, invokererr.Wrap(invokererr.InvokerFailure, err, "start reactor")
	}
	if err := fdutil.SetNonblock(s.fd, true); err != nil {
		return nil, invokererr.Wrap(invokererr.Channel, err, "enable non-blocking mode")
	}
	return &AsyncSender[T]{fd: s.fd, re: re}, nil
}

// ToBlocking converts the cooperative sender back to its blocking form.
func (a *AsyncSender[T]) ToBlocking() (*Sender[T], error) {
	if err := fdutil.SetNonblock(a.fd, false); err != nil {
		return nil, invokererr.Wrap(invokererr.Channel, err, "disable non-blocking mode")
	}
	return &Sender[T]{fd: a.fd}, nil
}

func (a *AsyncSender[T]) Close() error { return unix.Close(a.fd) }

// Send serializes v and writes it, suspending on the reactor whenever
// the socket's send buffer is full rather than blocking the OS thread.
func (a *AsyncSender[T]) Send(ctx context.Context, v T) error {
	ser := NewSerializer()
	defer ser.Release()
	if err := v.EncodeMP(ser); err != nil {
		return invokererr.Wrap(invokererr.Codec, err, "encode value")
	}
	return a.sendMessage(ctx, ser.Bytes(), ser.Fds())
}

func (a *AsyncSender[T]) sendMessage(ctx context.Context, payload []byte, fds []int) error {
	bufPos, fdsPos := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(len(payload), bufPos+MaxPacketSize-1)
		fdEnd := min(len(fds), fdsPos+MaxFdsPerPacket)
		last := end == len(payload) && fdEnd == len(fds)

		err := writePacket(a.fd, payload[bufPos:end], fds[fdsPos:fdEnd], last)
		if err != nil {
			if isAgain(err) {
				if werr := a.re.WaitWritable(a.fd); werr != nil {
					return invokererr.Wrap(invokererr.Channel, werr, "wait writable")
				}
				continue
			}
			return err
		}
		bufPos, fdsPos = end, fdEnd
		if last {
			return nil
		}
	}
}

// AsyncReceiver is the cooperative-flavor counterpart of Receiver.
type AsyncReceiver[T any, PT DecoderPtr[T]] struct {
	fd int
	re *reactor.Reactor
}

// ToAsyncReceiver converts a blocking Receiver into its cooperative form.
func ToAsyncReceiver[T any, PT DecoderPtr[T]](r *Receiver[T, PT]) (*AsyncReceiver[T, PT], error) {
	re, err := getReactor()
	if err != nil {
		return nil, invokererr.Wrap(invokererr.InvokerFailure, err, "start reactor")
	}
	if err := fdutil.SetNonblock(r.fd, true); err != nil {
		return nil, invokererr.Wrap(invokererr.Channel, err, "enable non-blocking mode")
	}
	return &AsyncReceiver[T, PT]{fd: r.fd, re: re}, nil
}

// ToBlocking converts the cooperative receiver back to its blocking form.
func (a *AsyncReceiver[T, PT]) ToBlocking() (*Receiver[T, PT], error) {
	if err := fdutil.SetNonblock(a.fd, false); err != nil {
		return nil, invokererr.Wrap(invokererr.Channel, err, "disable non-blocking mode")
	}
	return &Receiver[T, PT]{fd: a.fd}, nil
}

func (a *AsyncReceiver[T, PT]) Close() error { return unix.Close(a.fd) }

// Recv reads the next framed message, suspending on the reactor whenever
// no data is yet available.
func (a *AsyncReceiver[T, PT]) Recv(ctx context.Context) (value T, ok bool, err error) {
	payload, fds, ok, err := a.recvMessage(ctx)
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

func (a *AsyncReceiver[T, PT]) recvMessage(ctx context.Context) (payload []byte, fds []int, ok bool, err error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, false, err
		}
		chunk, chunkFds, last, closed, rerr := readPacket(a.fd)
		if rerr != nil {
			if isAgain(rerr) {
				if werr := a.re.WaitReadable(a.fd); werr != nil {
					return nil, nil, false, invokererr.Wrap(invokererr.Channel, werr, "wait readable")
				}
				continue
			}
			return nil, nil, false, rerr
		}
		if closed {
			if len(payload) == 0 && len(fds) == 0 {
				return nil, nil, false, nil
			}
			return nil, nil, false, invokererr.New(invokererr.Channel, "unterminated-stream: connection closed mid-message")
		}
		payload = append(payload, chunk...)
		fds = append(fds, chunkFds...)
		if last {
			return payload, fds, true, nil
		}
	}
}
