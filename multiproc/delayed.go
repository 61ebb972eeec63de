package multiproc

import (
	"sync"

	"github.com/sunwalker/invoker/invokererr"
)

// Delayed is a lazily-resolved, once-only transportable value (spec §4
// supplemented feature, grounded on the delayed module of the source
// this system is built on). It is created empty, Resolved exactly once
// by whichever goroutine computes it, and Awaited any number of times by
// whichever goroutines consume it — repeat calls to Await after the first
// block only on a mutex, not on the network, and return the same cached
// value. The value travels through the Delayed's own channel; Delayed
// itself implements neither Encoder nor Decoder, so it is not sent over
// a Channel or through Spawn.
type Delayed[T Encoder, PT DecoderPtr[T]] struct {
	tx *Sender[T]
	rx *Receiver[T, PT]

	once  sync.Once
	mu    sync.Mutex
	value T
	err   error
}

// NewDelayed creates an unresolved Delayed backed by a fresh channel.
func NewDelayed[T Encoder, PT DecoderPtr[T]]() (*Delayed[T, PT], error) {
	tx, rx, err := Channel[T, PT]()
	if err != nil {
		return nil, err
	}
	return &Delayed[T, PT]{tx: tx, rx: rx}, nil
}

// Resolve supplies the value. It must be called exactly once; calling it
// twice on the same Delayed returns a Channel invokererr since the
// underlying socket only accepts one message.
func (d *Delayed[T, PT]) Resolve(v T) error {
	if d.tx == nil {
		return invokererr.New(invokererr.Channel, "delayed value already resolved")
	}
	err := d.tx.Send(v)
	closeErr := d.tx.Close()
	d.tx = nil
	if err != nil {
		return err
	}
	return closeErr
}

// Await blocks until the value is available and returns it. Safe to
// call concurrently and more than once; only the first caller actually
// reads from the channel.
func (d *Delayed[T, PT]) Await() (T, error) {
	d.once.Do(func() {
		v, ok, err := d.rx.Recv()
		d.mu.Lock()
		defer d.mu.Unlock()
		if err != nil {
			d.err = err
			return
		}
		if !ok {
			d.err = invokererr.New(invokererr.Channel, "delayed value never resolved")
			return
		}
		d.value = v
	})
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.err
}
