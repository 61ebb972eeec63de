package multiproc

import "github.com/sunwalker/invoker/invokererr"

// Entrypoint is a Boxed value that also knows how to run itself inside a
// freshly spawned child process, producing a Boxed result. It is the Go
// rendition of a bound closure crossing into the child (spec §4.2 "spawn
// dispatches a bound entrypoint").
type Entrypoint interface {
	Boxed
	Run() (Boxed, error)
}

// EntryPoint is a named, registered function that can be bound with
// concrete arguments and sent across a Spawn call. Args is the
// transportable argument tuple; R is the transportable result. Go has no
// arity-polymorphic currying the way the source language's bind() does,
// so Bind takes the whole argument value at once rather than one
// argument at a time.
type EntryPoint[Args Encoder, PArgs DecoderPtr[Args], R Encoder, PR DecoderPtr[R]] struct {
	key  string
	rkey string
	fn   func(Args) (R, error)
}

// RegisterEntry registers fn under key and returns the handle used to
// Bind it. key must be unique process-wide and identical between the
// parent and every child binary — in this design that holds trivially,
// since the child is the same executable re-exec'd under the sentinel
// argv. Call from an init() function, mirroring the registry's own
// convention.
func RegisterEntry[Args Encoder, PArgs DecoderPtr[Args], R Encoder, PR DecoderPtr[R]](key string, fn func(Args) (R, error)) *EntryPoint[Args, PArgs, R, PR] {
	e := &EntryPoint[Args, PArgs, R, PR]{key: key, rkey: key + "$result", fn: fn}
	registerBoxed(e.key, func(d *Deserializer) (Boxed, error) {
		var args Args
		pargs := PArgs(&args)
		if err := pargs.DecodeMP(d); err != nil {
			return nil, invokererr.Wrap(invokererr.Codec, err, "decode entrypoint arguments for %q", key)
		}
		return &funcEntry[Args, PArgs, R, PR]{entry: e, args: args}, nil
	})
	registerBoxed(e.rkey, func(d *Deserializer) (Boxed, error) {
		var value R
		pr := PR(&value)
		if err := pr.DecodeMP(d); err != nil {
			return nil, invokererr.Wrap(invokererr.Codec, err, "decode entrypoint result for %q", key)
		}
		return &resultBox[R]{key: e.rkey, value: value}, nil
	})
	return e
}

// Bind produces the Entrypoint to hand to Spawn: the registered function
// together with the concrete arguments to invoke it with.
func (e *EntryPoint[Args, PArgs, R, PR]) Bind(args Args) Entrypoint {
	return &funcEntry[Args, PArgs, R, PR]{entry: e, args: args}
}

type funcEntry[Args Encoder, PArgs DecoderPtr[Args], R Encoder, PR DecoderPtr[R]] struct {
	entry *EntryPoint[Args, PArgs, R, PR]
	args  Args
}

func (f *funcEntry[Args, PArgs, R, PR]) TypeKey() string { return f.entry.key }

func (f *funcEntry[Args, PArgs, R, PR]) EncodeMP(s *Serializer) error {
	return f.args.EncodeMP(s)
}

// Run invokes the bound function and boxes its result for transport back
// to the parent under the entrypoint's result key.
func (f *funcEntry[Args, PArgs, R, PR]) Run() (Boxed, error) {
	r, err := f.entry.fn(f.args)
	if err != nil {
		return nil, err
	}
	return &resultBox[R]{key: f.entry.rkey, value: r}, nil
}

// resultBox adapts a plain Encoder result into Boxed so it can travel
// through the same EncodeBoxed/DecodeBoxed path the entrypoint arguments
// did, keyed under the entrypoint's own result key so Spawn's caller,
// which knows R concretely, can type-assert it back out.
type resultBox[R Encoder] struct {
	key   string
	value R
}

func (b *resultBox[R]) TypeKey() string             { return b.key }
func (b *resultBox[R]) EncodeMP(s *Serializer) error { return b.value.EncodeMP(s) }
