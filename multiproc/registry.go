package multiproc

import (
	"sync"

	"github.com/sunwalker/invoker/invokererr"
)

// Boxed is a transportable value whose concrete type is not known
// statically at the decode site — the Go analogue of a boxed trait
// object crossing the wire (spec §4.1 "polymorphic values", DESIGN
// NOTES "boxed polymorphism"). TypeKey must be a process-wide-unique,
// stable string; it is written ahead of the value's own encoding so the
// receiver can look up the matching decode constructor.
type Boxed interface {
	Encoder
	TypeKey() string
}

type boxedCtor func(d *Deserializer) (Boxed, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]boxedCtor{}
)

// registerBoxed installs the decode constructor for key. It is meant to
// be called from an init() function — the Go stand-in for the source
// language's link-time constructor registration — and panics on a
// duplicate key, since that can only mean two types collided on their
// key at compile time.
func registerBoxed(key string, ctor boxedCtor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[key]; exists {
		panic("multiproc: duplicate registry key " + key)
	}
	registry[key] = ctor
}

// EncodeBoxed writes v's type key followed by its own encoding.
func EncodeBoxed(s *Serializer, v Boxed) error {
	s.PutString(v.TypeKey())
	return v.EncodeMP(s)
}

// DecodeBoxed reads a type key and dispatches to the matching registered
// constructor, failing with invokererr.Codec if the key was never
// registered by this binary (spec §7 "codec-error").
func DecodeBoxed(d *Deserializer) (Boxed, error) {
	key, err := d.GetString()
	if err != nil {
		return nil, err
	}
	registryMu.RLock()
	ctor, ok := registry[key]
	registryMu.RUnlock()
	if !ok {
		return nil, invokererr.New(invokererr.Codec, "unknown type key %q", key)
	}
	return ctor(d)
}
