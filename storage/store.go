// Package storage provides the pluggable key/value backend the rest of the
// system builds its content-addressed object store on top of. It knows
// nothing about objects, trees or deltas: it is a write-once-by-convention
// map from opaque Key to opaque Value, plus enumeration for backends that
// support it.
package storage

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/nicolagi/syng/config"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrNotImplemented = errors.New("not implemented")
)

// Key identifies a value in a Store. The object store layers content
// addressing on top (a Key is the hex digest of the object it names), but
// this package has no opinion on how keys are derived.
type Key string

// RandomKey generates a random sequence of length bytes and renders it as a
// hex key (so the resulting Key is twice as many characters as length).
// Used for opaque, non-content-addressed keys, e.g. a local replica label.
func RandomKey(length uint8) (Key, error) {
	if length == 0 {
		return "", nil
	}
	b := make([]byte, length)
	n, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	if n != int(length) {
		return "", fmt.Errorf("key of length %d required, got only %d bytes", length, n)
	}
	return Key(fmt.Sprintf("%x", b)), nil
}

type Value []byte

// Store is the capability set every backend must implement.
type Store interface {
	Get(Key) (Value, error)
	Put(Key, Value) error
	Delete(Key) error
}

// Enumerable is a Store that additionally supports membership queries and
// enumeration, used by the reachability sweep to find garbage.
type Enumerable interface {
	Store
	Contains(Key) (bool, error)
	ForEach(func(Key) error) error
}

// NewStore builds the backend named by c.Storage.
func NewStore(c *config.C) (Store, error) {
	switch c.Storage {
	case "memory", "":
		return NewInMemory(), nil
	case "disk":
		return NewDiskStore(c.DiskStoreDir), nil
	case "null":
		return NullStore{}, nil
	case "s3":
		return NewS3Store(c), nil
	case "paired":
		p, err := NewPaired(NewDiskStore(c.DiskStoreDir), NewS3Store(c), c.PropagationLog)
		if err != nil {
			return nil, fmt.Errorf("paired store: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%q: %w", c.Storage, ErrNotImplemented)
	}
}
