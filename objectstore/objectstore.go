// Package objectstore wraps a storage.Store with the object-aware
// operations the rest of the system builds on: write-once-by-content
// insertion, lookup by identifier, and a single mutable root pointer.
package objectstore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nicolagi/syng/object"
	"github.com/nicolagi/syng/storage"
)

var (
	// ErrMissingObject is returned by Read (and anything built on it) when
	// the requested identifier is absent from the backing store.
	ErrMissingObject = errors.New("missing object")

	// ErrRootTargetMissing is returned by SetRoot when asked to point the
	// root at an identifier the store does not hold.
	ErrRootTargetMissing = errors.New("root target missing")
)

// RootKey is the storage.Key the root pointer is stored under, in the same
// backend as the objects themselves. Callers enumerating the backend
// directly (e.g. a reachability sweep) must skip it: it is metadata, not an
// object, and has no content-addressed identifier.
const RootKey storage.Key = "root"

const rootKey = RootKey

func errorf(typeMethod, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/nicolagi/syng/objectstore."+typeMethod+": "+format, a...)
}

// ObjectStore layers the capability set of §4.2 (has, read, write, root_id,
// root, set_root) on top of a storage.Store. It is the only package that
// translates between object.Object values and the opaque bytes a Store
// deals in.
//
// Per §5, read-only operations may run concurrently with each other but not
// with a write; ObjectStore enforces this with a single RWMutex rather than
// relying on the backend to serialize itself.
type ObjectStore struct {
	mu      sync.RWMutex
	backend storage.Store
}

// New wraps backend, initializing it with the canonical empty object as
// root if it has no root yet. Reopening a backend that already has a root
// (e.g. a DiskStore from a prior run) leaves that root untouched.
func New(backend storage.Store) (*ObjectStore, error) {
	s := &ObjectStore{backend: backend}
	if _, err := backend.Get(rootKey); errors.Is(err, storage.ErrNotFound) {
		empty := object.Empty()
		id, err := s.write(empty)
		if err != nil {
			return nil, errorf("New", "seed empty root: %v", err)
		}
		if err := s.backend.Put(rootKey, storage.Value(id)); err != nil {
			return nil, errorf("New", "set initial root: %v", err)
		}
	} else if err != nil {
		return nil, errorf("New", "probe existing root: %v", err)
	}
	return s, nil
}

// Has reports whether id names an object present in the store.
func (s *ObjectStore) Has(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.has(id)
}

func (s *ObjectStore) has(id string) (bool, error) {
	if e, ok := s.backend.(storage.Enumerable); ok {
		return e.Contains(storage.Key(id))
	}
	_, err := s.backend.Get(storage.Key(id))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Read returns the object named by id, or ErrMissingObject if absent.
func (s *ObjectStore) Read(id string) (object.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(id)
}

func (s *ObjectStore) read(id string) (object.Object, error) {
	v, err := s.backend.Get(storage.Key(id))
	if errors.Is(err, storage.ErrNotFound) {
		return object.Object{}, fmt.Errorf("%s: %w", id, ErrMissingObject)
	}
	if err != nil {
		return object.Object{}, errorf("read", "%s: %v", id, err)
	}
	o, err := object.Decode(v)
	if err != nil {
		return object.Object{}, errorf("read", "decode %s: %v", id, err)
	}
	return o, nil
}

// Write inserts o under identify(o) and returns that identifier. Writing an
// object already present is a no-op: the store is write-once by content, so
// re-writing identical content changes nothing.
func (s *ObjectStore) Write(o object.Object) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(o)
}

func (s *ObjectStore) write(o object.Object) (string, error) {
	id := object.Identify(o)
	ok, err := s.has(id)
	if err != nil {
		return "", errorf("write", "%v", err)
	}
	if ok {
		return id, nil
	}
	b, err := object.Encode(o)
	if err != nil {
		return "", errorf("write", "encode: %v", err)
	}
	if err := s.backend.Put(storage.Key(id), storage.Value(b)); err != nil {
		return "", errorf("write", "%v", err)
	}
	return id, nil
}

// RootID returns the current root identifier.
func (s *ObjectStore) RootID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := s.backend.Get(rootKey)
	if err != nil {
		return "", errorf("RootID", "%v", err)
	}
	return string(v), nil
}

// Root is a convenience for Read(RootID()).
func (s *ObjectStore) Root() (object.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rootID, err := s.backend.Get(rootKey)
	if err != nil {
		return object.Object{}, errorf("Root", "%v", err)
	}
	return s.read(string(rootID))
}

// SetRoot reassigns the root pointer to id, failing with
// ErrRootTargetMissing if id is not present in the store.
func (s *ObjectStore) SetRoot(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.has(id)
	if err != nil {
		return errorf("SetRoot", "%v", err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrRootTargetMissing)
	}
	if err := s.backend.Put(rootKey, storage.Value(id)); err != nil {
		return errorf("SetRoot", "%v", err)
	}
	return nil
}

// Backend exposes the underlying storage.Store, for callers that need to
// run an enumeration (the reachability sweep) or pair it behind a
// storage.Paired.
func (s *ObjectStore) Backend() storage.Store {
	return s.backend
}
