// Package delta implements the synchronization protocol between two
// replicas of an object graph: generating a bundle of the objects one
// replica has that another lacks, validating a received bundle against the
// recipient's store, applying it, sweeping unreachable garbage, and
// detecting divergence between two roots.
package delta

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nicolagi/syng/object"
	"github.com/nicolagi/syng/objectstore"
	"github.com/nicolagi/syng/storage"
	"github.com/nicolagi/syng/tree"
)

// maxConcurrentReads bounds how many objects readObjects fetches from the
// store at once. A remote-backed store (S3Store, or DiskStore over a slow
// disk) benefits from overlapping these reads rather than doing them one
// at a time.
const maxConcurrentReads = 32

// readObjects fetches every id in ids from store concurrently, bounded by
// maxConcurrentReads in flight at a time.
func readObjects(store *objectstore.ObjectStore, ids []string) (map[string]object.Object, error) {
	result := make(map[string]object.Object, len(ids))
	var mu sync.Mutex
	semc := make(chan struct{}, maxConcurrentReads)
	g, _ := errgroup.WithContext(context.Background())
	for _, id := range ids {
		id := id
		g.Go(func() error {
			semc <- struct{}{}
			defer func() { <-semc }()
			obj, err := store.Read(id)
			if err != nil {
				return err
			}
			mu.Lock()
			result[id] = obj
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

var (
	// ErrUnknownStartPoint is returned by GenerateFrom when the sender no
	// longer holds the identifier the recipient is assumed to be at (e.g.
	// it has already been swept).
	ErrUnknownStartPoint = errors.New("unknown start point")

	// ErrCurrentTreeDrifted is returned by Validate when the recipient's
	// root does not match the delta's start point.
	ErrCurrentTreeDrifted = errors.New("current tree drifted from delta start point")

	// ErrNewRootNotInBundle is returned by Validate when new_root_node is
	// not among new_objects.
	ErrNewRootNotInBundle = errors.New("new root node not in bundle")

	// ErrMissingReferences is returned by Validate when new_objects
	// references children that are neither in the bundle nor already in
	// the recipient's store. Refs lists every such identifier.
	ErrMissingReferences = errors.New("delta missing referenced objects")
)

func errorf(typeMethod, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/nicolagi/syng/delta."+typeMethod+": "+format, a...)
}

// Delta is a self-contained bundle of newly introduced objects plus the
// root identifier they lead to, to be exchanged between replicas and
// applied against a known prior root.
type Delta struct {
	// StartPoint is the root the sender believes the recipient holds. A
	// nil value means "from empty": the recipient is assumed to hold
	// nothing yet.
	StartPoint *string

	// NewRootNode is the identifier the sender's root will hold after the
	// recipient applies this delta.
	NewRootNode string

	// NewObjects contains every object reachable from NewRootNode that is
	// not reachable from StartPoint (or, for a full delta, every object
	// reachable from NewRootNode at all).
	NewObjects map[string]object.Object
}

// MissingReferencesError carries the list of identifiers Validate could not
// resolve, wrapping ErrMissingReferences so callers can both match it with
// errors.Is and recover the list.
type MissingReferencesError struct {
	Refs []string
}

func (e *MissingReferencesError) Error() string {
	return fmt.Sprintf("%v: %v", ErrMissingReferences, e.Refs)
}

func (e *MissingReferencesError) Unwrap() error {
	return ErrMissingReferences
}

// GenerateFrom builds the minimal delta a replica at currentRootID would
// send to a recipient it believes holds pastRootID: every object reachable
// from currentRootID that is not reachable from pastRootID.
func GenerateFrom(store *objectstore.ObjectStore, pastRootID, currentRootID string) (Delta, error) {
	t := tree.New(store)

	ok, err := store.Has(pastRootID)
	if err != nil {
		return Delta{}, errorf("GenerateFrom", "%v", err)
	}
	if !ok {
		return Delta{}, fmt.Errorf("%s: %w", pastRootID, ErrUnknownStartPoint)
	}

	pastIDs, err := t.Descendants(pastRootID)
	if err != nil {
		return Delta{}, errorf("GenerateFrom", "%v", err)
	}
	pastSet := make(map[string]bool, len(pastIDs))
	for _, id := range pastIDs {
		pastSet[id] = true
	}

	currentIDs, err := t.Descendants(currentRootID)
	if err != nil {
		return Delta{}, errorf("GenerateFrom", "%v", err)
	}

	var newIDs []string
	for _, id := range currentIDs {
		if !pastSet[id] {
			newIDs = append(newIDs, id)
		}
	}
	newObjects, err := readObjects(store, newIDs)
	if err != nil {
		return Delta{}, errorf("GenerateFrom", "%v", err)
	}

	start := pastRootID
	return Delta{
		StartPoint:  &start,
		NewRootNode: currentRootID,
		NewObjects:  newObjects,
	}, nil
}

// GenerateFull builds a delta assuming the recipient holds nothing: every
// object reachable from currentRootID.
func GenerateFull(store *objectstore.ObjectStore, currentRootID string) (Delta, error) {
	t := tree.New(store)
	currentIDs, err := t.Descendants(currentRootID)
	if err != nil {
		return Delta{}, errorf("GenerateFull", "%v", err)
	}
	newObjects, err := readObjects(store, currentIDs)
	if err != nil {
		return Delta{}, errorf("GenerateFull", "%v", err)
	}
	return Delta{
		StartPoint:  nil,
		NewRootNode: currentRootID,
		NewObjects:  newObjects,
	}, nil
}

// Validate checks d against the recipient's store without writing
// anything: drift (the recipient's current root must equal d.StartPoint),
// root-in-bundle (NewRootNode must be a key of NewObjects), and closure
// (every child referenced by an object in NewObjects must resolve, either
// in the bundle or in the recipient's store).
func Validate(store *objectstore.ObjectStore, d Delta) error {
	currentRootID, err := store.RootID()
	if err != nil {
		return errorf("Validate", "%v", err)
	}
	if !startPointMatches(d.StartPoint, currentRootID) {
		return ErrCurrentTreeDrifted
	}

	if _, ok := d.NewObjects[d.NewRootNode]; !ok {
		return ErrNewRootNotInBundle
	}

	var unresolved []string
	for _, obj := range d.NewObjects {
		for _, childID := range obj.Children {
			if _, ok := d.NewObjects[childID]; ok {
				continue
			}
			has, err := store.Has(childID)
			if err != nil {
				return errorf("Validate", "%v", err)
			}
			if !has {
				unresolved = append(unresolved, childID)
			}
		}
	}
	if len(unresolved) > 0 {
		return &MissingReferencesError{Refs: unresolved}
	}
	return nil
}

// emptyRootID is the identifier of the canonical empty object: the root
// every fresh objectstore.ObjectStore is seeded with. A nil StartPoint
// ("from empty") is only consistent with a recipient still at that root.
var emptyRootID = object.Identify(object.Empty())

func startPointMatches(startPoint *string, currentRootID string) bool {
	if startPoint == nil {
		return currentRootID == emptyRootID
	}
	return *startPoint == currentRootID
}

// Apply validates d and, if valid, writes every object in NewObjects and
// advances the recipient's root to NewRootNode. Order of writes does not
// matter: Validate already proved closure. Returns the new root identifier
// and the object now found there.
func Apply(store *objectstore.ObjectStore, d Delta) (newRootID string, newRoot object.Object, err error) {
	if err := Validate(store, d); err != nil {
		return "", object.Object{}, err
	}
	for _, obj := range d.NewObjects {
		if _, err := store.Write(obj); err != nil {
			return "", object.Object{}, errorf("Apply", "write: %v", err)
		}
	}
	if err := store.SetRoot(d.NewRootNode); err != nil {
		return "", object.Object{}, errorf("Apply", "set root: %v", err)
	}
	return d.NewRootNode, d.NewObjects[d.NewRootNode], nil
}

// Sweep deletes every identifier in the store not reachable from any of
// keepRoots, using the backend's Enumerable capability. Typical callers
// pass the current root and the last-synced root, so a future GenerateFrom
// against the last-synced point still succeeds.
func Sweep(store *objectstore.ObjectStore, keepRoots []string) error {
	backend, ok := store.Backend().(storage.Enumerable)
	if !ok {
		return errorf("Sweep", "backend does not support enumeration")
	}
	t := tree.New(store)
	keep := make(map[string]bool)
	for _, root := range keepRoots {
		ids, err := t.Descendants(root)
		if err != nil {
			return errorf("Sweep", "%v", err)
		}
		for _, id := range ids {
			keep[id] = true
		}
	}
	var toDelete []storage.Key
	err := backend.ForEach(func(k storage.Key) error {
		if k == objectstore.RootKey || keep[string(k)] {
			return nil
		}
		toDelete = append(toDelete, k)
		return nil
	})
	if err != nil {
		return errorf("Sweep", "%v", err)
	}
	for _, k := range toDelete {
		if err := backend.Delete(k); err != nil {
			return errorf("Sweep", "delete %s: %v", k, err)
		}
	}
	return nil
}

// Divergence classifies the relationship between a recipient's current
// root, the root it last synced with a given peer, and that peer's
// reported current root.
type Divergence int

const (
	// Even means both sides agree: remote_root == current_root.
	Even Divergence = iota

	// LocalAhead means this replica has advanced since the last sync and
	// the peer has not: remote_root == last_synced_root != current_root.
	// The recipient should push a delta generated from last_synced_root.
	LocalAhead

	// RemoteAhead means the peer has advanced since the last sync and
	// this replica has not: current_root == last_synced_root != remote_root.
	// The recipient should pull a delta from last_synced_root.
	RemoteAhead

	// Diverged means both sides have advanced from the common point
	// independently. Resolution is external to this package.
	Diverged
)

func (d Divergence) String() string {
	switch d {
	case Even:
		return "even"
	case LocalAhead:
		return "local-ahead"
	case RemoteAhead:
		return "remote-ahead"
	case Diverged:
		return "diverged"
	default:
		return "unknown"
	}
}

// Compare classifies the three roots into one of the four Divergence
// states.
func Compare(currentRoot, lastSyncedRoot, remoteRoot string) Divergence {
	switch {
	case remoteRoot == currentRoot:
		return Even
	case remoteRoot == lastSyncedRoot && currentRoot != lastSyncedRoot:
		return LocalAhead
	case currentRoot == lastSyncedRoot && remoteRoot != lastSyncedRoot:
		return RemoteAhead
	default:
		return Diverged
	}
}
