// Package tree implements path-based edits over the object graph held in an
// objectstore.ObjectStore: resolving a path to the spine of nodes from root
// to target, and rewriting that spine leaf-to-root to produce a new root
// after an update, insertion or removal.
package tree

import (
	"errors"
	"fmt"

	"github.com/nicolagi/syng/object"
	"github.com/nicolagi/syng/objectstore"
)

var (
	// ErrPathOutOfBounds is returned when a path addresses a child index
	// that does not exist at some level of the walk.
	ErrPathOutOfBounds = errors.New("path out of bounds")

	// ErrMissingObject is re-exported from objectstore: a path can only be
	// out of bounds or point at a missing object, never anything else.
	ErrMissingObject = objectstore.ErrMissingObject

	// ErrIndexOutOfRange is returned by InsertChild when the requested
	// AtIndex position is beyond the end of the parent's children.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrCannotRemoveRoot is returned by RemoveAt when given the empty
	// path: the root itself cannot be removed, only its descendants.
	ErrCannotRemoveRoot = errors.New("cannot remove root")
)

func errorf(typeMethod, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/nicolagi/syng/tree."+typeMethod+": "+format, a...)
}

// Path is an ordered sequence of child indices, interpreted from the root.
// The empty path addresses the root itself.
type Path []int

// Step is one level of a resolved spine: the identifier of a node and the
// node itself.
type Step struct {
	ID     string
	Object object.Object
}

// Tree resolves paths and rewrites spines against an underlying
// objectstore.ObjectStore. It holds no state of its own beyond the store:
// every operation reads the current root fresh, so a Tree is safe to reuse
// across edits that advance the root out from under it.
type Tree struct {
	store *objectstore.ObjectStore
}

// New returns a Tree operating over store.
func New(store *objectstore.ObjectStore) *Tree {
	return &Tree{store: store}
}

// ResolveSpine walks the current root down path, returning the ordered list
// of (identifier, object) pairs from the root through the addressed node,
// inclusive. Fails with ErrPathOutOfBounds if any index does not exist at
// its level, ErrMissingObject if a referenced child is absent from the
// store.
func (t *Tree) ResolveSpine(path Path) ([]Step, error) {
	rootID, err := t.store.RootID()
	if err != nil {
		return nil, errorf("ResolveSpine", "%v", err)
	}
	return t.resolveSpineFrom(rootID, path)
}

func (t *Tree) resolveSpineFrom(rootID string, path Path) ([]Step, error) {
	rootObj, err := t.store.Read(rootID)
	if err != nil {
		return nil, errorf("ResolveSpine", "%w", err)
	}
	spine := make([]Step, 0, len(path)+1)
	spine = append(spine, Step{ID: rootID, Object: rootObj})
	for level, index := range path {
		cur := spine[len(spine)-1]
		if index < 0 || index >= len(cur.Object.Children) {
			return nil, fmt.Errorf("level %d, index %d: %w", level, index, ErrPathOutOfBounds)
		}
		childID := cur.Object.Children[index]
		childObj, err := t.store.Read(childID)
		if err != nil {
			return nil, errorf("ResolveSpine", "%w", err)
		}
		spine = append(spine, Step{ID: childID, Object: childObj})
	}
	return spine, nil
}

// rebuildSpine takes a resolved spine and a replacement object for its
// tail, rewrites every ancestor bottom-up (so each ancestor's children
// slice names the new identifier of the level below it), writes every
// rewritten node, and advances the root pointer to the final identifier.
// It returns the identifier the tail was written under (distinct from the
// new root identifier when the path is non-empty).
func (t *Tree) rebuildSpine(spine []Step, path Path, tail object.Object) (tailID string, err error) {
	tailID, err = t.store.Write(tail)
	if err != nil {
		return "", err
	}
	childID := tailID
	for i := len(spine) - 2; i >= 0; i-- {
		parent := spine[i].Object
		children := make([]string, len(parent.Children))
		copy(children, parent.Children)
		children[path[i]] = childID
		rewritten := object.New(parent.Fields, children)
		newID, err := t.store.Write(rewritten)
		if err != nil {
			return "", err
		}
		childID = newID
	}
	if err := t.store.SetRoot(childID); err != nil {
		return "", err
	}
	return tailID, nil
}

// UpdateAt replaces the node at path with newObject and returns the new
// root identifier. The empty path replaces the root itself.
func (t *Tree) UpdateAt(path Path, newObject object.Object) (newRootID string, err error) {
	spine, err := t.ResolveSpine(path)
	if err != nil {
		return "", errorf("UpdateAt", "%w", err)
	}
	tailID, err := t.rebuildSpine(spine, path, newObject)
	if err != nil {
		return "", errorf("UpdateAt", "%v", err)
	}
	if len(path) == 0 {
		return tailID, nil
	}
	return t.store.RootID()
}

// Position selects where InsertChild places a new child: at the end of the
// parent's children, or at a specific index, shifting later children
// rightward.
type Position struct {
	atIndex bool
	index   int
}

// AtEnd appends the new child after all existing children.
func AtEnd() Position { return Position{} }

// AtIndex inserts the new child at index, shifting children at and after
// index rightward. index == len(children) is equivalent to AtEnd.
func AtIndex(index int) Position { return Position{atIndex: true, index: index} }

// InsertChild writes newChild, inserts its identifier into the children of
// the node at parentPath per position, and rebuilds the spine. It returns
// the new child's identifier and the new root identifier.
func (t *Tree) InsertChild(parentPath Path, newChild object.Object, position Position) (childID, newRootID string, err error) {
	spine, err := t.ResolveSpine(parentPath)
	if err != nil {
		return "", "", errorf("InsertChild", "%w", err)
	}
	parent := spine[len(spine)-1].Object

	childID, err = t.store.Write(newChild)
	if err != nil {
		return "", "", errorf("InsertChild", "%v", err)
	}

	index := len(parent.Children)
	if position.atIndex {
		index = position.index
		if index < 0 || index > len(parent.Children) {
			return "", "", fmt.Errorf("InsertChild: %d: %w", index, ErrIndexOutOfRange)
		}
	}
	children := make([]string, 0, len(parent.Children)+1)
	children = append(children, parent.Children[:index]...)
	children = append(children, childID)
	children = append(children, parent.Children[index:]...)
	newParent := object.New(parent.Fields, children)

	if _, err := t.rebuildSpine(spine, parentPath, newParent); err != nil {
		return "", "", errorf("InsertChild", "%v", err)
	}
	newRootID, err = t.store.RootID()
	if err != nil {
		return "", "", errorf("InsertChild", "%v", err)
	}
	return childID, newRootID, nil
}

// RemoveAt removes the node addressed by path from its parent's children
// and rebuilds the spine. path must have length at least 1: the root
// cannot be removed this way.
func (t *Tree) RemoveAt(path Path) (newRootID string, err error) {
	if len(path) == 0 {
		return "", fmt.Errorf("RemoveAt: %w", ErrCannotRemoveRoot)
	}
	spine, err := t.ResolveSpine(path)
	if err != nil {
		return "", errorf("RemoveAt", "%w", err)
	}
	parentStep := spine[len(spine)-2]
	parentPath := path[:len(path)-1]
	removeIndex := path[len(path)-1]

	children := make([]string, 0, len(parentStep.Object.Children)-1)
	children = append(children, parentStep.Object.Children[:removeIndex]...)
	children = append(children, parentStep.Object.Children[removeIndex+1:]...)
	newParent := object.New(parentStep.Object.Fields, children)

	parentSpine := spine[:len(spine)-1]
	if _, err := t.rebuildSpine(parentSpine, parentPath, newParent); err != nil {
		return "", errorf("RemoveAt", "%v", err)
	}
	return t.store.RootID()
}

// Descendants returns every identifier reachable from id, including id
// itself, by breadth-first traversal of children.
func (t *Tree) Descendants(id string) ([]string, error) {
	seen := map[string]bool{id: true}
	order := []string{id}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		obj, err := t.store.Read(cur)
		if err != nil {
			return nil, errorf("Descendants", "%v", err)
		}
		for _, childID := range obj.Children {
			if seen[childID] {
				continue
			}
			seen[childID] = true
			order = append(order, childID)
			queue = append(queue, childID)
		}
	}
	return order, nil
}
