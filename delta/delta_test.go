package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolagi/syng/object"
	"github.com/nicolagi/syng/objectstore"
	"github.com/nicolagi/syng/storage"
	"github.com/nicolagi/syng/tree"
)

func newReplica(t *testing.T) (*objectstore.ObjectStore, *tree.Tree) {
	t.Helper()
	store, err := objectstore.New(storage.NewInMemory())
	require.Nil(t, err)
	return store, tree.New(store)
}

// Scenario D from the specification: replica X edits, generates a delta
// from the shared empty root, and replica Y applies it.
func TestGenerateFromAndApplyRoundTrip(t *testing.T) {
	xStore, xTree := newReplica(t)
	yStore, _ := newReplica(t)

	emptyID, err := xStore.RootID()
	require.Nil(t, err)

	n := object.New(map[string]string{"k": "v"}, nil)
	_, rX, err := xTree.InsertChild(nil, n, tree.AtEnd())
	require.Nil(t, err)

	d, err := GenerateFrom(xStore, emptyID, rX)
	require.Nil(t, err)
	assert.Equal(t, emptyID, *d.StartPoint)
	assert.Equal(t, rX, d.NewRootNode)

	newRootID, _, err := Apply(yStore, d)
	require.Nil(t, err)
	assert.Equal(t, rX, newRootID)

	yRootID, err := yStore.RootID()
	require.Nil(t, err)
	assert.Equal(t, rX, yRootID)

	xDescendants, err := xTree.Descendants(rX)
	require.Nil(t, err)
	yDescendants, err := tree.New(yStore).Descendants(rX)
	require.Nil(t, err)
	assert.ElementsMatch(t, xDescendants, yDescendants)
}

func TestGenerateFromUnknownStartPoint(t *testing.T) {
	xStore, _ := newReplica(t)
	_, err := GenerateFrom(xStore, "deadbeef", "deadbeef")
	assert.ErrorIs(t, err, ErrUnknownStartPoint)
}

func TestGenerateFullFromEmptyStartsRecipient(t *testing.T) {
	xStore, xTree := newReplica(t)
	yStore, _ := newReplica(t)

	n := object.New(map[string]string{"k": "v"}, nil)
	_, rX, err := xTree.InsertChild(nil, n, tree.AtEnd())
	require.Nil(t, err)

	d, err := GenerateFull(xStore, rX)
	require.Nil(t, err)
	assert.Nil(t, d.StartPoint)

	newRootID, _, err := Apply(yStore, d)
	require.Nil(t, err)
	assert.Equal(t, rX, newRootID)
}

func TestValidateDrift(t *testing.T) {
	_, xTree := newReplica(t)
	yStore, _ := newReplica(t)

	n := object.New(map[string]string{"k": "v"}, nil)
	_, rX, err := xTree.InsertChild(nil, n, tree.AtEnd())
	require.Nil(t, err)

	wrongStart := "0000000000000000000000000000000000000000000000000000000000000000"
	d := Delta{
		StartPoint:  &wrongStart,
		NewRootNode: rX,
		NewObjects:  map[string]object.Object{rX: n},
	}
	err = Validate(yStore, d)
	assert.ErrorIs(t, err, ErrCurrentTreeDrifted)
}

func TestValidateNewRootNotInBundle(t *testing.T) {
	xStore, xTree := newReplica(t)
	yStore, _ := newReplica(t)

	emptyID, err := xStore.RootID()
	require.Nil(t, err)

	n := object.New(map[string]string{"k": "v"}, nil)
	_, rX, err := xTree.InsertChild(nil, n, tree.AtEnd())
	require.Nil(t, err)

	d := Delta{
		StartPoint:  &emptyID,
		NewRootNode: rX,
		NewObjects:  map[string]object.Object{},
	}
	err = Validate(yStore, d)
	assert.ErrorIs(t, err, ErrNewRootNotInBundle)
}

func TestValidateMissingReferences(t *testing.T) {
	xStore, xTree := newReplica(t)
	yStore, _ := newReplica(t)

	emptyID, err := xStore.RootID()
	require.Nil(t, err)

	leaf := object.New(map[string]string{"k": "v"}, nil)
	_, rX, err := xTree.InsertChild(nil, leaf, tree.AtEnd())
	require.Nil(t, err)

	root, err := xStore.Read(rX)
	require.Nil(t, err)

	// Deliberately drop the leaf from the bundle: root references a child
	// the recipient cannot resolve.
	d := Delta{
		StartPoint:  &emptyID,
		NewRootNode: rX,
		NewObjects:  map[string]object.Object{rX: root},
	}
	err = Validate(yStore, d)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrMissingReferences)
	var mre *MissingReferencesError
	require.ErrorAs(t, err, &mre)
	assert.Equal(t, []string{object.Identify(leaf)}, mre.Refs)
}

func TestApplyLeavesRecipientUnchangedOnValidationFailure(t *testing.T) {
	yStore, _ := newReplica(t)
	before, err := yStore.RootID()
	require.Nil(t, err)

	wrongStart := "0000000000000000000000000000000000000000000000000000000000000000"
	d := Delta{
		StartPoint:  &wrongStart,
		NewRootNode: "whatever",
		NewObjects:  map[string]object.Object{"whatever": object.Empty()},
	}
	_, _, err = Apply(yStore, d)
	assert.ErrorIs(t, err, ErrCurrentTreeDrifted)

	after, err := yStore.RootID()
	require.Nil(t, err)
	assert.Equal(t, before, after)
}

func TestSweepRemovesUnreachableKeepsReachable(t *testing.T) {
	store, tr := newReplica(t)

	first := object.New(map[string]string{"k": "1"}, nil)
	_, r1, err := tr.InsertChild(nil, first, tree.AtEnd())
	require.Nil(t, err)

	second := object.New(map[string]string{"k": "2"}, nil)
	newRootID, err := tr.UpdateAt(tree.Path{0}, second)
	require.Nil(t, err)
	_ = newRootID

	currentRootID, err := store.RootID()
	require.Nil(t, err)

	err = Sweep(store, []string{currentRootID})
	require.Nil(t, err)

	ok, err := store.Has(object.Identify(first))
	require.Nil(t, err)
	assert.False(t, ok, "the superseded child should have been swept")

	ok, err = store.Has(currentRootID)
	require.Nil(t, err)
	assert.True(t, ok)
}

func TestSweepPreservesLastSyncedRoot(t *testing.T) {
	store, tr := newReplica(t)
	lastSyncedRoot, err := store.RootID()
	require.Nil(t, err)

	n := object.New(map[string]string{"k": "v"}, nil)
	_, currentRoot, err := tr.InsertChild(nil, n, tree.AtEnd())
	require.Nil(t, err)

	err = Sweep(store, []string{currentRoot, lastSyncedRoot})
	require.Nil(t, err)

	ok, err := store.Has(lastSyncedRoot)
	require.Nil(t, err)
	assert.True(t, ok)
}

func TestCompare(t *testing.T) {
	cases := []struct {
		name                                    string
		current, lastSynced, remote, wantResult string
	}{
		{"even", "A", "A", "A", "even"},
		{"local ahead", "B", "A", "A", "local-ahead"},
		{"remote ahead", "A", "A", "B", "remote-ahead"},
		{"diverged", "B", "A", "C", "diverged"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Compare(c.current, c.lastSynced, c.remote)
			assert.Equal(t, c.wantResult, got.String())
		})
	}
}
