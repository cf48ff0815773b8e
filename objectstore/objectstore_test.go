package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolagi/syng/object"
	"github.com/nicolagi/syng/storage"
)

func newTestStore(t *testing.T) *ObjectStore {
	t.Helper()
	s, err := New(storage.NewInMemory())
	require.Nil(t, err)
	return s
}

func TestNewSeedsEmptyRoot(t *testing.T) {
	s := newTestStore(t)
	rootID, err := s.RootID()
	require.Nil(t, err)
	assert.Equal(t, object.Identify(object.Empty()), rootID)
	root, err := s.Root()
	require.Nil(t, err)
	assert.Equal(t, object.Empty(), root)
}

func TestNewDoesNotResetExistingRoot(t *testing.T) {
	backend := storage.NewInMemory()
	s1, err := New(backend)
	require.Nil(t, err)
	n := object.New(map[string]string{"k": "v"}, nil)
	id, err := s1.Write(n)
	require.Nil(t, err)
	require.Nil(t, s1.SetRoot(id))

	s2, err := New(backend)
	require.Nil(t, err)
	rootID, err := s2.RootID()
	require.Nil(t, err)
	assert.Equal(t, id, rootID)
}

func TestWriteIsIdempotentOnEqualContent(t *testing.T) {
	s := newTestStore(t)
	n := object.New(map[string]string{"a": "1"}, []string{"x"})
	id1, err := s.Write(n)
	require.Nil(t, err)
	id2, err := s.Write(n)
	require.Nil(t, err)
	assert.Equal(t, id1, id2)
}

func TestReadMissingObject(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Read("deadbeef")
	assert.ErrorIs(t, err, ErrMissingObject)
}

func TestReadWriteRoundTrip(t *testing.T) {
	s := newTestStore(t)
	n := object.New(map[string]string{"name": "Andrew"}, []string{"a", "b"})
	id, err := s.Write(n)
	require.Nil(t, err)
	got, err := s.Read(id)
	require.Nil(t, err)
	assert.Equal(t, n, got)
}

func TestHas(t *testing.T) {
	s := newTestStore(t)
	n := object.New(map[string]string{"a": "1"}, nil)
	id := object.Identify(n)
	ok, err := s.Has(id)
	require.Nil(t, err)
	assert.False(t, ok)
	_, err = s.Write(n)
	require.Nil(t, err)
	ok, err = s.Has(id)
	require.Nil(t, err)
	assert.True(t, ok)
}

func TestSetRootFailsOnMissingTarget(t *testing.T) {
	s := newTestStore(t)
	err := s.SetRoot("0000000000000000000000000000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, ErrRootTargetMissing)
}

func TestSetRootAdvancesRootAndRoot(t *testing.T) {
	s := newTestStore(t)
	n := object.New(map[string]string{"k": "v"}, nil)
	id, err := s.Write(n)
	require.Nil(t, err)
	require.Nil(t, s.SetRoot(id))
	rootID, err := s.RootID()
	require.Nil(t, err)
	assert.Equal(t, id, rootID)
	root, err := s.Root()
	require.Nil(t, err)
	assert.Equal(t, n, root)
}
