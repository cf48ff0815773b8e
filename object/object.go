// Package object defines the node shape of the content-addressed graph and
// the canonical encoding used to derive its identifiers.
package object

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// Object is a single node in the graph: an ordered-by-key set of string
// fields and an ordered sequence of child identifiers. Order among children
// is significant; order among fields is not, since the canonical encoding
// always emits them sorted by key.
type Object struct {
	Fields   map[string]string
	Children []string
}

// New builds an Object from the given fields and children, copying both so
// the caller's slices/maps can be mutated afterwards without affecting the
// returned value.
func New(fields map[string]string, children []string) Object {
	f := make(map[string]string, len(fields))
	for k, v := range fields {
		f[k] = v
	}
	c := make([]string, len(children))
	copy(c, children)
	return Object{Fields: f, Children: c}
}

// Empty is the canonical empty node: no fields, no children. It is the seed
// value a fresh object store is initialized with.
func Empty() Object {
	return New(nil, nil)
}

// wireObject is the CBOR-level shape for an Object: a 2-key map, per §6.1 of
// the specification this package implements. Kept distinct from Object so
// that nil vs. empty maps/slices in Object don't leak into the wire form:
// the canonical encoding of "no fields" and "no children" must be the same
// regardless of whether the caller built the Object with a nil or empty
// map/slice.
type wireObject struct {
	Fields   map[string]string `cbor:"fields"`
	Children []string          `cbor:"children"`
}

var encMode = func() cbor.EncMode {
	// CanonicalEncOptions sorts map keys length-first: a shorter key sorts
	// before a longer one, and keys of equal length sort bytewise. This is
	// not plain lexicographic order of the key strings ("b" is emitted
	// before "aa", and "fields" before "children"). The order is fixed,
	// which is what makes Encode reproducible: two processes building
	// logically identical Objects emit identical bytes.
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		// CanonicalEncOptions() is a fixed, valid configuration; EncMode()
		// can only fail on invalid options.
		panic(err)
	}
	return mode
}()

// Encode renders the object as its canonical byte encoding (§6.1): a CBOR
// map with keys "fields" and "children", map keys at both levels in the
// length-first order described at encMode, children in list order. Encoding an Object built from valid Go
// strings never fails; the error return exists to match the shape callers
// expect from a codec and is always nil.
func Encode(o Object) ([]byte, error) {
	w := wireObject{
		Fields:   o.Fields,
		Children: o.Children,
	}
	if w.Fields == nil {
		w.Fields = map[string]string{}
	}
	if w.Children == nil {
		w.Children = []string{}
	}
	return encMode.Marshal(w)
}

// Decode is the inverse of Encode, used when reading an Object back from a
// store or a delta bundle.
func Decode(data []byte) (Object, error) {
	var w wireObject
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Object{}, err
	}
	return Object{Fields: w.Fields, Children: w.Children}, nil
}

// Identify returns the object's identifier: the lowercase hex SHA-256 digest
// of its canonical encoding.
func Identify(o Object) string {
	b, err := Encode(o)
	if err != nil {
		// Encode is documented as infallible for valid Object values.
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SortedFieldKeys returns the object's field keys in lexicographic order,
// useful for tests and diagnostics that want to print fields
// deterministically. This is the order Encode emits only when all keys have
// the same length: Encode puts shorter keys first.
func SortedFieldKeys(o Object) []string {
	keys := make([]string, 0, len(o.Fields))
	for k := range o.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
