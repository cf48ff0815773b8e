package delta

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"

	"github.com/nicolagi/syng/object"
)

// Format selects the wire encoding Encode/Decode use. The synchronization
// protocol itself (§6.2) leaves transport encoding unconstrained, so a host
// can pick whichever suits its transport: CBOR for compactness over a pipe
// or socket, JSON where a human or an unrelated tool needs to read the
// bundle.
type Format int

const (
	// CBOR is the default, compact wire format.
	CBOR Format = iota
	// JSON is a human-readable alternative, e.g. for debugging or for
	// transports that already assume a text-based payload.
	JSON
)

// wireDelta is the wire-level shape of a Delta for exchange between
// replicas (over a pipe, a file, a socket). Objects are stored as their
// already-canonical encoded bytes rather than re-encoded as a nested
// structure, so Encode/Decode never diverges from object.Encode/object.Decode.
type wireDelta struct {
	StartPoint  *string           `cbor:"start_point" json:"start_point"`
	NewRootNode string            `cbor:"new_root_node" json:"new_root_node"`
	NewObjects  map[string][]byte `cbor:"new_objects" json:"new_objects"`
}

var encMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// Encode serializes d for transmission to a peer, in the given format.
func Encode(d Delta, format Format) ([]byte, error) {
	w := wireDelta{
		StartPoint:  d.StartPoint,
		NewRootNode: d.NewRootNode,
		NewObjects:  make(map[string][]byte, len(d.NewObjects)),
	}
	for id, obj := range d.NewObjects {
		b, err := object.Encode(obj)
		if err != nil {
			return nil, errorf("Encode", "encode %s: %v", id, err)
		}
		w.NewObjects[id] = b
	}
	switch format {
	case CBOR:
		return encMode.Marshal(w)
	case JSON:
		return json.Marshal(w)
	default:
		return nil, errorf("Encode", "unknown format %d", format)
	}
}

// Decode is the inverse of Encode. format must match the one Encode was
// called with.
func Decode(data []byte, format Format) (Delta, error) {
	var w wireDelta
	var err error
	switch format {
	case CBOR:
		err = cbor.Unmarshal(data, &w)
	case JSON:
		err = json.Unmarshal(data, &w)
	default:
		return Delta{}, errorf("Decode", "unknown format %d", format)
	}
	if err != nil {
		return Delta{}, errorf("Decode", "%v", err)
	}
	d := Delta{
		StartPoint:  w.StartPoint,
		NewRootNode: w.NewRootNode,
		NewObjects:  make(map[string]object.Object, len(w.NewObjects)),
	}
	for id, b := range w.NewObjects {
		obj, err := object.Decode(b)
		if err != nil {
			return Delta{}, errorf("Decode", "decode %s: %v", id, err)
		}
		d.NewObjects[id] = obj
	}
	return d, nil
}
