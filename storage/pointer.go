package storage

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomPointer returns a Key that looks like a content-addressed digest
// (64 hex characters) but points at nothing. Used by tests exercising a
// Store without needing real objects.
func RandomPointer() Key {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return Key(hex.EncodeToString(b))
}
