package logid

import (
	"crypto/sha256"
	"encoding/binary"
)

// Payload is the opaque value an entry carries. It only needs to support
// equality and hashing — the log never interprets its contents.
type Payload interface {
	// Bytes returns a canonical encoding of the payload. Two payloads that
	// Equal each other must return identical Bytes, and vice versa.
	Bytes() []byte
	// Equal reports whether two payloads carry the same value.
	Equal(other Payload) bool
}

// Hash computes the content-addressed id of an entry from its parents and
// payload. Parents are sorted before hashing so that two replicas which
// received the same parent set in different wire order (never supposed
// to happen given the protocol's ordering guarantees, but cheap to make
// robust to) still agree on the id.
func Hash(parents []ID, payload Payload) ID {
	h := sha256.New()

	sorted := SortedCopy(parents)

	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(sorted)))
	h.Write(lenBuf[:])
	for _, p := range sorted {
		h.Write(p[:])
	}

	payloadBytes := payload.Bytes()
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(payloadBytes)))
	h.Write(lenBuf[:])
	h.Write(payloadBytes)

	var out ID
	copy(out[:], h.Sum(nil))
	return out
}
