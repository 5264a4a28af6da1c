package dag

import (
	"encoding/binary"

	"github.com/prestonmccrary/merkle-log-logic/internal/logid"
)

// IntPayload is the sentinel payload carried by the genesis entry, and a
// convenience payload type for tests and simple callers who just need an
// integer-valued log. Real transport layers are expected to supply their
// own logid.Payload implementation for application data: the payload is
// an opaque value owned by the caller, not the core.
type IntPayload int64

// Bytes returns a canonical big-endian encoding.
func (p IntPayload) Bytes() []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(p))
	return buf[:]
}

// Equal reports whether other is an IntPayload with the same value.
func (p IntPayload) Equal(other logid.Payload) bool {
	o, ok := other.(IntPayload)
	return ok && o == p
}

// BytesPayload wraps an arbitrary byte slice as a payload, for callers
// whose application data is already serialized.
type BytesPayload []byte

// Bytes returns the wrapped slice unchanged.
func (p BytesPayload) Bytes() []byte {
	return []byte(p)
}

// Equal reports whether other is a BytesPayload with identical contents.
func (p BytesPayload) Equal(other logid.Payload) bool {
	o, ok := other.(BytesPayload)
	if !ok || len(o) != len(p) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}
