package tree

import (
	"encoding/binary"
	"fmt"
)

// KeySize is the width of an encoded identifier.
const KeySize = 8

// EncodeKey encodes id as a fixed-width big-endian key.
func EncodeKey(id uint64) []byte {
	var k [KeySize]byte
	binary.BigEndian.PutUint64(k[:], id)
	return k[:]
}

// DecodeKey decodes a key produced by EncodeKey.
func DecodeKey(k []byte) (uint64, error) {
	if len(k) != KeySize {
		return 0, fmt.Errorf("%w: key length %d", ErrCorruptKey, len(k))
	}
	return binary.BigEndian.Uint64(k), nil
}
