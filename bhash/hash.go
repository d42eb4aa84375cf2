// Package bhash defines the 32-byte content hash used throughout the
// executor core to address transactions, blocks, state keys, and
// accumulator/state-tree roots.
package bhash

import (
	"bytes"
	"database/sql/driver"
	"encoding/hex"
	"fmt"

	"github.com/chain/txvm/crypto/sha3"
)

// Hash is a 32-byte content hash.
type Hash [32]byte

// Zero is the all-zero hash, used for the root block before any commit
// has happened.
var Zero Hash

// Sum256 hashes b and returns the result.
func Sum256(b []byte) Hash {
	return Hash(sha3.Sum256(b))
}

// FromBytes builds a Hash from a byte slice, 0-padding or truncating if
// it isn't exactly 32 bytes.
func FromBytes(b []byte) Hash {
	var h Hash
	copy(h[:], b)
	return h
}

// Bytes returns h as a byte slice.
func (h Hash) Bytes() []byte {
	return h[:]
}

// IsZero tells whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String renders h as hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText satisfies encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	v := make([]byte, hex.EncodedLen(len(h)))
	hex.Encode(v, h[:])
	return v, nil
}

// UnmarshalText satisfies encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(v []byte) error {
	if len(v) != 64 {
		return fmt.Errorf("bad length hash string %d", len(v))
	}
	_, err := hex.Decode(h[:], v)
	return err
}

// Value satisfies driver.Valuer, for storing a Hash in a database column.
func (h Hash) Value() (driver.Value, error) {
	return h.Bytes(), nil
}

// Scan satisfies sql.Scanner.
func (h *Hash) Scan(v interface{}) error {
	b, ok := v.([]byte)
	if !ok {
		return fmt.Errorf("Hash.Scan received unsupported type %T", v)
	}
	if len(b) != 32 {
		return fmt.Errorf("Hash.Scan received a bad length value (%d bytes)", len(b))
	}
	copy(h[:], b)
	return nil
}

// Equal reports whether h and other have the same bytes.
func (h Hash) Equal(other Hash) bool {
	return bytes.Equal(h[:], other[:])
}
