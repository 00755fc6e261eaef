package lending

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address identifies a participant, collaborator reference or alias within the
// ledger. Addresses are opaque 20-byte identifiers supplied by the embedding
// application and are never interpreted beyond equality checks.
type Address [20]byte

// IsZero reports whether the address is the all-zero placeholder. The zero
// address is rejected everywhere an identity is required.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Bytes returns a copy of the address as a byte slice.
func (a Address) Bytes() []byte {
	buf := make([]byte, len(a))
	copy(buf, a[:])
	return buf
}

// Hex renders the address as a 0x-prefixed lowercase hex string.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// String implements fmt.Stringer.
func (a Address) String() string {
	return a.Hex()
}

// AddressFromHex parses a hex-encoded address, accepting an optional 0x
// prefix. The decoded payload must be exactly 20 bytes.
func AddressFromHex(value string) (Address, error) {
	trimmed := strings.TrimSpace(value)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("lending: invalid address %q: %w", value, err)
	}
	if len(raw) != 20 {
		return Address{}, fmt.Errorf("lending: invalid address length: got %d want 20", len(raw))
	}
	var addr Address
	copy(addr[:], raw)
	return addr, nil
}

// BytesToAddress copies the supplied bytes into an Address. Inputs longer than
// 20 bytes keep their trailing bytes, mirroring common truncation semantics
// for account identifiers.
func BytesToAddress(raw []byte) Address {
	var addr Address
	if len(raw) > len(addr) {
		raw = raw[len(raw)-len(addr):]
	}
	copy(addr[len(addr)-len(raw):], raw)
	return addr
}
