// Package wallet provides the account primitives shared by the receipt
// ledger: 20-byte HASH160 addresses, secp256k1 identities derived from a
// BIP39 mnemonic, request signatures, and an encrypted keystore.
package wallet

import (
	"encoding/hex"
	"fmt"
	"strings"

	bsvhash "github.com/bsv-blockchain/go-sdk/primitives/hash"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
)

// AddressSize is the length of an address (HASH160 of a compressed public key).
const AddressSize = 20

// Address identifies an account: owner, payee, receipt holder or caller.
type Address [AddressSize]byte

// ZeroAddress is the null address. It never owns a receipt.
var ZeroAddress Address

// IsZero reports whether a is the null address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Hex returns the lowercase hex encoding of the address hash.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// String returns the base58check P2PKH form of the address. If encoding
// fails the hex form is returned.
func (a Address) String() string {
	addr, err := script.NewAddressFromPublicKeyHash(a[:], true)
	if err != nil {
		return a.Hex()
	}
	return addr.AddressString
}

// MarshalText implements encoding.TextMarshaler using the hex form, which
// round-trips without a network prefix.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Accepts every form
// ParseAddress accepts.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AddressFromBytes copies a 20-byte public key hash into an Address.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// AddressFromPubKey computes HASH160(compressed pubkey).
func AddressFromPubKey(pub *ec.PublicKey) Address {
	var a Address
	copy(a[:], bsvhash.Hash160(pub.Compressed()))
	return a
}

// ParseAddress accepts a 40-character hex hash (optionally 0x-prefixed)
// or a base58check P2PKH address string.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ZeroAddress, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) == AddressSize*2 {
		if b, err := hex.DecodeString(raw); err == nil {
			return AddressFromBytes(b)
		}
	}

	addr, err := script.NewAddressFromString(s)
	if err != nil {
		return ZeroAddress, fmt.Errorf("%w: %q: %w", ErrInvalidAddress, s, err)
	}
	return AddressFromBytes([]byte(addr.PublicKeyHash))
}

// MustParseAddress is ParseAddress for constants and tests. It panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}
