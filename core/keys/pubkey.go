// Package keys defines the 32-byte account identifiers used throughout the
// slab: owners, the admin key, the vault authority, and matcher program/context
// keys. The chain runtime's own key derivation and transaction-ingestion
// signature checks live outside this module; this package only carries the
// wire shape and the comparison/verification primitives the decision
// functions need.
package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
)

// Pubkey is a 32-byte account identifier, matching the key size used by the
// underlying chain runtime for owners, the admin, the vault authority, and
// matcher program/context accounts.
type Pubkey [32]byte

// Zero is the burned/unset key. An admin equal to Zero means admin
// operations are permanently disabled.
var Zero = Pubkey{}

// IsZero reports whether the key is the all-zero sentinel.
func (k Pubkey) IsZero() bool {
	return k == Zero
}

// Equal reports whether two keys are byte-identical.
func (k Pubkey) Equal(other Pubkey) bool {
	return k == other
}

// Bytes returns a copy of the key's underlying bytes.
func (k Pubkey) Bytes() []byte {
	out := make([]byte, len(k))
	copy(out, k[:])
	return out
}

// String renders the key as a hex string for logs and CLI output.
func (k Pubkey) String() string {
	return hex.EncodeToString(k[:])
}

// FromBytes constructs a Pubkey from a 32-byte slice.
func FromBytes(b []byte) (Pubkey, error) {
	var k Pubkey
	if len(b) != len(k) {
		return k, errors.New("keys: pubkey must be 32 bytes")
	}
	copy(k[:], b)
	return k, nil
}

// MustFromBytes is FromBytes but panics on a malformed input; only intended
// for tests and CLI argument parsing where a bad value is a programmer error.
func MustFromBytes(b []byte) Pubkey {
	k, err := FromBytes(b)
	if err != nil {
		panic(err)
	}
	return k
}

// VerifySignature checks a detached ed25519 signature against a message using
// the key as the signer's public key. The on-chain runtime performs the real
// signature verification during transaction ingestion; this helper exists so
// the decide_* functions in internal/decision can be exercised against
// genuine signatures in tests instead of stubbed booleans.
func (k Pubkey) VerifySignature(message, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(k[:]), message, sig)
}
