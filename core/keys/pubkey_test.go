package keys

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPubkeyIsZero(t *testing.T) {
	require.True(t, Zero.IsZero())
	require.True(t, Pubkey{}.IsZero())

	k := MustFromBytes(make([]byte, 32))
	require.True(t, k.IsZero())

	nonZero := k
	nonZero[0] = 1
	require.False(t, nonZero.IsZero())
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	_, err := FromBytes(make([]byte, 31))
	require.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	k, err := FromBytes(pub)
	require.NoError(t, err)

	msg := []byte("trade nonce 42")
	sig := ed25519.Sign(priv, msg)
	require.True(t, k.VerifySignature(msg, sig))
	require.False(t, k.VerifySignature([]byte("tampered"), sig))
}
