package oracle

import (
	"testing"

	percerrors "percolator/core/errors"

	"github.com/stretchr/testify/require"
)

func TestParsePythHappyPath(t *testing.T) {
	owner := [32]byte{1}
	feed := [32]byte{2}
	u := PythUpdate{
		Owner:         owner,
		ExpectedOwner: owner,
		FeedID:        feed,
		ExpectedFeed:  feed,
		Price:         100_000_000,
		Exponent:      -8,
		PublishSlot:   10,
		CurrentSlot:   12,
		MaxStaleSlots: 5,
	}
	price, err := ParsePyth(u)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), price)
}

func TestParsePythRejectsOwnerMismatch(t *testing.T) {
	u := PythUpdate{Owner: [32]byte{1}, ExpectedOwner: [32]byte{2}, Price: 1, Exponent: 0}
	_, err := ParsePyth(u)
	require.ErrorIs(t, err, percerrors.ErrOracleFailure)
}

func TestParsePythRejectsStale(t *testing.T) {
	owner := [32]byte{1}
	feed := [32]byte{2}
	u := PythUpdate{
		Owner: owner, ExpectedOwner: owner,
		FeedID: feed, ExpectedFeed: feed,
		Price: 1, Exponent: 0,
		PublishSlot: 1, CurrentSlot: 100, MaxStaleSlots: 5,
	}
	_, err := ParsePyth(u)
	require.ErrorIs(t, err, percerrors.ErrOracleFailure)
}

func TestParsePythRejectsWideConfidence(t *testing.T) {
	owner := [32]byte{1}
	feed := [32]byte{2}
	u := PythUpdate{
		Owner: owner, ExpectedOwner: owner,
		FeedID: feed, ExpectedFeed: feed,
		Price: 1000, Exponent: 0, Confidence: 500, MaxConfidenceBps: 100,
	}
	_, err := ParsePyth(u)
	require.ErrorIs(t, err, percerrors.ErrOracleFailure)
}

func TestParseChainlinkHappyPath(t *testing.T) {
	owner := Pubkey32(3)
	feed := Pubkey32(4)
	u := ChainlinkUpdate{
		Owner: owner, ExpectedOwner: owner,
		FeedKey: feed, ExpectedFeed: feed,
		Answer: 250_000_000, Decimals: 8,
	}
	price, err := ParseChainlink(u)
	require.NoError(t, err)
	require.Equal(t, uint64(2_500_000), price)
}

func TestParseChainlinkRejectsNonPositive(t *testing.T) {
	owner := Pubkey32(3)
	u := ChainlinkUpdate{Owner: owner, ExpectedOwner: owner, Answer: 0}
	_, err := ParseChainlink(u)
	require.ErrorIs(t, err, percerrors.ErrOracleFailure)
}

func TestParseAuthorityPush(t *testing.T) {
	signer := Pubkey32(9)
	price, err := ParseAuthorityPush(AuthorityPush{Signer: signer, ExpectedSigner: signer, PriceE6: 42})
	require.NoError(t, err)
	require.Equal(t, uint64(42), price)

	_, err = ParseAuthorityPush(AuthorityPush{Signer: signer, ExpectedSigner: Pubkey32(8), PriceE6: 42})
	require.ErrorIs(t, err, percerrors.ErrUnauthorized)

	_, err = ParseAuthorityPush(AuthorityPush{Signer: signer, ExpectedSigner: signer, PriceE6: 0})
	require.ErrorIs(t, err, percerrors.ErrOracleFailure)
}

// Pubkey32 is a tiny test helper building a distinguishable keys.Pubkey.
func Pubkey32(b byte) (k [32]byte) {
	k[0] = b
	return k
}
