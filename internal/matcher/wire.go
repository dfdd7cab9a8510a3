// Package matcher implements the 64-byte matcher response wire codec and its
// ABI validator. The matcher program itself is an
// adversarial external collaborator, out of scope; this
// package only specifies the wire contract this program enforces on its
// response.
package matcher

import (
	"encoding/binary"
	"math/big"

	"github.com/holiman/uint256"

	percerrors "percolator/core/errors"
)

// Flag bits.
const (
	FlagValid     uint16 = 1 << 0
	FlagRejected  uint16 = 1 << 1
	FlagPartialOK uint16 = 1 << 2

	knownFlagsMask = FlagValid | FlagRejected | FlagPartialOK
)

// ResponseSize is the fixed wire size of a matcher response.
const ResponseSize = 64

// Response is the decoded 64-byte matcher return:
//
//	abi_version: u16 | flags: u16 | reserved: u32 | req_id: u64 |
//	lp_account_id: u64 | oracle_price_e6: u64 | exec_price_e6: u64 |
//	exec_size: i128
type Response struct {
	AbiVersion    uint16
	Flags         uint16
	Reserved      uint32
	ReqID         uint64
	LPAccountID   uint64
	OraclePriceE6 uint64
	ExecPriceE6   uint64
	ExecSize      Int128
}

// Decode parses a fixed 64-byte little-endian buffer into a Response. The
// buffer's length is the only "shape" check this function performs; CPI
// identity/account-level shape checks live in internal/dispatcher, ahead of
// calling Decode, "check identity and shape before
// examining the response" ordering.
func Decode(buf []byte) (Response, error) {
	if len(buf) != ResponseSize {
		return Response{}, wrap(percerrors.ErrInvalidMatcherShape, "matcher: response must be 64 bytes")
	}
	var r Response
	r.AbiVersion = binary.LittleEndian.Uint16(buf[0:2])
	r.Flags = binary.LittleEndian.Uint16(buf[2:4])
	r.Reserved = binary.LittleEndian.Uint32(buf[4:8])
	r.ReqID = binary.LittleEndian.Uint64(buf[8:16])
	r.LPAccountID = binary.LittleEndian.Uint64(buf[16:24])
	r.OraclePriceE6 = binary.LittleEndian.Uint64(buf[24:32])
	r.ExecPriceE6 = binary.LittleEndian.Uint64(buf[32:40])
	r.ExecSize = int128FromLEBytes(buf[40:56])
	return r, nil
}

// Encode serializes a Response back to its 64-byte wire form. Bytes 56:64 are
// reserved padding and are always zero. Primarily used by test fixtures.
func (r Response) Encode() [ResponseSize]byte {
	var buf [ResponseSize]byte
	binary.LittleEndian.PutUint16(buf[0:2], r.AbiVersion)
	binary.LittleEndian.PutUint16(buf[2:4], r.Flags)
	binary.LittleEndian.PutUint32(buf[4:8], r.Reserved)
	binary.LittleEndian.PutUint64(buf[8:16], r.ReqID)
	binary.LittleEndian.PutUint64(buf[16:24], r.LPAccountID)
	binary.LittleEndian.PutUint64(buf[24:32], r.OraclePriceE6)
	binary.LittleEndian.PutUint64(buf[32:40], r.ExecPriceE6)
	copy(buf[40:56], r.ExecSize.LEBytes())
	return buf
}

// Int128 is a signed 128-bit integer, used only for the exec_size wire
// field. Go has no native int128; this wraps math/big.Int with fixed-width,
// two's-complement wire (de)serialization and a checked absolute value that
// correctly rejects the minimum representable value.
type Int128 struct {
	v *big.Int
}

var (
	int128Min = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	int128Max = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	int128Mod = new(big.Int).Lsh(big.NewInt(1), 128)
)

// NewInt128 builds an Int128 from a plain int64, for tests and CLI use.
func NewInt128(v int64) Int128 {
	return Int128{v: big.NewInt(v)}
}

// NewInt128FromBigInt builds an Int128 from an arbitrary big.Int, clamping is
// the caller's responsibility; values outside [-2^127, 2^127-1] will encode
// incorrectly and should not be constructed this way outside tests.
func NewInt128FromBigInt(v *big.Int) Int128 {
	return Int128{v: new(big.Int).Set(v)}
}

// Sign returns -1, 0, or 1.
func (i Int128) Sign() int {
	if i.v == nil {
		return 0
	}
	return i.v.Sign()
}

// IsZero reports whether the value is exactly zero.
func (i Int128) IsZero() bool { return i.Sign() == 0 }

// Int64 narrows the value to an int64. The caller must have already bounded
// the magnitude (e.g. via the ABI validator's |exec_size| <= |req_size|
// check against an int64 req_size) before calling this.
func (i Int128) Int64() int64 {
	if i.v == nil {
		return 0
	}
	return i.v.Int64()
}

// IsMinValue reports whether this value is the minimum
// representable Int128, i.e. the one value whose magnitude cannot be
// represented as a positive Int128 and must be rejected outright.
func (i Int128) IsMinValue() bool {
	if i.v == nil {
		return false
	}
	return i.v.Cmp(int128Min) == 0
}

// AbsCmp compares |i| to |other| using unsigned-absolute semantics, per
// Callers must check IsMinValue first; comparing a min-value
// operand here is a programmer error since its magnitude cannot be taken.
//
// The comparison is carried out in fixed-width 256-bit scratch space
// (uint256.Int) rather than math/big's arbitrary-precision arithmetic: the
// magnitudes involved are bounded at 127 bits by construction, so a 256-bit
// accumulator gives the checked-overflow guarantee the spec's "checked_mul/
// checked_div throughout" discipline asks for elsewhere, without relying on
// math/big's unbounded growth.
func (i Int128) AbsCmp(other Int128) int {
	ai, aiOverflow := uint256.FromBig(new(big.Int).Abs(i.v))
	ao, aoOverflow := uint256.FromBig(new(big.Int).Abs(other.v))
	if aiOverflow || aoOverflow {
		// Unreachable for well-formed 128-bit operands; fall back to a
		// conservative ordering rather than panicking.
		return new(big.Int).Abs(i.v).Cmp(new(big.Int).Abs(other.v))
	}
	return ai.Cmp(ao)
}

// SameSign reports whether two nonzero Int128 values share a sign.
func (i Int128) SameSign(other Int128) bool {
	return i.Sign() == other.Sign()
}

// LEBytes renders the value as 16 little-endian two's-complement bytes.
func (i Int128) LEBytes() []byte {
	v := i.v
	if v == nil {
		v = big.NewInt(0)
	}
	if v.Sign() < 0 {
		v = new(big.Int).Add(v, int128Mod)
	}
	raw := v.Bytes() // big-endian, no leading zero padding
	out := make([]byte, 16)
	for idx, b := range raw {
		// raw is big-endian; reverse into little-endian placement.
		if idx >= 16 {
			break
		}
		out[len(raw)-1-idx] = b
	}
	return out
}

func int128FromLEBytes(b []byte) Int128 {
	be := make([]byte, len(b))
	for i, v := range b {
		be[len(b)-1-i] = v
	}
	unsigned := new(big.Int).SetBytes(be)
	if unsigned.Cmp(int128Max) > 0 {
		unsigned = new(big.Int).Sub(unsigned, int128Mod)
	}
	return Int128{v: unsigned}
}

func wrap(sentinel error, msg string) error {
	return &wrappedError{sentinel: sentinel, msg: msg}
}

type wrappedError struct {
	sentinel error
	msg      string
}

func (e *wrappedError) Error() string { return e.msg }
func (e *wrappedError) Unwrap() error { return e.sentinel }
