// Package nonce maps Permit2 nonces onto the owner's nonce bitmap.
//
// Permit2 stores unordered nonces as a mapping owner => wordPos => uint256
// bitmap. A nonce selects word nonce>>8 and bit nonce&0xff inside it. All
// arithmetic is done on fixed-width 256-bit integers.
package nonce

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	apperrors "github.com/chainsafe/permit-auditor/pkg/app/errors"
)

var (
	// ErrInvalidNonce is returned when a nonce is not a non-negative integer below 2^256.
	ErrInvalidNonce = errors.New("invalid nonce")
	// ErrInvalidAmount is returned when a permit amount is not a non-negative integer below 2^256.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Position is the location of a nonce inside the bitmap.
type Position struct {
	// Word is the 248-bit word index (nonce >> 8).
	Word *uint256.Int
	// Bit is the bit inside the word (nonce & 0xff).
	Bit uint8
}

// Nonce reconstructs the nonce the position was derived from.
func (p Position) Nonce() *uint256.Int {
	n := new(uint256.Int).Lsh(p.Word, 8)
	return n.Or(n, uint256.NewInt(uint64(p.Bit)))
}

// ToBitmapPosition splits a nonce into its word index and bit index.
func ToBitmapPosition(n *uint256.Int) Position {
	return Position{
		Word: new(uint256.Int).Rsh(n, 8),
		Bit:  uint8(n.Uint64() & 0xff),
	}
}

// PositionOf parses raw and returns its bitmap position.
func PositionOf(raw string) (Position, error) {
	n, err := ParseNonce(raw)
	if err != nil {
		return Position{}, err
	}
	return ToBitmapPosition(n), nil
}

// IsBitSet reports whether bit of word is 1.
func IsBitSet(word *uint256.Int, bit uint8) bool {
	if word == nil {
		return false
	}
	return (word[bit/64]>>(bit%64))&1 == 1
}

// ParseNonce parses a decimal nonce. The permit source sometimes stores
// nonces with a trailing fractional part ("123.0"); it is truncated. The
// integer part is mandatory: ".5" and "." are malformed, "0.5" is 0.
func ParseNonce(raw string) (*uint256.Int, error) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	n, err := parseDecimal(s)
	if err != nil {
		return nil, apperrors.BadRequestError(fmt.Errorf("%w %q: %w", ErrInvalidNonce, raw, err), ErrInvalidNonce.Error())
	}
	return n, nil
}

// ParseAmount parses a base-unit amount. A fractional part is only accepted
// when it is all zeros.
func ParseAmount(raw string) (*uint256.Int, error) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		if strings.Trim(s[i+1:], "0") != "" {
			return nil, apperrors.BadRequestError(
				fmt.Errorf("%w %q: fractional base units", ErrInvalidAmount, raw), ErrInvalidAmount.Error())
		}
		s = s[:i]
	}
	n, err := parseDecimal(s)
	if err != nil {
		return nil, apperrors.BadRequestError(fmt.Errorf("%w %q: %w", ErrInvalidAmount, raw, err), ErrInvalidAmount.Error())
	}
	return n, nil
}

func parseDecimal(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, errors.New("empty value")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, fmt.Errorf("unexpected character %q", s[i])
		}
	}
	return uint256.FromDecimal(s)
}
