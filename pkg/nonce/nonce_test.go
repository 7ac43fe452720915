package nonce

import (
	"math/rand/v2"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chainsafe/permit-auditor/pkg/app/errors"
)

const maxUint256 = "115792089237316195423570985008687907853269984665640564039457584007913129639935"

func TestToBitmapPosition_Boundaries(t *testing.T) {
	tests := []struct {
		nonce string
		word  string
		bit   uint8
	}{
		{"0", "0", 0},
		{"1", "0", 1},
		{"255", "0", 255},
		{"256", "1", 0},
		{"257", "1", 1},
		{"65535", "255", 255},
		{maxUint256, "452312848583266388373324160190187140051835877600158453279131187530910662655", 255},
	}
	for _, tt := range tests {
		t.Run(tt.nonce, func(t *testing.T) {
			pos, err := PositionOf(tt.nonce)
			require.NoError(t, err)
			assert.Equal(t, tt.word, pos.Word.Dec())
			assert.Equal(t, tt.bit, pos.Bit)
			assert.Equal(t, tt.nonce, pos.Nonce().Dec())
		})
	}
}

func TestToBitmapPosition_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		n := &uint256.Int{rng.Uint64(), rng.Uint64(), rng.Uint64(), rng.Uint64()}
		pos := ToBitmapPosition(n)

		assert.Equal(t, new(uint256.Int).Rsh(n, 8), pos.Word)
		assert.Equal(t, uint8(n[0]&0xff), pos.Bit)
		assert.True(t, pos.Word.BitLen() <= 248)
		assert.Equal(t, n, pos.Nonce())
	}
}

func TestIsBitSet_SingleBit(t *testing.T) {
	word := uint256.NewInt(0b100)
	for bit := 0; bit < 256; bit++ {
		assert.Equal(t, bit == 2, IsBitSet(word, uint8(bit)), "bit %d", bit)
	}
}

func TestIsBitSet_AgreesWithBigInt(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	word := &uint256.Int{rng.Uint64(), rng.Uint64(), rng.Uint64(), rng.Uint64()}
	big := word.ToBig()
	for bit := 0; bit < 256; bit++ {
		assert.Equal(t, big.Bit(bit) == 1, IsBitSet(word, uint8(bit)), "bit %d", bit)
	}
}

func TestIsBitSet_HighBit(t *testing.T) {
	word := new(uint256.Int).Lsh(uint256.NewInt(1), 255)
	assert.True(t, IsBitSet(word, 255))
	assert.False(t, IsBitSet(word, 254))
	assert.False(t, IsBitSet(nil, 0))
}

func TestParseNonce(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "plain", raw: "42", want: "42"},
		{name: "fractional artifact", raw: "42.0", want: "42"},
		{name: "fractional digits truncated", raw: "42.75", want: "42"},
		{name: "whitespace", raw: " 7 ", want: "7"},
		{name: "max", raw: maxUint256, want: maxUint256},
		{name: "empty", raw: "", wantErr: true},
		{name: "zero with fraction", raw: "0.5", want: "0"},
		{name: "missing integer part", raw: ".5", wantErr: true},
		{name: "bare point", raw: ".", wantErr: true},
		{name: "negative", raw: "-1", wantErr: true},
		{name: "hex", raw: "0x10", wantErr: true},
		{name: "exponent", raw: "1e18", wantErr: true},
		{name: "overflow", raw: maxUint256 + "0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ParseNonce(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidNonce)
				assert.True(t, apperrors.Is(err, apperrors.CategoryDataError))
				assert.False(t, apperrors.IsRetryable(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.Dec())
		})
	}
}

func TestParseAmount(t *testing.T) {
	n, err := ParseAmount("1000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000", n.Dec())

	n, err = ParseAmount("500.000")
	require.NoError(t, err)
	assert.Equal(t, "500", n.Dec())

	_, err = ParseAmount("500.5")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParseAmount("abc")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
