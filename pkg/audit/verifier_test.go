package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsafe/permit-auditor/pkg/ethereum"
	"github.com/chainsafe/permit-auditor/pkg/nonce"
	"github.com/chainsafe/permit-auditor/pkg/permit"
)

const (
	ownerA = "0xAAaaAAaaAAaaAAaaAAaaAAaaAAaaAAaaAAaaAAaa"
	tokenT = "0x7777777777777777777777777777777777777777"
	userU  = "0x3333333333333333333333333333333333333333"
)

func newPermit(id int64, n string, amount string) *permit.Permit {
	return &permit.Permit{
		ID:             id,
		Nonce:          n,
		Amount:         amount,
		PartnerAddress: ownerA,
		TokenAddress:   tokenT,
		Network:        1,
		UserAddress:    userU,
	}
}

// bitmapOracle serves fixed words keyed by word index for ownerA on network 1.
func bitmapOracle(words map[uint64]uint64) *MockBitmapReader {
	return &MockBitmapReader{
		NonceBitmapFunc: func(_ context.Context, chainID uint64, owner common.Address, wordPos *uint256.Int) (*uint256.Int, error) {
			if chainID != 1 || owner != common.HexToAddress(ownerA) {
				return new(uint256.Int), nil
			}
			return uint256.NewInt(words[wordPos.Uint64()]), nil
		},
	}
}

func TestVerifier_ClaimedAndUnclaimed(t *testing.T) {
	oracle := bitmapOracle(map[uint64]uint64{1: 1, 0: 0})
	v := NewVerifier(oracle, &MockSymbolResolver{}, nil)

	claimed, err := v.Verify(context.Background(), newPermit(1, "256", "1000"))
	require.NoError(t, err)
	assert.True(t, claimed.IsClaimed)
	assert.Equal(t, "TKN", claimed.TokenSymbol)

	unclaimed, err := v.Verify(context.Background(), newPermit(2, "0", "500"))
	require.NoError(t, err)
	assert.False(t, unclaimed.IsClaimed)
}

func TestVerifier_QueriesWordAndBitOfNonce(t *testing.T) {
	var gotWord *uint256.Int
	oracle := &MockBitmapReader{
		NonceBitmapFunc: func(_ context.Context, _ uint64, _ common.Address, wordPos *uint256.Int) (*uint256.Int, error) {
			gotWord = wordPos
			return new(uint256.Int).Lsh(uint256.NewInt(1), 7), nil
		},
	}
	v := NewVerifier(oracle, nil, nil)

	// 3*256 + 7
	out, err := v.Verify(context.Background(), newPermit(1, "775", "1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), gotWord.Uint64())
	assert.True(t, out.IsClaimed)
	assert.Equal(t, permit.UnknownSymbol, out.TokenSymbol)
}

func TestVerifier_SymbolFailureIsSwallowed(t *testing.T) {
	symbols := &MockSymbolResolver{
		TokenSymbolFunc: func(context.Context, uint64, common.Address) (string, error) {
			return "", ethereum.ErrSymbolLookupFailed
		},
	}
	v := NewVerifier(bitmapOracle(nil), symbols, nil)

	out, err := v.Verify(context.Background(), newPermit(1, "5", "1"))
	require.NoError(t, err)
	assert.Equal(t, permit.UnknownSymbol, out.TokenSymbol)
}

func TestVerifier_PropagatesOracleFailure(t *testing.T) {
	oracle := &MockBitmapReader{
		NonceBitmapFunc: func(context.Context, uint64, common.Address, *uint256.Int) (*uint256.Int, error) {
			return nil, transientErr(1)
		},
	}
	symbolCalled := false
	symbols := &MockSymbolResolver{
		TokenSymbolFunc: func(context.Context, uint64, common.Address) (string, error) {
			symbolCalled = true
			return "TKN", nil
		},
	}
	v := NewVerifier(oracle, symbols, nil)

	_, err := v.Verify(context.Background(), newPermit(1, "5", "1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ethereum.ErrOracleCallFailed)
	assert.False(t, symbolCalled)
}

func TestVerifier_InvalidNonce(t *testing.T) {
	called := false
	oracle := &MockBitmapReader{
		NonceBitmapFunc: func(context.Context, uint64, common.Address, *uint256.Int) (*uint256.Int, error) {
			called = true
			return nil, errors.New("unexpected call")
		},
	}
	v := NewVerifier(oracle, nil, nil)

	_, err := v.Verify(context.Background(), newPermit(1, "abc", "1"))
	assert.ErrorIs(t, err, nonce.ErrInvalidNonce)
	assert.False(t, called)
}
