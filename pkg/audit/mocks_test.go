package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	apperrors "github.com/chainsafe/permit-auditor/pkg/app/errors"
	"github.com/chainsafe/permit-auditor/pkg/ethereum"
	"github.com/chainsafe/permit-auditor/pkg/permit"
)

// MockBitmapReader is a mock implementation of BitmapReader
type MockBitmapReader struct {
	NonceBitmapFunc func(ctx context.Context, chainID uint64, owner common.Address, wordPos *uint256.Int) (*uint256.Int, error)
}

func (m *MockBitmapReader) NonceBitmap(ctx context.Context, chainID uint64, owner common.Address, wordPos *uint256.Int) (*uint256.Int, error) {
	if m.NonceBitmapFunc != nil {
		return m.NonceBitmapFunc(ctx, chainID, owner, wordPos)
	}
	return new(uint256.Int), nil
}

// MockSymbolResolver is a mock implementation of SymbolResolver
type MockSymbolResolver struct {
	TokenSymbolFunc func(ctx context.Context, chainID uint64, token common.Address) (string, error)
}

func (m *MockSymbolResolver) TokenSymbol(ctx context.Context, chainID uint64, token common.Address) (string, error) {
	if m.TokenSymbolFunc != nil {
		return m.TokenSymbolFunc(ctx, chainID, token)
	}
	return "TKN", nil
}

// MockVerifier is a mock implementation of PermitVerifier that counts
// attempts per permit id.
type MockVerifier struct {
	VerifyFunc func(ctx context.Context, p *permit.Permit, attempt int) (permit.Outcome, error)

	mu       sync.Mutex
	attempts map[int64]int
}

func (m *MockVerifier) Verify(ctx context.Context, p *permit.Permit) (permit.Outcome, error) {
	m.mu.Lock()
	if m.attempts == nil {
		m.attempts = make(map[int64]int)
	}
	m.attempts[p.ID]++
	attempt := m.attempts[p.ID]
	m.mu.Unlock()

	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, p, attempt)
	}
	return permit.Outcome{Permit: p, TokenSymbol: "TKN"}, nil
}

func (m *MockVerifier) Attempts(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[id]
}

func transientErr(id int64) error {
	return apperrors.DependencyError(fmt.Errorf("%w: permit %d: 503", ethereum.ErrOracleCallFailed, id), ethereum.ErrOracleCallFailed.Error())
}

func networkErr(chainID uint64) error {
	return apperrors.NotSupportedError(fmt.Errorf("%w: chain %d", ethereum.ErrNetworkUnavailable, chainID), ethereum.ErrNetworkUnavailable.Error())
}
