package audit

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/chainsafe/permit-auditor/pkg/nonce"
	"github.com/chainsafe/permit-auditor/pkg/permit"
)

// BitmapReader reads Permit2 nonce bitmap words
type BitmapReader interface {
	NonceBitmap(ctx context.Context, chainID uint64, owner common.Address, wordPos *uint256.Int) (*uint256.Int, error)
}

// SymbolResolver reads token symbols
type SymbolResolver interface {
	TokenSymbol(ctx context.Context, chainID uint64, token common.Address) (string, error)
}

// PermitVerifier verifies a single permit
type PermitVerifier interface {
	Verify(ctx context.Context, p *permit.Permit) (permit.Outcome, error)
}

// Verifier checks whether a permit nonce has been consumed on Permit2.
type Verifier struct {
	bitmaps BitmapReader
	symbols SymbolResolver
	logger  *zap.Logger
}

// NewVerifier creates a Verifier. symbols may be nil, in which case every
// outcome carries permit.UnknownSymbol.
func NewVerifier(bitmaps BitmapReader, symbols SymbolResolver, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		bitmaps: bitmaps,
		symbols: symbols,
		logger:  logger,
	}
}

// Verify reads the bitmap word holding the permit nonce and tests its bit.
// Errors of the bitmap read are returned as is; a failed symbol lookup only
// downgrades the symbol to permit.UnknownSymbol.
func (v *Verifier) Verify(ctx context.Context, p *permit.Permit) (permit.Outcome, error) {
	pos, err := nonce.PositionOf(p.Nonce)
	if err != nil {
		return permit.Outcome{}, err
	}

	word, err := v.bitmaps.NonceBitmap(ctx, p.Network, p.Owner(), pos.Word)
	if err != nil {
		return permit.Outcome{}, err
	}

	return permit.Outcome{
		Permit:      p,
		IsClaimed:   nonce.IsBitSet(word, pos.Bit),
		TokenSymbol: v.tokenSymbol(ctx, p),
	}, nil
}

func (v *Verifier) tokenSymbol(ctx context.Context, p *permit.Permit) string {
	if v.symbols == nil {
		return permit.UnknownSymbol
	}
	symbol, err := v.symbols.TokenSymbol(ctx, p.Network, p.Token())
	if err != nil {
		v.logger.Debug("Token symbol lookup failed",
			zap.String("token", p.TokenAddress),
			zap.Uint64("network", p.Network),
			zap.Error(err))
		return permit.UnknownSymbol
	}
	return symbol
}
