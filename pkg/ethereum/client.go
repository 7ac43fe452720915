package ethereum

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/chainsafe/permit-auditor/internal/metrics"
	apperrors "github.com/chainsafe/permit-auditor/pkg/app/errors"
	"github.com/chainsafe/permit-auditor/pkg/config"
	"github.com/chainsafe/permit-auditor/pkg/ethereum/contracts"
)

const (
	methodNonceBitmap = "nonceBitmap"
	methodSymbol      = "symbol"
)

// Pool serves read-only contract calls on several networks. One connection
// per chain id is opened on first use and kept for the lifetime of the pool.
// Bitmap words are never cached; token symbols are.
type Pool struct {
	networks map[uint64]*network
	symbols  *xsync.MapOf[symbolKey, string]
	dial     Dialer
	logger   *zap.Logger
}

type network struct {
	cfg   config.NetworkConfig
	label string

	mu      sync.Mutex
	backend Backend
	permit2 *contracts.Permit2Caller
}

// NewPool creates a pool for the configured networks. No connection is opened yet.
func NewPool(networks []config.NetworkConfig, opts ...Option) *Pool {
	s := applyOptions(opts)

	p := &Pool{
		networks: make(map[uint64]*network, len(networks)),
		symbols:  xsync.NewMapOf[symbolKey, string](),
		dial:     s.dialer,
		logger:   s.logger,
	}
	for _, cfg := range networks {
		p.networks[cfg.ChainID] = &network{
			cfg:   cfg,
			label: strconv.FormatUint(cfg.ChainID, 10),
		}
	}
	return p
}

// Close closes every open connection
func (p *Pool) Close() {
	for _, n := range p.networks {
		n.mu.Lock()
		if n.backend != nil {
			n.backend.Close()
			n.backend = nil
			n.permit2 = nil
		}
		n.mu.Unlock()
	}
}

// NonceBitmap returns the Permit2 bitmap word wordPos of owner on chainID.
func (p *Pool) NonceBitmap(ctx context.Context, chainID uint64, owner common.Address, wordPos *uint256.Int) (*uint256.Int, error) {
	n, err := p.connect(ctx, chainID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := n.callContext(ctx)
	defer cancel()

	start := time.Now()
	word, err := n.permit2.NonceBitmap(&bind.CallOpts{Context: callCtx}, owner, wordPos.ToBig())
	observeCall(n.label, methodNonceBitmap, start, err)
	if err != nil {
		return nil, oracleError(fmt.Errorf("nonceBitmap(%s, %s) on chain %d: %w", owner.Hex(), wordPos.Dec(), chainID, err))
	}

	bitmap, overflow := uint256.FromBig(word)
	if overflow || word.Sign() < 0 {
		return nil, oracleError(fmt.Errorf("nonceBitmap returned out of range word %s", word.String()))
	}
	return bitmap, nil
}

// TokenSymbol reads the ERC-20 symbol of token on chainID. Successful
// lookups are cached for the lifetime of the pool.
func (p *Pool) TokenSymbol(ctx context.Context, chainID uint64, token common.Address) (string, error) {
	key := symbolKey{chainID: chainID, token: token}
	if symbol, ok := p.symbols.Load(key); ok {
		metrics.SymbolCacheHits.Inc()
		return symbol, nil
	}

	n, err := p.connect(ctx, chainID)
	if err != nil {
		return "", symbolError(err)
	}

	erc20, err := contracts.NewERC20Caller(token, n.backend)
	if err != nil {
		return "", symbolError(err)
	}

	callCtx, cancel := n.callContext(ctx)
	defer cancel()

	start := time.Now()
	symbol, err := erc20.Symbol(&bind.CallOpts{Context: callCtx})
	observeCall(n.label, methodSymbol, start, err)
	if err != nil {
		return "", symbolError(fmt.Errorf("symbol() of %s on chain %d: %w", token.Hex(), chainID, err))
	}

	symbol = strings.TrimSpace(strings.TrimRight(symbol, "\x00"))
	if symbol == "" {
		return "", symbolError(fmt.Errorf("empty symbol for %s on chain %d", token.Hex(), chainID))
	}

	p.symbols.Store(key, symbol)
	return symbol, nil
}

// connect returns the network of chainID, dialling it on first use.
// A failed dial is not remembered; the next call dials again.
func (p *Pool) connect(ctx context.Context, chainID uint64) (*network, error) {
	n, ok := p.networks[chainID]
	if !ok {
		return nil, apperrors.NotSupportedError(
			fmt.Errorf("%w: no endpoint configured for chain %d", ErrNetworkUnavailable, chainID),
			ErrNetworkUnavailable.Error())
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.backend != nil {
		return n, nil
	}

	backend, err := p.dial(ctx, n.cfg.RPCURL)
	if err != nil {
		metrics.NetworkDials.WithLabelValues(n.label, "error").Inc()
		return nil, oracleError(fmt.Errorf("dial chain %d: %w", chainID, err))
	}

	permit2, err := contracts.NewPermit2Caller(common.HexToAddress(n.cfg.Permit2Address), backend)
	if err != nil {
		backend.Close()
		return nil, apperrors.GeneralError(err)
	}

	metrics.NetworkDials.WithLabelValues(n.label, "ok").Inc()
	p.logger.Info("Connected to network",
		zap.Uint64("chain_id", chainID),
		zap.String("permit2", n.cfg.Permit2Address))

	n.backend = backend
	n.permit2 = permit2
	return n, nil
}

func (n *network) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if n.cfg.CallTimeout > 0 {
		return context.WithTimeout(ctx, n.cfg.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func observeCall(network, method string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.OracleCalls.WithLabelValues(network, method, status).Inc()
	metrics.OracleCallDuration.WithLabelValues(network, method).Observe(time.Since(start).Seconds())
}

func oracleError(err error) error {
	wrapped := fmt.Errorf("%w: %w", ErrOracleCallFailed, err)
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.TimeoutError(wrapped, ErrOracleCallFailed.Error())
	}
	return apperrors.DependencyError(wrapped, ErrOracleCallFailed.Error())
}

func symbolError(err error) error {
	return apperrors.DependencyError(fmt.Errorf("%w: %w", ErrSymbolLookupFailed, err), ErrSymbolLookupFailed.Error())
}
