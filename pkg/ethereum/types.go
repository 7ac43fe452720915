package ethereum

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

var (
	// ErrNetworkUnavailable is returned when no endpoint is configured for a chain id.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrOracleCallFailed is returned for transport errors and reverts of a bitmap read.
	ErrOracleCallFailed = errors.New("oracle call failed")
	// ErrSymbolLookupFailed is returned when a token symbol cannot be read.
	ErrSymbolLookupFailed = errors.New("symbol lookup failed")
)

// Backend is the RPC surface used for read-only calls. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractCaller
	Close()
}

// Dialer opens a Backend for an RPC endpoint
type Dialer func(ctx context.Context, rpcURL string) (Backend, error)

// DialRPC connects to an Ethereum JSON-RPC endpoint
func DialRPC(ctx context.Context, rpcURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}
	return client, nil
}

type symbolKey struct {
	chainID uint64
	token   common.Address
}

type settings struct {
	logger *zap.Logger
	dialer Dialer
}

// Option configures the Pool.
type Option func(*settings)

// WithLogger sets a custom logger for the pool.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithDialer replaces the JSON-RPC dialer, mostly for tests.
func WithDialer(d Dialer) Option {
	return func(s *settings) { s.dialer = d }
}

func applyOptions(opts []Option) settings {
	s := settings{logger: zap.NewNop(), dialer: DialRPC}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}
