package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/permit-auditor/pkg/ethereum/contracts"
)

// fakeBackend answers nonceBitmap and symbol calls from in-memory state,
// encoding results with the real contract ABIs.
type fakeBackend struct {
	permit2 abi.ABI
	erc20   abi.ABI

	mu          sync.Mutex
	bitmaps     map[string]*big.Int
	symbols     map[common.Address]string
	callErr     error
	calls       map[string]int
	closed      bool
	lastAddress common.Address
}

func newFakeBackend() *fakeBackend {
	p2, err := abi.JSON(strings.NewReader(contracts.Permit2ABI))
	if err != nil {
		panic(err)
	}
	erc20, err := abi.JSON(strings.NewReader(contracts.ERC20MetadataABI))
	if err != nil {
		panic(err)
	}
	return &fakeBackend{
		permit2: p2,
		erc20:   erc20,
		bitmaps: make(map[string]*big.Int),
		symbols: make(map[common.Address]string),
		calls:   make(map[string]int),
	}
}

func bitmapKey(owner common.Address, word *big.Int) string {
	return fmt.Sprintf("%s/%s", owner.Hex(), word.String())
}

func (f *fakeBackend) setBitmap(owner common.Address, word int64, value *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bitmaps[bitmapKey(owner, big.NewInt(word))] = value
}

func (f *fakeBackend) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeBackend) CodeAt(_ context.Context, _ common.Address, _ *big.Int) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (f *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(call.Data) < 4 {
		return nil, errors.New("short calldata")
	}
	if call.To != nil {
		f.lastAddress = *call.To
	}

	if method, err := f.permit2.MethodById(call.Data[:4]); err == nil {
		f.calls[method.Name]++
		if f.callErr != nil {
			return nil, f.callErr
		}
		args, err := method.Inputs.Unpack(call.Data[4:])
		if err != nil {
			return nil, err
		}
		word, ok := f.bitmaps[bitmapKey(args[0].(common.Address), args[1].(*big.Int))]
		if !ok {
			word = new(big.Int)
		}
		return method.Outputs.Pack(word)
	}

	method, err := f.erc20.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	f.calls[method.Name]++
	symbol, ok := f.symbols[*call.To]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return method.Outputs.Pack(symbol)
}

func (f *fakeBackend) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// countingDialer hands out the same backend and counts dials per URL.
type countingDialer struct {
	mu      sync.Mutex
	backend Backend
	dials   map[string]int
	err     error
}

func (d *countingDialer) dial(_ context.Context, rpcURL string) (Backend, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dials == nil {
		d.dials = make(map[string]int)
	}
	d.dials[rpcURL]++
	if d.err != nil {
		return nil, d.err
	}
	return d.backend, nil
}

func (d *countingDialer) count(rpcURL string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[rpcURL]
}
