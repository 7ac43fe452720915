package contracts

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Permit2ABI is the read-only subset of the Permit2 ABI used for nonce checks.
const Permit2ABI = `[{"type":"function","name":"nonceBitmap","inputs":[{"name":"","type":"address","internalType":"address"},{"name":"","type":"uint256","internalType":"uint256"}],"outputs":[{"name":"","type":"uint256","internalType":"uint256"}],"stateMutability":"view"}]`

var permit2ABI = sync.OnceValues(func() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(Permit2ABI))
})

// Permit2Caller is a read-only binding around the Permit2 contract.
type Permit2Caller struct {
	contract *bind.BoundContract
}

// NewPermit2Caller binds the Permit2 deployment at address.
func NewPermit2Caller(address common.Address, caller bind.ContractCaller) (*Permit2Caller, error) {
	parsed, err := permit2ABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse Permit2 ABI: %w", err)
	}
	return &Permit2Caller{contract: bind.NewBoundContract(address, parsed, caller, nil, nil)}, nil
}

// NonceBitmap reads the bitmap word wordPos of owner.
//
// Solidity: function nonceBitmap(address, uint256) view returns(uint256)
func (c *Permit2Caller) NonceBitmap(opts *bind.CallOpts, owner common.Address, wordPos *big.Int) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "nonceBitmap", owner, wordPos); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}
