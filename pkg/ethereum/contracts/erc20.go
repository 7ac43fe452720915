package contracts

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ERC20MetadataABI covers the ERC-20 symbol getter.
const ERC20MetadataABI = `[{"type":"function","name":"symbol","inputs":[],"outputs":[{"name":"","type":"string","internalType":"string"}],"stateMutability":"view"}]`

var erc20ABI = sync.OnceValues(func() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(ERC20MetadataABI))
})

// ERC20Caller is a read-only binding around the ERC-20 symbol getter.
type ERC20Caller struct {
	contract *bind.BoundContract
}

// NewERC20Caller binds the token at address.
func NewERC20Caller(address common.Address, caller bind.ContractCaller) (*ERC20Caller, error) {
	parsed, err := erc20ABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC-20 ABI: %w", err)
	}
	return &ERC20Caller{contract: bind.NewBoundContract(address, parsed, caller, nil, nil)}, nil
}

// Symbol is a free data retrieval call binding the contract method 0x95d89b41.
//
// Solidity: function symbol() view returns(string)
func (c *ERC20Caller) Symbol(opts *bind.CallOpts) (string, error) {
	var out []interface{}
	if err := c.contract.Call(opts, &out, "symbol"); err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}
