//go:build ignore

// Checks whether a single Permit2 nonce of a partner wallet has been used.
//
//	go run scripts/utils/check-nonce.go -rpc https://rpc.gnosischain.com -chain 100 -owner 0x... -nonce 1234
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/permit-auditor/pkg/config"
	"github.com/chainsafe/permit-auditor/pkg/ethereum"
	"github.com/chainsafe/permit-auditor/pkg/nonce"
)

func main() {
	rpcURL := flag.String("rpc", "", "JSON-RPC endpoint")
	chainID := flag.Uint64("chain", 1, "Chain id")
	owner := flag.String("owner", "", "Partner wallet that signed the permit")
	rawNonce := flag.String("nonce", "", "Permit nonce (decimal)")
	permit2 := flag.String("permit2", "0x000000000022D473030F116dDEE9F6B43aC78BA3", "Permit2 address")
	flag.Parse()

	if *rpcURL == "" || !common.IsHexAddress(*owner) || *rawNonce == "" {
		flag.Usage()
		os.Exit(2)
	}

	pos, err := nonce.PositionOf(*rawNonce)
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		os.Exit(1)
	}

	pool := ethereum.NewPool([]config.NetworkConfig{{
		ChainID:        *chainID,
		RPCURL:         *rpcURL,
		Permit2Address: *permit2,
		CallTimeout:    15 * time.Second,
	}})
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	word, err := pool.NonceBitmap(ctx, *chainID, common.HexToAddress(*owner), pos.Word)
	if err != nil {
		fmt.Printf("✗ nonceBitmap failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("owner:  %s\n", common.HexToAddress(*owner).Hex())
	fmt.Printf("word:   %s (bit %d)\n", pos.Word.Dec(), pos.Bit)
	fmt.Printf("bitmap: %s\n", word.Hex())
	if nonce.IsBitSet(word, pos.Bit) {
		fmt.Println("✓ nonce used (claimed)")
	} else {
		fmt.Println("○ nonce unused (unclaimed)")
	}
}
