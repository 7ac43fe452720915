//go:build ignore

// Creates the permit tables in a local database and inserts a few sample rows.
//
//	go run scripts/setup/seed-permits.go -config config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/chainsafe/permit-auditor/pkg/config"
	"github.com/chainsafe/permit-auditor/pkg/permitstore"
	"github.com/chainsafe/permit-auditor/pkg/pgutil"
	"github.com/chainsafe/permit-auditor/pkg/pgutil/migrations"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := pgutil.ConnectDB(ctx, &cfg.Database, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.CreateSchema(ctx, db, permitstore.Models()...); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create schema: %v\n", err)
		os.Exit(1)
	}

	githubID := int64(583231)
	partner := &permitstore.PartnerDao{WalletAddress: "0x1111111111111111111111111111111111111111"}
	token := &permitstore.TokenDao{Address: "0xe91D153E0b41518A2Ce8Dd3D7944Fa863463a97d", Network: 100}
	user := &permitstore.UserDao{WalletAddress: "0x4444444444444444444444444444444444444444", GithubID: &githubID}
	if err := migrations.InsertEntry(ctx, db, partner, token, user); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to insert wallets: %v\n", err)
		os.Exit(1)
	}

	for i, amount := range []string{"1000000000000000000", "2500000000000000000", "42"} {
		p := &permitstore.PermitDao{
			Nonce:         fmt.Sprint(i * 256),
			Amount:        amount,
			PartnerID:     &partner.ID,
			TokenID:       &token.ID,
			BeneficiaryID: &user.ID,
		}
		if err := migrations.InsertEntry(ctx, db, p); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to insert permit: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("✓ seeded 3 permits")
}
