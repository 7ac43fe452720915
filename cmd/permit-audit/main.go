package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/chainsafe/permit-auditor/pkg/app/auditor"
	"github.com/chainsafe/permit-auditor/pkg/config"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
	partners   = flag.String("partners", "", "Comma separated partner wallets to audit, overrides audit.partner_allowlist")
	outputDir  = flag.String("out", "", "Report output directory, overrides report.output_dir")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *partners != "" {
		cfg.Audit.SetPartnerAllowlist(*partners)
	}
	if *outputDir != "" {
		cfg.Report.OutputDir = *outputDir
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid command line override: %v\n", err)
		os.Exit(1)
	}

	if err := auditor.NewRunner(cfg).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Permit audit failed: %v\n", err)
		os.Exit(1)
	}
}
