// Package report renders the outcome of an audit run as markdown and CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/permit-auditor/pkg/config"
	"github.com/chainsafe/permit-auditor/pkg/permit"
	"github.com/chainsafe/permit-auditor/pkg/rewards"
)

// Report formats
const (
	FormatMarkdown = "markdown"
	FormatCSV      = "csv"
	FormatBoth     = "both"
)

// Report is everything rendered for one run.
type Report struct {
	RunID       string
	GeneratedAt time.Time
	Summary     rewards.Summary
	Aggregation *rewards.Aggregation
	Failed      []permit.Failure
	Excluded    []permit.Failure
}

// Writer renders reports into the configured output directory.
type Writer struct {
	cfg    *config.ReportConfig
	logger *zap.Logger
}

// NewWriter creates a report writer.
func NewWriter(cfg *config.ReportConfig, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{cfg: cfg, logger: logger}
}

// Write renders r in the configured format(s) and returns the written paths.
func (w *Writer) Write(r *Report) ([]string, error) {
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now().UTC()
	}
	if r.Aggregation == nil {
		r.Aggregation = &rewards.Aggregation{}
	}

	if err := os.MkdirAll(w.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report dir: %w", err)
	}

	var paths []string
	format := w.cfg.Format
	if format == FormatMarkdown || format == FormatBoth {
		path := filepath.Join(w.cfg.OutputDir, fmt.Sprintf("permit-audit-%s.md", r.RunID))
		if err := writeFile(path, func(f io.Writer) error { return w.RenderMarkdown(f, r) }); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	if format == FormatCSV || format == FormatBoth {
		wallets := filepath.Join(w.cfg.OutputDir, fmt.Sprintf("wallet_totals-%s.csv", r.RunID))
		if err := writeFile(wallets, func(f io.Writer) error { return w.RenderWalletCSV(f, r.Aggregation) }); err != nil {
			return paths, err
		}
		users := filepath.Join(w.cfg.OutputDir, fmt.Sprintf("user_totals-%s.csv", r.RunID))
		if err := writeFile(users, func(f io.Writer) error { return w.RenderUserCSV(f, r.Aggregation) }); err != nil {
			return paths, err
		}
		paths = append(paths, wallets, users)
	}

	w.logger.Info("report written", zap.Strings("paths", paths))
	return paths, nil
}

// RenderWalletCSV writes one row per partner wallet and token.
func (w *Writer) RenderWalletCSV(out io.Writer, agg *rewards.Aggregation) error {
	cw := csv.NewWriter(out)
	if err := cw.Write([]string{"wallet", "token", "amount", "amount_base_units"}); err != nil {
		return err
	}
	for _, wt := range agg.Wallets {
		for _, key := range wt.Keys() {
			amount := wt.ByToken[key]
			if err := cw.Write([]string{wt.Address, key, w.FormatAmount(key, amount), amount.Dec()}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// RenderUserCSV writes one row per beneficiary and token.
func (w *Writer) RenderUserCSV(out io.Writer, agg *rewards.Aggregation) error {
	cw := csv.NewWriter(out)
	if err := cw.Write([]string{"user", "user_id", "wallet", "token", "amount", "amount_base_units"}); err != nil {
		return err
	}
	for _, ut := range agg.Users {
		id := ""
		if ut.UserID != nil {
			id = strconv.FormatInt(*ut.UserID, 10)
		}
		for _, key := range ut.Keys() {
			amount := ut.ByToken[key]
			row := []string{ut.Name, id, ut.Address, key, w.FormatAmount(key, amount), amount.Dec()}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatAmount shifts a base-unit amount by the decimals configured for the
// symbol of key.
func (w *Writer) FormatAmount(key string, amount *uint256.Int) string {
	decimals := w.cfg.DecimalsFor(rewards.SymbolOf(key))
	return decimal.NewFromBigInt(amount.ToBig(), -decimals).String()
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to render %s: %w", path, err)
	}
	return f.Close()
}
