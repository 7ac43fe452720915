package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chainsafe/permit-auditor/pkg/config"
	"github.com/chainsafe/permit-auditor/pkg/permit"
	"github.com/chainsafe/permit-auditor/pkg/rewards"
)

const (
	partnerA = "0x1111111111111111111111111111111111111111"
	tokenT   = "0x3333333333333333333333333333333333333333"
	userU    = "0x4444444444444444444444444444444444444444"
)

func testAggregation(t *testing.T) *rewards.Aggregation {
	t.Helper()
	id := int64(42)
	return rewards.Aggregate([]permit.Outcome{
		{
			Permit: &permit.Permit{
				ID: 1, Nonce: "0", Amount: "1500000000000000000",
				PartnerAddress: partnerA, TokenAddress: tokenT, Network: 1, UserAddress: userU, UserID: &id,
			},
			TokenSymbol: "T",
		},
		{
			Permit: &permit.Permit{
				ID: 2, Nonce: "1", Amount: "2500000",
				PartnerAddress: partnerA, TokenAddress: tokenT, Network: 100, UserAddress: userU, UserID: &id,
			},
			TokenSymbol: "USDC",
		},
	}, map[int64]string{42: "octocat"})
}

func testReport(t *testing.T) *Report {
	return &Report{
		RunID:       "run-1",
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Summary: rewards.Summary{
			TotalProcessed: 5, ClaimedCount: 1, UnclaimedCount: 2, FailedCount: 1, ExcludedCount: 1,
		},
		Aggregation: testAggregation(t),
		Failed: []permit.Failure{
			{Permit: &permit.Permit{ID: 3, Nonce: "7", Network: 5, PartnerAddress: partnerA}, Err: errors.New("network 5 | unavailable")},
			{Permit: nil, Err: errors.New("skipped")},
		},
		Excluded: []permit.Failure{
			{Permit: &permit.Permit{ID: 4, Nonce: "1.5"}, Err: errors.New("invalid nonce")},
		},
	}
}

func newTestWriter(t *testing.T, format string) *Writer {
	return NewWriter(&config.ReportConfig{
		OutputDir:       t.TempDir(),
		Format:          format,
		DefaultDecimals: 18,
		Decimals:        map[string]int32{"USDC": 6},
	}, zaptest.NewLogger(t))
}

func TestFormatAmount(t *testing.T) {
	w := newTestWriter(t, FormatMarkdown)

	assert.Equal(t, "1.5", w.FormatAmount("T (1)", uint256.NewInt(1500000000000000000)))
	assert.Equal(t, "2.5", w.FormatAmount("USDC (100)", uint256.NewInt(2500000)))
	assert.Equal(t, "0.0000000000000005", w.FormatAmount("T (1)", uint256.NewInt(500)))
	assert.Equal(t, "0", w.FormatAmount("T (1)", uint256.NewInt(0)))

	maxAmount := new(uint256.Int).SetAllOne()
	assert.Equal(t,
		"115792089237316195423570985008687907853269984665640564039457.584007913129639935",
		w.FormatAmount("T (1)", maxAmount))
}

func TestRenderMarkdown(t *testing.T) {
	w := newTestWriter(t, FormatMarkdown)

	var buf bytes.Buffer
	require.NoError(t, w.RenderMarkdown(&buf, testReport(t)))
	md := buf.String()

	assert.Contains(t, md, "- Run: `run-1`")
	assert.Contains(t, md, "- Generated: 2026-01-02T03:04:05Z")
	assert.Contains(t, md, "| Total processed | 5 |")
	assert.Contains(t, md, "| Unclaimed | 2 |")
	assert.Contains(t, md, "| `"+partnerA+"` | T (1) | 1.5 | 1500000000000000000 |")
	assert.Contains(t, md, "| `"+partnerA+"` | USDC (100) | 2.5 | 2500000 |")
	assert.Contains(t, md, "**total (2 permits)**")
	assert.Contains(t, md, "| octocat | `"+userU+"` | T (1) | 1.5 |")
	assert.Contains(t, md, "## Permanently failed permits")
	assert.Contains(t, md, `network 5 \| unavailable`)
	assert.NotContains(t, md, "skipped")
	assert.Contains(t, md, "## Excluded permits")
	assert.NotContains(t, md, "## Unclaimed permits left out of totals")
}

func TestRenderMarkdown_RejectedPermits(t *testing.T) {
	w := newTestWriter(t, FormatMarkdown)
	rep := testReport(t)
	rep.Summary.RejectedCount = 1
	rep.Aggregation.Rejected = []permit.Failure{
		{Permit: &permit.Permit{ID: 9, Nonce: "12", Network: 1, PartnerAddress: partnerA}, Err: rewards.ErrAggregationOverflow},
	}

	var buf bytes.Buffer
	require.NoError(t, w.RenderMarkdown(&buf, rep))
	md := buf.String()

	assert.Contains(t, md, "| Left out of totals | 1 |")
	assert.Contains(t, md, "## Unclaimed permits left out of totals")
	assert.Contains(t, md, "aggregation overflow")
}

func TestRenderMarkdown_NoUnclaimed(t *testing.T) {
	w := newTestWriter(t, FormatMarkdown)

	var buf bytes.Buffer
	require.NoError(t, w.RenderMarkdown(&buf, &Report{RunID: "x", Aggregation: &rewards.Aggregation{}}))
	assert.Equal(t, 2, strings.Count(buf.String(), "_No unclaimed permits._"))
	assert.NotContains(t, buf.String(), "## Excluded permits")
}

func TestRenderCSV(t *testing.T) {
	w := newTestWriter(t, FormatCSV)
	agg := testAggregation(t)

	var wallets bytes.Buffer
	require.NoError(t, w.RenderWalletCSV(&wallets, agg))
	rows, err := csv.NewReader(&wallets).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"wallet", "token", "amount", "amount_base_units"},
		{partnerA, "T (1)", "1.5", "1500000000000000000"},
		{partnerA, "USDC (100)", "2.5", "2500000"},
	}, rows)

	var users bytes.Buffer
	require.NoError(t, w.RenderUserCSV(&users, agg))
	rows, err = csv.NewReader(&users).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"octocat", "42", userU, "T (1)", "1.5", "1500000000000000000"}, rows[1])
}

func TestWrite_Both(t *testing.T) {
	w := newTestWriter(t, FormatBoth)

	paths, err := w.Write(testReport(t))
	require.NoError(t, err)
	require.Len(t, paths, 3)

	assert.Equal(t, "permit-audit-run-1.md", filepath.Base(paths[0]))
	assert.Equal(t, "wallet_totals-run-1.csv", filepath.Base(paths[1]))
	assert.Equal(t, "user_totals-run-1.csv", filepath.Base(paths[2]))
	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	}
}

func TestWrite_DefaultsRunID(t *testing.T) {
	w := newTestWriter(t, FormatMarkdown)

	r := &Report{}
	paths, err := w.Write(r)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.NotEmpty(t, r.RunID)
	assert.False(t, r.GeneratedAt.IsZero())
	assert.Contains(t, paths[0], r.RunID)
}
