package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chainsafe/permit-auditor/pkg/permit"
)

// RenderMarkdown writes the full report as a markdown document.
func (w *Writer) RenderMarkdown(out io.Writer, r *Report) error {
	b := bufio.NewWriter(out)

	fmt.Fprintf(b, "# Permit Audit Report\n\n")
	fmt.Fprintf(b, "- Run: `%s`\n", r.RunID)
	fmt.Fprintf(b, "- Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339))

	s := r.Summary
	fmt.Fprintf(b, "## Summary\n\n")
	fmt.Fprintf(b, "| Metric | Count |\n|---|---:|\n")
	fmt.Fprintf(b, "| Total processed | %d |\n", s.TotalProcessed)
	fmt.Fprintf(b, "| Claimed | %d |\n", s.ClaimedCount)
	fmt.Fprintf(b, "| Unclaimed | %d |\n", s.UnclaimedCount)
	fmt.Fprintf(b, "| Failed | %d |\n", s.FailedCount)
	fmt.Fprintf(b, "| Excluded | %d |\n", s.ExcludedCount)
	fmt.Fprintf(b, "| Retried | %d |\n", s.RetriedCount)
	fmt.Fprintf(b, "| Left out of totals | %d |\n\n", s.RejectedCount)

	fmt.Fprintf(b, "## Unclaimed by partner wallet\n\n")
	if len(r.Aggregation.Wallets) == 0 {
		fmt.Fprintf(b, "_No unclaimed permits._\n\n")
	} else {
		fmt.Fprintf(b, "| Wallet | Token | Amount | Base units |\n|---|---|---:|---:|\n")
		for _, wt := range r.Aggregation.Wallets {
			for _, key := range wt.Keys() {
				amount := wt.ByToken[key]
				fmt.Fprintf(b, "| `%s` | %s | %s | %s |\n", wt.Address, escape(key), w.FormatAmount(key, amount), amount.Dec())
			}
			fmt.Fprintf(b, "| `%s` | **total (%d permits)** | | %s |\n", wt.Address, wt.PermitCount, wt.Total.String())
		}
		fmt.Fprintln(b)
	}

	fmt.Fprintf(b, "## Unclaimed by user\n\n")
	if len(r.Aggregation.Users) == 0 {
		fmt.Fprintf(b, "_No unclaimed permits._\n\n")
	} else {
		fmt.Fprintf(b, "| User | Wallet | Token | Amount | Base units |\n|---|---|---|---:|---:|\n")
		for _, ut := range r.Aggregation.Users {
			for _, key := range ut.Keys() {
				amount := ut.ByToken[key]
				fmt.Fprintf(b, "| %s | `%s` | %s | %s | %s |\n",
					escape(ut.Name), ut.Address, escape(key), w.FormatAmount(key, amount), amount.Dec())
			}
		}
		fmt.Fprintln(b)
	}

	writeFailures(b, "Permanently failed permits", r.Failed)
	writeFailures(b, "Excluded permits", r.Excluded)
	writeFailures(b, "Unclaimed permits left out of totals", r.Aggregation.Rejected)

	return b.Flush()
}

func writeFailures(b *bufio.Writer, title string, failures []permit.Failure) {
	if len(failures) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	fmt.Fprintf(b, "| Permit | Partner | Network | Nonce | Error |\n|---:|---|---:|---|---|\n")
	for _, f := range failures {
		if f.Permit == nil {
			continue
		}
		p := f.Permit
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		fmt.Fprintf(b, "| %d | `%s` | %d | %s | %s |\n", p.ID, p.PartnerAddress, p.Network, escape(p.Nonce), escape(msg))
	}
	fmt.Fprintln(b)
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", " ")

func escape(s string) string {
	return cellEscaper.Replace(s)
}
