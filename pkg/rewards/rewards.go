// Package rewards folds verified, unclaimed permits into per-wallet and
// per-user totals. Totals are keyed by token symbol and network so that
// tokens sharing a symbol on different chains stay apart.
package rewards

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	apperrors "github.com/chainsafe/permit-auditor/pkg/app/errors"
	"github.com/chainsafe/permit-auditor/pkg/permit"
)

// UnknownUser is the display name of beneficiaries without an identity reference.
const UnknownUser = "Unknown User"

// ErrAggregationOverflow marks a permit whose amount would push a per-token
// total past 2^256-1.
var ErrAggregationOverflow = errors.New("aggregation overflow")

// TokenKey returns the composite grouping key of a token on a network.
func TokenKey(symbol string, network uint64) string {
	return fmt.Sprintf("%s (%d)", symbol, network)
}

// SymbolOf returns the token symbol part of a key built by TokenKey.
func SymbolOf(key string) string {
	if i := strings.LastIndex(key, " ("); i >= 0 {
		return key[:i]
	}
	return key
}

// PlaceholderName is the display name used when an identity cannot be resolved.
func PlaceholderName(userID *int64) string {
	if userID == nil {
		return UnknownUser
	}
	return fmt.Sprintf("user-%d", *userID)
}

// Totals accumulates amounts per token key. Total sums base units across all
// keys and is unbounded, so it can only fail to fit in a single token sum,
// never on its own.
type Totals struct {
	ByToken     map[string]*uint256.Int
	Total       *big.Int
	PermitCount int
}

func newTotals() Totals {
	return Totals{
		ByToken: make(map[string]*uint256.Int),
		Total:   new(big.Int),
	}
}

// fits reports whether amount can be added under key without exceeding 2^256-1.
func (t *Totals) fits(key string, amount *uint256.Int) bool {
	sum, ok := t.ByToken[key]
	if !ok {
		return true
	}
	_, overflow := new(uint256.Int).AddOverflow(sum, amount)
	return !overflow
}

// add must only be called after fits returned true for the same key and amount.
func (t *Totals) add(key string, amount *uint256.Int) {
	sum, ok := t.ByToken[key]
	if !ok {
		sum = new(uint256.Int)
		t.ByToken[key] = sum
	}
	sum.Add(sum, amount)
	t.Total.Add(t.Total, amount.ToBig())
	t.PermitCount++
}

// Keys returns the token keys in lexical order.
func (t *Totals) Keys() []string {
	keys := make([]string, 0, len(t.ByToken))
	for k := range t.ByToken {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WalletTotal is the total of unclaimed permits issued by one partner wallet.
type WalletTotal struct {
	Address string
	Totals
}

// UserTotal is the total of unclaimed permits owed to one beneficiary.
type UserTotal struct {
	Address string
	UserID  *int64
	Name    string
	Totals
}

// Aggregation is the output handed to the report. Rejected lists unclaimed
// permits left out of every total, either because their amount could not be
// parsed or because adding it would overflow a per-token sum.
type Aggregation struct {
	Wallets  []*WalletTotal
	Users    []*UserTotal
	Rejected []permit.Failure
}

// Aggregate groups the unclaimed outcomes by partner wallet and by
// beneficiary. Claimed outcomes are ignored. names maps user ids to display
// names; unresolved ids get a placeholder.
//
// Outcomes are folded in permit id order, so both the totals and the choice
// of rejected permits do not depend on the order of outcomes. A rejected
// permit never aborts the aggregation.
func Aggregate(outcomes []permit.Outcome, names map[int64]string) *Aggregation {
	ordered := make([]permit.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.IsClaimed || o.Permit == nil {
			continue
		}
		ordered = append(ordered, o)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Permit.ID < ordered[j].Permit.ID })

	wallets := make(map[common.Address]*WalletTotal)
	users := make(map[common.Address]*UserTotal)
	var rejected []permit.Failure

	for _, o := range ordered {
		p := o.Permit

		amount, err := p.ParsedAmount()
		if err != nil {
			rejected = append(rejected, permit.Failure{Permit: p, Err: err})
			continue
		}
		key := TokenKey(o.TokenSymbol, p.Network)

		partner := p.Owner()
		w, ok := wallets[partner]
		if !ok {
			w = &WalletTotal{Address: partner.Hex(), Totals: newTotals()}
		}
		beneficiary := common.HexToAddress(p.UserAddress)
		u, ok := users[beneficiary]
		if !ok {
			u = &UserTotal{Address: beneficiary.Hex(), Totals: newTotals()}
		}

		// Wallet and user sums move together or not at all.
		if !w.fits(key, amount) || !u.fits(key, amount) {
			rejected = append(rejected, permit.Failure{Permit: p, Err: overflowError(key)})
			continue
		}

		wallets[partner] = w
		users[beneficiary] = u
		w.add(key, amount)
		u.UserID = lowerID(u.UserID, p.UserID)
		u.add(key, amount)
	}

	agg := &Aggregation{
		Wallets:  make([]*WalletTotal, 0, len(wallets)),
		Users:    make([]*UserTotal, 0, len(users)),
		Rejected: rejected,
	}
	for _, w := range wallets {
		agg.Wallets = append(agg.Wallets, w)
	}
	for _, u := range users {
		u.Name = PlaceholderName(u.UserID)
		if u.UserID != nil {
			if name, ok := names[*u.UserID]; ok && name != "" {
				u.Name = name
			}
		}
		agg.Users = append(agg.Users, u)
	}
	sort.Slice(agg.Wallets, func(i, j int) bool { return agg.Wallets[i].Address < agg.Wallets[j].Address })
	sort.Slice(agg.Users, func(i, j int) bool { return agg.Users[i].Address < agg.Users[j].Address })

	return agg
}

// UserIDs returns the distinct identity references of unclaimed outcomes, sorted.
func UserIDs(outcomes []permit.Outcome) []int64 {
	seen := make(map[int64]struct{})
	for _, o := range outcomes {
		if o.IsClaimed || o.Permit == nil || o.Permit.UserID == nil {
			continue
		}
		seen[*o.Permit.UserID] = struct{}{}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Summary holds the run counters shown in the report.
type Summary struct {
	TotalProcessed int `json:"total_processed"`
	FailedCount    int `json:"failed_count"`
	ExcludedCount  int `json:"excluded_count"`
	ClaimedCount   int `json:"claimed_count"`
	UnclaimedCount int `json:"unclaimed_count"`
	RetriedCount   int `json:"retried_count"`
	// RejectedCount is filled from Aggregation.Rejected once totals are built.
	RejectedCount int `json:"rejected_count"`
}

// Summarize counts the buckets of a run.
func Summarize(r *permit.Result) Summary {
	claimed := r.ClaimedCount()
	return Summary{
		TotalProcessed: r.Total(),
		FailedCount:    len(r.PermanentlyFailed),
		ExcludedCount:  len(r.Excluded),
		ClaimedCount:   claimed,
		UnclaimedCount: len(r.Verified) - claimed,
		RetriedCount:   r.Retried,
	}
}

// lowerID keeps the smallest identity reference seen for a beneficiary so the
// choice does not depend on input order.
func lowerID(cur, next *int64) *int64 {
	if next == nil {
		return cur
	}
	if cur == nil || *next < *cur {
		id := *next
		return &id
	}
	return cur
}

func overflowError(key string) error {
	return apperrors.GeneralError(fmt.Errorf("%w: %s", ErrAggregationOverflow, key))
}
