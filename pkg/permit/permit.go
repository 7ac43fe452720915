// Package permit holds the domain model of an audit run: the permits read
// from the store and the per-permit verification results.
package permit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	apperrors "github.com/chainsafe/permit-auditor/pkg/app/errors"
	"github.com/chainsafe/permit-auditor/pkg/nonce"
)

// UnknownSymbol is used when the token symbol cannot be read from the token contract.
const UnknownSymbol = "UNKNOWN"

// ErrMissingRequiredField is returned for permits that cannot be verified
// because a partner, token, beneficiary or network is missing.
var ErrMissingRequiredField = errors.New("missing required field")

// Permit is a single issued permit. Nonce and Amount keep the textual form
// they have in the store; they are parsed as 256-bit integers on use.
type Permit struct {
	ID             int64
	Nonce          string
	Amount         string
	PartnerAddress string
	TokenAddress   string
	Network        uint64
	UserAddress    string
	// UserID is the optional identity reference of the beneficiary.
	UserID *int64
}

// Validate checks the fields required for verification. It returns
// ErrMissingRequiredField for absent fields and for addresses that are not hex.
func (p *Permit) Validate() error {
	if p == nil {
		return apperrors.BadRequestError(
			fmt.Errorf("%w: nil permit", ErrMissingRequiredField), ErrMissingRequiredField.Error())
	}
	var missing []string
	if !isAddress(p.PartnerAddress) {
		missing = append(missing, "partner_address")
	}
	if !isAddress(p.TokenAddress) {
		missing = append(missing, "token_address")
	}
	if !isAddress(p.UserAddress) {
		missing = append(missing, "user_address")
	}
	if p.Network == 0 {
		missing = append(missing, "network")
	}
	if len(missing) > 0 {
		return apperrors.BadRequestError(
			fmt.Errorf("%w: %s", ErrMissingRequiredField, strings.Join(missing, ", ")),
			ErrMissingRequiredField.Error())
	}
	return nil
}

// Owner is the address whose nonce bitmap is queried.
func (p *Permit) Owner() common.Address {
	return common.HexToAddress(p.PartnerAddress)
}

// Token is the permitted token contract.
func (p *Permit) Token() common.Address {
	return common.HexToAddress(p.TokenAddress)
}

// ParsedAmount returns the amount in token base units.
func (p *Permit) ParsedAmount() (*uint256.Int, error) {
	return nonce.ParseAmount(p.Amount)
}

func isAddress(s string) bool {
	return s != "" && common.IsHexAddress(s)
}

// Outcome is a successful verification of one permit.
type Outcome struct {
	Permit      *Permit
	IsClaimed   bool
	TokenSymbol string
}

// Failure pairs a permit with the error that removed it from the verified set.
type Failure struct {
	Permit *Permit
	Err    error
}

// Result partitions every permit of a run into exactly one bucket.
type Result struct {
	Verified          []Outcome
	PermanentlyFailed []Failure
	Excluded          []Failure
	// Retried is the number of permits that needed the retry pass.
	Retried int
}

// Total is the number of permits the result accounts for.
func (r *Result) Total() int {
	return len(r.Verified) + len(r.PermanentlyFailed) + len(r.Excluded)
}

// Unclaimed returns the verified permits whose nonce is still unused.
func (r *Result) Unclaimed() []Outcome {
	out := make([]Outcome, 0, len(r.Verified))
	for _, o := range r.Verified {
		if !o.IsClaimed {
			out = append(out, o)
		}
	}
	return out
}

// ClaimedCount is the number of verified permits whose nonce is used.
func (r *Result) ClaimedCount() int {
	n := 0
	for _, o := range r.Verified {
		if o.IsClaimed {
			n++
		}
	}
	return n
}
