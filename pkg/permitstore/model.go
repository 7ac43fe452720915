package permitstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/chainsafe/permit-auditor/pkg/permit"
)

// PartnerDao maps to the 'partners' table: wallets that issue permits.
type PartnerDao struct {
	bun.BaseModel `bun:"table:partners,alias:pa"`
	ID            int64  `bun:",pk,autoincrement"`
	WalletAddress string `bun:",notnull,type:varchar(42)"`
}

// TokenDao maps to the 'tokens' table.
type TokenDao struct {
	bun.BaseModel `bun:"table:tokens,alias:tk"`
	ID            int64  `bun:",pk,autoincrement"`
	Address       string `bun:",notnull,type:varchar(42)"`
	Network       int64  `bun:",notnull"`
}

// UserDao maps to the 'users' table: permit beneficiaries.
type UserDao struct {
	bun.BaseModel `bun:"table:users,alias:u"`
	ID            int64  `bun:",pk,autoincrement"`
	WalletAddress string `bun:",nullzero,type:varchar(42)"`
	// GithubID is the identity reference resolved to a display name.
	GithubID *int64 `bun:"github_id"`
}

// PermitDao maps to the 'permits' table. Nonce and amount are stored as
// decimal text because they exceed the range of numeric column types.
type PermitDao struct {
	bun.BaseModel `bun:"table:permits,alias:p"`
	ID            int64     `bun:",pk,autoincrement"`
	Nonce         string    `bun:",notnull,type:varchar(78)"`
	Amount        string    `bun:",notnull,type:varchar(78)"`
	PartnerID     *int64    `bun:"partner_id"`
	TokenID       *int64    `bun:"token_id"`
	BeneficiaryID *int64    `bun:"beneficiary_id"`
	CreatedAt     time.Time `bun:",notnull,nullzero,default:current_timestamp"`

	Partner     *PartnerDao `bun:"rel:belongs-to,join:partner_id=id"`
	Token       *TokenDao   `bun:"rel:belongs-to,join:token_id=id"`
	Beneficiary *UserDao    `bun:"rel:belongs-to,join:beneficiary_id=id"`
}

// Models lists the tables in creation order.
func Models() []any {
	return []any{
		(*PartnerDao)(nil),
		(*TokenDao)(nil),
		(*UserDao)(nil),
		(*PermitDao)(nil),
	}
}

func toPermit(dao *PermitDao) *permit.Permit {
	p := &permit.Permit{
		ID:     dao.ID,
		Nonce:  dao.Nonce,
		Amount: dao.Amount,
	}
	if dao.Partner != nil {
		p.PartnerAddress = dao.Partner.WalletAddress
	}
	if dao.Token != nil {
		p.TokenAddress = dao.Token.Address
		if dao.Token.Network > 0 {
			p.Network = uint64(dao.Token.Network)
		}
	}
	if dao.Beneficiary != nil {
		p.UserAddress = dao.Beneficiary.WalletAddress
		if dao.Beneficiary.GithubID != nil {
			id := *dao.Beneficiary.GithubID
			p.UserID = &id
		}
	}
	return p
}
