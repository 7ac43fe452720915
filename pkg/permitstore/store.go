// Package permitstore reads issued permits, joined with their partner, token
// and beneficiary wallets, from Postgres.
package permitstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/chainsafe/permit-auditor/internal/metrics"
	apperrors "github.com/chainsafe/permit-auditor/pkg/app/errors"
	"github.com/chainsafe/permit-auditor/pkg/permit"
)

const defaultPageSize = 1000

// Filter narrows the permits returned by FetchPermits.
type Filter struct {
	// PartnerAllowlist keeps only permits of these partner wallets, compared
	// case-insensitively. Empty means all partners.
	PartnerAllowlist []string
}

// PageFunc is called after each page with the number of permits read so far.
type PageFunc func(fetched int)

// Store is the permit data source of an audit run.
type Store interface {
	FetchPermits(ctx context.Context, filter Filter, onPage PageFunc) ([]*permit.Permit, error)
}

type pgStore struct {
	db       *bun.DB
	pageSize int
	logger   *zap.Logger
}

// NewStore creates a new postgres implementation of the permit store
func NewStore(db *bun.DB, pageSize int, logger *zap.Logger) *pgStore {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &pgStore{db: db, pageSize: pageSize, logger: logger}
}

// FetchPermits reads all permits matching filter in pages of the configured
// size, ordered by id. Rows with missing joins are returned with empty fields
// so the caller can exclude them.
func (s *pgStore) FetchPermits(ctx context.Context, filter Filter, onPage PageFunc) ([]*permit.Permit, error) {
	allowlist := normalizeAllowlist(filter.PartnerAllowlist)

	var (
		out    []*permit.Permit
		lastID int64
		pages  int
	)
	for {
		page, err := s.fetchPage(ctx, lastID, allowlist)
		if err != nil {
			return nil, apperrors.DependencyError(
				fmt.Errorf("failed to fetch permits after id %d: %w", lastID, err), "permit store unavailable")
		}
		pages++

		for i := range page {
			out = append(out, toPermit(&page[i]))
		}
		metrics.PermitsFetched.Add(float64(len(page)))
		if onPage != nil {
			onPage(len(out))
		}
		s.logger.Debug("fetched permit page",
			zap.Int("page", pages),
			zap.Int("rows", len(page)),
			zap.Int("fetched", len(out)))

		if len(page) < s.pageSize {
			break
		}
		lastID = page[len(page)-1].ID
	}

	s.logger.Info("fetched permits",
		zap.Int("count", len(out)),
		zap.Int("pages", pages),
		zap.Int("partner_allowlist", len(allowlist)))
	return out, nil
}

func (s *pgStore) fetchPage(ctx context.Context, afterID int64, allowlist []string) ([]PermitDao, error) {
	var daos []PermitDao
	query := s.db.NewSelect().
		Model(&daos).
		Relation("Partner").
		Relation("Token").
		Relation("Beneficiary").
		Where("p.id > ?", afterID).
		OrderExpr("p.id ASC").
		Limit(s.pageSize)

	if len(allowlist) > 0 {
		query = query.Where("LOWER(partner.wallet_address) IN (?)", bun.In(allowlist))
	}

	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	return daos, nil
}

func normalizeAllowlist(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, a := range in {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
