// Package auditor implements app.Runner for the one-shot permit audit.
package auditor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainsafe/permit-auditor/pkg/app"
	"github.com/chainsafe/permit-auditor/pkg/app/httpserver"
	"github.com/chainsafe/permit-auditor/pkg/audit"
	"github.com/chainsafe/permit-auditor/pkg/config"
	"github.com/chainsafe/permit-auditor/pkg/ethereum"
	"github.com/chainsafe/permit-auditor/pkg/identity"
	"github.com/chainsafe/permit-auditor/pkg/permit"
	"github.com/chainsafe/permit-auditor/pkg/permitstore"
	"github.com/chainsafe/permit-auditor/pkg/pgutil"
	"github.com/chainsafe/permit-auditor/pkg/report"
	"github.com/chainsafe/permit-auditor/pkg/rewards"
)

var _ app.Runner = (*Runner)(nil)

// Oracle reads nonce bitmaps and token symbols. *ethereum.Pool satisfies it.
type Oracle interface {
	audit.BitmapReader
	audit.SymbolResolver
}

// NameResolver maps identity references to display names, best-effort.
type NameResolver interface {
	ResolveNames(ctx context.Context, ids []int64) map[int64]string
}

// Runner holds the configuration and collaborators of one audit run.
type Runner struct {
	cfg   *config.Config
	runID string

	store  permitstore.Store
	oracle Oracle
	names  NameResolver
}

// Option overrides a collaborator of the Runner.
type Option func(*Runner)

// WithRunID sets the run id instead of a generated one.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// WithStore replaces the Postgres permit store.
func WithStore(s permitstore.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithOracle replaces the JSON-RPC pool.
func WithOracle(o Oracle) Option {
	return func(r *Runner) { r.oracle = o }
}

// WithNameResolver replaces the identity resolver.
func WithNameResolver(n NameResolver) Option {
	return func(r *Runner) { r.names = n }
}

// NewRunner initializes a new audit Runner.
func NewRunner(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	return r
}

// RunID returns the id attached to every log line and report of the run.
func (r *Runner) RunID() string {
	return r.runID
}

// Run executes the audit once and writes the report. It returns when the
// report is written or the process receives a shutdown signal.
func (r *Runner) Run() error {
	if r.cfg == nil {
		return fmt.Errorf("nil config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(r.cfg.Logging, zap.String("run_id", r.runID))
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting permit audit",
		zap.Int("networks", len(r.cfg.Networks)),
		zap.Int("partner_allowlist", len(r.cfg.Audit.PartnerAllowlist)))

	if r.store == nil {
		db, err := pgutil.ConnectDB(ctx, &r.cfg.Database, logger)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		r.store = permitstore.NewStore(db, r.cfg.Database.PageSize, logger)
	}

	if r.oracle == nil {
		pool := ethereum.NewPool(r.cfg.Networks, ethereum.WithLogger(logger))
		defer pool.Close()
		r.oracle = pool
	}

	if r.names == nil && r.cfg.Identity.Enabled {
		r.names = identity.NewResolver(&r.cfg.Identity, identity.WithLogger(logger))
	}

	progress := audit.NewProgress()
	if r.cfg.Monitoring.Enabled {
		stopMonitoring := r.startMonitoring(ctx, progress, logger)
		defer stopMonitoring()
	}

	_, err = r.execute(ctx, progress, logger)
	return err
}

func (r *Runner) startMonitoring(ctx context.Context, progress *audit.Progress, logger *zap.Logger) func() {
	monCtx, cancel := context.WithCancel(ctx)
	srv := httpserver.NewServer(&r.cfg.Monitoring, httpserver.NewRouter(progress, logger))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := httpserver.ServeAndWait(monCtx, logger, srv, r.cfg.Monitoring.ShutdownTimeout); err != nil {
			logger.Warn("Monitoring server stopped with error", zap.Error(err))
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// execute runs fetch, verification, aggregation and reporting.
func (r *Runner) execute(ctx context.Context, progress *audit.Progress, logger *zap.Logger) (*report.Report, error) {
	start := time.Now()

	permits, err := r.store.FetchPermits(ctx, permitstore.Filter{
		PartnerAllowlist: r.cfg.Audit.PartnerAllowlist,
	}, func(fetched int) {
		logger.Debug("Fetching permits", zap.Int("fetched", fetched))
	})
	if err != nil {
		return nil, fmt.Errorf("fetch permits: %w", err)
	}
	logger.Info("Permits loaded", zap.Int("count", len(permits)))

	verifier := audit.NewVerifier(r.oracle, r.oracle, logger)
	orchestrator := audit.NewOrchestrator(verifier,
		audit.WithLogger(logger),
		audit.WithConcurrency(r.cfg.Audit.Concurrency),
		audit.WithRetryDelay(r.cfg.Audit.RetryDelay),
		audit.WithProgress(progress),
	)

	result, err := orchestrator.Run(ctx, permits)
	if err != nil {
		return nil, fmt.Errorf("verify permits: %w", err)
	}

	unclaimed := result.Unclaimed()
	names := r.resolveNames(ctx, unclaimed)

	agg := rewards.Aggregate(unclaimed, names)
	for _, f := range agg.Rejected {
		logger.Warn("Permit left out of totals",
			zap.Int64("permit_id", f.Permit.ID),
			zap.Error(f.Err))
	}
	summary := rewards.Summarize(result)
	summary.RejectedCount = len(agg.Rejected)

	rep := &report.Report{
		RunID:       r.runID,
		GeneratedAt: time.Now().UTC(),
		Summary:     summary,
		Aggregation: agg,
		Failed:      result.PermanentlyFailed,
		Excluded:    result.Excluded,
	}
	paths, err := report.NewWriter(&r.cfg.Report, logger).Write(rep)
	if err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}

	logger.Info("Permit audit finished",
		zap.Int("total_processed", summary.TotalProcessed),
		zap.Int("claimed", summary.ClaimedCount),
		zap.Int("unclaimed", summary.UnclaimedCount),
		zap.Int("failed", summary.FailedCount),
		zap.Int("excluded", summary.ExcludedCount),
		zap.Int("rejected", summary.RejectedCount),
		zap.Int("wallets", len(agg.Wallets)),
		zap.Int("users", len(agg.Users)),
		zap.Strings("reports", paths),
		zap.Duration("duration", time.Since(start)))

	return rep, nil
}

func (r *Runner) resolveNames(ctx context.Context, unclaimed []permit.Outcome) map[int64]string {
	if r.names == nil {
		return nil
	}
	ids := rewards.UserIDs(unclaimed)
	if len(ids) == 0 {
		return nil
	}
	return r.names.ResolveNames(ctx, ids)
}
