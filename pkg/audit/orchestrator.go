// Package audit verifies issued permits against the Permit2 nonce bitmap.
//
// A run goes through four phases: permits missing required data are set
// aside while collecting, every eligible permit is verified concurrently in
// the first pass, permits whose verification failed transiently get exactly
// one more attempt in the retry pass, and the run ends with every permit in
// exactly one of the verified, permanently failed or excluded buckets.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainsafe/permit-auditor/internal/metrics"
	apperrors "github.com/chainsafe/permit-auditor/pkg/app/errors"
	"github.com/chainsafe/permit-auditor/pkg/permit"
)

type bucket int

const (
	bucketNone bucket = iota
	bucketVerified
	bucketFailed
	bucketExcluded
)

func (b bucket) String() string {
	switch b {
	case bucketVerified:
		return "verified"
	case bucketFailed:
		return "failed"
	case bucketExcluded:
		return "excluded"
	default:
		return "none"
	}
}

// slot holds the latest state of one permit. Each slot is written by a
// single goroutine at a time.
type slot struct {
	bucket  bucket
	outcome permit.Outcome
	err     error
}

// ProgressFunc is called after every completed attempt. It is called from
// several goroutines at once.
type ProgressFunc func(phase Phase, completed, total int)

// Orchestrator runs the two-pass verification over a permit set.
type Orchestrator struct {
	verifier    PermitVerifier
	logger      *zap.Logger
	concurrency int
	retryDelay  time.Duration
	progress    *Progress
	onProgress  ProgressFunc
}

// OrchestratorOption configures the Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithConcurrency limits the number of in-flight verifications. Zero or less
// dispatches every permit of a pass at once.
func WithConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.concurrency = n }
}

// WithRetryDelay sets the pause between the first pass and the retry pass
func WithRetryDelay(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.retryDelay = d }
}

// WithProgress shares a progress tracker, e.g. with the monitoring server
func WithProgress(p *Progress) OrchestratorOption {
	return func(o *Orchestrator) {
		if p != nil {
			o.progress = p
		}
	}
}

// WithProgressFunc registers a callback invoked after every completed attempt
func WithProgressFunc(fn ProgressFunc) OrchestratorOption {
	return func(o *Orchestrator) { o.onProgress = fn }
}

// NewOrchestrator creates an Orchestrator around verifier
func NewOrchestrator(verifier PermitVerifier, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		verifier: verifier,
		logger:   zap.NewNop(),
		progress: NewProgress(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Progress returns the tracker of the orchestrator
func (o *Orchestrator) Progress() *Progress {
	return o.progress
}

// Run verifies permits and partitions them into verified, permanently failed
// and excluded permits. Each bucket keeps the input order. A failing permit
// never aborts the run; the returned error is only set when ctx ends before
// the run completes, in which case the result is still complete but
// unfinished permits are counted as failed.
func (o *Orchestrator) Run(ctx context.Context, permits []*permit.Permit) (*permit.Result, error) {
	start := time.Now()
	slots := make([]slot, len(permits))

	o.progress.setPhase(PhaseCollecting)
	eligible := make([]int, 0, len(permits))
	for i, p := range permits {
		if err := p.Validate(); err != nil {
			slots[i] = slot{bucket: bucketExcluded, err: err}
			continue
		}
		if _, err := p.ParsedAmount(); err != nil {
			slots[i] = slot{bucket: bucketExcluded, err: err}
			continue
		}
		eligible = append(eligible, i)
	}

	o.logger.Info("Starting permit verification",
		zap.Int("total", len(permits)),
		zap.Int("eligible", len(eligible)),
		zap.Int("excluded", len(permits)-len(eligible)))

	pending := o.pass(ctx, PhaseFirstPass, permits, eligible, slots)

	if len(pending) > 0 {
		o.logger.Info("Retrying failed verifications",
			zap.Int("pending", len(pending)),
			zap.Duration("delay", o.retryDelay))
		if err := sleep(ctx, o.retryDelay); err != nil {
			o.logger.Warn("Retry pass interrupted", zap.Error(err))
		}
		// a second transient failure is final
		for _, i := range o.pass(ctx, PhaseRetryPass, permits, pending, slots) {
			slots[i].bucket = bucketFailed
		}
	}

	result := &permit.Result{Retried: len(pending)}
	for i, s := range slots {
		switch s.bucket {
		case bucketVerified:
			result.Verified = append(result.Verified, s.outcome)
		case bucketExcluded:
			result.Excluded = append(result.Excluded, permit.Failure{Permit: permits[i], Err: s.err})
		default:
			result.PermanentlyFailed = append(result.PermanentlyFailed, permit.Failure{Permit: permits[i], Err: s.err})
		}
	}

	metrics.PermitOutcomes.WithLabelValues(bucketVerified.String()).Add(float64(len(result.Verified)))
	metrics.PermitOutcomes.WithLabelValues(bucketFailed.String()).Add(float64(len(result.PermanentlyFailed)))
	metrics.PermitOutcomes.WithLabelValues(bucketExcluded.String()).Add(float64(len(result.Excluded)))

	o.progress.setPhase(PhaseDone)
	o.logger.Info("Permit verification completed",
		zap.Int("verified", len(result.Verified)),
		zap.Int("failed", len(result.PermanentlyFailed)),
		zap.Int("excluded", len(result.Excluded)),
		zap.Int("retried", result.Retried),
		zap.Duration("duration", time.Since(start)))

	return result, ctx.Err()
}

// pass verifies the permits at indices concurrently and returns the indices
// that failed with a retryable error, in ascending order.
func (o *Orchestrator) pass(ctx context.Context, phase Phase, permits []*permit.Permit, indices []int, slots []slot) []int {
	o.progress.startPass(phase, len(indices))

	// indexed by permit, so goroutines never share an element
	retry := make([]bool, len(permits))

	g := new(errgroup.Group)
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}

	for _, i := range indices {
		g.Go(func() error {
			p := permits[i]
			outcome, err := o.verifier.Verify(ctx, p)

			var retryable bool
			switch {
			case err == nil:
				slots[i] = slot{bucket: bucketVerified, outcome: outcome}
			case apperrors.Is(err, apperrors.CategoryDataError):
				slots[i] = slot{bucket: bucketExcluded, err: err}
			case apperrors.IsRetryable(err):
				retryable = true
				slots[i] = slot{bucket: bucketNone, err: err}
				retry[i] = true
			default:
				slots[i] = slot{bucket: bucketFailed, err: err}
			}

			snap := o.progress.complete(err != nil, retryable && phase == PhaseFirstPass)
			o.logAttempt(phase, p, outcome, err, snap)
			if o.onProgress != nil {
				o.onProgress(phase, snap.Completed, snap.Total)
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []int
	for i, r := range retry {
		if r {
			out = append(out, i)
		}
	}
	return out
}

func (o *Orchestrator) logAttempt(phase Phase, p *permit.Permit, outcome permit.Outcome, err error, snap Snapshot) {
	status := "ok"
	if err != nil {
		status = apperrors.CategoryOf(err).String()
	}
	metrics.VerificationAttempts.WithLabelValues(string(phase), status).Inc()

	if err != nil {
		o.logger.Warn("Permit verification failed",
			zap.String("phase", string(phase)),
			zap.Int64("permit_id", p.ID),
			zap.String("nonce", p.Nonce),
			zap.Uint64("network", p.Network),
			zap.Bool("retryable", apperrors.IsRetryable(err)),
			zap.Int("completed", snap.Completed),
			zap.Int("total", snap.Total),
			zap.Error(err))
		return
	}
	o.logger.Debug("Permit verified",
		zap.String("phase", string(phase)),
		zap.Int64("permit_id", p.ID),
		zap.String("nonce", p.Nonce),
		zap.Uint64("network", p.Network),
		zap.Bool("claimed", outcome.IsClaimed),
		zap.String("symbol", outcome.TokenSymbol),
		zap.Int("completed", snap.Completed),
		zap.Int("total", snap.Total))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
