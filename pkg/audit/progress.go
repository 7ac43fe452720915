package audit

import (
	"sync"

	"github.com/chainsafe/permit-auditor/internal/metrics"
)

// Phase is the state of an audit run
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseCollecting Phase = "collecting"
	PhaseFirstPass  Phase = "first_pass"
	PhaseRetryPass  Phase = "retry_pass"
	PhaseDone       Phase = "done"
)

// Snapshot is a point-in-time copy of the run progress
type Snapshot struct {
	Phase        Phase `json:"phase"`
	Completed    int   `json:"completed"`
	Total        int   `json:"total"`
	Failed       int   `json:"failed"`
	PendingRetry int   `json:"pending_retry"`
}

// Progress tracks the current pass of a run. It is safe for concurrent use.
type Progress struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewProgress returns an idle tracker
func NewProgress() *Progress {
	return &Progress{snap: Snapshot{Phase: PhaseIdle}}
}

// Snapshot returns the current progress
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

func (p *Progress) setPhase(phase Phase) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Phase = phase
}

// startPass resets the counters for a pass over total permits.
func (p *Progress) startPass(phase Phase, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = Snapshot{Phase: phase, Total: total}
	metrics.RunProgress.WithLabelValues("total").Set(float64(total))
	metrics.RunProgress.WithLabelValues("completed").Set(0)
}

// complete records one finished attempt and returns the updated snapshot.
func (p *Progress) complete(failed, retry bool) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Completed++
	if failed {
		p.snap.Failed++
	}
	if retry {
		p.snap.PendingRetry++
	}
	metrics.RunProgress.WithLabelValues("completed").Set(float64(p.snap.Completed))
	return p.snap
}
