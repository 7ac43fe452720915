package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OracleCalls counts read-only contract calls by network, method and status
	OracleCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_audit_oracle_calls_total",
			Help: "Total number of read-only contract calls",
		},
		[]string{"network", "method", "status"},
	)

	// OracleCallDuration tracks contract call latency
	OracleCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "permit_audit_oracle_call_duration_seconds",
			Help:    "Contract call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"network", "method"},
	)

	// NetworkDials counts RPC connections opened per network
	NetworkDials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_audit_network_dials_total",
			Help: "Total number of RPC connections opened",
		},
		[]string{"network", "status"},
	)

	// SymbolCacheHits counts token symbol lookups served from the run cache
	SymbolCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "permit_audit_symbol_cache_hits_total",
			Help: "Token symbol lookups served from cache",
		},
	)

	// VerificationAttempts counts verification attempts by pass and status
	VerificationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_audit_verification_attempts_total",
			Help: "Total number of permit verification attempts",
		},
		[]string{"pass", "status"},
	)

	// PermitOutcomes counts permits by final bucket
	PermitOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_audit_permit_outcomes_total",
			Help: "Permits by final result bucket",
		},
		[]string{"bucket"},
	)

	// RunProgress tracks completed and total attempts of the current pass
	RunProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "permit_audit_run_progress",
			Help: "Completed and total verification attempts of the current pass",
		},
		[]string{"kind"},
	)

	// IdentityLookups counts identity resolutions by status
	IdentityLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_audit_identity_lookups_total",
			Help: "Total number of identity lookups",
		},
		[]string{"status"},
	)

	// PermitsFetched counts rows read from the permit store
	PermitsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "permit_audit_permits_fetched_total",
			Help: "Total number of permits read from the store",
		},
	)
)
