// Package identity resolves numeric beneficiary ids to display names through
// the GitHub users API. Resolution is best-effort: ids that cannot be resolved
// are left out of the result and callers fall back to a placeholder.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainsafe/permit-auditor/internal/metrics"
	apperrors "github.com/chainsafe/permit-auditor/pkg/app/errors"
	"github.com/chainsafe/permit-auditor/pkg/config"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	defaultConcurrency = 8

	// Limit error-body reads.
	maxErrBodyBytes = 1024
)

// ErrUserNotFound is returned when the identity service has no user for an id.
var ErrUserNotFound = errors.New("user not found")

// Resolver looks up display names and caches successful lookups for its lifetime.
type Resolver struct {
	baseURL     string
	token       string
	concurrency int
	httpClient  *http.Client
	logger      *zap.Logger
	cache       *xsync.MapOf[int64, string]
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a resolver for the configured identity service.
func NewResolver(cfg *config.IdentityConfig, opts ...Option) *Resolver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	r := &Resolver{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		concurrency: concurrency,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      zap.NewNop(),
		cache:       xsync.NewMapOf[int64, string](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveNames returns the display names of the ids it could resolve.
// Lookup errors are logged and never returned.
func (r *Resolver) ResolveNames(ctx context.Context, ids []int64) map[int64]string {
	names := xsync.NewMapOf[int64, string]()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			name, err := r.Name(gctx, id)
			if err != nil {
				r.logger.Debug("identity lookup failed", zap.Int64("user_id", id), zap.Error(err))
				return nil
			}
			names.Store(id, name)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[int64]string, names.Size())
	names.Range(func(id int64, name string) bool {
		out[id] = name
		return true
	})

	r.logger.Info("resolved identities",
		zap.Int("requested", len(ids)),
		zap.Int("resolved", len(out)))
	return out
}

// Name resolves a single id.
func (r *Resolver) Name(ctx context.Context, id int64) (string, error) {
	if name, ok := r.cache.Load(id); ok {
		metrics.IdentityLookups.WithLabelValues("cached").Inc()
		return name, nil
	}

	name, err := r.fetch(ctx, id)
	if err != nil {
		metrics.IdentityLookups.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.IdentityLookups.WithLabelValues("success").Inc()

	r.cache.Store(id, name)
	return name, nil
}

type userResponse struct {
	Login string `json:"login"`
}

func (r *Resolver) fetch(ctx context.Context, id int64) (string, error) {
	url := r.baseURL + "/user/" + strconv.FormatInt(id, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create identity request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", apperrors.TimeoutError(err, "identity lookup timed out")
		}
		return "", apperrors.DependencyError(fmt.Errorf("call identity service: %w", err), "identity lookup failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", apperrors.BadRequestError(fmt.Errorf("%w: %d", ErrUserNotFound, id), ErrUserNotFound.Error())
	default:
		return "", apperrors.DependencyError(readHTTPError(resp), "identity lookup failed")
	}

	var u userResponse
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return "", apperrors.DependencyError(fmt.Errorf("decode identity response: %w", err), "identity lookup failed")
	}
	if u.Login == "" {
		return "", apperrors.DependencyError(errors.New("identity response missing login"), "identity lookup failed")
	}
	return u.Login, nil
}

func readHTTPError(resp *http.Response) error {
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))
	if err != nil {
		return fmt.Errorf("identity service returned %d and body read failed: %w", resp.StatusCode, err)
	}
	return fmt.Errorf("identity service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}
