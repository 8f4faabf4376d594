package identify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/floralens/server/internal/module/identify/breaker"
	"github.com/floralens/server/internal/module/identify/quota"
	"github.com/floralens/server/internal/port/outbound"
	"github.com/floralens/server/internal/shared/logger"
	"github.com/floralens/server/internal/utils/metrics"
	"github.com/google/uuid"
)

// Config holds identification service configuration.
type Config struct {
	// LockAcquireTimeout bounds how long a caller waits for the lock.
	// Long enough that a typical upstream call (2-9s observed) completes
	// before a waiter gives up, short enough to bound worst-case latency.
	LockAcquireTimeout time.Duration
	// LockExpireAfter is the lock's safety TTL; a crashed holder cannot
	// wedge a fingerprint for longer than this.
	LockExpireAfter time.Duration
	// LockRetryInterval is the poll interval while waiting for the lock.
	LockRetryInterval time.Duration
	// LockFailOpen proceeds without a lock when the lock store is
	// unreachable, accepting possible duplicate upstream calls.
	LockFailOpen bool
	// CacheTTL is how long identification results are memoized.
	CacheTTL time.Duration
}

// DefaultConfig returns the default service configuration.
func DefaultConfig() *Config {
	return &Config{
		LockAcquireTimeout: 15 * time.Second,
		LockExpireAfter:    30 * time.Second,
		LockRetryInterval:  100 * time.Millisecond,
		LockFailOpen:       true,
		CacheTTL:           24 * time.Hour,
	}
}

// Service orchestrates identification calls through the result cache,
// quota manager, distributed lock and circuit breaker.
//
// Ordering per call: cache check, quota check, lock acquire, cache
// re-check, breaker-wrapped upstream call, quota increment, cache store,
// lock release. Quota is checked before the lock so calls that would be
// refused never contend for it, and incremented only after a confirmed
// upstream success.
type Service struct {
	provider outbound.IdentificationProviderPort
	quota    *quota.Manager
	breaker  *breaker.Breaker[*outbound.RawIdentification]
	cache    outbound.ResultCachePort
	locks    outbound.LockPort
	cfg      *Config
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// NewService creates a new identification service. metrics may be nil.
func NewService(
	provider outbound.IdentificationProviderPort,
	quotaManager *quota.Manager,
	cb *breaker.Breaker[*outbound.RawIdentification],
	cache outbound.ResultCachePort,
	locks outbound.LockPort,
	cfg *Config,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.New(nil)
	}
	return &Service{
		provider: provider,
		quota:    quotaManager,
		breaker:  cb,
		cache:    cache,
		locks:    locks,
		cfg:      cfg,
		log:      log,
		metrics:  m,
	}
}

// Identify resolves one identification request.
//
// Returns ErrQuotaExceeded when the period budget is spent, ErrCircuitOpen
// when the upstream is presumed unhealthy, ErrUpstream when the call itself
// failed, and the cached or fresh Result otherwise.
func (s *Service) Identify(ctx context.Context, req *Request) (*Result, error) {
	fp := req.Fingerprint()
	service := s.provider.Name()
	cacheKey := fmt.Sprintf("cache:%s:%s", service, fp)

	// First cache check: a hit costs no quota and takes no lock.
	if res, ok := s.cachedResult(ctx, cacheKey); ok {
		s.countOutcome(metrics.OutcomeCacheHit)
		return res, nil
	}

	// Quota before the lock: a call that will be refused anyway should
	// not contend for the fingerprint.
	if !s.quota.CanCall(ctx) {
		s.countOutcome(metrics.OutcomeQuotaExceeded)
		return nil, ErrQuotaExceeded
	}

	lockKey := fmt.Sprintf("lock:%s:%s", service, fp)
	release, err := s.acquireLock(ctx, lockKey)
	switch {
	case err == nil:
		defer release()

		// Re-check under the lock: a concurrent holder may have populated
		// the cache while we waited. This is what collapses N concurrent
		// misses into one real call.
		if res, ok := s.cachedResult(ctx, cacheKey); ok {
			s.countOutcome(metrics.OutcomeCacheHit)
			return res, nil
		}

	case errors.Is(err, ErrLockTimeout):
		// Contention exceeded the wait budget. One more cache check, then
		// fall back to an unlocked attempt rather than failing outright.
		if s.metrics != nil {
			s.metrics.LockTimeoutsTotal.WithLabelValues(service).Inc()
		}
		s.log.Warn("lock acquisition timed out, falling back to unlocked call",
			"service", service,
			"fingerprint", fp,
		)
		if res, ok := s.cachedResult(ctx, cacheKey); ok {
			s.countOutcome(metrics.OutcomeCacheHit)
			return res, nil
		}

	default:
		// Lock store unreachable.
		if !s.cfg.LockFailOpen {
			s.log.Error("lock store unavailable",
				"service", service,
				"error_type", fmt.Sprintf("%T", err),
			)
			s.countOutcome(metrics.OutcomeUpstreamError)
			return nil, ErrUpstream
		}
		s.log.Warn("lock store unavailable, proceeding without lock",
			"service", service,
			"error_type", fmt.Sprintf("%T", err),
		)
	}

	return s.callUpstream(ctx, req, cacheKey)
}

// Usage describes current quota consumption for the usage endpoint.
type Usage struct {
	Service   string `json:"service"`
	PeriodKey string `json:"period_key"`
	Used      int64  `json:"used"`
	Limit     int    `json:"limit"`
}

// Usage returns the current quota usage for the configured provider.
func (s *Service) Usage(ctx context.Context) *Usage {
	return &Usage{
		Service:   s.provider.Name(),
		PeriodKey: s.quota.PeriodKey(),
		Used:      s.quota.GetUsage(ctx),
		Limit:     s.quota.Limit(),
	}
}

// BreakerState returns the current circuit state for health reporting.
func (s *Service) BreakerState() string {
	return s.breaker.State().String()
}

// callUpstream performs the breaker-wrapped upstream call, then accounts
// quota and stores the result. Quota is never consumed for a failed call.
func (s *Service) callUpstream(ctx context.Context, req *Request, cacheKey string) (*Result, error) {
	service := s.provider.Name()

	start := time.Now()
	raw, err := s.breaker.Execute(func() (*outbound.RawIdentification, error) {
		return s.provider.Identify(ctx, req.Image, req.Params)
	})
	s.observeBreakerState()

	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			s.countOutcome(metrics.OutcomeCircuitOpen)
			return nil, ErrCircuitOpen
		}
		// Type name only; raw upstream error text stays out of the logs.
		s.log.Error("upstream identification failed",
			"provider", service,
			"error_type", fmt.Sprintf("%T", err),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		s.countOutcome(metrics.OutcomeUpstreamError)
		return nil, ErrUpstream
	}

	if s.metrics != nil {
		s.metrics.UpstreamDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
	}

	// Confirmed success: account it and memoize.
	count := s.quota.IncrementUsage(ctx)
	if s.metrics != nil {
		s.metrics.QuotaUsage.WithLabelValues(service).Set(float64(count))
	}

	res := resultFromRaw(raw)
	s.storeResult(ctx, cacheKey, res)

	s.countOutcome(metrics.OutcomeSuccess)
	return res, nil
}

// acquireLock blocks up to LockAcquireTimeout for the fingerprint lock.
// On success it returns a release func that frees the lock exactly once.
// Returns ErrLockTimeout when the wait budget is exhausted, or the store
// error when the lock backend is unreachable.
func (s *Service) acquireLock(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	deadline := time.Now().Add(s.cfg.LockAcquireTimeout)

	for {
		acquired, err := s.locks.Acquire(ctx, key, token, s.cfg.LockExpireAfter)
		if err != nil {
			return nil, err
		}
		if acquired {
			return func() {
				// Fresh context: the request context may already be
				// canceled, and the lock must still be freed.
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if _, err := s.locks.Release(releaseCtx, key, token); err != nil {
					s.log.Warn("lock release failed",
						"key", key,
						"error_type", fmt.Sprintf("%T", err),
					)
				}
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ErrLockTimeout
		case <-time.After(s.cfg.LockRetryInterval):
		}
	}
}

// cachedResult reads and decodes a memoized result. Store errors degrade
// to a miss: the cache being down must not fail identification.
func (s *Service) cachedResult(ctx context.Context, key string) (*Result, bool) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, outbound.ErrCacheMiss) {
			s.log.Warn("result cache unreachable, treating as miss",
				"error_type", fmt.Sprintf("%T", err),
			)
		}
		if s.metrics != nil {
			s.metrics.CacheMissesTotal.WithLabelValues("identify").Inc()
		}
		return nil, false
	}

	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		s.log.Warn("cached result corrupt, treating as miss", "key", key)
		return nil, false
	}

	if s.metrics != nil {
		s.metrics.CacheHitsTotal.WithLabelValues("identify").Inc()
	}
	res.Cached = true
	return &res, true
}

// storeResult memoizes a successful result. Failures are logged only;
// the caller still gets their response.
func (s *Service) storeResult(ctx context.Context, key string, res *Result) {
	data, err := json.Marshal(res)
	if err != nil {
		s.log.Warn("encode result for cache failed", "key", key)
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cfg.CacheTTL); err != nil {
		s.log.Warn("store result in cache failed",
			"key", key,
			"error_type", fmt.Sprintf("%T", err),
		)
	}
}

func (s *Service) countOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.IdentificationsTotal.WithLabelValues(s.provider.Name(), outcome).Inc()
	}
}

func (s *Service) observeBreakerState() {
	if s.metrics != nil {
		s.metrics.BreakerState.WithLabelValues(s.provider.Name()).Set(float64(s.breaker.State()))
	}
}
