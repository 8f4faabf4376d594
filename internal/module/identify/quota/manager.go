package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/floralens/server/internal/port/outbound"
	"github.com/floralens/server/internal/shared/logger"
)

// Period is the accounting window a call limit is enforced against.
type Period string

const (
	PeriodHourly  Period = "hourly"
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
)

// Config holds quota manager configuration.
type Config struct {
	// ServiceName scopes counters per upstream service.
	ServiceName string
	// Limit is the maximum number of upstream calls per period.
	Limit int
	// Period is the accounting window.
	Period Period
	// WarningThreshold is the usage fraction that triggers a warning log.
	WarningThreshold float64
	// FailOpen permits calls when the counter store is unreachable.
	// Refusing all traffic because the accounting store is down is worse
	// than risking a temporary overrun; deployments that need a hard cost
	// ceiling can flip this off.
	FailOpen bool
}

// DefaultConfig returns the default quota configuration for a service.
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName:      serviceName,
		Limit:            100,
		Period:           PeriodDaily,
		WarningThreshold: 0.8,
		FailOpen:         true,
	}
}

// Manager gates and accounts for calls to a metered upstream service.
// Counters live in a shared store so all workers draw from one budget.
type Manager struct {
	store outbound.CounterPort
	cfg   *Config
	log   *logger.Logger

	// now is swappable for period rollover tests.
	now func() time.Time

	mu           sync.Mutex
	warnedPeriod string
}

// NewManager creates a new quota manager.
func NewManager(store outbound.CounterPort, cfg *Config, log *logger.Logger) *Manager {
	if cfg == nil {
		cfg = DefaultConfig("default")
	}
	if log == nil {
		log = logger.New(nil)
	}
	return &Manager{
		store: store,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

// CanCall reports whether another upstream call fits in the current period.
// Fails open (or closed, per config) when the counter store is unreachable.
func (m *Manager) CanCall(ctx context.Context) bool {
	key := m.periodKey(m.now())

	count, err := m.store.Get(ctx, key)
	if err != nil {
		m.log.Warn("quota store unreachable, check degraded",
			"service", m.cfg.ServiceName,
			"fail_open", m.cfg.FailOpen,
			"error_type", fmt.Sprintf("%T", err),
		)
		return m.cfg.FailOpen
	}

	if count >= int64(m.cfg.Limit) {
		return false
	}

	m.maybeWarn(key, count)
	return true
}

// IncrementUsage atomically increments the period counter and returns the
// new count. Store failures are logged, not propagated: an undercounted
// quota is an acceptable degradation, losing the caller's response is not.
func (m *Manager) IncrementUsage(ctx context.Context) int64 {
	now := m.now()
	key := m.periodKey(now)

	count, err := m.store.Increment(ctx, key, m.periodTTL(now))
	if err != nil {
		m.log.Warn("quota increment failed, usage undercounted",
			"service", m.cfg.ServiceName,
			"error_type", fmt.Sprintf("%T", err),
		)
		return 0
	}

	m.maybeWarn(key, count)
	return count
}

// GetUsage returns the current count for the active period, 0 if absent.
func (m *Manager) GetUsage(ctx context.Context) int64 {
	count, err := m.store.Get(ctx, m.periodKey(m.now()))
	if err != nil {
		return 0
	}
	return count
}

// Limit returns the configured per-period limit.
func (m *Manager) Limit() int {
	return m.cfg.Limit
}

// PeriodKey returns the active counter key; exported for the usage endpoint.
func (m *Manager) PeriodKey() string {
	return m.periodKey(m.now())
}

// periodKey derives the counter key for the period containing t.
// CanCall, IncrementUsage and GetUsage all address counters through this
// single derivation so they can never disagree on the active counter.
func (m *Manager) periodKey(t time.Time) string {
	t = t.UTC()

	var stamp string
	switch m.cfg.Period {
	case PeriodHourly:
		stamp = t.Format("2006-01-02T15")
	case PeriodMonthly:
		stamp = t.Format("2006-01")
	default:
		stamp = t.Format("2006-01-02")
	}

	return fmt.Sprintf("quota:%s:%s", m.cfg.ServiceName, stamp)
}

// periodTTL returns the time remaining until the period containing t rolls
// over. Applied only when a counter is created, never refreshed.
func (m *Manager) periodTTL(t time.Time) time.Duration {
	t = t.UTC()

	var end time.Time
	switch m.cfg.Period {
	case PeriodHourly:
		end = t.Truncate(time.Hour).Add(time.Hour)
	case PeriodMonthly:
		end = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	default:
		end = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	}

	return end.Sub(t)
}

// maybeWarn logs once per period when usage crosses the warning threshold.
func (m *Manager) maybeWarn(key string, count int64) {
	threshold := int64(float64(m.cfg.Limit) * m.cfg.WarningThreshold)
	if threshold <= 0 || count < threshold {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warnedPeriod == key {
		return
	}
	m.warnedPeriod = key

	m.log.Warn("quota usage above warning threshold",
		"service", m.cfg.ServiceName,
		"count", count,
		"limit", m.cfg.Limit,
		"period_key", key,
	)
}
