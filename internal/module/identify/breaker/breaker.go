package breaker

import (
	"errors"
	"time"

	"github.com/floralens/server/internal/shared/logger"
	"github.com/sony/gobreaker/v2"
)

// ErrOpen is returned when the breaker rejects a call without attempting it.
// Distinct from upstream failures so callers can apply different messaging.
var ErrOpen = errors.New("circuit breaker open")

// Config contains circuit breaker configuration.
type Config struct {
	// Name identifies the protected upstream in logs.
	Name string
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold uint32
	// SuccessThreshold is the consecutive-success count that closes it again
	// from half-open trial.
	SuccessThreshold uint32
	// ResetTimeout is how long the circuit stays open before a trial.
	ResetTimeout time.Duration
}

// DefaultConfig returns the default breaker configuration.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		FailureThreshold: 3,
		SuccessThreshold: 2,
		ResetTimeout:     60 * time.Second,
	}
}

// Breaker wraps an upstream call with circuit breaker protection.
// State is process-local: each worker detects and recovers from upstream
// failures on its own, while quota/lock/cache remain shared.
type Breaker[T any] struct {
	cb  *gobreaker.CircuitBreaker[T]
	log *logger.Logger
}

// New creates a breaker with the given configuration.
func New[T any](cfg *Config, log *logger.Logger) *Breaker[T] {
	if cfg == nil {
		cfg = DefaultConfig("upstream")
	}
	if log == nil {
		log = logger.New(nil)
	}

	settings := gobreaker.Settings{
		Name: cfg.Name,
		// Half-open trial closes after this many consecutive successes.
		MaxRequests: cfg.SuccessThreshold,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			// Transitions at WARNING: the breaker doing its job is not an error.
			log.Warn("circuit breaker state change",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &Breaker[T]{
		cb:  gobreaker.NewCircuitBreaker[T](settings),
		log: log,
	}
}

// Execute runs fn through the breaker. While the circuit is open the call
// is rejected immediately with ErrOpen and fn is never invoked.
func (b *Breaker[T]) Execute(fn func() (T, error)) (T, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.log.Warn("circuit breaker rejected call", "name", b.cb.Name())
			var zero T
			return zero, ErrOpen
		}
		return result, err
	}
	return result, nil
}

// State returns the current breaker state.
func (b *Breaker[T]) State() gobreaker.State {
	return b.cb.State()
}
