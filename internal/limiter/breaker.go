package limiter

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wonny/intent/internal/contracts"
)

// Breaker is the circuit breaker of one source.
//
//	Closed   --K consecutive failures-->  Open
//	Open     --cooldown elapsed-------->  HalfOpen (exactly one trial admitted)
//	HalfOpen --trial succeeds---------->  Closed
//	HalfOpen --trial fails------------->  Open (new cooldown)
//
// Independently, an authentication failure disables the source until Reset.
type Breaker struct {
	mu sync.Mutex

	source    contracts.Source
	threshold int
	cooldown  time.Duration
	clock     clockwork.Clock

	state         contracts.CircuitState
	failures      int
	nextRetryAt   time.Time
	trialInFlight bool

	disabled       bool
	disabledReason string
	lastError      string
	lastSuccessAt  time.Time

	onTransition func(source contracts.Source, from, to contracts.CircuitState)
}

// NewBreaker creates a closed breaker
func NewBreaker(source contracts.Source, threshold int, cooldown time.Duration, clock clockwork.Clock) *Breaker {
	return &Breaker{
		source:    source,
		threshold: max(threshold, 1),
		cooldown:  cooldown,
		clock:     clock,
		state:     contracts.CircuitClosed,
	}
}

// OnTransition registers a callback invoked (under the breaker lock) on every state change
func (b *Breaker) OnTransition(fn func(source contracts.Source, from, to contracts.CircuitState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTransition = fn
}

// Allow admits a poll. trial is true when the poll is the single HalfOpen probe;
// the caller must then make exactly one upstream attempt and report it.
func (b *Breaker) Allow() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disabled {
		return false, contracts.NewSourceError(b.source, contracts.KindSourceDisabled, "", nil)
	}

	switch b.state {
	case contracts.CircuitOpen:
		if b.clock.Now().Before(b.nextRetryAt) {
			return false, contracts.NewSourceError(b.source, contracts.KindCircuitOpen, "", nil)
		}
		b.transition(contracts.CircuitHalfOpen)
		b.trialInFlight = true
		return true, nil
	case contracts.CircuitHalfOpen:
		if b.trialInFlight {
			return false, contracts.NewSourceError(b.source, contracts.KindCircuitOpen, "half-open trial in flight", nil)
		}
		b.trialInFlight = true
		return true, nil
	default:
		return false, nil
	}
}

// Success records a successful poll
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trialInFlight = false
	b.lastError = ""
	b.lastSuccessAt = b.clock.Now()
	if b.state != contracts.CircuitClosed {
		b.nextRetryAt = time.Time{}
		b.transition(contracts.CircuitClosed)
	}
}

// Failure records a failed poll
func (b *Breaker) Failure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.trialInFlight = false
	if err != nil {
		b.lastError = err.Error()
	}

	if b.state == contracts.CircuitHalfOpen || b.failures >= b.threshold {
		b.nextRetryAt = b.clock.Now().Add(b.cooldown)
		if b.state != contracts.CircuitOpen {
			b.transition(contracts.CircuitOpen)
		}
	}
}

// Release returns an unused HalfOpen trial without recording an outcome,
// e.g. when the poll never reached the upstream.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialInFlight = false
}

// Disable marks the source unusable until Reset
func (b *Breaker) Disable(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disabled = true
	b.disabledReason = reason
	b.trialInFlight = false
}

// Reset re-enables a disabled source and closes the circuit
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.disabled = false
	b.disabledReason = ""
	b.failures = 0
	b.trialInFlight = false
	b.nextRetryAt = time.Time{}
	if b.state != contracts.CircuitClosed {
		b.transition(contracts.CircuitClosed)
	}
}

// State returns the current state
func (b *Breaker) State() contracts.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Health returns a snapshot for reporting
func (b *Breaker) Health() contracts.SourceHealth {
	b.mu.Lock()
	defer b.mu.Unlock()

	return contracts.SourceHealth{
		Source:              b.source,
		State:               b.state,
		ConsecutiveFailures: b.failures,
		NextRetryAt:         b.nextRetryAt,
		Disabled:            b.disabled,
		DisabledReason:      b.disabledReason,
		LastError:           b.lastError,
		LastSuccessAt:       b.lastSuccessAt,
	}
}

func (b *Breaker) transition(to contracts.CircuitState) {
	from := b.state
	b.state = to
	if b.onTransition != nil {
		b.onTransition(b.source, from, to)
	}
}
