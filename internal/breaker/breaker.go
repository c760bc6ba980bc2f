// Package breaker implements a per-name closed/open/half-open circuit
// breaker, adapted from information-broker's circuit_breaker.go so both
// MessageSource and LLMClient can wrap their outbound calls with the
// same resilience primitive.
package breaker

import (
	"errors"
	"sync"
	"time"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

var ErrOpen = errors.New("breaker: circuit is open")

// Config tunes one breaker's trip/reset behavior.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	ResetTimeout     time.Duration
}

// DefaultConfig matches information-broker's DefaultConfig tuning.
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 3,
	Timeout:          2 * time.Minute,
	ResetTimeout:     5 * time.Minute,
}

// StateObserver is notified of trips, the same hook metrics.go's
// circuit-breaker gauges use.
type StateObserver interface {
	RecordCircuitBreakerTrip(name string)
	UpdateCircuitBreakerState(name, state string)
}

// Breaker guards one named dependency.
type Breaker struct {
	name            string
	config          Config
	observer        StateObserver
	mutex           sync.RWMutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	lastSuccessTime time.Time
}

// New creates a breaker in the closed state. observer may be nil.
func New(name string, config Config, observer StateObserver) *Breaker {
	return &Breaker{name: name, config: config, state: StateClosed, observer: observer}
}

// Execute runs fn only if the breaker currently allows it.
func (b *Breaker) Execute(fn func() error) error {
	if !b.canExecute() {
		return ErrOpen
	}

	if err := fn(); err != nil {
		b.recordFailure()
		return err
	}

	b.recordSuccess()
	return nil
}

func (b *Breaker) canExecute() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	now := time.Now()

	switch b.state {
	case StateClosed:
		if !b.lastFailureTime.IsZero() && now.Sub(b.lastFailureTime) > b.config.ResetTimeout {
			b.failureCount = 0
		}
		return true

	case StateOpen:
		if now.Sub(b.lastFailureTime) > b.config.Timeout {
			b.state = StateHalfOpen
			b.successCount = 0
			return true
		}
		return false

	case StateHalfOpen:
		return true

	default:
		return false
	}
}

func (b *Breaker) recordFailure() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.config.FailureThreshold {
			b.state = StateOpen
			if b.observer != nil {
				b.observer.RecordCircuitBreakerTrip(b.name)
				b.observer.UpdateCircuitBreakerState(b.name, string(StateOpen))
			}
		}
	case StateHalfOpen:
		b.state = StateOpen
		if b.observer != nil {
			b.observer.RecordCircuitBreakerTrip(b.name)
			b.observer.UpdateCircuitBreakerState(b.name, string(StateOpen))
		}
	}
}

func (b *Breaker) recordSuccess() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.lastSuccessTime = time.Now()

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.state = StateClosed
			b.failureCount = 0
			if b.observer != nil {
				b.observer.UpdateCircuitBreakerState(b.name, string(StateClosed))
			}
		}
	}
}

// Status reports the breaker's current state for diagnostics endpoints.
type Status struct {
	Name         string `json:"name"`
	State        State  `json:"state"`
	FailureCount int    `json:"failureCount"`
	SuccessCount int    `json:"successCount"`
}

func (b *Breaker) Status() Status {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return Status{Name: b.name, State: b.state, FailureCount: b.failureCount, SuccessCount: b.successCount}
}

// Manager keys breakers by name, the same lazily-created-registry shape
// as CircuitBreakerManager.
type Manager struct {
	mutex    sync.RWMutex
	breakers map[string]*Breaker
	observer StateObserver
}

func NewManager(observer StateObserver) *Manager {
	return &Manager{breakers: make(map[string]*Breaker), observer: observer}
}

func (m *Manager) GetOrCreate(name string, config Config) *Breaker {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if b, ok := m.breakers[name]; ok {
		return b
	}
	b := New(name, config, m.observer)
	m.breakers[name] = b
	return b
}

func (m *Manager) Status() map[string]Status {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make(map[string]Status, len(m.breakers))
	for name, b := range m.breakers {
		out[name] = b.Status()
	}
	return out
}
