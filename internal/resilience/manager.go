package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrAllProvidersFailed is the sentinel wrapped by [AllProvidersFailedError];
// check with errors.Is.
var ErrAllProvidersFailed = errors.New("all providers failed")

// ErrProviderUnavailable is reported by [ExecuteWith] when the named provider
// is unknown, disabled, or blocked by an open circuit.
var ErrProviderUnavailable = errors.New("provider unavailable")

// healthCheckTimeout bounds each individual probe in [Manager.HealthCheckAll].
const healthCheckTimeout = 5 * time.Second

// Provider is the capability set every managed adapter must expose. The
// concrete operation (transcribe, complete, synthesize, ...) is supplied per
// call via [Execute].
type Provider interface {
	// Name returns the adapter's unique name within its manager.
	Name() string

	// HealthCheck verifies the remote dependency is reachable. Implementations
	// should keep this cheap — a credentials check or a small metadata call.
	HealthCheck(ctx context.Context) error
}

// Observer receives provider-call outcomes for metric export. Implementations
// must be safe for concurrent use.
type Observer interface {
	// ProviderResult reports one attempted provider call.
	ProviderResult(kind, provider string, failed bool)

	// Fallback reports a current-provider switch.
	Fallback(kind string)
}

// ProviderFailure records one provider's error during a fallback sweep.
type ProviderFailure struct {
	Provider string
	Err      error
}

// AllProvidersFailedError reports that every provider in a manager either
// failed or was blocked by an open circuit during a single call.
type AllProvidersFailedError struct {
	// Kind is the manager's provider family, e.g. "stt".
	Kind string

	// Failures holds one entry per provider, in the order attempted. Skipped
	// providers carry [ErrCircuitOpen].
	Failures []ProviderFailure
}

// Error lists the per-provider failures joined with "; ".
func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Provider, f.Err))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("all %s providers failed", e.Kind)
	}
	return fmt.Sprintf("all %s providers failed: %s", e.Kind, strings.Join(parts, "; "))
}

// Unwrap makes errors.Is(err, ErrAllProvidersFailed) hold.
func (e *AllProvidersFailedError) Unwrap() error { return ErrAllProvidersFailed }

// entry pairs a provider with its priority and dedicated circuit breaker.
type entry[P Provider] struct {
	provider P
	name     string
	priority int
	enabled  bool
	breaker  *CircuitBreaker
}

// Manager holds a priority-ordered pool of providers of one family. Calls go
// to the current provider when its circuit allows, falling back through the
// remaining providers in priority order. Each provider has its own breaker.
//
// The concrete call is passed per invocation through the package-level
// [Execute] and [ExecuteWith] functions because Go methods cannot introduce
// additional type parameters.
//
// Manager is safe for concurrent use.
type Manager[P Provider] struct {
	kind       string
	breakerCfg CircuitBreakerConfig

	mu            sync.Mutex
	entries       []*entry[P]
	current       string
	fallbackCount int
	observer      Observer
}

// ProviderStatus describes one pool member inside a [ManagerStatus].
type ProviderStatus struct {
	Name     string          `json:"name"`
	Priority int             `json:"priority"`
	Enabled  bool            `json:"enabled"`
	Circuit  CircuitSnapshot `json:"circuit"`
}

// ManagerStatus is an observable snapshot of a [Manager].
type ManagerStatus struct {
	Kind          string           `json:"kind"`
	Current       string           `json:"current"`
	FallbackCount int              `json:"fallback_count"`
	Providers     []ProviderStatus `json:"providers"`
}

// NewManager creates an empty [Manager] for the given provider family. The
// breaker config (minus Name, which is derived per provider) applies to every
// registered provider.
func NewManager[P Provider](kind string, breakerCfg CircuitBreakerConfig) *Manager[P] {
	return &Manager[P]{kind: kind, breakerCfg: breakerCfg}
}

// Add registers a provider with the given priority (lower is preferred). The
// first registration in priority order becomes the current provider.
func (m *Manager[P]) Add(p P, priority int, enabled bool) {
	cfg := m.breakerCfg
	cfg.Name = m.kind + "/" + p.Name()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, &entry[P]{
		provider: p,
		name:     p.Name(),
		priority: priority,
		enabled:  enabled,
		breaker:  NewCircuitBreaker(cfg),
	})
	sort.SliceStable(m.entries, func(i, j int) bool {
		return m.entries[i].priority < m.entries[j].priority
	})

	// Registration happens before traffic. Until the first fallback the
	// current provider is simply the highest-priority enabled entry, so
	// late registrations of a better provider take effect regardless of
	// Add order.
	if m.fallbackCount == 0 {
		m.current = ""
		for _, e := range m.entries {
			if e.enabled {
				m.current = e.name
				break
			}
		}
	}
}

// SetObserver installs an observer notified of every provider attempt and
// fallback switch. Pass nil to detach.
func (m *Manager[P]) SetObserver(obs Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = obs
}

func (m *Manager[P]) notifyResult(provider string, failed bool) {
	m.mu.Lock()
	obs := m.observer
	m.mu.Unlock()
	if obs != nil {
		obs.ProviderResult(m.kind, provider, failed)
	}
}

// Current returns the name of the provider that served the last successful
// call (initially the highest-priority enabled provider).
func (m *Manager[P]) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Kind returns the manager's provider family label.
func (m *Manager[P]) Kind() string { return m.kind }

// next selects the provider to try: the current one if its circuit allows,
// otherwise the first allowed entry in priority order. Entries already tried
// this call and entries blocked by an open circuit are skipped; blocked ones
// do not count as tried.
func (m *Manager[P]) next(tried map[string]bool) *entry[P] {
	m.mu.Lock()
	candidates := make([]*entry[P], 0, len(m.entries))
	if m.current != "" && !tried[m.current] {
		for _, e := range m.entries {
			if e.name == m.current && e.enabled {
				candidates = append(candidates, e)
				break
			}
		}
	}
	for _, e := range m.entries {
		if e.enabled && !tried[e.name] && e.name != m.current {
			candidates = append(candidates, e)
		}
	}
	m.mu.Unlock()

	for _, e := range candidates {
		if e.breaker.Allow() {
			return e
		}
	}
	return nil
}

// promote marks name as the current provider, counting a fallback switch when
// it differs from the previous one.
func (m *Manager[P]) promote(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != name {
		m.fallbackCount++
		slog.Info("provider switched",
			"kind", m.kind, "from", m.current, "to", name,
			"fallback_count", m.fallbackCount)
		m.current = name
		if m.observer != nil {
			m.observer.Fallback(m.kind)
		}
	}
}

// Execute runs fn against the manager's providers until one succeeds,
// starting with the current provider and falling back in priority order.
// Providers blocked by an open circuit are skipped without counting as tried.
// On success the serving provider becomes current; exhaustion yields an
// [AllProvidersFailedError].
func Execute[P Provider, R any](ctx context.Context, m *Manager[P], fn func(context.Context, P) (R, error)) (R, error) {
	var zero R
	tried := make(map[string]bool)
	var failures []ProviderFailure

	for {
		e := m.next(tried)
		if e == nil {
			break
		}
		tried[e.name] = true

		result, err := fn(ctx, e.provider)
		m.notifyResult(e.name, err != nil)
		if err == nil {
			e.breaker.RecordSuccess()
			m.promote(e.name)
			return result, nil
		}
		e.breaker.RecordFailure(err)
		failures = append(failures, ProviderFailure{Provider: e.name, Err: err})
		slog.Warn("provider failed, trying next",
			"kind", m.kind, "provider", e.name, "err", err)
	}

	// Fold in the providers that were never attempted because their circuit
	// was open, so the error names every pool member.
	m.mu.Lock()
	for _, e := range m.entries {
		if e.enabled && !tried[e.name] {
			failures = append(failures, ProviderFailure{Provider: e.name, Err: ErrCircuitOpen})
		}
	}
	m.mu.Unlock()

	return zero, &AllProvidersFailedError{Kind: m.kind, Failures: failures}
}

// ExecuteWith runs fn against one named provider with no fallback. It fails
// with [ErrProviderUnavailable] when the provider is unknown, disabled, or
// its circuit is open. The outcome is still recorded on the circuit.
func ExecuteWith[P Provider, R any](ctx context.Context, m *Manager[P], name string, fn func(context.Context, P) (R, error)) (R, error) {
	var zero R

	m.mu.Lock()
	var target *entry[P]
	for _, e := range m.entries {
		if e.name == name && e.enabled {
			target = e
			break
		}
	}
	m.mu.Unlock()

	if target == nil {
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderUnavailable, m.kind, name)
	}
	if !target.breaker.Allow() {
		return zero, fmt.Errorf("%w: %s/%q: %v", ErrProviderUnavailable, m.kind, name, ErrCircuitOpen)
	}

	result, err := fn(ctx, target.provider)
	m.notifyResult(target.name, err != nil)
	if err != nil {
		target.breaker.RecordFailure(err)
		return zero, err
	}
	target.breaker.RecordSuccess()
	return result, nil
}

// HealthCheckAll probes every enabled provider with a bounded per-probe
// timeout and reports name → healthy. Circuits are not touched; health
// probing is observational.
func (m *Manager[P]) HealthCheckAll(ctx context.Context) map[string]bool {
	m.mu.Lock()
	entries := make([]*entry[P], len(m.entries))
	copy(entries, m.entries)
	m.mu.Unlock()

	results := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.enabled {
			results[e.name] = false
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := e.provider.HealthCheck(probeCtx)
		cancel()
		if err != nil {
			slog.Debug("provider health check failed",
				"kind", m.kind, "provider", e.name, "err", err)
		}
		results[e.name] = err == nil
	}
	return results
}

// Status returns a structured snapshot of the pool.
func (m *Manager[P]) Status() ManagerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := ManagerStatus{
		Kind:          m.kind,
		Current:       m.current,
		FallbackCount: m.fallbackCount,
		Providers:     make([]ProviderStatus, 0, len(m.entries)),
	}
	for _, e := range m.entries {
		st.Providers = append(st.Providers, ProviderStatus{
			Name:     e.name,
			Priority: e.priority,
			Enabled:  e.enabled,
			Circuit:  e.breaker.Snapshot(),
		})
	}
	return st
}

// ResetAll closes every circuit and restores the highest-priority enabled
// provider as current.
func (m *Manager[P]) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		e.breaker.Reset()
	}
	m.current = ""
	for _, e := range m.entries {
		if e.enabled {
			m.current = e.name
			break
		}
	}
	slog.Info("provider pool reset", "kind", m.kind, "current", m.current)
}
