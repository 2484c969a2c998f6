package discovery

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BackendStatus is a snapshot of one registered backend.
type BackendStatus struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	LastError string    `json:"last_error,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
	Checkable bool      `json:"checkable"`
}

type registryEntry struct {
	backend   SearchBackend
	healthy   bool
	lastError error
	changedAt time.Time
}

// HealthChangeFunc is called after a backend changes health state.
type HealthChangeFunc func(name string, healthy bool, err error)

// Registry holds the search backends available to discovery.
//
// All methods are safe for concurrent use. Registration order does not affect
// AvailableTools, which is sorted by name.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*registryEntry
	callbacks []HealthChangeFunc

	metrics *Metrics
	logger  *zap.Logger
}

// NewRegistry creates an empty registry. A nil logger is replaced by a no-op logger.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*registryEntry),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// Register adds a healthy backend under backend.Name().
func (r *Registry) Register(backend SearchBackend) error {
	if backend == nil {
		return fmt.Errorf("%w: backend is nil", ErrInvalidBackend)
	}
	name := strings.TrimSpace(backend.Name())
	if name == "" {
		return fmt.Errorf("%w: backend name is empty", ErrInvalidBackend)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrBackendExists, name)
	}
	r.entries[name] = &registryEntry{
		backend:   backend,
		healthy:   true,
		changedAt: timeNow(),
	}
	r.metrics.SetBackendHealthy(name, true)
	r.logger.Info("search backend registered", zap.String("backend", name))
	return nil
}

// Unregister removes a backend. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; !ok {
		return
	}
	delete(r.entries, name)
	r.metrics.DeleteBackend(name)
	r.logger.Info("search backend unregistered", zap.String("backend", name))
}

// AvailableTools returns the names of healthy backends in sorted order.
func (r *Registry) AvailableTools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name, e := range r.entries {
		if e.healthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Backend returns the backend registered under name, healthy or not.
func (r *Registry) Backend(name string) (SearchBackend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.backend, true
}

// Len returns the number of registered backends.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// MarkUnhealthy removes name from AvailableTools until it is marked healthy.
func (r *Registry) MarkUnhealthy(name string, err error) error {
	return r.setHealth(name, false, err)
}

// MarkHealthy makes name available again.
func (r *Registry) MarkHealthy(name string) error {
	return r.setHealth(name, true, nil)
}

func (r *Registry) setHealth(name string, healthy bool, cause error) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBackendNotFound, name)
	}
	changed := e.healthy != healthy
	e.healthy = healthy
	e.lastError = cause
	if changed {
		e.changedAt = timeNow()
	}
	callbacks := make([]HealthChangeFunc, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	if !changed {
		return nil
	}

	r.metrics.SetBackendHealthy(name, healthy)
	if healthy {
		r.logger.Info("search backend healthy", zap.String("backend", name))
	} else {
		r.logger.Warn("search backend unhealthy", zap.String("backend", name), zap.Error(cause))
	}

	for _, cb := range callbacks {
		r.fire(cb, name, healthy, cause)
	}
	return nil
}

func (r *Registry) fire(cb HealthChangeFunc, name string, healthy bool, cause error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("health callback panic", zap.String("backend", name), zap.Any("panic", rec))
		}
	}()
	cb(name, healthy, cause)
}

// OnHealthChange registers cb for health transitions. Callbacks run
// synchronously after the registry lock is released.
func (r *Registry) OnHealthChange(cb HealthChangeFunc) error {
	if cb == nil {
		return fmt.Errorf("registry: callback cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
	return nil
}

// Status returns a snapshot of every backend, sorted by name.
func (r *Registry) Status() []BackendStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]BackendStatus, 0, len(r.entries))
	for name, e := range r.entries {
		st := BackendStatus{
			Name:      name,
			Healthy:   e.healthy,
			ChangedAt: e.changedAt,
		}
		if e.lastError != nil {
			st.LastError = e.lastError.Error()
		}
		_, st.Checkable = e.backend.(HealthChecker)
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// unhealthyCheckable returns the unhealthy backends that can be probed.
func (r *Registry) unhealthyCheckable() map[string]HealthChecker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]HealthChecker)
	for name, e := range r.entries {
		if e.healthy {
			continue
		}
		if hc, ok := e.backend.(HealthChecker); ok {
			out[name] = hc
		}
	}
	return out
}
