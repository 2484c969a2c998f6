package discovery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// mockBackend returns the same matches for every query.
type mockBackend struct {
	name    string
	matches []CompanyMatch
	err     error
	panics  any
	delay   time.Duration

	calls    atomic.Int32
	inFlight *atomic.Int32
	maxSeen  *atomic.Int32

	mu      sync.Mutex
	queries []string
}

func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) Search(ctx context.Context, query string, req DiscoveryRequest) ([]CompanyMatch, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()

	if m.inFlight != nil {
		n := m.inFlight.Add(1)
		defer m.inFlight.Add(-1)
		for {
			seen := m.maxSeen.Load()
			if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
				break
			}
		}
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.panics != nil {
		panic(m.panics)
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.matches, nil
}

func (m *mockBackend) seenQueries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// checkableBackend adds a configurable health check.
type checkableBackend struct {
	*mockBackend
	healthErr atomic.Value // error wrapper
	checks    atomic.Int32
}

type healthResult struct{ err error }

func newCheckableBackend(name string, healthErr error) *checkableBackend {
	b := &checkableBackend{mockBackend: &mockBackend{name: name}}
	b.setHealthErr(healthErr)
	return b
}

func (b *checkableBackend) setHealthErr(err error) {
	b.healthErr.Store(healthResult{err: err})
}

func (b *checkableBackend) HealthCheck(ctx context.Context) error {
	b.checks.Add(1)
	return b.healthErr.Load().(healthResult).err
}

// blockingBackend waits for the context to end.
type blockingBackend struct{ name string }

func (b blockingBackend) Name() string { return b.name }

func (b blockingBackend) Search(ctx context.Context, query string, req DiscoveryRequest) ([]CompanyMatch, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type stubStore struct {
	matches []CompanyMatch
	err     error
	panics  any
	calls   atomic.Int32
}

func (s *stubStore) SearchSimilarCompanies(ctx context.Context, companyName string) ([]CompanyMatch, error) {
	s.calls.Add(1)
	if s.panics != nil {
		panic(s.panics)
	}
	return s.matches, s.err
}

type stubFallback struct {
	matches []CompanyMatch
	err     error
	calls   atomic.Int32
}

func (s *stubFallback) Search(ctx context.Context, companyName string) ([]CompanyMatch, error) {
	s.calls.Add(1)
	return s.matches, s.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) all() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// match builds a fully populated match discovered now.
func match(name string, source Source, similarity float64) CompanyMatch {
	m := NewCompanyMatch(name, source)
	m.Domain = NormalizeName(name) + ".com"
	m.Description = name + " builds software"
	m.Industry = "Software"
	m.BusinessModel = "B2B"
	m.EmployeeCount = IntPtr(250)
	m.Location = "San Francisco"
	m.SimilarityScore = similarity
	return m
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
