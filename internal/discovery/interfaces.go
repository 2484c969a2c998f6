package discovery

import "context"

// SearchBackend is one registered search tool.
//
// Search may return an error at any time. The executor treats an error as a
// backend failure and marks the backend unhealthy.
type SearchBackend interface {
	// Name is the registry key, usually a Source value.
	Name() string

	// Search runs one query and returns the matches it found.
	Search(ctx context.Context, query string, req DiscoveryRequest) ([]CompanyMatch, error)
}

// HealthChecker is implemented by backends that can be probed. The health
// monitor uses it to re-admit backends marked unhealthy.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// VectorStore is the database consulted in the DB_SEARCH phase.
type VectorStore interface {
	SearchSimilarCompanies(ctx context.Context, companyName string) ([]CompanyMatch, error)
}

// FallbackSearch supplies low-confidence matches when the other phases found
// too few.
type FallbackSearch interface {
	Search(ctx context.Context, companyName string) ([]CompanyMatch, error)
}

// EventPublisher receives discovery lifecycle events. Publish errors are
// logged and otherwise ignored.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}
