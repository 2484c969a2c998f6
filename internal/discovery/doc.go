// Package discovery finds companies similar to a named company.
//
// An Orchestrator runs each request through a fixed sequence of phases:
//
//	database search -> web discovery -> fallback -> score and rank -> filter and limit
//
// Every phase may fail independently. Failures are recorded on the
// DiscoveryResult instead of being returned, so Execute always produces a
// well-formed result.
//
// Web discovery fans out over the healthy backends held by a Registry using an
// Executor. A backend that errors is marked unhealthy and stays out of
// discovery until a HealthMonitor pass re-admits it.
//
// Scoring is keyword based. Scorer.SimilarityScore compares five weighted
// attributes (industry, business model, size, location, description) and
// Scorer.ConfidenceScore combines source reliability, completeness, query
// relevance and freshness into a geometric mean.
package discovery
