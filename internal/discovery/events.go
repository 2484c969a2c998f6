package discovery

import "time"

// EventType names a discovery lifecycle event.
type EventType string

const (
	EventDiscoveryCompleted EventType = "discovery.completed"
	EventDiscoveryFailed    EventType = "discovery.failed"
	EventBackendUnhealthy   EventType = "backend.unhealthy"
	EventBackendHealthy     EventType = "backend.healthy"
)

// Event is published to the configured EventPublisher.
//
// Discovery events carry DiscoveryID and the summary fields. Backend events
// carry Backend and, for unhealthy transitions, Error.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	DiscoveryID    string   `json:"discovery_id,omitempty"`
	QueryCompany   string   `json:"query_company,omitempty"`
	SearchStrategy string   `json:"search_strategy,omitempty"`
	TotalMatches   int      `json:"total_matches,omitempty"`
	DurationSecs   float64  `json:"duration_seconds,omitempty"`
	Errors         []string `json:"errors,omitempty"`

	Backend string `json:"backend,omitempty"`
	Error   string `json:"error,omitempty"`
}

func discoveryEvent(res DiscoveryResult) Event {
	typ := EventDiscoveryCompleted
	if res.Failed() {
		typ = EventDiscoveryFailed
	}
	return Event{
		Type:           typ,
		Timestamp:      timeNow(),
		DiscoveryID:    res.DiscoveryID,
		QueryCompany:   res.QueryCompany,
		SearchStrategy: res.SearchStrategy,
		TotalMatches:   res.TotalMatches,
		DurationSecs:   res.ExecutionTimeSeconds,
		Errors:         res.ErrorsEncountered,
	}
}

// BackendEvent builds the event for a backend health transition.
func BackendEvent(name string, healthy bool, err error) Event {
	ev := Event{Type: EventBackendHealthy, Timestamp: timeNow(), Backend: name}
	if !healthy {
		ev.Type = EventBackendUnhealthy
		if err != nil {
			ev.Error = err.Error()
		}
	}
	return ev
}
