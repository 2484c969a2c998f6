package discovery

import "errors"

// Sentinel errors for discovery operations.
var (
	// ErrInvalidRequest indicates a DiscoveryRequest failed validation.
	ErrInvalidRequest = errors.New("invalid discovery request")

	// ErrInvalidMatch indicates a CompanyMatch failed validation.
	ErrInvalidMatch = errors.New("invalid company match")

	// ErrInvalidBackend is returned when registering a nil or unnamed backend.
	ErrInvalidBackend = errors.New("invalid search backend")

	// ErrBackendExists is returned when a backend name is already registered.
	ErrBackendExists = errors.New("search backend already registered")

	// ErrBackendNotFound is returned for lookups of unknown backends.
	ErrBackendNotFound = errors.New("search backend not found")

	// ErrBackendPanic wraps a panic recovered from a backend call.
	ErrBackendPanic = errors.New("search backend panicked")
)
