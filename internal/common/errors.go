package common

import "errors"

// Error categories shared across services. Callers wrap these with %w and
// the HTTP layer maps them onto response codes with errors.Is.
var (
	// ErrUpstreamUnavailable means the market-data provider could not be
	// reached or returned an unusable response. A sync cycle hitting this
	// aborts without touching stored prices.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrValidation means the request or input failed validation.
	ErrValidation = errors.New("validation failed")

	// ErrRateLimited means the caller exceeded its request allowance.
	ErrRateLimited = errors.New("rate limited")

	// ErrPersistence means a storage write or read failed after retries.
	ErrPersistence = errors.New("persistence failed")

	// ErrNotFound means the requested record does not exist. Distinct from
	// ErrPersistence so callers can treat an absent row differently from a
	// failed read.
	ErrNotFound = errors.New("not found")
)
