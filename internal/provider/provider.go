// Package provider defines the shared types and errors for external metadata
// sources, plus per-provider rate limiting.
package provider

import (
	"fmt"
	"time"
)

// ProviderName uniquely identifies a metadata provider.
type ProviderName string

// Known provider names.
const (
	NameTMDB   ProviderName = "tmdb"
	NameDouban ProviderName = "douban"
)

// DisplayName returns a human-readable name for the provider.
func (n ProviderName) DisplayName() string {
	switch n {
	case NameTMDB:
		return "TMDb"
	case NameDouban:
		return "Douban"
	default:
		return string(n)
	}
}

// MediaType distinguishes movies from series in provider requests.
type MediaType string

// Known media types.
const (
	MediaMovie  MediaType = "movie"
	MediaSeries MediaType = "series"
)

// ErrProviderUnavailable indicates a transient failure (rate-limited, timeout, server error).
type ErrProviderUnavailable struct {
	Provider   ProviderName
	Cause      error
	RetryAfter time.Duration
}

func (e *ErrProviderUnavailable) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Cause)
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Cause }

// ErrNotFound indicates the provider has no data for the requested ID.
type ErrNotFound struct {
	Provider ProviderName
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("provider %s: %s not found", e.Provider, e.ID)
}

// ErrAuthRequired indicates the provider needs an API key but none is configured.
type ErrAuthRequired struct {
	Provider ProviderName
}

func (e *ErrAuthRequired) Error() string {
	return fmt.Sprintf("provider %s: API key not configured", e.Provider)
}
