// Package translation turns Latin-script cast text into its localized form,
// either through the persistent cache or directly against the translation
// backend.
package translation

import "context"

// Mode selects the caching strategy for a translation run.
type Mode string

// Known translation modes.
const (
	// ModeCached consults the persistent cache first and only sends cache
	// misses to the backend. Results are written back to the cache.
	ModeCached Mode = "cached"
	// ModeDirect bypasses the cache entirely and sends every text to the
	// backend together with media context for higher accuracy.
	ModeDirect Mode = "direct"
)

// BatchOptions carries optional media context for a translation batch.
// Title and Year are only populated in direct mode.
type BatchOptions struct {
	Title string
	Year  int
}

// Engine translates batches of text. Implementations must return a map from
// original text to translated text; texts the backend could not translate are
// simply absent from the result.
type Engine interface {
	Name() string
	BatchTranslate(ctx context.Context, texts []string, opts BatchOptions) (map[string]string, error)
}
