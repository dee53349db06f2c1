package reconcile

import (
	"context"
	"log/slog"

	"github.com/sydlexius/playbill/internal/textutil"
	"github.com/sydlexius/playbill/internal/translation"
)

// translateCast localizes names and cleaned roles that are not already in
// the target script. Cached mode consults the persistent cache and only
// sends misses to the backend; direct mode translates everything with the
// title and year as context and touches the cache not at all. A backend
// failure leaves all text unchanged and never fails the run.
func (r *Reconciler) translateCast(ctx context.Context, cache *translation.Cache, members []*CastMember, title string, year int) error {
	// Roles are cleaned regardless of whether translation runs.
	for _, m := range members {
		m.Character = textutil.CleanCharacterName(m.Character)
	}
	if !r.opts.TranslatorEnabled || r.translator == nil {
		return nil
	}

	texts := collectTexts(members)
	if len(texts) == 0 {
		return nil
	}

	translations := make(map[string]string, len(texts))
	var pending []string

	if r.opts.TranslatorMode == translation.ModeCached {
		for _, t := range texts {
			cached, ok, err := cache.Get(ctx, t)
			if err != nil {
				return err
			}
			if ok {
				if cached != "" {
					translations[t] = cached
				}
				continue
			}
			pending = append(pending, t)
		}
	} else {
		pending = texts
	}

	if len(pending) > 0 {
		if err := checkpoint(ctx); err != nil {
			return err
		}
		opts := translation.BatchOptions{}
		if r.opts.TranslatorMode == translation.ModeDirect {
			opts.Title = title
			opts.Year = year
		}
		result, err := r.translator.BatchTranslate(ctx, pending, opts)
		if err != nil {
			if ctx.Err() != nil {
				return ErrAborted
			}
			r.logger.Warn("translation failed, leaving text unchanged", slog.Any("error", err))
			result = nil
		}
		for original, translated := range result {
			translations[original] = translated
			if r.opts.TranslatorMode == translation.ModeCached {
				if err := cache.Put(ctx, original, translated, r.translator.Name()); err != nil {
					r.logger.Warn("caching translation failed", slog.String("text", original), slog.Any("error", err))
				}
			}
		}
	}

	for _, m := range members {
		if t, ok := translations[m.Name]; ok {
			m.Name = t
		}
		if t, ok := translations[m.Character]; ok {
			m.Character = t
		}
	}
	return nil
}

// collectTexts gathers the unique names and roles still in the source
// script, in first-seen order.
func collectTexts(members []*CastMember) []string {
	seen := make(map[string]struct{})
	var texts []string
	add := func(s string) {
		if s == "" || textutil.ContainsHan(s) || textutil.IsPlaceholderRole(s) {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		texts = append(texts, s)
	}
	for _, m := range members {
		add(m.Name)
		add(m.Character)
	}
	return texts
}
