package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sydlexius/playbill/internal/database"
	"github.com/sydlexius/playbill/internal/event"
	"github.com/sydlexius/playbill/internal/identity"
	"github.com/sydlexius/playbill/internal/mediaserver"
	"github.com/sydlexius/playbill/internal/provider"
	"github.com/sydlexius/playbill/internal/provider/douban"
	"github.com/sydlexius/playbill/internal/provider/tmdb"
	"github.com/sydlexius/playbill/internal/runlog"
	"github.com/sydlexius/playbill/internal/translation"
)

// MediaServer is the slice of the media server client the pipeline needs.
type MediaServer interface {
	ItemDetails(ctx context.Context, itemID string) (*mediaserver.Item, error)
	PersonProviderIDs(ctx context.Context, personID string) (map[string]string, error)
	UpdateItemCast(ctx context.Context, itemID string, cast []mediaserver.Person) error
	RefreshItem(ctx context.Context, itemID string) error
}

// PrimarySource supplies authoritative credits and external-id resolution.
type PrimarySource interface {
	MovieCredits(ctx context.Context, movieID string) ([]tmdb.Credit, error)
	SeriesCredits(ctx context.Context, seriesID string) ([]tmdb.Credit, error)
	FindPersonByExternalID(ctx context.Context, externalID string) (*tmdb.Person, error)
}

// RegionalSource supplies the localized cast and per-person cross references.
type RegionalSource interface {
	MatchTitle(ctx context.Context, title string, year int, externalID string, mediaType provider.MediaType) (*douban.Subject, error)
	Cast(ctx context.Context, subjectID string, mediaType provider.MediaType) ([]douban.Celebrity, error)
	PersonExternalID(ctx context.Context, celebrityID string) (string, error)
}

// Options are the per-run knobs of the pipeline.
type Options struct {
	MaxCastSize       int
	MinScoreForReview float64
	TranslatorEnabled bool
	TranslatorMode    translation.Mode
}

// Reconciler runs the cast reconciliation pipeline for single items.
type Reconciler struct {
	db         *sql.DB
	identities *identity.Store
	cache      *translation.Cache
	logs       *runlog.Store
	server     MediaServer
	primary    PrimarySource
	regional   RegionalSource
	translator translation.Engine
	bus        *event.Bus
	logger     *slog.Logger
	opts       Options
}

// New creates a Reconciler. The translator and bus may be nil.
func New(db *sql.DB, identities *identity.Store, cache *translation.Cache, logs *runlog.Store,
	server MediaServer, primary PrimarySource, regional RegionalSource,
	translator translation.Engine, bus *event.Bus, logger *slog.Logger, opts Options) *Reconciler {
	if opts.MaxCastSize <= 0 {
		opts.MaxCastSize = 30
	}
	return &Reconciler{
		db:         db,
		identities: identities,
		cache:      cache,
		logs:       logs,
		server:     server,
		primary:    primary,
		regional:   regional,
		translator: translator,
		bus:        bus,
		logger:     logger.With(slog.String("component", "reconcile")),
		opts:       opts,
	}
}

// ProcessItem runs the full pipeline for one item. The returned Result is
// non-nil even on failure; ErrAborted is returned when ctx was canceled.
func (r *Reconciler) ProcessItem(ctx context.Context, itemID string, forceRefresh bool) (*Result, error) {
	res := &Result{ItemID: itemID, Outcome: OutcomeFailed}

	if err := checkpoint(ctx); err != nil {
		res.Outcome = OutcomeAborted
		return res, err
	}

	item, err := r.server.ItemDetails(ctx, itemID)
	if err != nil {
		res.Reason = fmt.Sprintf("fetching item: %v", err)
		r.recordFailure(res, item)
		return res, nil
	}
	res.ItemName = item.Name

	if item.ProviderIDs[idKeyPrimary] == "" {
		ie := &IntegrityError{ItemID: itemID, Reason: "missing primary provider id"}
		res.Reason = ie.Error()
		r.recordFailure(res, item)
		return res, nil
	}

	err = database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return r.runSession(ctx, tx, item, forceRefresh, res)
	})
	switch {
	case errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled):
		res.Outcome = OutcomeAborted
		res.Reason = ""
		r.publish(event.RunAborted, map[string]any{"item_id": itemID})
		return res, ErrAborted
	case err != nil:
		// Unexpected internal error: the transaction rolled back, record
		// the item for review outside it.
		res.Outcome = OutcomeFailed
		res.Reason = err.Error()
		r.recordFailure(res, item)
		return res, nil
	}

	// Best effort; the cast update already landed.
	if err := r.server.RefreshItem(ctx, itemID); err != nil {
		r.logger.Warn("refreshing item failed", slog.String("item_id", itemID), slog.Any("error", err))
	}

	switch res.Outcome {
	case OutcomeProcessed:
		r.publish(event.ItemProcessed, map[string]any{"item_id": itemID, "name": item.Name, "score": res.Score})
	case OutcomeNeedsReview:
		r.publish(event.ReviewNeeded, map[string]any{"item_id": itemID, "name": item.Name, "score": res.Score})
	}
	return res, nil
}

// runSession executes enrichment through the log write inside a single
// transaction, so identity writes and the processed/review entry commit or
// roll back together.
func (r *Reconciler) runSession(ctx context.Context, tx *sql.Tx, item *mediaserver.Item, forceRefresh bool, res *Result) error {
	ids := r.identities.WithTx(tx)
	cache := r.cache.WithTx(tx)
	logs := r.logs.WithTx(tx)

	mediaType := provider.MediaMovie
	if item.Type == "Series" {
		mediaType = provider.MediaSeries
	}
	isAnimation := hasGenre(item.Genres, "Animation", "动画")

	// Stage 1: enrich the snapshot.
	enriched, serverIDs, err := r.enrichSnapshot(ctx, ids, item)
	if err != nil {
		return err
	}

	// Stage 2: select the authoritative source.
	members, err := r.selectSource(ctx, item, mediaType, forceRefresh, enriched, serverIDs)
	if err != nil {
		return err
	}

	// Stage 3: regional candidates.
	candidates, err := r.regionalCandidates(ctx, item, mediaType)
	if err != nil {
		return err
	}

	// Stages 4-7: match passes with cap gating.
	members, err = r.matchCast(ctx, ids, members, candidates)
	if err != nil {
		return err
	}

	// Stage 8: full identity write-back before truncation.
	r.writeBackIdentities(ctx, ids, members)

	// Stage 9: truncate.
	expected := len(members)
	if expected > r.opts.MaxCastSize {
		expected = r.opts.MaxCastSize
	}
	members = truncateCast(members, r.opts.MaxCastSize)

	// Stage 10: translate.
	if err := r.translateCast(ctx, cache, members, item.Name, item.ProductionYear); err != nil {
		return err
	}

	// Stage 11: format.
	formatCast(members, isAnimation)

	// Stage 12: score and gate.
	score := Score(members, len(enriched), expected, isAnimation)
	res.Score = score
	res.Cast = len(members)

	if err := checkpoint(ctx); err != nil {
		return err
	}
	if err := r.server.UpdateItemCast(ctx, item.ID, toServerCast(members)); err != nil {
		return fmt.Errorf("updating server cast: %w", err)
	}

	if score < r.opts.MinScoreForReview {
		res.Outcome = OutcomeNeedsReview
		res.Reason = fmt.Sprintf("score %.1f below threshold", score)
		return logs.MarkReview(ctx, item.ID, item.Name, item.Type, res.Reason, score)
	}
	res.Outcome = OutcomeProcessed
	return logs.MarkProcessed(ctx, item.ID, item.Name, item.Type, score)
}

// enrichSnapshot attaches identity-map knowledge to the server's cast
// snapshot and collects the primaryId to serverPersonId mapping.
func (r *Reconciler) enrichSnapshot(ctx context.Context, ids *identity.Store, item *mediaserver.Item) ([]*CastMember, map[string]string, error) {
	var members []*CastMember
	for i, p := range item.People {
		if p.Type != "Actor" {
			continue
		}
		members = append(members, &CastMember{
			PrimaryID:      p.ProviderIDs[idKeyPrimary],
			ServerPersonID: p.ID,
			Name:           p.Name,
			Character:      p.Role,
			Order:          i,
			ExternalID:     p.ProviderIDs[idKeyExternal],
			RegionalID:     p.ProviderIDs[idKeyRegional],
			Source:         SourceSnapshot,
		})
	}

	// Members without a primary id get one last chance from the server's
	// own person entries. Best effort; a failure leaves them un-enriched.
	for _, m := range members {
		if m.PrimaryID != "" || m.ServerPersonID == "" {
			continue
		}
		if err := checkpoint(ctx); err != nil {
			return nil, nil, err
		}
		idMap, err := r.server.PersonProviderIDs(ctx, m.ServerPersonID)
		if err != nil {
			r.logger.Debug("person lookup failed", slog.String("person_id", m.ServerPersonID), slog.Any("error", err))
			continue
		}
		m.PrimaryID = idMap[idKeyPrimary]
		if m.ExternalID == "" {
			m.ExternalID = idMap[idKeyExternal]
		}
		if m.RegionalID == "" {
			m.RegionalID = idMap[idKeyRegional]
		}
	}

	var primaryIDs []string
	serverIDs := make(map[string]string)
	for _, m := range members {
		if m.PrimaryID != "" {
			primaryIDs = append(primaryIDs, m.PrimaryID)
			serverIDs[m.PrimaryID] = m.ServerPersonID
		}
	}
	known, err := ids.FindByPrimaryIDs(ctx, primaryIDs)
	if err != nil {
		return nil, nil, err
	}
	for _, m := range members {
		p, ok := known[m.PrimaryID]
		if !ok {
			continue
		}
		if m.ExternalID == "" {
			m.ExternalID = p.ExternalID
		}
		if m.RegionalID == "" {
			m.RegionalID = p.RegionalID
		}
		if m.OriginalName == "" {
			m.OriginalName = p.OriginalName
		}
	}
	return members, serverIDs, nil
}

// selectSource picks the cast list the match passes run against: fresh
// primary-source credits for series and forced refreshes, the enriched
// snapshot otherwise. A transient provider failure degrades to the snapshot.
func (r *Reconciler) selectSource(ctx context.Context, item *mediaserver.Item, mediaType provider.MediaType,
	forceRefresh bool, enriched []*CastMember, serverIDs map[string]string) ([]*CastMember, error) {
	useProvider := forceRefresh || mediaType == provider.MediaSeries
	if !useProvider {
		return enriched, nil
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	primaryID := item.ProviderIDs[idKeyPrimary]
	var credits []tmdb.Credit
	var err error
	if mediaType == provider.MediaSeries {
		credits, err = r.primary.SeriesCredits(ctx, primaryID)
	} else {
		credits, err = r.primary.MovieCredits(ctx, primaryID)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrAborted
		}
		r.logger.Warn("primary source unavailable, using snapshot",
			slog.String("item_id", item.ID), slog.Any("error", err))
		return enriched, nil
	}
	members := adaptCredits(credits, serverIDs)

	// Carry over snapshot knowledge the provider does not have.
	bySnapshot := make(map[string]*CastMember, len(enriched))
	for _, m := range enriched {
		if m.PrimaryID != "" {
			bySnapshot[m.PrimaryID] = m
		}
	}
	for _, m := range members {
		if s, ok := bySnapshot[m.PrimaryID]; ok {
			if m.ExternalID == "" {
				m.ExternalID = s.ExternalID
			}
			if m.RegionalID == "" {
				m.RegionalID = s.RegionalID
			}
		}
	}
	return members, nil
}

// regionalCandidates matches the title on the regional source and adapts
// its cast. A miss or transient failure yields no candidates, not an error.
func (r *Reconciler) regionalCandidates(ctx context.Context, item *mediaserver.Item, mediaType provider.MediaType) ([]regionalCandidate, error) {
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	title := item.Name
	if item.OriginalTitle != "" && title == "" {
		title = item.OriginalTitle
	}
	subject, err := r.regional.MatchTitle(ctx, title, item.ProductionYear, item.ProviderIDs[idKeyExternal], mediaType)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrAborted
		}
		r.logger.Info("no regional match", slog.String("item_id", item.ID), slog.Any("error", err))
		return nil, nil
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	celebrities, err := r.regional.Cast(ctx, subject.ID, mediaType)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrAborted
		}
		r.logger.Warn("regional cast unavailable", slog.String("subject_id", subject.ID), slog.Any("error", err))
		return nil, nil
	}
	return adaptRegionalCast(celebrities), nil
}

// writeBackIdentities upserts every member's identity row, including ones
// the truncation step is about to drop. A failed upsert is logged, not fatal.
func (r *Reconciler) writeBackIdentities(ctx context.Context, ids *identity.Store, members []*CastMember) {
	for _, m := range members {
		if m.PrimaryID == "" {
			continue
		}
		err := ids.Upsert(ctx, &identity.Person{
			PrimaryID:    m.PrimaryID,
			Name:         m.Name,
			OriginalName: m.OriginalName,
			ExternalID:   m.ExternalID,
			RegionalID:   m.RegionalID,
		})
		if err != nil {
			r.logger.Warn("identity write-back failed", slog.String("primary_id", m.PrimaryID), slog.Any("error", err))
		}
	}
}

func (r *Reconciler) recordFailure(res *Result, item *mediaserver.Item) {
	name, itemType := res.ItemID, ""
	if item != nil {
		name, itemType = item.Name, item.Type
	}
	if err := r.logs.MarkReview(context.Background(), res.ItemID, name, itemType, res.Reason, res.Score); err != nil {
		r.logger.Error("recording failure", slog.String("item_id", res.ItemID), slog.Any("error", err))
	}
	r.publish(event.ReviewNeeded, map[string]any{"item_id": res.ItemID, "reason": res.Reason})
}

func (r *Reconciler) publish(t event.Type, data map[string]any) {
	if r.bus != nil {
		r.bus.Publish(event.Event{Type: t, Data: data})
	}
}

func toServerCast(members []*CastMember) []mediaserver.Person {
	cast := make([]mediaserver.Person, 0, len(members))
	for _, m := range members {
		ids := make(map[string]string, 3)
		if m.PrimaryID != "" {
			ids[idKeyPrimary] = m.PrimaryID
		}
		if m.ExternalID != "" {
			ids[idKeyExternal] = m.ExternalID
		}
		if m.RegionalID != "" {
			ids[idKeyRegional] = m.RegionalID
		}
		cast = append(cast, mediaserver.Person{
			ID:          m.ServerPersonID,
			Name:        m.Name,
			Role:        m.Character,
			Type:        "Actor",
			ProviderIDs: ids,
		})
	}
	return cast
}

func hasGenre(genres []string, names ...string) bool {
	for _, g := range genres {
		for _, n := range names {
			if strings.EqualFold(g, n) {
				return true
			}
		}
	}
	return false
}
