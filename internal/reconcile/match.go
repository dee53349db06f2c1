package reconcile

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/sydlexius/playbill/internal/identity"
)

// matchCast runs the three match passes. Pass A matches candidates to the
// working set by name, pass B resolves queued candidates through the local
// identity map, pass C bridges through external ids with network calls.
// The cap gates passes B and C entirely: network work stops once the working
// set cannot usefully grow.
func (r *Reconciler) matchCast(ctx context.Context, ids *identity.Store, members []*CastMember, candidates []regionalCandidate) ([]*CastMember, error) {
	unmatched := r.matchByName(members, candidates)

	if len(members) >= r.opts.MaxCastSize {
		if len(unmatched) > 0 {
			r.logger.Debug("cast at cap, discarding regional candidates", slog.Int("discarded", len(unmatched)))
		}
		return members, nil
	}

	present := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m.PrimaryID != "" {
			present[m.PrimaryID] = struct{}{}
		}
	}

	unmatched, members, err := r.matchByRegionalID(ctx, ids, members, unmatched, present)
	if err != nil {
		return nil, err
	}
	return r.matchByExternalID(ctx, ids, members, unmatched, present)
}

// matchByName is pass A: exact case-insensitive name matching against the
// shrinking pool of not-yet-matched members. Returns the candidates that
// found no member.
func (r *Reconciler) matchByName(members []*CastMember, candidates []regionalCandidate) []regionalCandidate {
	matched := make(map[*CastMember]struct{}, len(members))
	var unmatched []regionalCandidate

	for _, cand := range candidates {
		var hit *CastMember
		for _, m := range members {
			if _, done := matched[m]; done {
				continue
			}
			if namesEqual(cand.Name, m.Name) || namesEqual(cand.Name, m.OriginalName) ||
				namesEqual(cand.LatinName, m.Name) || namesEqual(cand.LatinName, m.OriginalName) {
				hit = m
				break
			}
		}
		if hit == nil {
			unmatched = append(unmatched, cand)
			continue
		}
		matched[hit] = struct{}{}
		hit.Name = cand.Name
		hit.Character = bestRole(hit.Character, cand.Character)
		if hit.RegionalID == "" {
			hit.RegionalID = cand.ID
		}
	}
	return unmatched
}

// matchByRegionalID is pass B: local identity-map lookups only, no network.
func (r *Reconciler) matchByRegionalID(ctx context.Context, ids *identity.Store, members []*CastMember,
	candidates []regionalCandidate, present map[string]struct{}) ([]regionalCandidate, []*CastMember, error) {
	var unmatched []regionalCandidate
	for _, cand := range candidates {
		if len(members) >= r.opts.MaxCastSize {
			break
		}
		if cand.ID == "" {
			unmatched = append(unmatched, cand)
			continue
		}
		p, err := ids.FindByRegionalID(ctx, cand.ID)
		if err != nil {
			r.logger.Warn("identity lookup failed", slog.String("regional_id", cand.ID), slog.Any("error", err))
			unmatched = append(unmatched, cand)
			continue
		}
		if p == nil || p.PrimaryID == "" {
			unmatched = append(unmatched, cand)
			continue
		}
		if _, ok := present[p.PrimaryID]; ok {
			continue
		}
		m, err := r.synthesizeMember(ctx, ids, cand, p.PrimaryID, p.ExternalID)
		if err != nil {
			return nil, nil, err
		}
		members = append(members, m)
		present[p.PrimaryID] = struct{}{}
	}
	return unmatched, members, nil
}

// matchByExternalID is pass C: fetch the candidate's external id from the
// regional source, then resolve it locally or through the primary source.
// Newly learned id triples are written back immediately so later candidates
// in the same run can use them.
func (r *Reconciler) matchByExternalID(ctx context.Context, ids *identity.Store, members []*CastMember,
	candidates []regionalCandidate, present map[string]struct{}) ([]*CastMember, error) {
	for i, cand := range candidates {
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}
		if len(members) >= r.opts.MaxCastSize {
			r.logger.Debug("cast at cap, skipping remaining candidates", slog.Int("skipped", len(candidates)-i))
			break
		}
		if cand.ID == "" {
			continue
		}

		externalID, err := r.regional.PersonExternalID(ctx, cand.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrAborted
			}
			r.logger.Debug("no external id for candidate", slog.String("name", cand.Name), slog.Any("error", err))
			continue
		}
		if externalID == "" {
			continue
		}

		primaryID := ""
		knownExternal := externalID
		if p, err := ids.FindByExternalID(ctx, externalID); err != nil {
			r.logger.Warn("identity lookup failed", slog.String("external_id", externalID), slog.Any("error", err))
		} else if p != nil && p.PrimaryID != "" {
			primaryID = p.PrimaryID
		}

		if primaryID == "" {
			if err := checkpoint(ctx); err != nil {
				return nil, err
			}
			person, err := r.primary.FindPersonByExternalID(ctx, externalID)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ErrAborted
				}
				r.logger.Debug("external id unresolved, discarding candidate",
					slog.String("name", cand.Name), slog.Any("error", err))
				continue
			}
			primaryID = formatID(person.ID)
		}
		if primaryID == "" {
			continue
		}

		// Write the learned triple back right away, whether or not the
		// person also joins the cast.
		err = ids.Upsert(ctx, &identity.Person{
			PrimaryID:  primaryID,
			Name:       cand.Name,
			ExternalID: knownExternal,
			RegionalID: cand.ID,
		})
		if err != nil {
			r.logger.Warn("identity write-back failed", slog.String("primary_id", primaryID), slog.Any("error", err))
			continue
		}

		if _, ok := present[primaryID]; ok {
			continue
		}
		m, err := r.synthesizeMember(ctx, ids, cand, primaryID, knownExternal)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
		present[primaryID] = struct{}{}
	}
	return members, nil
}

// synthesizeMember builds a newly-added cast member from a regional
// candidate, filling descriptive fields from the metadata cache when it has
// an entry for the person.
func (r *Reconciler) synthesizeMember(ctx context.Context, ids *identity.Store, cand regionalCandidate, primaryID, externalID string) (*CastMember, error) {
	m := &CastMember{
		PrimaryID:  primaryID,
		Name:       cand.Name,
		Character:  cand.Character,
		Order:      unsetOrder,
		ExternalID: externalID,
		RegionalID: cand.ID,
		Source:     SourceNewlyAdded,
	}
	meta, err := ids.Metadata(ctx, primaryID)
	if err != nil {
		return nil, err
	}
	if meta != nil {
		m.OriginalName = meta.OriginalName
		m.Gender = meta.Gender
		m.Popularity = meta.Popularity
		m.ProfilePath = meta.ProfilePath
	}
	if m.OriginalName == "" {
		m.OriginalName = cand.LatinName
	}
	return m, nil
}

// truncateCast sorts by order (unset ranks last) and keeps the first max
// entries. The sort is stable so ties keep their existing order.
func truncateCast(members []*CastMember, max int) []*CastMember {
	sort.SliceStable(members, func(i, j int) bool {
		return sortOrder(members[i]) < sortOrder(members[j])
	})
	if len(members) > max {
		members = members[:max]
	}
	return members
}

func sortOrder(m *CastMember) int {
	if m.Order < 0 {
		return unsetOrder
	}
	return m.Order
}

func namesEqual(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}
