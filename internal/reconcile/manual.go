package reconcile

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sydlexius/playbill/internal/database"
	"github.com/sydlexius/playbill/internal/event"
	"github.com/sydlexius/playbill/internal/translation"
)

// manualScore is recorded for casts a human signed off on.
const manualScore = 10.0

// EditCast is the editable view of an item's cast handed to the review UI.
type EditCast struct {
	ItemID   string       `json:"item_id"`
	ItemName string       `json:"item_name"`
	ItemType string       `json:"item_type"`
	Cast     []CastMember `json:"cast"`
}

// CastForEditing fetches the current server cast of an item for manual
// correction.
func (r *Reconciler) CastForEditing(ctx context.Context, itemID string) (*EditCast, error) {
	item, err := r.server.ItemDetails(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("fetching item for editing: %w", err)
	}
	ec := &EditCast{ItemID: item.ID, ItemName: item.Name, ItemType: item.Type}
	for i, p := range item.People {
		if p.Type != "Actor" {
			continue
		}
		ec.Cast = append(ec.Cast, CastMember{
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
	return ec, nil
}

// ApplyManualCast commits a human-corrected cast list: the server is
// updated, identity knowledge from the edit is kept, and the item moves
// from the review log to the processed log with a full score.
func (r *Reconciler) ApplyManualCast(ctx context.Context, itemID, itemName, itemType string, cast []CastMember) error {
	members := make([]*CastMember, len(cast))
	for i := range cast {
		members[i] = &cast[i]
	}
	formatCast(members, false)

	if err := r.server.UpdateItemCast(ctx, itemID, toServerCast(members)); err != nil {
		return fmt.Errorf("applying manual cast: %w", err)
	}

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		r.writeBackIdentities(ctx, r.identities.WithTx(tx), members)
		return r.logs.WithTx(tx).MarkProcessed(ctx, itemID, itemName, itemType, manualScore)
	})
	if err != nil {
		return err
	}

	if err := r.server.RefreshItem(ctx, itemID); err != nil {
		r.logger.Warn("refreshing item failed", "item_id", itemID, "error", err)
	}
	r.publish(event.CastEdited, map[string]any{"item_id": itemID, "cast": len(members)})
	return nil
}

// TranslateTexts translates arbitrary texts for the edit UI, always in
// direct mode with the title as context so the cache stays clean.
func (r *Reconciler) TranslateTexts(ctx context.Context, texts []string, title string, year int) (map[string]string, error) {
	if r.translator == nil {
		return nil, fmt.Errorf("translator not configured")
	}
	return r.translator.BatchTranslate(ctx, texts, translation.BatchOptions{Title: title, Year: year})
}
