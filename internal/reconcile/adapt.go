package reconcile

import (
	"strconv"

	"github.com/sydlexius/playbill/internal/provider/douban"
	"github.com/sydlexius/playbill/internal/provider/tmdb"
	"github.com/sydlexius/playbill/internal/textutil"
)

// Provider id keys as the media server names them.
const (
	idKeyPrimary  = "Tmdb"
	idKeyExternal = "Imdb"
	idKeyRegional = "Douban"
)

// regionalCandidate is one regional cast entry queued for matching.
type regionalCandidate struct {
	ID        string
	Name      string
	LatinName string
	Character string
}

// adaptCredits normalizes primary-source credits into cast members,
// attaching the server's own person ids where the enriched snapshot knows
// them.
func adaptCredits(credits []tmdb.Credit, serverIDs map[string]string) []*CastMember {
	members := make([]*CastMember, 0, len(credits))
	for _, cr := range credits {
		if cr.ID == 0 {
			continue
		}
		primaryID := formatID(cr.ID)
		members = append(members, &CastMember{
			PrimaryID:      primaryID,
			ServerPersonID: serverIDs[primaryID],
			Name:           cr.Name,
			OriginalName:   cr.OriginalName,
			Character:      cr.Character,
			Order:          cr.Order,
			Gender:         cr.Gender,
			Popularity:     cr.Popularity,
			ProfilePath:    cr.ProfilePath,
			Source:         SourceAuthoritative,
		})
	}
	return members
}

// adaptRegionalCast normalizes regional celebrities into match candidates,
// dropping duplicates by id or, when an id is missing, by name signature.
func adaptRegionalCast(celebrities []douban.Celebrity) []regionalCandidate {
	seenID := make(map[string]struct{}, len(celebrities))
	seenName := make(map[string]struct{}, len(celebrities))
	candidates := make([]regionalCandidate, 0, len(celebrities))
	for _, c := range celebrities {
		if c.Name == "" {
			continue
		}
		if c.ID != "" {
			if _, ok := seenID[c.ID]; ok {
				continue
			}
			seenID[c.ID] = struct{}{}
		} else {
			sig := textutil.NameSignature(c.Name)
			if _, ok := seenName[sig]; ok {
				continue
			}
			seenName[sig] = struct{}{}
		}
		candidates = append(candidates, regionalCandidate{
			ID:        c.ID,
			Name:      c.Name,
			LatinName: c.LatinName,
			Character: textutil.CleanCharacterName(c.Character),
		})
	}
	return candidates
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
