package reconcile

import (
	"math"
	"strings"

	"github.com/sydlexius/playbill/internal/textutil"
)

// Ratio floors below which the count penalty kicks in. Voice casts vary
// more in completeness, so animation gets a laxer floor.
const (
	countRatioFloor          = 0.8
	countRatioFloorAnimation = 0.6
)

// Score rates the final cast list from 0 to 10. Localized names and
// meaningful localized roles score high, resolved ids add confidence, and a
// final count well below the expected (or original) count drags the average
// down proportionally. Pure function, deterministic, no I/O.
func Score(final []*CastMember, originalCount, expectedCount int, isAnimation bool) float64 {
	if len(final) == 0 {
		return 0
	}

	var accumulated float64
	for _, m := range final {
		var s float64
		switch {
		case textutil.ContainsHan(m.Name):
			s += 3
		case m.Name != "":
			s += 1
		}

		role := m.Character
		switch {
		case role != "" && textutil.ContainsHan(role):
			if meaningfulRole(role) {
				s += 3
			} else {
				s += 1.5
			}
		case role != "":
			s += 0.5
		}

		if m.PrimaryID != "" {
			s += 2
		}
		if m.ExternalID != "" {
			s += 1.5
		}
		if m.RegionalID != "" {
			s += 0.5
		}
		accumulated += math.Min(10, s)
	}
	avg := accumulated / float64(len(final))

	floor := countRatioFloor
	if isAnimation {
		floor = countRatioFloorAnimation
	}
	total := float64(len(final))
	switch {
	case expectedCount > 0:
		if total < float64(expectedCount)*floor {
			avg *= total / float64(expectedCount)
		}
	case originalCount > 0 && total < float64(originalCount)*floor:
		avg *= total / float64(originalCount)
	}

	return math.Round(avg*10) / 10
}

// meaningfulRole reports whether a localized role names an actual
// character rather than a generic or voice-only label.
func meaningfulRole(role string) bool {
	if textutil.IsPlaceholderRole(role) {
		return false
	}
	return !strings.HasSuffix(role, voiceSuffixHan)
}
