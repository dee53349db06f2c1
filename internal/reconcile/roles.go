package reconcile

import "github.com/sydlexius/playbill/internal/textutil"

// bestRole picks the more useful of two character strings. Target-script
// text beats source-script text, a real character name beats a placeholder
// label, and the candidate wins ties.
func bestRole(current, candidate string) string {
	current = textutil.CleanCharacterName(current)
	candidate = textutil.CleanCharacterName(candidate)

	currentHan := textutil.ContainsHan(current)
	candidateHan := textutil.ContainsHan(candidate)
	currentPlaceholder := textutil.IsPlaceholderRole(current)
	candidatePlaceholder := textutil.IsPlaceholderRole(candidate)

	switch {
	case candidateHan && !candidatePlaceholder:
		return candidate
	case currentHan && !currentPlaceholder && !candidateHan:
		return current
	case candidate != "" && !candidatePlaceholder:
		return candidate
	case current != "" && !currentPlaceholder:
		return current
	case candidate != "":
		return candidate
	default:
		return current
	}
}
