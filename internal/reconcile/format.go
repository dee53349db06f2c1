package reconcile

import (
	"strings"

	"github.com/sydlexius/playbill/internal/textutil"
)

// voiceSuffixHan marks voice roles in the target script.
const voiceSuffixHan = "(配音)"

// formatCast is the final normalization pass: target-script roles lose
// interior spaces, animation casts get voice-role labels, empty roles get a
// generic label, and order is reassigned by final position.
func formatCast(members []*CastMember, isAnimation bool) {
	for i, m := range members {
		role := strings.TrimSpace(m.Character)
		if textutil.ContainsHan(role) {
			role = textutil.CompactHan(role)
		}
		switch {
		case isAnimation && role != "" && !strings.HasSuffix(role, voiceSuffixHan):
			role = role + " " + voiceSuffixHan
		case isAnimation && role == "":
			role = "配音"
		case role == "":
			role = "演员"
		}
		m.Character = role
		m.Order = i
	}
}
