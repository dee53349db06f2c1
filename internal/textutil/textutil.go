// Package textutil provides text helpers for cast names and character roles.
package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// voiceSuffix matches trailing English voice-acting markers such as
// "(voice)", "[voice]", or "(v.o.)".
var voiceSuffix = regexp.MustCompile(`(?i)\s*(\(voice\)|\[voice\]|\(v\.o\.\))\s*$`)

// ContainsHan reports whether s contains at least one Han character.
func ContainsHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// PredominantlyLatin reports whether the letters in s are mostly Latin.
// Non-letter runes are ignored.
func PredominantlyLatin(s string) bool {
	var latin, other int
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		if unicode.Is(unicode.Latin, r) {
			latin++
		} else {
			other++
		}
	}
	return latin > other
}

// CleanCharacterName normalizes a character role string. It folds full-width
// punctuation to its narrow form, strips a leading actor marker ("饰"), keeps
// only the first role when several are joined with "/", and removes trailing
// English voice markers.
func CleanCharacterName(name string) string {
	name = strings.TrimSpace(width.Narrow.String(name))
	if name == "" {
		return ""
	}
	name = strings.TrimSpace(strings.TrimPrefix(name, "饰"))
	if i := strings.IndexByte(name, '/'); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	return strings.TrimSpace(voiceSuffix.ReplaceAllString(name, ""))
}

// CompactHan removes interior spaces from strings that contain Han
// characters. Latin strings are returned unchanged.
func CompactHan(s string) string {
	if !ContainsHan(s) {
		return s
	}
	return strings.ReplaceAll(s, " ", "")
}

// placeholderRoles are generic role labels that carry no character identity.
var placeholderRoles = map[string]struct{}{
	"actor":   {},
	"actress": {},
	"self":    {},
	"演员":      {},
	"配音":      {},
}

// IsPlaceholderRole reports whether role is a generic label such as
// "Actor" or "演员" rather than a real character name.
func IsPlaceholderRole(role string) bool {
	_, ok := placeholderRoles[strings.ToLower(strings.TrimSpace(role))]
	return ok
}

// NameSignature returns a case-insensitive, space-insensitive key used to
// detect duplicate people when their ids are unknown.
func NameSignature(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", ""))
}
