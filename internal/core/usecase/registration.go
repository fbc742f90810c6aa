package usecase

import (
	"regexp"
	"strings"
)

var (
	registrationCandidate = regexp.MustCompile(`(?i)[a-z]*-?\d{3,7}-?[a-z]?`)
	nonAlphanumeric       = regexp.MustCompile(`(?i)[^a-z0-9]`)
)

// ExtractRegistrationNumber returns the first token in text that looks like a
// council registration number, or "" when none does.
func ExtractRegistrationNumber(text string) string {
	for _, candidate := range registrationCandidate.FindAllString(text, -1) {
		cleaned := nonAlphanumeric.ReplaceAllString(candidate, "")
		if len(cleaned) >= 5 && len(cleaned) <= 10 {
			return strings.ToUpper(cleaned)
		}
	}
	return ""
}
