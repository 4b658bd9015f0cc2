package usecase

import "strings"

// Validate reports whether the transcript contains the expected answer.
// Matching is case-sensitive with no normalization; an empty expected
// answer always matches.
func Validate(transcript string, expected string) bool {
	return strings.Contains(transcript, expected)
}
