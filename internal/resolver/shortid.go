// Package resolver expands item UID prefixes entered on the command line
// into full UIDs.
package resolver

import (
	"fmt"
	"strings"

	"github.com/beamline/queueserver/pkg/qsapi"
)

// MinPrefixLength is the minimum required length for UID prefixes.
// Set to 6 characters to balance usability with collision avoidance.
const MinPrefixLength = 6

// ResolveItemUID resolves a UID prefix against a queue snapshot and returns
// the full UID of the single matching item.
//
// The function handles three cases:
// 1. Input is already a full UUID (36 chars, 4 hyphens) - validates presence
// 2. Input is too short (< 6 chars) - returns validation error
// 3. Input is a prefix - scans the items and returns the unique match
func ResolveItemUID(items []*qsapi.Item, prefix string) (string, error) {
	if len(prefix) == 36 && strings.Count(prefix, "-") == 4 {
		for _, item := range items {
			if item.ItemUID == prefix {
				return prefix, nil
			}
		}
		return "", &NotFoundError{Prefix: prefix}
	}

	if len(prefix) < MinPrefixLength {
		return "", fmt.Errorf("UID prefix must be at least %d characters (got %d)", MinPrefixLength, len(prefix))
	}

	var matches []string
	for _, item := range items {
		if strings.HasPrefix(item.ItemUID, prefix) {
			matches = append(matches, item.ItemUID)
		}
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{Prefix: prefix}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Prefix: prefix, Matches: matches}
	}
}

// NotFoundError indicates no queue item matched the UID prefix.
type NotFoundError struct {
	Prefix string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no queue item matching '%s'", e.Prefix)
}

// AmbiguousError indicates multiple queue items matched the UID prefix.
type AmbiguousError struct {
	Prefix  string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous UID prefix '%s' matches %d items", e.Prefix, len(e.Matches))
}

// FormatAmbiguousError creates a user-friendly message for ambiguous prefixes.
// Lists all matching UIDs (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	msg := fmt.Sprintf("UID prefix '%s' matches %d items:\n", err.Prefix, len(err.Matches))

	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}
	for i := 0; i < displayCount; i++ {
		msg += fmt.Sprintf("  %s\n", err.Matches[i])
	}
	if len(err.Matches) > 10 {
		msg += fmt.Sprintf("  ...and %d more\n", len(err.Matches)-10)
	}

	msg += "\nUse a longer prefix to uniquely identify the item."
	return msg
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
