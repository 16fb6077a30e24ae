package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// EncodeBadges renders badge names as a JSON array of strings. Names are NFC
// normalised so visually equal names compare equal after a round trip.
func EncodeBadges(badges []string) string {
	if len(badges) == 0 {
		return "[]"
	}
	names := make([]string, len(badges))
	for i, b := range badges {
		names[i] = norm.NFC.String(b)
	}
	data, err := json.Marshal(names)
	if err != nil {
		// []string always marshals.
		return "[]"
	}
	return string(data)
}

// DecodeBadges parses a JSON array of badge names. Empty input and "[]" yield no
// badges; anything else that is not an array of strings returns ErrParse.
func DecodeBadges(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "[]" {
		return nil, nil
	}

	var names []string
	if err := json.Unmarshal([]byte(s), &names); err != nil {
		return nil, fmt.Errorf("%w: badges: %w", ErrParse, err)
	}

	out := make([]string, 0, len(names))
	for _, n := range names {
		n = norm.NFC.String(strings.TrimSpace(n))
		if n != "" {
			out = append(out, n)
		}
	}
	return out, nil
}
