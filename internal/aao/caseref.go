package aao

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var caseURLPattern = regexp.MustCompile(`^https?://(?:www\.)?aaonline\.fr/player\.php\?trial_id=(\d+)$`)

// ParseCaseRef normalizes a case reference into its canonical trial ID.
// Both bare numeric IDs and player URLs (with or without the www host)
// are accepted.
func ParseCaseRef(ref string) (int64, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return 0, fmt.Errorf("empty case reference")
	}
	if id, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		if id <= 0 {
			return 0, fmt.Errorf("case id must be positive, got %d", id)
		}
		return id, nil
	}
	if m := caseURLPattern.FindStringSubmatch(trimmed); m != nil {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("case id in URL %q out of range", trimmed)
		}
		return id, nil
	}
	return 0, fmt.Errorf("cannot parse case reference %q: expected a numeric id or a player URL", ref)
}
