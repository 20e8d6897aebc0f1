package odds

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatAmerican renders signed American odds in display notation, with
// an explicit plus sign for positive odds ("+285", "-150").
func FormatAmerican(american int) string {
	if american > 0 {
		return fmt.Sprintf("+%d", american)
	}
	return strconv.Itoa(american)
}

// FormatImplied renders an implied probability as display American odds.
func FormatImplied(probability float64) string {
	return FormatAmerican(ImpliedToAmerican(probability))
}

// ParseAmerican parses display American odds notation back to the signed
// integer, accepting an optional leading plus sign. American notation has
// no values between -100 and +100, so magnitudes below 100 are rejected.
func ParseAmerican(s string) (int, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "+")
	if trimmed == "" {
		return 0, fmt.Errorf("empty odds string")
	}
	american, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid american odds %q: %w", s, err)
	}
	if american > -100 && american < 100 {
		return 0, fmt.Errorf("invalid american odds %q: magnitude must be at least 100", s)
	}
	return american, nil
}
