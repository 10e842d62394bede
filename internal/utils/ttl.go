package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseTTL reads token lifetimes such as "15m", "12h" or "7d": a positive
// integer followed by d (days), h (hours), m (minutes) or s (seconds).
// Anything else is handed to time.ParseDuration, so "1h30m" also works.
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid ttl %q", s)
	}
	unit := map[byte]time.Duration{
		'd': 24 * time.Hour,
		'h': time.Hour,
		'm': time.Minute,
		's': time.Second,
	}[s[len(s)-1]]
	if unit != 0 {
		if n, err := strconv.Atoi(s[:len(s)-1]); err == nil {
			if n <= 0 {
				return 0, fmt.Errorf("invalid ttl %q: must be positive", s)
			}
			if int64(n) > math.MaxInt64/int64(unit) {
				return 0, fmt.Errorf("invalid ttl %q: out of range", s)
			}
			return time.Duration(n) * unit, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid ttl %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid ttl %q: must be positive", s)
	}
	return d, nil
}
