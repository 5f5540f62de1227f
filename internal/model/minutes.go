package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Minutes is an auto-lock timeout expressed in minutes. Zero disables the
// timer.
//
// Older clients stored the timeout as a string ("15" instead of 15), so
// Minutes decodes from either a JSON number or a numeric string. Anything
// that does not coerce to a finite, non-negative number becomes zero.
type Minutes float64

// MaxMinutes is the longest timeout a time.Duration can hold, about 292
// years. Longer timeouts are capped to it.
const MaxMinutes Minutes = Minutes(math.MaxInt64 / int64(time.Minute))

// Duration converts m to a time.Duration, saturating at MaxMinutes.
func (m Minutes) Duration() time.Duration {
	if m >= MaxMinutes {
		return time.Duration(MaxMinutes) * time.Minute
	}
	return time.Duration(float64(m) * float64(time.Minute))
}

// IsZero reports whether the timer is disabled.
func (m Minutes) IsZero() bool { return m == 0 }

func (m Minutes) String() string {
	return strconv.FormatFloat(float64(m), 'f', -1, 64)
}

// UnmarshalJSON accepts numbers, numeric strings and null.
func (m *Minutes) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decoding minutes: %w", err)
	}
	*m = CoerceMinutes(v)
	return nil
}

// ParseMinutes coerces a user-supplied string to Minutes. It never fails:
// malformed input yields zero and ok=false so callers can warn.
func ParseMinutes(s string) (m Minutes, ok bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return clampMinutes(f)
}

// CoerceMinutes converts a decoded JSON value (or a Go numeric) to Minutes.
func CoerceMinutes(v any) Minutes {
	var m Minutes
	switch x := v.(type) {
	case Minutes:
		m, _ = clampMinutes(float64(x))
	case float64:
		m, _ = clampMinutes(x)
	case float32:
		m, _ = clampMinutes(float64(x))
	case int:
		m, _ = clampMinutes(float64(x))
	case int64:
		m, _ = clampMinutes(float64(x))
	case json.Number:
		m, _ = ParseMinutes(x.String())
	case string:
		m, _ = ParseMinutes(x)
	}
	return m
}

func clampMinutes(f float64) (Minutes, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	if f > float64(MaxMinutes) {
		return MaxMinutes, true
	}
	return Minutes(f), true
}
