package timex

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// InstantLayout renders UTC instants with millisecond precision. Strings in
// this layout sort in time order.
const InstantLayout = "2006-01-02T15:04:05.000Z"

// EpochInstant is the pull cursor used before the first successful sync.
const EpochInstant = "1970-01-01T00:00:00.000Z"

// FormatInstant renders t in InstantLayout.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(InstantLayout)
}

// Now is FormatInstant(time.Now()).
func Now() string {
	return FormatInstant(time.Now())
}

var parseLayouts = []string{
	time.RFC3339Nano,
	InstantLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseInstant accepts the string shapes records arrive in.
func ParseInstant(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeDate renders value as a canonical instant string.
//
// Accepted inputs are time.Time (and pointers to it), epoch milliseconds as
// any integer or float type or json.Number, and parseable strings. Nil, empty
// strings, zero times and anything unparseable yield fallback.
//
//	NormalizeDate("", fb)                    == fb
//	NormalizeDate(time.Date(2024, 1, 1, ...)) == "2024-01-01T00:00:00.000Z"
//	NormalizeDate(int64(1704067200000), fb)  == "2024-01-01T00:00:00.000Z"
//	NormalizeDate("invalid-date", fb)        == fb
func NormalizeDate(value any, fallback string) string {
	switch v := value.(type) {
	case nil:
		return fallback
	case time.Time:
		if v.IsZero() {
			return fallback
		}
		return FormatInstant(v)
	case *time.Time:
		if v == nil {
			return fallback
		}
		return NormalizeDate(*v, fallback)
	case string:
		t, ok := ParseInstant(v)
		if !ok {
			return fallback
		}
		return FormatInstant(t)
	case *string:
		if v == nil {
			return fallback
		}
		return NormalizeDate(*v, fallback)
	case json.Number:
		if ms, err := v.Int64(); err == nil {
			return fromMillis(ms)
		}
		f, err := v.Float64()
		if err != nil {
			return fallback
		}
		return NormalizeDate(f, fallback)
	case int:
		return fromMillis(int64(v))
	case int32:
		return fromMillis(int64(v))
	case int64:
		return fromMillis(v)
	case uint64:
		if v > math.MaxInt64 {
			return fallback
		}
		return fromMillis(int64(v))
	case float32:
		return NormalizeDate(float64(v), fallback)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fallback
		}
		return fromMillis(int64(v))
	default:
		return fallback
	}
}

func fromMillis(ms int64) string {
	return FormatInstant(time.UnixMilli(ms))
}

// MaxInstant returns the later of two canonical instants; empty loses.
func MaxInstant(a, b string) string {
	if a == "" {
		return b
	}
	if b > a {
		return b
	}
	return a
}
