package mpesa

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// timestampLayout is Daraja's fixed-width transaction time format.
const timestampLayout = "20060102150405"

// nairobi is the provider's wall-clock zone. Timestamps carry no offset.
var nairobi = time.FixedZone("EAT", 3*60*60)

// ParseTimestamp parses a Daraja YYYYMMDDHHMMSS timestamp. Malformed input
// degrades to the current time rather than failing the callback.
func ParseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if len(raw) != len(timestampLayout) {
		return time.Now()
	}
	t, err := time.ParseInLocation(timestampLayout, raw, nairobi)
	if err != nil {
		return time.Now()
	}
	return t
}

// NormalizePhone canonicalizes a Kenyan MSISDN to 2547XXXXXXXX /
// 2541XXXXXXXX form. Values that do not look like a genuine MSISDN
// (hashed callbacks, unexpected lengths, embedded non-digits) are passed
// through verbatim; the caller keeps the raw value for audit either way.
func NormalizePhone(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}

	candidate := strings.TrimPrefix(s, "+")
	if !digitsOnly(candidate) {
		return s
	}

	switch {
	case len(candidate) == 12 && strings.HasPrefix(candidate, "254"):
		return candidate
	case len(candidate) == 10 && (strings.HasPrefix(candidate, "07") || strings.HasPrefix(candidate, "01")):
		return "254" + candidate[1:]
	case len(candidate) == 9 && (strings.HasPrefix(candidate, "7") || strings.HasPrefix(candidate, "1")):
		return "254" + candidate
	}
	return s
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseAmount converts a provider decimal amount string (e.g. "100.00")
// to minor units. Returns 0 for unparseable input.
func ParseAmount(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}

// AmountToMinor converts a numeric JSON amount to minor units.
func AmountToMinor(f float64) int64 {
	return int64(math.Round(f * 100))
}
