package mpesa

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	got := ParseTimestamp("20240314153045")
	want := time.Date(2024, 3, 14, 15, 30, 45, 0, nairobi)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestParseTimestampMalformedDegradesToNow(t *testing.T) {
	before := time.Now()
	for _, raw := range []string{"", "2024", "not-a-date-at-all", "20241332990000"} {
		got := ParseTimestamp(raw)
		if got.Before(before.Add(-time.Minute)) || got.After(time.Now().Add(time.Minute)) {
			t.Errorf("ParseTimestamp(%q) should degrade to now, got %v", raw, got)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"254712345678", "254712345678"},
		{"+254712345678", "254712345678"},
		{"0712345678", "254712345678"},
		{"0112345678", "254112345678"},
		{"712345678", "254712345678"},
		// Hashed MSISDN from the provider: preserved verbatim.
		{"2ab4f0c8d9e1a7b3c5d6e7f8a9b0c1d2", "2ab4f0c8d9e1a7b3c5d6e7f8a9b0c1d2"},
		// Unexpected lengths: preserved verbatim.
		{"12345", "12345"},
		{"", ""},
	}

	for _, c := range cases {
		if got := NormalizePhone(c.in); got != c.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"100.00", 10000},
		{"600", 60000},
		{"0.50", 50},
		{"1250.75", 125075},
		{"", 0},
		{"abc", 0},
	}

	for _, c := range cases {
		if got := ParseAmount(c.in); got != c.want {
			t.Errorf("ParseAmount(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}
