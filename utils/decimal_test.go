package utils

import (
	"encoding/json"
	"testing"
)

func TestParseAmount_AcceptsFormattedStrings(t *testing.T) {
	cases := []struct {
		in       interface{}
		expected string
	}{
		{"7500", "7500"},
		{"7,500", "7500"},
		{"KES 7,500.00", "7500"},
		{"  Ksh 1,234.50  ", "1234.5"},
		{"-20", "-20"},
		{json.Number("6000"), "6000"},
		{float64(5000), "5000"},
		{int64(12), "12"},
	}
	for _, tc := range cases {
		d, err := ParseAmount(tc.in)
		if err != nil {
			t.Fatalf("ParseAmount(%v) error: %v", tc.in, err)
		}
		if d.String() != tc.expected {
			t.Fatalf("ParseAmount(%v) expected %s, got %s", tc.in, tc.expected, d.String())
		}
	}
}

func TestParseAmount_RejectsGarbage(t *testing.T) {
	for _, in := range []interface{}{"", "KES", nil, true} {
		if _, err := ParseAmount(in); err == nil {
			t.Fatalf("ParseAmount(%v) expected error", in)
		}
	}
}
