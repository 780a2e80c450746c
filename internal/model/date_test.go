package model

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"2026-03-01", false},
		{"2026-3-1", true},
		{"not-a-date", true},
		{"", true},
		{"2026-13-40", true},
	}

	for _, tt := range tests {
		_, err := ParseDate(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}

func TestDateArithmetic(t *testing.T) {
	d := Date("2026-03-01")

	if got := d.AddDays(3); got != Date("2026-03-04") {
		t.Errorf("AddDays(3) = %s, want 2026-03-04", got)
	}
	if got := Date("2026-03-04").DaysSince(d); got != 3 {
		t.Errorf("DaysSince = %d, want 3", got)
	}
	if !d.Before(Date("2026-03-02")) {
		t.Error("expected 2026-03-01 before 2026-03-02")
	}
	if !Date("2026-03-02").After(d) {
		t.Error("expected 2026-03-02 after 2026-03-01")
	}

	// Month boundary.
	if got := Date("2026-02-28").AddDays(1); got != Date("2026-03-01") {
		t.Errorf("AddDays over month boundary = %s, want 2026-03-01", got)
	}
}

func TestDateOf(t *testing.T) {
	instant := time.Date(2026, 5, 17, 23, 45, 0, 0, time.UTC)
	if got := DateOf(instant); got != Date("2026-05-17") {
		t.Errorf("DateOf = %s, want 2026-05-17", got)
	}
}
