package attendance

import (
	"testing"
	"time"
)

func TestRecord_Approved(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"approved", true},
		{"Approved", true},
		{" approved ", true},
		{"pending", false},
		{"rejected", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			r := Record{Status: tt.status}
			if got := r.Approved(); got != tt.want {
				t.Errorf("Approved() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecord_WorkHours(t *testing.T) {
	r := Record{WorkMinutes: 510}
	if got := r.WorkHours(); got != 8.5 {
		t.Errorf("WorkHours() = %v, want 8.5", got)
	}
}

func TestUser_DisplayName(t *testing.T) {
	if got := (User{Name: "Sari"}).DisplayName(); got != "Sari" {
		t.Errorf("DisplayName() = %q, want %q", got, "Sari")
	}
	if got := (User{Name: "  "}).DisplayName(); got != "Unknown" {
		t.Errorf("DisplayName() = %q, want %q", got, "Unknown")
	}
}

func TestFormatTimestamp(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	ts := time.Date(2025, 3, 4, 0, 15, 0, 0, time.UTC)

	tests := []struct {
		name string
		loc  *time.Location
		want string
	}{
		{"nil location is UTC", nil, "2025-03-04 00:15:00"},
		{"utc", time.UTC, "2025-03-04 00:15:00"},
		{"offset zone", jakarta, "2025-03-04 07:15:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatTimestamp(ts, tt.loc); got != tt.want {
				t.Errorf("FormatTimestamp() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStringPtr(t *testing.T) {
	if StringPtr("") != nil {
		t.Error("StringPtr(\"\") should be nil")
	}
	if p := StringPtr("2025-01-06 07:00:00"); p == nil || *p != "2025-01-06 07:00:00" {
		t.Errorf("StringPtr() = %v", p)
	}
}
