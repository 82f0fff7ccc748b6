package utils

import "testing"

func TestNormalizeCompanyName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"japanese legal form", "株式会社SIM", "sim"},
		{"abbreviated form with honorific", "（株）SIM 御中", "sim"},
		{"reading in parentheses", "株式会社SIM（シム）", "sim"},
		{"english suffix", "Acme Co., Ltd.", "acme"},
		{"inc with spaces", "  Acme Inc.  ", "acme"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeCompanyName(tt.in); got != tt.want {
				t.Errorf("NormalizeCompanyName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCompanyNamesMatch(t *testing.T) {
	if !CompanyNamesMatch("（株）SIM 御中", "株式会社SIM（シム）") {
		t.Error("expected variants of the same company to match")
	}
	if !CompanyNamesMatch("Acme Co., Ltd.", "Acme") {
		t.Error("expected suffix variant to match")
	}
	if CompanyNamesMatch("Acme", "Umbrella") {
		t.Error("different companies must not match")
	}
	if CompanyNamesMatch("", "Acme") {
		t.Error("empty name must not match anything")
	}
}

func TestParseYearMonth(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2025/03/01", "2025-03"},
		{"2025/3/1", "2025-03"},
		{"2025/12/31", "2025-12"},
		{"garbage", ""},
		{"2025/13/01", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ParseYearMonth(tt.in); got != tt.want {
			t.Errorf("ParseYearMonth(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPreviousAndNextYearMonth(t *testing.T) {
	if got := PreviousYearMonth("2025-03"); got != "2025-02" {
		t.Errorf("PreviousYearMonth = %q", got)
	}
	if got := PreviousYearMonth("2025-01"); got != "2024-12" {
		t.Errorf("PreviousYearMonth january = %q", got)
	}
	if got := NextYearMonth("2025-12"); got != "2026-01" {
		t.Errorf("NextYearMonth december = %q", got)
	}
	if got := PreviousYearMonth("bogus"); got != "" {
		t.Errorf("PreviousYearMonth bogus = %q", got)
	}
}

func TestTargetPeriod(t *testing.T) {
	tests := []struct {
		name       string
		date       string
		closingDay string
		want       string
	}{
		{"before cutoff stays", "2025/02/06", "20", "2025-02"},
		{"after cutoff moves to next month", "2025/02/25", "20", "2025-03"},
		{"end of month closing", "2025/02/25", "eom", "2025-02"},
		{"empty closing defaults to delivery month", "2025/02/25", "", "2025-02"},
		{"december rollover", "2025/12/25", "20", "2026-01"},
		{"unparseable closing falls back", "2025/02/25", "whenever", "2025-02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TargetPeriod(tt.date, tt.closingDay); got != tt.want {
				t.Errorf("TargetPeriod(%q, %q) = %q, want %q", tt.date, tt.closingDay, got, tt.want)
			}
		})
	}
}
