package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Legal forms and honorifics that appear on extracted delivery notes but
	// not necessarily on the billing sheet (or vice versa).
	legalFormRe   = regexp.MustCompile(`(?i)株式会社|有限会社|\(株\)|（株）|\(有\)|（有）|co\.,?\s*ltd\.?|inc\.?|ltd\.?|llc|gmbh|corp\.?`)
	honorificRe   = regexp.MustCompile(`御中|様|殿`)
	parentheticRe = regexp.MustCompile(`[（(【].*?[）)】]`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// NormalizeCompanyName strips legal forms, honorifics, parenthesized
// readings and whitespace so that "（株）SIM 御中" and "株式会社SIM（シム）"
// compare equal. The result is lowercased for ASCII names.
func NormalizeCompanyName(name string) string {
	if name == "" {
		return ""
	}
	name = legalFormRe.ReplaceAllString(name, "")
	name = honorificRe.ReplaceAllString(name, "")
	name = parentheticRe.ReplaceAllString(name, "")
	name = whitespaceRe.ReplaceAllString(name, "")
	return strings.ToLower(strings.TrimSpace(name))
}

// CompanyNamesMatch reports whether two company names refer to the same
// company after normalization. Substring match in either direction, same as
// the billing sheet's row lookup.
func CompanyNamesMatch(a, b string) bool {
	na, nb := NormalizeCompanyName(a), NormalizeCompanyName(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// ParseYearMonth derives a YYYY-MM period from a YYYY/MM/DD date string.
// Returns "" when the date cannot be parsed.
func ParseYearMonth(date string) string {
	parts := strings.Split(date, "/")
	if len(parts) < 2 {
		return ""
	}
	year, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return ""
	}
	month, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || month < 1 || month > 12 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", year, month)
}

// ValidYearMonth reports whether s is a YYYY-MM period string.
func ValidYearMonth(s string) bool {
	parts := strings.Split(s, "-")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return false
	}
	if _, err := strconv.Atoi(parts[0]); err != nil {
		return false
	}
	m, err := strconv.Atoi(parts[1])
	return err == nil && m >= 1 && m <= 12
}

// PreviousYearMonth returns the period immediately before ym (YYYY-MM).
func PreviousYearMonth(ym string) string {
	if !ValidYearMonth(ym) {
		return ""
	}
	year, _ := strconv.Atoi(ym[:4])
	month, _ := strconv.Atoi(ym[5:])
	if month == 1 {
		year, month = year-1, 12
	} else {
		month--
	}
	return fmt.Sprintf("%04d-%02d", year, month)
}

// NextYearMonth returns the period immediately after ym (YYYY-MM).
func NextYearMonth(ym string) string {
	if !ValidYearMonth(ym) {
		return ""
	}
	year, _ := strconv.Atoi(ym[:4])
	month, _ := strconv.Atoi(ym[5:])
	if month == 12 {
		year, month = year+1, 1
	} else {
		month++
	}
	return fmt.Sprintf("%04d-%02d", year, month)
}

// TargetPeriod assigns a delivery date to a billing period based on the
// company's closing day. closingDay is "eom" (end of month) or a
// day-of-month like "20": deliveries after the closing day book into the
// following month. Unparseable input falls back to the delivery month.
func TargetPeriod(date, closingDay string) string {
	ym := ParseYearMonth(date)
	if ym == "" {
		return ""
	}
	closingDay = strings.TrimSpace(strings.ToLower(closingDay))
	if closingDay == "" || closingDay == "eom" {
		return ym
	}
	cutoff, err := strconv.Atoi(strings.TrimSuffix(closingDay, "日"))
	if err != nil || cutoff < 1 || cutoff > 31 {
		return ym
	}
	parts := strings.Split(date, "/")
	if len(parts) < 3 {
		return ym
	}
	day, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return ym
	}
	if day > cutoff {
		return NextYearMonth(ym)
	}
	return ym
}
