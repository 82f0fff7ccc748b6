package utils

import (
	"strconv"
	"strings"
)

// ParseAmount converts a spreadsheet cell value into integer minor units.
// Staff hand-edit the billing workbook, so values arrive with commas,
// currency symbols or stray spaces; anything unparseable counts as zero.
func ParseAmount(cell string) int64 {
	cleaned := strings.NewReplacer(",", "", " ", "", "　", "", "¥", "", "円", "").Replace(cell)
	if cleaned == "" {
		return 0
	}
	if v, err := strconv.ParseInt(cleaned, 10, 64); err == nil {
		return v
	}
	// Hand-edited cells sometimes carry a decimal point ("15000.0").
	if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return int64(f)
	}
	return 0
}

// FormatAmount renders minor units with thousands separators for sheet cells.
func FormatAmount(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
