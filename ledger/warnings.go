package ledger

import "fmt"

// NoteWarnings checks the soft arithmetic invariants of one extracted note.
// Violations are surfaced to the caller for confirmation, never corrected:
// the extraction boundary owns the numbers.
func NoteWarnings(n NoteInput, taxRatePct int64) []string {
	var warnings []string

	var itemSum int64
	for i, item := range n.Items {
		if int64(item.Quantity)*item.UnitPrice != item.Amount {
			warnings = append(warnings, fmt.Sprintf(
				"slip %s item %d: amount %d != quantity %d x unit_price %d",
				n.SlipNumber, i, item.Amount, item.Quantity, item.UnitPrice))
		}
		itemSum += item.Amount
	}

	if len(n.Items) > 0 && itemSum != n.Subtotal {
		warnings = append(warnings, fmt.Sprintf(
			"slip %s: subtotal %d != item sum %d", n.SlipNumber, n.Subtotal, itemSum))
	}
	if n.Subtotal+n.Tax != n.Total {
		warnings = append(warnings, fmt.Sprintf(
			"slip %s: total %d != subtotal %d + tax %d", n.SlipNumber, n.Total, n.Subtotal, n.Tax))
	}
	if TaxMismatch(n.Subtotal, n.Tax, taxRatePct) {
		warnings = append(warnings, fmt.Sprintf(
			"slip %s: tax %d differs from %d%% of subtotal %d",
			n.SlipNumber, n.Tax, taxRatePct, n.Subtotal))
	}

	return warnings
}
