package ledger

import "billing-ledger-backend/models"

// Balance calculation. Pure, deterministic, integer minor-currency units
// throughout; the engine trusts stored tax values and never re-derives them.

// DefaultTaxRatePct is the consumption tax rate used for soft warnings.
// Tax is computed once, at note creation, by the extraction boundary;
// downstream code only flags deviations.
const DefaultTaxRatePct = 10

// Accrue sums subtotal and tax across the period's notes.
func Accrue(notes []models.DeliveryNote) (sales, tax int64) {
	for _, n := range notes {
		sales += n.Subtotal
		tax += n.Tax
	}
	return sales, tax
}

// CarryForward computes the balance rolled into a new period:
// previous_amount - payment_received. When negative balances are
// disallowed the value clamps to zero and clamped reports that the
// clamp fired, so callers can surface it instead of silently absorbing
// an overpayment.
func CarryForward(previousAmount, paymentReceived int64, allowNegative bool) (carried int64, clamped bool) {
	carried = previousAmount - paymentReceived
	if carried < 0 && !allowNegative {
		return 0, true
	}
	return carried, false
}

// CurrentBalance is the amount billed this period once entries are recorded.
func CurrentBalance(carriedOver, salesAmount, taxAmount int64) int64 {
	return carriedOver + salesAmount + taxAmount
}

// TaxForSubtotal is floor(subtotal × rate%) for non-negative subtotals.
func TaxForSubtotal(subtotal int64, ratePct int64) int64 {
	return subtotal * ratePct / 100
}

// TaxMismatch reports whether a stored tax value deviates from
// floor(subtotal × rate%). A soft signal only.
func TaxMismatch(subtotal, tax int64, ratePct int64) bool {
	return tax != TaxForSubtotal(subtotal, ratePct)
}
