// Package reconcile checks a parsed movement set against the statement's
// self-reported totals and reconstructs running balances from anchor
// balances.
package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/cuentaclara/statement-engine/internal/models"
)

// Tolerance absorbs the rounding noise of printed statement totals. Real
// discrepancies are orders of magnitude larger.
var Tolerance = decimal.NewFromFloat(0.10)

// Validate computes per-direction sums and the accounting identity
// previous + credits − debits, comparing each against the header. The
// report is advisory: mismatches are surfaced, never corrected, and a
// quantity the header does not report counts as matching.
func Validate(header models.StatementHeader, movements []models.Movement) models.ReconciliationReport {
	report := models.ReconciliationReport{
		SumCredits: decimal.Zero,
		SumDebits:  decimal.Zero,
	}

	for _, m := range movements {
		switch m.Direction {
		case models.Credit:
			report.SumCredits = report.SumCredits.Add(m.Amount)
		case models.Debit:
			report.SumDebits = report.SumDebits.Add(m.Amount)
		}
	}

	report.CreditsMatch = true
	if header.TotalCredits != nil {
		diff := report.SumCredits.Sub(*header.TotalCredits)
		report.CreditsDiff = &diff
		report.CreditsMatch = diff.Abs().LessThanOrEqual(Tolerance)
	}

	report.DebitsMatch = true
	if header.TotalDebits != nil {
		diff := report.SumDebits.Sub(*header.TotalDebits)
		report.DebitsDiff = &diff
		report.DebitsMatch = diff.Abs().LessThanOrEqual(Tolerance)
	}

	report.FinalMatch = true
	if header.PreviousBalance != nil {
		expected := header.PreviousBalance.Add(report.SumCredits).Sub(report.SumDebits)
		report.ExpectedFinal = &expected
		if header.FinalBalance != nil {
			diff := expected.Sub(*header.FinalBalance)
			report.FinalDiff = &diff
			report.FinalMatch = diff.Abs().LessThanOrEqual(Tolerance)
		}
	}

	report.Valid = report.CreditsMatch && report.DebitsMatch && report.FinalMatch
	return report
}
