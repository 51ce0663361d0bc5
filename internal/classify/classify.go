// Package classify resolves the direction (Abono/Cargo) of movement
// candidates. Strategies are tried in order: explicit sign or dedicated
// column at the grammar level, then the keyword heuristic here, then the
// combinatorial subset-sum fallback against a declared total.
package classify

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cuentaclara/statement-engine/internal/models"
)

// Direction-indicating vocabulary seen on checking-account descriptions.
// Order within each list does not matter; the debit list is checked first
// because "TRANSFERENCIA A" must win over the bare "TRANSFERENCIA" prefix
// of "TRANSFERENCIA DE".
var (
	debitKeywords = []string{
		"PAGO", "RETIRO", "CARGO", "TRANSFERENCIA A", "COMISION",
		"COMISIÓN", "INTERES", "INTERÉS", "COMPRA", "IVA",
	}
	creditKeywords = []string{
		"DEPOS", "DEPÓS", "ABONO", "NOMINA", "NÓMINA",
		"TRANSFERENCIA DE", "TRASPASO DE", "RENDIMIENTO",
	}
)

// ByKeywords classifies a description by direction vocabulary. The second
// return is false when no keyword from either list appears.
func ByKeywords(description string) (models.Direction, bool) {
	upper := strings.ToUpper(description)
	for _, kw := range creditKeywords {
		if strings.Contains(upper, kw) {
			return models.Credit, true
		}
	}
	for _, kw := range debitKeywords {
		if strings.Contains(upper, kw) {
			return models.Debit, true
		}
	}
	return "", false
}

// balanceTolerance absorbs rounding on printed running balances.
var balanceTolerance = decimal.NewFromFloat(0.05)

// ByBalanceProgression decides direction from the printed running balance:
// if previous − amount lands on the new balance the row is a debit, if
// previous + amount lands there it is a credit. Returns false when neither
// (or both) explanations fit within tolerance.
func ByBalanceProgression(prev, amount, balance decimal.Decimal) (models.Direction, bool) {
	debitDiff := prev.Sub(amount).Sub(balance).Abs()
	creditDiff := prev.Add(amount).Sub(balance).Abs()

	debitOK := debitDiff.LessThanOrEqual(balanceTolerance)
	creditOK := creditDiff.LessThanOrEqual(balanceTolerance)

	switch {
	case debitOK && !creditOK:
		return models.Debit, true
	case creditOK && !debitOK:
		return models.Credit, true
	}
	return "", false
}
