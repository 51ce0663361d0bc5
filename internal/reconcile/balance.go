package reconcile

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cuentaclara/statement-engine/internal/models"
)

// BalanceAt reconstructs an account's balance at an arbitrary date from
// period anchor balances and the recorded movements.
//
// The bracketing period is the one whose prior cutoff is strictly before
// the target and whose own cutoff is on or after it; its movements are
// replayed in date order from the period's opening balance, up to but not
// including the target date. A target exactly on a cutoff date returns
// that period's closing anchor unchanged, so reconstruction at a cutoff is
// idempotent. A target past every anchor extrapolates from the latest
// closing balance; with no anchors at all the result is zero and ok=false.
func BalanceAt(anchors []models.AccountBalancePeriod, movements []models.Movement, target time.Time) (decimal.Decimal, bool) {
	if len(anchors) == 0 {
		return decimal.Zero, false
	}

	sorted := make([]models.AccountBalancePeriod, len(anchors))
	copy(sorted, anchors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CutoffDate.Before(sorted[j].CutoffDate)
	})

	for _, a := range sorted {
		if target.Equal(a.CutoffDate) {
			return a.ClosingBalance, true
		}
	}

	// Target before or inside a known period: replay that period from its
	// opening balance.
	for i, a := range sorted {
		if a.CutoffDate.After(target) {
			return replay(a.OpeningBalance, movements, periodStart(sorted, i), target), true
		}
	}

	// Target after every anchor: extrapolate from the latest closing
	// balance using movements recorded after its cutoff.
	last := sorted[len(sorted)-1]
	return replay(last.ClosingBalance, movements, last.CutoffDate, target), true
}

// periodStart returns the previous anchor's cutoff, or the zero time for
// the earliest known period.
func periodStart(sorted []models.AccountBalancePeriod, i int) time.Time {
	if i == 0 {
		return time.Time{}
	}
	return sorted[i-1].CutoffDate
}

// replay applies movements with from < date < to in chronological order:
// +amount for credits, −amount for debits.
func replay(opening decimal.Decimal, movements []models.Movement, from, to time.Time) decimal.Decimal {
	inRange := make([]models.Movement, 0, len(movements))
	for _, m := range movements {
		if m.OperationDate.After(from) && m.OperationDate.Before(to) {
			inRange = append(inRange, m)
		}
	}
	sort.SliceStable(inRange, func(i, j int) bool {
		return inRange[i].OperationDate.Before(inRange[j].OperationDate)
	})

	balance := opening
	for _, m := range inRange {
		switch m.Direction {
		case models.Credit:
			balance = balance.Add(m.Amount)
		case models.Debit:
			balance = balance.Sub(m.Amount)
		}
	}
	return balance
}
