package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuentaclara/statement-engine/internal/models"
)

const banorteCreditFixture = `BANORTE
Estado de Cuenta Tarjeta de Crédito
Número de Cuenta: 4915-XXXX-XXXX-9012
Fecha de corte: 13-NOV-2025
Adeudo del periodo anterior $1,000.00

COMPRAS Y CARGOS DIFERIDOS A MESES SIN INTERESES
25-NOV-2024 AMAZON MX $8,612.56 $0.00 $717.75 12/12 0.00%

CARGOS, ABONOS Y COMPRAS REGULARES (NO A MESES)
10-NOV-2025 10-NOV-2025 COMISION ANUALIDAD +$500.00
12-NOV-2025 13-NOV-2025 SPEI ENVIADO BCO
0002 BANAMEX REF 7632581
-$12,855.46
Total cargos + $500.00
Total abonos - $12,855.46
`

func TestBanorteCreditParse(t *testing.T) {
	p := &BanorteCreditParser{log: zerolog.Nop()}
	res, err := p.Parse(docFromText(banorteCreditFixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if res.AccountID != "4915-XXXX-XXXX-9012" {
		t.Errorf("AccountID = %q", res.AccountID)
	}
	if res.Header.CutoffDate == nil ||
		!res.Header.CutoffDate.Equal(time.Date(2025, time.November, 13, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("cutoff date = %v", res.Header.CutoffDate)
	}

	// The MSI table is informative here: plan summaries, not cash flows.
	if len(res.InstallmentEntries) != 1 {
		t.Fatalf("got %d installment entries, want 1", len(res.InstallmentEntries))
	}
	entry := res.InstallmentEntries[0]
	if entry.Description != "AMAZON MX (12/12)" {
		t.Errorf("entry description = %q", entry.Description)
	}
	if !entry.OriginalAmount.Equal(dec("8612.56")) || !entry.RequiredPayment.Equal(dec("717.75")) {
		t.Errorf("entry amounts = %+v", entry)
	}

	if len(res.Movements) != 2 {
		t.Fatalf("got %d movements, want 2: %+v", len(res.Movements), res.Movements)
	}

	charge := res.Movements[0]
	if charge.Direction != models.Debit {
		t.Errorf("'+' row direction = %q, want Cargo", charge.Direction)
	}
	if !charge.Amount.Equal(dec("500.00")) {
		t.Errorf("charge amount = %s", charge.Amount)
	}

	// The three-line record collapses into exactly one movement, with the
	// continuation text folded into the description.
	spei := res.Movements[1]
	if spei.Description != "SPEI ENVIADO BCO 0002 BANAMEX REF 7632581" {
		t.Errorf("merged description = %q", spei.Description)
	}
	if spei.Direction != models.Credit {
		t.Errorf("'-' amount direction = %q, want Abono", spei.Direction)
	}
	if !spei.Amount.Equal(dec("12855.46")) {
		t.Errorf("amount = %s, want 12855.46 (stored unsigned)", spei.Amount)
	}
	if spei.SettlementDate == nil ||
		!spei.SettlementDate.Equal(time.Date(2025, time.November, 13, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("settlement date = %v", spei.SettlementDate)
	}

	// Declared totals: cargos 500.00, abonos 12,855.46. Installment plan
	// entries contribute nothing.
	if !res.Reconciliation.Valid {
		t.Errorf("expected a valid reconciliation, got %+v", res.Reconciliation)
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %+v", res.Diagnostics)
	}
}

// A record start whose amount never arrives is flushed as a diagnostic at
// the section boundary, yielding no movement.
func TestBanorteCreditUnresolvedRecord(t *testing.T) {
	fixture := strings.Replace(banorteCreditFixture, "-$12,855.46\n", "", 1)

	p := &BanorteCreditParser{log: zerolog.Nop()}
	res, err := p.Parse(docFromText(fixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(res.Movements) != 1 {
		t.Fatalf("got %d movements, want only the single-line charge", len(res.Movements))
	}

	found := false
	for _, d := range res.Diagnostics {
		if d.Code == models.DiagUnresolvedRecord && strings.Contains(d.Detail, "SPEI ENVIADO") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an unresolved-record diagnostic, got %+v", res.Diagnostics)
	}
}
