package parser

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuentaclara/statement-engine/internal/models"
)

func scotiaDebitDoc() *models.Document {
	headerPage := models.Page{
		Number: 1,
		Lines: []string{
			"Scotiabank Inverlat, S.A.",
			"Cuenta Unica",
			"Cuenta: 00105547891",
			"CLABE 044180001055478913",
			"Periodo 01-SEP-24/30-SEP-24",
			"Fecha de corte 30-SEP-2024",
			"Moneda MXN",
			"Saldo inicial $10,000.00",
			"(+) Depósitos $5,000.00",
			"(-) Retiros $1,000.00",
			"(=) Saldo final de la cuenta = $14,000.00",
		},
	}

	gridPage := models.Page{
		Number: 2,
		Lines:  []string{"Detalle de tus movimientos"},
		Tokens: append(gridHeaderTokens(),
			tok("24", 8, 20),
			tok("SEP", 22, 20),
			tok("DEPOSITO", 60, 20),
			tok("EFECTIVO", 75, 20),
			tok("5,000.00", 250, 20),
			tok("15,000.00", 390, 20),
			tok("25", 8, 40),
			tok("SEP", 22, 40),
			tok("RETIRO", 60, 40),
			tok("CAJERO", 80, 40),
			tok("SUC", 150, 40),
			tok("0123", 165, 40),
			tok("1,000.00", 320, 40),
			tok("14,000.00", 390, 40),
		),
	}

	return &models.Document{Pages: []models.Page{headerPage, gridPage}}
}

func TestScotiaDebitParse(t *testing.T) {
	p := &ScotiaDebitParser{log: zerolog.Nop()}
	res, err := p.Parse(scotiaDebitDoc())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if res.AccountID != "00105547891" {
		t.Errorf("AccountID = %q", res.AccountID)
	}
	if res.Header.CLABE != "044180001055478913" {
		t.Errorf("CLABE = %q", res.Header.CLABE)
	}
	if res.Header.PreviousBalance == nil || !res.Header.PreviousBalance.Equal(dec("10000.00")) {
		t.Errorf("previous balance = %v", res.Header.PreviousBalance)
	}
	if res.Header.FinalBalance == nil || !res.Header.FinalBalance.Equal(dec("14000.00")) {
		t.Errorf("final balance = %v", res.Header.FinalBalance)
	}

	if len(res.Movements) != 2 {
		t.Fatalf("got %d movements, want 2: %+v", len(res.Movements), res.Movements)
	}

	deposit := res.Movements[0]
	if deposit.Direction != models.Credit {
		t.Errorf("deposit direction = %q, want Abono", deposit.Direction)
	}
	if !deposit.Amount.Equal(dec("5000.00")) {
		t.Errorf("deposit amount = %s", deposit.Amount)
	}
	wantDate := time.Date(2024, time.September, 24, 0, 0, 0, 0, time.UTC)
	if !deposit.OperationDate.Equal(wantDate) {
		t.Errorf("deposit date = %s, want %s", deposit.OperationDate, wantDate)
	}
	if deposit.BalanceAfter == nil || !deposit.BalanceAfter.Equal(dec("15000.00")) {
		t.Errorf("deposit balance = %v", deposit.BalanceAfter)
	}

	withdrawal := res.Movements[1]
	if withdrawal.Direction != models.Debit {
		t.Errorf("withdrawal direction = %q, want Cargo", withdrawal.Direction)
	}
	if withdrawal.Description != "RETIRO CAJERO SUC 0123" {
		t.Errorf("withdrawal description = %q", withdrawal.Description)
	}

	if !res.Reconciliation.Valid {
		t.Errorf("expected a valid reconciliation, got %+v", res.Reconciliation)
	}
}

// A page whose table header cannot be located contributes a per-page
// diagnostic; the document parse keeps going.
func TestScotiaDebitColumnDetectionFailure(t *testing.T) {
	doc := scotiaDebitDoc()
	doc.Pages = append(doc.Pages, models.Page{
		Number: 3,
		Lines:  []string{"Detalle de tus movimientos"},
		Tokens: []models.Token{tok("texto", 10, 10), tok("suelto", 60, 10)},
	})

	p := &ScotiaDebitParser{log: zerolog.Nop()}
	res, err := p.Parse(doc)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(res.Movements) != 2 {
		t.Errorf("got %d movements, want the 2 from the healthy page", len(res.Movements))
	}

	found := false
	for _, d := range res.Diagnostics {
		if d.Code == models.DiagColumnDetectionFailure && d.Page == 3 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a column-detection-failure diagnostic for page 3, got %+v", res.Diagnostics)
	}
}

// A row with both money cells populated falls back to keywords, and the
// printed running balance confirms the amount.
func TestScotiaDebitAmbiguousRowKeywordFallback(t *testing.T) {
	doc := scotiaDebitDoc()
	doc.Pages[1].Tokens = append(doc.Pages[1].Tokens,
		tok("26", 8, 60),
		tok("SEP", 22, 60),
		tok("DEPOSITO", 60, 60),
		tok("MIXTO", 80, 60),
		tok("300.00", 250, 60),
		tok("50.00", 320, 60),
		tok("14,300.00", 390, 60),
	)

	p := &ScotiaDebitParser{log: zerolog.Nop()}
	res, err := p.Parse(doc)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(res.Movements) != 3 {
		t.Fatalf("got %d movements, want 3", len(res.Movements))
	}

	mixed := res.Movements[2]
	if mixed.Direction != models.Credit {
		t.Errorf("direction = %q, want Abono via the DEPOSITO keyword", mixed.Direction)
	}
	if !mixed.Amount.Equal(dec("300.00")) {
		t.Errorf("amount = %s, want the deposit cell 300.00", mixed.Amount)
	}
}
