package parser

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/cuentaclara/statement-engine/internal/models"
)

const bbvaCreditFixture = `BBVA MEXICO, S.A.
Estado de Cuenta Tarjeta de Crédito
Tarjeta Digital ***1234

COMPRAS Y CARGOS DIFERIDOS A MESES SIN INTERESES
Fecha de la compra Descripción del movimiento Monto original Saldo pendiente Pago requerido Pago Tasa
14-jul-2024 LIVERPOOL POLANCO $4,200.00 $2,100.00 $350.00 6 de 12 0.00%
TOTAL CARGOS DIFERIDOS $350.00

CARGOS,COMPRAS Y ABONOS REGULARES
02-ago-2024 03-ago-2024 BMOVIL.PAGO TDC - $7,643.10
05-ago-2024 06-ago-2024 UBER EATS MX + $289.00
TOTAL CARGOS $639.00
`

func TestBBVACreditParse(t *testing.T) {
	p := &BBVACreditParser{log: zerolog.Nop()}
	res, err := p.Parse(docFromText(bbvaCreditFixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if res.AccountID != "****1234" {
		t.Errorf("AccountID = %q, want ****1234", res.AccountID)
	}
	if len(res.Movements) != 3 {
		t.Fatalf("got %d movements, want 3: %+v", len(res.Movements), res.Movements)
	}

	msi := res.Movements[0]
	if msi.Category != models.CategoryInstallment {
		t.Errorf("category = %q, want MSI", msi.Category)
	}
	if msi.Direction != models.Debit {
		t.Errorf("installment direction = %q, want Cargo", msi.Direction)
	}
	// The cash flow is the required payment; principal and remaining
	// balance stay in the metadata.
	if !msi.Amount.Equal(dec("350.00")) {
		t.Errorf("installment amount = %s, want the required payment 350.00", msi.Amount)
	}
	if msi.Installment == nil {
		t.Fatal("installment metadata missing")
	}
	if !msi.Installment.OriginalAmount.Equal(dec("4200.00")) {
		t.Errorf("original amount = %s", msi.Installment.OriginalAmount)
	}
	if !msi.Installment.RemainingBalance.Equal(dec("2100.00")) {
		t.Errorf("remaining balance = %s", msi.Installment.RemainingBalance)
	}
	if msi.Installment.PaymentIndex != 6 || msi.Installment.TotalPayments != 12 {
		t.Errorf("payment counter = %d/%d, want 6/12",
			msi.Installment.PaymentIndex, msi.Installment.TotalPayments)
	}
	if msi.Description != "LIVERPOOL POLANCO (6 de 12)" {
		t.Errorf("description = %q", msi.Description)
	}

	payment := res.Movements[1]
	if payment.Direction != models.Credit {
		t.Errorf("'-' row direction = %q, want Abono", payment.Direction)
	}
	if !payment.Amount.Equal(dec("7643.10")) {
		t.Errorf("payment amount = %s", payment.Amount)
	}

	charge := res.Movements[2]
	if charge.Direction != models.Debit {
		t.Errorf("'+' row direction = %q, want Cargo", charge.Direction)
	}
	if charge.SettlementDate == nil {
		t.Error("regular row must carry its settlement date")
	}
}

// Rows outside any section are ignored, never guessed at.
func TestBBVACreditIgnoresRowsOutsideSections(t *testing.T) {
	text := `BBVA
02-ago-2024 03-ago-2024 UBER EATS MX + $289.00
`
	p := &BBVACreditParser{log: zerolog.Nop()}
	res, err := p.Parse(docFromText(text))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(res.Movements) != 0 {
		t.Errorf("got %d movements, want 0", len(res.Movements))
	}
}
