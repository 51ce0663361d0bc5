package classify

import (
	"testing"

	"github.com/cuentaclara/statement-engine/internal/models"
)

func TestByKeywords(t *testing.T) {
	tests := []struct {
		desc    string
		want    models.Direction
		matched bool
	}{
		{"SPEI RECIBIDO DEPOSITO NOMINA", models.Credit, true},
		{"DEPÓSITO EN EFECTIVO", models.Credit, true},
		{"TRANSFERENCIA DE CUENTA PROPIA", models.Credit, true},
		{"TRANSFERENCIA A TERCEROS", models.Debit, true},
		{"PAGO TARJETA DE CREDITO", models.Debit, true},
		{"COMISION MEMBRESIA", models.Debit, true},
		{"compra oxxo gas", models.Debit, true},
		{"REF 820571", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, ok := ByKeywords(tt.desc)
			if ok != tt.matched {
				t.Fatalf("matched = %v, want %v", ok, tt.matched)
			}
			if ok && got != tt.want {
				t.Errorf("direction = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestByBalanceProgression(t *testing.T) {
	tests := []struct {
		name                  string
		prev, amount, balance string
		want                  models.Direction
		ok                    bool
	}{
		{"credit fits", "1000.00", "500.00", "1500.00", models.Credit, true},
		{"debit fits", "1000.00", "500.00", "500.00", models.Debit, true},
		{"credit within tolerance", "1000.00", "500.00", "1500.04", models.Credit, true},
		{"neither fits", "1000.00", "500.00", "1200.00", "", false},
		// amount zero: both explanations land on the same balance.
		{"both fit", "1000.00", "0.00", "1000.00", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ByBalanceProgression(dec(tt.prev), dec(tt.amount), dec(tt.balance))
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("direction = %q, want %q", got, tt.want)
			}
		})
	}
}
