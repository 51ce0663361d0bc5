package vision

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cuentaclara/statement-engine/internal/models"
)

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "already clean",
			in:   `[{"fecha":"2025-01-05"}]`,
			want: `[{"fecha":"2025-01-05"}]`,
		},
		{
			name: "markdown fence",
			in:   "```json\n[{\"fecha\":\"2025-01-05\"}]\n```",
			want: `[{"fecha":"2025-01-05"}]`,
		},
		{
			name: "surrounding prose",
			in:   "Aquí están los movimientos:\n[{\"fecha\":\"2025-01-05\"}]\nEspero que ayude.",
			want: `[{"fecha":"2025-01-05"}]`,
		},
		{
			name: "fence without language tag",
			in:   "```\n[]\n```",
			want: `[]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanModelJSON(tt.in); got != tt.want {
				t.Errorf("cleanModelJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDedupe(t *testing.T) {
	date := time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC)
	base := models.Movement{
		OperationDate: date,
		Description:   "OXXO GAS",
		Amount:        decimal.RequireFromString("250.00"),
		Direction:     models.Debit,
	}
	other := base
	other.Direction = models.Credit

	got := dedupe([]models.Movement{base, base, other})
	if len(got) != 2 {
		t.Fatalf("got %d movements, want 2: %+v", len(got), got)
	}
	// Direction is part of the identity: a same-day, same-amount charge
	// and payment are distinct movements.
	if got[0].Direction == got[1].Direction {
		t.Error("distinct directions collapsed")
	}
}
