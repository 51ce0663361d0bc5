package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cuentaclara/statement-engine/internal/models"
)

func docFromText(text string) *models.Document {
	return &models.Document{Pages: []models.Page{
		{Number: 1, Lines: strings.Split(text, "\n")},
	}}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		text string
		want models.FormatType
	}{
		{
			name: "bbva checking",
			text: "BBVA MEXICO\nEstado de Cuenta\nDetalle de Movimientos Realizados",
			want: models.FormatBBVADebit,
		},
		{
			name: "bbva credit by default",
			text: "BANCOMER\nEstado de cuenta tarjeta de crédito",
			want: models.FormatBBVACredit,
		},
		{
			name: "scotia credit via deferred purchases marker",
			text: "Estado de Cuenta\nCOMPRAS Y CARGOS DIFERIDOS A MESES SIN INTERESES",
			want: models.FormatScotiaCredit,
		},
		{
			name: "scotia checking",
			text: "SCOTIABANK INVERLAT\nCuenta Unica\nDetalle de tus movimientos",
			want: models.FormatScotiaDebit,
		},
		{
			name: "banorte",
			text: "BANORTE\nEstado de Cuenta Tarjeta de Crédito",
			want: models.FormatBanorteCredit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(docFromText(tt.text))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Detect() = %q, want %q", got, tt.want)
			}
		})
	}
}

// Institution keywords in transaction descriptions must not trigger
// detection: the header region decides.
func TestDetectIgnoresScotiabankInDescriptions(t *testing.T) {
	text := "BANORTE\nEstado de Cuenta\n" +
		strings.Repeat("relleno de cabecera\n", 60) +
		"12-NOV-2025 12-NOV-2025 SPEI ENVIADO SCOTIABANK +$100.00"
	got, err := Detect(docFromText(text))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != models.FormatBanorteCredit {
		t.Errorf("Detect() = %q, want banorte-credit", got)
	}
}

func TestDetectNoMatch(t *testing.T) {
	_, err := Detect(docFromText("recibo de luz CFE\ntotal a pagar $350.00"))
	if !errors.Is(err, ErrNoMatchingFormat) {
		t.Errorf("expected ErrNoMatchingFormat, got %v", err)
	}
}

func TestNewKnowsEveryFormat(t *testing.T) {
	formats := []models.FormatType{
		models.FormatBBVADebit, models.FormatBBVACredit,
		models.FormatScotiaCredit, models.FormatScotiaDebit,
		models.FormatBanorteCredit,
	}
	for _, f := range formats {
		p, err := New(f, zerolog.Nop())
		if err != nil {
			t.Errorf("New(%q): %v", f, err)
			continue
		}
		if p.FormatName() == "" {
			t.Errorf("New(%q): empty format name", f)
		}
	}

	if _, err := New("santander-credit", zerolog.Nop()); err == nil {
		t.Error("expected error for an unsupported format")
	}
}
