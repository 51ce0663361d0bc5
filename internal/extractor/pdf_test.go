package extractor

import (
	"strings"
	"testing"

	"github.com/cuentaclara/statement-engine/internal/models"
)

func TestTextQuality(t *testing.T) {
	tests := []struct {
		name string
		text string
		min  float64
		max  float64
	}{
		{"clean spanish", "Saldo inicial $10,000.00 Depósitos y retiros del periodo", 0.9, 1.0},
		{"identity-encoded garbage", "\x01\x02ŸžŒ\x7f€‚ƒ„…†‡ˆ‰Š‹ŒŽ", 0.0, 0.3},
		{"empty", "", 0.0, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := textQuality(tt.text)
			if got < tt.min || got > tt.max {
				t.Errorf("textQuality = %v, want within [%v, %v]", got, tt.min, tt.max)
			}
		})
	}
}

func TestIsReadableDocument(t *testing.T) {
	readable := &models.Document{Pages: []models.Page{{
		Number: 1,
		Lines: []string{
			"Estado de Cuenta",
			"Cuenta: 00105547891 Moneda MXN",
			"Saldo inicial $10,000.00 al corte del periodo",
		},
	}}}
	if !isReadableDocument(readable) {
		t.Error("clean statement text must be readable")
	}

	tests := []struct {
		name string
		doc  *models.Document
	}{
		{"nil document", nil},
		{"too short", &models.Document{Pages: []models.Page{{Lines: []string{"saldo"}}}}},
		{
			// Long and mostly ASCII, but no statement vocabulary at all.
			"no common words",
			&models.Document{Pages: []models.Page{{
				Lines: []string{strings.Repeat("lorem ipsum dolor sit amet ", 5)},
			}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if isReadableDocument(tt.doc) {
				t.Error("expected unreadable")
			}
		})
	}
}

func TestLinesFromTokens(t *testing.T) {
	tokens := []models.Token{
		{Text: "Saldo", Left: 10, Right: 40, Top: 10},
		{Text: "inicial", Left: 45, Right: 80, Top: 10},
		// Wide horizontal gap: column separator.
		{Text: "10,000.00", Left: 300, Right: 350, Top: 10.5},
		{Text: "Fecha", Left: 10, Right: 40, Top: 30},
	}

	lines := linesFromTokens(tokens)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %v", len(lines), lines)
	}
	if lines[0] != "Saldo inicial   10,000.00" && !strings.Contains(lines[0], "Saldo inicial") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(lines[0], "10,000.00") {
		t.Errorf("first line lost the amount: %q", lines[0])
	}
	if lines[1] != "Fecha" {
		t.Errorf("second line = %q", lines[1])
	}
}

func TestExtractDocumentMissingFile(t *testing.T) {
	if _, err := ExtractDocument("/nonexistent/estado.pdf"); err == nil {
		t.Error("expected an error for a missing file")
	}
}
