package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuentaclara/statement-engine/internal/models"
)

// Parser defines the interface for statement format parsers.
type Parser interface {
	// Parse consumes an extracted document and returns the normalized
	// result: movements, header, installment entries and diagnostics.
	Parse(doc *models.Document) (*models.ParseResult, error)
	// FormatName returns the human-readable format name.
	FormatName() string
}

// ErrNoMatchingFormat is returned by Detect when no known grammar applies.
// It is a terminal condition for the document, not a per-row diagnostic.
var ErrNoMatchingFormat = errors.New("no matching statement format")

// New returns the parser for the given format.
func New(format models.FormatType, log zerolog.Logger) (Parser, error) {
	switch format {
	case models.FormatBBVADebit:
		return &BBVADebitParser{log: log}, nil
	case models.FormatBBVACredit:
		return &BBVACreditParser{log: log}, nil
	case models.FormatScotiaCredit:
		return &ScotiaCreditParser{log: log}, nil
	case models.FormatScotiaDebit:
		return &ScotiaDebitParser{log: log}, nil
	case models.FormatBanorteCredit:
		return &BanorteCreditParser{log: log}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %q", format)
	}
}

// detectionPrefixLen limits institution-name checks to the document head.
// Transaction descriptions routinely name other banks ("SPEI SCOTIABANK"),
// so only the header region is trusted for those keywords.
const detectionPrefixLen = 1000

// Detect identifies the statement format from the extracted text. Checks
// run in priority order: specific structural markers win over generic
// institution keywords.
func Detect(doc *models.Document) (models.FormatType, error) {
	text := strings.ToUpper(doc.Text())
	prefix := text
	if len(prefix) > detectionPrefixLen {
		prefix = prefix[:detectionPrefixLen]
	}

	if strings.Contains(text, "BBVA") || strings.Contains(text, "BANCOMER") {
		if strings.Contains(text, "DETALLE DE MOVIMIENTOS REALIZADOS") {
			return models.FormatBBVADebit, nil
		}
		return models.FormatBBVACredit, nil
	}

	isScotia := strings.Contains(prefix, "SCOTIABANK") ||
		strings.Contains(text, "INVERLAT") ||
		strings.Contains(text, "COMPRAS Y CARGOS DIFERIDOS") ||
		strings.Contains(text, "DISTRIBUCIÓN DE TU ÚLTIMO PAGO")
	if isScotia {
		// Credit/MSI markers take priority over the generic movements table.
		if strings.Contains(text, "COMPRAS Y CARGOS DIFERIDOS") {
			return models.FormatScotiaCredit, nil
		}
		if strings.Contains(text, "DETALLE DE TUS MOVIMIENTOS") {
			return models.FormatScotiaDebit, nil
		}
		if strings.Contains(text, "CUENTA UNICA") || strings.Contains(text, "CUENTA DE DEPOSITO") {
			return models.FormatScotiaDebit, nil
		}
		return models.FormatScotiaCredit, nil
	}

	if strings.Contains(text, "BANORTE") {
		return models.FormatBanorteCredit, nil
	}

	sample := prefix
	if len(sample) > 200 {
		sample = sample[:200]
	}
	return "", fmt.Errorf("%w: %q", ErrNoMatchingFormat, sample)
}
