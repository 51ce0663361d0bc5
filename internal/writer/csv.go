// Package writer serializes parse results for download: CSV and XLSX.
package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/cuentaclara/statement-engine/internal/models"
)

const dateLayout = "2006-01-02"

var columnHeaders = []string{
	"Fecha Operación", "Fecha Liquidación", "Descripción",
	"Monto", "Tipo", "Categoría", "Saldo",
}

// CSVWriter writes movements to CSV format.
type CSVWriter struct {
	IncludeHeader bool
}

// WriteToFile writes the result to a CSV file at the given path.
func (w *CSVWriter) WriteToFile(path string, res *models.ParseResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	defer f.Close()

	return w.Write(f, res)
}

// Write writes the result in CSV format to the given writer.
func (w *CSVWriter) Write(out io.Writer, res *models.ParseResult) error {
	writer := csv.NewWriter(out)
	defer writer.Flush()

	// Statement metadata as comment rows
	if w.IncludeHeader {
		if res.Format != "" {
			writer.Write([]string{"# Formato", string(res.Format)})
		}
		if res.AccountID != "" {
			writer.Write([]string{"# Cuenta", res.AccountID})
		}
		if res.Header.Period != "" {
			writer.Write([]string{"# Periodo", res.Header.Period})
		}
	}

	if err := writer.Write(columnHeaders); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, m := range res.Movements {
		if err := writer.Write(movementRow(m)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	return nil
}

func movementRow(m models.Movement) []string {
	settle := ""
	if m.SettlementDate != nil {
		settle = m.SettlementDate.Format(dateLayout)
	}
	balance := ""
	if m.BalanceAfter != nil {
		balance = m.BalanceAfter.StringFixed(2)
	}
	return []string{
		m.OperationDate.Format(dateLayout),
		settle,
		m.Description,
		m.Amount.StringFixed(2),
		string(m.Direction),
		string(m.Category),
		balance,
	}
}
