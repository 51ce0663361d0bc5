package writer

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/cuentaclara/statement-engine/internal/models"
)

const movementsSheet = "Movimientos"

// XLSXWriter writes movements to an Excel workbook with one sheet of
// movements and, when the statement carried installment plans, a second
// sheet for those.
type XLSXWriter struct{}

// Write streams the workbook to the given writer.
func (w *XLSXWriter) Write(out io.Writer, res *models.ParseResult) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", movementsSheet)

	if err := w.writeMovements(f, res); err != nil {
		return err
	}
	if len(res.InstallmentEntries) > 0 {
		if err := w.writeInstallments(f, res.InstallmentEntries); err != nil {
			return err
		}
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func (w *XLSXWriter) writeMovements(f *excelize.File, res *models.ParseResult) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	header := make([]interface{}, len(columnHeaders))
	for i, h := range columnHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(movementsSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(columnHeaders), 1)
	f.SetCellStyle(movementsSheet, "A1", last, bold)

	for i, m := range res.Movements {
		cells := movementRow(m)
		row := make([]interface{}, len(cells))
		for j, c := range cells {
			row[j] = c
		}
		// Amounts as numbers so spreadsheet sums work.
		amount, _ := m.Amount.Float64()
		row[3] = amount
		if m.BalanceAfter != nil {
			balance, _ := m.BalanceAfter.Float64()
			row[6] = balance
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(movementsSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	f.SetColWidth(movementsSheet, "C", "C", 50)
	return nil
}

func (w *XLSXWriter) writeInstallments(f *excelize.File, entries []models.InstallmentPlanEntry) error {
	const sheet = "Meses Sin Intereses"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create installments sheet: %w", err)
	}

	header := []interface{}{
		"Fecha", "Descripción", "Monto Original", "Saldo Pendiente",
		"Pago Requerido", "Pago", "Tasa",
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write installments header: %w", err)
	}

	for i, e := range entries {
		date := ""
		if e.OperationDate != nil {
			date = e.OperationDate.Format(dateLayout)
		}
		original, _ := e.OriginalAmount.Float64()
		pending, _ := e.PendingBalance.Float64()
		required, _ := e.RequiredPayment.Float64()
		row := []interface{}{
			date, e.Description, original, pending, required,
			fmt.Sprintf("%d/%d", e.PaymentIndex, e.TotalPayments), e.Rate,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write installments row %d: %w", i+2, err)
		}
	}

	f.SetColWidth(sheet, "B", "B", 50)
	return nil
}
