package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Spanish month abbreviations as printed on Mexican statements.
var spanishMonths = map[string]time.Month{
	"ENE": time.January, "FEB": time.February, "MAR": time.March,
	"ABR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AGO": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DIC": time.December,
}

// Date shapes found across the supported layouts.
var (
	// DD/MMM, no year (BBVA debit): "05/ENE"
	dateDayMonthSlash = regexp.MustCompile(`^(\d{2})/([A-Z]{3})$`)
	// DD-MMM-YYYY (credit-card layouts): "25-NOV-2024"
	dateLong = regexp.MustCompile(`(?i)^(\d{2})-([A-Za-z]{3})-(\d{4})$`)
	// D MMM, no year (Scotiabank checking grid): "3 OCT", "24 SEP"
	dateDayMonthSpace = regexp.MustCompile(`^(\d{1,2})\s+([A-ZÁÉÍÓÚÑ]{3})$`)
)

// amountPattern matches unsigned amounts like 1,234.56 or 25.99.
var amountPattern = regexp.MustCompile(`\d{1,3}(?:,\d{3})*\.\d{2}`)

// signedAmountPattern matches +$13.00 / -$12,855.46 (Banorte credit rows).
var signedAmountPattern = regexp.MustCompile(`[+-]\$[\d,]+\.\d{2}`)

// parseAmount converts "1,234.56", "$1,234.56" or "-$12.00" to a decimal.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00A0", "") // non-breaking space
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	return decimal.NewFromString(s)
}

// firstAmount returns the first unsigned amount on the line, if any.
func firstAmount(line string) (decimal.Decimal, bool) {
	m := amountPattern.FindString(line)
	if m == "" {
		return decimal.Zero, false
	}
	d, err := parseAmount(m)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// parseDayMonth resolves "05/ENE" or "3 OCT" against a statement year.
// Day-month dates carry no year of their own; the caller supplies the year
// taken from the statement period or cutoff date.
func parseDayMonth(day, mon string, year int) (time.Time, error) {
	m, ok := spanishMonths[strings.ToUpper(mon)]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown month abbreviation %q", mon)
	}
	var d int
	if _, err := fmt.Sscanf(day, "%d", &d); err != nil {
		return time.Time{}, fmt.Errorf("bad day %q: %w", day, err)
	}
	return time.Date(year, m, d, 0, 0, 0, 0, time.UTC), nil
}

// parseLongDate resolves "25-NOV-2024".
func parseLongDate(s string) (time.Time, error) {
	g := dateLong.FindStringSubmatch(strings.TrimSpace(s))
	if g == nil {
		return time.Time{}, fmt.Errorf("not a DD-MMM-YYYY date: %q", s)
	}
	m, ok := spanishMonths[strings.ToUpper(g[2])]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown month abbreviation %q", g[2])
	}
	var d, y int
	fmt.Sscanf(g[1], "%d", &d)
	fmt.Sscanf(g[3], "%d", &y)
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// statementYearPattern finds a 4-digit year near period/cutoff labels, e.g.
// "Periodo: 01/ENE/2025 - 31/ENE/2025" or "Fecha de corte: 15-ENE-2025".
var statementYearPattern = regexp.MustCompile(`(?i)(?:periodo|corte|al)\b[^\n]*?\b(20\d{2})`)

// inferStatementYear pulls the statement year out of the header text so
// year-less row dates can be resolved. Falls back to the current year when
// the header does not state one.
func inferStatementYear(text string) int {
	if g := statementYearPattern.FindStringSubmatch(text); g != nil {
		var y int
		fmt.Sscanf(g[1], "%d", &y)
		return y
	}
	return time.Now().Year()
}

// collapseSpaces normalizes runs of whitespace to single spaces.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// findRegex returns the first capture group of pattern in text, or "".
func findRegex(pattern *regexp.Regexp, text string) string {
	if g := pattern.FindStringSubmatch(text); g != nil {
		return strings.TrimSpace(g[1])
	}
	return ""
}
