package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cuentaclara/statement-engine/internal/classify"
	"github.com/cuentaclara/statement-engine/internal/models"
	"github.com/cuentaclara/statement-engine/internal/reconcile"
)

// ScotiaDebitParser handles Scotiabank checking-account statements.
//
// These only make sense as a grid: the movements table has six columns
// (fecha, concepto, origen/referencia, depósito, retiro, saldo) whose
// cells are positioned tokens with no line-level delimiters, so extraction
// goes through the spatial column extractor instead of a line grammar.
// Deposit and withdrawal columns determine direction directly; rows where
// both are populated fall back to the description keyword heuristic, then
// to the printed running balance.
type ScotiaDebitParser struct {
	log zerolog.Logger
}

func (p *ScotiaDebitParser) FormatName() string {
	return "Scotiabank Débito"
}

var (
	scotiaDebitAccountPattern = regexp.MustCompile(`Cuenta:?\s*(\d+)`)
	scotiaDebitCLABEPattern   = regexp.MustCompile(`CLABE\s+(\d{18})`)
	scotiaDebitPeriodPattern  = regexp.MustCompile(`Periodo\s+([0-9]{2}-[A-Z]{3}-[0-9]{2}/[0-9]{2}-[A-Z]{3}-[0-9]{2})`)
	scotiaDebitCurrencyRe     = regexp.MustCompile(`Moneda\s+([A-Z]+)`)

	// Summary block; labels often come out of extraction with spaces
	// collapsed ("Saldofinaldelacuenta").
	scotiaDebitOpeningPattern  = regexp.MustCompile(`Saldo\s*inicial(?:\s*=)?\s+\$([\d,]+\.\d{2})`)
	scotiaDebitDepositsPattern = regexp.MustCompile(`\(\+\)\s*Depósitos\s+\$([\d,]+\.\d{2})`)
	scotiaDebitRetirosPattern  = regexp.MustCompile(`\(-\)\s*Retiros\s+\$([\d,]+\.\d{2})`)
	scotiaDebitFinalPattern    = regexp.MustCompile(`(?:\(=\)\s*)?Saldo\s*final(?:\s*de\s*la\s*cuenta)?\s*(?:=)?\s*\$([\d,]+\.\d{2})`)
)

// movementsPageMarker gates spatial extraction to the pages that actually
// hold the table.
const movementsPageMarker = "detalledetusmovimientos"

func (p *ScotiaDebitParser) Parse(doc *models.Document) (*models.ParseResult, error) {
	text := doc.Text()

	res := &models.ParseResult{Format: models.FormatScotiaDebit}
	res.AccountID = findRegex(scotiaDebitAccountPattern, text)
	res.Header = p.extractHeader(text)
	res.Header.AccountID = res.AccountID

	year := inferStatementYear(text)
	var prevBalance *decimal.Decimal
	if res.Header.PreviousBalance != nil {
		b := *res.Header.PreviousBalance
		prevBalance = &b
	}

	for _, page := range doc.Pages {
		if !isMovementsPage(page) {
			continue
		}
		rows, err := extractGridRows(page)
		if err != nil {
			// A page without a detectable table contributes nothing;
			// sibling pages continue.
			p.log.Warn().Int("page", page.Number).Err(err).Msg("skipping page")
			res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
				Code:   models.DiagColumnDetectionFailure,
				Page:   page.Number,
				Detail: err.Error(),
			})
			continue
		}
		for _, row := range rows {
			mv, ok := p.rowToMovement(row, year, prevBalance, res)
			if !ok {
				continue
			}
			if mv.BalanceAfter != nil {
				b := *mv.BalanceAfter
				prevBalance = &b
			}
			res.Movements = append(res.Movements, mv)
		}
	}

	res.Reconciliation = reconcile.Validate(res.Header, res.Movements)
	return res, nil
}

func isMovementsPage(page models.Page) bool {
	joined := strings.ToLower(strings.Join(page.Lines, ""))
	joined = strings.ReplaceAll(joined, " ", "")
	if strings.Contains(joined, movementsPageMarker) {
		return true
	}
	// Token-only pages have no line view to check.
	return len(page.Lines) == 0 && len(page.Tokens) > 0
}

func (p *ScotiaDebitParser) extractHeader(text string) models.StatementHeader {
	h := models.StatementHeader{
		CLABE:    findRegex(scotiaDebitCLABEPattern, text),
		Period:   findRegex(scotiaDebitPeriodPattern, text),
		Currency: findRegex(scotiaDebitCurrencyRe, text),
	}
	if h.Currency == "" {
		h.Currency = "MXN"
	}
	setMoney := func(dst **decimal.Decimal, pattern *regexp.Regexp) {
		if s := findRegex(pattern, text); s != "" {
			if d, err := parseAmount(s); err == nil {
				*dst = &d
			}
		}
	}
	setMoney(&h.PreviousBalance, scotiaDebitOpeningPattern)
	setMoney(&h.TotalCredits, scotiaDebitDepositsPattern)
	setMoney(&h.TotalDebits, scotiaDebitRetirosPattern)
	setMoney(&h.FinalBalance, scotiaDebitFinalPattern)
	return h
}

// rowToMovement normalizes one merged grid row.
func (p *ScotiaDebitParser) rowToMovement(row gridRow, year int, prevBalance *decimal.Decimal, res *models.ParseResult) (models.Movement, bool) {
	dateCell := row.get("fecha")
	g := gridDatePattern.FindStringSubmatch(dateCell)
	if g == nil {
		return models.Movement{}, false
	}
	parts := strings.Fields(dateCell)
	opDate, err := parseDayMonth(parts[0], parts[1], year)
	if err != nil {
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
			Code:   models.DiagUnresolvedRecord,
			Detail: fmt.Sprintf("bad row date %q: %v", dateCell, err),
		})
		return models.Movement{}, false
	}

	description := collapseSpaces(strings.TrimSpace(row.get("concepto") + " " + row.get("origen")))
	deposit, hasDeposit := firstAmount(row.get("deposito"))
	withdrawal, hasWithdrawal := firstAmount(row.get("retiro"))
	balance, hasBalance := firstAmount(row.get("saldo"))

	mv := models.Movement{
		OperationDate: opDate,
		Description:   description,
		Category:      models.CategoryRegular,
	}
	if hasBalance {
		mv.BalanceAfter = &balance
	}

	switch {
	case hasDeposit && !hasWithdrawal:
		mv.Amount = deposit
		mv.Direction = models.Credit
	case hasWithdrawal && !hasDeposit:
		mv.Amount = withdrawal
		mv.Direction = models.Debit
	case hasDeposit && hasWithdrawal:
		// Both cells populated: column assignment was ambiguous for this
		// row. The description keywords pick the column, then the running
		// balance, then a flagged best-effort default.
		if dir, ok := classify.ByKeywords(description); ok {
			mv.Direction = dir
			mv.Amount = withdrawal
			if dir == models.Credit {
				mv.Amount = deposit
			}
			break
		}
		if hasBalance && prevBalance != nil {
			if dir, ok := classify.ByBalanceProgression(*prevBalance, deposit, balance); ok && dir == models.Credit {
				mv.Direction = models.Credit
				mv.Amount = deposit
				break
			}
			if dir, ok := classify.ByBalanceProgression(*prevBalance, withdrawal, balance); ok && dir == models.Debit {
				mv.Direction = models.Debit
				mv.Amount = withdrawal
				break
			}
		}
		mv.Direction = models.Debit
		mv.Amount = withdrawal
		mv.Unverified = true
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
			Code:   models.DiagAmbiguousDirection,
			Detail: fmt.Sprintf("row %q has both deposit and withdrawal cells", description),
		})
	default:
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
			Code:   models.DiagUnresolvedRecord,
			Detail: fmt.Sprintf("row %q carries no amount", description),
		})
		return models.Movement{}, false
	}
	return mv, true
}
