package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuentaclara/statement-engine/internal/models"
	"github.com/cuentaclara/statement-engine/internal/reconcile"
)

// ScotiaCreditParser handles Scotiabank credit-card statements.
//
// The MSI table often wraps each record across two lines: the first line
// carries the date and (part of) the description, the second the four
// money columns and the payment counter:
//
//	15-sep-2024 SEARS INSURGENTES
//	PLAN 12 MESES $699.00 $466.00 $58.25 4/12 0.0%
//
// A pending-record accumulator joins them; description fragments keep
// arriving until the money tail shows up. Regular rows match the BBVA
// credit shape but with "+" as the charge sign here as well.
type ScotiaCreditParser struct {
	log zerolog.Logger
}

func (p *ScotiaCreditParser) FormatName() string {
	return "Scotiabank Crédito"
}

const scotiaCreditPlusIsCharge = true

var (
	scotiaCardPattern = regexp.MustCompile(`Tarjeta titular:.*?(\d{4})`)

	// Leading date plus whatever follows; the tail may or may not be on
	// the same line.
	scotiaDateLinePattern = regexp.MustCompile(`^(\d{2}-[a-zA-Z]{3}-\d{4})\s+(.+)$`)

	// monto original, saldo pendiente, pago requerido, "4/12", tasa.
	scotiaMSITailPattern = regexp.MustCompile(
		`\$([\d,]+\.\d{2})\s+\$([\d,]+\.\d{2})\s+\$([\d,]+\.\d{2})\s+(\d+)/(\d+)\s+([\d\.,]+)%`)

	scotiaRegularPattern = regexp.MustCompile(
		`^(\d{2}-[a-zA-Z]{3}-\d{4})\s+(\d{2}-[a-zA-Z]{3}-\d{4})\s+(.+?)\s+([+-])\s*\$([\d,]+\.\d{2})$`)

	scotiaPrevBalancePattern  = regexp.MustCompile(`(?i)Saldo\s+anterior\s+\$?([\d,]+\.\d{2})`)
	scotiaTotalDebitsPattern  = regexp.MustCompile(`(?i)Total\s+cargos\s*\+?\s*\$?([\d,]+\.\d{2})`)
	scotiaTotalCreditsPattern = regexp.MustCompile(`(?i)Total\s+abonos\s*-?\s*\$?([\d,]+\.\d{2})`)
)

// pendingMSI accumulates a wrapped installment record.
type pendingMSI struct {
	date string
	desc string
}

func (p *ScotiaCreditParser) Parse(doc *models.Document) (*models.ParseResult, error) {
	text := doc.Text()

	res := &models.ParseResult{Format: models.FormatScotiaCredit}
	if card := findRegex(scotiaCardPattern, text); card != "" {
		res.AccountID = "****" + card
	}
	res.Header = p.extractHeader(text)
	res.Header.AccountID = res.AccountID

	scanner := &sectionScanner{
		installmentMarkers: []string{"COMPRAS Y CARGOS DIFERIDOS A MESES SIN INTERESES"},
		regularMarkers:     []string{"CARGOS, ABONOS Y COMPRAS REGULARES (NO A MESES)"},
		terminators:        []string{"Total cargos", "Total abonos", "ATENCIÓN DE QUEJAS", "Notas:"},
	}

	var pending *pendingMSI

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if scanner.transition(line) {
			// A section boundary with a half-built record is an
			// unresolved-record condition, not a crash.
			if pending != nil {
				p.flushUnresolved(res, pending)
				pending = nil
			}
			continue
		}
		if isCreditTableHeader(line) {
			continue
		}

		switch scanner.state {
		case sectionInstallments:
			pending = p.scanMSILine(line, pending, res)
		case sectionRegular:
			if mv, ok := p.parseRegularRow(line, res); ok {
				res.Movements = append(res.Movements, mv)
			}
		}
	}
	if pending != nil {
		p.flushUnresolved(res, pending)
	}

	res.Reconciliation = reconcile.Validate(res.Header, res.Movements)
	if !res.Reconciliation.Valid {
		p.log.Warn().Str("account", res.AccountID).
			Msg("reconciliation mismatch against statement summary")
	}
	return res, nil
}

func (p *ScotiaCreditParser) extractHeader(text string) models.StatementHeader {
	h := models.StatementHeader{Currency: "MXN"}
	if s := findRegex(scotiaPrevBalancePattern, text); s != "" {
		if d, err := parseAmount(s); err == nil {
			h.PreviousBalance = &d
		}
	}
	if s := findRegex(scotiaTotalDebitsPattern, text); s != "" {
		if d, err := parseAmount(s); err == nil {
			h.TotalDebits = &d
		}
	}
	if s := findRegex(scotiaTotalCreditsPattern, text); s != "" {
		if d, err := parseAmount(s); err == nil {
			h.TotalCredits = &d
		}
	}
	return h
}

// scanMSILine advances the installment-section accumulator by one line and
// returns the new pending state.
func (p *ScotiaCreditParser) scanMSILine(line string, pending *pendingMSI, res *models.ParseResult) *pendingMSI {
	if g := scotiaDateLinePattern.FindStringSubmatch(line); g != nil {
		// A new record starts. If the money tail is already on this line
		// the record completes immediately.
		if pending != nil {
			p.flushUnresolved(res, pending)
		}
		date, rest := g[1], g[2]
		if strings.Contains(rest, "$") {
			before, after, _ := strings.Cut(rest, "$")
			if mv, ok := p.finishMSI(date, strings.TrimSpace(before), "$"+after, res); ok {
				res.Movements = append(res.Movements, mv)
				return nil
			}
		}
		return &pendingMSI{date: date, desc: strings.TrimSpace(rest)}
	}

	if pending == nil {
		return nil
	}

	// Continuation without amounts extends the description; the line with
	// the money tail resolves the record.
	if !strings.Contains(line, "$") {
		pending.desc = strings.TrimSpace(pending.desc + " " + line)
		return pending
	}
	before, after, _ := strings.Cut(line, "$")
	desc := strings.TrimSpace(pending.desc + " " + strings.TrimSpace(before))
	if mv, ok := p.finishMSI(pending.date, desc, "$"+after, res); ok {
		res.Movements = append(res.Movements, mv)
		return nil
	}
	return pending
}

// finishMSI parses the money tail and builds the installment Movement.
func (p *ScotiaCreditParser) finishMSI(date, desc, tail string, res *models.ParseResult) (models.Movement, bool) {
	g := scotiaMSITailPattern.FindStringSubmatch(tail)
	if g == nil {
		return models.Movement{}, false
	}

	opDate, err := parseLongDate(date)
	if err != nil {
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
			Code:   models.DiagUnresolvedRecord,
			Detail: fmt.Sprintf("installment row with bad date %q: %v", date, err),
		})
		return models.Movement{}, false
	}

	original, err1 := parseAmount(g[1])
	pendingBal, err2 := parseAmount(g[2])
	required, err3 := parseAmount(g[3])
	if err1 != nil || err2 != nil || err3 != nil {
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
			Code:   models.DiagUnresolvedRecord,
			Detail: fmt.Sprintf("installment tail with unparseable amounts: %q", tail),
		})
		return models.Movement{}, false
	}

	idx, _ := strconv.Atoi(g[4])
	total, _ := strconv.Atoi(g[5])

	return models.Movement{
		OperationDate: opDate,
		Description:   fmt.Sprintf("%s (%d/%d)", collapseSpaces(desc), idx, total),
		Amount:        required,
		Direction:     models.Debit,
		Category:      models.CategoryInstallment,
		Installment: &models.InstallmentMeta{
			OriginalAmount:   original,
			RemainingBalance: pendingBal,
			PaymentIndex:     idx,
			TotalPayments:    total,
			Rate:             g[6] + "%",
		},
	}, true
}

func (p *ScotiaCreditParser) flushUnresolved(res *models.ParseResult, pending *pendingMSI) {
	res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
		Code:   models.DiagUnresolvedRecord,
		Detail: fmt.Sprintf("installment record %q (%s) never resolved an amount", pending.desc, pending.date),
	})
}

func (p *ScotiaCreditParser) parseRegularRow(line string, res *models.ParseResult) (models.Movement, bool) {
	g := scotiaRegularPattern.FindStringSubmatch(line)
	if g == nil {
		return models.Movement{}, false
	}

	opDate, err := parseLongDate(g[1])
	if err != nil {
		return models.Movement{}, false
	}
	settleDate, err := parseLongDate(g[2])
	if err != nil {
		return models.Movement{}, false
	}
	amount, err := parseAmount(g[5])
	if err != nil {
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
			Code:   models.DiagUnresolvedRecord,
			Detail: fmt.Sprintf("regular row with unparseable amount: %q", line),
		})
		return models.Movement{}, false
	}

	direction := models.Credit
	if (g[4] == "+") == scotiaCreditPlusIsCharge {
		direction = models.Debit
	}

	return models.Movement{
		OperationDate:  opDate,
		SettlementDate: &settleDate,
		Description:    collapseSpaces(g[3]),
		Amount:         amount,
		Direction:      direction,
		Category:       models.CategoryRegular,
	}, true
}
