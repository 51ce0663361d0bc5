package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cuentaclara/statement-engine/internal/models"
	"github.com/cuentaclara/statement-engine/internal/reconcile"
)

// BanorteCreditParser handles Banorte credit-card statements.
//
// The MSI table lists plan summaries, not cash flows:
//
//	25-NOV-2024 AMAZON $8,612.56 $0.00 $717.75 12/12 0.00%
//
// Those become InstallmentPlanEntry values so they never double-count
// against the statement totals. Regular records start with two dates but
// spill the description and sometimes the amount onto following lines:
//
//	12-NOV-2025 13-NOV-2025 SPEI ENVIADO BCO
//	0002 BANAMEX REF 7632581
//	-$12,855.46
//
// An explicit accumulator collects lines until the signed amount shows up.
type BanorteCreditParser struct {
	log zerolog.Logger
}

func (p *BanorteCreditParser) FormatName() string {
	return "Banorte Crédito"
}

var (
	banorteAccountPattern = regexp.MustCompile(`N[uú]mero\s+de\s+Cuenta:\s*([X\d\- ]+)`)
	banortePeriodPattern  = regexp.MustCompile(`(?i)Periodo\s*:\s*([^\n]+)`)
	banorteCutoffPattern  = regexp.MustCompile(`(?i)Fecha\s+de\s+corte\s*:\s*(\d{2}-[A-Z]{3}-\d{4})`)

	banortePrevPattern    = regexp.MustCompile(`(?i)Adeudo\s+del\s+periodo\s+anterior\s*\$?([\d,]+\.\d{2})`)
	banorteDebitsPattern  = regexp.MustCompile(`(?i)Total\s+cargos\s*[+]?\s*\$?([\d,]+\.\d{2})`)
	banorteCreditsPattern = regexp.MustCompile(`(?i)Total\s+abonos\s*[-]?\s*\$?([\d,]+\.\d{2})`)
	banorteFinalPattern   = regexp.MustCompile(`(?i)Pago\s+para\s+no\s+generar\s+intereses\s*:?\s*\d?\s*\$?([\d,]+\.\d{2})`)

	banorteMSIPattern = regexp.MustCompile(
		`^(\d{2}-[A-Z]{3}-\d{4})\s+(.+?)\s+\$([\d,]+\.\d{2})\s+\$([\d,]+\.\d{2})\s+\$([\d,]+\.\d{2})\s+(\d+)/(\d+)\s+([\d\.]+)%`)

	// A regular record starts with operation and settlement dates.
	banorteRegularStart = regexp.MustCompile(`^\d{2}-[A-Z]{3}-\d{4}\s+\d{2}-[A-Z]{3}-\d{4}`)
)

func (p *BanorteCreditParser) Parse(doc *models.Document) (*models.ParseResult, error) {
	text := doc.Text()

	res := &models.ParseResult{Format: models.FormatBanorteCredit}
	res.AccountID = findRegex(banorteAccountPattern, text)
	res.Header = p.extractHeader(text)
	res.Header.AccountID = res.AccountID

	scanner := &sectionScanner{
		installmentMarkers: []string{"COMPRAS Y CARGOS DIFERIDOS A MESES SIN INTERESES"},
		regularMarkers:     []string{"CARGOS, ABONOS Y COMPRAS REGULARES (NO A MESES)"},
		terminators:        []string{"Total cargos", "Total abonos", "ATENCIÓN DE QUEJAS"},
	}

	var pending *pendingRecord

	flush := func() {
		if pending == nil {
			return
		}
		if mv, ok := p.finishRegular(pending, res); ok {
			res.Movements = append(res.Movements, mv)
		}
		pending = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if scanner.transition(line) {
			flush()
			continue
		}
		if isCreditTableHeader(line) {
			continue
		}

		switch scanner.state {
		case sectionInstallments:
			if entry, ok := p.parseMSIRow(line); ok {
				res.InstallmentEntries = append(res.InstallmentEntries, entry)
			}
		case sectionRegular:
			if banorteRegularStart.MatchString(line) {
				flush()
				pending = p.startRegular(line, res)
				continue
			}
			if pending == nil {
				continue
			}
			// Continuation: resolve the amount if still missing, keep
			// accumulating description either way.
			if pending.amountTok == "" {
				if tok := signedAmountPattern.FindString(line); tok != "" {
					pending.amountTok = tok
					pending.appendText(strings.Replace(line, tok, "", 1))
					continue
				}
			}
			pending.appendText(line)
		}
	}
	flush()

	res.Reconciliation = reconcile.Validate(res.Header, res.Movements)
	if !res.Reconciliation.Valid {
		p.log.Warn().Str("account", res.AccountID).
			Msg("reconciliation mismatch against statement summary")
	}
	return res, nil
}

func (p *BanorteCreditParser) extractHeader(text string) models.StatementHeader {
	h := models.StatementHeader{
		Currency: "MXN",
		Period:   findRegex(banortePeriodPattern, text),
	}
	if s := findRegex(banorteCutoffPattern, text); s != "" {
		if d, err := parseLongDate(s); err == nil {
			h.CutoffDate = &d
		}
	}
	setMoney := func(dst **decimal.Decimal, pattern *regexp.Regexp) {
		if s := findRegex(pattern, text); s != "" {
			if d, err := parseAmount(s); err == nil {
				*dst = &d
			}
		}
	}
	setMoney(&h.PreviousBalance, banortePrevPattern)
	setMoney(&h.TotalDebits, banorteDebitsPattern)
	setMoney(&h.TotalCredits, banorteCreditsPattern)
	setMoney(&h.FinalBalance, banorteFinalPattern)
	return h
}

// parseMSIRow builds an informative plan entry; it is not a cash flow.
func (p *BanorteCreditParser) parseMSIRow(line string) (models.InstallmentPlanEntry, bool) {
	g := banorteMSIPattern.FindStringSubmatch(line)
	if g == nil {
		return models.InstallmentPlanEntry{}, false
	}

	date, err := parseLongDate(g[1])
	if err != nil {
		return models.InstallmentPlanEntry{}, false
	}
	original, err1 := parseAmount(g[3])
	pendingBal, err2 := parseAmount(g[4])
	required, err3 := parseAmount(g[5])
	if err1 != nil || err2 != nil || err3 != nil {
		return models.InstallmentPlanEntry{}, false
	}
	idx, _ := strconv.Atoi(g[6])
	total, _ := strconv.Atoi(g[7])

	return models.InstallmentPlanEntry{
		OperationDate:   &date,
		Description:     fmt.Sprintf("%s (%d/%d)", collapseSpaces(g[2]), idx, total),
		OriginalAmount:  original,
		PendingBalance:  pendingBal,
		RequiredPayment: required,
		PaymentIndex:    idx,
		TotalPayments:   total,
		Rate:            g[8] + "%",
	}, true
}

// startRegular opens the accumulator for a record-start line, taking the
// amount from the same line when it is already there.
func (p *BanorteCreditParser) startRegular(line string, res *models.ParseResult) *pendingRecord {
	dates := strings.Fields(line)
	opDate, err := parseLongDate(dates[0])
	if err != nil {
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
			Code:   models.DiagUnresolvedRecord,
			Detail: fmt.Sprintf("bad operation date on %q: %v", line, err),
		})
		return nil
	}

	rec := &pendingRecord{opDate: opDate, startLine: line}
	if len(dates) > 1 {
		if d, err := parseLongDate(dates[1]); err == nil {
			rec.settleDate = &d
		}
	}

	rest := strings.TrimSpace(strings.TrimPrefix(line, dates[0]))
	if rec.settleDate != nil {
		rest = strings.TrimSpace(strings.TrimPrefix(rest, dates[1]))
	}
	if tok := signedAmountPattern.FindString(rest); tok != "" {
		rec.amountTok = tok
		rest = strings.Replace(rest, tok, "", 1)
	}
	rec.appendText(rest)
	return rec
}

// finishRegular flushes the accumulator into zero or one Movement.
func (p *BanorteCreditParser) finishRegular(rec *pendingRecord, res *models.ParseResult) (models.Movement, bool) {
	if rec.amountTok == "" {
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
			Code:   models.DiagUnresolvedRecord,
			Detail: fmt.Sprintf("record %q never resolved an amount", rec.description()),
		})
		return models.Movement{}, false
	}

	amount, err := parseAmount(rec.amountTok)
	if err != nil {
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
			Code:   models.DiagUnresolvedRecord,
			Detail: fmt.Sprintf("unparseable amount %q on record %q", rec.amountTok, rec.description()),
		})
		return models.Movement{}, false
	}

	direction := models.Debit
	if strings.HasPrefix(rec.amountTok, "-") {
		direction = models.Credit
	}

	return models.Movement{
		OperationDate:  rec.opDate,
		SettlementDate: rec.settleDate,
		Description:    rec.description(),
		Amount:         amount.Abs(),
		Direction:      direction,
		Category:       models.CategoryRegular,
	}, true
}
