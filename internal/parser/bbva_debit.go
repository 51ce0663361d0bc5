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

// BBVADebitParser handles BBVA checking-account statements.
//
// Movement rows carry no sign and no credit/debit column, only a bare
// amount list:
//
//	05/ENE 05/ENE SPEI RECIBIDO BANORTE 15,000.00 28,405.15
//
// The statement does declare per-direction totals in its summary, so the
// direction of each row is recovered combinatorially: the subset of row
// amounts summing to the declared deposits total is credited, everything
// else is charged.
type BBVADebitParser struct {
	log zerolog.Logger
}

func (p *BBVADebitParser) FormatName() string {
	return "BBVA Débito"
}

var (
	bbvaAccountPattern = regexp.MustCompile(`No\. de Cuenta\s+(\d+)`)
	bbvaCLABEPattern   = regexp.MustCompile(`No\. de Cuenta CLABE\s+(\d+)`)
	// "Depósitos / Abonos (+) 2 15,000.00"
	bbvaDepositsPattern = regexp.MustCompile(`Depósitos / Abonos \(\+\)\s+\d+\s+([\d,]+\.\d{2})`)
	// "Retiros / Cargos (-) 4 15,704.10"
	bbvaChargesPattern = regexp.MustCompile(`Retiros / Cargos \(\-\)\s+\d+\s+([\d,]+\.\d{2})`)
	bbvaPrevBalance    = regexp.MustCompile(`Saldo Anterior\s+\$?([\d,]+\.\d{2})`)
	bbvaFinalBalance   = regexp.MustCompile(`Saldo Final(?:\s+al\s+Corte)?\s+\$?([\d,]+\.\d{2})`)
	bbvaPeriodPattern  = regexp.MustCompile(`Periodo\s*(?:DEL)?\s*([^\n]+)`)

	// "05/ENE 05/ENE SPEI RECIBIDO ..." — operation date, settlement date,
	// then description and amounts.
	bbvaRowPattern = regexp.MustCompile(`^(\d{2}/[A-Z]{3})\s+(\d{2}/[A-Z]{3})\s+(.+)$`)
)

const (
	bbvaBlockStart = "Detalle de Movimientos Realizados"
	bbvaBlockEnd   = "Total de Movimientos"
)

// bbvaCandidate is one parsed row before its direction is known.
type bbvaCandidate struct {
	movement models.Movement
}

func (p *BBVADebitParser) Parse(doc *models.Document) (*models.ParseResult, error) {
	text := doc.Text()

	res := &models.ParseResult{Format: models.FormatBBVADebit}
	res.AccountID = findRegex(bbvaAccountPattern, text)
	res.Header = p.extractHeader(text)
	res.Header.AccountID = res.AccountID

	block, ok := p.movementsBlock(text)
	if !ok {
		return nil, fmt.Errorf("statement has no movements section (%q marker missing)", bbvaBlockStart)
	}

	year := inferStatementYear(text)
	candidates, diags := p.collectCandidates(block, year)
	res.Diagnostics = append(res.Diagnostics, diags...)

	movements, classDiags := p.resolveDirections(candidates, res.Header.TotalCredits)
	res.Movements = movements
	res.Diagnostics = append(res.Diagnostics, classDiags...)

	res.Reconciliation = reconcile.Validate(res.Header, res.Movements)
	if !res.Reconciliation.Valid {
		p.log.Warn().
			Str("account", res.AccountID).
			Str("sumCredits", res.Reconciliation.SumCredits.String()).
			Str("sumDebits", res.Reconciliation.SumDebits.String()).
			Msg("reconciliation mismatch against statement summary")
	}
	return res, nil
}

func (p *BBVADebitParser) extractHeader(text string) models.StatementHeader {
	h := models.StatementHeader{
		Currency: "MXN",
		CLABE:    findRegex(bbvaCLABEPattern, text),
		Period:   findRegex(bbvaPeriodPattern, text),
	}
	setMoney := func(dst **decimal.Decimal, pattern *regexp.Regexp) {
		if s := findRegex(pattern, text); s != "" {
			if d, err := parseAmount(s); err == nil {
				*dst = &d
			}
		}
	}
	setMoney(&h.TotalCredits, bbvaDepositsPattern)
	setMoney(&h.TotalDebits, bbvaChargesPattern)
	setMoney(&h.PreviousBalance, bbvaPrevBalance)
	setMoney(&h.FinalBalance, bbvaFinalBalance)
	return h
}

// movementsBlock cuts the text between the section start and end markers.
func (p *BBVADebitParser) movementsBlock(text string) (string, bool) {
	start := strings.Index(text, bbvaBlockStart)
	end := strings.Index(text, bbvaBlockEnd)
	if start < 0 || end < 0 || end <= start {
		return "", false
	}
	return text[start:end], true
}

// collectCandidates parses every movement row in the block. The first
// amount on a row is the transaction amount; trailing amounts are the
// printed running balance and are ignored here.
func (p *BBVADebitParser) collectCandidates(block string, year int) ([]bbvaCandidate, []models.Diagnostic) {
	var candidates []bbvaCandidate
	var diags []models.Diagnostic

	for _, line := range strings.Split(block, "\n") {
		line = collapseSpaces(line)
		m := bbvaRowPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		amounts := amountPattern.FindAllString(m[3], -1)
		if len(amounts) == 0 {
			diags = append(diags, models.Diagnostic{
				Code:   models.DiagUnresolvedRecord,
				Detail: fmt.Sprintf("movement row without amount: %q", line),
			})
			continue
		}

		desc := strings.TrimSpace(strings.SplitN(m[3], amounts[0], 2)[0])
		amount, err := parseAmount(amounts[0])
		if err != nil {
			diags = append(diags, models.Diagnostic{
				Code:   models.DiagUnresolvedRecord,
				Detail: fmt.Sprintf("unparseable amount %q: %v", amounts[0], err),
			})
			continue
		}

		opParts := strings.SplitN(m[1], "/", 2)
		opDate, err := parseDayMonth(opParts[0], opParts[1], year)
		if err != nil {
			diags = append(diags, models.Diagnostic{
				Code:   models.DiagUnresolvedRecord,
				Detail: fmt.Sprintf("bad operation date %q: %v", m[1], err),
			})
			continue
		}
		liqParts := strings.SplitN(m[2], "/", 2)
		liqDate, err := parseDayMonth(liqParts[0], liqParts[1], year)
		mv := models.Movement{
			OperationDate: opDate,
			Description:   desc,
			Amount:        amount,
			Category:      models.CategoryRegular,
		}
		if err == nil {
			mv.SettlementDate = &liqDate
		}
		candidates = append(candidates, bbvaCandidate{movement: mv})
	}
	return candidates, diags
}

// resolveDirections resolves directions via the declared deposits total. On any
// ambiguity every row defaults to Cargo and is flagged unverified; the
// document still parses.
func (p *BBVADebitParser) resolveDirections(candidates []bbvaCandidate, declaredCredits *decimal.Decimal) ([]models.Movement, []models.Diagnostic) {
	amounts := make([]decimal.Decimal, len(candidates))
	for i, c := range candidates {
		amounts[i] = c.movement.Amount
	}

	total := decimal.Zero
	if declaredCredits != nil {
		total = *declaredCredits
	}

	creditIdx, err := classify.MatchDeclaredTotal(amounts, total)
	var diags []models.Diagnostic
	unverified := false
	if err != nil {
		p.log.Warn().Err(err).Str("declaredCredits", total.String()).
			Msg("no row subset matches the declared deposits total")
		diags = append(diags, models.Diagnostic{
			Code:   models.DiagAmbiguousDirection,
			Detail: fmt.Sprintf("declared deposits %s: %v", total.String(), err),
		})
		unverified = true
		creditIdx = nil
	}

	isCredit := make(map[int]bool, len(creditIdx))
	for _, i := range creditIdx {
		isCredit[i] = true
	}

	movements := make([]models.Movement, 0, len(candidates))
	for i, c := range candidates {
		mv := c.movement
		if isCredit[i] {
			mv.Direction = models.Credit
		} else {
			mv.Direction = models.Debit
		}
		mv.Unverified = unverified
		movements = append(movements, mv)
	}
	return movements, diags
}
