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

// BBVACreditParser handles BBVA credit-card statements.
//
// Two movement tables appear, each introduced by a literal section header.
// Deferred-payment (MSI) rows are single lines:
//
//	14-jul-2024 LIVERPOOL POLANCO $4,200.00 $2,100.00 $350.00 6 de 12 0.00%
//
// Regular rows carry two dates and a signed amount:
//
//	02-ago-2024 03-ago-2024 BMOVIL.PAGO TDC - $7,643.10
//
// Sign convention for this layout: "+" is a charge, "-" a payment. The
// reconciliation report is the check on that choice.
type BBVACreditParser struct {
	log zerolog.Logger
}

func (p *BBVACreditParser) FormatName() string {
	return "BBVA Crédito"
}

// plusIsCharge flips per credit-card layout; both observed BBVA and
// Scotiabank credit grammars resolve "+" to a charge.
const bbvaCreditPlusIsCharge = true

var (
	bbvaCardPattern = regexp.MustCompile(`Tarjeta\s+(?:Digital|Física)?\s*\*{3,}(\d{4})`)

	// fecha, descripción, monto original, saldo pendiente, pago requerido,
	// "6 de 18", tasa.
	bbvaMSIPattern = regexp.MustCompile(
		`^(\d{2}-[a-zA-Z]{3}-\d{4})\s+(.+?)\s+\$([\d,]+\.\d{2})\s+\$([\d,]+\.\d{2})\s+\$([\d,]+\.\d{2})\s+(\d+)\s+de\s+(\d+)\s+([\d\.,]+)%?`)

	// fecha operación, fecha de cargo, descripción, signo, monto.
	bbvaRegularPattern = regexp.MustCompile(
		`^(\d{2}-[a-zA-Z]{3}-\d{4})\s+(\d{2}-[a-zA-Z]{3}-\d{4})\s+(.+?)\s+([+-])\s*\$([\d,]+\.\d{2})$`)
)

func (p *BBVACreditParser) Parse(doc *models.Document) (*models.ParseResult, error) {
	text := doc.Text()

	res := &models.ParseResult{Format: models.FormatBBVACredit}
	if card := findRegex(bbvaCardPattern, text); card != "" {
		res.AccountID = "****" + card
	}
	res.Header = models.StatementHeader{Currency: "MXN", AccountID: res.AccountID}

	scanner := &sectionScanner{
		installmentMarkers: []string{"COMPRAS Y CARGOS DIFERIDOS A MESES SIN INTERESES"},
		regularMarkers:     []string{"CARGOS,COMPRAS Y ABONOS REGULARES"},
		terminators:        []string{"TOTAL CARGOS", "TOTAL ABONOS", "Notas:"},
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if scanner.transition(line) {
			continue
		}
		if isCreditTableHeader(line) {
			continue
		}

		switch scanner.state {
		case sectionInstallments:
			if mv, ok := p.parseMSIRow(line, res); ok {
				res.Movements = append(res.Movements, mv)
			}
		case sectionRegular:
			if mv, ok := p.parseRegularRow(line, res); ok {
				res.Movements = append(res.Movements, mv)
			}
		}
	}

	res.Reconciliation = reconcile.Validate(res.Header, res.Movements)
	p.log.Debug().Int("movements", len(res.Movements)).
		Int("diagnostics", len(res.Diagnostics)).Msg("parsed BBVA credit statement")
	return res, nil
}

func (p *BBVACreditParser) parseMSIRow(line string, res *models.ParseResult) (models.Movement, bool) {
	g := bbvaMSIPattern.FindStringSubmatch(line)
	if g == nil {
		return models.Movement{}, false
	}

	date, err := parseLongDate(g[1])
	if err != nil {
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
			Code:   models.DiagUnresolvedRecord,
			Detail: fmt.Sprintf("installment row with bad date %q: %v", g[1], err),
		})
		return models.Movement{}, false
	}

	original, err1 := parseAmount(g[3])
	pending, err2 := parseAmount(g[4])
	required, err3 := parseAmount(g[5])
	if err1 != nil || err2 != nil || err3 != nil {
		res.Diagnostics = append(res.Diagnostics, models.Diagnostic{
			Code:   models.DiagUnresolvedRecord,
			Detail: fmt.Sprintf("installment row with unparseable amounts: %q", line),
		})
		return models.Movement{}, false
	}

	idx, _ := strconv.Atoi(g[6])
	total, _ := strconv.Atoi(g[7])

	// The period amount is the required payment, never the principal;
	// principal and remaining balance stay in the metadata.
	return models.Movement{
		OperationDate: date,
		Description:   fmt.Sprintf("%s (%d de %d)", collapseSpaces(g[2]), idx, total),
		Amount:        required,
		Direction:     models.Debit,
		Category:      models.CategoryInstallment,
		Installment: &models.InstallmentMeta{
			OriginalAmount:   original,
			RemainingBalance: pending,
			PaymentIndex:     idx,
			TotalPayments:    total,
			Rate:             g[8] + "%",
		},
	}, true
}

func (p *BBVACreditParser) parseRegularRow(line string, res *models.ParseResult) (models.Movement, bool) {
	g := bbvaRegularPattern.FindStringSubmatch(line)
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
	if (g[4] == "+") == bbvaCreditPlusIsCharge {
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
