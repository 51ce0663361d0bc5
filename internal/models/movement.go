package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction tells whether a movement increases or decreases the account
// balance. The wire values keep the domain vocabulary used by the statements
// themselves (Abono = credit, Cargo = debit).
type Direction string

const (
	Credit Direction = "Abono"
	Debit  Direction = "Cargo"
)

// Category separates regular movements from deferred-payment (MSI) rows.
type Category string

const (
	CategoryRegular     Category = "Regular"
	CategoryInstallment Category = "MSI"
)

// FormatType identifies a supported statement grammar.
type FormatType string

const (
	FormatBBVADebit     FormatType = "bbva-debit"
	FormatBBVACredit    FormatType = "bbva-credit"
	FormatScotiaCredit  FormatType = "scotia-credit"
	FormatScotiaDebit   FormatType = "scotia-debit"
	FormatBanorteCredit FormatType = "banorte-credit"
)

// InstallmentMeta carries the audit fields of a deferred-payment row. The
// Movement amount is the payment required for the period; the original
// principal and remaining balance live here so they never inflate totals.
type InstallmentMeta struct {
	OriginalAmount   decimal.Decimal `json:"originalAmount"`
	RemainingBalance decimal.Decimal `json:"remainingBalance"`
	PaymentIndex     int             `json:"paymentIndex"`
	TotalPayments    int             `json:"totalPayments"`
	Rate             string          `json:"rate,omitempty"`
}

// Movement is a single dated, typed, signed transaction. Amount is always
// positive; the sign is carried by Direction.
type Movement struct {
	OperationDate  time.Time        `json:"operationDate"`
	SettlementDate *time.Time       `json:"settlementDate,omitempty"`
	Description    string           `json:"description"`
	Amount         decimal.Decimal  `json:"amount"`
	Direction      Direction        `json:"direction"`
	Category       Category         `json:"category"`
	Installment    *InstallmentMeta `json:"installment,omitempty"`
	// Unverified marks rows whose direction was assigned best-effort after
	// the combinatorial classifier found no subset matching the declared
	// total. They are kept, not dropped, so the caller can review them.
	Unverified bool `json:"unverified,omitempty"`
	// BalanceAfter is the running balance printed on the statement row,
	// when the layout has a balance column. Nil otherwise.
	BalanceAfter *decimal.Decimal `json:"balanceAfter,omitempty"`
}

// InstallmentPlanEntry is an informative row summarizing a deferred-payment
// plan's outstanding balance. It is not a cash flow and is kept apart from
// Movements so it can never double-count against statement totals.
type InstallmentPlanEntry struct {
	OperationDate   *time.Time      `json:"operationDate,omitempty"`
	Description     string          `json:"description"`
	OriginalAmount  decimal.Decimal `json:"originalAmount"`
	PendingBalance  decimal.Decimal `json:"pendingBalance"`
	RequiredPayment decimal.Decimal `json:"requiredPayment"`
	PaymentIndex    int             `json:"paymentIndex"`
	TotalPayments   int             `json:"totalPayments"`
	Rate            string          `json:"rate,omitempty"`
}

// StatementHeader is the statement's self-reported summary. Fields are
// pointers because "not reported" must stay distinguishable from
// "reported as zero".
type StatementHeader struct {
	AccountID       string           `json:"accountId,omitempty"`
	CLABE           string           `json:"clabe,omitempty"`
	Period          string           `json:"period,omitempty"`
	CutoffDate      *time.Time       `json:"cutoffDate,omitempty"`
	Currency        string           `json:"currency,omitempty"`
	PreviousBalance *decimal.Decimal `json:"previousBalance,omitempty"`
	FinalBalance    *decimal.Decimal `json:"finalBalance,omitempty"`
	TotalCredits    *decimal.Decimal `json:"totalCredits,omitempty"`
	TotalDebits     *decimal.Decimal `json:"totalDebits,omitempty"`
}

// ReconciliationReport compares computed sums against the header. It is
// advisory: a mismatch is surfaced, never silently corrected, and does not
// block persistence. It lives only for the parse that produced it.
type ReconciliationReport struct {
	SumCredits    decimal.Decimal  `json:"sumCredits"`
	SumDebits     decimal.Decimal  `json:"sumDebits"`
	ExpectedFinal *decimal.Decimal `json:"expectedFinal,omitempty"`

	CreditsMatch bool `json:"creditsMatch"`
	DebitsMatch  bool `json:"debitsMatch"`
	FinalMatch   bool `json:"finalMatch"`

	CreditsDiff *decimal.Decimal `json:"creditsDiff,omitempty"`
	DebitsDiff  *decimal.Decimal `json:"debitsDiff,omitempty"`
	FinalDiff   *decimal.Decimal `json:"finalDiff,omitempty"`

	// Valid is true when every quantity the header reports matched within
	// tolerance.
	Valid bool `json:"valid"`
}

// AccountBalancePeriod is an anchor fact: the institution-reported balances
// for one account over one statement period. Upserted on re-ingestion of
// the same period, read back for retrospective balance queries.
type AccountBalancePeriod struct {
	Account        string          `json:"account"`
	AccountType    string          `json:"accountType"`
	Period         string          `json:"period"` // YYYY-MM
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	ClosingBalance decimal.Decimal `json:"closingBalance"`
	CutoffDate     time.Time       `json:"cutoffDate"`
}

// DiagnosticCode classifies the recoverable conditions a parse can hit.
type DiagnosticCode string

const (
	DiagUnresolvedRecord       DiagnosticCode = "unresolved-record"
	DiagAmbiguousDirection     DiagnosticCode = "ambiguous-direction"
	DiagColumnDetectionFailure DiagnosticCode = "column-detection-failure"
	DiagExternalExtraction     DiagnosticCode = "external-extraction-failure"
)

// Diagnostic records a per-row or per-page problem that was absorbed
// locally. Parsing continues; the caller sees the full list on the result.
type Diagnostic struct {
	Code   DiagnosticCode `json:"code"`
	Page   int            `json:"page,omitempty"`
	Detail string         `json:"detail"`
}

// ParseResult is the complete output of one parse invocation. It is owned
// by the caller; no state is shared across invocations.
type ParseResult struct {
	Format             FormatType             `json:"format"`
	AccountID          string                 `json:"accountId"`
	Header             StatementHeader        `json:"header"`
	Movements          []Movement             `json:"movements"`
	InstallmentEntries []InstallmentPlanEntry `json:"installmentEntries,omitempty"`
	Reconciliation     ReconciliationReport   `json:"reconciliation"`
	Diagnostics        []Diagnostic           `json:"diagnostics,omitempty"`
}

// SaveResult is what the persistence collaborator reports back.
type SaveResult struct {
	SavedCount int        `json:"savedCount"`
	Duplicates []Movement `json:"duplicates,omitempty"`
}
