package parser

import (
	"strings"
	"time"
)

// sectionState tracks which logical table of a credit-card statement the
// scan is currently inside.
type sectionState int

const (
	sectionIdle sectionState = iota
	sectionInstallments
	sectionRegular
)

// sectionScanner drives section transitions for line-oriented credit-card
// layouts. Entering a section is triggered by a literal header line;
// leaving by a totals/boilerplate terminator or by the next section header.
// The scanner holds no record state; pending-record assembly lives with
// the grammar so it stays an explicit accumulator.
type sectionScanner struct {
	installmentMarkers []string
	regularMarkers     []string
	terminators        []string

	state sectionState
}

// transition inspects one line and updates the state. It returns true when
// the line was a section boundary and should not be parsed as a record.
func (s *sectionScanner) transition(line string) bool {
	for _, m := range s.installmentMarkers {
		if strings.Contains(line, m) {
			s.state = sectionInstallments
			return true
		}
	}
	for _, m := range s.regularMarkers {
		if strings.HasPrefix(line, m) {
			s.state = sectionRegular
			return true
		}
	}
	if s.state == sectionIdle {
		return false
	}
	for _, t := range s.terminators {
		if strings.HasPrefix(line, t) || strings.Contains(line, t) {
			s.state = sectionIdle
			return true
		}
	}
	return false
}

// isCreditTableHeader reports repeated column-header noise inside the
// movement tables of the credit layouts.
func isCreditTableHeader(line string) bool {
	if strings.Contains(line, "Tarjeta titular") || strings.Contains(line, "Tarjeta adicional") {
		return true
	}
	if strings.Contains(line, "Fecha de la") {
		return true
	}
	if strings.Contains(line, "Fecha de") && strings.Contains(line, "operación") {
		return true
	}
	if strings.Contains(line, "Descripción del movimiento") && strings.Contains(line, "Monto") {
		return true
	}
	return false
}

// pendingRecord is the explicit accumulator for a multi-line movement. A
// record starts at a leading-date line; continuation lines append text and,
// when present, the signed amount token. Flushing yields zero or one
// Movement: no resolved amount means the record is dropped with an
// unresolved-record diagnostic.
type pendingRecord struct {
	opDate     time.Time
	settleDate *time.Time
	descParts  []string
	amountTok  string
	startLine  string
}

func (p *pendingRecord) appendText(s string) {
	s = strings.TrimSpace(s)
	if s != "" {
		p.descParts = append(p.descParts, s)
	}
}

func (p *pendingRecord) description() string {
	return collapseSpaces(strings.Join(p.descParts, " "))
}
