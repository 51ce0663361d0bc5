package parser

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/cuentaclara/statement-engine/internal/models"
)

// lineTolerance is the vertical gap (in PDF points) above which two tokens
// belong to different text lines.
const lineTolerance = 3.0

// minDetectedColumns is the minimum header columns required to treat a
// page as a movements grid. One column may be missing (wrapped header
// text); fewer means the page is not a table.
const minDetectedColumns = 5

// errColumnDetection signals that a page has no usable movements table.
// The caller records a column-detection-failure diagnostic and moves on to
// the next page.
var errColumnDetection = errors.New("could not locate the movements table header")

// Grid column names for the checking-account layout, and the header
// keywords that identify each one.
var gridHeaderKeywords = map[string][]string{
	"fecha":    {"Fecha", "FECHA"},
	"concepto": {"Concepto", "CONCEPTO", "Descripcion", "DESCRIPCION"},
	"origen":   {"Origen/Referencia", "Origen", "ORIGEN/REFERENCIA", "ORIGEN"},
	"deposito": {"Depósito", "Deposito", "DEPÓSITO", "DEPOSITO"},
	"retiro":   {"Retiro", "RETIRO"},
	"saldo":    {"Saldo", "SALDO"},
}

// gridRow is one reconstructed table row. Continuation lines have already
// been merged into their owning row.
type gridRow struct {
	cells map[string]string
}

func (r gridRow) get(col string) string {
	return strings.TrimSpace(r.cells[col])
}

// columnLayout holds the detected column geometry for one page: names in
// left-to-right order with their boundary intervals, plus the index of the
// header line itself.
type columnLayout struct {
	names      []string
	left       []float64
	right      []float64
	headerLine int
}

// assign returns the column whose half-open boundary interval [left, right)
// contains x. Assignment is a pure function of x and the layout, never of
// row order. Falls back to the last column for x at or past the open end.
func (c *columnLayout) assign(x float64) string {
	for i, name := range c.names {
		if c.left[i] <= x && x < c.right[i] {
			return name
		}
	}
	return c.names[len(c.names)-1]
}

// clusterLines groups positioned tokens into text lines. Tokens are sorted
// by vertical position; a new line starts whenever the gap from the
// previous token exceeds lineTolerance.
func clusterLines(tokens []models.Token) [][]models.Token {
	if len(tokens) == 0 {
		return nil
	}
	sorted := make([]models.Token, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Top < sorted[j].Top })

	var lines [][]models.Token
	lastTop := sorted[0].Top - lineTolerance - 1
	for _, t := range sorted {
		if t.Top-lastTop > lineTolerance {
			lines = append(lines, nil)
		}
		lines[len(lines)-1] = append(lines[len(lines)-1], t)
		lastTop = t.Top
	}
	for _, line := range lines {
		sort.SliceStable(line, func(i, j int) bool { return line[i].Left < line[j].Left })
	}
	return lines
}

// detectColumns locates the header tokens and derives column boundaries.
// Each column's anchor is the mean left position of its header tokens;
// boundaries are midpoints between adjacent anchors, with open-ended
// bounds on the outside.
func detectColumns(lines [][]models.Token) (*columnLayout, error) {
	type anchor struct {
		name string
		x    float64
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	headerLine := -1

	for lineIdx, line := range lines {
		for _, tok := range line {
			for name, keywords := range gridHeaderKeywords {
				for _, kw := range keywords {
					if tok.Text == kw {
						sums[name] += tok.Left
						counts[name]++
						if name == "fecha" && headerLine < 0 {
							headerLine = lineIdx
						}
					}
				}
			}
		}
	}

	if len(counts) < minDetectedColumns || headerLine < 0 {
		return nil, fmt.Errorf("%w: found %d of %d columns", errColumnDetection, len(counts), len(gridHeaderKeywords))
	}

	anchors := make([]anchor, 0, len(counts))
	for name := range counts {
		anchors = append(anchors, anchor{name: name, x: sums[name] / float64(counts[name])})
	}
	sort.Slice(anchors, func(i, j int) bool { return anchors[i].x < anchors[j].x })

	layout := &columnLayout{headerLine: headerLine}
	for i, a := range anchors {
		layout.names = append(layout.names, a.name)
		if i == 0 {
			layout.left = append(layout.left, 0)
		} else {
			layout.left = append(layout.left, (anchors[i-1].x+a.x)/2)
		}
		if i == len(anchors)-1 {
			layout.right = append(layout.right, 1e9)
		} else {
			layout.right = append(layout.right, (a.x+anchors[i+1].x)/2)
		}
	}
	return layout, nil
}

// gridDatePattern matches the date cell that starts a new row: "24 SEP",
// "3 OCT".
var gridDatePattern = regexp.MustCompile(`^\d{1,2}\s+[A-ZÁÉÍÓÚÑ]{3}$`)

// notesMarker ends the movements table; everything after it is legal
// boilerplate.
const notesMarker = "LAS TASAS DE INTERES ESTAN EXPRESADAS"

// extractGridRows reconstructs the movement rows of one page from its
// positioned tokens. Rows whose date cell is not date-shaped are merged
// into the previous row as continuations.
func extractGridRows(page models.Page) ([]gridRow, error) {
	lines := clusterLines(page.Tokens)
	if lines == nil {
		return nil, fmt.Errorf("%w: page has no positioned tokens", errColumnDetection)
	}

	layout, err := detectColumns(lines)
	if err != nil {
		return nil, err
	}

	var raw []gridRow
	for lineIdx, line := range lines {
		if lineIdx <= layout.headerLine {
			continue
		}

		var parts []string
		for _, tok := range line {
			parts = append(parts, tok.Text)
		}
		if strings.Contains(strings.Join(parts, " "), notesMarker) {
			break
		}

		row := gridRow{cells: map[string]string{}}
		for _, tok := range line {
			mid := (tok.Left + tok.Right) / 2
			col := layout.assign(mid)
			if row.cells[col] != "" {
				row.cells[col] += " " + tok.Text
			} else {
				row.cells[col] = tok.Text
			}
		}
		empty := true
		for _, v := range row.cells {
			if strings.TrimSpace(v) != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}
		raw = append(raw, row)
	}

	// Merge continuation rows into their owning movement.
	var rows []gridRow
	for _, row := range raw {
		if gridDatePattern.MatchString(row.get("fecha")) {
			rows = append(rows, row)
			continue
		}
		if len(rows) == 0 {
			continue
		}
		last := &rows[len(rows)-1]
		for _, col := range []string{"concepto", "origen"} {
			if extra := row.get(col); extra != "" {
				last.cells[col] = strings.TrimSpace(last.cells[col] + " " + extra)
			}
		}
		for _, col := range []string{"deposito", "retiro", "saldo"} {
			extra := row.get(col)
			if extra != "" && !strings.Contains(last.cells[col], extra) {
				last.cells[col] = strings.TrimSpace(last.cells[col] + " " + extra)
			}
		}
	}
	return rows, nil
}
