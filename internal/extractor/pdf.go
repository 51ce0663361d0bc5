// Package extractor turns statement PDFs into the two views the parsers
// consume: plain text lines per page for the line-oriented grammars, and
// positioned tokens per page for the spatial grammar.
package extractor

import (
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/cuentaclara/statement-engine/internal/models"
)

// ExtractDocument reads a PDF file and returns its pages. The structured
// library is tried first; if it yields garbage (identity-encoded fonts,
// scanned documents) the external pdftotext command is the fallback. In
// the fallback case the document has no positioned tokens, only lines.
func ExtractDocument(filePath string) (*models.Document, error) {
	doc, libErr := extractWithLibrary(filePath)
	if libErr == nil && isReadableDocument(doc) {
		return doc, nil
	}

	doc, popplerErr := extractWithPdftotext(filePath)
	if popplerErr == nil && isReadableDocument(doc) {
		return doc, nil
	}

	if libErr != nil {
		return nil, fmt.Errorf("PDF text extraction failed: %v. The file may be image-based/scanned or use custom font encodings", libErr)
	}
	return nil, fmt.Errorf("no readable text could be extracted; the file may be image-based/scanned (vision extraction can handle those)")
}

// extractWithLibrary builds both views with ledongthuc/pdf. The library
// panics on some malformed files, so extraction is fenced with a recover.
func extractWithLibrary(filePath string) (doc *models.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PDF library crashed: %v", r)
		}
	}()

	f, r, openErr := pdf.Open(filePath)
	if openErr != nil {
		return nil, openErr
	}
	defer f.Close()

	numPages := r.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	doc = &models.Document{}
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		p := models.Page{
			Number: i,
			Lines:  extractLines(page),
			Tokens: extractTokens(page),
		}
		if len(p.Lines) == 0 && len(p.Tokens) > 0 {
			p.Lines = linesFromTokens(p.Tokens)
		}
		doc.Pages = append(doc.Pages, p)
	}
	return doc, nil
}

// extractLines reads the row-oriented text view of one page.
func extractLines(page pdf.Page) []string {
	rows, err := page.GetTextByRow()
	if err != nil {
		return nil
	}
	var lines []string
	for _, row := range rows {
		var parts []string
		for _, word := range row.Content {
			parts = append(parts, word.S)
		}
		line := strings.TrimSpace(strings.Join(parts, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// extractTokens reads the positioned text view of one page. PDF Y grows
// bottom-to-top; tokens are flipped so Top grows downward, matching what
// the spatial column extractor expects.
func extractTokens(page pdf.Page) []models.Token {
	content := page.Content()
	if len(content.Text) == 0 {
		return nil
	}

	maxY := content.Text[0].Y
	for _, t := range content.Text {
		if t.Y > maxY {
			maxY = t.Y
		}
	}

	var tokens []models.Token
	for _, t := range content.Text {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		tokens = append(tokens, models.Token{
			Text:  t.S,
			Left:  t.X,
			Right: t.X + t.W,
			Top:   maxY - t.Y,
		})
	}
	return tokens
}

// linesFromTokens reconstructs text lines by grouping tokens on vertical
// position, for pages where the row view comes back empty.
func linesFromTokens(tokens []models.Token) []string {
	sorted := make([]models.Token, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Top < sorted[j].Top })

	var groups [][]models.Token
	lastTop := -1e9
	for _, t := range sorted {
		if t.Top-lastTop > 3 {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], t)
		lastTop = t.Top
	}

	var lines []string
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].Left < g[j].Left })
		var parts []string
		var prevRight float64
		for i, t := range g {
			if i > 0 && t.Left-prevRight > 15 {
				// Wide gap reads as a column separator.
				parts = append(parts, " ")
			}
			parts = append(parts, t.Text)
			prevRight = t.Right
		}
		line := strings.TrimSpace(strings.Join(parts, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// extractWithPdftotext shells out to poppler-utils, one page at a time to
// preserve page boundaries.
func extractWithPdftotext(filePath string) (*models.Document, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not available: %v", err)
	}

	numPages := 1
	if out, err := exec.Command("pdfinfo", filePath).Output(); err == nil {
		for _, line := range strings.Split(string(out), "\n") {
			if strings.HasPrefix(line, "Pages:") {
				if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:"))); err == nil && n > 0 {
					numPages = n
				}
			}
		}
	}

	doc := &models.Document{}
	for i := 1; i <= numPages; i++ {
		pageStr := strconv.Itoa(i)
		out, err := exec.Command("pdftotext", "-layout", "-f", pageStr, "-l", pageStr, filePath, "-").Output()
		if err != nil {
			continue
		}
		var lines []string
		for _, line := range strings.Split(string(out), "\n") {
			if strings.TrimSpace(line) != "" {
				lines = append(lines, strings.TrimRight(line, " \t"))
			}
		}
		if len(lines) > 0 {
			doc.Pages = append(doc.Pages, models.Page{Number: i, Lines: lines})
		}
	}

	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("pdftotext produced no output")
	}
	return doc, nil
}

// commonWords that appear in virtually every Mexican bank statement. If
// the extracted text contains none of these, it is likely garbage.
var commonWords = []string{
	"cuenta", "saldo", "fecha", "periodo", "movimiento", "cargo",
	"abono", "retiro", "depósito", "deposito", "total", "clabe",
	"tarjeta", "pago", "banco", "moneda",
}

func containsCommonWords(doc *models.Document) bool {
	combined := strings.ToLower(doc.Text())
	for _, word := range commonWords {
		if strings.Contains(combined, word) {
			return true
		}
	}
	return false
}

// textQuality returns the ratio of readable characters to total. A strict
// allow-list beats unicode.IsLetter here, which also matches the accented
// garbage produced by identity-encoded fonts — the legitimate Spanish
// accents are on the list explicitly.
func textQuality(text string) float64 {
	total := 0
	readable := 0
	for _, r := range text {
		total++
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || unicode.IsSpace(r) ||
			strings.ContainsRune(".,-/:;()'\"$%&@#!?+=*\t", r) ||
			strings.ContainsRune("áéíóúñÁÉÍÓÚÑüÜ", r) {
			readable++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}

// isReadableDocument requires enough text, mostly readable characters and
// at least one recognizable statement word.
func isReadableDocument(doc *models.Document) bool {
	if doc == nil {
		return false
	}
	text := doc.Text()
	if len(strings.TrimSpace(text)) <= 50 {
		return false
	}
	if textQuality(text) <= 0.6 {
		return false
	}
	return containsCommonWords(doc)
}
