package models

// Token is a positioned text fragment from a PDF page. Coordinates are in
// PDF points with the origin at the top-left, so smaller Top means higher
// on the page.
type Token struct {
	Text  string
	Left  float64
	Right float64
	Top   float64
}

// Page holds both views of one statement page: the plain text lines for
// line-oriented grammars and the positioned tokens for spatial grammars.
type Page struct {
	Number int
	Lines  []string
	Tokens []Token
}

// Document is the extractor's output for a whole statement file.
type Document struct {
	Pages []Page
}

// Text returns all page lines joined, pages separated by newlines. Used by
// format detection and header scans.
func (d *Document) Text() string {
	n := 0
	for _, p := range d.Pages {
		for _, l := range p.Lines {
			n += len(l) + 1
		}
	}
	b := make([]byte, 0, n)
	for _, p := range d.Pages {
		for _, l := range p.Lines {
			b = append(b, l...)
			b = append(b, '\n')
		}
	}
	return string(b)
}
