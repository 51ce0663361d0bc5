// Package vision is the alternate extraction strategy for scanned or
// image-based statements: each page is rendered to an image and sent to
// Gemini, which returns the movements as JSON. It is polymorphic with the
// text parsers — same ParseResult out — but works per page, with failures
// isolated so one bad page never aborts the document.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/cuentaclara/statement-engine/internal/models"
	"github.com/cuentaclara/statement-engine/internal/reconcile"
)

// DefaultModelName is the Gemini model used for page extraction.
const DefaultModelName = "gemini-2.0-flash"

// maxWorkers bounds concurrent page requests. Pages are independent, so
// ordering is restored after the fact by date.
const maxWorkers = 4

// Extractor sends rendered statement pages to Gemini.
type Extractor struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

// New builds an Extractor. The API key is read from the environment by the
// genai client (GEMINI_API_KEY / GOOGLE_API_KEY).
func New(ctx context.Context, log zerolog.Logger) (*Extractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("vision: create genai client: %w", err)
	}
	return &Extractor{client: client, model: DefaultModelName, log: log}, nil
}

const extractionPrompt = "Eres un extractor de estados de cuenta bancarios mexicanos.\n\n" +
	"Tarea:\n" +
	"- Extrae TODOS los movimientos visibles en la imagen adjunta.\n" +
	"- Responde SOLO con JSON válido (sin comentarios, sin texto extra).\n" +
	"- Responde con un arreglo JSON de objetos.\n\n" +
	"Cada objeto debe tener estos campos:\n" +
	"- \"fecha\": string, formato ISO \"YYYY-MM-DD\"\n" +
	"- \"descripcion\": string\n" +
	"- \"monto\": número positivo\n" +
	"- \"tipo\": \"Cargo\" o \"Abono\"\n\n" +
	"Reglas:\n" +
	"- No inventes movimientos; omite filas ilegibles.\n" +
	"- No envuelvas la respuesta en ```json ni en Markdown.\n" +
	"- La respuesta debe empezar con \"[\" y terminar con \"]\".\n"

// visionMovement is the wire shape the model returns.
type visionMovement struct {
	Fecha       string  `json:"fecha"`
	Descripcion string  `json:"descripcion"`
	Monto       float64 `json:"monto"`
	Tipo        string  `json:"tipo"`
}

// Parse renders the PDF and extracts movements from every page
// concurrently. Per-page failures contribute a diagnostic and zero
// movements; only a document-level rendering failure is an error.
func (e *Extractor) Parse(ctx context.Context, pdfPath, accountID string) (*models.ParseResult, error) {
	pages, err := renderPages(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("vision: rendering pages: %w", err)
	}

	type pageOutcome struct {
		page      int
		movements []models.Movement
		diag      *models.Diagnostic
	}

	outcomes := make([]pageOutcome, len(pages))
	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup

	for i, img := range pages {
		wg.Add(1)
		go func(idx int, pageImage []byte) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			movs, err := e.extractPage(ctx, pageImage)
			outcome := pageOutcome{page: idx + 1, movements: movs}
			if err != nil {
				e.log.Warn().Int("page", idx+1).Err(err).Msg("vision extraction failed for page")
				outcome.diag = &models.Diagnostic{
					Code:   models.DiagExternalExtraction,
					Page:   idx + 1,
					Detail: err.Error(),
				}
			}
			outcomes[idx] = outcome
		}(i, img)
	}
	wg.Wait()

	res := &models.ParseResult{
		AccountID: accountID,
		Header:    models.StatementHeader{AccountID: accountID},
	}
	for _, o := range outcomes {
		res.Movements = append(res.Movements, o.movements...)
		if o.diag != nil {
			res.Diagnostics = append(res.Diagnostics, *o.diag)
		}
	}
	sort.SliceStable(res.Movements, func(i, j int) bool {
		return res.Movements[i].OperationDate.Before(res.Movements[j].OperationDate)
	})
	res.Reconciliation = reconcile.Validate(res.Header, res.Movements)
	return res, nil
}

// extractPage asks the model for the full page and for its two halves
// (10% overlap), then keeps the richer of the two deduplicated results.
// Statements with dense tables routinely lose rows on a full-page pass.
func (e *Extractor) extractPage(ctx context.Context, pageImage []byte) ([]models.Movement, error) {
	full, fullErr := e.requestMovements(ctx, pageImage)

	var halves []models.Movement
	var halvesErr error
	top, bottom, err := splitHalves(pageImage)
	if err != nil {
		halvesErr = err
	} else {
		topMovs, errTop := e.requestMovements(ctx, top)
		bottomMovs, errBottom := e.requestMovements(ctx, bottom)
		if errTop != nil && errBottom != nil {
			halvesErr = errTop
		}
		halves = dedupe(append(topMovs, bottomMovs...))
	}

	if fullErr != nil && halvesErr != nil {
		return nil, fmt.Errorf("both full-page and split-page extraction failed: %v", fullErr)
	}
	if len(halves) > len(full) {
		return halves, nil
	}
	return dedupe(full), nil
}

// requestMovements performs one model call for one image.
func (e *Extractor) requestMovements(ctx context.Context, img []byte) ([]models.Movement, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: extractionPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: "image/png",
						Data:     img,
					},
				},
			},
		},
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("empty response from model")
	}

	var wire []visionMovement
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &wire); err != nil {
		return nil, fmt.Errorf("unmarshal model JSON: %w", err)
	}

	movements := make([]models.Movement, 0, len(wire))
	for _, w := range wire {
		date, err := time.Parse("2006-01-02", w.Fecha)
		if err != nil {
			continue
		}
		direction := models.Debit
		if strings.EqualFold(w.Tipo, string(models.Credit)) {
			direction = models.Credit
		}
		movements = append(movements, models.Movement{
			OperationDate: date,
			Description:   strings.TrimSpace(w.Descripcion),
			Amount:        decimal.NewFromFloat(w.Monto).Round(2).Abs(),
			Direction:     direction,
			Category:      models.CategoryRegular,
		})
	}
	return movements, nil
}

// dedupe drops repeated movements; the overlap band means a record can
// appear in both halves. The key matches the persistence layer's
// duplicate key: date, description, amount at two decimals, direction.
func dedupe(movements []models.Movement) []models.Movement {
	seen := make(map[string]bool, len(movements))
	out := movements[:0]
	for _, m := range movements {
		key := fmt.Sprintf("%s|%s|%s|%s",
			m.OperationDate.Format("2006-01-02"), m.Description,
			m.Amount.StringFixed(2), m.Direction)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}

// cleanModelJSON strips Markdown fences and surrounding junk when the
// model ignores the raw-JSON instruction.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
