// Package api exposes the engine over HTTP: statement upload and
// conversion, the stored-movements query surface, exports and
// retrospective balance lookups.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/cuentaclara/statement-engine/internal/extractor"
	"github.com/cuentaclara/statement-engine/internal/models"
	"github.com/cuentaclara/statement-engine/internal/parser"
	"github.com/cuentaclara/statement-engine/internal/reconcile"
	"github.com/cuentaclara/statement-engine/internal/store"
	"github.com/cuentaclara/statement-engine/internal/writer"
)

// VisionParser is the alternate extraction strategy for scanned PDFs.
// It is optional; without an API key the server runs text-only.
type VisionParser interface {
	Parse(ctx context.Context, pdfPath, accountID string) (*models.ParseResult, error)
}

// Handler wires the HTTP routes to the engine's collaborators.
type Handler struct {
	Store      *store.Store
	Vision     VisionParser
	UploadsDir string
	Log        zerolog.Logger
}

// ConvertResponse is the JSON response from POST /api/convert.
type ConvertResponse struct {
	Success    bool                 `json:"success"`
	Error      string               `json:"error,omitempty"`
	Result     *models.ParseResult  `json:"result,omitempty"`
	Save       *models.SaveResult   `json:"save,omitempty"`
	UploadID   string               `json:"uploadId,omitempty"`
	StoredName string               `json:"storedName,omitempty"`
	CSV        string               `json:"csv,omitempty"`
}

// Register sets up the HTTP routes on the fiber app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/api/health", h.HandleHealth)
	app.Post("/api/convert", h.HandleConvert)
	app.Post("/api/confirm-duplicates", h.HandleConfirmDuplicates)
	app.Get("/api/movements", h.HandleMovements)
	app.Get("/api/export/xlsx", h.HandleExportXLSX)
	app.Get("/api/balance", h.HandleBalance)
}

func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"engine": "fiber",
	})
}

// HandleConvert receives a statement PDF, parses it and optionally
// persists the movements. Form fields:
//
//	file      multipart PDF (required)
//	format    force a specific grammar instead of auto-detection
//	strategy  "vision" to skip text parsing and use the image model
//	save      "true" to persist movements and register the upload
//	csv       "true" to include a CSV rendering in the response
func (h *Handler) HandleConvert(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "No file uploaded. Use form field 'file'.")
	}
	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".pdf") {
		return writeError(c, fiber.StatusBadRequest, "Only PDF files are supported.")
	}

	tmpFile, err := os.CreateTemp("", "statement-*.pdf")
	if err != nil {
		return writeError(c, fiber.StatusInternalServerError, "Failed to create temp file.")
	}
	defer os.Remove(tmpFile.Name())
	tmpFile.Close()
	if err := c.SaveFile(fileHeader, tmpFile.Name()); err != nil {
		return writeError(c, fiber.StatusInternalServerError, "Failed to save uploaded file.")
	}

	res, err := h.parseStatement(c, tmpFile.Name())
	if err != nil {
		status := fiber.StatusUnprocessableEntity
		if strings.Contains(err.Error(), "unknown format") {
			status = fiber.StatusBadRequest
		}
		return writeError(c, status, err.Error())
	}

	resp := ConvertResponse{Success: true, Result: res}

	if c.FormValue("csv") == "true" {
		var buf bytes.Buffer
		w := &writer.CSVWriter{IncludeHeader: true}
		if err := w.Write(&buf, res); err != nil {
			return writeError(c, fiber.StatusInternalServerError, fmt.Sprintf("CSV generation failed: %v", err))
		}
		resp.CSV = buf.String()
	}

	if c.FormValue("save") == "true" && h.Store != nil {
		if err := h.persist(c, tmpFile.Name(), fileHeader.Filename, res, &resp); err != nil {
			return writeError(c, fiber.StatusInternalServerError, err.Error())
		}
	}

	return c.JSON(resp)
}

// parseStatement runs the chosen strategy against the uploaded file.
func (h *Handler) parseStatement(c *fiber.Ctx, path string) (*models.ParseResult, error) {
	if c.FormValue("strategy") == "vision" {
		if h.Vision == nil {
			return nil, fmt.Errorf("vision extraction is not configured on this server")
		}
		return h.Vision.Parse(c.Context(), path, c.FormValue("account"))
	}

	doc, err := extractor.ExtractDocument(path)
	if err != nil {
		return nil, fmt.Errorf("PDF extraction failed: %v", err)
	}

	var format models.FormatType
	if forced := c.FormValue("format"); forced != "" {
		format = models.FormatType(forced)
	} else {
		format, err = parser.Detect(doc)
		if err != nil {
			return nil, err
		}
	}

	p, err := parser.New(format, h.Log)
	if err != nil {
		return nil, fmt.Errorf("unknown format %q", format)
	}
	return p.Parse(doc)
}

// persist saves movements, records the balance anchor and registers the
// upload under a standardized name.
func (h *Handler) persist(c *fiber.Ctx, tmpPath, originalName string, res *models.ParseResult, resp *ConvertResponse) error {
	account := res.AccountID
	if v := c.FormValue("account"); v != "" {
		account = v
	}
	if account == "" {
		return fmt.Errorf("cannot save: no account number found in the statement; pass form field 'account'")
	}

	bank := bankForFormat(res.Format)
	accountType := accountTypeForFormat(res.Format)

	saveRes, err := h.Store.SaveMovements(c.Context(), account, bank, accountType, res.Movements)
	if err != nil {
		return fmt.Errorf("saving movements: %v", err)
	}
	resp.Save = &saveRes

	if anchor, ok := anchorFromHeader(account, accountType, res.Header); ok {
		if err := h.Store.UpsertBalanceAnchor(c.Context(), anchor); err != nil {
			h.Log.Warn().Err(err).Str("account", account).Msg("failed to record balance anchor")
		}
	}

	storedName := h.storeUpload(tmpPath, bank, accountType, res.Header)
	month := monthFromHeader(res.Header)
	id, err := h.Store.RegisterUpload(c.Context(), storedName, originalName, bank, accountType, month, len(res.Movements))
	if err != nil {
		return fmt.Errorf("registering upload: %v", err)
	}
	resp.UploadID = id
	resp.StoredName = storedName
	return nil
}

// storeUpload copies the PDF into the uploads directory under a
// standardized name, adding a counter suffix on collision. Failure to
// archive is logged but never fails the request.
func (h *Handler) storeUpload(tmpPath, bank, accountType string, header models.StatementHeader) string {
	base := standardizedName(bank, accountType, header)
	if h.UploadsDir == "" {
		return base
	}
	if err := os.MkdirAll(h.UploadsDir, 0o755); err != nil {
		h.Log.Warn().Err(err).Msg("failed to create uploads dir")
		return base
	}

	name := base
	for i := 2; ; i++ {
		if _, err := os.Stat(filepath.Join(h.UploadsDir, name)); os.IsNotExist(err) {
			break
		}
		name = strings.TrimSuffix(base, ".pdf") + fmt.Sprintf("_%d.pdf", i)
	}

	if err := copyFile(tmpPath, filepath.Join(h.UploadsDir, name)); err != nil {
		h.Log.Warn().Err(err).Msg("failed to archive upload")
	}
	return name
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// ConfirmDuplicatesRequest carries the user-confirmed rows back for a
// forced insert.
type ConfirmDuplicatesRequest struct {
	Account     string            `json:"account"`
	Bank        string            `json:"bank"`
	AccountType string            `json:"accountType"`
	Movements   []models.Movement `json:"movements"`
}

// HandleConfirmDuplicates persists movements previously reported as
// duplicates, after the user confirmed they are genuine repeats.
func (h *Handler) HandleConfirmDuplicates(c *fiber.Ctx) error {
	if h.Store == nil {
		return writeError(c, fiber.StatusServiceUnavailable, "persistence is not configured on this server")
	}
	var req ConfirmDuplicatesRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Account == "" || len(req.Movements) == 0 {
		return writeError(c, fiber.StatusBadRequest, "account and movements are required")
	}

	saved, err := h.Store.ForceSave(c.Context(), req.Account, req.Bank, req.AccountType, req.Movements)
	if err != nil {
		return writeError(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"success": true, "savedCount": saved})
}

// HandleMovements lists stored movements. Filters: bank, month (YYYY-MM),
// account_type, account.
func (h *Handler) HandleMovements(c *fiber.Ctx) error {
	if h.Store == nil {
		return writeError(c, fiber.StatusServiceUnavailable, "persistence is not configured on this server")
	}
	movements, err := h.Store.Movements(c.Context(), movementFilter(c))
	if err != nil {
		return writeError(c, fiber.StatusInternalServerError, err.Error())
	}
	if movements == nil {
		movements = []store.StoredMovement{}
	}
	return c.JSON(fiber.Map{"movements": movements, "count": len(movements)})
}

// HandleExportXLSX streams the filtered movements as an Excel workbook.
func (h *Handler) HandleExportXLSX(c *fiber.Ctx) error {
	if h.Store == nil {
		return writeError(c, fiber.StatusServiceUnavailable, "persistence is not configured on this server")
	}
	stored, err := h.Store.Movements(c.Context(), movementFilter(c))
	if err != nil {
		return writeError(c, fiber.StatusInternalServerError, err.Error())
	}

	res := &models.ParseResult{}
	for _, sm := range stored {
		res.Movements = append(res.Movements, sm.Movement)
	}

	var buf bytes.Buffer
	w := &writer.XLSXWriter{}
	if err := w.Write(&buf, res); err != nil {
		return writeError(c, fiber.StatusInternalServerError, fmt.Sprintf("workbook generation failed: %v", err))
	}

	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="movimientos.xlsx"`)
	return c.Send(buf.Bytes())
}

// HandleBalance reconstructs the account balance at an arbitrary date from
// the stored anchors and movements. Query: account (required), date
// (YYYY-MM-DD, required).
func (h *Handler) HandleBalance(c *fiber.Ctx) error {
	if h.Store == nil {
		return writeError(c, fiber.StatusServiceUnavailable, "persistence is not configured on this server")
	}
	account := c.Query("account")
	dateStr := c.Query("date")
	if account == "" || dateStr == "" {
		return writeError(c, fiber.StatusBadRequest, "query parameters 'account' and 'date' are required")
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, fmt.Sprintf("invalid date %q, want YYYY-MM-DD", dateStr))
	}

	anchors, err := h.Store.BalanceAnchors(c.Context(), account)
	if err != nil {
		return writeError(c, fiber.StatusInternalServerError, err.Error())
	}
	stored, err := h.Store.Movements(c.Context(), store.MovementFilter{Account: account})
	if err != nil {
		return writeError(c, fiber.StatusInternalServerError, err.Error())
	}
	movements := make([]models.Movement, 0, len(stored))
	for _, sm := range stored {
		movements = append(movements, sm.Movement)
	}

	balance, ok := reconcile.BalanceAt(anchors, movements, date)
	if !ok {
		return writeError(c, fiber.StatusNotFound,
			fmt.Sprintf("no balance anchors stored for account %q", account))
	}
	return c.JSON(fiber.Map{
		"account": account,
		"date":    dateStr,
		"balance": balance,
	})
}

func movementFilter(c *fiber.Ctx) store.MovementFilter {
	return store.MovementFilter{
		Bank:        c.Query("bank"),
		Month:       c.Query("month"),
		AccountType: c.Query("account_type"),
		Account:     c.Query("account"),
	}
}

func bankForFormat(f models.FormatType) string {
	switch f {
	case models.FormatBBVADebit, models.FormatBBVACredit:
		return "BBVA"
	case models.FormatScotiaCredit, models.FormatScotiaDebit:
		return "Scotiabank"
	case models.FormatBanorteCredit:
		return "Banorte"
	default:
		return "Desconocido"
	}
}

func accountTypeForFormat(f models.FormatType) string {
	switch f {
	case models.FormatBBVADebit, models.FormatScotiaDebit:
		return "debito"
	default:
		return "credito"
	}
}

var spanishMonthNames = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// standardizedName builds the archive filename: Banco_mes_año_tipo.pdf.
func standardizedName(bank, accountType string, header models.StatementHeader) string {
	month, year := "sinmes", "0000"
	if header.CutoffDate != nil {
		month = spanishMonthNames[header.CutoffDate.Month()-1]
		year = fmt.Sprintf("%d", header.CutoffDate.Year())
	}
	return fmt.Sprintf("%s_%s_%s_%s.pdf", bank, month, year, accountType)
}

// monthFromHeader derives the YYYY-MM bucket for the uploads registry.
func monthFromHeader(header models.StatementHeader) string {
	if header.CutoffDate != nil {
		return header.CutoffDate.Format("2006-01")
	}
	return ""
}

// anchorFromHeader turns a fully-reported summary into a balance anchor.
// Statements missing any of the three facts produce no anchor.
func anchorFromHeader(account, accountType string, header models.StatementHeader) (models.AccountBalancePeriod, bool) {
	if header.PreviousBalance == nil || header.FinalBalance == nil || header.CutoffDate == nil {
		return models.AccountBalancePeriod{}, false
	}
	return models.AccountBalancePeriod{
		Account:        account,
		AccountType:    accountType,
		Period:         header.CutoffDate.Format("2006-01"),
		OpeningBalance: *header.PreviousBalance,
		ClosingBalance: *header.FinalBalance,
		CutoffDate:     *header.CutoffDate,
	}, true
}

func writeError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ConvertResponse{Success: false, Error: msg})
}
