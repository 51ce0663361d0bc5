package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/cuentaclara/statement-engine/internal/api"
	"github.com/cuentaclara/statement-engine/internal/extractor"
	"github.com/cuentaclara/statement-engine/internal/logger"
	"github.com/cuentaclara/statement-engine/internal/models"
	"github.com/cuentaclara/statement-engine/internal/parser"
	"github.com/cuentaclara/statement-engine/internal/store"
	"github.com/cuentaclara/statement-engine/internal/vision"
	"github.com/cuentaclara/statement-engine/internal/writer"
)

const version = "1.0.0"

var knownFormats = []models.FormatType{
	models.FormatBBVADebit, models.FormatBBVACredit,
	models.FormatScotiaCredit, models.FormatScotiaDebit,
	models.FormatBanorteCredit,
}

func main() {
	// Optional; absence of a .env file is not an error.
	godotenv.Load()

	formatFlag := flag.String("format", "", "Statement format (auto-detected if omitted)")
	outputFlag := flag.String("output", "", "Output file path (defaults to input filename with .csv extension)")
	xlsxFlag := flag.Bool("xlsx", false, "Write an Excel workbook instead of CSV")
	headerFlag := flag.Bool("header", true, "Include statement metadata header rows in CSV")
	serveFlag := flag.Bool("serve", false, "Run the HTTP API server instead of converting files")
	addrFlag := flag.String("addr", ":8080", "HTTP listen address (with --serve)")
	dbFlag := flag.String("db", "movements.db", "SQLite database path (with --serve)")
	uploadsFlag := flag.String("uploads", "uploads", "Directory for archived statement PDFs (with --serve)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	helpFlag := flag.Bool("help", false, "Show usage help")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Statement Engine

Parses Mexican bank statement PDFs (BBVA, Scotiabank, Banorte) into
structured movements, reconciles them against the statement summary and
optionally serves an HTTP API with persistence.

Usage:
  statement-engine [flags] <input.pdf> [input2.pdf ...]
  statement-engine --serve [--addr :8080] [--db movements.db]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Auto-detect format and convert to CSV
  statement-engine estado.pdf

  # Force a format and write an Excel workbook
  statement-engine --format=scotia-debit --xlsx estado.pdf

  # Run the API server
  statement-engine --serve --addr :8080

Supported formats:
  bbva-debit      BBVA checking account
  bbva-credit     BBVA credit card
  scotia-credit   Scotiabank credit card
  scotia-debit    Scotiabank checking account
  banorte-credit  Banorte credit card
`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("statement-engine v%s\n", version)
		os.Exit(0)
	}

	log := logger.New()

	if *serveFlag {
		if err := serve(*addrFlag, *dbFlag, *uploadsFlag); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
		return
	}

	if *helpFlag || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	var format models.FormatType
	if *formatFlag != "" {
		format = models.FormatType(*formatFlag)
		known := false
		for _, f := range knownFormats {
			if f == format {
				known = true
				break
			}
		}
		if !known {
			fatalf("Unknown format %q. Supported: bbva-debit, bbva-credit, scotia-credit, scotia-debit, banorte-credit\n", *formatFlag)
		}
	}

	for _, inputPath := range flag.Args() {
		if err := processFile(inputPath, format, *outputFlag, *headerFlag, *xlsxFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error processing %s: %v\n", inputPath, err)
			os.Exit(1)
		}
	}
}

func processFile(inputPath string, format models.FormatType, outputPath string, includeHeader, asXLSX bool) error {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", inputPath)
	}
	if ext := strings.ToLower(filepath.Ext(inputPath)); ext != ".pdf" {
		return fmt.Errorf("expected .pdf file, got %q", ext)
	}

	log := logger.New()

	fmt.Printf("Processing: %s\n", inputPath)

	doc, err := extractor.ExtractDocument(inputPath)
	if err != nil {
		return fmt.Errorf("PDF extraction failed: %w", err)
	}
	fmt.Printf("  Extracted text from %d page(s)\n", len(doc.Pages))

	effectiveFormat := format
	if effectiveFormat == "" {
		detected, err := parser.Detect(doc)
		if err != nil {
			return err
		}
		effectiveFormat = detected
		fmt.Printf("  Auto-detected format: %s\n", effectiveFormat)
	}

	p, err := parser.New(effectiveFormat, log)
	if err != nil {
		return err
	}
	fmt.Printf("  Using %s parser\n", p.FormatName())

	res, err := p.Parse(doc)
	if err != nil {
		return fmt.Errorf("parsing failed: %w", err)
	}

	fmt.Printf("  Found %d movement(s)\n", len(res.Movements))
	if len(res.InstallmentEntries) > 0 {
		fmt.Printf("  Found %d installment plan(s)\n", len(res.InstallmentEntries))
	}
	for _, d := range res.Diagnostics {
		fmt.Printf("  Diagnostic [%s]: %s\n", d.Code, d.Detail)
	}
	if res.Reconciliation.Valid {
		fmt.Println("  Reconciliation: OK")
	} else {
		fmt.Println("  Reconciliation: MISMATCH against statement summary")
		if d := res.Reconciliation.CreditsDiff; d != nil {
			fmt.Printf("    credits off by %s\n", d.StringFixed(2))
		}
		if d := res.Reconciliation.DebitsDiff; d != nil {
			fmt.Printf("    debits off by %s\n", d.StringFixed(2))
		}
		if d := res.Reconciliation.FinalDiff; d != nil {
			fmt.Printf("    final balance off by %s\n", d.StringFixed(2))
		}
	}

	outPath := outputPath
	if outPath == "" {
		base := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))
		if asXLSX {
			outPath = base + ".xlsx"
		} else {
			outPath = base + ".csv"
		}
	}

	if asXLSX {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create output file %q: %w", outPath, err)
		}
		defer f.Close()
		w := &writer.XLSXWriter{}
		if err := w.Write(f, res); err != nil {
			return fmt.Errorf("XLSX write failed: %w", err)
		}
	} else {
		w := &writer.CSVWriter{IncludeHeader: includeHeader}
		if err := w.WriteToFile(outPath, res); err != nil {
			return fmt.Errorf("CSV write failed: %w", err)
		}
	}

	fmt.Printf("  Output: %s\n", outPath)
	if res.AccountID != "" {
		fmt.Printf("  Account: %s\n", res.AccountID)
	}
	if res.Header.Period != "" {
		fmt.Printf("  Period: %s\n", res.Header.Period)
	}
	fmt.Println("  Done.")
	return nil
}

func serve(addr, dbPath, uploadsDir string) error {
	log := logger.New()

	st, err := store.Open(dbPath, logger.For(log, "store"))
	if err != nil {
		return err
	}
	defer st.Close()

	handler := &api.Handler{
		Store:      st,
		UploadsDir: uploadsDir,
		Log:        logger.For(log, "api"),
	}

	// Vision extraction needs a Gemini API key; without one the server
	// still runs, text-only.
	if os.Getenv("GEMINI_API_KEY") != "" || os.Getenv("GOOGLE_API_KEY") != "" {
		v, err := vision.New(context.Background(), logger.For(log, "vision"))
		if err != nil {
			log.Warn().Err(err).Msg("vision extractor unavailable")
		} else {
			handler.Vision = v
		}
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 32 << 20,
		AppName:   "statement-engine v" + version,
	})
	handler.Register(app)

	log.Info().Str("addr", addr).Str("db", dbPath).Msg("starting HTTP server")
	return app.Listen(addr)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}
