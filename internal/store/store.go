// Package store is the persistence collaborator: movements with
// duplicate bookkeeping, per-period balance anchors, and the upload
// registry. SQLite through the cgo-free modernc driver.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/cuentaclara/statement-engine/internal/models"
)

// Store wraps the SQLite handle.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (or creates) the database and runs the schema migration.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite handles one writer at a time; serializing through a single
	// connection avoids SQLITE_BUSY under concurrent uploads.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS movements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_number TEXT NOT NULL,
			bank TEXT,
			account_type TEXT,
			fecha_oper TEXT NOT NULL,
			fecha_liq TEXT,
			descripcion TEXT NOT NULL,
			monto TEXT NOT NULL,
			tipo TEXT NOT NULL,
			categoria TEXT,
			unverified INTEGER NOT NULL DEFAULT 0,
			saldo_posterior TEXT,
			meta_monto_original TEXT,
			meta_saldo_pendiente TEXT,
			occurrence INTEGER NOT NULL DEFAULT 1,
			UNIQUE(account_number, fecha_oper, descripcion, monto, tipo, occurrence)
		)`,
		`CREATE TABLE IF NOT EXISTS account_balances (
			account_number TEXT NOT NULL,
			account_type TEXT,
			period TEXT NOT NULL,
			saldo_inicial TEXT NOT NULL,
			saldo_final TEXT NOT NULL,
			fecha_corte TEXT NOT NULL,
			UNIQUE(account_number, period)
		)`,
		`CREATE TABLE IF NOT EXISTS uploads (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			original_filename TEXT,
			bank TEXT,
			account_type TEXT,
			month TEXT,
			movement_count INTEGER,
			uploaded_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

const dateLayout = "2006-01-02"

// SaveMovements inserts movements for an account, skipping rows that
// already exist under the duplicate key (account, operation date,
// description, amount, direction). Skipped rows come back in the result
// so the caller can offer a confirm-and-force flow.
func (s *Store) SaveMovements(ctx context.Context, account, bank, accountType string, movements []models.Movement) (models.SaveResult, error) {
	var result models.SaveResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	for _, m := range movements {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM movements
			 WHERE account_number = ? AND fecha_oper = ? AND descripcion = ? AND monto = ? AND tipo = ?`,
			account, m.OperationDate.Format(dateLayout), m.Description,
			m.Amount.StringFixed(2), string(m.Direction)).Scan(&exists)
		if err != nil {
			return result, fmt.Errorf("store: duplicate check: %w", err)
		}
		if exists > 0 {
			result.Duplicates = append(result.Duplicates, m)
			continue
		}

		if err := insertMovement(ctx, tx, account, bank, accountType, m, 1); err != nil {
			return result, err
		}
		result.SavedCount++
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("store: commit: %w", err)
	}
	s.log.Info().Str("account", account).Int("saved", result.SavedCount).
		Int("duplicates", len(result.Duplicates)).Msg("saved movements")
	return result, nil
}

// ForceSave inserts user-confirmed duplicates with the next occurrence
// number, so two genuinely identical transactions can coexist.
func (s *Store) ForceSave(ctx context.Context, account, bank, accountType string, movements []models.Movement) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	saved := 0
	for _, m := range movements {
		var maxOcc int
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(occurrence), 0) FROM movements
			 WHERE account_number = ? AND fecha_oper = ? AND descripcion = ? AND monto = ? AND tipo = ?`,
			account, m.OperationDate.Format(dateLayout), m.Description,
			m.Amount.StringFixed(2), string(m.Direction)).Scan(&maxOcc)
		if err != nil {
			return saved, fmt.Errorf("store: occurrence lookup: %w", err)
		}
		if err := insertMovement(ctx, tx, account, bank, accountType, m, maxOcc+1); err != nil {
			return saved, err
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return saved, fmt.Errorf("store: commit: %w", err)
	}
	return saved, nil
}

func insertMovement(ctx context.Context, tx *sql.Tx, account, bank, accountType string, m models.Movement, occurrence int) error {
	var fechaLiq, saldo, metaOriginal, metaPendiente interface{}
	if m.SettlementDate != nil {
		fechaLiq = m.SettlementDate.Format(dateLayout)
	}
	if m.BalanceAfter != nil {
		saldo = m.BalanceAfter.StringFixed(2)
	}
	if m.Installment != nil {
		metaOriginal = m.Installment.OriginalAmount.StringFixed(2)
		metaPendiente = m.Installment.RemainingBalance.StringFixed(2)
	}
	unverified := 0
	if m.Unverified {
		unverified = 1
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO movements (
			account_number, bank, account_type, fecha_oper, fecha_liq,
			descripcion, monto, tipo, categoria, unverified,
			saldo_posterior, meta_monto_original, meta_saldo_pendiente, occurrence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account, bank, accountType, m.OperationDate.Format(dateLayout), fechaLiq,
		m.Description, m.Amount.StringFixed(2), string(m.Direction), string(m.Category),
		unverified, saldo, metaOriginal, metaPendiente, occurrence)
	if err != nil {
		return fmt.Errorf("store: insert movement: %w", err)
	}
	return nil
}

// MovementFilter narrows Movements queries; zero values mean "any".
type MovementFilter struct {
	Bank        string
	Month       string // YYYY-MM
	AccountType string
	Account     string
}

// StoredMovement is a movement joined with its account bookkeeping.
type StoredMovement struct {
	models.Movement
	Account     string `json:"account"`
	Bank        string `json:"bank"`
	AccountType string `json:"accountType"`
}

// Movements returns stored movements matching the filter, newest first.
func (s *Store) Movements(ctx context.Context, f MovementFilter) ([]StoredMovement, error) {
	query := `SELECT account_number, bank, account_type, fecha_oper, fecha_liq,
		descripcion, monto, tipo, categoria, unverified, saldo_posterior
		FROM movements WHERE 1=1`
	var args []interface{}
	if f.Bank != "" {
		query += " AND bank = ?"
		args = append(args, f.Bank)
	}
	if f.Month != "" {
		query += " AND substr(fecha_oper, 1, 7) = ?"
		args = append(args, f.Month)
	}
	if f.AccountType != "" {
		query += " AND account_type = ?"
		args = append(args, f.AccountType)
	}
	if f.Account != "" {
		query += " AND account_number = ?"
		args = append(args, f.Account)
	}
	query += " ORDER BY fecha_oper DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query movements: %w", err)
	}
	defer rows.Close()

	var out []StoredMovement
	for rows.Next() {
		var (
			sm                      StoredMovement
			fechaOper               string
			fechaLiq, saldo         sql.NullString
			monto, tipo, categoria  string
			unverified              int
		)
		if err := rows.Scan(&sm.Account, &sm.Bank, &sm.AccountType, &fechaOper, &fechaLiq,
			&sm.Description, &monto, &tipo, &categoria, &unverified, &saldo); err != nil {
			return nil, fmt.Errorf("store: scan movement: %w", err)
		}
		if sm.OperationDate, err = time.Parse(dateLayout, fechaOper); err != nil {
			return nil, fmt.Errorf("store: bad stored date %q: %w", fechaOper, err)
		}
		if fechaLiq.Valid {
			if d, err := time.Parse(dateLayout, fechaLiq.String); err == nil {
				sm.SettlementDate = &d
			}
		}
		if sm.Amount, err = decimal.NewFromString(monto); err != nil {
			return nil, fmt.Errorf("store: bad stored amount %q: %w", monto, err)
		}
		if saldo.Valid {
			if d, err := decimal.NewFromString(saldo.String); err == nil {
				sm.BalanceAfter = &d
			}
		}
		sm.Direction = models.Direction(tipo)
		sm.Category = models.Category(categoria)
		sm.Unverified = unverified != 0
		out = append(out, sm)
	}
	return out, rows.Err()
}

// UpsertBalanceAnchor records the institution-reported balances for one
// account and period. Re-ingesting the same period replaces the anchor.
func (s *Store) UpsertBalanceAnchor(ctx context.Context, a models.AccountBalancePeriod) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO account_balances (account_number, account_type, period, saldo_inicial, saldo_final, fecha_corte)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(account_number, period) DO UPDATE SET
			account_type = excluded.account_type,
			saldo_inicial = excluded.saldo_inicial,
			saldo_final = excluded.saldo_final,
			fecha_corte = excluded.fecha_corte`,
		a.Account, a.AccountType, a.Period,
		a.OpeningBalance.StringFixed(2), a.ClosingBalance.StringFixed(2),
		a.CutoffDate.Format(dateLayout))
	if err != nil {
		return fmt.Errorf("store: upsert balance anchor: %w", err)
	}
	return nil
}

// BalanceAnchors returns every anchor for an account ordered by cutoff.
func (s *Store) BalanceAnchors(ctx context.Context, account string) ([]models.AccountBalancePeriod, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_number, account_type, period, saldo_inicial, saldo_final, fecha_corte
		 FROM account_balances WHERE account_number = ? ORDER BY fecha_corte`, account)
	if err != nil {
		return nil, fmt.Errorf("store: query balance anchors: %w", err)
	}
	defer rows.Close()

	var out []models.AccountBalancePeriod
	for rows.Next() {
		var a models.AccountBalancePeriod
		var inicial, final, corte string
		if err := rows.Scan(&a.Account, &a.AccountType, &a.Period, &inicial, &final, &corte); err != nil {
			return nil, fmt.Errorf("store: scan balance anchor: %w", err)
		}
		if a.OpeningBalance, err = decimal.NewFromString(inicial); err != nil {
			return nil, fmt.Errorf("store: bad opening balance %q: %w", inicial, err)
		}
		if a.ClosingBalance, err = decimal.NewFromString(final); err != nil {
			return nil, fmt.Errorf("store: bad closing balance %q: %w", final, err)
		}
		if a.CutoffDate, err = time.Parse(dateLayout, corte); err != nil {
			return nil, fmt.Errorf("store: bad cutoff date %q: %w", corte, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RegisterUpload records a processed file and returns its id.
func (s *Store) RegisterUpload(ctx context.Context, filename, originalFilename, bank, accountType, month string, movementCount int) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (id, filename, original_filename, bank, account_type, month, movement_count, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, filename, originalFilename, bank, accountType, month, movementCount,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("store: register upload: %w", err)
	}
	return id, nil
}
