package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cuentaclara/statement-engine/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testMovements() []models.Movement {
	settle := time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)
	return []models.Movement{
		{
			OperationDate: time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC),
			Description:   "SPEI RECIBIDO BANORTE",
			Amount:        decimal.RequireFromString("10000.00"),
			Direction:     models.Credit,
			Category:      models.CategoryRegular,
		},
		{
			OperationDate:  time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC),
			SettlementDate: &settle,
			Description:    "PAGO TARJETA",
			Amount:         decimal.RequireFromString("1000.00"),
			Direction:      models.Debit,
			Category:       models.CategoryRegular,
		},
	}
}

func TestSaveMovementsAndDuplicates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	res, err := s.SaveMovements(ctx, "123456", "BBVA", "debito", testMovements())
	if err != nil {
		t.Fatalf("SaveMovements failed: %v", err)
	}
	if res.SavedCount != 2 || len(res.Duplicates) != 0 {
		t.Fatalf("first save: saved=%d duplicates=%d, want 2/0", res.SavedCount, len(res.Duplicates))
	}

	// Same movements again: everything reports as duplicate, nothing saved.
	res, err = s.SaveMovements(ctx, "123456", "BBVA", "debito", testMovements())
	if err != nil {
		t.Fatalf("second SaveMovements failed: %v", err)
	}
	if res.SavedCount != 0 || len(res.Duplicates) != 2 {
		t.Fatalf("second save: saved=%d duplicates=%d, want 0/2", res.SavedCount, len(res.Duplicates))
	}

	// A different account is not a duplicate.
	res, err = s.SaveMovements(ctx, "654321", "BBVA", "debito", testMovements())
	if err != nil {
		t.Fatalf("third SaveMovements failed: %v", err)
	}
	if res.SavedCount != 2 {
		t.Fatalf("other account: saved=%d, want 2", res.SavedCount)
	}
}

func TestForceSaveConfirmedDuplicates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	movements := testMovements()

	if _, err := s.SaveMovements(ctx, "123456", "BBVA", "debito", movements); err != nil {
		t.Fatalf("SaveMovements failed: %v", err)
	}

	saved, err := s.ForceSave(ctx, "123456", "BBVA", "debito", movements[:1])
	if err != nil {
		t.Fatalf("ForceSave failed: %v", err)
	}
	if saved != 1 {
		t.Fatalf("ForceSave saved %d, want 1", saved)
	}

	stored, err := s.Movements(ctx, MovementFilter{Account: "123456"})
	if err != nil {
		t.Fatalf("Movements failed: %v", err)
	}
	if len(stored) != 3 {
		t.Errorf("got %d stored movements, want 3 (the confirmed repeat included)", len(stored))
	}

	// Forcing a third occurrence still works.
	if saved, err = s.ForceSave(ctx, "123456", "BBVA", "debito", movements[:1]); err != nil || saved != 1 {
		t.Fatalf("second ForceSave: saved=%d err=%v", saved, err)
	}
}

func TestMovementsFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.SaveMovements(ctx, "123456", "BBVA", "debito", testMovements()); err != nil {
		t.Fatalf("SaveMovements failed: %v", err)
	}
	other := []models.Movement{{
		OperationDate: time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC),
		Description:   "COMPRA OXXO",
		Amount:        decimal.RequireFromString("250.00"),
		Direction:     models.Debit,
		Category:      models.CategoryRegular,
	}}
	if _, err := s.SaveMovements(ctx, "777777", "Banorte", "credito", other); err != nil {
		t.Fatalf("SaveMovements failed: %v", err)
	}

	tests := []struct {
		name   string
		filter MovementFilter
		want   int
	}{
		{"no filter", MovementFilter{}, 3},
		{"by bank", MovementFilter{Bank: "BBVA"}, 2},
		{"by month", MovementFilter{Month: "2025-02"}, 1},
		{"by account type", MovementFilter{AccountType: "credito"}, 1},
		{"by account", MovementFilter{Account: "123456"}, 2},
		{"no match", MovementFilter{Bank: "HSBC"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Movements(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Movements failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d movements, want %d", len(got), tt.want)
			}
		})
	}
}

func TestMovementsRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.SaveMovements(ctx, "123456", "BBVA", "debito", testMovements()); err != nil {
		t.Fatalf("SaveMovements failed: %v", err)
	}
	stored, err := s.Movements(ctx, MovementFilter{Account: "123456"})
	if err != nil {
		t.Fatalf("Movements failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("got %d movements", len(stored))
	}

	// Newest first.
	m := stored[0]
	if m.Description != "PAGO TARJETA" {
		t.Errorf("ordering: first stored = %q, want PAGO TARJETA", m.Description)
	}
	if !m.Amount.Equal(decimal.RequireFromString("1000.00")) {
		t.Errorf("amount = %s", m.Amount)
	}
	if m.Direction != models.Debit || m.Bank != "BBVA" || m.AccountType != "debito" {
		t.Errorf("stored movement = %+v", m)
	}
	if m.SettlementDate == nil || m.SettlementDate.Day() != 6 {
		t.Errorf("settlement date = %v", m.SettlementDate)
	}
}

func TestBalanceAnchorUpsert(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	anchor := models.AccountBalancePeriod{
		Account:        "123456",
		AccountType:    "debito",
		Period:         "2025-01",
		OpeningBalance: decimal.RequireFromString("5000.00"),
		ClosingBalance: decimal.RequireFromString("18500.00"),
		CutoffDate:     time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC),
	}
	if err := s.UpsertBalanceAnchor(ctx, anchor); err != nil {
		t.Fatalf("UpsertBalanceAnchor failed: %v", err)
	}

	// Re-ingesting the same period replaces, never duplicates.
	anchor.ClosingBalance = decimal.RequireFromString("18000.00")
	if err := s.UpsertBalanceAnchor(ctx, anchor); err != nil {
		t.Fatalf("second UpsertBalanceAnchor failed: %v", err)
	}

	anchors, err := s.BalanceAnchors(ctx, "123456")
	if err != nil {
		t.Fatalf("BalanceAnchors failed: %v", err)
	}
	if len(anchors) != 1 {
		t.Fatalf("got %d anchors, want 1", len(anchors))
	}
	if !anchors[0].ClosingBalance.Equal(decimal.RequireFromString("18000.00")) {
		t.Errorf("closing balance = %s, want the upserted 18000.00", anchors[0].ClosingBalance)
	}
	if !anchors[0].CutoffDate.Equal(anchor.CutoffDate) {
		t.Errorf("cutoff date = %s", anchors[0].CutoffDate)
	}
}

func TestRegisterUpload(t *testing.T) {
	s := testStore(t)
	id, err := s.RegisterUpload(context.Background(),
		"BBVA_enero_2025_debito.pdf", "estado (3).pdf", "BBVA", "debito", "2025-01", 4)
	if err != nil {
		t.Fatalf("RegisterUpload failed: %v", err)
	}
	if id == "" {
		t.Error("empty upload id")
	}
}
