package transaction

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/muskan-khushi/Mule-Hunter-Engine/internal/testutil"
)

func TestPostgresStoreRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	tx := &Transaction{
		SourceAccount:  "101",
		TargetAccount:  "202",
		Amount:         decimal.RequireFromString("5000.50"),
		PopulationSize: DefaultPopulationSize,
		LinkedAccounts: []string{},
	}
	if err := store.Create(ctx, tx); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tx.ID == "" || tx.CreatedAt.IsZero() {
		t.Fatal("Create did not assign identity")
	}

	tx.RiskScore = fptr(0.9)
	tx.Verdict = sptr("HIGH_RISK")
	tx.SuspectedFraud = true
	tx.ModelName = DefaultModelName
	tx.LinkedAccounts = []string{"303", "404"}
	tx.JA3Risk = fptr(0.4)
	tx.JA3Velocity = iptr(7)
	if err := store.Update(ctx, tx); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.Get(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Amount.Equal(tx.Amount) {
		t.Errorf("amount = %s, want %s", got.Amount, tx.Amount)
	}
	if got.RiskScore == nil || *got.RiskScore != 0.9 {
		t.Errorf("riskScore = %v", got.RiskScore)
	}
	if !got.SuspectedFraud {
		t.Error("suspectedFraud not persisted")
	}
	if len(got.LinkedAccounts) != 2 || got.LinkedAccounts[0] != "303" {
		t.Errorf("linkedAccounts = %v", got.LinkedAccounts)
	}
	if got.JA3Velocity == nil || *got.JA3Velocity != 7 {
		t.Errorf("ja3Velocity = %v", got.JA3Velocity)
	}
	if got.JA3Fanout != nil {
		t.Errorf("ja3Fanout = %v, want nil", got.JA3Fanout)
	}
}

func TestPostgresStoreNotFound(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	_, err := store.Get(ctx, "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("Get err = %v, want ErrTransactionNotFound", err)
	}

	err = store.Update(ctx, &Transaction{ID: "00000000-0000-0000-0000-000000000000", LinkedAccounts: []string{}})
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("Update err = %v, want ErrTransactionNotFound", err)
	}
}

func TestPostgresStoreListOrder(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		tx := &Transaction{
			SourceAccount:  "1",
			TargetAccount:  "2",
			Amount:         decimal.NewFromInt(int64(i)),
			PopulationSize: DefaultPopulationSize,
			LinkedAccounts: []string{},
		}
		if err := store.Create(ctx, tx); err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, tx.ID)
	}

	txs, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("len = %d, want 2", len(txs))
	}
	if txs[0].ID != ids[2] {
		t.Error("List is not newest-first")
	}
}
