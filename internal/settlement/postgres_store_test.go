package settlement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/onixgrid/bapbridge/internal/settlement"
	"github.com/onixgrid/bapbridge/internal/testutil"
)

func TestPostgresStore_CreateAndFind(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := settlement.NewPostgresStore(db)
	ctx := context.Background()

	rec := &settlement.Record{
		TransactionID:          "txn-pg-s1",
		ItemRef:                "blk-1",
		Quantity:               18,
		Amount:                 "117.00",
		Role:                   settlement.RoleSeller,
		CounterpartyPlatformID: "seller-net",
		CounterpartyDomainID:   "GEN-9",
	}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	recs, err := store.FindByTransactionID(ctx, "txn-pg-s1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(recs) != 1 || recs[0].Quantity != 18 || recs[0].ID == "" {
		t.Errorf("unexpected records: %+v", recs)
	}
}

func TestPostgresStore_DuplicateRoleRejected(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := settlement.NewPostgresStore(db)
	ctx := context.Background()

	rec := &settlement.Record{TransactionID: "txn-pg-s2", Quantity: 5, Role: settlement.RoleSeller}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := store.Create(ctx, &settlement.Record{TransactionID: "txn-pg-s2", Quantity: 5, Role: settlement.RoleSeller})
	if !errors.Is(err, settlement.ErrDuplicate) {
		t.Errorf("duplicate create: err = %v, want ErrDuplicate", err)
	}

	// A different role for the same transaction is a distinct record.
	if err := store.Create(ctx, &settlement.Record{TransactionID: "txn-pg-s2", Quantity: 5, Role: settlement.RoleBuyer}); err != nil {
		t.Errorf("different role should be accepted: %v", err)
	}
}
