package repo

import (
	"context"
	"testing"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

func TestHasOpenTransaction_CoversOfferedListing(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	a := mkUser(t, db, "ana")
	b := mkUser(t, db, "beto")
	target := mkListing(t, db, b.ID, domain.CategoryShirt)
	offered := mkListing(t, db, a.ID, domain.CategoryShirt)

	busy, err := HasOpenTransaction(ctx, db, target.ID)
	if err != nil || busy {
		t.Fatalf("fresh listing busy=%v err=%v", busy, err)
	}

	tx := mkTx(t, db, &domain.Transaction{
		ListingID: target.ID, TypeCode: domain.TxExchange,
		OriginUserID: a.ID, DestinationUserID: &b.ID, OfferedListingID: &offered.ID,
		Status: domain.TxPending,
	})
	for _, id := range []uint{target.ID, offered.ID} {
		busy, err = HasOpenTransaction(ctx, db, id)
		if err != nil || !busy {
			t.Fatalf("listing %d should be busy: %v %v", id, busy, err)
		}
	}

	ok, err := UpdateTransactionIf(ctx, db, tx.ID, domain.TxPending, map[string]any{"status": domain.TxRejected})
	if err != nil || !ok {
		t.Fatalf("reject: ok=%v err=%v", ok, err)
	}
	busy, _ = HasOpenTransaction(ctx, db, target.ID)
	if busy {
		t.Fatalf("terminal transaction must free the listing")
	}
}

func TestUpdateTransactionIf_LosesOnStaleStatus(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	a := mkUser(t, db, "ana")
	b := mkUser(t, db, "beto")
	l := mkListing(t, db, a.ID, domain.CategoryShirt)
	tx := mkTx(t, db, &domain.Transaction{ListingID: l.ID, TypeCode: domain.TxSale, OriginUserID: a.ID, DestinationUserID: &b.ID, Status: domain.TxPending})

	ok, err := UpdateTransactionIf(ctx, db, tx.ID, domain.TxPending, map[string]any{"status": domain.TxReserved})
	if err != nil || !ok {
		t.Fatalf("first write: ok=%v err=%v", ok, err)
	}
	ok, err = UpdateTransactionIf(ctx, db, tx.ID, domain.TxPending, map[string]any{"status": domain.TxCancelled})
	if err != nil || ok {
		t.Fatalf("stale write must lose: ok=%v err=%v", ok, err)
	}
	got, err := GetTransaction(ctx, db, tx.ID)
	if err != nil || got.Status != domain.TxReserved || got.Listing == nil || got.Listing.ID != l.ID {
		t.Fatalf("got %+v err=%v", got, err)
	}
}

func TestCountCompleted_ByRole(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	a := mkUser(t, db, "ana")
	b := mkUser(t, db, "beto")
	f := &domain.Foundation{Name: "Ropa Solidaria", Active: true}
	if err := CreateFoundation(ctx, db, f); err != nil {
		t.Fatalf("foundation: %v", err)
	}

	for i := 0; i < 2; i++ {
		l := mkListing(t, db, a.ID, domain.CategoryShirt)
		mkTx(t, db, &domain.Transaction{ListingID: l.ID, TypeCode: domain.TxExchange, OriginUserID: a.ID, DestinationUserID: &b.ID, Status: domain.TxCompleted})
	}
	l := mkListing(t, db, a.ID, domain.CategoryShirt)
	mkTx(t, db, &domain.Transaction{ListingID: l.ID, TypeCode: domain.TxDonation, OriginUserID: a.ID, FoundationID: &f.ID, Status: domain.TxCompleted})
	l = mkListing(t, db, a.ID, domain.CategoryShirt)
	mkTx(t, db, &domain.Transaction{ListingID: l.ID, TypeCode: domain.TxDonation, OriginUserID: a.ID, FoundationID: &f.ID, Status: domain.TxPending})

	if n, _ := CountCompletedAsOrigin(ctx, db, a.ID, domain.TxDonation); n != 1 {
		t.Fatalf("donations as origin: %d", n)
	}
	if n, _ := CountCompletedAsParty(ctx, db, b.ID, domain.TxExchange); n != 2 {
		t.Fatalf("exchanges as party: %d", n)
	}
	if n, _ := CountCompleted(ctx, db); n != 3 {
		t.Fatalf("completed: %d", n)
	}

	rows, err := CountFoundationByStatus(ctx, db, f.ID)
	if err != nil || len(rows) != 2 {
		t.Fatalf("by status rows=%v err=%v", rows, err)
	}
	got := map[domain.TxStatus]int64{}
	for _, r := range rows {
		got[r.Status] = r.Count
	}
	if got[domain.TxCompleted] != 1 || got[domain.TxPending] != 1 {
		t.Fatalf("by status: %v", got)
	}

	list, err := ListTransactionsByFoundation(ctx, db, f.ID, domain.TxPending, 10)
	if err != nil || len(list) != 1 || list[0].Listing == nil {
		t.Fatalf("foundation list: %v err=%v", list, err)
	}
}
