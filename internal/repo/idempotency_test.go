package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIdempotency_CreateGetPurge(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := mkUser(t, db, "ana")

	if _, err := GetIdempotency(ctx, db, u.ID, "", "k", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank scope: %v", err)
	}

	rec, err := CreateIdempotency(ctx, db, u.ID, "sale:7", "k1", 42, 201, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, u.ID, "sale:7", "k1", 43, 201, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate: %v", err)
	}
	// Same key in another scope is independent.
	if _, err := CreateIdempotency(ctx, db, u.ID, "sale:8", "k1", 44, 201, time.Hour); err != nil {
		t.Fatalf("other scope: %v", err)
	}

	got, err := GetIdempotency(ctx, db, u.ID, "sale:7", "k1", time.Now().UTC())
	if err != nil || got.ResourceID != 42 || got.ID != rec.ID {
		t.Fatalf("get: %+v err=%v", got, err)
	}
	if _, err := GetIdempotency(ctx, db, u.ID, "sale:7", "k1", time.Now().UTC().Add(2*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired record should be invisible: %v", err)
	}

	n, err := PurgeExpiredIdempotency(ctx, db, time.Now().UTC().Add(2*time.Hour))
	if err != nil || n != 2 {
		t.Fatalf("purge n=%d err=%v", n, err)
	}
}
