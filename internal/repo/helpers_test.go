package repo

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

// newRepoDB opens a private in-memory database with the full schema and seed data.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if err := Seed(context.Background(), db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

func mkUser(t *testing.T, db *gorm.DB, name string) *domain.User {
	t.Helper()
	u := &domain.User{Name: name, Email: name + "@example.com", Role: domain.RoleClient}
	if err := CreateUser(context.Background(), db, u); err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func mkListing(t *testing.T, db *gorm.DB, owner uint, cat domain.Category) *domain.Listing {
	t.Helper()
	l := &domain.Listing{
		OwnerID: owner, Name: "Prenda", Description: "desc",
		Category: cat, Size: domain.SizeM, Condition: domain.ConditionGood,
		Status: domain.ListingAvailable,
	}
	if err := CreateListing(context.Background(), db, l); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return l
}

func mkTx(t *testing.T, db *gorm.DB, tx *domain.Transaction) *domain.Transaction {
	t.Helper()
	if err := CreateTransaction(context.Background(), db, tx); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return tx
}
