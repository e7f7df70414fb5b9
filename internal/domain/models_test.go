package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&Foundation{}, &User{}, &Listing{}, &ImpactRecord{}, &TransactionType{},
		&Campaign{}, &Transaction{}, &Message{}, &Achievement{}, &UserAchievement{}, &Idempotency{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(User{}).TableName():            "users",
		(Listing{}).TableName():         "listings",
		(ImpactRecord{}).TableName():    "impact_records",
		(TransactionType{}).TableName(): "transaction_types",
		(Transaction{}).TableName():     "transactions",
		(Foundation{}).TableName():      "foundations",
		(Campaign{}).TableName():        "campaigns",
		(Message{}).TableName():         "messages",
		(Achievement{}).TableName():     "achievements",
		(UserAchievement{}).TableName(): "user_achievements",
		(Idempotency{}).TableName():     "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes(t *testing.T) {
	db := newDomainDB(t)
	m := db.Migrator()

	if !m.HasIndex(&Listing{}, "idx_listing_owner") {
		t.Fatalf("expected idx_listing_owner on listings")
	}
	if !m.HasIndex(&Listing{}, "idx_listing_filter") {
		t.Fatalf("expected idx_listing_filter on listings")
	}
	if !m.HasIndex(&Transaction{}, "idx_tx_listing_status") {
		t.Fatalf("expected idx_tx_listing_status on transactions")
	}
	if !m.HasIndex(&UserAchievement{}, "ux_user_achievement") {
		t.Fatalf("expected ux_user_achievement on user_achievements")
	}
	if !m.HasIndex(&Idempotency{}, "ux_user_scope_key") {
		t.Fatalf("expected ux_user_scope_key on idempotency")
	}
}

func TestListingDelete_CascadesToImpactAndTransactions(t *testing.T) {
	db := newDomainDB(t)

	if err := db.Create(&TransactionType{Code: TxSale, Description: "venta"}).Error; err != nil {
		t.Fatalf("seed type: %v", err)
	}
	seller := &User{Name: "Ana", Email: "ana@example.com", Role: RoleClient}
	buyer := &User{Name: "Beto", Email: "beto@example.com", Role: RoleClient}
	if err := db.Create(seller).Error; err != nil {
		t.Fatalf("seller: %v", err)
	}
	if err := db.Create(buyer).Error; err != nil {
		t.Fatalf("buyer: %v", err)
	}
	l := &Listing{OwnerID: seller.ID, Name: "Polera", Description: "azul", Category: CategoryShirt, Size: SizeM, Condition: ConditionGood, Status: ListingAvailable}
	if err := db.Create(l).Error; err != nil {
		t.Fatalf("listing: %v", err)
	}
	if err := db.Create(&ImpactRecord{ListingID: l.ID, CarbonKg: 5.5, EnergyKWh: 2.7, WaterL: 2700}).Error; err != nil {
		t.Fatalf("impact: %v", err)
	}
	tx := &Transaction{ListingID: l.ID, TypeCode: TxSale, OriginUserID: seller.ID, DestinationUserID: &buyer.ID, Status: TxPending}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("transaction: %v", err)
	}

	if err := db.Delete(&Listing{}, l.ID).Error; err != nil {
		t.Fatalf("delete listing: %v", err)
	}

	var cnt int64
	db.Model(&ImpactRecord{}).Where("listing_id = ?", l.ID).Count(&cnt)
	if cnt != 0 {
		t.Fatalf("impact record should cascade, count=%d", cnt)
	}
	db.Model(&Transaction{}).Where("listing_id = ?", l.ID).Count(&cnt)
	if cnt != 0 {
		t.Fatalf("transactions should cascade, count=%d", cnt)
	}
}

func TestUserAchievement_UniquePerUser(t *testing.T) {
	db := newDomainDB(t)
	u := &User{Name: "Caro", Email: "caro@example.com", Role: RoleClient}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("user: %v", err)
	}
	if err := db.Create(&AchievementCatalog[0]).Error; err != nil {
		t.Fatalf("achievement: %v", err)
	}
	now := time.Now().UTC()
	first := &UserAchievement{UserID: u.ID, AchievementCode: AchievementDonor, UnlockedAt: now}
	if err := db.Create(first).Error; err != nil {
		t.Fatalf("first grant: %v", err)
	}
	dup := &UserAchievement{UserID: u.ID, AchievementCode: AchievementDonor, UnlockedAt: now}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation on second grant")
	}
}

func TestCampaign_OpenAt(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	c := Campaign{Active: true, StartDate: start, EndDate: start.AddDate(0, 1, 0)}

	if !c.OpenAt(start) {
		t.Fatalf("campaign should be open on its start date")
	}
	if c.OpenAt(start.Add(-time.Second)) {
		t.Fatalf("campaign should be closed before start")
	}
	if c.OpenAt(c.EndDate.Add(time.Second)) {
		t.Fatalf("campaign should be closed after end")
	}
	c.Active = false
	if c.OpenAt(start.AddDate(0, 0, 5)) {
		t.Fatalf("inactive campaign must not accept donations")
	}
}
