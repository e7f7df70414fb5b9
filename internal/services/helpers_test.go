package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
	"github.com/tbourn/ecoprenda-backend/internal/geo"
	"github.com/tbourn/ecoprenda-backend/internal/media"
	"github.com/tbourn/ecoprenda-backend/internal/repo"
	"github.com/tbourn/ecoprenda-backend/internal/vision"
)

// newServiceDB opens a private in-memory database with schema and seed data.
// One connection keeps shared-cache table locks out of the way.
func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repo.AutoMigrate(db))
	require.NoError(t, repo.Seed(context.Background(), db))
	return db
}

// newPooledServiceDB opens a file database that several connections can
// write to at once. Transactions begin IMMEDIATE so concurrent writers queue
// on busy_timeout instead of failing on lock upgrade.
func newPooledServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "svc.db") +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(8)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repo.AutoMigrate(db))
	require.NoError(t, repo.Seed(context.Background(), db))
	return db
}

func mkUser(t *testing.T, db *gorm.DB, name string) domain.Actor {
	t.Helper()
	u := &domain.User{Name: name, Email: name + "@example.com", Role: domain.RoleClient}
	require.NoError(t, repo.CreateUser(context.Background(), db, u))
	return domain.ActorFor(u)
}

func mkAdmin(t *testing.T, db *gorm.DB, name string) domain.Actor {
	t.Helper()
	a := mkUser(t, db, name)
	require.NoError(t, repo.UpdateUserRole(context.Background(), db, a.UserID, domain.RoleAdmin, nil))
	a.Role = domain.RoleAdmin
	return a
}

// mkFoundation creates an active foundation and its representative.
func mkFoundation(t *testing.T, db *gorm.DB, name string) (*domain.Foundation, domain.Actor) {
	t.Helper()
	ctx := context.Background()
	f := &domain.Foundation{Name: name, Description: "ropa para todos", Active: true}
	require.NoError(t, repo.CreateFoundation(ctx, db, f))
	rep := mkUser(t, db, "rep-"+uuid.NewString()[:8])
	fid := f.ID
	require.NoError(t, repo.UpdateUserRole(ctx, db, rep.UserID, domain.RoleFoundationRep, &fid))
	rep.Role, rep.FoundationID = domain.RoleFoundationRep, &fid
	return f, rep
}

type listingOpt func(*domain.Listing)

func withPrice(p string) listingOpt {
	return func(l *domain.Listing) { l.Price = decimal.NewNullDecimal(decimal.RequireFromString(p)) }
}

func withName(n string) listingOpt {
	return func(l *domain.Listing) { l.Name = n }
}

func mkListing(t *testing.T, db *gorm.DB, owner domain.Actor, cat domain.Category, opts ...listingOpt) *domain.Listing {
	t.Helper()
	l := &domain.Listing{
		OwnerID: owner.UserID, Name: "Polera", Description: "algodón, poco uso",
		Category: cat, Size: domain.SizeM, Condition: domain.ConditionGood,
		Status: domain.ListingAvailable,
	}
	for _, o := range opts {
		o(l)
	}
	require.NoError(t, repo.CreateListing(context.Background(), db, l))
	return l
}

func listingStatus(t *testing.T, db *gorm.DB, id uint) domain.ListingStatus {
	t.Helper()
	l, err := repo.GetListing(context.Background(), db, id)
	require.NoError(t, err)
	return l.Status
}

func fixedClock(ts time.Time) func() time.Time { return func() time.Time { return ts } }

// ---------------------------------------------------------------------------
// collaborator fakes

type fakeStore struct {
	mu       sync.Mutex
	err      error
	uploads  []media.Upload
	deleted  []string
	nextName int
}

func (f *fakeStore) Upload(_ context.Context, u media.Upload) (media.Stored, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return media.Stored{}, f.err
	}
	f.uploads = append(f.uploads, u)
	f.nextName++
	key := fmt.Sprintf("%s/img-%d", u.Folder, f.nextName)
	return media.Stored{URL: "https://cdn.example.com/" + key, ID: "fake:" + key}, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeClassifier struct {
	dets  []vision.Detection
	err   error
	calls int
	last  vision.Image
}

func (f *fakeClassifier) Detect(_ context.Context, img vision.Image) ([]vision.Detection, error) {
	f.calls++
	f.last = img
	return f.dets, f.err
}

type fakeGeocoder struct {
	point geo.Point
	err   error
}

func (f fakeGeocoder) Geocode(context.Context, string) (geo.Point, error) { return f.point, f.err }

// pngBytes is a minimal PNG header, enough for content sniffing.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
