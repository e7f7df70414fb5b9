package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
	"github.com/tbourn/ecoprenda-backend/internal/http/middleware"
	"github.com/tbourn/ecoprenda-backend/internal/repo"
	"github.com/tbourn/ecoprenda-backend/internal/services"
)

// ---------- test DB + full service stack ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := repo.Seed(context.Background(), db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

type stack struct {
	db *gorm.DB
	h  *Handlers
	r  *gin.Engine
}

// newStack wires real services over a fresh database and registers the
// routes under test with header authentication enabled.
func newStack(t *testing.T, tokens TokenIssuer) *stack {
	t.Helper()
	db := newHandlerDB(t)

	ach := &services.AchievementService{DB: db}
	msgs := &services.MessageService{DB: db}
	camps := &services.CampaignService{DB: db}
	h := New(Deps{
		Users:        &services.UserService{DB: db},
		Listings:     &services.ListingService{DB: db, Achievements: ach},
		Transactions: &services.TransactionService{DB: db, Notifier: msgs, Achievements: ach},
		Messages:     msgs,
		Achievements: ach,
		Impact:       &services.ImpactService{DB: db},
		Foundations:  &services.FoundationService{DB: db, Campaigns: camps},
		Campaigns:    camps,
		Tokens:       tokens,
		Idempotency:  &IdempotencyRecorder{DB: db, TTL: time.Hour},
		ConversationStats: func(ctx context.Context, a, b uint) (int64, *time.Time, error) {
			return repo.ConversationStats(ctx, db, a, b)
		},
	})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Authenticate(nil, true))
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, h.idem.Exists))
	register(r, h)
	return &stack{db: db, h: h, r: r}
}

func register(r *gin.Engine, h *Handlers) {
	r.POST("/users", h.Register)
	r.GET("/session", h.Session)
	r.GET("/users/:id", h.GetProfile)
	r.PUT("/users/me/location", h.UpdateMyLocation)
	r.PUT("/admin/users/:id/role", h.SetRole)
	r.POST("/admin/users/:id/achievements/:code", h.UnlockAchievement)
	r.GET("/admin/disputes", h.ListDisputes)

	r.GET("/listings", h.ListListings)
	r.POST("/listings", h.CreateListing)
	r.GET("/listings/mine", h.ListMyListings)
	r.POST("/listings/suggest-category", h.SuggestCategory)
	r.GET("/listings/:id", h.GetListing)
	r.PATCH("/listings/:id", h.UpdateListing)
	r.DELETE("/listings/:id", h.DeleteListing)
	r.POST("/listings/:id/takedown", h.TakeDownListing)
	r.POST("/listings/:id/exchange", h.ProposeExchange)
	r.POST("/listings/:id/purchase", h.ProposePurchase)
	r.POST("/listings/:id/donate", h.ProposeDonation)

	r.GET("/transactions/mine", h.ListMyTransactions)
	r.GET("/transactions/:id", h.GetTransaction)
	r.POST("/transactions/:id/accept", h.AcceptTransaction)
	r.POST("/transactions/:id/reject", h.RejectTransaction)
	r.POST("/transactions/:id/ship", h.ShipTransaction)
	r.POST("/transactions/:id/confirm", h.ConfirmTransaction)
	r.POST("/transactions/:id/cancel", h.CancelTransaction)
	r.POST("/transactions/:id/dispute", h.DisputeTransaction)
	r.POST("/transactions/:id/resolve", h.ResolveTransaction)

	r.GET("/messages", h.ListConversations)
	r.POST("/messages", h.SendMessage)
	r.GET("/messages/:userId", h.GetConversation)

	r.GET("/achievements", h.ListAchievements)
	r.GET("/achievements/mine", h.MyAchievements)
	r.GET("/impact/calculate", h.CalculateImpact)
	r.GET("/impact/me", h.MyImpact)
	r.GET("/impact/platform", h.PlatformImpact)
	r.GET("/impact/report", h.ImpactReport)

	r.GET("/foundations", h.ListFoundations)
	r.POST("/foundations", h.CreateFoundation)
	r.GET("/foundations/:id", h.GetFoundation)
	r.GET("/foundations/:id/dashboard", h.FoundationDashboard)
	r.GET("/foundations/:id/transactions", h.ListFoundationTransactions)
	r.PUT("/foundations/:id/location", h.UpdateFoundationLocation)
	r.GET("/map", h.MapData)

	r.GET("/campaigns", h.ListCampaigns)
	r.POST("/campaigns", h.CreateCampaign)
	r.GET("/campaigns/:id", h.GetCampaign)
	r.PUT("/campaigns/:id", h.UpdateCampaign)
	r.DELETE("/campaigns/:id", h.DeleteCampaign)
	r.POST("/campaigns/:id/donate", h.DonateToCampaign)
}

// ---------- fixtures ----------

func (s *stack) user(t *testing.T, name string) uint {
	t.Helper()
	u := &domain.User{Name: name, Email: name + "@example.com", Role: domain.RoleClient}
	if err := repo.CreateUser(context.Background(), s.db, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.ID
}

func (s *stack) admin(t *testing.T, name string) uint {
	t.Helper()
	id := s.user(t, name)
	if err := repo.UpdateUserRole(context.Background(), s.db, id, domain.RoleAdmin, nil); err != nil {
		t.Fatalf("promote: %v", err)
	}
	return id
}

// foundation creates an active foundation and returns it with its representative.
func (s *stack) foundation(t *testing.T, name string) (uint, uint) {
	t.Helper()
	ctx := context.Background()
	f := &domain.Foundation{Name: name, Description: "ropa para todos", Active: true}
	if err := repo.CreateFoundation(ctx, s.db, f); err != nil {
		t.Fatalf("create foundation: %v", err)
	}
	rep := s.user(t, "rep-"+uuid.NewString()[:8])
	fid := f.ID
	if err := repo.UpdateUserRole(ctx, s.db, rep, domain.RoleFoundationRep, &fid); err != nil {
		t.Fatalf("make rep: %v", err)
	}
	return f.ID, rep
}

func (s *stack) listing(t *testing.T, owner uint, price string) uint {
	t.Helper()
	l := &domain.Listing{
		OwnerID: owner, Name: "Chaqueta de jean", Description: "poco uso",
		Category: domain.CategoryJacket, Size: domain.SizeM, Condition: domain.ConditionGood,
		Status: domain.ListingAvailable,
	}
	if price != "" {
		l.Price = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	if err := repo.CreateListing(context.Background(), s.db, l); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return l.ID
}

// ---------- request helpers ----------

type call struct {
	method  string
	path    string
	uid     uint
	body    any
	headers map[string]string
}

func (s *stack) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if c.body != nil {
		b, err := json.Marshal(c.body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(c.method, c.path, rdr)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.uid != 0 {
		req.Header.Set(middleware.HeaderUserID, strconv.FormatUint(uint64(c.uid), 10))
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v; body=%s", err, w.Body.String())
	}
	return v
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	if w.Code != code {
		t.Fatalf("status=%d want %d; body=%s", w.Code, code, w.Body.String())
	}
}

func wantError(t *testing.T, w *httptest.ResponseRecorder, code int, errCode string) {
	t.Helper()
	wantStatus(t, w, code)
	if er := decode[ErrorResponse](t, w); er.Code != errCode {
		t.Fatalf("code=%q want %q (%s)", er.Code, errCode, er.Message)
	}
}

// pngBytes is a minimal PNG header, enough for content sniffing.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

func itoa(n uint) string { return strconv.FormatUint(uint64(n), 10) }
