// Package handlers provides the HTTP handlers of the EcoPrenda API.
//
// Handlers are transport-thin: they bind and validate input, resolve the
// acting user, call an application service and translate the result (or the
// service error) into a JSON response. Every service call receives an
// explicit domain.Actor; no handler reads the identity in any other way.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
	"github.com/tbourn/ecoprenda-backend/internal/http/middleware"
	"github.com/tbourn/ecoprenda-backend/internal/repo"
	"github.com/tbourn/ecoprenda-backend/internal/services"
	"github.com/tbourn/ecoprenda-backend/internal/vision"
)

//
// Service contracts (context-aware)
//

// UserService covers accounts, roles and locations.
type UserService interface {
	Register(ctx context.Context, in services.RegisterInput) (*domain.User, error)
	Profile(ctx context.Context, id uint) (*services.Profile, error)
	Actor(ctx context.Context, userID uint) (domain.Actor, error)
	SetRole(ctx context.Context, actor domain.Actor, userID uint, role domain.Role, foundationID *uint) (*domain.User, error)
	UpdateLocation(ctx context.Context, actor domain.Actor, address string, showOnMap bool) (*domain.User, bool, error)
}

// ListingService covers the catalog.
type ListingService interface {
	Create(ctx context.Context, actor domain.Actor, in services.ListingInput, img *services.ImageUpload) (*domain.Listing, error)
	Get(ctx context.Context, id uint) (*domain.Listing, error)
	Stats(ctx context.Context, f services.ListingFilter) (int64, *time.Time, error)
	List(ctx context.Context, f services.ListingFilter) (*services.ListingPage, error)
	ListMine(ctx context.Context, actor domain.Actor) ([]domain.Listing, error)
	Update(ctx context.Context, actor domain.Actor, id uint, p services.ListingPatch) (*domain.Listing, error)
	Delete(ctx context.Context, actor domain.Actor, id uint) error
	TakeDown(ctx context.Context, actor domain.Actor, id uint) (*domain.Listing, error)
	SuggestCategory(ctx context.Context, img vision.Image) (vision.Suggestion, error)
}

// TransactionService covers proposals and the transaction lifecycle.
type TransactionService interface {
	ProposeExchange(ctx context.Context, actor domain.Actor, listingID uint, offeredListingID *uint) (*domain.Transaction, error)
	ProposePurchase(ctx context.Context, actor domain.Actor, listingID uint) (*domain.Transaction, error)
	ProposeDonation(ctx context.Context, actor domain.Actor, listingID, foundationID uint, campaignID *uint) (*domain.Transaction, error)
	DonateToCampaign(ctx context.Context, actor domain.Actor, campaignID, listingID uint) (*domain.Transaction, error)
	Accept(ctx context.Context, actor domain.Actor, id uint) (*domain.Transaction, error)
	Reject(ctx context.Context, actor domain.Actor, id uint) (*domain.Transaction, error)
	MarkShipped(ctx context.Context, actor domain.Actor, id uint, sh services.Shipment) (*domain.Transaction, error)
	ConfirmReceived(ctx context.Context, actor domain.Actor, id uint) (*domain.Transaction, error)
	Cancel(ctx context.Context, actor domain.Actor, id uint) (*domain.Transaction, error)
	ReportDispute(ctx context.Context, actor domain.Actor, id uint, reason string) (*domain.Transaction, error)
	ResolveDispute(ctx context.Context, actor domain.Actor, id uint, outcome domain.TxStatus, notes string) (*domain.Transaction, error)
	Get(ctx context.Context, actor domain.Actor, id uint) (*domain.Transaction, error)
	ListMine(ctx context.Context, actor domain.Actor) (*services.MyTransactions, error)
	ListForFoundation(ctx context.Context, actor domain.Actor, foundationID uint, status string) ([]domain.Transaction, error)
	ListDisputes(ctx context.Context, actor domain.Actor) ([]domain.Transaction, error)
}

// MessageService covers user-to-user messaging.
type MessageService interface {
	Send(ctx context.Context, actor domain.Actor, receiverID uint, content string, transactionID *uint) (*domain.Message, error)
	Conversation(ctx context.Context, actor domain.Actor, other uint) ([]domain.Message, error)
	Conversations(ctx context.Context, actor domain.Actor) ([]services.Conversation, error)
}

// AchievementService covers the badge catalog and grants.
type AchievementService interface {
	ListCatalog(ctx context.Context) ([]domain.Achievement, error)
	ListForUser(ctx context.Context, userID uint) ([]domain.UserAchievement, error)
	Unlock(ctx context.Context, actor domain.Actor, userID uint, code domain.AchievementCode) (bool, error)
}

// ImpactService covers the calculator and the aggregated reports.
type ImpactService interface {
	Calculate(category string, weightKg *float64, courier string) (*services.Calculation, error)
	UserTotals(ctx context.Context, userID uint) (*services.ImpactSummary, error)
	PlatformTotals(ctx context.Context) (*services.ImpactSummary, error)
	Report(ctx context.Context, actor domain.Actor, scope services.ReportScope, id uint) (*services.Report, error)
}

// FoundationService covers foundations and the public map.
type FoundationService interface {
	Create(ctx context.Context, actor domain.Actor, in services.FoundationInput) (*domain.Foundation, error)
	ListActive(ctx context.Context) ([]domain.Foundation, error)
	Get(ctx context.Context, id uint) (*services.FoundationDetails, error)
	Dashboard(ctx context.Context, actor domain.Actor, id uint) (*services.Dashboard, error)
	UpdateLocation(ctx context.Context, actor domain.Actor, id uint, address string) (*domain.Foundation, bool, error)
	MapData(ctx context.Context) (*services.MapData, error)
}

// CampaignService covers donation campaigns.
type CampaignService interface {
	Create(ctx context.Context, actor domain.Actor, in services.CampaignInput) (*domain.Campaign, error)
	Update(ctx context.Context, actor domain.Actor, id uint, in services.CampaignInput) (*domain.Campaign, error)
	Delete(ctx context.Context, actor domain.Actor, id uint) error
	ListActive(ctx context.Context) ([]services.CampaignProgress, error)
	ListForFoundation(ctx context.Context, foundationID uint) ([]services.CampaignProgress, error)
	Get(ctx context.Context, id uint) (*services.CampaignProgress, error)
}

// TokenIssuer mints session tokens for newly registered users.
type TokenIssuer interface {
	Issue(userID uint, role domain.Role) (string, time.Time, error)
}

// ConversationStats feeds the conversation ETag.
type ConversationStats func(ctx context.Context, a, b uint) (int64, *time.Time, error)

//
// Handler wiring
//

// Deps are the collaborators of Handlers. Tokens, Idempotency and
// ConversationStats are optional.
type Deps struct {
	Users        UserService
	Listings     ListingService
	Transactions TransactionService
	Messages     MessageService
	Achievements AchievementService
	Impact       ImpactService
	Foundations  FoundationService
	Campaigns    CampaignService

	Tokens            TokenIssuer
	Idempotency       *IdempotencyRecorder
	ConversationStats ConversationStats

	// BasePath prefixes Location headers, e.g. "/api/v1".
	BasePath string
}

// Handlers groups every HTTP endpoint of the API.
type Handlers struct {
	users        UserService
	listings     ListingService
	txs          TransactionService
	messages     MessageService
	achievements AchievementService
	impact       ImpactService
	foundations  FoundationService
	campaigns    CampaignService

	tokens    TokenIssuer
	idem      *IdempotencyRecorder
	convStats ConversationStats
	basePath  string
}

// New constructs Handlers bound to d.
func New(d Deps) *Handlers {
	return &Handlers{
		users:        d.Users,
		listings:     d.Listings,
		txs:          d.Transactions,
		messages:     d.Messages,
		achievements: d.Achievements,
		impact:       d.Impact,
		foundations:  d.Foundations,
		campaigns:    d.Campaigns,
		tokens:       d.Tokens,
		idem:         d.Idempotency,
		convStats:    d.ConversationStats,
		basePath:     strings.TrimRight(d.BasePath, "/"),
	}
}

// actor resolves the authenticated caller from the store. It writes a 401
// and returns false when the request is anonymous or names an unknown user.
func (h *Handlers) actor(c *gin.Context) (domain.Actor, bool) {
	uid := middleware.UserIDFrom(c)
	if uid == 0 {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return domain.Actor{}, false
	}
	a, err := h.users.Actor(c.Request.Context(), uid)
	if err != nil {
		if repo.IsNotFound(err) || isErr(err, services.ErrUserNotFound) {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "unknown user")
			return domain.Actor{}, false
		}
		writeError(c, err)
		return domain.Actor{}, false
	}
	return a, true
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func paginationOf(page, size int, total int64) Pagination {
	pages := 0
	if size > 0 {
		pages = int((total + int64(size) - 1) / int64(size))
	}
	return Pagination{Page: page, PageSize: size, Total: total, TotalPages: pages, HasNext: page < pages}
}
