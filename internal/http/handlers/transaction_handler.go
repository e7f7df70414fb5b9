// Transaction HTTP handlers.
//
// This file exposes proposals and the transaction lifecycle:
//   - POST /listings/{id}/exchange         (propose an exchange)
//   - POST /listings/{id}/purchase         (propose a purchase)
//   - POST /listings/{id}/donate           (propose a donation to a foundation)
//   - POST /campaigns/{id}/donate          (donate a listing to a campaign)
//   - GET  /transactions/mine
//   - GET  /transactions/{id}
//   - POST /transactions/{id}/{accept,reject,ship,confirm,cancel,dispute,resolve}
//   - GET  /foundations/{id}/transactions  (representative or admin)
//   - GET  /admin/disputes                 (admin)
//
// Idempotency:
// Proposals honor the Idempotency-Key header. When a previous proposal with
// the same (user, scope, key) exists, the recorded transaction is returned
// with `Idempotency-Replayed: true` and no new proposal is made.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
	"github.com/tbourn/ecoprenda-backend/internal/http/middleware"
	"github.com/tbourn/ecoprenda-backend/internal/services"
)

//
// DTOs
//

// ExchangeRequest optionally names the listing offered in return.
type ExchangeRequest struct {
	OfferedListingID *uint `json:"offered_listing_id,omitempty" example:"18"`
}

// DonationRequest names the receiving foundation and, optionally, a campaign.
type DonationRequest struct {
	FoundationID uint  `json:"foundation_id" binding:"required" example:"3"`
	CampaignID   *uint `json:"campaign_id,omitempty" example:"5"`
}

// CampaignDonationRequest names the listing donated to a campaign.
type CampaignDonationRequest struct {
	ListingID uint `json:"listing_id" binding:"required" example:"12"`
}

// ShipRequest carries the optional shipment details.
type ShipRequest struct {
	Courier      string `json:"courier"       example:"Servientrega"`
	TrackingCode string `json:"tracking_code" example:"SV-123456789"`
}

// DisputeRequest explains a dispute.
type DisputeRequest struct {
	Reason string `json:"reason" binding:"required" example:"La prenda llegó rota"`
}

// ResolveRequest closes a dispute. Outcome is COMPLETADA or CANCELADA.
type ResolveRequest struct {
	Outcome string `json:"outcome" binding:"required" example:"CANCELADA"`
	Notes   string `json:"notes" example:"Se devuelve la prenda al dueño"`
}

//
// Helpers
//

// propose runs a proposal once per Idempotency-Key.
func (h *Handlers) propose(c *gin.Context, a domain.Actor, run func() (*domain.Transaction, error)) {
	ctx := c.Request.Context()
	scope := middleware.ProposalScope(c)
	key, hasKey := middleware.GetIdempotencyKey(c)

	if hasKey {
		if id, status, found := h.idem.Lookup(ctx, a.UserID, scope, key); found {
			if prev, err := h.txs.Get(ctx, a, id); err == nil {
				c.Header("Idempotency-Replayed", "true")
				if status == http.StatusCreated {
					h.created(c, prev, "transactions", prev.ID)
					return
				}
				ok(c, status, prev)
				return
			}
		}
	}

	t, err := run()
	if err != nil {
		writeError(c, err)
		return
	}
	if hasKey {
		h.idem.Remember(ctx, a.UserID, scope, key, t.ID, http.StatusCreated)
	}
	h.created(c, t, "transactions", t.ID)
}

// transition resolves the actor and the :id parameter and applies fn.
func (h *Handlers) transition(c *gin.Context, fn func(a domain.Actor, id uint) (*domain.Transaction, error)) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	t, err := fn(a, id)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

//
// Proposals
//

// ProposeExchange godoc
// @ID          proposeExchange
// @Summary     Propose an exchange
// @Tags        Transactions
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string                    false  "Idempotency key for safe retries"
// @Param       id               path    int                       true   "Requested listing ID"
// @Param       body             body    handlers.ExchangeRequest  false  "Offered listing"
// @Success     201  {object}  domain.Transaction
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Listing not found"
// @Failure     409  {object}  handlers.ErrorResponse "Listing unavailable or busy"
// @Router      /listings/{id}/exchange [post]
func (h *Handlers) ProposeExchange(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req ExchangeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid body")
			return
		}
	}
	h.propose(c, a, func() (*domain.Transaction, error) {
		return h.txs.ProposeExchange(c.Request.Context(), a, id, req.OfferedListingID)
	})
}

// ProposePurchase godoc
// @ID          proposePurchase
// @Summary     Propose a purchase
// @Tags        Transactions
// @Produce     json
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"
// @Param       id               path    int     true   "Listing ID"
// @Success     201  {object}  domain.Transaction
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Listing not found"
// @Failure     409  {object}  handlers.ErrorResponse "Listing unavailable or busy"
// @Router      /listings/{id}/purchase [post]
func (h *Handlers) ProposePurchase(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	h.propose(c, a, func() (*domain.Transaction, error) {
		return h.txs.ProposePurchase(c.Request.Context(), a, id)
	})
}

// ProposeDonation godoc
// @ID          proposeDonation
// @Summary     Donate a listing to a foundation
// @Tags        Transactions
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string                    false  "Idempotency key for safe retries"
// @Param       id               path    int                       true   "Listing ID"
// @Param       body             body    handlers.DonationRequest  true   "Foundation"
// @Success     201  {object}  domain.Transaction
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse "Listing or foundation not found"
// @Failure     409  {object}  handlers.ErrorResponse "Listing unavailable, busy, or foundation inactive"
// @Router      /listings/{id}/donate [post]
func (h *Handlers) ProposeDonation(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req DonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "foundation_id is required")
		return
	}
	h.propose(c, a, func() (*domain.Transaction, error) {
		return h.txs.ProposeDonation(c.Request.Context(), a, id, req.FoundationID, req.CampaignID)
	})
}

// DonateToCampaign godoc
// @ID          donateToCampaign
// @Summary     Donate a listing to a campaign
// @Tags        Campaigns
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string                            false  "Idempotency key for safe retries"
// @Param       id               path    int                               true   "Campaign ID"
// @Param       body             body    handlers.CampaignDonationRequest  true   "Listing"
// @Success     201  {object}  domain.Transaction
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Campaign or listing not found"
// @Failure     409  {object}  handlers.ErrorResponse "Campaign closed or listing unavailable"
// @Router      /campaigns/{id}/donate [post]
func (h *Handlers) DonateToCampaign(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req CampaignDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "listing_id is required")
		return
	}
	h.propose(c, a, func() (*domain.Transaction, error) {
		return h.txs.DonateToCampaign(c.Request.Context(), a, id, req.ListingID)
	})
}

//
// Lifecycle
//

// AcceptTransaction godoc
// @ID          acceptTransaction
// @Summary     Accept a proposal
// @Tags        Transactions
// @Produce     json
// @Param       id   path      int  true  "Transaction ID"
// @Success     200  {object}  domain.Transaction
// @Failure     400  {object}  handlers.ErrorResponse "Invalid transition"
// @Failure     403  {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404  {object}  handlers.ErrorResponse "Transaction not found"
// @Failure     409  {object}  handlers.ErrorResponse "Listing already reserved"
// @Router      /transactions/{id}/accept [post]
func (h *Handlers) AcceptTransaction(c *gin.Context) {
	h.transition(c, func(a domain.Actor, id uint) (*domain.Transaction, error) {
		return h.txs.Accept(c.Request.Context(), a, id)
	})
}

// RejectTransaction godoc
// @ID          rejectTransaction
// @Summary     Reject a proposal
// @Tags        Transactions
// @Produce     json
// @Param       id   path      int  true  "Transaction ID"
// @Success     200  {object}  domain.Transaction
// @Failure     400  {object}  handlers.ErrorResponse "Invalid transition"
// @Failure     403  {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404  {object}  handlers.ErrorResponse "Transaction not found"
// @Router      /transactions/{id}/reject [post]
func (h *Handlers) RejectTransaction(c *gin.Context) {
	h.transition(c, func(a domain.Actor, id uint) (*domain.Transaction, error) {
		return h.txs.Reject(c.Request.Context(), a, id)
	})
}

// ShipTransaction godoc
// @ID          shipTransaction
// @Summary     Mark as shipped
// @Tags        Transactions
// @Accept      json
// @Produce     json
// @Param       id    path      int                   true  "Transaction ID"
// @Param       body  body      handlers.ShipRequest  false "Shipment"
// @Success     200   {object}  domain.Transaction
// @Failure     400   {object}  handlers.ErrorResponse "Bad request or invalid transition"
// @Failure     403   {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404   {object}  handlers.ErrorResponse "Transaction not found"
// @Router      /transactions/{id}/ship [post]
func (h *Handlers) ShipTransaction(c *gin.Context) {
	var req ShipRequest
	h.transition(c, func(a domain.Actor, id uint) (*domain.Transaction, error) {
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				return nil, invalidBody("invalid body")
			}
		}
		return h.txs.MarkShipped(c.Request.Context(), a, id, services.Shipment{Courier: req.Courier, TrackingCode: req.TrackingCode})
	})
}

// ConfirmTransaction godoc
// @ID          confirmTransaction
// @Summary     Confirm reception
// @Description Completes the transaction, transfers the listing and records its environmental impact.
// @Tags        Transactions
// @Produce     json
// @Param       id   path      int  true  "Transaction ID"
// @Success     200  {object}  domain.Transaction
// @Failure     400  {object}  handlers.ErrorResponse "Invalid transition"
// @Failure     403  {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404  {object}  handlers.ErrorResponse "Transaction not found"
// @Router      /transactions/{id}/confirm [post]
func (h *Handlers) ConfirmTransaction(c *gin.Context) {
	h.transition(c, func(a domain.Actor, id uint) (*domain.Transaction, error) {
		return h.txs.ConfirmReceived(c.Request.Context(), a, id)
	})
}

// CancelTransaction godoc
// @ID          cancelTransaction
// @Summary     Cancel a transaction
// @Tags        Transactions
// @Produce     json
// @Param       id   path      int  true  "Transaction ID"
// @Success     200  {object}  domain.Transaction
// @Failure     400  {object}  handlers.ErrorResponse "Invalid transition"
// @Failure     403  {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404  {object}  handlers.ErrorResponse "Transaction not found"
// @Router      /transactions/{id}/cancel [post]
func (h *Handlers) CancelTransaction(c *gin.Context) {
	h.transition(c, func(a domain.Actor, id uint) (*domain.Transaction, error) {
		return h.txs.Cancel(c.Request.Context(), a, id)
	})
}

// DisputeTransaction godoc
// @ID          disputeTransaction
// @Summary     Report a dispute
// @Tags        Transactions
// @Accept      json
// @Produce     json
// @Param       id    path      int                      true  "Transaction ID"
// @Param       body  body      handlers.DisputeRequest  true  "Reason"
// @Success     200   {object}  domain.Transaction
// @Failure     400   {object}  handlers.ErrorResponse "Bad request or invalid transition"
// @Failure     403   {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404   {object}  handlers.ErrorResponse "Transaction not found"
// @Router      /transactions/{id}/dispute [post]
func (h *Handlers) DisputeTransaction(c *gin.Context) {
	var req DisputeRequest
	h.transition(c, func(a domain.Actor, id uint) (*domain.Transaction, error) {
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, invalidBody("reason is required")
		}
		return h.txs.ReportDispute(c.Request.Context(), a, id, req.Reason)
	})
}

// ResolveTransaction godoc
// @ID          resolveTransaction
// @Summary     Resolve a dispute
// @Description Administrators only. COMPLETADA transfers the listing; CANCELADA releases it.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       id    path      int                      true  "Transaction ID"
// @Param       body  body      handlers.ResolveRequest  true  "Outcome"
// @Success     200   {object}  domain.Transaction
// @Failure     400   {object}  handlers.ErrorResponse "Bad request or invalid transition"
// @Failure     403   {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404   {object}  handlers.ErrorResponse "Transaction not found"
// @Router      /transactions/{id}/resolve [post]
func (h *Handlers) ResolveTransaction(c *gin.Context) {
	var req ResolveRequest
	h.transition(c, func(a domain.Actor, id uint) (*domain.Transaction, error) {
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, invalidBody("outcome is required")
		}
		outcome := domain.TxStatus(strings.ToUpper(strings.TrimSpace(req.Outcome)))
		return h.txs.ResolveDispute(c.Request.Context(), a, id, outcome, req.Notes)
	})
}

//
// Queries
//

// GetTransaction godoc
// @ID          getTransaction
// @Summary     Get a transaction
// @Description Visible to its parties, the foundation's representatives, moderators and administrators.
// @Tags        Transactions
// @Produce     json
// @Param       id   path      int  true  "Transaction ID"
// @Success     200  {object}  domain.Transaction
// @Failure     403  {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404  {object}  handlers.ErrorResponse "Transaction not found"
// @Router      /transactions/{id} [get]
func (h *Handlers) GetTransaction(c *gin.Context) {
	h.transition(c, func(a domain.Actor, id uint) (*domain.Transaction, error) {
		return h.txs.Get(c.Request.Context(), a, id)
	})
}

// ListMyTransactions godoc
// @ID          listMyTransactions
// @Summary     My transactions
// @Tags        Transactions
// @Produce     json
// @Success     200  {object}  services.MyTransactions
// @Failure     401  {object}  handlers.ErrorResponse "Authentication required"
// @Router      /transactions/mine [get]
func (h *Handlers) ListMyTransactions(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	mine, err := h.txs.ListMine(c.Request.Context(), a)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, mine)
}

// ListFoundationTransactions godoc
// @ID          listFoundationTransactions
// @Summary     Donations received by a foundation
// @Tags        Foundations
// @Produce     json
// @Param       id      path      int     true   "Foundation ID"
// @Param       status  query     string  false  "Status filter"  example(PENDIENTE)
// @Success     200  {array}   domain.Transaction
// @Failure     403  {object}  handlers.ErrorResponse "Forbidden"
// @Failure     404  {object}  handlers.ErrorResponse "Foundation not found"
// @Router      /foundations/{id}/transactions [get]
func (h *Handlers) ListFoundationTransactions(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	ts, err := h.txs.ListForFoundation(c.Request.Context(), a, id, c.Query("status"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ts)
}

// ListDisputes godoc
// @ID          listDisputes
// @Summary     Open disputes
// @Tags        Admin
// @Produce     json
// @Success     200  {array}   domain.Transaction
// @Failure     403  {object}  handlers.ErrorResponse "Forbidden"
// @Router      /admin/disputes [get]
func (h *Handlers) ListDisputes(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	ts, err := h.txs.ListDisputes(c.Request.Context(), a)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ts)
}
