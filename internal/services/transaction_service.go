// Package services – TransactionService
//
// This file implements the transaction engine: proposals of exchanges, sales
// and donations, and every lifecycle transition after them. Each operation
// runs in one database transaction that loads the row, asks the workflow
// policy whether the actor may act, validates the transition, applies the
// listing side effects, and finally writes the new status with a
// compare-and-set on the previous one.
//
// Listing reservation is a conditional update (AVAILABLE -> RESERVED), so of
// two proposals that raced past the open-transaction check only the first
// accepted one can reserve the listing; the other fails with
// ErrListingUnavailable.
//
// Notifications and achievement evaluation run after commit and never fail
// the transition.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
	"github.com/tbourn/ecoprenda-backend/internal/repo"
	"github.com/tbourn/ecoprenda-backend/internal/workflow"
)

const (
	minDisputeRunes  = 10
	maxNotesRunes    = 2000
	maxCourierRunes  = 60
	maxTrackingRunes = 100
)

// Shipment carries the optional delivery details given when shipping.
type Shipment struct {
	Courier      string
	TrackingCode string
}

// MyTransactions splits a user's transactions by the side they are on.
type MyTransactions struct {
	Sent     []domain.Transaction `json:"sent"`
	Received []domain.Transaction `json:"received"`
}

// TransactionService runs the transaction lifecycle.
type TransactionService struct {
	DB           *gorm.DB
	Notifier     Notifier
	Achievements Evaluator
	Now          func() time.Time
}

// ---------------------------------------------------------------------------
// proposals

// ProposeExchange asks the owner of listingID to swap it, optionally for
// offeredListingID owned by the actor.
func (s *TransactionService) ProposeExchange(ctx context.Context, actor domain.Actor, listingID uint, offeredListingID *uint) (*domain.Transaction, error) {
	tr := otel.Tracer("services/TransactionService")
	ctx, span := tr.Start(ctx, "ProposeExchange",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(actor.UserID)),
			attribute.Int64("listing.id", int64(listingID)),
		),
	)
	defer span.End()

	if actor.UserID == 0 {
		return nil, ErrUnauthenticated
	}

	var out *domain.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := availableListing(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if l.OwnerID == actor.UserID {
			return ErrSelfTransaction
		}
		if err := ensureIdle(ctx, tx, l.ID); err != nil {
			return err
		}
		if offeredListingID != nil {
			if *offeredListingID == l.ID {
				return invalid("offered listing must differ from the requested one")
			}
			o, err := repo.GetListing(ctx, tx, *offeredListingID)
			if err != nil {
				return mapNotFound(err, ErrListingNotFound)
			}
			if o.OwnerID != actor.UserID {
				return denied("you can only offer your own listings")
			}
			if o.Status != domain.ListingAvailable {
				return ErrListingUnavailable
			}
			if err := ensureIdle(ctx, tx, o.ID); err != nil {
				return err
			}
		}

		owner := l.OwnerID
		t := &domain.Transaction{
			ListingID:         l.ID,
			TypeCode:          domain.TxExchange,
			OriginUserID:      actor.UserID,
			DestinationUserID: &owner,
			OfferedListingID:  offeredListingID,
			Status:            domain.TxPending,
		}
		if err := repo.CreateTransaction(ctx, tx, t); err != nil {
			return err
		}
		t.Listing = l
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.proposed(ctx, actor, out, *out.DestinationUserID, fmt.Sprintf("Nueva propuesta de intercambio por \"%s\".", listingName(out)))
	return out, nil
}

// ProposePurchase asks the owner of listingID to sell it to the actor at the
// listing's price.
func (s *TransactionService) ProposePurchase(ctx context.Context, actor domain.Actor, listingID uint) (*domain.Transaction, error) {
	tr := otel.Tracer("services/TransactionService")
	ctx, span := tr.Start(ctx, "ProposePurchase",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(actor.UserID)),
			attribute.Int64("listing.id", int64(listingID)),
		),
	)
	defer span.End()

	if actor.UserID == 0 {
		return nil, ErrUnauthenticated
	}

	var out *domain.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := availableListing(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if l.OwnerID == actor.UserID {
			return ErrSelfTransaction
		}
		if !l.Price.Valid {
			return ErrNoPrice
		}
		if err := ensureIdle(ctx, tx, l.ID); err != nil {
			return err
		}

		buyer := actor.UserID
		t := &domain.Transaction{
			ListingID:         l.ID,
			TypeCode:          domain.TxSale,
			OriginUserID:      l.OwnerID,
			DestinationUserID: &buyer,
			Amount:            l.Price,
			Status:            domain.TxPending,
		}
		if err := repo.CreateTransaction(ctx, tx, t); err != nil {
			return err
		}
		t.Listing = l
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.proposed(ctx, actor, out, out.OriginUserID, fmt.Sprintf("Nueva solicitud de compra de \"%s\" por %s.", listingName(out), out.Amount.Decimal.StringFixed(2)))
	return out, nil
}

// ProposeDonation offers the actor's listingID to foundationID, optionally as
// part of campaignID.
func (s *TransactionService) ProposeDonation(ctx context.Context, actor domain.Actor, listingID, foundationID uint, campaignID *uint) (*domain.Transaction, error) {
	tr := otel.Tracer("services/TransactionService")
	ctx, span := tr.Start(ctx, "ProposeDonation",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(actor.UserID)),
			attribute.Int64("listing.id", int64(listingID)),
			attribute.Int64("foundation.id", int64(foundationID)),
		),
	)
	defer span.End()

	if actor.UserID == 0 {
		return nil, ErrUnauthenticated
	}
	if foundationID == 0 {
		return nil, invalid("foundation_id is required")
	}
	at := now(s.Now)

	var out *domain.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := availableListing(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if l.OwnerID != actor.UserID {
			return denied("only the owner can donate a listing")
		}
		f, err := repo.GetFoundation(ctx, tx, foundationID)
		if err != nil {
			return mapNotFound(err, ErrFoundationNotFound)
		}
		if !f.Active {
			return ErrFoundationInactive
		}
		if campaignID != nil {
			c, err := repo.GetCampaign(ctx, tx, *campaignID)
			if err != nil {
				return mapNotFound(err, ErrCampaignNotFound)
			}
			if c.FoundationID != f.ID || !c.OpenAt(at) {
				return ErrCampaignClosed
			}
		}
		if err := ensureIdle(ctx, tx, l.ID); err != nil {
			return err
		}

		fid := f.ID
		t := &domain.Transaction{
			ListingID:    l.ID,
			TypeCode:     domain.TxDonation,
			OriginUserID: actor.UserID,
			FoundationID: &fid,
			CampaignID:   campaignID,
			Status:       domain.TxPending,
		}
		if err := repo.CreateTransaction(ctx, tx, t); err != nil {
			return err
		}
		t.Listing = l
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	var repID uint
	if rep, err := repo.FindFoundationRepresentative(ctx, s.DB, foundationID); err == nil {
		repID = rep.ID
	}
	s.proposed(ctx, actor, out, repID, fmt.Sprintf("Nueva donación propuesta: \"%s\".", listingName(out)))
	return out, nil
}

// DonateToCampaign proposes a donation of listingID to the foundation running
// campaignID.
func (s *TransactionService) DonateToCampaign(ctx context.Context, actor domain.Actor, campaignID, listingID uint) (*domain.Transaction, error) {
	c, err := repo.GetCampaign(ctx, s.DB, campaignID)
	if err != nil {
		return nil, mapNotFound(err, ErrCampaignNotFound)
	}
	return s.ProposeDonation(ctx, actor, listingID, c.FoundationID, &c.ID)
}

func (s *TransactionService) proposed(ctx context.Context, actor domain.Actor, t *domain.Transaction, to uint, content string) {
	transitionsTotal.WithLabelValues(string(t.TypeCode), "propose", string(t.Status)).Inc()
	zerolog.Ctx(ctx).Info().
		Uint("transaction_id", t.ID).
		Str("type", string(t.TypeCode)).
		Uint("listing_id", t.ListingID).
		Msg("transaction proposed")
	s.notify(ctx, actor.UserID, t, content, to)
}

// ---------------------------------------------------------------------------
// transitions

// Accept reserves the listing (and any offered listing) and moves a
// PENDIENTE transaction to RESERVADA.
func (s *TransactionService) Accept(ctx context.Context, actor domain.Actor, id uint) (*domain.Transaction, error) {
	t, err := s.mutate(ctx, actor, id, workflow.ActionAccept, "", func(tx *gorm.DB, t *domain.Transaction, at time.Time, fields map[string]any) error {
		if err := reserve(ctx, tx, t.ListingID); err != nil {
			return err
		}
		if t.OfferedListingID != nil {
			if err := reserve(ctx, tx, *t.OfferedListingID); err != nil {
				return err
			}
		}
		fields["accepted_at"] = at
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyParties(ctx, actor, t, fmt.Sprintf("Tu propuesta por \"%s\" fue aceptada.", listingName(t)))
	return t, nil
}

// Reject closes a PENDIENTE transaction. The listing is untouched.
func (s *TransactionService) Reject(ctx context.Context, actor domain.Actor, id uint) (*domain.Transaction, error) {
	t, err := s.mutate(ctx, actor, id, workflow.ActionReject, "", nil)
	if err != nil {
		return nil, err
	}
	s.notifyParties(ctx, actor, t, fmt.Sprintf("Tu propuesta por \"%s\" fue rechazada.", listingName(t)))
	return t, nil
}

// MarkShipped moves the transaction to EN_PROCESO. A donation may be
// shipped straight from PENDIENTE, in which case the listing is reserved
// first.
func (s *TransactionService) MarkShipped(ctx context.Context, actor domain.Actor, id uint, sh Shipment) (*domain.Transaction, error) {
	courier := strings.TrimSpace(sh.Courier)
	tracking := strings.TrimSpace(sh.TrackingCode)
	if utf8.RuneCountInString(courier) > maxCourierRunes {
		return nil, invalid("courier must be at most %d characters", maxCourierRunes)
	}
	if utf8.RuneCountInString(tracking) > maxTrackingRunes {
		return nil, invalid("tracking code must be at most %d characters", maxTrackingRunes)
	}

	t, err := s.mutate(ctx, actor, id, workflow.ActionShip, "", func(tx *gorm.DB, t *domain.Transaction, at time.Time, fields map[string]any) error {
		if t.TypeCode == domain.TxDonation && t.Status == domain.TxPending {
			if err := reserve(ctx, tx, t.ListingID); err != nil {
				return err
			}
			fields["accepted_at"] = at
		}
		fields["shipped_at"] = at
		fields["courier"] = courier
		fields["tracking_code"] = tracking
		return nil
	})
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("\"%s\" fue enviada.", listingName(t))
	if courier != "" {
		msg += " Transporte: " + courier + "."
	}
	if tracking != "" {
		msg += " Seguimiento: " + tracking + "."
	}
	s.notifyParties(ctx, actor, t, msg)
	return t, nil
}

// ConfirmReceived completes an EN_PROCESO transaction and transfers the
// listing (and any offered listing).
func (s *TransactionService) ConfirmReceived(ctx context.Context, actor domain.Actor, id uint) (*domain.Transaction, error) {
	t, err := s.mutate(ctx, actor, id, workflow.ActionConfirm, "", func(tx *gorm.DB, t *domain.Transaction, at time.Time, fields map[string]any) error {
		fields["delivered_at"] = at
		return transfer(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}
	s.completed(ctx, actor, t)
	return t, nil
}

// Cancel closes an open transaction and releases any listing it reserved.
func (s *TransactionService) Cancel(ctx context.Context, actor domain.Actor, id uint) (*domain.Transaction, error) {
	t, err := s.mutate(ctx, actor, id, workflow.ActionCancel, "", func(tx *gorm.DB, t *domain.Transaction, _ time.Time, _ map[string]any) error {
		return release(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}
	s.notifyParties(ctx, actor, t, fmt.Sprintf("La transacción de \"%s\" fue cancelada.", listingName(t)))
	return t, nil
}

// ReportDispute lets the receiving party contest an EN_PROCESO transaction.
func (s *TransactionService) ReportDispute(ctx context.Context, actor domain.Actor, id uint, reason string) (*domain.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if n := utf8.RuneCountInString(reason); n < minDisputeRunes || n > maxNotesRunes {
		return nil, invalid("reason must be between %d and %d characters", minDisputeRunes, maxNotesRunes)
	}

	t, err := s.mutate(ctx, actor, id, workflow.ActionDispute, "", func(_ *gorm.DB, _ *domain.Transaction, at time.Time, fields map[string]any) error {
		reporter := actor.UserID
		fields["dispute_reporter_id"] = reporter
		fields["dispute_reason"] = reason
		fields["disputed_at"] = at
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, actor.UserID, t, fmt.Sprintf("Se abrió una disputa sobre \"%s\": %s", listingName(t), reason), t.OriginUserID)
	return t, nil
}

// ResolveDispute closes an EN_DISPUTA transaction with the administrator's
// outcome: COMPLETADA transfers the listing, CANCELADA releases it.
func (s *TransactionService) ResolveDispute(ctx context.Context, actor domain.Actor, id uint, outcome domain.TxStatus, notes string) (*domain.Transaction, error) {
	notes = strings.TrimSpace(notes)
	if utf8.RuneCountInString(notes) > maxNotesRunes {
		return nil, invalid("notes must be at most %d characters", maxNotesRunes)
	}
	if st, ok := domain.ParseTxStatus(string(outcome)); ok {
		outcome = st
	}

	t, err := s.mutate(ctx, actor, id, workflow.ActionResolve, outcome, func(tx *gorm.DB, t *domain.Transaction, at time.Time, fields map[string]any) error {
		resolver := actor.UserID
		fields["resolution_notes"] = notes
		fields["resolved_by_id"] = resolver
		fields["resolved_at"] = at
		if outcome == domain.TxCompleted {
			fields["delivered_at"] = at
			return transfer(ctx, tx, t)
		}
		return release(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}

	if t.Status == domain.TxCompleted {
		s.notifyParties(ctx, actor, t, fmt.Sprintf("La disputa sobre \"%s\" se resolvió: la transacción quedó completada.", listingName(t)))
		evaluateQuietly(ctx, s.Achievements, t.OriginUserID, derefUint(t.DestinationUserID))
	} else {
		s.notifyParties(ctx, actor, t, fmt.Sprintf("La disputa sobre \"%s\" se resolvió: la transacción quedó cancelada.", listingName(t)))
	}
	return t, nil
}

type applyFunc func(tx *gorm.DB, t *domain.Transaction, at time.Time, fields map[string]any) error

// mutate runs one lifecycle transition. outcome is only used by resolve.
func (s *TransactionService) mutate(ctx context.Context, actor domain.Actor, id uint, action workflow.Action, outcome domain.TxStatus, apply applyFunc) (*domain.Transaction, error) {
	tr := otel.Tracer("services/TransactionService")
	ctx, span := tr.Start(ctx, "Transition",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(actor.UserID)),
			attribute.Int64("transaction.id", int64(id)),
			attribute.String("transaction.action", string(action)),
		),
	)
	defer span.End()

	if actor.UserID == 0 {
		return nil, ErrUnauthenticated
	}
	at := now(s.Now)

	var (
		out  *domain.Transaction
		from domain.TxStatus
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := repo.GetTransaction(ctx, tx, id)
		if err != nil {
			return mapNotFound(err, ErrTransactionNotFound)
		}
		if d := workflow.Authorize(actor, t, action); !d.Allowed {
			return &DeniedError{Action: string(action), Reason: d.Reason}
		}

		from = t.Status
		var to domain.TxStatus
		if action == workflow.ActionResolve {
			to, err = workflow.Resolve(t.TypeCode, from, outcome)
		} else {
			to, err = workflow.Next(t.TypeCode, from, action)
		}
		if err != nil {
			return err
		}

		fields := map[string]any{"status": to}
		if apply != nil {
			if err := apply(tx, t, at, fields); err != nil {
				return err
			}
		}
		ok, err := repo.UpdateTransactionIf(ctx, tx, t.ID, from, fields)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConflict
		}

		out, err = repo.GetTransaction(ctx, tx, t.ID)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrForbidden) {
			zerolog.Ctx(ctx).Debug().Err(err).Uint("transaction_id", id).Str("action", string(action)).Msg("transition failed")
		}
		return nil, err
	}

	transitionsTotal.WithLabelValues(string(out.TypeCode), string(action), string(out.Status)).Inc()
	zerolog.Ctx(ctx).Info().
		Uint("transaction_id", out.ID).
		Str("action", string(action)).
		Str("from", string(from)).
		Str("to", string(out.Status)).
		Msg("transaction transition")
	return out, nil
}

// completed runs the post-commit effects of a COMPLETADA transition.
func (s *TransactionService) completed(ctx context.Context, actor domain.Actor, t *domain.Transaction) {
	if t.TypeCode == domain.TxDonation {
		name := "la fundación"
		if t.FoundationID != nil {
			if f, err := repo.GetFoundation(ctx, s.DB, *t.FoundationID); err == nil {
				name = f.Name
			}
		}
		s.notify(ctx, actor.UserID, t, fmt.Sprintf("¡Gracias por tu donación de %s! Tu prenda ha sido recibida y será destinada a %s.", listingName(t), name), t.OriginUserID)
	} else {
		s.notifyParties(ctx, actor, t, fmt.Sprintf("La entrega de \"%s\" fue confirmada.", listingName(t)))
	}
	evaluateQuietly(ctx, s.Achievements, t.OriginUserID, derefUint(t.DestinationUserID))
}

// ---------------------------------------------------------------------------
// queries

// Get returns a transaction the actor is allowed to see.
func (s *TransactionService) Get(ctx context.Context, actor domain.Actor, id uint) (*domain.Transaction, error) {
	if actor.UserID == 0 {
		return nil, ErrUnauthenticated
	}
	t, err := repo.GetTransaction(ctx, s.DB, id)
	if err != nil {
		return nil, mapNotFound(err, ErrTransactionNotFound)
	}
	if d := workflow.Authorize(actor, t, workflow.ActionView); !d.Allowed {
		return nil, &DeniedError{Action: string(workflow.ActionView), Reason: d.Reason}
	}
	return t, nil
}

// ListMine returns the transactions where the actor is origin (sent) or
// destination (received).
func (s *TransactionService) ListMine(ctx context.Context, actor domain.Actor) (*MyTransactions, error) {
	tr := otel.Tracer("services/TransactionService")
	ctx, span := tr.Start(ctx, "ListMine", trace.WithAttributes(attribute.Int64("user.id", int64(actor.UserID))))
	defer span.End()

	if actor.UserID == 0 {
		return nil, ErrUnauthenticated
	}
	sent, err := repo.ListTransactionsByOrigin(ctx, s.DB, actor.UserID)
	if err != nil {
		return nil, err
	}
	received, err := repo.ListTransactionsByDestination(ctx, s.DB, actor.UserID)
	if err != nil {
		return nil, err
	}
	return &MyTransactions{Sent: sent, Received: received}, nil
}

// ListForFoundation returns the donations addressed to foundationID,
// optionally filtered by status (ACEPTADA is read as RESERVADA).
func (s *TransactionService) ListForFoundation(ctx context.Context, actor domain.Actor, foundationID uint, status string) ([]domain.Transaction, error) {
	if !actor.Represents(&foundationID) && !actor.IsAdmin() {
		return nil, denied("only the foundation representative can list its donations")
	}
	var st domain.TxStatus
	if strings.TrimSpace(status) != "" {
		var ok bool
		if st, ok = domain.ParseTxStatus(status); !ok {
			return nil, invalid("unknown status %q", status)
		}
	}
	if _, err := repo.GetFoundation(ctx, s.DB, foundationID); err != nil {
		return nil, mapNotFound(err, ErrFoundationNotFound)
	}
	return repo.ListTransactionsByFoundation(ctx, s.DB, foundationID, st, 0)
}

// ListDisputes returns every transaction awaiting a dispute resolution.
func (s *TransactionService) ListDisputes(ctx context.Context, actor domain.Actor) ([]domain.Transaction, error) {
	if !actor.IsAdmin() {
		return nil, denied("only an administrator can review disputes")
	}
	return repo.ListTransactionsByStatus(ctx, s.DB, domain.TxDisputed)
}

// ---------------------------------------------------------------------------
// listing side effects

func availableListing(ctx context.Context, db *gorm.DB, id uint) (*domain.Listing, error) {
	l, err := repo.GetListing(ctx, db, id)
	if err != nil {
		return nil, mapNotFound(err, ErrListingNotFound)
	}
	if l.Status != domain.ListingAvailable {
		return nil, ErrListingUnavailable
	}
	return l, nil
}

// ensureIdle fails when listingID already takes part in an open transaction.
// It is a check, not a lock: reserve is what arbitrates concurrent winners.
func ensureIdle(ctx context.Context, db *gorm.DB, listingID uint) error {
	busy, err := repo.HasOpenTransaction(ctx, db, listingID)
	if err != nil {
		return err
	}
	if busy {
		return ErrListingBusy
	}
	return nil
}

func reserve(ctx context.Context, db *gorm.DB, listingID uint) error {
	ok, err := repo.SetListingStatusIf(ctx, db, listingID, domain.ListingAvailable, domain.ListingReserved)
	if err != nil {
		return err
	}
	if !ok {
		return ErrListingUnavailable
	}
	return nil
}

// transfer marks the reserved listings of t as TRANSFERRED.
func transfer(ctx context.Context, db *gorm.DB, t *domain.Transaction) error {
	ids := []uint{t.ListingID}
	if t.OfferedListingID != nil {
		ids = append(ids, *t.OfferedListingID)
	}
	for _, id := range ids {
		ok, err := repo.SetListingStatusIf(ctx, db, id, domain.ListingReserved, domain.ListingTransferred)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConflict
		}
	}
	return nil
}

// release returns the listings reserved by t to AVAILABLE. A PENDIENTE
// transaction never reserved anything.
func release(ctx context.Context, db *gorm.DB, t *domain.Transaction) error {
	if t.Status == domain.TxPending {
		return nil
	}
	ids := []uint{t.ListingID}
	if t.OfferedListingID != nil {
		ids = append(ids, *t.OfferedListingID)
	}
	for _, id := range ids {
		if _, err := repo.SetListingStatusIf(ctx, db, id, domain.ListingReserved, domain.ListingAvailable); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// notifications

// notifyParties tells every party of t except the actor.
func (s *TransactionService) notifyParties(ctx context.Context, actor domain.Actor, t *domain.Transaction, content string) {
	to := []uint{t.OriginUserID, derefUint(t.DestinationUserID)}
	if t.FoundationID != nil {
		if rep, err := repo.FindFoundationRepresentative(ctx, s.DB, *t.FoundationID); err == nil {
			to = append(to, rep.ID)
		}
	}
	s.notify(ctx, actor.UserID, t, content, to...)
}

func (s *TransactionService) notify(ctx context.Context, from uint, t *domain.Transaction, content string, to ...uint) {
	if s.Notifier == nil {
		return
	}
	seen := map[uint]bool{from: true, 0: true}
	id := t.ID
	for _, u := range to {
		if seen[u] {
			continue
		}
		seen[u] = true
		s.Notifier.Notify(ctx, from, u, &id, content)
	}
}

func listingName(t *domain.Transaction) string {
	if t.Listing != nil && t.Listing.Name != "" {
		return t.Listing.Name
	}
	return fmt.Sprintf("la prenda #%d", t.ListingID)
}

func derefUint(p *uint) uint {
	if p == nil {
		return 0
	}
	return *p
}
