// Package services defines the business logic of the marketplace: listings,
// transactions, messaging, achievements, impact, foundations, and campaigns.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/ecoprenda-backend/internal/repo"
	"github.com/tbourn/ecoprenda-backend/internal/workflow"
)

// Lookup errors.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrListingNotFound     = errors.New("listing not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrFoundationNotFound  = errors.New("foundation not found")
	ErrCampaignNotFound    = errors.New("campaign not found")
	ErrAchievementNotFound = errors.New("achievement not found")
)

// Input and state errors.
var (
	// ErrInvalidInput wraps every field validation failure.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidImage is returned for uploads that are empty, too large, or
	// not a supported image type.
	ErrInvalidImage = errors.New("invalid image")

	// ErrEmailTaken is returned when registering an e-mail that already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrUnauthenticated is returned when an operation needs a known user.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden is matched by every DeniedError.
	ErrForbidden = errors.New("forbidden")

	// ErrListingUnavailable is returned when a listing is not AVAILABLE, or
	// when another transaction reserved it first.
	ErrListingUnavailable = errors.New("listing is not available")

	// ErrListingBusy is returned when a listing already has an open transaction.
	ErrListingBusy = errors.New("listing has an open transaction")

	// ErrSelfTransaction is returned when a user proposes an exchange or a
	// purchase of their own listing.
	ErrSelfTransaction = errors.New("cannot trade with yourself")

	// ErrNoPrice is returned when buying a listing that has no price.
	ErrNoPrice = errors.New("listing has no price")

	// ErrFoundationInactive is returned when donating to an inactive foundation.
	ErrFoundationInactive = errors.New("foundation is not active")

	// ErrCampaignClosed is returned when a campaign does not accept donations
	// now or belongs to another foundation.
	ErrCampaignClosed = errors.New("campaign is not accepting donations")

	// ErrConflict is returned when a compare-and-set lost against a
	// concurrent writer. The caller may reload and retry.
	ErrConflict = errors.New("concurrent update")

	// ErrInvalidTransition is returned when an action is not allowed in the
	// transaction's current state.
	ErrInvalidTransition = workflow.ErrInvalidTransition

	// ErrFoundationExists is returned when a foundation name is taken.
	ErrFoundationExists = errors.New("foundation already exists")

	// ErrSelfMessage is returned when a user messages themself.
	ErrSelfMessage = errors.New("cannot message yourself")
)

// DeniedError is an authorization refusal carrying the policy's reason.
// Action is empty for checks outside the transaction workflow.
type DeniedError struct {
	Action string
	Reason string
}

func (e *DeniedError) Error() string {
	if e.Action == "" {
		return "forbidden: " + e.Reason
	}
	return "forbidden to " + e.Action + ": " + e.Reason
}

// Is makes DeniedError match ErrForbidden.
func (e *DeniedError) Is(target error) bool { return target == ErrForbidden }

func denied(reason string) error { return &DeniedError{Reason: reason} }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// mapNotFound replaces a repository not-found error with sentinel.
func mapNotFound(err, sentinel error) error {
	if repo.IsNotFound(err) {
		return sentinel
	}
	return err
}
