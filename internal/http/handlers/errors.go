// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants and the translation of
// service errors into HTTP responses. Codes give clients a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case.
//   - Generic codes (bad_request, unauthorized, conflict) mirror common HTTP
//     status semantics.
//   - invalid_transition marks a workflow action that the transaction's
//     current state does not allow.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "forbidden",
//	  "message": "only the owner can accept a proposal"
//	}
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/ecoprenda-backend/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeMethodNotAllowed  = "method_not_allowed"
)

// internalMessage is the only text a client sees for unexpected failures.
const internalMessage = "internal error, try again"

// invalidBody reports a malformed request body through writeError.
func invalidBody(msg string) error {
	return fmt.Errorf("%w: %s", services.ErrInvalidInput, msg)
}

func isErr(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// writeError translates a service error into the matching envelope.
// Unknown errors become a logged 500 without leaking details.
func writeError(c *gin.Context, err error) {
	var denied *services.DeniedError
	switch {
	case errors.As(err, &denied):
		fail(c, http.StatusForbidden, ErrCodeForbidden, denied.Reason)
	case isErr(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case isErr(err, services.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
	case isErr(err, services.ErrInvalidTransition):
		fail(c, http.StatusBadRequest, ErrCodeInvalidTransition, err.Error())
	case isErr(err,
		services.ErrInvalidInput,
		services.ErrInvalidImage,
		services.ErrSelfTransaction,
		services.ErrNoPrice,
		services.ErrSelfMessage):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case isErr(err,
		services.ErrUserNotFound,
		services.ErrListingNotFound,
		services.ErrTransactionNotFound,
		services.ErrFoundationNotFound,
		services.ErrCampaignNotFound,
		services.ErrAchievementNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case isErr(err,
		services.ErrConflict,
		services.ErrListingBusy,
		services.ErrListingUnavailable,
		services.ErrEmailTaken,
		services.ErrFoundationExists,
		services.ErrFoundationInactive,
		services.ErrCampaignClosed):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, internalMessage)
	}
}
