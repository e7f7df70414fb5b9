// Package workflow holds the transaction lifecycle rules: which action may
// move a transaction from one state to another, and who is allowed to
// perform it. Both are pure functions over domain values so the service
// layer can evaluate them inside a database transaction before writing.
package workflow

import (
	"errors"
	"fmt"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

// Action is a requested lifecycle operation on a transaction.
type Action string

const (
	ActionAccept  Action = "accept"
	ActionReject  Action = "reject"
	ActionShip    Action = "ship"
	ActionConfirm Action = "confirm"
	ActionCancel  Action = "cancel"
	ActionDispute Action = "dispute"
	ActionResolve Action = "resolve"
	ActionView    Action = "view"
)

// ErrInvalidTransition is returned when an action is not allowed from the
// current state.
var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError describes a rejected transition. It matches
// ErrInvalidTransition with errors.Is.
type TransitionError struct {
	Type   domain.TxType
	From   domain.TxStatus
	Action Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a %s transaction in state %s", e.Action, e.Type, e.From)
}

// Is reports whether target is ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// Next returns the state reached by applying action to a transaction of type
// t currently in state from. Resolve is handled by Resolve because its
// outcome is chosen by the administrator.
func Next(t domain.TxType, from domain.TxStatus, action Action) (domain.TxStatus, error) {
	bad := &TransitionError{Type: t, From: from, Action: action}
	switch action {
	case ActionAccept:
		if from == domain.TxPending {
			return domain.TxReserved, nil
		}
	case ActionReject:
		if from == domain.TxPending {
			return domain.TxRejected, nil
		}
	case ActionShip:
		if from == domain.TxReserved || (t == domain.TxDonation && from == domain.TxPending) {
			return domain.TxInProgress, nil
		}
	case ActionConfirm:
		if from == domain.TxInProgress {
			return domain.TxCompleted, nil
		}
	case ActionCancel:
		switch from {
		case domain.TxPending, domain.TxReserved, domain.TxInProgress:
			return domain.TxCancelled, nil
		}
	case ActionDispute:
		if from == domain.TxInProgress && t != domain.TxDonation {
			return domain.TxDisputed, nil
		}
	}
	return "", bad
}

// Resolve validates an administrator's dispute outcome.
func Resolve(t domain.TxType, from domain.TxStatus, outcome domain.TxStatus) (domain.TxStatus, error) {
	if from != domain.TxDisputed {
		return "", &TransitionError{Type: t, From: from, Action: ActionResolve}
	}
	switch outcome {
	case domain.TxCompleted, domain.TxCancelled:
		return outcome, nil
	}
	return "", fmt.Errorf("%w: outcome must be %s or %s", ErrInvalidTransition, domain.TxCompleted, domain.TxCancelled)
}
