package workflow

import "github.com/tbourn/ecoprenda-backend/internal/domain"

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// Authorize decides whether actor may perform action on tx. It is the single
// authorization point for transaction mutations and reads.
//
// Parties by type:
//   - EXCHANGE: origin proposes, destination (listing owner) accepts.
//   - SALE: destination (buyer) proposes, origin (seller) accepts.
//   - DONATION: origin (donor) proposes, the foundation representative accepts.
func Authorize(actor domain.Actor, tx *domain.Transaction, action Action) Decision {
	if tx == nil {
		return deny("transaction not found")
	}
	if actor.UserID == 0 {
		return deny("authentication required")
	}

	isOrigin := actor.UserID == tx.OriginUserID
	isDest := tx.DestinationUserID != nil && actor.UserID == *tx.DestinationUserID
	isRep := actor.Represents(tx.FoundationID)

	switch action {
	case ActionView:
		if isOrigin || isDest || isRep || actor.IsModerator() {
			return allow()
		}
		return deny("only the parties of the transaction can see it")

	case ActionAccept, ActionReject:
		switch tx.TypeCode {
		case domain.TxExchange:
			if isDest {
				return allow()
			}
			return deny("only the owner of the requested listing can answer an exchange")
		case domain.TxSale:
			if isOrigin {
				return allow()
			}
			return deny("only the seller can answer a purchase")
		case domain.TxDonation:
			if isRep {
				return allow()
			}
			return deny("only the foundation representative can answer a donation")
		}

	case ActionShip:
		if isOrigin {
			return allow()
		}
		return deny("only the origin party can mark the item as shipped")

	case ActionConfirm:
		if tx.TypeCode == domain.TxDonation {
			if isRep {
				return allow()
			}
			return deny("only the foundation representative can confirm a donation")
		}
		if isDest {
			return allow()
		}
		return deny("only the receiving party can confirm reception")

	case ActionCancel:
		if tx.TypeCode == domain.TxDonation {
			if isOrigin || isRep {
				return allow()
			}
			return deny("only the donor or the foundation representative can cancel a donation")
		}
		if isOrigin || isDest {
			return allow()
		}
		return deny("only the parties of the transaction can cancel it")

	case ActionDispute:
		if isDest {
			return allow()
		}
		return deny("only the receiving party can open a dispute")

	case ActionResolve:
		if actor.IsAdmin() {
			return allow()
		}
		return deny("only an administrator can resolve disputes")
	}
	return deny("unknown action")
}
