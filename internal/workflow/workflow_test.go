package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

func TestNext_HappyPath(t *testing.T) {
	for _, typ := range []domain.TxType{domain.TxExchange, domain.TxSale, domain.TxDonation} {
		s, err := Next(typ, domain.TxPending, ActionAccept)
		require.NoError(t, err)
		require.Equal(t, domain.TxReserved, s)

		s, err = Next(typ, s, ActionShip)
		require.NoError(t, err)
		require.Equal(t, domain.TxInProgress, s)

		s, err = Next(typ, s, ActionConfirm)
		require.NoError(t, err)
		require.Equal(t, domain.TxCompleted, s)
	}
}

func TestNext_ConfirmOnlyFromInProgress(t *testing.T) {
	for _, from := range []domain.TxStatus{domain.TxPending, domain.TxReserved, domain.TxCompleted, domain.TxDisputed, domain.TxCancelled} {
		_, err := Next(domain.TxSale, from, ActionConfirm)
		require.Error(t, err, "from %s", from)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	}
}

func TestNext_ShipFromPendingOnlyForDonations(t *testing.T) {
	s, err := Next(domain.TxDonation, domain.TxPending, ActionShip)
	require.NoError(t, err)
	assert.Equal(t, domain.TxInProgress, s)

	_, err = Next(domain.TxExchange, domain.TxPending, ActionShip)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = Next(domain.TxSale, domain.TxPending, ActionShip)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestNext_CancelFromEveryOpenStateButDispute(t *testing.T) {
	for _, from := range []domain.TxStatus{domain.TxPending, domain.TxReserved, domain.TxInProgress} {
		s, err := Next(domain.TxExchange, from, ActionCancel)
		require.NoError(t, err)
		assert.Equal(t, domain.TxCancelled, s)
	}
	for _, from := range []domain.TxStatus{domain.TxDisputed, domain.TxCompleted, domain.TxRejected, domain.TxCancelled} {
		_, err := Next(domain.TxExchange, from, ActionCancel)
		assert.ErrorIs(t, err, ErrInvalidTransition, "from %s", from)
	}
}

func TestNext_RejectAndDispute(t *testing.T) {
	s, err := Next(domain.TxSale, domain.TxPending, ActionReject)
	require.NoError(t, err)
	assert.Equal(t, domain.TxRejected, s)

	_, err = Next(domain.TxSale, domain.TxReserved, ActionReject)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	s, err = Next(domain.TxSale, domain.TxInProgress, ActionDispute)
	require.NoError(t, err)
	assert.Equal(t, domain.TxDisputed, s)

	_, err = Next(domain.TxDonation, domain.TxInProgress, ActionDispute)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = Next(domain.TxSale, domain.TxReserved, ActionDispute)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestResolve(t *testing.T) {
	s, err := Resolve(domain.TxSale, domain.TxDisputed, domain.TxCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.TxCompleted, s)

	s, err = Resolve(domain.TxSale, domain.TxDisputed, domain.TxCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.TxCancelled, s)

	_, err = Resolve(domain.TxSale, domain.TxDisputed, domain.TxPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = Resolve(domain.TxSale, domain.TxInProgress, domain.TxCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionError_Message(t *testing.T) {
	_, err := Next(domain.TxExchange, domain.TxPending, ActionConfirm)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "cannot confirm a EXCHANGE transaction in state PENDIENTE", te.Error())
}

func uptr(v uint) *uint { return &v }

func TestAuthorize_Exchange(t *testing.T) {
	tx := &domain.Transaction{TypeCode: domain.TxExchange, OriginUserID: 1, DestinationUserID: uptr(2)}
	origin := domain.Actor{UserID: 1, Role: domain.RoleClient}
	dest := domain.Actor{UserID: 2, Role: domain.RoleClient}
	stranger := domain.Actor{UserID: 3, Role: domain.RoleClient}

	assert.True(t, Authorize(dest, tx, ActionAccept).Allowed)
	assert.False(t, Authorize(origin, tx, ActionAccept).Allowed)
	assert.True(t, Authorize(origin, tx, ActionShip).Allowed)
	assert.False(t, Authorize(dest, tx, ActionShip).Allowed)
	assert.True(t, Authorize(dest, tx, ActionConfirm).Allowed)
	assert.False(t, Authorize(origin, tx, ActionConfirm).Allowed)
	assert.True(t, Authorize(origin, tx, ActionCancel).Allowed)
	assert.True(t, Authorize(dest, tx, ActionCancel).Allowed)
	assert.True(t, Authorize(dest, tx, ActionDispute).Allowed)
	assert.False(t, Authorize(origin, tx, ActionDispute).Allowed)

	d := Authorize(stranger, tx, ActionCancel)
	assert.False(t, d.Allowed)
	assert.NotEmpty(t, d.Reason)
	assert.False(t, Authorize(stranger, tx, ActionView).Allowed)
}

func TestAuthorize_SaleSellerAnswers(t *testing.T) {
	tx := &domain.Transaction{TypeCode: domain.TxSale, OriginUserID: 10, DestinationUserID: uptr(20)}
	seller := domain.Actor{UserID: 10, Role: domain.RoleClient}
	buyer := domain.Actor{UserID: 20, Role: domain.RoleClient}

	assert.True(t, Authorize(seller, tx, ActionAccept).Allowed)
	assert.True(t, Authorize(seller, tx, ActionReject).Allowed)
	assert.False(t, Authorize(buyer, tx, ActionAccept).Allowed)
	assert.True(t, Authorize(buyer, tx, ActionConfirm).Allowed)
}

func TestAuthorize_DonationRepresentative(t *testing.T) {
	fid := uptr(7)
	tx := &domain.Transaction{TypeCode: domain.TxDonation, OriginUserID: 1, FoundationID: fid}
	donor := domain.Actor{UserID: 1, Role: domain.RoleClient}
	rep := domain.Actor{UserID: 5, Role: domain.RoleFoundationRep, FoundationID: uptr(7)}
	otherRep := domain.Actor{UserID: 6, Role: domain.RoleFoundationRep, FoundationID: uptr(8)}

	assert.True(t, Authorize(rep, tx, ActionAccept).Allowed)
	assert.False(t, Authorize(otherRep, tx, ActionAccept).Allowed)
	assert.True(t, Authorize(donor, tx, ActionShip).Allowed)
	assert.False(t, Authorize(rep, tx, ActionShip).Allowed)
	assert.True(t, Authorize(rep, tx, ActionConfirm).Allowed)
	assert.False(t, Authorize(donor, tx, ActionConfirm).Allowed)
	assert.True(t, Authorize(donor, tx, ActionCancel).Allowed)
	assert.True(t, Authorize(rep, tx, ActionCancel).Allowed)
	assert.False(t, Authorize(donor, tx, ActionDispute).Allowed)
	assert.True(t, Authorize(rep, tx, ActionView).Allowed)
}

func TestAuthorize_ResolveAndAnonymous(t *testing.T) {
	tx := &domain.Transaction{TypeCode: domain.TxSale, OriginUserID: 1, DestinationUserID: uptr(2)}
	assert.True(t, Authorize(domain.Actor{UserID: 99, Role: domain.RoleAdmin}, tx, ActionResolve).Allowed)
	assert.False(t, Authorize(domain.Actor{UserID: 98, Role: domain.RoleModerator}, tx, ActionResolve).Allowed)
	assert.True(t, Authorize(domain.Actor{UserID: 98, Role: domain.RoleModerator}, tx, ActionView).Allowed)
	assert.False(t, Authorize(domain.Actor{}, tx, ActionView).Allowed)
	assert.False(t, Authorize(domain.Actor{UserID: 1}, nil, ActionView).Allowed)
}
