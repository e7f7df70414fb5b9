package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
	"github.com/tbourn/ecoprenda-backend/internal/geo"
)

func TestFoundationCreate(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	svc := &FoundationService{DB: db, Geocoder: fakeGeocoder{point: geo.Point{Lat: -33.4, Lng: -70.6}}}
	admin := mkAdmin(t, db, "admin")
	ana := mkUser(t, db, "ana")

	_, err := svc.Create(ctx, ana, FoundationInput{Name: "Abrigo"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Create(ctx, admin, FoundationInput{Name: " "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	f, err := svc.Create(ctx, admin, FoundationInput{Name: "Abrigo", Address: "Santiago Centro"})
	require.NoError(t, err)
	assert.True(t, f.Active)
	require.NotNil(t, f.Latitude)
	assert.Equal(t, -33.4, *f.Latitude)

	_, err = svc.Create(ctx, admin, FoundationInput{Name: "Abrigo"})
	assert.ErrorIs(t, err, ErrFoundationExists)

	list, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestFoundationDashboard(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	txs := newTxService(db)
	svc := &FoundationService{DB: db, Campaigns: &CampaignService{DB: db}}
	f, rep := mkFoundation(t, db, "Ropero")
	_, otherRep := mkFoundation(t, db, "Otra")
	ana := mkUser(t, db, "ana")

	done := mkListing(t, db, ana, domain.CategoryShirt)
	completeDonation(t, txs, ana, rep, done.ID, f.ID)
	pending := mkListing(t, db, ana, domain.CategoryPants)
	_, err := txs.ProposeDonation(ctx, ana, pending.ID, f.ID, nil)
	require.NoError(t, err)
	shipped := mkListing(t, db, ana, domain.CategoryDress)
	st, err := txs.ProposeDonation(ctx, ana, shipped.ID, f.ID, nil)
	require.NoError(t, err)
	_, err = txs.MarkShipped(ctx, ana, st.ID, Shipment{Courier: "Chilexpress"})
	require.NoError(t, err)

	_, err = svc.Dashboard(ctx, otherRep, f.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Dashboard(ctx, ana, f.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	d, err := svc.Dashboard(ctx, rep, f.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, d.Pending)
	assert.EqualValues(t, 1, d.InProcess)
	assert.EqualValues(t, 1, d.Completed)
	assert.Len(t, d.Recent, 3)
	assert.NotNil(t, d.Campaigns)

	details, err := svc.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, details.CompletedDonations)
	assert.Equal(t, 5.5, details.Impact.Figures.CarbonKg)

	_, err = svc.Get(ctx, 9999)
	assert.ErrorIs(t, err, ErrFoundationNotFound)
}

func TestFoundationLocationAndMap(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	admin := mkAdmin(t, db, "admin")
	f, rep := mkFoundation(t, db, "Ropero")
	geocoder := fakeGeocoder{point: geo.Point{Lat: -33.0, Lng: -71.5}}
	svc := &FoundationService{DB: db, Geocoder: geocoder}
	users := &UserService{DB: db, Geocoder: geocoder}

	m, err := svc.MapData(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultMapCenter, m.Center)
	assert.Empty(t, m.Foundations)

	_, _, err = svc.UpdateLocation(ctx, rep, f.ID, "Viña del Mar")
	assert.ErrorIs(t, err, ErrForbidden)
	_, _, err = svc.UpdateLocation(ctx, admin, 9999, "Viña del Mar")
	assert.ErrorIs(t, err, ErrFoundationNotFound)
	moved, ok, err := svc.UpdateLocation(ctx, admin, f.ID, "Viña del Mar")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Viña del Mar", moved.Address)

	ana := mkUser(t, db, "ana")
	bob := mkUser(t, db, "bob")
	_, _, err = users.UpdateLocation(ctx, ana, "Valparaíso", true)
	require.NoError(t, err)
	_, _, err = users.UpdateLocation(ctx, bob, "Valparaíso", false)
	require.NoError(t, err)

	svc.MapCenter = geo.Point{Lat: -33.04, Lng: -71.6}
	m, err = svc.MapData(ctx)
	require.NoError(t, err)
	assert.Equal(t, geo.Point{Lat: -33.04, Lng: -71.6}, m.Center)
	require.Len(t, m.Foundations, 1)
	assert.Equal(t, MapPoint{ID: f.ID, Kind: "foundation", Name: "Ropero", Lat: -33.0, Lng: -71.5}, m.Foundations[0])
	require.Len(t, m.Users, 1, "only users who opted in")
	assert.Equal(t, ana.UserID, m.Users[0].ID)
}

func TestCampaignLifecycle(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	clock := fixedClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := &CampaignService{DB: db, Now: clock}
	txs := newTxService(db)
	txs.Now = clock
	f, rep := mkFoundation(t, db, "Ropero")
	_, otherRep := mkFoundation(t, db, "Otra")
	admin := mkAdmin(t, db, "admin")
	ana := mkUser(t, db, "ana")

	in := CampaignInput{
		FoundationID:        f.ID,
		Name:                "Invierno solidario",
		StartDate:           time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:             time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC),
		Goal:                3,
		RequestedCategories: []string{"chaqueta", "pantalon", ""},
	}
	_, err := svc.Create(ctx, otherRep, in)
	assert.ErrorIs(t, err, ErrForbidden)

	bad := in
	bad.EndDate = in.StartDate.Add(-time.Hour)
	_, err = svc.Create(ctx, rep, bad)
	assert.ErrorIs(t, err, ErrInvalidInput)
	bad = in
	bad.Goal = 0
	_, err = svc.Create(ctx, rep, bad)
	assert.ErrorIs(t, err, ErrInvalidInput)
	bad = in
	bad.RequestedCategories = []string{"sombrero"}
	_, err = svc.Create(ctx, rep, bad)
	assert.ErrorIs(t, err, ErrInvalidInput)

	c, err := svc.Create(ctx, rep, in)
	require.NoError(t, err)
	assert.Equal(t, "Chaqueta,Pantalón", c.RequestedCategories)

	l := mkListing(t, db, ana, domain.CategoryJacket)
	tx, err := txs.DonateToCampaign(ctx, ana, c.ID, l.ID)
	require.NoError(t, err)
	_, err = txs.MarkShipped(ctx, ana, tx.ID, Shipment{})
	require.NoError(t, err)
	_, err = txs.ConfirmReceived(ctx, rep, tx.ID)
	require.NoError(t, err)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Progress)
	assert.Equal(t, 33.3, got.Percent)
	assert.True(t, got.Open)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	off := false
	upd := in
	upd.Active = &off
	_, err = svc.Update(ctx, otherRep, c.ID, upd)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Update(ctx, admin, c.ID, upd)
	require.NoError(t, err)
	active, err = svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, svc.Delete(ctx, rep, c.ID))
	_, err = svc.Get(ctx, c.ID)
	assert.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, percent(5, 0))
	assert.Equal(t, 50.0, percent(1, 2))
	assert.Equal(t, 66.7, percent(2, 3))
	assert.Equal(t, 100.0, percent(12, 10))
}
