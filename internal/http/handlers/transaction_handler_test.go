package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
	"github.com/tbourn/ecoprenda-backend/internal/http/middleware"
	"github.com/tbourn/ecoprenda-backend/internal/repo"
	"github.com/tbourn/ecoprenda-backend/internal/services"
)

func TestProposePurchase_IdempotentReplay(t *testing.T) {
	s := newStack(t, nil)
	seller := s.user(t, "gabriela")
	buyer := s.user(t, "hugo")
	lid := s.listing(t, seller, "45000")
	path := "/listings/" + itoa(lid) + "/purchase"
	key := map[string]string{middleware.HeaderIdempotencyKey: "buy-1"}

	w := s.do(t, call{method: http.MethodPost, path: path, uid: buyer, headers: key})
	wantStatus(t, w, http.StatusCreated)
	first := decode[domain.Transaction](t, w)
	if first.TypeCode != domain.TxSale || first.Status != domain.TxPending || first.OriginUserID != seller {
		t.Fatalf("unexpected transaction: %+v", first)
	}
	if w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("first call must not be a replay")
	}

	w = s.do(t, call{method: http.MethodPost, path: path, uid: buyer, headers: key})
	wantStatus(t, w, http.StatusCreated)
	if w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected replay header")
	}
	if again := decode[domain.Transaction](t, w); again.ID != first.ID {
		t.Fatalf("replay returned %d, want %d", again.ID, first.ID)
	}

	// a fresh key is a new proposal, which the open one blocks
	w = s.do(t, call{method: http.MethodPost, path: path, uid: buyer, headers: map[string]string{middleware.HeaderIdempotencyKey: "buy-2"}})
	wantError(t, w, http.StatusConflict, ErrCodeConflict)

	w = s.do(t, call{method: http.MethodPost, path: path, uid: seller})
	wantError(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	w = s.do(t, call{method: http.MethodPost, path: path, uid: buyer, headers: map[string]string{middleware.HeaderIdempotencyKey: "bad key!"}})
	wantStatus(t, w, http.StatusBadRequest)
}

func TestSaleLifecycle(t *testing.T) {
	s := newStack(t, nil)
	seller := s.user(t, "ines")
	buyer := s.user(t, "julian")
	outsider := s.user(t, "karen")
	lid := s.listing(t, seller, "30000")

	w := s.do(t, call{method: http.MethodPost, path: "/listings/" + itoa(lid) + "/purchase", uid: buyer})
	wantStatus(t, w, http.StatusCreated)
	tx := decode[domain.Transaction](t, w)
	base := "/transactions/" + itoa(tx.ID)

	w = s.do(t, call{method: http.MethodGet, path: base, uid: outsider})
	wantError(t, w, http.StatusForbidden, ErrCodeForbidden)

	w = s.do(t, call{method: http.MethodPost, path: base + "/accept", uid: buyer})
	wantError(t, w, http.StatusForbidden, ErrCodeForbidden)

	w = s.do(t, call{method: http.MethodPost, path: base + "/accept", uid: seller})
	wantStatus(t, w, http.StatusOK)
	if got := decode[domain.Transaction](t, w); got.Status != domain.TxReserved {
		t.Fatalf("status=%s", got.Status)
	}

	w = s.do(t, call{method: http.MethodPost, path: base + "/confirm", uid: buyer})
	wantError(t, w, http.StatusBadRequest, ErrCodeInvalidTransition)

	w = s.do(t, call{method: http.MethodPost, path: base + "/ship", uid: seller, body: ShipRequest{Courier: "Servientrega", TrackingCode: "SV-1"}})
	wantStatus(t, w, http.StatusOK)
	if got := decode[domain.Transaction](t, w); got.Status != domain.TxInProgress {
		t.Fatalf("status=%s", got.Status)
	}

	w = s.do(t, call{method: http.MethodPost, path: base + "/confirm", uid: buyer})
	wantStatus(t, w, http.StatusOK)
	if got := decode[domain.Transaction](t, w); got.Status != domain.TxCompleted {
		t.Fatalf("status=%s", got.Status)
	}

	l, err := repo.GetListing(context.Background(), s.db, lid)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if l.Status != domain.ListingTransferred {
		t.Fatalf("listing not transferred: status=%s", l.Status)
	}

	w = s.do(t, call{method: http.MethodGet, path: "/transactions/mine", uid: buyer})
	wantStatus(t, w, http.StatusOK)
	if mine := decode[services.MyTransactions](t, w); len(mine.Received) != 1 || len(mine.Sent) != 0 {
		t.Fatalf("buyer transactions: sent=%d received=%d", len(mine.Sent), len(mine.Received))
	}

	// the buyer was notified of each step by message
	w = s.do(t, call{method: http.MethodGet, path: "/messages", uid: buyer})
	wantStatus(t, w, http.StatusOK)
	if convs := decode[[]services.Conversation](t, w); len(convs) != 1 || convs[0].Unread == 0 {
		t.Fatalf("expected an unread conversation with the seller: %+v", convs)
	}
}

func TestDisputeAndResolve(t *testing.T) {
	s := newStack(t, nil)
	seller := s.user(t, "leo")
	buyer := s.user(t, "maria")
	admin := s.admin(t, "root")
	lid := s.listing(t, seller, "10000")

	w := s.do(t, call{method: http.MethodPost, path: "/listings/" + itoa(lid) + "/purchase", uid: buyer})
	wantStatus(t, w, http.StatusCreated)
	base := "/transactions/" + itoa(decode[domain.Transaction](t, w).ID)

	wantStatus(t, s.do(t, call{method: http.MethodPost, path: base + "/accept", uid: seller}), http.StatusOK)
	wantStatus(t, s.do(t, call{method: http.MethodPost, path: base + "/ship", uid: seller}), http.StatusOK)

	w = s.do(t, call{method: http.MethodPost, path: base + "/dispute", uid: buyer, body: DisputeRequest{Reason: "corta"}})
	wantError(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	w = s.do(t, call{method: http.MethodPost, path: base + "/dispute", uid: buyer, body: DisputeRequest{Reason: "La prenda llegó rota"}})
	wantStatus(t, w, http.StatusOK)
	if got := decode[domain.Transaction](t, w); got.Status != domain.TxDisputed {
		t.Fatalf("status=%s", got.Status)
	}

	w = s.do(t, call{method: http.MethodGet, path: "/admin/disputes", uid: seller})
	wantError(t, w, http.StatusForbidden, ErrCodeForbidden)
	w = s.do(t, call{method: http.MethodGet, path: "/admin/disputes", uid: admin})
	wantStatus(t, w, http.StatusOK)
	if ds := decode[[]domain.Transaction](t, w); len(ds) != 1 {
		t.Fatalf("disputes=%d", len(ds))
	}

	w = s.do(t, call{method: http.MethodPost, path: base + "/resolve", uid: admin, body: ResolveRequest{Outcome: "EN_PROCESO"}})
	wantError(t, w, http.StatusBadRequest, ErrCodeInvalidTransition)

	w = s.do(t, call{method: http.MethodPost, path: base + "/resolve", uid: admin, body: ResolveRequest{Outcome: "cancelada", Notes: "se devuelve"}})
	wantStatus(t, w, http.StatusOK)
	if got := decode[domain.Transaction](t, w); got.Status != domain.TxCancelled {
		t.Fatalf("status=%s", got.Status)
	}
	l, err := repo.GetListing(context.Background(), s.db, lid)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if l.Status != domain.ListingAvailable {
		t.Fatalf("listing not released: status=%s", l.Status)
	}
}

func TestDonation_FoundationFlow(t *testing.T) {
	s := newStack(t, nil)
	donor := s.user(t, "nicolas")
	fid, rep := s.foundation(t, "Fundación Abrigo")
	lid := s.listing(t, donor, "")

	w := s.do(t, call{method: http.MethodPost, path: "/listings/" + itoa(lid) + "/donate", uid: donor, body: map[string]any{}})
	wantError(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	w = s.do(t, call{method: http.MethodPost, path: "/listings/" + itoa(lid) + "/donate", uid: donor, body: DonationRequest{FoundationID: fid}})
	wantStatus(t, w, http.StatusCreated)
	tx := decode[domain.Transaction](t, w)
	if tx.TypeCode != domain.TxDonation || tx.FoundationID == nil || *tx.FoundationID != fid {
		t.Fatalf("unexpected donation: %+v", tx)
	}

	fpath := "/foundations/" + itoa(fid) + "/transactions?status=pendiente"
	w = s.do(t, call{method: http.MethodGet, path: fpath, uid: donor})
	wantError(t, w, http.StatusForbidden, ErrCodeForbidden)
	w = s.do(t, call{method: http.MethodGet, path: fpath, uid: rep})
	wantStatus(t, w, http.StatusOK)
	if ts := decode[[]domain.Transaction](t, w); len(ts) != 1 {
		t.Fatalf("foundation donations=%d", len(ts))
	}

	base := "/transactions/" + itoa(tx.ID)
	wantStatus(t, s.do(t, call{method: http.MethodPost, path: base + "/ship", uid: donor}), http.StatusOK)
	w = s.do(t, call{method: http.MethodPost, path: base + "/confirm", uid: rep})
	wantStatus(t, w, http.StatusOK)

	w = s.do(t, call{method: http.MethodGet, path: "/impact/me", uid: donor})
	wantStatus(t, w, http.StatusOK)
	if sum := decode[services.ImpactSummary](t, w); sum.Transactions != 1 || sum.Figures.CarbonKg <= 0 {
		t.Fatalf("donor impact not recorded: %+v", sum)
	}

	w = s.do(t, call{method: http.MethodGet, path: "/achievements/mine", uid: donor})
	wantStatus(t, w, http.StatusOK)
	found := false
	for _, ua := range decode[[]domain.UserAchievement](t, w) {
		if ua.AchievementCode == domain.AchievementDonor {
			found = true
		}
	}
	if !found {
		t.Fatalf("donor badge not granted")
	}
}
