package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authsvc "github.com/Test-112k/auraluxx/backend/internal/services/auth"
	entsvc "github.com/Test-112k/auraluxx/backend/internal/services/entitlements"
)

type stubEntitlementStore struct {
	until map[int64]time.Time
}

func (s *stubEntitlementStore) GetAdFreeUntil(_ context.Context, userID int64) (*time.Time, error) {
	if until, ok := s.until[userID]; ok {
		value := until
		return &value, nil
	}
	return nil, nil
}

func (s *stubEntitlementStore) ExtendAdFree(_ context.Context, userID int64, delta time.Duration, now time.Time) (time.Time, error) {
	base := now
	if until, ok := s.until[userID]; ok && until.After(now) {
		base = until
	}
	next := base.Add(delta)
	s.until[userID] = next
	return next, nil
}

func TestEntitlementHandlerReturnsStatus(t *testing.T) {
	store := &stubEntitlementStore{until: map[int64]time.Time{
		101: time.Now().UTC().Add(25 * time.Minute),
	}}

	svc := entsvc.NewService(store, entsvc.Config{
		GrantDuration: 30 * time.Minute,
		MaxDuration:   3 * time.Hour,
	})

	h := NewEntitlementHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/entitlements", nil)
	req = req.WithContext(authsvc.WithIdentity(context.Background(), authsvc.Identity{
		UserID: 101,
		SID:    "sid-101",
		Role:   "USER",
	}))
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusOK)
	}

	var payload struct {
		AdFree       bool  `json:"ad_free"`
		SecondsLeft  int64 `json:"seconds_left"`
		CanWatchAds  bool  `json:"can_watch_ads"`
		MaxSeconds   int64 `json:"max_seconds"`
		GrantSeconds int64 `json:"grant_seconds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if !payload.AdFree {
		t.Fatalf("expected ad_free, got %+v", payload)
	}
	if payload.SecondsLeft <= 1400 || payload.SecondsLeft > 1500 {
		t.Fatalf("unexpected seconds_left: %d", payload.SecondsLeft)
	}
	if !payload.CanWatchAds {
		t.Fatalf("expected can_watch_ads below the cap")
	}
	if payload.MaxSeconds != 10800 || payload.GrantSeconds != 1800 {
		t.Fatalf("unexpected limits: %+v", payload)
	}
}

func TestEntitlementHandlerRequiresAuth(t *testing.T) {
	h := NewEntitlementHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/entitlements", nil)
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusUnauthorized)
	}
}
