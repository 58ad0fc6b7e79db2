package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	authsvc "github.com/Test-112k/auraluxx/backend/internal/services/auth"
	entsvc "github.com/Test-112k/auraluxx/backend/internal/services/entitlements"
	rewardsvc "github.com/Test-112k/auraluxx/backend/internal/services/reward"
)

type stubRewardEntitlements struct {
	canWatch bool
}

func (s stubRewardEntitlements) Status(_ context.Context, userID int64) (entsvc.Status, error) {
	return entsvc.Status{UserID: userID, CanWatchAds: s.canWatch}, nil
}

func (s stubRewardEntitlements) Grant(_ context.Context, userID int64) (entsvc.Status, error) {
	return entsvc.Status{UserID: userID, AdFree: true, SecondsLeft: 1800, CanWatchAds: true}, nil
}

type stubStartLimiter struct {
	retryAfter int64
	allowed    bool
}

func (l stubStartLimiter) AllowStart(context.Context, int64) (int64, bool, error) {
	return l.retryAfter, l.allowed, nil
}

func newRewardRouter(t *testing.T, ents rewardsvc.Entitlements, limiter rewardsvc.AttemptLimiter) (*chi.Mux, *rewardsvc.Service) {
	t.Helper()

	svc := rewardsvc.NewService(ents, limiter, nil, rewardsvc.Config{
		MinDwell:     10 * time.Second,
		WatchTimeout: 60 * time.Second,
		AdURL:        "https://ads.example.com/watch",
	}, nil)
	t.Cleanup(svc.Close)

	h := NewRewardHandler(svc)
	r := chi.NewRouter()
	r.Post("/reward/start", h.Start)
	r.Get("/reward/{id}", h.Get)
	r.Post("/reward/{id}/closed", h.Closed)
	r.Post("/reward/{id}/blocked", h.Blocked)
	r.Post("/reward/{id}/cancel", h.Cancel)
	return r, svc
}

func performRewardRequest(t *testing.T, router http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	req = req.WithContext(authsvc.WithIdentity(context.Background(), authsvc.Identity{
		UserID: 101,
		SID:    "sid-101",
		Role:   "USER",
	}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRewardStartRefusedAtCap(t *testing.T) {
	router, _ := newRewardRouter(t, stubRewardEntitlements{canWatch: false}, nil)

	rec := performRewardRequest(t, router, http.MethodPost, "/reward/start")
	if rec.Code != http.StatusConflict {
		t.Fatalf("unexpected status at cap: got %d want %d", rec.Code, http.StatusConflict)
	}

	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Code != "AD_FREE_CAP_REACHED" {
		t.Fatalf("unexpected error code: %q", payload.Code)
	}
}

func TestRewardStartThrottled(t *testing.T) {
	router, _ := newRewardRouter(t, stubRewardEntitlements{canWatch: true}, stubStartLimiter{retryAfter: 30})

	rec := performRewardRequest(t, router, http.MethodPost, "/reward/start")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusTooManyRequests)
	}

	var payload struct {
		Code          string `json:"code"`
		RetryAfterSec int64  `json:"retry_after_sec"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Code != "TOO_MANY_ATTEMPTS" || payload.RetryAfterSec != 30 {
		t.Fatalf("unexpected throttle payload: %+v", payload)
	}
}

func TestRewardStartAndEarlyCloseRejects(t *testing.T) {
	router, _ := newRewardRouter(t, stubRewardEntitlements{canWatch: true}, stubStartLimiter{allowed: true})

	rec := performRewardRequest(t, router, http.MethodPost, "/reward/start")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected start status: got %d body %s", rec.Code, rec.Body.String())
	}

	var started struct {
		SessionID   string `json:"session_id"`
		AdURL       string `json:"ad_url"`
		MinDwellSec int64  `json:"min_dwell_sec"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	if started.SessionID == "" || started.AdURL == "" || started.MinDwellSec != 10 {
		t.Fatalf("unexpected start payload: %+v", started)
	}

	rec = performRewardRequest(t, router, http.MethodPost, "/reward/"+started.SessionID+"/closed")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected close status: got %d", rec.Code)
	}

	var session struct {
		State    string `json:"state"`
		Granted  bool   `json:"granted"`
		FailCode string `json:"fail_code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode close response: %v", err)
	}
	if session.State != "REJECTED" || session.Granted || session.FailCode != "INSUFFICIENT_DWELL" {
		t.Fatalf("early close should reject: %+v", session)
	}
}

func TestRewardUnknownSessionNotFound(t *testing.T) {
	router, _ := newRewardRouter(t, stubRewardEntitlements{canWatch: true}, nil)

	rec := performRewardRequest(t, router, http.MethodGet, "/reward/missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusNotFound)
	}
}
