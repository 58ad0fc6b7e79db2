package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Test-112k/auraluxx/backend/internal/domain/model"
	authsvc "github.com/Test-112k/auraluxx/backend/internal/services/auth"
	entsvc "github.com/Test-112k/auraluxx/backend/internal/services/entitlements"
	rewardsvc "github.com/Test-112k/auraluxx/backend/internal/services/reward"
	"github.com/Test-112k/auraluxx/backend/internal/transport/http/dto"
	httperrors "github.com/Test-112k/auraluxx/backend/internal/transport/http/errors"
)

type RewardHandler struct {
	service *rewardsvc.Service
}

func NewRewardHandler(service *rewardsvc.Service) *RewardHandler {
	return &RewardHandler{service: service}
}

// Start opens an ad-watch session. At the cap or under throttle the client
// gets a refusal before any window is opened.
func (h *RewardHandler) Start(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "REWARD_SERVICE_UNAVAILABLE", "reward service is unavailable")
		return
	}

	res, err := h.service.Start(r.Context(), identity.UserID)
	if err != nil {
		handleRewardError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.RewardStartResponse{
		SessionID:      res.Session.ID,
		AdURL:          res.AdURL,
		MinDwellSec:    res.MinDwellSec,
		TimeoutSec:     res.TimeoutSec,
		PollIntervalMS: res.PollIntervalMS,
		ExpiresAt:      res.Session.ExpiresAt,
	})
}

// Closed handles the client's report that the ad window closed or became
// unreadable.
func (h *RewardHandler) Closed(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "REWARD_SERVICE_UNAVAILABLE", "reward service is unavailable")
		return
	}

	view, err := h.service.ReportClosed(r.Context(), identity.UserID, chi.URLParam(r, "id"))
	if err != nil && view.ID == "" {
		handleRewardError(w, err)
		return
	}
	if err != nil {
		// The session latched but the entitlement write failed; the view
		// carries the fail code for the client.
		httperrors.Write(w, http.StatusInternalServerError, mapRewardSession(view))
		return
	}

	httperrors.Write(w, http.StatusOK, mapRewardSession(view))
}

func (h *RewardHandler) Blocked(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "REWARD_SERVICE_UNAVAILABLE", "reward service is unavailable")
		return
	}

	view, err := h.service.ReportBlocked(r.Context(), identity.UserID, chi.URLParam(r, "id"))
	if err != nil {
		handleRewardError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, mapRewardSession(view))
}

func (h *RewardHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "REWARD_SERVICE_UNAVAILABLE", "reward service is unavailable")
		return
	}

	view, err := h.service.Cancel(r.Context(), identity.UserID, chi.URLParam(r, "id"))
	if err != nil {
		handleRewardError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, mapRewardSession(view))
}

// Get is the polling endpoint clients hit while the ad window is open.
func (h *RewardHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "REWARD_SERVICE_UNAVAILABLE", "reward service is unavailable")
		return
	}

	view, err := h.service.Get(identity.UserID, chi.URLParam(r, "id"))
	if err != nil {
		handleRewardError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, mapRewardSession(view))
}

func handleRewardError(w http.ResponseWriter, err error) {
	var rateErr *rewardsvc.RateLimitError
	switch {
	case errors.Is(err, entsvc.ErrCapReached):
		writeConflict(w, "AD_FREE_CAP_REACHED", "maximum ad-free time already accumulated")
	case errors.As(err, &rateErr):
		httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
			Code:          "TOO_MANY_ATTEMPTS",
			Message:       "too many reward attempts, slow down",
			RetryAfterSec: rateErr.RetryAfterSec,
		})
	case errors.Is(err, rewardsvc.ErrSessionNotFound):
		writeNotFound(w, "SESSION_NOT_FOUND", "reward session not found")
	case errors.Is(err, rewardsvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "invalid reward request")
	default:
		writeInternal(w, "INTERNAL_ERROR", "failed to process reward request")
	}
}

func mapRewardSession(view model.RewardSession) dto.RewardSessionResponse {
	return dto.RewardSessionResponse{
		SessionID: view.ID,
		State:     view.State,
		OpenedAt:  view.OpenedAt,
		ClosedAt:  view.ClosedAt,
		DwellSec:  view.DwellSec,
		Granted:   view.Granted,
		FailCode:  view.FailCode,
	}
}
