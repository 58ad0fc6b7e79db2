package handlers

import (
	"net/http"

	authsvc "github.com/Test-112k/auraluxx/backend/internal/services/auth"
	entsvc "github.com/Test-112k/auraluxx/backend/internal/services/entitlements"
	"github.com/Test-112k/auraluxx/backend/internal/transport/http/dto"
	httperrors "github.com/Test-112k/auraluxx/backend/internal/transport/http/errors"
)

type EntitlementHandler struct {
	service *entsvc.Service
}

func NewEntitlementHandler(service *entsvc.Service) *EntitlementHandler {
	return &EntitlementHandler{service: service}
}

// Get reports the caller's current ad-free status. The response carries the
// authoritative seconds so clients can resynchronize their local countdowns.
func (h *EntitlementHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "ENTITLEMENT_SERVICE_UNAVAILABLE", "entitlement service is unavailable")
		return
	}

	status, err := h.service.Status(r.Context(), identity.UserID)
	if err != nil {
		writeInternal(w, "INTERNAL_ERROR", "failed to load entitlement status")
		return
	}

	httperrors.Write(w, http.StatusOK, mapEntitlementStatus(h.service, status))
}

func mapEntitlementStatus(service *entsvc.Service, status entsvc.Status) dto.EntitlementResponse {
	return dto.EntitlementResponse{
		AdFree:       status.AdFree,
		AdFreeUntil:  status.AdFreeUntil,
		SecondsLeft:  status.SecondsLeft,
		CanWatchAds:  status.CanWatchAds,
		MaxSeconds:   service.MaxSeconds(),
		GrantSeconds: service.GrantSeconds(),
	}
}
