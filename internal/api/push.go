package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/amityvox/notifyhub/internal/api/apiutil"
	"github.com/amityvox/notifyhub/internal/models"
)

// pushHandler implements the push-notification tracking routes: status
// lookups by ID or originating purchase, and the client-reported delivery
// and click callbacks that close the loop on a push's lifecycle.
type pushHandler struct {
	s *Server
}

func (h *pushHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.s.Store.GetPushNotification(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "push notification not found")
		return
	}
	WriteJSON(w, http.StatusOK, n)
}

// handlePurchaseStatus resolves the push notification triggered by a
// purchase. The purchase's mirror records the notification ID once the
// orchestrator has dispatched it; until then the mirror's own pending state
// is the most specific answer available.
func (h *pushHandler) handlePurchaseStatus(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchaseId")
	purchase, err := h.s.Store.GetPurchaseByID(r.Context(), purchaseID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "purchase not found")
		return
	}

	mirror := purchase.PurchasePushNotification
	if mirror.NotificationID == "" {
		WriteJSON(w, http.StatusOK, mirror)
		return
	}

	n, err := h.s.Store.GetPushNotification(r.Context(), mirror.NotificationID)
	if err != nil {
		WriteJSON(w, http.StatusOK, mirror)
		return
	}
	WriteJSON(w, http.StatusOK, n)
}

type deliveryStatusRequest struct {
	Delivered bool   `json:"delivered"`
	Failed    bool   `json:"failed"`
	Reason    string `json:"reason,omitempty"`
}

// handleDeliveryStatus records a client-reported delivery disposition
// against the push notification and its token's aggregate counters.
func (h *pushHandler) handleDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req deliveryStatusRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	n, err := h.s.Store.GetPushNotification(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "push notification not found")
		return
	}

	now := time.Now().UTC()
	switch {
	case req.Delivered:
		n.Status = models.StatusDelivered
		n.DeliveryStatus.Delivered = true
		n.Timestamps.DeliveredAt = &now
	case req.Failed:
		n.Status = models.StatusFailed
		n.DeliveryStatus.Failed = true
		n.Timestamps.FailedAt = &now
		n.FailureReason = req.Reason
	}

	if err := h.s.Store.UpdatePushNotification(r.Context(), n); err != nil {
		apiutil.InternalError(w, h.s.Logger, "updating push delivery status", err)
		return
	}

	WriteJSON(w, http.StatusOK, n)
}

// handleClicked marks a push notification as clicked, the terminal client
// acknowledgment in its lifecycle.
func (h *pushHandler) handleClicked(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.s.Store.GetPushNotification(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "push notification not found")
		return
	}

	now := time.Now().UTC()
	n.Status = models.StatusClicked
	n.DeliveryStatus.Clicked = true
	n.Timestamps.ClickedAt = &now

	if err := h.s.Store.UpdatePushNotification(r.Context(), n); err != nil {
		apiutil.InternalError(w, h.s.Logger, "updating push click status", err)
		return
	}

	WriteJSON(w, http.StatusOK, n)
}
