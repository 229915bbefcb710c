package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/amityvox/notifyhub/internal/api/apiutil"
	"github.com/amityvox/notifyhub/internal/models"
	"github.com/amityvox/notifyhub/internal/orchestrator"
)

var errUnsupportedSimulation = errors.New("unsupported event type for simulation")

// liveViewHandler implements the live-view dashboard routes: a health
// snapshot, recent request traces, per-queue depths, active socket
// connections, and a simulate endpoint for demoing the fan-out without a
// real upstream event.
type liveViewHandler struct {
	s *Server
}

func (h *liveViewHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"instance_id": h.s.InstanceID,
		"version":     h.s.Version,
		"time":        time.Now().UTC(),
	})
}

func (h *liveViewHandler) handleRequests(w http.ResponseWriter, r *http.Request) {
	limit := 50
	stages := h.s.Telemetry.RecentStages(limit)
	WriteJSON(w, http.StatusOK, map[string]any{"stages": stages})
}

func (h *liveViewHandler) handleQueues(w http.ResponseWriter, r *http.Request) {
	depths, err := h.s.Queue.QueueDepths()
	if err != nil {
		apiutil.InternalError(w, h.s.Logger, "reading queue depths", err)
		return
	}
	for name, depth := range depths {
		channel, tier, ok := strings.Cut(name, ":")
		if !ok {
			continue
		}
		h.s.Telemetry.SetQueueDepth(channel, tier, float64(depth))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"queues": depths})
}

func (h *liveViewHandler) handleConnections(w http.ResponseWriter, r *http.Request) {
	count := 0
	if h.s.Sockets != nil {
		count = h.s.Sockets.Hub().ConnectedCount()
	}
	WriteJSON(w, http.StatusOK, map[string]any{"connected": count})
}

type simulateRequest struct {
	EventType string `json:"event_type"`
	UserID    string `json:"user_id"`
}

// handleSimulate dispatches a synthetic event through the orchestrator using
// placeholder business data, for demoing the fan-out pipeline without a real
// upstream write.
func (h *liveViewHandler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if !apiutil.RequireNonEmpty(w, "event_type", req.EventType) ||
		!apiutil.RequireNonEmpty(w, "user_id", req.UserID) {
		return
	}

	eventType := models.EventType(req.EventType)
	if !eventType.Valid() {
		WriteError(w, http.StatusBadRequest, "invalid_body", "unrecognized event_type")
		return
	}

	payload, err := simulatedPayload(eventType, req.UserID)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	dctx := orchestrator.DispatchContext{
		InstanceID:       h.s.InstanceID,
		SourceEntityID:   "simulated-" + req.UserID,
		SourceEntityType: "simulation",
		RequestEndpoint:  r.URL.Path,
		IP:               clientIP(r),
		UserAgent:        r.UserAgent(),
	}

	results, err := h.s.Orchestrator.Dispatch(r.Context(), eventType, payload, dctx)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "dispatch_failed", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"dispatch": results})
}

func simulatedPayload(eventType models.EventType, userID string) (orchestrator.EventPayload, error) {
	switch eventType {
	case models.EventSignup:
		return orchestrator.EventPayload{Signup: &orchestrator.SignupData{
			UserID: userID, Username: "demo-user", Email: "demo@example.com",
		}}, nil
	case models.EventLogin:
		return orchestrator.EventPayload{Login: &orchestrator.LoginData{
			UserID: userID, Email: "demo@example.com", IPAddress: "127.0.0.1",
		}}, nil
	case models.EventPurchase:
		return orchestrator.EventPayload{Purchase: &orchestrator.PurchaseData{
			UserID: userID, OrderID: "demo-order", TotalAmount: 9.99, Currency: "USD",
		}}, nil
	case models.EventFriendRequest:
		return orchestrator.EventPayload{FriendRequest: &orchestrator.FriendRequestData{
			FromUserID: userID, ToUserID: "demo-friend",
		}}, nil
	case models.EventResetPassword:
		return orchestrator.EventPayload{ResetPassword: &orchestrator.ResetPasswordData{
			UserID: userID, Email: "demo@example.com", Token: "demo-token",
		}}, nil
	default:
		return orchestrator.EventPayload{}, errUnsupportedSimulation
	}
}
