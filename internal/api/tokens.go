package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/amityvox/notifyhub/internal/api/apiutil"
	"github.com/amityvox/notifyhub/internal/models"
	"github.com/amityvox/notifyhub/internal/tokens"
)

// tokenHandler implements the FCM device-token registry routes (spec §4.6):
// registration, refresh, removal, per-user listing, aggregate statistics,
// and the on-demand stale/expired sweeps the reaper otherwise runs
// periodically.
type tokenHandler struct {
	s *Server
}

type registerTokenRequest struct {
	UserID      string                  `json:"user_id"`
	Token       string                  `json:"token"`
	DeviceInfo  models.DeviceInfo       `json:"device_info"`
	Permissions models.TokenPermissions `json:"permissions"`
}

func (h *tokenHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerTokenRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if !apiutil.RequireNonEmpty(w, "user_id", req.UserID) || !apiutil.RequireNonEmpty(w, "token", req.Token) {
		return
	}

	t, err := h.s.Tokens.Register(r.Context(), tokens.RegisterInput{
		UserID:      req.UserID,
		Token:       req.Token,
		DeviceInfo:  req.DeviceInfo,
		Permissions: req.Permissions,
	})
	if err != nil {
		if errors.Is(err, tokens.ErrInvalidToken) {
			WriteError(w, http.StatusBadRequest, "invalid_token", err.Error())
			return
		}
		apiutil.InternalError(w, h.s.Logger, "registering fcm token", err)
		return
	}

	WriteJSON(w, http.StatusCreated, t)
}

type refreshTokenRequest struct {
	TokenID string `json:"token_id"`
}

func (h *tokenHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if !apiutil.RequireNonEmpty(w, "token_id", req.TokenID) {
		return
	}
	if err := h.s.Tokens.Refresh(r.Context(), req.TokenID); err != nil {
		apiutil.InternalError(w, h.s.Logger, "refreshing fcm token", err)
		return
	}
	WriteNoContent(w)
}

func (h *tokenHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "token")
	if err := h.s.Tokens.Remove(r.Context(), tokenID); err != nil {
		apiutil.InternalError(w, h.s.Logger, "removing fcm token", err)
		return
	}
	WriteNoContent(w)
}

func (h *tokenHandler) handleListByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	list, err := h.s.Store.ListFcmTokensByUser(r.Context(), userID)
	if err != nil {
		apiutil.InternalError(w, h.s.Logger, "listing fcm tokens", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"tokens": list})
}

func (h *tokenHandler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.s.Store.FcmTokenStatistics(r.Context())
	if err != nil {
		apiutil.InternalError(w, h.s.Logger, "aggregating fcm token statistics", err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// handleMarkStale triggers an immediate stale-token sweep, the same
// operation the reaper otherwise runs on its configured interval.
func (h *tokenHandler) handleMarkStale(w http.ResponseWriter, r *http.Request) {
	batchSize := h.s.Config.Reaper.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	count, err := h.s.Tokens.SweepStale(r.Context(), models.TokenStaleAfter, batchSize)
	if err != nil {
		apiutil.InternalError(w, h.s.Logger, "sweeping stale fcm tokens", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"marked_stale": count})
}

// handleCleanup triggers an immediate expired-token purge.
func (h *tokenHandler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	batchSize := h.s.Config.Reaper.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	count, err := h.s.Tokens.SweepExpired(r.Context(), batchSize)
	if err != nil {
		apiutil.InternalError(w, h.s.Logger, "sweeping expired fcm tokens", err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"deleted": count})
}
