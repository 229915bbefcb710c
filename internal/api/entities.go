package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/amityvox/notifyhub/internal/api/apiutil"
	notifymw "github.com/amityvox/notifyhub/internal/middleware"
	"github.com/amityvox/notifyhub/internal/models"
	"github.com/amityvox/notifyhub/internal/orchestrator"
)

// entityHandler implements the business-entity routes: signups, logins,
// purchases, friend-requests, and reset-passwords. Each POST creates the
// entity, then dispatches its event through the orchestrator so the
// originating write and the notification fan-out share one request.
type entityHandler struct {
	s *Server
}

func (h *entityHandler) dispatchContext(r *http.Request, entityID, entityType string) orchestrator.DispatchContext {
	return orchestrator.DispatchContext{
		InstanceID:       h.s.InstanceID,
		SourceEntityID:   entityID,
		SourceEntityType: entityType,
		RequestEndpoint:  r.URL.Path,
		IP:               clientIP(r),
		UserAgent:        r.UserAgent(),
		TraceID:          notifymw.GetCorrelationID(r.Context()),
	}
}

// --- signups ---

type createSignupRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *entityHandler) handleCreateSignup(w http.ResponseWriter, r *http.Request) {
	var req createSignupRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if !apiutil.RequireNonEmpty(w, "user_id", req.UserID) ||
		!apiutil.RequireNonEmpty(w, "username", req.Username) ||
		!apiutil.RequireNonEmpty(w, "email", req.Email) {
		return
	}

	passwordHash := ""
	if req.Password != "" {
		hash, err := h.s.AuthService.HashPassword(req.Password)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_password", err.Error())
			return
		}
		passwordHash = hash
	}

	now := time.Now().UTC()
	signup := &models.Signup{
		ID:           models.NewULID(),
		UserID:       req.UserID,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		WelcomeEmail: models.MirrorSummary{Status: models.StatusPending},
		CreatedAt:    now,
	}
	if err := h.s.Store.CreateSignup(r.Context(), signup); err != nil {
		apiutil.InternalError(w, h.s.Logger, "creating signup", err)
		return
	}

	dctx := h.dispatchContext(r, signup.ID.String(), "signup")
	results, err := h.s.Orchestrator.Dispatch(r.Context(), models.EventSignup, orchestrator.EventPayload{
		Signup: &orchestrator.SignupData{UserID: req.UserID, Username: req.Username, Email: req.Email},
	}, dctx)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "dispatch_failed", err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{"signup": signup, "dispatch": results})
}

func (h *entityHandler) handleSignupWelcomeEmailStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	signup, err := h.s.Store.GetSignupByID(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "signup not found")
		return
	}
	WriteJSON(w, http.StatusOK, signup.WelcomeEmail)
}

// --- logins ---

type createLoginRequest struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	IPAddress string `json:"ip_address"`
}

func (h *entityHandler) handleCreateLogin(w http.ResponseWriter, r *http.Request) {
	var req createLoginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if !apiutil.RequireNonEmpty(w, "user_id", req.UserID) || !apiutil.RequireNonEmpty(w, "email", req.Email) {
		return
	}

	login := &models.Login{
		ID:                     models.NewULID(),
		UserID:                 req.UserID,
		IPAddress:              req.IPAddress,
		LoginAlertEmail:        models.MirrorSummary{Status: models.StatusPending},
		LoginInAppNotification: models.MirrorSummary{Status: models.StatusPending},
		CreatedAt:              time.Now().UTC(),
	}
	if err := h.s.Store.CreateLogin(r.Context(), login); err != nil {
		apiutil.InternalError(w, h.s.Logger, "creating login", err)
		return
	}

	dctx := h.dispatchContext(r, login.ID.String(), "login")
	results, err := h.s.Orchestrator.Dispatch(r.Context(), models.EventLogin, orchestrator.EventPayload{
		Login: &orchestrator.LoginData{UserID: req.UserID, Email: req.Email, IPAddress: req.IPAddress},
	}, dctx)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "dispatch_failed", err.Error())
		return
	}

	sessionToken, err := h.s.AuthService.CreateSession(r.Context(), req.UserID)
	if err != nil {
		h.s.Logger.Warn("minting session after login", "error", err, "user_id", req.UserID)
	}

	WriteJSON(w, http.StatusCreated, map[string]any{
		"login":         login,
		"dispatch":      results,
		"session_token": sessionToken,
	})
}

func (h *entityHandler) handleLoginAlertEmailStatus(w http.ResponseWriter, r *http.Request) {
	login, ok := h.getLogin(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, login.LoginAlertEmail)
}

func (h *entityHandler) handleLoginInAppStatus(w http.ResponseWriter, r *http.Request) {
	login, ok := h.getLogin(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, login.LoginInAppNotification)
}

func (h *entityHandler) getLogin(w http.ResponseWriter, r *http.Request) (*models.Login, bool) {
	id := chi.URLParam(r, "id")
	login, err := h.s.Store.GetLoginByID(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "login not found")
		return nil, false
	}
	return login, true
}

// --- purchases ---

type createPurchaseRequest struct {
	UserID      string                 `json:"user_id"`
	OrderID     string                 `json:"order_id"`
	TotalAmount float64                `json:"total_amount"`
	Currency    string                 `json:"currency"`
	Items       []models.PurchaseItem `json:"items"`
}

func (h *entityHandler) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req createPurchaseRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if !apiutil.RequireNonEmpty(w, "user_id", req.UserID) || !apiutil.RequireNonEmpty(w, "order_id", req.OrderID) {
		return
	}

	purchase := &models.Purchase{
		ID:                       models.NewULID(),
		UserID:                   req.UserID,
		OrderID:                  req.OrderID,
		TotalAmount:              req.TotalAmount,
		Currency:                 req.Currency,
		Items:                    req.Items,
		PurchasePushNotification: models.MirrorSummary{Status: models.StatusPending},
		CreatedAt:                time.Now().UTC(),
	}
	if err := h.s.Store.CreatePurchase(r.Context(), purchase); err != nil {
		apiutil.InternalError(w, h.s.Logger, "creating purchase", err)
		return
	}

	dctx := h.dispatchContext(r, purchase.ID.String(), "purchase")
	results, err := h.s.Orchestrator.Dispatch(r.Context(), models.EventPurchase, orchestrator.EventPayload{
		Purchase: &orchestrator.PurchaseData{
			UserID: req.UserID, OrderID: req.OrderID, TotalAmount: req.TotalAmount,
			Currency: req.Currency, Items: req.Items,
		},
	}, dctx)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "dispatch_failed", err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{"purchase": purchase, "dispatch": results})
}

func (h *entityHandler) handlePurchasePushStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	purchase, err := h.s.Store.GetPurchaseByID(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "purchase not found")
		return
	}
	WriteJSON(w, http.StatusOK, purchase.PurchasePushNotification)
}

// --- friend requests ---

type createFriendRequestRequest struct {
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
}

func (h *entityHandler) handleCreateFriendRequest(w http.ResponseWriter, r *http.Request) {
	var req createFriendRequestRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if !apiutil.RequireNonEmpty(w, "from_user_id", req.FromUserID) || !apiutil.RequireNonEmpty(w, "to_user_id", req.ToUserID) {
		return
	}

	fr := &models.FriendRequest{
		ID:                             models.NewULID(),
		FromUserID:                     req.FromUserID,
		ToUserID:                       req.ToUserID,
		FriendRequestInAppNotification: models.MirrorSummary{Status: models.StatusPending},
		CreatedAt:                      time.Now().UTC(),
	}
	if err := h.s.Store.CreateFriendRequest(r.Context(), fr); err != nil {
		apiutil.InternalError(w, h.s.Logger, "creating friend request", err)
		return
	}

	dctx := h.dispatchContext(r, fr.ID.String(), "friend_request")
	results, err := h.s.Orchestrator.Dispatch(r.Context(), models.EventFriendRequest, orchestrator.EventPayload{
		FriendRequest: &orchestrator.FriendRequestData{FromUserID: req.FromUserID, ToUserID: req.ToUserID},
	}, dctx)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "dispatch_failed", err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{"friend_request": fr, "dispatch": results})
}

func (h *entityHandler) handleFriendRequestInAppStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fr, err := h.s.Store.GetFriendRequestByID(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "friend request not found")
		return
	}
	WriteJSON(w, http.StatusOK, fr.FriendRequestInAppNotification)
}

// --- reset passwords ---

type createResetPasswordRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

func (h *entityHandler) handleCreateResetPassword(w http.ResponseWriter, r *http.Request) {
	var req createResetPasswordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if !apiutil.RequireNonEmpty(w, "user_id", req.UserID) ||
		!apiutil.RequireNonEmpty(w, "email", req.Email) ||
		!apiutil.RequireNonEmpty(w, "token", req.Token) {
		return
	}

	rp := &models.ResetPassword{
		ID:         models.NewULID(),
		UserID:     req.UserID,
		Token:      req.Token,
		ResetEmail: models.MirrorSummary{Status: models.StatusPending},
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.s.Store.CreateResetPassword(r.Context(), rp); err != nil {
		apiutil.InternalError(w, h.s.Logger, "creating reset password", err)
		return
	}

	dctx := h.dispatchContext(r, rp.ID.String(), "reset_password")
	results, err := h.s.Orchestrator.Dispatch(r.Context(), models.EventResetPassword, orchestrator.EventPayload{
		ResetPassword: &orchestrator.ResetPasswordData{UserID: req.UserID, Email: req.Email, Token: req.Token},
	}, dctx)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "dispatch_failed", err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{"reset_password": rp, "dispatch": results})
}

func (h *entityHandler) handleResetPasswordEmailStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rp, err := h.s.Store.GetResetPasswordByID(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "not_found", "reset password not found")
		return
	}
	WriteJSON(w, http.StatusOK, rp.ResetEmail)
}
