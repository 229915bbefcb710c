// Package tokens implements the Token Registry (spec §4.6): registration,
// refresh, removal, and resolution of FCM device tokens, plus the provider
// error disposition rules that feed the push worker and the reaper's sweeps.
package tokens

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amityvox/notifyhub/internal/models"
)

// minTokenLength is the lower bound on a token's printable length. FCM
// registration tokens run well over a hundred characters; anything shorter
// is rejected at registration rather than stored and failed later at
// delivery time.
const minTokenLength = 100

// Repository is the slice of internal/store's fcm_token methods the
// registry needs, defined consumer-side for testability.
type Repository interface {
	CreateFcmToken(ctx context.Context, t *models.FcmToken) error
	GetFcmToken(ctx context.Context, id string) (*models.FcmToken, error)
	ListActiveFcmTokensByUser(ctx context.Context, userID string) ([]*models.FcmToken, error)
	ListFcmTokensByUser(ctx context.Context, userID string) ([]*models.FcmToken, error)
	TouchFcmToken(ctx context.Context, id string, at time.Time) error
	MarkFcmTokenStale(ctx context.Context, id string) error
	RecordFcmTokenError(ctx context.Context, id string, tokenErr models.TokenError) error
	UpdateFcmTokenStats(ctx context.Context, id string, stats models.NotificationStats) error
	DeleteFcmToken(ctx context.Context, id string) error
	SweepStaleFcmTokens(ctx context.Context, staleAfter time.Duration, batchSize int) (int64, error)
	SweepExpiredFcmTokens(ctx context.Context, batchSize int) (int64, error)
}

// Registry wraps the token Repository with the registration/validation
// rules and the FCM provider-error disposition table.
type Registry struct {
	repo   Repository
	logger *slog.Logger
}

// New builds a Registry over the given repository.
func New(repo Repository, logger *slog.Logger) *Registry {
	return &Registry{repo: repo, logger: logger}
}

// ErrInvalidToken is returned by Register when the token string fails the
// format check.
var ErrInvalidToken = fmt.Errorf("tokens: invalid token format")

// isPrintableASCII reports whether s is entirely printable ASCII, the
// conservative shape check applied before a token is trusted to the
// provider - FCM tokens are base64url-ish but we don't enforce the exact
// alphabet, only that nothing obviously malformed was submitted.
func isPrintableASCII(s string) bool {
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			return false
		}
	}
	return true
}

// RegisterInput is the caller-supplied data for a new or refreshed token.
type RegisterInput struct {
	UserID      string
	Token       string
	DeviceInfo  models.DeviceInfo
	Permissions models.TokenPermissions
	ExpiresAt   time.Time
}

// Register validates and upserts a device token. If the token string is
// already registered under a different user (the device was re-assigned to
// a new account, e.g. after logout/login on a shared device), the existing
// row is reassigned to the new user rather than left pointing at the old
// one - store.CreateFcmToken's ON CONFLICT (token) upsert handles this by
// overwriting user_id unconditionally.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (*models.FcmToken, error) {
	if len(in.Token) < minTokenLength || !isPrintableASCII(in.Token) {
		return nil, ErrInvalidToken
	}
	if in.UserID == "" {
		return nil, fmt.Errorf("tokens: user id is required")
	}

	expiresAt := in.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Now().UTC().Add(models.TokenStaleAfter)
	}

	t := &models.FcmToken{
		ID:             models.NewULID(),
		UserID:         in.UserID,
		Token:          in.Token,
		DeviceInfo:     in.DeviceInfo,
		Permissions:    in.Permissions,
		IsActive:       true,
		IsStale:        false,
		LastActivityAt: time.Now().UTC(),
		ExpiresAt:      expiresAt,
		CreatedAt:      time.Now().UTC(),
	}

	if err := r.repo.CreateFcmToken(ctx, t); err != nil {
		return nil, fmt.Errorf("registering token: %w", err)
	}
	return t, nil
}

// Refresh extends a token's last-activity timestamp, used whenever a client
// re-asserts liveness (heartbeat, app foreground, successful delivery).
func (r *Registry) Refresh(ctx context.Context, tokenID string) error {
	return r.repo.TouchFcmToken(ctx, tokenID, time.Now().UTC())
}

// Remove deletes a token outright (user-initiated unregister, e.g. logout).
func (r *Registry) Remove(ctx context.Context, tokenID string) error {
	return r.repo.DeleteFcmToken(ctx, tokenID)
}

// ResolveActive returns the user's currently deliverable tokens - active,
// non-stale, unexpired - the fan-out set a push delivery attempt targets.
func (r *Registry) ResolveActive(ctx context.Context, userID string) ([]*models.FcmToken, error) {
	return r.repo.ListActiveFcmTokensByUser(ctx, userID)
}

// ProviderErrorDisposition is the worker's verdict on what to do with a
// token after FCM rejected a send to it.
type ProviderErrorDisposition string

const (
	// DispositionRetryable means the error is transient for this token and
	// the token should be left alone; failure of the overall send is
	// handled by the channel's normal tier-retry mechanics.
	DispositionRetryable ProviderErrorDisposition = "retryable"

	// DispositionStale means FCM reported the token is no longer valid
	// (unregistered, or its registration expired) and it should be marked
	// stale so future sends skip it.
	DispositionStale ProviderErrorDisposition = "stale"
)

// staleFCMErrorCodes is the set of FCM error codes that indicate a token is
// permanently unusable, per Firebase's messaging error reference.
var staleFCMErrorCodes = map[string]bool{
	"UNREGISTERED":        true,
	"NOT_FOUND":           true,
	"INVALID_ARGUMENT":    true,
	"SENDER_ID_MISMATCH":  true,
}

// ClassifyProviderError maps an FCM error code to a disposition.
func ClassifyProviderError(code string) ProviderErrorDisposition {
	if staleFCMErrorCodes[code] {
		return DispositionStale
	}
	return DispositionRetryable
}

// HandleProviderError records the error against the token and, when the
// disposition is DispositionStale, marks the token stale so it drops out of
// ResolveActive's result set for subsequent attempts.
func (r *Registry) HandleProviderError(ctx context.Context, tokenID, code, message string) error {
	if err := r.repo.RecordFcmTokenError(ctx, tokenID, models.TokenError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("recording token error: %w", err)
	}

	if ClassifyProviderError(code) == DispositionStale {
		if err := r.repo.MarkFcmTokenStale(ctx, tokenID); err != nil {
			return fmt.Errorf("marking token stale: %w", err)
		}
		r.logger.Info("fcm token marked stale", slog.String("token_id", tokenID), slog.String("code", code))
	}
	return nil
}

// RecordDelivery updates a token's per-disposition counters after a push
// attempt.
func (r *Registry) RecordDelivery(ctx context.Context, tokenID string, sent, delivered, clicked, failed bool) error {
	now := time.Now().UTC()
	t, err := r.repo.GetFcmToken(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("loading token for stats update: %w", err)
	}
	stats := t.NotificationStats
	if sent {
		stats.Sent++
		stats.LastSentAt = &now
	}
	if delivered {
		stats.Delivered++
		stats.LastDeliveredAt = &now
	}
	if clicked {
		stats.Clicked++
		stats.LastClickedAt = &now
	}
	if failed {
		stats.Failed++
		stats.LastFailedAt = &now
	}
	return r.repo.UpdateFcmTokenStats(ctx, tokenID, stats)
}

// SweepStale marks inactive tokens stale in batches, called periodically by
// the reaper.
func (r *Registry) SweepStale(ctx context.Context, staleAfter time.Duration, batchSize int) (int64, error) {
	return r.repo.SweepStaleFcmTokens(ctx, staleAfter, batchSize)
}

// SweepExpired deletes tokens past their expiry in batches, called
// periodically by the reaper.
func (r *Registry) SweepExpired(ctx context.Context, batchSize int) (int64, error) {
	return r.repo.SweepExpiredFcmTokens(ctx, batchSize)
}
