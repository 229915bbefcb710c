package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amityvox/notifyhub/internal/models"
)

// CreateFcmToken registers a new push device token.
func (s *Store) CreateFcmToken(ctx context.Context, t *models.FcmToken) error {
	errs, err := json.Marshal(t.Errors)
	if err != nil {
		return fmt.Errorf("marshaling token errors: %w", err)
	}

	_, err = s.Pool.Exec(ctx, `
		INSERT INTO fcm_tokens (
			id, user_id, token, platform, browser, os, device_model, app_version,
			user_agent, perm_email, perm_in_app, perm_push, is_active, is_stale,
			last_activity_at, refresh_count, errors, expires_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (token) DO UPDATE SET
			user_id = EXCLUDED.user_id, is_active = true, is_stale = false, last_activity_at = EXCLUDED.last_activity_at,
			refresh_count = fcm_tokens.refresh_count + 1, expires_at = EXCLUDED.expires_at`,
		t.ID.String(), t.UserID, t.Token, t.DeviceInfo.Platform, t.DeviceInfo.Browser,
		t.DeviceInfo.OS, t.DeviceInfo.DeviceModel, t.DeviceInfo.AppVersion, t.DeviceInfo.UserAgent,
		t.Permissions.Email, t.Permissions.InApp, t.Permissions.Push, t.IsActive, t.IsStale,
		t.LastActivityAt, t.RefreshCount, errs, t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("registering fcm token: %w", err)
	}
	return nil
}

// GetFcmToken fetches one token by ID.
func (s *Store) GetFcmToken(ctx context.Context, id string) (*models.FcmToken, error) {
	row := s.Pool.QueryRow(ctx, fcmTokenSelectColumns+` FROM fcm_tokens WHERE id = $1`, id)
	return scanFcmToken(row)
}

// ListActiveFcmTokensByUser returns a user's active, non-stale, unexpired
// tokens - the set a push delivery attempt fans out to.
func (s *Store) ListActiveFcmTokensByUser(ctx context.Context, userID string) ([]*models.FcmToken, error) {
	rows, err := s.Pool.Query(ctx, fcmTokenSelectColumns+`
		FROM fcm_tokens
		WHERE user_id = $1 AND is_active AND NOT is_stale AND expires_at > now()
		ORDER BY last_activity_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing active fcm tokens: %w", err)
	}
	defer rows.Close()

	var result []*models.FcmToken
	for rows.Next() {
		t, err := scanFcmToken(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// ListFcmTokensByUser returns all of a user's registered tokens, active or
// not, for the token management endpoints.
func (s *Store) ListFcmTokensByUser(ctx context.Context, userID string) ([]*models.FcmToken, error) {
	rows, err := s.Pool.Query(ctx, fcmTokenSelectColumns+`
		FROM fcm_tokens WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing fcm tokens: %w", err)
	}
	defer rows.Close()

	var result []*models.FcmToken
	for rows.Next() {
		t, err := scanFcmToken(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// TouchFcmToken refreshes a token's last-activity timestamp, used whenever a
// client re-asserts liveness (heartbeat, app foreground).
func (s *Store) TouchFcmToken(ctx context.Context, id string, at time.Time) error {
	_, err := s.Pool.Exec(ctx, `UPDATE fcm_tokens SET last_activity_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touching fcm token: %w", err)
	}
	return nil
}

// MarkFcmTokenStale flags a token as stale without deleting it, per spec
// §4.6's disposition rules for provider errors that indicate the token is no
// longer valid.
func (s *Store) MarkFcmTokenStale(ctx context.Context, id string) error {
	_, err := s.Pool.Exec(ctx, `UPDATE fcm_tokens SET is_stale = true, is_active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("marking fcm token stale: %w", err)
	}
	return nil
}

// RecordFcmTokenError appends a provider error to a token's error history.
func (s *Store) RecordFcmTokenError(ctx context.Context, id string, tokenErr models.TokenError) error {
	existing, err := s.GetFcmToken(ctx, id)
	if err != nil {
		return err
	}
	existing.Errors = append(existing.Errors, tokenErr)

	errs, err := json.Marshal(existing.Errors)
	if err != nil {
		return fmt.Errorf("marshaling token errors: %w", err)
	}

	_, err = s.Pool.Exec(ctx, `UPDATE fcm_tokens SET errors = $2 WHERE id = $1`, id, errs)
	if err != nil {
		return fmt.Errorf("recording fcm token error: %w", err)
	}
	return nil
}

// UpdateFcmTokenStats overwrites a token's delivery counters, called by
// workers after each disposition (sent/delivered/clicked/failed).
func (s *Store) UpdateFcmTokenStats(ctx context.Context, id string, stats models.NotificationStats) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE fcm_tokens SET
			stat_sent = $2, stat_delivered = $3, stat_clicked = $4, stat_failed = $5,
			stat_last_sent_at = $6, stat_last_delivered_at = $7,
			stat_last_clicked_at = $8, stat_last_failed_at = $9
		WHERE id = $1`,
		id, stats.Sent, stats.Delivered, stats.Clicked, stats.Failed,
		stats.LastSentAt, stats.LastDeliveredAt, stats.LastClickedAt, stats.LastFailedAt,
	)
	if err != nil {
		return fmt.Errorf("updating fcm token stats: %w", err)
	}
	return nil
}

// DeleteFcmToken removes a token outright (user-initiated unregister).
func (s *Store) DeleteFcmToken(ctx context.Context, id string) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM fcm_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting fcm token: %w", err)
	}
	return nil
}

// SweepStaleFcmTokens marks tokens inactive past TokenStaleAfter as stale,
// in batches, for the reaper's periodic sweep.
func (s *Store) SweepStaleFcmTokens(ctx context.Context, staleAfter time.Duration, batchSize int) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE fcm_tokens SET is_stale = true, is_active = false
		WHERE id IN (
			SELECT id FROM fcm_tokens
			WHERE NOT is_stale AND last_activity_at < now() - $1::interval
			LIMIT $2
		)`, staleAfter.String(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("sweeping stale fcm tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SweepExpiredFcmTokens deletes tokens past their expiry, in batches.
func (s *Store) SweepExpiredFcmTokens(ctx context.Context, batchSize int) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `
		DELETE FROM fcm_tokens WHERE id IN (
			SELECT id FROM fcm_tokens WHERE expires_at <= now() LIMIT $1
		)`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired fcm tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// TokenStatistics summarizes the fcm_tokens table for the live-view/admin
// statistics endpoint.
type TokenStatistics struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Stale    int64 `json:"stale"`
	Expired  int64 `json:"expired"`
}

// FcmTokenStatistics aggregates token counts by disposition.
func (s *Store) FcmTokenStatistics(ctx context.Context) (TokenStatistics, error) {
	var stats TokenStatistics
	err := s.Pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE is_active AND NOT is_stale AND expires_at > now()),
			count(*) FILTER (WHERE is_stale),
			count(*) FILTER (WHERE expires_at <= now())
		FROM fcm_tokens`).Scan(&stats.Total, &stats.Active, &stats.Stale, &stats.Expired)
	if err != nil {
		return TokenStatistics{}, fmt.Errorf("aggregating fcm token statistics: %w", err)
	}
	return stats, nil
}

const fcmTokenSelectColumns = `
	SELECT id, user_id, token, platform, browser, os, device_model, app_version,
		user_agent, perm_email, perm_in_app, perm_push, is_active, is_stale,
		last_activity_at, refresh_count, stat_sent, stat_delivered, stat_clicked,
		stat_failed, stat_last_sent_at, stat_last_delivered_at, stat_last_clicked_at,
		stat_last_failed_at, errors, expires_at, created_at`

func scanFcmToken(row emailRowScanner) (*models.FcmToken, error) {
	var t models.FcmToken
	var id string
	var errs []byte

	err := row.Scan(
		&id, &t.UserID, &t.Token, &t.DeviceInfo.Platform, &t.DeviceInfo.Browser,
		&t.DeviceInfo.OS, &t.DeviceInfo.DeviceModel, &t.DeviceInfo.AppVersion, &t.DeviceInfo.UserAgent,
		&t.Permissions.Email, &t.Permissions.InApp, &t.Permissions.Push, &t.IsActive, &t.IsStale,
		&t.LastActivityAt, &t.RefreshCount, &t.NotificationStats.Sent, &t.NotificationStats.Delivered,
		&t.NotificationStats.Clicked, &t.NotificationStats.Failed, &t.NotificationStats.LastSentAt,
		&t.NotificationStats.LastDeliveredAt, &t.NotificationStats.LastClickedAt, &t.NotificationStats.LastFailedAt,
		&errs, &t.ExpiresAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning fcm token: %w", err)
	}

	parsed, err := models.ParseULID(id)
	if err != nil {
		return nil, fmt.Errorf("parsing fcm token id: %w", err)
	}
	t.ID = parsed

	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &t.Errors); err != nil {
			return nil, fmt.Errorf("unmarshaling token errors: %w", err)
		}
	}

	return &t, nil
}
