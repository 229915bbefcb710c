package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/amityvox/notifyhub/internal/models"
)

// CreateInAppNotification inserts a new in-app tracking record.
func (s *Store) CreateInAppNotification(ctx context.Context, n *models.InAppNotification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshaling data: %w", err)
	}
	deliveryHistory, err := json.Marshal(n.DeliveryHistory)
	if err != nil {
		return fmt.Errorf("marshaling delivery history: %w", err)
	}
	escalationHistory, err := json.Marshal(n.EscalationHistory)
	if err != nil {
		return fmt.Errorf("marshaling escalation history: %w", err)
	}

	_, err = s.Pool.Exec(ctx, `
		INSERT INTO in_app_notifications (
			id, event_type, recipient_user_id, title, message, data, priority,
			status, is_read, socket_id, current_queue, attempts, max_attempts, mirror_key,
			expires_at, delivery_history, escalation_history, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		n.ID.String(), n.EventType, n.RecipientUserID, n.Title, n.Message, data, n.Priority,
		n.Status, n.IsRead, n.SocketID, n.CurrentQueue, n.Attempts, n.MaxAttempts, n.MirrorKey,
		n.ExpiresAt, deliveryHistory, escalationHistory, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting in-app notification: %w", err)
	}
	return nil
}

// GetInAppNotification fetches one in-app tracking record by ID.
func (s *Store) GetInAppNotification(ctx context.Context, id string) (*models.InAppNotification, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, event_type, recipient_user_id, title, message, data, priority,
			status, is_read, socket_id, current_queue, attempts, max_attempts, mirror_key,
			expires_at, delivery_history, escalation_history, created_at
		FROM in_app_notifications WHERE id = $1`, id)

	return scanInAppNotification(row)
}

// UpdateInAppNotification persists the full mutable state of an in-app
// tracking record.
func (s *Store) UpdateInAppNotification(ctx context.Context, n *models.InAppNotification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshaling data: %w", err)
	}
	deliveryHistory, err := json.Marshal(n.DeliveryHistory)
	if err != nil {
		return fmt.Errorf("marshaling delivery history: %w", err)
	}
	escalationHistory, err := json.Marshal(n.EscalationHistory)
	if err != nil {
		return fmt.Errorf("marshaling escalation history: %w", err)
	}

	_, err = s.Pool.Exec(ctx, `
		UPDATE in_app_notifications SET
			status = $2, is_read = $3, socket_id = $4, current_queue = $5,
			attempts = $6, max_attempts = $7, data = $8,
			delivery_history = $9, escalation_history = $10
		WHERE id = $1`,
		n.ID.String(), n.Status, n.IsRead, n.SocketID, n.CurrentQueue,
		n.Attempts, n.MaxAttempts, data, deliveryHistory, escalationHistory,
	)
	if err != nil {
		return fmt.Errorf("updating in-app notification: %w", err)
	}
	return nil
}

// ListUndeliveredInAppNotifications returns a recipient's
// pending/processing/queued in-app notifications that have not yet expired, for the on-connect flush
// (spec §4.5).
func (s *Store) ListUndeliveredInAppNotifications(ctx context.Context, userID string, limit int) ([]*models.InAppNotification, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, event_type, recipient_user_id, title, message, data, priority,
			status, is_read, socket_id, current_queue, attempts, max_attempts, mirror_key,
			expires_at, delivery_history, escalation_history, created_at
		FROM in_app_notifications
		WHERE recipient_user_id = $1
			AND status IN ('pending', 'processing', 'queued')
			AND expires_at > now()
		ORDER BY created_at ASC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing undelivered in-app notifications: %w", err)
	}
	defer rows.Close()

	var result []*models.InAppNotification
	for rows.Next() {
		n, err := scanInAppNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// ListInAppNotificationsByRecipient returns a recipient's in-app
// notifications newest first.
func (s *Store) ListInAppNotificationsByRecipient(ctx context.Context, userID string, limit, offset int) ([]*models.InAppNotification, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, event_type, recipient_user_id, title, message, data, priority,
			status, is_read, socket_id, current_queue, attempts, max_attempts, mirror_key,
			expires_at, delivery_history, escalation_history, created_at
		FROM in_app_notifications
		WHERE recipient_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing in-app notifications: %w", err)
	}
	defer rows.Close()

	var result []*models.InAppNotification
	for rows.Next() {
		n, err := scanInAppNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// ExpireStaleInAppNotifications marks as expired any in-app notification
// still pending/processing/queued past its expiry, in batches, for the
// reaper's periodic sweep.
func (s *Store) ExpireStaleInAppNotifications(ctx context.Context, batchSize int) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE in_app_notifications SET status = 'expired'
		WHERE id IN (
			SELECT id FROM in_app_notifications
			WHERE status IN ('pending', 'processing', 'queued')
				AND expires_at <= now()
			LIMIT $1
		)`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("expiring stale in-app notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanInAppNotification(row emailRowScanner) (*models.InAppNotification, error) {
	var n models.InAppNotification
	var id string
	var data, deliveryHistory, escalationHistory []byte

	err := row.Scan(
		&id, &n.EventType, &n.RecipientUserID, &n.Title, &n.Message, &data, &n.Priority,
		&n.Status, &n.IsRead, &n.SocketID, &n.CurrentQueue, &n.Attempts, &n.MaxAttempts, &n.MirrorKey,
		&n.ExpiresAt, &deliveryHistory, &escalationHistory, &n.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning in-app notification: %w", err)
	}

	parsed, err := models.ParseULID(id)
	if err != nil {
		return nil, fmt.Errorf("parsing in-app notification id: %w", err)
	}
	n.ID = parsed

	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("unmarshaling data: %w", err)
		}
	}
	if err := json.Unmarshal(deliveryHistory, &n.DeliveryHistory); err != nil {
		return nil, fmt.Errorf("unmarshaling delivery history: %w", err)
	}
	if err := json.Unmarshal(escalationHistory, &n.EscalationHistory); err != nil {
		return nil, fmt.Errorf("unmarshaling escalation history: %w", err)
	}

	return &n, nil
}
