package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/amityvox/notifyhub/internal/models"
)

// CreatePushNotification inserts a new push tracking record.
func (s *Store) CreatePushNotification(ctx context.Context, n *models.PushNotification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshaling data: %w", err)
	}
	results, err := json.Marshal(n.ProviderResponse.Results)
	if err != nil {
		return fmt.Errorf("marshaling provider results: %w", err)
	}
	escalationHistory, err := json.Marshal(n.EscalationHistory)
	if err != nil {
		return fmt.Errorf("marshaling escalation history: %w", err)
	}

	_, err = s.Pool.Exec(ctx, `
		INSERT INTO push_notifications (
			id, event_type, recipient_user_id, title, body, data, image_url,
			click_action, priority, status, delivery_sent, delivery_delivered,
			delivery_clicked, delivery_failed, attempts, max_attempts, current_queue,
			provider_success_count, provider_failure_count, provider_results,
			source_type, source_reference_id, source_reference_model, source_trigger_details,
			expires_at, escalation_history, failure_reason, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)`,
		n.ID.String(), n.EventType, n.RecipientUserID, n.Title, n.Body, data, n.ImageURL,
		n.ClickAction, n.Priority, n.Status, n.DeliveryStatus.Sent, n.DeliveryStatus.Delivered,
		n.DeliveryStatus.Clicked, n.DeliveryStatus.Failed, n.Attempts, n.MaxAttempts, n.CurrentQueue,
		n.ProviderResponse.SuccessCount, n.ProviderResponse.FailureCount, results,
		n.Source.Type, n.Source.ReferenceID, n.Source.ReferenceModel, n.Source.TriggerDetails,
		n.ExpiresAt, escalationHistory, n.FailureReason, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting push notification: %w", err)
	}
	return nil
}

// GetPushNotification fetches one push tracking record by ID.
func (s *Store) GetPushNotification(ctx context.Context, id string) (*models.PushNotification, error) {
	row := s.Pool.QueryRow(ctx, pushSelectColumns+` FROM push_notifications WHERE id = $1`, id)
	return scanPushNotification(row)
}

// ListPushNotificationsByRecipient returns a recipient's push notifications
// newest first.
func (s *Store) ListPushNotificationsByRecipient(ctx context.Context, userID string, limit, offset int) ([]*models.PushNotification, error) {
	rows, err := s.Pool.Query(ctx, pushSelectColumns+`
		FROM push_notifications
		WHERE recipient_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing push notifications: %w", err)
	}
	defer rows.Close()

	var result []*models.PushNotification
	for rows.Next() {
		n, err := scanPushNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// UpdatePushNotification persists the full mutable state of a push tracking
// record after a worker attempt or a client-reported disposition (delivered,
// clicked).
func (s *Store) UpdatePushNotification(ctx context.Context, n *models.PushNotification) error {
	results, err := json.Marshal(n.ProviderResponse.Results)
	if err != nil {
		return fmt.Errorf("marshaling provider results: %w", err)
	}
	escalationHistory, err := json.Marshal(n.EscalationHistory)
	if err != nil {
		return fmt.Errorf("marshaling escalation history: %w", err)
	}

	_, err = s.Pool.Exec(ctx, `
		UPDATE push_notifications SET
			status = $2, delivery_sent = $3, delivery_delivered = $4,
			delivery_clicked = $5, delivery_failed = $6, attempts = $7,
			max_attempts = $8, current_queue = $9, provider_success_count = $10,
			provider_failure_count = $11, provider_results = $12,
			sent_at = $13, delivered_at = $14, clicked_at = $15, failed_at = $16,
			last_attempt_at = $17, escalation_history = $18, failure_reason = $19
		WHERE id = $1`,
		n.ID.String(), n.Status, n.DeliveryStatus.Sent, n.DeliveryStatus.Delivered,
		n.DeliveryStatus.Clicked, n.DeliveryStatus.Failed, n.Attempts,
		n.MaxAttempts, n.CurrentQueue, n.ProviderResponse.SuccessCount,
		n.ProviderResponse.FailureCount, results,
		n.Timestamps.SentAt, n.Timestamps.DeliveredAt, n.Timestamps.ClickedAt, n.Timestamps.FailedAt,
		n.Timestamps.LastAttemptAt, escalationHistory, n.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("updating push notification: %w", err)
	}
	return nil
}

const pushSelectColumns = `
	SELECT id, event_type, recipient_user_id, title, body, data, image_url,
		click_action, priority, status, delivery_sent, delivery_delivered,
		delivery_clicked, delivery_failed, attempts, max_attempts, current_queue,
		provider_success_count, provider_failure_count, provider_results,
		source_type, source_reference_id, source_reference_model, source_trigger_details,
		expires_at, sent_at, delivered_at, clicked_at, failed_at, last_attempt_at,
		escalation_history, failure_reason, created_at`

func scanPushNotification(row emailRowScanner) (*models.PushNotification, error) {
	var n models.PushNotification
	var id string
	var data, results, escalationHistory []byte

	err := row.Scan(
		&id, &n.EventType, &n.RecipientUserID, &n.Title, &n.Body, &data, &n.ImageURL,
		&n.ClickAction, &n.Priority, &n.Status, &n.DeliveryStatus.Sent, &n.DeliveryStatus.Delivered,
		&n.DeliveryStatus.Clicked, &n.DeliveryStatus.Failed, &n.Attempts, &n.MaxAttempts, &n.CurrentQueue,
		&n.ProviderResponse.SuccessCount, &n.ProviderResponse.FailureCount, &results,
		&n.Source.Type, &n.Source.ReferenceID, &n.Source.ReferenceModel, &n.Source.TriggerDetails,
		&n.ExpiresAt, &n.Timestamps.SentAt, &n.Timestamps.DeliveredAt, &n.Timestamps.ClickedAt, &n.Timestamps.FailedAt,
		&n.Timestamps.LastAttemptAt, &escalationHistory, &n.FailureReason, &n.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning push notification: %w", err)
	}

	parsed, err := models.ParseULID(id)
	if err != nil {
		return nil, fmt.Errorf("parsing push notification id: %w", err)
	}
	n.ID = parsed

	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("unmarshaling data: %w", err)
		}
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &n.ProviderResponse.Results); err != nil {
			return nil, fmt.Errorf("unmarshaling provider results: %w", err)
		}
	}
	if err := json.Unmarshal(escalationHistory, &n.EscalationHistory); err != nil {
		return nil, fmt.Errorf("unmarshaling escalation history: %w", err)
	}

	return &n, nil
}
