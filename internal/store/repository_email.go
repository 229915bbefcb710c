package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/amityvox/notifyhub/internal/models"
)

// CreateEmailNotification inserts a new email tracking record. It runs as a
// single statement outside any transaction; the job enqueue and mirror
// update are separate calls made by the orchestrator afterwards.
func (s *Store) CreateEmailNotification(ctx context.Context, n *models.EmailNotification) error {
	retryHistory, err := json.Marshal(n.RetryHistory)
	if err != nil {
		return fmt.Errorf("marshaling retry history: %w", err)
	}
	escalationHistory, err := json.Marshal(n.EscalationHistory)
	if err != nil {
		return fmt.Errorf("marshaling escalation history: %w", err)
	}

	_, err = s.Pool.Exec(ctx, `
		INSERT INTO email_notifications (
			id, event_type, recipient_email, recipient_user_id, recipient_username,
			subject, body_html, body_text, status, attempts, max_attempts,
			current_queue, job_id, retry_history, escalation_history, message_id,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		n.ID.String(), n.EventType, n.Recipient.Email, n.Recipient.UserID, n.Recipient.Username,
		n.Subject, n.Body.HTML, n.Body.Text, n.Status, n.Attempts, n.MaxAttempts,
		n.CurrentQueue, n.JobID, retryHistory, escalationHistory, n.MessageID,
		n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting email notification: %w", err)
	}
	return nil
}

// GetEmailNotification fetches one email tracking record by ID.
func (s *Store) GetEmailNotification(ctx context.Context, id string) (*models.EmailNotification, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, event_type, recipient_email, recipient_user_id, recipient_username,
			subject, body_html, body_text, status, attempts, max_attempts, current_queue,
			job_id, last_attempt_at, delivered_at, failed_at, failure_reason,
			retry_history, escalation_history, message_id, created_at, updated_at
		FROM email_notifications WHERE id = $1`, id)

	return scanEmailNotification(row)
}

// UpdateEmailNotification persists the full mutable state of a tracking
// record after a worker attempt (status transition, history append, tier
// move, or terminal state).
func (s *Store) UpdateEmailNotification(ctx context.Context, n *models.EmailNotification) error {
	retryHistory, err := json.Marshal(n.RetryHistory)
	if err != nil {
		return fmt.Errorf("marshaling retry history: %w", err)
	}
	escalationHistory, err := json.Marshal(n.EscalationHistory)
	if err != nil {
		return fmt.Errorf("marshaling escalation history: %w", err)
	}

	_, err = s.Pool.Exec(ctx, `
		UPDATE email_notifications SET
			status = $2, attempts = $3, max_attempts = $4, current_queue = $5,
			job_id = $6, last_attempt_at = $7, delivered_at = $8, failed_at = $9,
			failure_reason = $10, retry_history = $11, escalation_history = $12,
			message_id = $13, updated_at = $14
		WHERE id = $1`,
		n.ID.String(), n.Status, n.Attempts, n.MaxAttempts, n.CurrentQueue,
		n.JobID, n.LastAttemptAt, n.DeliveredAt, n.FailedAt, n.FailureReason,
		retryHistory, escalationHistory, n.MessageID, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating email notification: %w", err)
	}
	return nil
}

// ListEmailNotificationsByRecipient returns a recipient's email notifications
// newest first, for the mirror-status and live-view endpoints.
func (s *Store) ListEmailNotificationsByRecipient(ctx context.Context, userID string, limit, offset int) ([]*models.EmailNotification, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, event_type, recipient_email, recipient_user_id, recipient_username,
			subject, body_html, body_text, status, attempts, max_attempts, current_queue,
			job_id, last_attempt_at, delivered_at, failed_at, failure_reason,
			retry_history, escalation_history, message_id, created_at, updated_at
		FROM email_notifications
		WHERE recipient_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing email notifications: %w", err)
	}
	defer rows.Close()

	var result []*models.EmailNotification
	for rows.Next() {
		n, err := scanEmailNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

type emailRowScanner interface {
	Scan(dest ...any) error
}

func scanEmailNotification(row emailRowScanner) (*models.EmailNotification, error) {
	var n models.EmailNotification
	var id string
	var retryHistory, escalationHistory []byte

	err := row.Scan(
		&id, &n.EventType, &n.Recipient.Email, &n.Recipient.UserID, &n.Recipient.Username,
		&n.Subject, &n.Body.HTML, &n.Body.Text, &n.Status, &n.Attempts, &n.MaxAttempts,
		&n.CurrentQueue, &n.JobID, &n.LastAttemptAt, &n.DeliveredAt, &n.FailedAt, &n.FailureReason,
		&retryHistory, &escalationHistory, &n.MessageID, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning email notification: %w", err)
	}

	parsed, err := models.ParseULID(id)
	if err != nil {
		return nil, fmt.Errorf("parsing email notification id: %w", err)
	}
	n.ID = parsed

	if err := json.Unmarshal(retryHistory, &n.RetryHistory); err != nil {
		return nil, fmt.Errorf("unmarshaling retry history: %w", err)
	}
	if err := json.Unmarshal(escalationHistory, &n.EscalationHistory); err != nil {
		return nil, fmt.Errorf("unmarshaling escalation history: %w", err)
	}

	return &n, nil
}
