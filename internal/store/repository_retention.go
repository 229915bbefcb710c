package store

import (
	"context"
	"fmt"
	"time"
)

// PurgeOldRecords deletes terminal-state tracking records (delivered, sent,
// failed, expired, clicked) older than olderThan, across all three channel
// tables, in batches. Called periodically by the reaper (spec §4.6).
func (s *Store) PurgeOldRecords(ctx context.Context, olderThan time.Time, batchSize int) (int64, error) {
	var total int64

	emailTag, err := s.Pool.Exec(ctx, `
		DELETE FROM email_notifications WHERE id IN (
			SELECT id FROM email_notifications
			WHERE status IN ('delivered', 'failed')
				AND created_at < $1
			LIMIT $2
		)`, olderThan, batchSize)
	if err != nil {
		return total, fmt.Errorf("purging old email notifications: %w", err)
	}
	total += emailTag.RowsAffected()

	inAppTag, err := s.Pool.Exec(ctx, `
		DELETE FROM in_app_notifications WHERE id IN (
			SELECT id FROM in_app_notifications
			WHERE status IN ('delivered', 'failed', 'expired')
				AND created_at < $1
			LIMIT $2
		)`, olderThan, batchSize)
	if err != nil {
		return total, fmt.Errorf("purging old in-app notifications: %w", err)
	}
	total += inAppTag.RowsAffected()

	pushTag, err := s.Pool.Exec(ctx, `
		DELETE FROM push_notifications WHERE id IN (
			SELECT id FROM push_notifications
			WHERE status IN ('sent', 'delivered', 'failed', 'expired', 'clicked')
				AND created_at < $1
			LIMIT $2
		)`, olderThan, batchSize)
	if err != nil {
		return total, fmt.Errorf("purging old push notifications: %w", err)
	}
	total += pushTag.RowsAffected()

	return total, nil
}
