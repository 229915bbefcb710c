package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/amityvox/notifyhub/internal/emaildelivery"
	"github.com/amityvox/notifyhub/internal/models"
	"github.com/amityvox/notifyhub/internal/queue"
)

// emailHandler delivers email:deliver tasks (spec §4.4.1).
type emailHandler struct {
	deps     Deps
	topology *queue.Topology
}

func (h *emailHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.DecodeJobPayload(t.Payload())
	if err != nil {
		return fmt.Errorf("decoding email job payload: %w", err)
	}

	record, err := h.deps.Repo.GetEmailNotification(ctx, payload.NotificationID)
	if err != nil {
		h.deps.Logger.Error("email record not found, dropping job",
			slog.String("notification_id", payload.NotificationID), slog.String("error", err.Error()))
		return nil
	}

	now := time.Now().UTC()
	record.Status = models.StatusProcessing
	record.Attempts++
	record.LastAttemptAt = &now
	if err := h.deps.Repo.UpdateEmailNotification(ctx, record); err != nil {
		return fmt.Errorf("marking email record processing: %w", err)
	}

	msgID, sendErr := h.deps.Mailer.Send(emaildelivery.Message{
		To:      record.Recipient.Email,
		Subject: record.Subject,
		HTML:    record.Body.HTML,
		Text:    record.Body.Text,
	})

	if sendErr == nil {
		record.Status = models.StatusDelivered
		record.DeliveredAt = &now
		record.MessageID = msgID
		if err := h.deps.Repo.UpdateEmailNotification(ctx, record); err != nil {
			return fmt.Errorf("marking email record delivered: %w", err)
		}
		h.updateMirror(ctx, payload, record)
		return nil
	}

	return h.handleSendFailure(ctx, payload, record, now, sendErr, lastAttempt(ctx))
}

// handleSendFailure applies the tier-retry/escalation/DLQ decision for a
// failed send. final is split out as a parameter (rather than read from ctx
// inline) so the decision logic can be exercised directly in tests without
// needing a real asynq-populated context.
func (h *emailHandler) handleSendFailure(ctx context.Context, payload queue.JobPayload, record *models.EmailNotification, now time.Time, sendErr error, final bool) error {
	record.FailureReason = sendErr.Error()
	record.RetryHistory = append(record.RetryHistory, models.RetryHistoryEntry{
		Attempt:   record.Attempts,
		Timestamp: now,
		Queue:     record.CurrentQueue,
		Error:     sendErr.Error(),
	})

	if !final {
		record.Status = models.StatusPending
		if err := h.deps.Repo.UpdateEmailNotification(ctx, record); err != nil {
			return fmt.Errorf("marking email record pending-retry: %w", err)
		}
		return sendErr
	}

	next, hasNext, escErr := escalate(h.deps.QueueClient, queue.TaskEmailDeliver, record.JobID, payload, models.ChannelEmail, record.CurrentQueue)
	if escErr != nil {
		h.deps.Logger.Error("escalating email job failed", slog.String("error", escErr.Error()))
	}
	if hasNext {
		record.EscalationHistory = append(record.EscalationHistory, models.EscalationHistoryEntry{
			FromQueue: record.CurrentQueue,
			ToQueue:   next,
			Timestamp: now,
			Reason:    sendErr.Error(),
			Attempts:  record.Attempts,
		})
		record.CurrentQueue = next
		record.Attempts = 0

		if next == models.TierDLQ {
			record.Status = models.StatusFailed
			record.FailedAt = &now
			record.FailureReason = "max retries exceeded"
			if err := h.deps.Repo.UpdateEmailNotification(ctx, record); err != nil {
				return fmt.Errorf("marking email record failed into dlq: %w", err)
			}
			h.updateMirror(ctx, payload, record)
			return nil
		}

		record.Status = models.StatusPending
		if err := h.deps.Repo.UpdateEmailNotification(ctx, record); err != nil {
			return fmt.Errorf("persisting email escalation: %w", err)
		}
		return nil
	}

	record.Status = models.StatusFailed
	record.FailedAt = &now
	if err := h.deps.Repo.UpdateEmailNotification(ctx, record); err != nil {
		return fmt.Errorf("marking email record failed: %w", err)
	}
	h.updateMirror(ctx, payload, record)
	return nil
}

func (h *emailHandler) updateMirror(ctx context.Context, payload queue.JobPayload, record *models.EmailNotification) {
	mirror := models.MirrorSummary{
		Status:         record.Status,
		Attempts:       record.Attempts,
		LastAttemptAt:  record.LastAttemptAt,
		DeliveredAt:    record.DeliveredAt,
		FailedAt:       record.FailedAt,
		FailureReason:  record.FailureReason,
		QueueJobID:     record.JobID,
		NotificationID: record.ID.String(),
	}

	var err error
	switch payload.EventType {
	case models.EventSignup:
		err = h.deps.Repo.UpdateSignupWelcomeEmailMirror(ctx, payload.MirrorKey, mirror)
	case models.EventLogin:
		err = h.deps.Repo.UpdateLoginAlertEmailMirror(ctx, payload.MirrorKey, mirror)
	case models.EventResetPassword:
		err = h.deps.Repo.UpdateResetPasswordMirror(ctx, payload.MirrorKey, mirror)
	}
	if err != nil {
		h.deps.Logger.Error("updating email mirror", slog.String("error", err.Error()))
	}
}
