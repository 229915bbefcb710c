package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/amityvox/notifyhub/internal/models"
	"github.com/amityvox/notifyhub/internal/queue"
)

// inAppHandler delivers in_app:deliver tasks (spec §4.4.2).
type inAppHandler struct {
	deps     Deps
	topology *queue.Topology
}

func (h *inAppHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.DecodeJobPayload(t.Payload())
	if err != nil {
		return fmt.Errorf("decoding in-app job payload: %w", err)
	}

	record, err := h.deps.Repo.GetInAppNotification(ctx, payload.NotificationID)
	if err != nil {
		h.deps.Logger.Error("in-app record not found, dropping job",
			slog.String("notification_id", payload.NotificationID), slog.String("error", err.Error()))
		return nil
	}

	now := time.Now().UTC()
	if now.After(record.ExpiresAt) {
		record.Status = models.StatusExpired
		if err := h.deps.Repo.UpdateInAppNotification(ctx, record); err != nil {
			return fmt.Errorf("marking in-app record expired: %w", err)
		}
		h.updateMirror(ctx, payload, record)
		return nil
	}

	record.Status = models.StatusProcessing
	record.Attempts++
	if err := h.deps.Repo.UpdateInAppNotification(ctx, record); err != nil {
		return fmt.Errorf("marking in-app record processing: %w", err)
	}

	socketID, delivered, sendErr := h.deps.Sockets.Deliver(ctx, record.RecipientUserID, record.ID.String(), record.Title, record.Message, string(record.Priority), record.Data)
	if sendErr == nil && delivered {
		record.Status = models.StatusDelivered
		record.SocketID = socketID
		record.DeliveryHistory = append(record.DeliveryHistory, models.DeliveryHistoryEntry{
			Attempt: record.Attempts, Timestamp: now, Status: models.StatusDelivered,
			SocketID: socketID, DeliveryMethod: "socket", Queue: record.CurrentQueue,
		})
		if err := h.deps.Repo.UpdateInAppNotification(ctx, record); err != nil {
			return fmt.Errorf("marking in-app record delivered: %w", err)
		}
		h.updateMirror(ctx, payload, record)
		return nil
	}

	return h.handleDeliverFailure(ctx, payload, record, now, sendErr, lastAttempt(ctx))
}

// handleDeliverFailure applies the tier-retry/escalation/DLQ decision for a
// failed socket delivery attempt. final is a parameter rather than read
// from ctx inline so tests can exercise both branches directly.
func (h *inAppHandler) handleDeliverFailure(ctx context.Context, payload queue.JobPayload, record *models.InAppNotification, now time.Time, sendErr error, final bool) error {
	reason := "recipient not connected"
	if sendErr != nil {
		reason = sendErr.Error()
	}
	record.DeliveryHistory = append(record.DeliveryHistory, models.DeliveryHistoryEntry{
		Attempt: record.Attempts, Timestamp: now, Status: models.StatusFailed, Queue: record.CurrentQueue,
	})

	if !final {
		record.Status = models.StatusQueued
		if err := h.deps.Repo.UpdateInAppNotification(ctx, record); err != nil {
			return fmt.Errorf("marking in-app record queued-retry: %w", err)
		}
		return fmt.Errorf("in-app delivery: %s", reason)
	}

	next, hasNext, escErr := escalate(h.deps.QueueClient, queue.TaskInAppDeliver, notificationJobID(record.ID.String(), record.CurrentQueue), payload, models.ChannelInApp, record.CurrentQueue)
	if escErr != nil {
		h.deps.Logger.Error("escalating in-app job failed", slog.String("error", escErr.Error()))
	}
	if hasNext {
		record.EscalationHistory = append(record.EscalationHistory, models.EscalationHistoryEntry{
			FromQueue: record.CurrentQueue, ToQueue: next, Timestamp: now, Reason: reason, Attempts: record.Attempts,
		})
		record.CurrentQueue = next
		record.Attempts = 0

		if next == models.TierDLQ {
			record.Status = models.StatusFailed
			record.DeliveryHistory = append(record.DeliveryHistory, models.DeliveryHistoryEntry{
				Attempt: record.Attempts, Timestamp: now, Status: models.StatusFailed,
				DeliveryMethod: "dlq", Queue: record.CurrentQueue,
			})
			if err := h.deps.Repo.UpdateInAppNotification(ctx, record); err != nil {
				return fmt.Errorf("marking in-app record failed into dlq: %w", err)
			}
			h.updateMirror(ctx, payload, record)
			return nil
		}

		record.Status = models.StatusQueued
		if err := h.deps.Repo.UpdateInAppNotification(ctx, record); err != nil {
			return fmt.Errorf("persisting in-app escalation: %w", err)
		}
		return nil
	}

	record.Status = models.StatusFailed
	if err := h.deps.Repo.UpdateInAppNotification(ctx, record); err != nil {
		return fmt.Errorf("marking in-app record failed: %w", err)
	}
	h.updateMirror(ctx, payload, record)
	return nil
}

func (h *inAppHandler) updateMirror(ctx context.Context, payload queue.JobPayload, record *models.InAppNotification) {
	mirror := models.MirrorSummary{
		Status:          record.Status,
		Attempts:        record.Attempts,
		NotificationID:  record.ID.String(),
		DeliveryHistory: record.DeliveryHistory,
	}

	var err error
	switch payload.EventType {
	case models.EventLogin:
		err = h.deps.Repo.UpdateLoginInAppMirror(ctx, payload.MirrorKey, mirror)
	case models.EventFriendRequest:
		err = h.deps.Repo.UpdateFriendRequestMirror(ctx, payload.MirrorKey, mirror)
	}
	if err != nil {
		h.deps.Logger.Error("updating in-app mirror", slog.String("error", err.Error()))
	}
}

// notificationJobID derives a stable per-tier job ID for records that don't
// carry their own JobID field (in-app notifications are addressed by tier
// queue + notification ID rather than a dedicated job-ID column).
func notificationJobID(notificationID string, tier models.Tier) string {
	return notificationID + ":" + string(tier)
}
