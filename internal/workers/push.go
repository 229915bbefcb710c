package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/amityvox/notifyhub/internal/models"
	"github.com/amityvox/notifyhub/internal/push"
	"github.com/amityvox/notifyhub/internal/queue"
)

// pushHandler delivers push:deliver tasks (spec §4.4.3): resolve the
// recipient's active FCM tokens, multicast, then classify each token's
// disposition through the token registry.
type pushHandler struct {
	deps     Deps
	topology *queue.Topology
}

func (h *pushHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.DecodeJobPayload(t.Payload())
	if err != nil {
		return fmt.Errorf("decoding push job payload: %w", err)
	}

	record, err := h.deps.Repo.GetPushNotification(ctx, payload.NotificationID)
	if err != nil {
		h.deps.Logger.Error("push record not found, dropping job",
			slog.String("notification_id", payload.NotificationID), slog.String("error", err.Error()))
		return nil
	}

	now := time.Now().UTC()
	if now.After(record.ExpiresAt) {
		record.Status = models.StatusExpired
		if err := h.deps.Repo.UpdatePushNotification(ctx, record); err != nil {
			return fmt.Errorf("marking push record expired: %w", err)
		}
		return nil
	}

	record.Status = models.StatusProcessing
	record.Attempts++
	record.Timestamps.LastAttemptAt = &now
	if err := h.deps.Repo.UpdatePushNotification(ctx, record); err != nil {
		return fmt.Errorf("marking push record processing: %w", err)
	}

	activeTokens, err := h.deps.Tokens.ResolveActive(ctx, record.RecipientUserID)
	if err != nil {
		return fmt.Errorf("resolving active push tokens: %w", err)
	}
	if len(activeTokens) == 0 {
		return h.fail(ctx, payload, record, now, "no active push tokens for recipient")
	}

	byToken := make(map[string]*models.FcmToken, len(activeTokens))
	tokenStrings := make([]string, 0, len(activeTokens))
	for _, tok := range activeTokens {
		byToken[tok.Token] = tok
		tokenStrings = append(tokenStrings, tok.Token)
	}

	results, err := h.deps.Push.SendMulticast(ctx, tokenStrings, push.Message{
		Title:       record.Title,
		Body:        record.Body,
		ImageURL:    record.ImageURL,
		ClickAction: record.ClickAction,
	})
	if err != nil {
		return h.fail(ctx, payload, record, now, err.Error())
	}

	successCount, failureCount := 0, 0
	providerResults := make([]models.PushTokenResult, 0, len(results))
	for _, r := range results {
		fcmTok, ok := byToken[r.Token]
		if !ok {
			continue
		}
		if r.Success {
			successCount++
			if err := h.deps.Tokens.RecordDelivery(ctx, fcmTok.ID.String(), true, true, false, false); err != nil {
				h.deps.Logger.Error("recording token delivery", slog.String("error", err.Error()))
			}
		} else {
			failureCount++
			if err := h.deps.Tokens.HandleProviderError(ctx, fcmTok.ID.String(), r.ErrorCode, r.Error); err != nil {
				h.deps.Logger.Error("handling token provider error", slog.String("error", err.Error()))
			}
		}
		providerResults = append(providerResults, models.PushTokenResult{Token: r.Token, Success: r.Success, Error: r.Error})
	}

	record.ProviderResponse = models.PushProviderResponse{
		SuccessCount: successCount, FailureCount: failureCount, Results: providerResults,
	}

	if successCount > 0 {
		record.Status = models.StatusSent
		record.DeliveryStatus.Sent = true
		record.Timestamps.SentAt = &now
		if err := h.deps.Repo.UpdatePushNotification(ctx, record); err != nil {
			return fmt.Errorf("marking push record sent: %w", err)
		}
		h.updateMirror(ctx, payload, record)
		return nil
	}

	return h.fail(ctx, payload, record, now, "every token delivery failed")
}

func (h *pushHandler) fail(ctx context.Context, payload queue.JobPayload, record *models.PushNotification, now time.Time, reason string) error {
	return h.failWithFinal(ctx, payload, record, now, reason, lastAttempt(ctx))
}

// failWithFinal applies the tier-retry/escalation/DLQ decision for a failed
// push attempt. final is a parameter rather than read from ctx inline so
// tests can exercise both branches directly.
func (h *pushHandler) failWithFinal(ctx context.Context, payload queue.JobPayload, record *models.PushNotification, now time.Time, reason string, final bool) error {
	record.FailureReason = reason

	if !final {
		record.Status = models.StatusPending
		if err := h.deps.Repo.UpdatePushNotification(ctx, record); err != nil {
			return fmt.Errorf("marking push record pending-retry: %w", err)
		}
		return fmt.Errorf("push delivery: %s", reason)
	}

	next, hasNext, escErr := escalate(h.deps.QueueClient, queue.TaskPushDeliver, notificationJobID(record.ID.String(), record.CurrentQueue), payload, models.ChannelPush, record.CurrentQueue)
	if escErr != nil {
		h.deps.Logger.Error("escalating push job failed", slog.String("error", escErr.Error()))
	}
	if hasNext {
		record.EscalationHistory = append(record.EscalationHistory, models.EscalationHistoryEntry{
			FromQueue: record.CurrentQueue, ToQueue: next, Timestamp: now, Reason: reason, Attempts: record.Attempts,
		})
		record.CurrentQueue = next
		record.Attempts = 0

		if next == models.TierDLQ {
			record.Status = models.StatusFailed
			record.Timestamps.FailedAt = &now
			record.DeliveryStatus.Failed = true
			record.FailureReason = "max retries exceeded"
			if err := h.deps.Repo.UpdatePushNotification(ctx, record); err != nil {
				return fmt.Errorf("marking push record failed into dlq: %w", err)
			}
			h.updateMirror(ctx, payload, record)
			return nil
		}

		record.Status = models.StatusPending
		if err := h.deps.Repo.UpdatePushNotification(ctx, record); err != nil {
			return fmt.Errorf("persisting push escalation: %w", err)
		}
		return nil
	}

	record.Status = models.StatusFailed
	record.Timestamps.FailedAt = &now
	record.DeliveryStatus.Failed = true
	if err := h.deps.Repo.UpdatePushNotification(ctx, record); err != nil {
		return fmt.Errorf("marking push record failed: %w", err)
	}
	h.updateMirror(ctx, payload, record)
	return nil
}

func (h *pushHandler) updateMirror(ctx context.Context, payload queue.JobPayload, record *models.PushNotification) {
	if payload.EventType != models.EventPurchase {
		return
	}
	mirror := models.MirrorSummary{
		Status:         record.Status,
		Attempts:       record.Attempts,
		LastAttemptAt:  record.Timestamps.LastAttemptAt,
		DeliveredAt:    record.Timestamps.DeliveredAt,
		FailedAt:       record.Timestamps.FailedAt,
		FailureReason:  record.FailureReason,
		NotificationID: record.ID.String(),
	}
	if err := h.deps.Repo.UpdatePurchasePushMirror(ctx, payload.MirrorKey, mirror); err != nil {
		h.deps.Logger.Error("updating push mirror", slog.String("error", err.Error()))
	}
}
