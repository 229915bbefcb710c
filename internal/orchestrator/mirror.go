package orchestrator

import (
	"context"
	"log/slog"

	"github.com/amityvox/notifyhub/internal/models"
)

// mirrorFromEmail, mirrorFromInApp and mirrorFromPush build the mirror
// summary from a just-persisted tracking record.
// Mirrors are always written tracking-record-first (already done by the
// caller), mirror-second - failures here are logged but never surfaced to
// the Dispatch caller, since the mirror is a read convenience, not the
// source of truth (spec §4.3, §9 design notes).
func mirrorFromEmail(n *models.EmailNotification) models.MirrorSummary {
	return models.MirrorSummary{
		Status:         n.Status,
		Attempts:       n.Attempts,
		LastAttemptAt:  n.LastAttemptAt,
		DeliveredAt:    n.DeliveredAt,
		FailedAt:       n.FailedAt,
		FailureReason:  n.FailureReason,
		QueueJobID:     n.JobID,
		NotificationID: n.ID.String(),
	}
}

func mirrorFromInApp(n *models.InAppNotification) models.MirrorSummary {
	return models.MirrorSummary{
		Status:          n.Status,
		Attempts:        n.Attempts,
		NotificationID:  n.ID.String(),
		DeliveryHistory: n.DeliveryHistory,
	}
}

func mirrorFromPush(n *models.PushNotification) models.MirrorSummary {
	return models.MirrorSummary{
		Status:         n.Status,
		Attempts:       n.Attempts,
		LastAttemptAt:  n.Timestamps.LastAttemptAt,
		DeliveredAt:    n.Timestamps.DeliveredAt,
		FailedAt:       n.Timestamps.FailedAt,
		FailureReason:  n.FailureReason,
		NotificationID: n.ID.String(),
	}
}

func (o *Orchestrator) updateEmailMirror(ctx context.Context, eventType models.EventType, recipientUserID string, record *models.EmailNotification, payload EventPayload, dctx DispatchContext) {
	mirror := mirrorFromEmail(record)
	var err error
	switch eventType {
	case models.EventSignup:
		err = o.store.UpdateSignupWelcomeEmailMirror(ctx, recipientUserID, mirror)
	case models.EventLogin:
		err = o.store.UpdateLoginAlertEmailMirror(ctx, dctx.SourceEntityID, mirror)
	case models.EventResetPassword:
		if payload.ResetPassword != nil {
			err = o.store.UpdateResetPasswordMirror(ctx, payload.ResetPassword.Token, mirror)
		}
	}
	if err != nil {
		o.logger.Warn("updating email mirror failed", slog.String("event_type", string(eventType)), slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) updateInAppMirror(ctx context.Context, eventType models.EventType, record *models.InAppNotification, dctx DispatchContext) {
	mirror := mirrorFromInApp(record)
	var err error
	switch eventType {
	case models.EventLogin:
		err = o.store.UpdateLoginInAppMirror(ctx, dctx.SourceEntityID, mirror)
	case models.EventFriendRequest:
		err = o.store.UpdateFriendRequestMirror(ctx, dctx.SourceEntityID, mirror)
	}
	if err != nil {
		o.logger.Warn("updating in-app mirror failed", slog.String("event_type", string(eventType)), slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) updatePushMirror(ctx context.Context, eventType models.EventType, payload EventPayload, record *models.PushNotification, dctx DispatchContext) {
	if eventType != models.EventPurchase || payload.Purchase == nil {
		return
	}
	mirror := mirrorFromPush(record)
	if err := o.store.UpdatePurchasePushMirror(ctx, payload.Purchase.OrderID, mirror); err != nil {
		o.logger.Warn("updating purchase push mirror failed", slog.String("error", err.Error()))
	}
}
