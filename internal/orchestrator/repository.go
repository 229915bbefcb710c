package orchestrator

import (
	"context"

	"github.com/amityvox/notifyhub/internal/models"
)

// Repository is the slice of internal/store's methods the orchestrator
// needs. Defined here (consumer side) so tests can substitute an in-memory
// fake instead of a live Postgres-backed store.
type Repository interface {
	CreateEmailNotification(ctx context.Context, n *models.EmailNotification) error
	UpdateEmailNotification(ctx context.Context, n *models.EmailNotification) error
	CreateInAppNotification(ctx context.Context, n *models.InAppNotification) error
	UpdateInAppNotification(ctx context.Context, n *models.InAppNotification) error
	CreatePushNotification(ctx context.Context, n *models.PushNotification) error
	UpdatePushNotification(ctx context.Context, n *models.PushNotification) error

	UpdateSignupWelcomeEmailMirror(ctx context.Context, userID string, mirror models.MirrorSummary) error
	UpdateLoginAlertEmailMirror(ctx context.Context, loginID string, mirror models.MirrorSummary) error
	UpdateLoginInAppMirror(ctx context.Context, loginID string, mirror models.MirrorSummary) error
	UpdatePurchasePushMirror(ctx context.Context, orderID string, mirror models.MirrorSummary) error
	UpdateFriendRequestMirror(ctx context.Context, id string, mirror models.MirrorSummary) error
	UpdateResetPasswordMirror(ctx context.Context, token string, mirror models.MirrorSummary) error
}
