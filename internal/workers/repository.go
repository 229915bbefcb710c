package workers

import (
	"context"

	"github.com/amityvox/notifyhub/internal/models"
)

// Repository is the slice of internal/store's methods the channel workers
// need, defined consumer-side so tests can substitute an in-memory fake.
type Repository interface {
	GetEmailNotification(ctx context.Context, id string) (*models.EmailNotification, error)
	UpdateEmailNotification(ctx context.Context, n *models.EmailNotification) error
	GetInAppNotification(ctx context.Context, id string) (*models.InAppNotification, error)
	UpdateInAppNotification(ctx context.Context, n *models.InAppNotification) error
	GetPushNotification(ctx context.Context, id string) (*models.PushNotification, error)
	UpdatePushNotification(ctx context.Context, n *models.PushNotification) error

	UpdateSignupWelcomeEmailMirror(ctx context.Context, userID string, mirror models.MirrorSummary) error
	UpdateLoginAlertEmailMirror(ctx context.Context, loginID string, mirror models.MirrorSummary) error
	UpdateLoginInAppMirror(ctx context.Context, loginID string, mirror models.MirrorSummary) error
	UpdatePurchasePushMirror(ctx context.Context, orderID string, mirror models.MirrorSummary) error
	UpdateFriendRequestMirror(ctx context.Context, id string, mirror models.MirrorSummary) error
	UpdateResetPasswordMirror(ctx context.Context, token string, mirror models.MirrorSummary) error
}
