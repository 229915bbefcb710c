package workers

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/amityvox/notifyhub/internal/emaildelivery"
	"github.com/amityvox/notifyhub/internal/models"
	"github.com/amityvox/notifyhub/internal/push"
	"github.com/amityvox/notifyhub/internal/queue"
)

// Mailer is the slice of internal/emaildelivery's Client the email worker
// needs, defined consumer-side so tests can substitute a fake SMTP sender.
type Mailer interface {
	Send(msg emaildelivery.Message) (messageID string, err error)
}

// SocketDeliverer is the slice of internal/socket's Service the in-app
// worker needs.
type SocketDeliverer interface {
	Deliver(ctx context.Context, userID, notificationID, title, message, priority string, data any) (socketID string, delivered bool, err error)
}

// PushSender is the slice of internal/push's Client the push worker needs.
type PushSender interface {
	SendMulticast(ctx context.Context, tokens []string, msg push.Message) ([]push.TokenResult, error)
}

// TokenResolver is the slice of internal/tokens' Registry the push worker
// needs to resolve recipients and record per-token dispositions.
type TokenResolver interface {
	ResolveActive(ctx context.Context, userID string) ([]*models.FcmToken, error)
	RecordDelivery(ctx context.Context, tokenID string, sent, delivered, clicked, failed bool) error
	HandleProviderError(ctx context.Context, tokenID, code, message string) error
}

// Enqueuer is the slice of internal/queue's Client the escalation helper
// needs to re-enqueue a job on the next tier's queue.
type Enqueuer interface {
	Enqueue(taskType queue.TaskType, jobID string, payload []byte, channel models.Channel, tier models.Tier, priority int) (*asynq.TaskInfo, error)
}
