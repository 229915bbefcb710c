package workers

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/amityvox/notifyhub/internal/models"
	"github.com/amityvox/notifyhub/internal/queue"
)

// lastAttempt reports whether the current delivery, if it fails, has
// exhausted the current tier's budget and must escalate rather than let
// asynq retry the same task in place.
func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

// escalate advances a failed job to the next tier. The DLQ tier is
// terminal and performs no further delivery (spec §4.4): escalating into
// it does not enqueue a job at all, since there is no log-only handler to
// run it against. Callers must recognize next == models.TierDLQ and mark
// the tracking record failed themselves rather than treating it as just
// another retry tier.
func escalate(qc Enqueuer, taskType queue.TaskType, jobID string, payload queue.JobPayload, channel models.Channel, currentTier models.Tier) (models.Tier, bool, error) {
	next, ok := currentTier.Next()
	if !ok {
		return "", false, nil
	}
	if next == models.TierDLQ {
		return next, true, nil
	}

	payload.Tier = next
	encoded, err := payload.Encode()
	if err != nil {
		return next, true, err
	}

	escalatedJobID := jobID + ":" + string(next)
	if _, err := qc.Enqueue(taskType, escalatedJobID, encoded, channel, next, payload.Priority); err != nil && err != queue.ErrAlreadyEnqueued {
		return next, true, err
	}
	return next, true, nil
}
