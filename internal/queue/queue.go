// Package queue wires the twelve-queue topology (three channel families,
// four tiers each) onto asynq's Redis-backed job substrate. It owns queue
// naming, per-tier delay/concurrency/retry configuration, and task-type
// routing; the orchestrator and workers build on top of it rather than
// touching asynq directly.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/amityvox/notifyhub/internal/config"
	"github.com/amityvox/notifyhub/internal/models"
)

// TaskType identifies the kind of delivery job enqueued for a channel
// worker.
type TaskType string

const (
	TaskEmailDeliver  TaskType = "email:deliver"
	TaskInAppDeliver  TaskType = "in_app:deliver"
	TaskPushDeliver   TaskType = "push:deliver"
)

// QueueName returns the asynq queue name for a channel+tier pair, e.g.
// "email:primary", "push:retry-1".
func QueueName(channel models.Channel, tier models.Tier) string {
	return fmt.Sprintf("%s:%s", channel, tier)
}

// Topology is the fully resolved set of per-channel, per-tier queue
// parameters, derived from config.QueueConfig.
type Topology struct {
	cfg config.QueueConfig
}

// NewTopology builds a Topology from the loaded queue configuration.
func NewTopology(cfg config.QueueConfig) *Topology {
	return &Topology{cfg: cfg}
}

// TierConfig returns the channel+tier's delay/attempts/concurrency budget.
func (t *Topology) TierConfig(channel models.Channel, tier models.Tier) config.TierConfig {
	var family config.ChannelQueueConfig
	switch channel {
	case models.ChannelEmail:
		family = t.cfg.Email
	case models.ChannelInApp:
		family = t.cfg.InApp
	case models.ChannelPush:
		family = t.cfg.Push
	}

	switch tier {
	case models.TierPrimary:
		return family.Primary
	case models.TierRetry1:
		return family.Retry1
	case models.TierRetry2:
		return family.Retry2
	default:
		return family.DLQ
	}
}

// QueuesConfig returns the asynq.Config.Queues map (queue name -> relative
// priority weight) for every channel+tier combination, derived from each
// tier's configured concurrency. Used to construct the asynq.Server that
// backs the worker Manager.
func QueuesConfig(cfg config.QueueConfig) map[string]int {
	queues := map[string]int{}
	for _, channel := range []models.Channel{models.ChannelEmail, models.ChannelInApp, models.ChannelPush} {
		topo := NewTopology(cfg)
		for _, tier := range []models.Tier{models.TierPrimary, models.TierRetry1, models.TierRetry2, models.TierDLQ} {
			tc := topo.TierConfig(channel, tier)
			weight := tc.Concurrency
			if weight <= 0 {
				weight = 1
			}
			queues[QueueName(channel, tier)] = weight
		}
	}
	return queues
}

// Client wraps an asynq.Client for enqueueing delivery jobs onto a specific
// channel+tier queue, with the tier's configured delay and max-attempts.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	topology  *Topology
}

// NewClient constructs a queue Client backed by Redis at redisURL.
func NewClient(redisURL string, cfg config.QueueConfig) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URI: %w", err)
	}
	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		topology:  NewTopology(cfg),
	}, nil
}

// HealthCheck verifies the Redis substrate backing the queue is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.inspector.Queues()
	if err != nil {
		return fmt.Errorf("inspecting queue substrate: %w", err)
	}
	return nil
}

// Close closes the underlying asynq client and inspector.
func (c *Client) Close() error {
	if err := c.inspector.Close(); err != nil {
		return err
	}
	return c.client.Close()
}

// QueueDepths reports the pending task count of every channel+tier queue,
// for the live-view dashboard's queue panel.
func (c *Client) QueueDepths() (map[string]int, error) {
	depths := make(map[string]int)
	for _, channel := range []models.Channel{models.ChannelEmail, models.ChannelInApp, models.ChannelPush} {
		for _, tier := range []models.Tier{models.TierPrimary, models.TierRetry1, models.TierRetry2, models.TierDLQ} {
			name := QueueName(channel, tier)
			info, err := c.inspector.GetQueueInfo(name)
			if err != nil {
				continue
			}
			depths[name] = info.Size
		}
	}
	return depths, nil
}

// Enqueue submits a delivery job of the given task type onto the
// channel+tier's queue, honoring that tier's configured delay and
// max-attempts. jobID becomes the asynq task ID, used for idempotent
// re-enqueue (X1) - enqueueing the same jobID twice is a no-op, asynq
// returns asynq.ErrTaskIDConflict which callers should treat as already
// enqueued.
func (c *Client) Enqueue(taskType TaskType, jobID string, payload []byte, channel models.Channel, tier models.Tier, priority int) (*asynq.TaskInfo, error) {
	tierCfg := c.topology.TierConfig(channel, tier)
	delay, err := tierCfg.DelayParsed()
	if err != nil {
		return nil, fmt.Errorf("resolving tier delay: %w", err)
	}

	task := asynq.NewTask(string(taskType), payload)

	// asynq's MaxRetry counts retries after the first run, so a budget of
	// MaxAttempts runs allows MaxAttempts-1 retries.
	maxRetry := tierCfg.MaxAttempts - 1
	if maxRetry < 0 {
		maxRetry = 0
	}

	opts := []asynq.Option{
		asynq.Queue(QueueName(channel, tier)),
		asynq.MaxRetry(maxRetry),
		asynq.TaskID(jobID),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	info, err := c.client.Enqueue(task, opts...)
	if err != nil {
		if err == asynq.ErrTaskIDConflict {
			return nil, ErrAlreadyEnqueued
		}
		return nil, fmt.Errorf("enqueueing %s job %s: %w", taskType, jobID, err)
	}
	return info, nil
}

// ErrAlreadyEnqueued is returned by Enqueue when a job with the same ID has
// already been submitted, making re-enqueue of a tracking record's job safe
// to call unconditionally (invariant X1).
var ErrAlreadyEnqueued = fmt.Errorf("job already enqueued")

// RetryDelayFor returns the given tier's configured delay. The worker
// Manager's asynq server uses it as the delay between in-tier retries of a
// job; escalation to the next tier goes through Client.Enqueue, which
// applies the next tier's delay itself.
func RetryDelayFor(topo *Topology, channel models.Channel, tier models.Tier) time.Duration {
	tc := topo.TierConfig(channel, tier)
	d, err := tc.DelayParsed()
	if err != nil {
		return 0
	}
	return d
}
