package queue

import (
	"testing"

	"github.com/amityvox/notifyhub/internal/config"
	"github.com/amityvox/notifyhub/internal/models"
)

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		Email: config.ChannelQueueConfig{
			Primary: config.TierConfig{Delay: "0", MaxAttempts: 4, Concurrency: 5},
			Retry1:  config.TierConfig{Delay: "5m", MaxAttempts: 3, Concurrency: 3},
			Retry2:  config.TierConfig{Delay: "30m", MaxAttempts: 2, Concurrency: 2},
			DLQ:     config.TierConfig{Delay: "0", MaxAttempts: 1, Concurrency: 1},
		},
		InApp: config.ChannelQueueConfig{
			Primary: config.TierConfig{Delay: "0", MaxAttempts: 3, Concurrency: 10},
			Retry1:  config.TierConfig{Delay: "2m", MaxAttempts: 3, Concurrency: 5},
			Retry2:  config.TierConfig{Delay: "10m", MaxAttempts: 2, Concurrency: 2},
			DLQ:     config.TierConfig{Delay: "0", MaxAttempts: 1, Concurrency: 1},
		},
		Push: config.ChannelQueueConfig{
			Primary: config.TierConfig{Delay: "0", MaxAttempts: 3, Concurrency: 8},
			Retry1:  config.TierConfig{Delay: "5m", MaxAttempts: 3, Concurrency: 4},
			Retry2:  config.TierConfig{Delay: "30m", MaxAttempts: 2, Concurrency: 2},
			DLQ:     config.TierConfig{Delay: "0", MaxAttempts: 1, Concurrency: 1},
		},
	}
}

func TestQueueName(t *testing.T) {
	tests := []struct {
		channel models.Channel
		tier    models.Tier
		want    string
	}{
		{models.ChannelEmail, models.TierPrimary, "email:primary"},
		{models.ChannelPush, models.TierRetry1, "push:retry-1"},
		{models.ChannelInApp, models.TierDLQ, "in_app:dlq"},
	}

	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			if got := QueueName(tc.channel, tc.tier); got != tc.want {
				t.Errorf("QueueName() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTopology_TierConfig(t *testing.T) {
	topo := NewTopology(testQueueConfig())

	tc := topo.TierConfig(models.ChannelEmail, models.TierPrimary)
	if tc.MaxAttempts != 4 {
		t.Errorf("email primary max_attempts = %d, want 4", tc.MaxAttempts)
	}

	tc = topo.TierConfig(models.ChannelPush, models.TierRetry2)
	if tc.Concurrency != 2 {
		t.Errorf("push retry-2 concurrency = %d, want 2", tc.Concurrency)
	}
}

func TestQueuesConfig(t *testing.T) {
	queues := QueuesConfig(testQueueConfig())

	if len(queues) != 12 {
		t.Fatalf("expected 12 queues, got %d", len(queues))
	}

	if queues["email:primary"] != 5 {
		t.Errorf("email:primary weight = %d, want 5", queues["email:primary"])
	}
	if queues["push:dlq"] != 1 {
		t.Errorf("push:dlq weight = %d, want 1", queues["push:dlq"])
	}
}
