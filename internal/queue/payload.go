package queue

import (
	"encoding/json"
	"fmt"

	"github.com/amityvox/notifyhub/internal/models"
)

// JobPayload is the envelope carried by every delivery job. Workers resolve
// the tracking record by NotificationID; a job whose record cannot be
// loaded is logged and dropped, and no record is recreated from the
// embedded fields.
type JobPayload struct {
	NotificationID string           `json:"notification_id"`
	EventType      models.EventType `json:"event_type"`
	Channel        models.Channel   `json:"channel"`
	Tier           models.Tier      `json:"tier"`
	Priority       int              `json:"priority"`
	TraceID        string           `json:"trace_id,omitempty"`

	// MirrorKey identifies the originating business entity's mirror summary
	// field to update after each delivery attempt - a user ID, a login/
	// friend-request ID, a reset token, or an order ID depending on
	// EventType. Carried here because the originating entity isn't
	// addressable from the tracking record alone for every event type.
	MirrorKey string `json:"mirror_key,omitempty"`
}

// Encode marshals a JobPayload to the bytes asynq stores as the task
// payload.
func (p JobPayload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding job payload: %w", err)
	}
	return data, nil
}

// DecodeJobPayload unmarshals a task's payload bytes back into a JobPayload.
func DecodeJobPayload(data []byte) (JobPayload, error) {
	var p JobPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return JobPayload{}, fmt.Errorf("decoding job payload: %w", err)
	}
	return p, nil
}
