package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/amityvox/notifyhub/internal/events"
	"github.com/amityvox/notifyhub/internal/models"
)

// flushBatchSize bounds the on-connect flush to a small batch (spec §4.5).
const flushBatchSize = 10

// Repository is the subset of store the on-connect flush needs: listing a
// user's undelivered in-app records and carrying them to delivered.
type Repository interface {
	ListUndeliveredInAppNotifications(ctx context.Context, userID string, limit int) ([]*models.InAppNotification, error)
	UpdateInAppNotification(ctx context.Context, n *models.InAppNotification) error
	UpdateLoginInAppMirror(ctx context.Context, loginID string, mirror models.MirrorSummary) error
	UpdateFriendRequestMirror(ctx context.Context, id string, mirror models.MirrorSummary) error
}

// notificationEvent is the data payload published on a user's topic.
type notificationEvent struct {
	NotificationID string `json:"notification_id"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	Priority       string `json:"priority"`
	Data           any    `json:"data,omitempty"`
}

// Service is the Socket Service (spec §4.4.2 / §4.5): a local Hub of live
// connections plus an events.Bus subscription so a delivery attempted on
// one instance reaches the instance actually holding the recipient's
// connection.
type Service struct {
	hub    *Hub
	bus    *events.Bus
	repo   Repository
	logger *slog.Logger
}

// NewService wires a Hub to an events.Bus, subscribing to every per-user
// topic in a queue group named after this instance, so every instance in
// the fleet receives each published event and the one holding the
// recipient's connection delivers it. repo backs the on-connect flush.
func NewService(hub *Hub, bus *events.Bus, repo Repository, instanceID string, logger *slog.Logger) (*Service, error) {
	s := &Service{hub: hub, bus: bus, repo: repo, logger: logger}

	_, err := bus.QueueSubscribe(events.SubjectUserWildcard, "socket-"+instanceID, s.handleRemoteEvent)
	if err != nil {
		return nil, fmt.Errorf("subscribing to user events: %w", err)
	}
	return s, nil
}

func (s *Service) handleRemoteEvent(ev events.Event) {
	var payload notificationEvent
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		s.logger.Error("decoding remote socket event", slog.String("error", err.Error()))
		return
	}
	s.hub.Deliver(ev.UserID, Message{
		Type:  MsgNotificationNew,
		Topic: events.UserTopic(ev.UserID),
		Payload: notificationEvent{
			NotificationID: payload.NotificationID,
			Title:          payload.Title,
			Message:        payload.Message,
			Priority:       payload.Priority,
			Data:           payload.Data,
		},
	})
}

// Deliver attempts to push msg to userID's connection, locally first. If no
// local connection exists, it publishes to the user's topic so whichever
// instance holds the connection (if any) can deliver it; the call still
// reports delivered=false in that case, since no synchronous confirmation
// is possible across instances - a worker treats that as a failed attempt
// subject to tier retry/escalation (at-least-once, spec §3.2).
func (s *Service) Deliver(ctx context.Context, userID, notificationID, title, message, priority string, data any) (socketID string, delivered bool, err error) {
	payload := notificationEvent{
		NotificationID: notificationID,
		Title:          title,
		Message:        message,
		Priority:       priority,
		Data:           data,
	}

	if id, ok := s.hub.Deliver(userID, Message{Type: MsgNotificationNew, Topic: events.UserTopic(userID), Payload: payload}); ok {
		return id, true, nil
	}

	if pubErr := s.bus.PublishUserEvent(ctx, string(MsgNotificationNew), userID, payload); pubErr != nil {
		return "", false, fmt.Errorf("publishing user event: %w", pubErr)
	}
	return "", false, nil
}

// Hub exposes the underlying Hub, e.g. for the HTTP layer's upgrade handler.
func (s *Service) Hub() *Hub {
	return s.hub
}

// Flush delivers userID's pending/processing/queued in-app records over the just
// authenticated socket connection (the on-connect flush, spec §4.5): this
// is a secondary delivery path that bypasses the worker and queue tiers
// entirely, so it runs regardless of whether a worker job is still
// in-flight for the same record (a double flush is tolerated, since the
// record transitions it makes are idempotent for already-delivered rows).
func (s *Service) Flush(ctx context.Context, userID string) {
	records, err := s.repo.ListUndeliveredInAppNotifications(ctx, userID, flushBatchSize)
	if err != nil {
		s.logger.Error("listing undelivered in-app notifications for flush",
			slog.String("user_id", userID), slog.String("error", err.Error()))
		return
	}

	for _, record := range records {
		socketID, delivered := s.hub.Deliver(userID, Message{
			Type: MsgNotificationNew,
			Payload: notificationEvent{
				NotificationID: record.ID.String(),
				Title:          record.Title,
				Message:        record.Message,
				Priority:       string(record.Priority),
				Data:           record.Data,
			},
		})
		if !delivered {
			return
		}

		now := time.Now().UTC()
		record.Status = models.StatusDelivered
		record.SocketID = socketID
		record.DeliveryHistory = append(record.DeliveryHistory, models.DeliveryHistoryEntry{
			Attempt: record.Attempts + 1, Timestamp: now, Status: models.StatusDelivered,
			SocketID: socketID, DeliveryMethod: "socket:flush", Queue: record.CurrentQueue,
		})
		if err := s.repo.UpdateInAppNotification(ctx, record); err != nil {
			s.logger.Error("marking flushed in-app record delivered",
				slog.String("notification_id", record.ID.String()), slog.String("error", err.Error()))
			continue
		}
		s.updateMirror(ctx, record)
	}
}

func (s *Service) updateMirror(ctx context.Context, record *models.InAppNotification) {
	mirror := models.MirrorSummary{
		Status:          record.Status,
		Attempts:        record.Attempts,
		NotificationID:  record.ID.String(),
		DeliveryHistory: record.DeliveryHistory,
	}

	var err error
	switch record.EventType {
	case models.EventLogin:
		err = s.repo.UpdateLoginInAppMirror(ctx, record.MirrorKey, mirror)
	case models.EventFriendRequest:
		err = s.repo.UpdateFriendRequestMirror(ctx, record.MirrorKey, mirror)
	}
	if err != nil {
		s.logger.Error("updating flushed in-app mirror",
			slog.String("notification_id", record.ID.String()), slog.String("error", err.Error()))
	}
}
