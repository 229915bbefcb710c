// Package orchestrator implements the Notification Orchestrator: the single
// entry point business-entity controllers call to fan an event out across
// its enabled channels. It validates the event type, synthesizes each
// channel's body from deterministic templates, persists a tracking record
// per channel, and enqueues one job per record - failing a channel
// independently never aborts the caller's own write (spec §4.3).
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amityvox/notifyhub/internal/models"
	"github.com/amityvox/notifyhub/internal/queue"
)

// DispatchContext carries the request-scoped metadata threaded through every
// tracking record and telemetry stage for one dispatch call.
type DispatchContext struct {
	InstanceID       string
	SourceEntityID   string
	SourceEntityType string
	RequestEndpoint  string
	IP               string
	UserAgent        string
	TraceID          string
}

// ValidationError is returned synchronously from Dispatch when the input is
// rejected before any record is created (error taxonomy class 1,
// "Input-rejection").
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// ChannelResult is the per-channel outcome of a Dispatch call.
type ChannelResult struct {
	Success        bool   `json:"success"`
	JobID          string `json:"job_id,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// SignupData is the typed payload for a signup event.
type SignupData struct {
	UserID   string
	Username string
	Email    string
}

// LoginData is the typed payload for a login event.
type LoginData struct {
	UserID    string
	Email     string
	IPAddress string
}

// PurchaseData is the typed payload for a purchase event.
type PurchaseData struct {
	UserID      string
	OrderID     string
	TotalAmount float64
	Currency    string
	Items       []models.PurchaseItem
}

// FriendRequestData is the typed payload for a friend-request event.
type FriendRequestData struct {
	FromUserID string
	ToUserID   string
}

// ResetPasswordData is the typed payload for a reset_password event.
type ResetPasswordData struct {
	UserID string
	Email  string
	Token  string
}

// EventPayload is the tagged-sum job payload: exactly one of its fields is
// set, matching the caller's event type.
type EventPayload struct {
	Signup        *SignupData
	Login         *LoginData
	Purchase      *PurchaseData
	FriendRequest *FriendRequestData
	ResetPassword *ResetPasswordData
}

// Orchestrator wires the store and queue substrate together behind the
// single Dispatch entry point.
type Orchestrator struct {
	store  Repository
	queue  *queue.Client
	logger *slog.Logger
}

// New constructs an Orchestrator.
func New(repo Repository, qc *queue.Client, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{store: repo, queue: qc, logger: logger}
}

// Dispatch validates the event type, then for each enabled channel
// synthesizes the body, persists a tracking record, links the originating
// entity's mirror, and enqueues a job to that channel's primary queue. Each
// channel is handled independently: a failure on one channel is reflected
// in its ChannelResult and never blocks the others or returns an error to
// the caller, honoring X1's per-channel atomicity and the "best effort,
// complete audit trail" failure semantics.
func (o *Orchestrator) Dispatch(ctx context.Context, eventType models.EventType, payload EventPayload, dctx DispatchContext) (map[models.Channel]ChannelResult, error) {
	if !eventType.Valid() {
		return nil, &ValidationError{Field: "event_type", Message: fmt.Sprintf("unknown event type %q", eventType)}
	}

	recipientUserID, recipientEmail, recipientUsername, err := recipientOf(eventType, payload)
	if err != nil {
		return nil, err
	}

	channels := models.EnabledChannels[eventType]
	results := make(map[models.Channel]ChannelResult, len(channels))

	for _, channel := range channels {
		result := o.dispatchChannel(ctx, eventType, channel, payload, dctx, recipientUserID, recipientEmail, recipientUsername)
		results[channel] = result
	}

	return results, nil
}

func (o *Orchestrator) dispatchChannel(ctx context.Context, eventType models.EventType, channel models.Channel, payload EventPayload, dctx DispatchContext, recipientUserID, recipientEmail, recipientUsername string) ChannelResult {
	switch channel {
	case models.ChannelEmail:
		return o.dispatchEmail(ctx, eventType, payload, dctx, recipientUserID, recipientEmail, recipientUsername)
	case models.ChannelInApp:
		return o.dispatchInApp(ctx, eventType, payload, dctx, recipientUserID)
	case models.ChannelPush:
		return o.dispatchPush(ctx, eventType, payload, dctx, recipientUserID)
	default:
		return ChannelResult{Success: false, Reason: fmt.Sprintf("unknown channel %q", channel)}
	}
}

func (o *Orchestrator) dispatchEmail(ctx context.Context, eventType models.EventType, payload EventPayload, dctx DispatchContext, recipientUserID, recipientEmail, recipientUsername string) ChannelResult {
	subject, html, text := renderEmailBody(eventType, payload)

	now := time.Now().UTC()
	record := &models.EmailNotification{
		ID:        models.NewULID(),
		EventType: eventType,
		Recipient: models.EmailRecipient{
			Email:    recipientEmail,
			UserID:   recipientUserID,
			Username: recipientUsername,
		},
		Subject:      subject,
		Body:         models.EmailBody{HTML: html, Text: text},
		Status:       models.StatusPending,
		MaxAttempts:  emailPrimaryMaxAttempts,
		CurrentQueue: models.TierPrimary,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := o.store.CreateEmailNotification(ctx, record); err != nil {
		o.logger.Error("creating email notification failed",
			slog.String("event_type", string(eventType)), slog.String("error", err.Error()))
		return ChannelResult{Success: false, Reason: "tracking record persistence failed"}
	}

	jobID := "email-" + record.ID.String()
	mirrorKey := recipientUserID
	if eventType == models.EventLogin {
		mirrorKey = dctx.SourceEntityID
	} else if eventType == models.EventResetPassword && payload.ResetPassword != nil {
		mirrorKey = payload.ResetPassword.Token
	}
	result := o.enqueueOrMarkFailed(ctx, jobID, record.ID.String(), eventType, models.ChannelEmail, mirrorKey, dctx, func(reason string, failedAt time.Time) error {
		record.Status = models.StatusFailed
		record.FailureReason = reason
		record.FailedAt = &failedAt
		record.UpdatedAt = failedAt
		return o.store.UpdateEmailNotification(ctx, record)
	})
	if result.Success {
		record.JobID = jobID
		_ = o.store.UpdateEmailNotification(ctx, record)
	}

	o.updateEmailMirror(ctx, eventType, recipientUserID, record, payload, dctx)
	result.NotificationID = record.ID.String()
	return result
}

func (o *Orchestrator) dispatchInApp(ctx context.Context, eventType models.EventType, payload EventPayload, dctx DispatchContext, recipientUserID string) ChannelResult {
	title, message, data := renderInAppBody(eventType, payload)

	now := time.Now().UTC()
	record := &models.InAppNotification{
		ID:              models.NewULID(),
		EventType:       eventType,
		RecipientUserID: recipientUserID,
		Title:           title,
		Message:         message,
		Data:            data,
		Priority:        inAppPriorityFor(eventType),
		Status:          models.StatusPending,
		MaxAttempts:     inAppPrimaryMaxAttempts,
		CurrentQueue:    models.TierPrimary,
		MirrorKey:       dctx.SourceEntityID,
		ExpiresAt:       now.Add(models.InAppExpiresAfter),
		CreatedAt:       now,
	}

	if err := o.store.CreateInAppNotification(ctx, record); err != nil {
		o.logger.Error("creating in-app notification failed",
			slog.String("event_type", string(eventType)), slog.String("error", err.Error()))
		return ChannelResult{Success: false, Reason: "tracking record persistence failed"}
	}

	jobID := "inapp-" + record.ID.String()
	result := o.enqueueOrMarkFailed(ctx, jobID, record.ID.String(), eventType, models.ChannelInApp, dctx.SourceEntityID, dctx, func(reason string, failedAt time.Time) error {
		record.Status = models.StatusFailed
		return o.store.UpdateInAppNotification(ctx, record)
	})

	o.updateInAppMirror(ctx, eventType, record, dctx)
	result.NotificationID = record.ID.String()
	return result
}

func (o *Orchestrator) dispatchPush(ctx context.Context, eventType models.EventType, payload EventPayload, dctx DispatchContext, recipientUserID string) ChannelResult {
	title, body, imageURL, clickAction := renderPushBody(eventType, payload)

	now := time.Now().UTC()
	record := &models.PushNotification{
		ID:              models.NewULID(),
		EventType:       eventType,
		RecipientUserID: recipientUserID,
		Title:           title,
		Body:            body,
		ImageURL:        imageURL,
		ClickAction:     clickAction,
		Priority:        models.InAppNormal,
		Status:          models.StatusPending,
		MaxAttempts:     pushPrimaryMaxAttempts,
		CurrentQueue:    models.TierPrimary,
		Source:          pushSourceFor(eventType, payload, dctx),
		ExpiresAt:       now.Add(models.PushExpiresAfter),
		CreatedAt:       now,
	}

	if err := o.store.CreatePushNotification(ctx, record); err != nil {
		o.logger.Error("creating push notification failed",
			slog.String("event_type", string(eventType)), slog.String("error", err.Error()))
		return ChannelResult{Success: false, Reason: "tracking record persistence failed"}
	}

	jobID := "push-" + record.ID.String()
	mirrorKey := dctx.SourceEntityID
	if eventType == models.EventPurchase && payload.Purchase != nil {
		mirrorKey = payload.Purchase.OrderID
	}
	result := o.enqueueOrMarkFailed(ctx, jobID, record.ID.String(), eventType, models.ChannelPush, mirrorKey, dctx, func(reason string, failedAt time.Time) error {
		record.Status = models.StatusFailed
		record.FailureReason = reason
		record.Timestamps.FailedAt = &failedAt
		return o.store.UpdatePushNotification(ctx, record)
	})

	o.updatePushMirror(ctx, eventType, payload, record, dctx)
	result.NotificationID = record.ID.String()
	return result
}

// enqueueOrMarkFailed enqueues the primary-tier job for a freshly created
// tracking record; if enqueue fails, it invokes markFailed to persist the
// failure against that same record (spec §4.3 failure semantics).
func (o *Orchestrator) enqueueOrMarkFailed(ctx context.Context, jobID, notificationID string, eventType models.EventType, channel models.Channel, mirrorKey string, dctx DispatchContext, markFailed func(reason string, failedAt time.Time) error) ChannelResult {
	payload := queue.JobPayload{
		NotificationID: notificationID,
		EventType:      eventType,
		Channel:        channel,
		Tier:           models.TierPrimary,
		Priority:       eventType.Priority(),
		TraceID:        dctx.TraceID,
		MirrorKey:      mirrorKey,
	}
	encoded, err := payload.Encode()
	if err != nil {
		_ = markFailed("encoding job payload: "+err.Error(), time.Now().UTC())
		return ChannelResult{Success: false, Reason: "job payload encoding failed"}
	}

	_, err = o.queue.Enqueue(taskTypeFor(channel), jobID, encoded, channel, models.TierPrimary, eventType.Priority())
	if err != nil && err != queue.ErrAlreadyEnqueued {
		o.logger.Error("enqueue failed",
			slog.String("channel", string(channel)), slog.String("error", err.Error()))
		if ferr := markFailed("enqueue-failure: "+err.Error(), time.Now().UTC()); ferr != nil {
			o.logger.Error("marking record failed after enqueue failure also failed", slog.String("error", ferr.Error()))
		}
		return ChannelResult{Success: false, Reason: "enqueue-failure"}
	}

	return ChannelResult{Success: true, JobID: jobID}
}

func taskTypeFor(channel models.Channel) queue.TaskType {
	switch channel {
	case models.ChannelEmail:
		return queue.TaskEmailDeliver
	case models.ChannelInApp:
		return queue.TaskInAppDeliver
	default:
		return queue.TaskPushDeliver
	}
}

func inAppPriorityFor(eventType models.EventType) models.InAppPriority {
	if eventType == models.EventFriendRequest {
		return models.InAppNormal
	}
	return models.InAppHigh
}

func recipientOf(eventType models.EventType, payload EventPayload) (userID, email, username string, err error) {
	switch eventType {
	case models.EventSignup:
		if payload.Signup == nil {
			return "", "", "", &ValidationError{Field: "signup", Message: "missing signup payload"}
		}
		return payload.Signup.UserID, payload.Signup.Email, payload.Signup.Username, nil
	case models.EventLogin:
		if payload.Login == nil {
			return "", "", "", &ValidationError{Field: "login", Message: "missing login payload"}
		}
		return payload.Login.UserID, payload.Login.Email, "", nil
	case models.EventResetPassword:
		if payload.ResetPassword == nil {
			return "", "", "", &ValidationError{Field: "reset_password", Message: "missing reset_password payload"}
		}
		return payload.ResetPassword.UserID, payload.ResetPassword.Email, "", nil
	case models.EventPurchase:
		if payload.Purchase == nil {
			return "", "", "", &ValidationError{Field: "purchase", Message: "missing purchase payload"}
		}
		return payload.Purchase.UserID, "", "", nil
	case models.EventFriendRequest:
		if payload.FriendRequest == nil {
			return "", "", "", &ValidationError{Field: "friend_request", Message: "missing friend_request payload"}
		}
		return payload.FriendRequest.ToUserID, "", "", nil
	default:
		return "", "", "", &ValidationError{Field: "event_type", Message: "unhandled event type"}
	}
}

func pushSourceFor(eventType models.EventType, payload EventPayload, dctx DispatchContext) models.PushSource {
	src := models.PushSource{
		Type:           dctx.SourceEntityType,
		ReferenceID:    dctx.SourceEntityID,
		ReferenceModel: string(eventType),
	}
	if eventType == models.EventPurchase && payload.Purchase != nil {
		src.ReferenceID = payload.Purchase.OrderID
		src.TriggerDetails = fmt.Sprintf("purchase total %.2f %s", payload.Purchase.TotalAmount, payload.Purchase.Currency)
	}
	return src
}

const (
	emailPrimaryMaxAttempts = 4
	inAppPrimaryMaxAttempts = 3
	pushPrimaryMaxAttempts  = 3
)
