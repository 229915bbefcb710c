package workers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/amityvox/notifyhub/internal/emaildelivery"
	"github.com/amityvox/notifyhub/internal/models"
	"github.com/amityvox/notifyhub/internal/push"
	"github.com/amityvox/notifyhub/internal/queue"
)

func TestNotificationJobID(t *testing.T) {
	got := notificationJobID("01ARZ3", models.TierRetry1)
	want := "01ARZ3:retry-1"
	if got != want {
		t.Errorf("notificationJobID = %q, want %q", got, want)
	}
}

// fakeRepository is a compile-time check that the Repository interface is
// satisfiable by an in-memory implementation, mirroring the fakes used in
// internal/orchestrator and internal/tokens tests.
type fakeRepository struct {
	emails map[string]*models.EmailNotification
	inApps map[string]*models.InAppNotification
	pushes map[string]*models.PushNotification
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		emails: map[string]*models.EmailNotification{},
		inApps: map[string]*models.InAppNotification{},
		pushes: map[string]*models.PushNotification{},
	}
}

func (f *fakeRepository) GetEmailNotification(_ context.Context, id string) (*models.EmailNotification, error) {
	return f.emails[id], nil
}
func (f *fakeRepository) UpdateEmailNotification(_ context.Context, n *models.EmailNotification) error {
	f.emails[n.ID.String()] = n
	return nil
}
func (f *fakeRepository) GetInAppNotification(_ context.Context, id string) (*models.InAppNotification, error) {
	return f.inApps[id], nil
}
func (f *fakeRepository) UpdateInAppNotification(_ context.Context, n *models.InAppNotification) error {
	f.inApps[n.ID.String()] = n
	return nil
}
func (f *fakeRepository) GetPushNotification(_ context.Context, id string) (*models.PushNotification, error) {
	return f.pushes[id], nil
}
func (f *fakeRepository) UpdatePushNotification(_ context.Context, n *models.PushNotification) error {
	f.pushes[n.ID.String()] = n
	return nil
}
func (f *fakeRepository) UpdateSignupWelcomeEmailMirror(context.Context, string, models.MirrorSummary) error {
	return nil
}
func (f *fakeRepository) UpdateLoginAlertEmailMirror(context.Context, string, models.MirrorSummary) error {
	return nil
}
func (f *fakeRepository) UpdateLoginInAppMirror(context.Context, string, models.MirrorSummary) error {
	return nil
}
func (f *fakeRepository) UpdatePurchasePushMirror(context.Context, string, models.MirrorSummary) error {
	return nil
}
func (f *fakeRepository) UpdateFriendRequestMirror(context.Context, string, models.MirrorSummary) error {
	return nil
}
func (f *fakeRepository) UpdateResetPasswordMirror(context.Context, string, models.MirrorSummary) error {
	return nil
}

var _ Repository = (*fakeRepository)(nil)

// fakeEnqueuer records escalation enqueues without touching Redis.
type fakeEnqueuer struct {
	calls int
}

func (f *fakeEnqueuer) Enqueue(_ queue.TaskType, _ string, _ []byte, _ models.Channel, _ models.Tier, _ int) (*asynq.TaskInfo, error) {
	f.calls++
	return &asynq.TaskInfo{}, nil
}

var _ Enqueuer = (*fakeEnqueuer)(nil)

// fakeMailer stubs internal/emaildelivery's Client.
type fakeMailer struct {
	err       error
	messageID string
}

func (f *fakeMailer) Send(emaildelivery.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.messageID, nil
}

var _ Mailer = (*fakeMailer)(nil)

// fakeSockets stubs internal/socket's Service.
type fakeSockets struct {
	delivered bool
	socketID  string
	err       error
}

func (f *fakeSockets) Deliver(context.Context, string, string, string, string, string, any) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	return f.socketID, f.delivered, nil
}

var _ SocketDeliverer = (*fakeSockets)(nil)

// fakePush stubs internal/push's Client.
type fakePush struct {
	results []push.TokenResult
	err     error
}

func (f *fakePush) SendMulticast(context.Context, []string, push.Message) ([]push.TokenResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

var _ PushSender = (*fakePush)(nil)

// fakeTokens stubs internal/tokens' Registry.
type fakeTokens struct {
	active []*models.FcmToken
	err    error
}

func (f *fakeTokens) ResolveActive(context.Context, string) ([]*models.FcmToken, error) {
	return f.active, f.err
}
func (f *fakeTokens) RecordDelivery(context.Context, string, bool, bool, bool, bool) error { return nil }
func (f *fakeTokens) HandleProviderError(context.Context, string, string, string) error    { return nil }

var _ TokenResolver = (*fakeTokens)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- email handler: retry / escalation / DLQ ---

func TestEmailHandleSendFailureInTierRetry(t *testing.T) {
	repo := newFakeRepository()
	record := &models.EmailNotification{ID: models.NewULID(), CurrentQueue: models.TierPrimary, JobID: "job-1", Attempts: 1}
	repo.emails[record.ID.String()] = record
	enq := &fakeEnqueuer{}
	h := &emailHandler{deps: Deps{Repo: repo, QueueClient: enq, Logger: testLogger()}}

	payload := queue.JobPayload{NotificationID: record.ID.String(), EventType: models.EventSignup, Channel: models.ChannelEmail, Tier: models.TierPrimary}

	err := h.handleSendFailure(context.Background(), payload, record, time.Now().UTC(), errors.New("smtp timeout"), false)
	if err == nil {
		t.Fatal("expected error surfaced for asynq retry, got nil")
	}
	if record.Status != models.StatusPending {
		t.Errorf("status = %s, want pending", record.Status)
	}
	if record.CurrentQueue != models.TierPrimary {
		t.Errorf("current queue changed on in-tier retry: %s", record.CurrentQueue)
	}
	if enq.calls != 0 {
		t.Errorf("enqueuer called %d times, want 0 on in-tier retry", enq.calls)
	}
}

func TestEmailHandleSendFailureEscalatesToRetryTier(t *testing.T) {
	repo := newFakeRepository()
	record := &models.EmailNotification{ID: models.NewULID(), CurrentQueue: models.TierPrimary, JobID: "job-1"}
	repo.emails[record.ID.String()] = record
	enq := &fakeEnqueuer{}
	h := &emailHandler{deps: Deps{Repo: repo, QueueClient: enq, Logger: testLogger()}}

	payload := queue.JobPayload{NotificationID: record.ID.String(), EventType: models.EventSignup, Channel: models.ChannelEmail, Tier: models.TierPrimary}

	if err := h.handleSendFailure(context.Background(), payload, record, time.Now().UTC(), errors.New("smtp timeout"), true); err != nil {
		t.Fatalf("handleSendFailure: %v", err)
	}
	if record.CurrentQueue != models.TierRetry1 {
		t.Errorf("current queue = %s, want retry-1", record.CurrentQueue)
	}
	if record.Status != models.StatusPending {
		t.Errorf("status = %s, want pending (still in flight on retry-1)", record.Status)
	}
	if record.FailedAt != nil {
		t.Error("FailedAt set on a non-terminal escalation")
	}
	if enq.calls != 1 {
		t.Errorf("enqueuer called %d times, want 1 to enqueue the retry-1 job", enq.calls)
	}
}

func TestEmailHandleSendFailureEscalatesToDLQ(t *testing.T) {
	repo := newFakeRepository()
	record := &models.EmailNotification{ID: models.NewULID(), CurrentQueue: models.TierRetry2, JobID: "job-1"}
	repo.emails[record.ID.String()] = record
	enq := &fakeEnqueuer{}
	h := &emailHandler{deps: Deps{Repo: repo, QueueClient: enq, Logger: testLogger()}}

	payload := queue.JobPayload{NotificationID: record.ID.String(), EventType: models.EventSignup, Channel: models.ChannelEmail, Tier: models.TierRetry2}

	if err := h.handleSendFailure(context.Background(), payload, record, time.Now().UTC(), errors.New("smtp timeout"), true); err != nil {
		t.Fatalf("handleSendFailure: %v", err)
	}
	if record.CurrentQueue != models.TierDLQ {
		t.Errorf("current queue = %s, want dlq", record.CurrentQueue)
	}
	if record.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed the moment the record reaches dlq", record.Status)
	}
	if record.FailureReason != "max retries exceeded" {
		t.Errorf("failure reason = %q, want %q", record.FailureReason, "max retries exceeded")
	}
	if record.FailedAt == nil {
		t.Error("FailedAt not set on dlq escalation")
	}
	if enq.calls != 0 {
		t.Errorf("enqueuer called %d times, want 0: the dlq tier performs no further delivery", enq.calls)
	}
}

func TestEmailProcessTaskSuccess(t *testing.T) {
	repo := newFakeRepository()
	record := &models.EmailNotification{ID: models.NewULID(), CurrentQueue: models.TierPrimary, JobID: "job-1"}
	repo.emails[record.ID.String()] = record
	mailer := &fakeMailer{messageID: "abc@notifyhub"}
	h := &emailHandler{deps: Deps{Repo: repo, QueueClient: &fakeEnqueuer{}, Mailer: mailer, Logger: testLogger()}}

	payload := queue.JobPayload{NotificationID: record.ID.String(), EventType: models.EventSignup, Channel: models.ChannelEmail, Tier: models.TierPrimary}
	encoded, err := payload.Encode()
	if err != nil {
		t.Fatalf("encoding payload: %v", err)
	}

	if err := h.ProcessTask(context.Background(), asynq.NewTask(string(queue.TaskEmailDeliver), encoded)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if record.Status != models.StatusDelivered {
		t.Errorf("status = %s, want delivered", record.Status)
	}
	if record.MessageID != "abc@notifyhub" {
		t.Errorf("message id = %q, want %q", record.MessageID, "abc@notifyhub")
	}
}

// --- in-app handler: retry / escalation / DLQ ---

func TestInAppHandleDeliverFailureInTierRetry(t *testing.T) {
	repo := newFakeRepository()
	record := &models.InAppNotification{ID: models.NewULID(), CurrentQueue: models.TierPrimary, ExpiresAt: time.Now().Add(time.Hour)}
	repo.inApps[record.ID.String()] = record
	enq := &fakeEnqueuer{}
	h := &inAppHandler{deps: Deps{Repo: repo, QueueClient: enq, Logger: testLogger()}}

	payload := queue.JobPayload{NotificationID: record.ID.String(), EventType: models.EventLogin, Channel: models.ChannelInApp, Tier: models.TierPrimary}

	if err := h.handleDeliverFailure(context.Background(), payload, record, time.Now().UTC(), nil, false); err == nil {
		t.Fatal("expected error surfaced for asynq retry, got nil")
	}
	if record.Status != models.StatusQueued {
		t.Errorf("status = %s, want queued", record.Status)
	}
	if enq.calls != 0 {
		t.Errorf("enqueuer called %d times, want 0 on in-tier retry", enq.calls)
	}
}

func TestInAppHandleDeliverFailureEscalatesToDLQ(t *testing.T) {
	repo := newFakeRepository()
	record := &models.InAppNotification{ID: models.NewULID(), CurrentQueue: models.TierRetry2, ExpiresAt: time.Now().Add(time.Hour)}
	repo.inApps[record.ID.String()] = record
	enq := &fakeEnqueuer{}
	h := &inAppHandler{deps: Deps{Repo: repo, QueueClient: enq, Logger: testLogger()}}

	payload := queue.JobPayload{NotificationID: record.ID.String(), EventType: models.EventLogin, Channel: models.ChannelInApp, Tier: models.TierRetry2}

	if err := h.handleDeliverFailure(context.Background(), payload, record, time.Now().UTC(), errors.New("recipient not connected"), true); err != nil {
		t.Fatalf("handleDeliverFailure: %v", err)
	}
	if record.CurrentQueue != models.TierDLQ {
		t.Errorf("current queue = %s, want dlq", record.CurrentQueue)
	}
	if record.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", record.Status)
	}
	last := record.DeliveryHistory[len(record.DeliveryHistory)-1]
	if last.DeliveryMethod != "dlq" || last.Status != models.StatusFailed {
		t.Errorf("last delivery history entry = %+v, want a dlq/failed entry", last)
	}
	if enq.calls != 0 {
		t.Errorf("enqueuer called %d times, want 0: the dlq tier performs no further delivery", enq.calls)
	}
}

func TestInAppProcessTaskDelivered(t *testing.T) {
	repo := newFakeRepository()
	record := &models.InAppNotification{ID: models.NewULID(), CurrentQueue: models.TierPrimary, ExpiresAt: time.Now().Add(time.Hour)}
	repo.inApps[record.ID.String()] = record
	sockets := &fakeSockets{delivered: true, socketID: "sock-1"}
	h := &inAppHandler{deps: Deps{Repo: repo, QueueClient: &fakeEnqueuer{}, Sockets: sockets, Logger: testLogger()}}

	payload := queue.JobPayload{NotificationID: record.ID.String(), EventType: models.EventLogin, Channel: models.ChannelInApp, Tier: models.TierPrimary}
	encoded, err := payload.Encode()
	if err != nil {
		t.Fatalf("encoding payload: %v", err)
	}

	if err := h.ProcessTask(context.Background(), asynq.NewTask(string(queue.TaskInAppDeliver), encoded)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if record.Status != models.StatusDelivered {
		t.Errorf("status = %s, want delivered", record.Status)
	}
	if record.SocketID != "sock-1" {
		t.Errorf("socket id = %q, want sock-1", record.SocketID)
	}
}

// --- push handler: retry / escalation / DLQ ---

func TestPushFailWithFinalInTierRetry(t *testing.T) {
	repo := newFakeRepository()
	record := &models.PushNotification{ID: models.NewULID(), CurrentQueue: models.TierPrimary}
	repo.pushes[record.ID.String()] = record
	enq := &fakeEnqueuer{}
	h := &pushHandler{deps: Deps{Repo: repo, QueueClient: enq, Logger: testLogger()}}

	payload := queue.JobPayload{NotificationID: record.ID.String(), EventType: models.EventPurchase, Channel: models.ChannelPush, Tier: models.TierPrimary}

	if err := h.failWithFinal(context.Background(), payload, record, time.Now().UTC(), "no active push tokens for recipient", false); err == nil {
		t.Fatal("expected error surfaced for asynq retry, got nil")
	}
	if record.Status != models.StatusPending {
		t.Errorf("status = %s, want pending", record.Status)
	}
	if enq.calls != 0 {
		t.Errorf("enqueuer called %d times, want 0 on in-tier retry", enq.calls)
	}
}

func TestPushFailWithFinalEscalatesToDLQ(t *testing.T) {
	repo := newFakeRepository()
	record := &models.PushNotification{ID: models.NewULID(), CurrentQueue: models.TierRetry2}
	repo.pushes[record.ID.String()] = record
	enq := &fakeEnqueuer{}
	h := &pushHandler{deps: Deps{Repo: repo, QueueClient: enq, Logger: testLogger()}}

	payload := queue.JobPayload{NotificationID: record.ID.String(), EventType: models.EventPurchase, Channel: models.ChannelPush, Tier: models.TierRetry2}

	if err := h.failWithFinal(context.Background(), payload, record, time.Now().UTC(), "every token delivery failed", true); err != nil {
		t.Fatalf("failWithFinal: %v", err)
	}
	if record.CurrentQueue != models.TierDLQ {
		t.Errorf("current queue = %s, want dlq", record.CurrentQueue)
	}
	if record.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", record.Status)
	}
	if !record.DeliveryStatus.Failed {
		t.Error("DeliveryStatus.Failed not set on dlq escalation")
	}
	if record.FailureReason != "max retries exceeded" {
		t.Errorf("failure reason = %q, want %q", record.FailureReason, "max retries exceeded")
	}
	if enq.calls != 0 {
		t.Errorf("enqueuer called %d times, want 0: the dlq tier performs no further delivery", enq.calls)
	}
}

func TestPushProcessTaskSuccess(t *testing.T) {
	repo := newFakeRepository()
	record := &models.PushNotification{ID: models.NewULID(), CurrentQueue: models.TierPrimary, ExpiresAt: time.Now().Add(time.Hour), RecipientUserID: "user-1"}
	repo.pushes[record.ID.String()] = record
	tok := &models.FcmToken{ID: models.NewULID(), Token: "tok-1"}
	tokens := &fakeTokens{active: []*models.FcmToken{tok}}
	pushClient := &fakePush{results: []push.TokenResult{{Token: "tok-1", Success: true}}}
	h := &pushHandler{deps: Deps{Repo: repo, QueueClient: &fakeEnqueuer{}, Tokens: tokens, Push: pushClient, Logger: testLogger()}}

	payload := queue.JobPayload{NotificationID: record.ID.String(), EventType: models.EventPurchase, Channel: models.ChannelPush, Tier: models.TierPrimary}
	encoded, err := payload.Encode()
	if err != nil {
		t.Fatalf("encoding payload: %v", err)
	}

	if err := h.ProcessTask(context.Background(), asynq.NewTask(string(queue.TaskPushDeliver), encoded)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if record.Status != models.StatusSent {
		t.Errorf("status = %s, want sent", record.Status)
	}
	if record.ProviderResponse.SuccessCount != 1 {
		t.Errorf("success count = %d, want 1", record.ProviderResponse.SuccessCount)
	}
}

func TestPushProcessTaskNoActiveTokensEscalates(t *testing.T) {
	repo := newFakeRepository()
	record := &models.PushNotification{ID: models.NewULID(), CurrentQueue: models.TierPrimary, ExpiresAt: time.Now().Add(time.Hour), RecipientUserID: "user-1"}
	repo.pushes[record.ID.String()] = record
	tokens := &fakeTokens{}
	h := &pushHandler{deps: Deps{Repo: repo, QueueClient: &fakeEnqueuer{}, Tokens: tokens, Push: &fakePush{}, Logger: testLogger()}}

	payload := queue.JobPayload{NotificationID: record.ID.String(), EventType: models.EventPurchase, Channel: models.ChannelPush, Tier: models.TierPrimary}
	encoded, err := payload.Encode()
	if err != nil {
		t.Fatalf("encoding payload: %v", err)
	}

	// With no real asynq context, lastAttempt(ctx) reports true (final),
	// so the handler escalates from primary straight to retry-1.
	if err := h.ProcessTask(context.Background(), asynq.NewTask(string(queue.TaskPushDeliver), encoded)); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if record.CurrentQueue != models.TierRetry1 {
		t.Errorf("current queue = %s, want retry-1", record.CurrentQueue)
	}
	if record.FailureReason != "no active push tokens for recipient" {
		t.Errorf("failure reason = %q", record.FailureReason)
	}
}
