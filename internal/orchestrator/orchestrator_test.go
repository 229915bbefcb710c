package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/amityvox/notifyhub/internal/config"
	"github.com/amityvox/notifyhub/internal/models"
	"github.com/amityvox/notifyhub/internal/queue"
)

// fakeRepository is an in-memory Repository used so orchestrator tests
// don't require a live Postgres instance.
type fakeRepository struct {
	mu             sync.Mutex
	emails         map[string]*models.EmailNotification
	inApp          map[string]*models.InAppNotification
	push           map[string]*models.PushNotification
	signupMirrors  map[string]models.MirrorSummary
	loginAlert     map[string]models.MirrorSummary
	loginInApp     map[string]models.MirrorSummary
	purchaseMirror map[string]models.MirrorSummary
	friendMirror   map[string]models.MirrorSummary
	resetMirror    map[string]models.MirrorSummary
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		emails:         map[string]*models.EmailNotification{},
		inApp:          map[string]*models.InAppNotification{},
		push:           map[string]*models.PushNotification{},
		signupMirrors:  map[string]models.MirrorSummary{},
		loginAlert:     map[string]models.MirrorSummary{},
		loginInApp:     map[string]models.MirrorSummary{},
		purchaseMirror: map[string]models.MirrorSummary{},
		friendMirror:   map[string]models.MirrorSummary{},
		resetMirror:    map[string]models.MirrorSummary{},
	}
}

func (f *fakeRepository) CreateEmailNotification(_ context.Context, n *models.EmailNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails[n.ID.String()] = n
	return nil
}

func (f *fakeRepository) UpdateEmailNotification(_ context.Context, n *models.EmailNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails[n.ID.String()] = n
	return nil
}

func (f *fakeRepository) CreateInAppNotification(_ context.Context, n *models.InAppNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inApp[n.ID.String()] = n
	return nil
}

func (f *fakeRepository) UpdateInAppNotification(_ context.Context, n *models.InAppNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inApp[n.ID.String()] = n
	return nil
}

func (f *fakeRepository) CreatePushNotification(_ context.Context, n *models.PushNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.push[n.ID.String()] = n
	return nil
}

func (f *fakeRepository) UpdatePushNotification(_ context.Context, n *models.PushNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.push[n.ID.String()] = n
	return nil
}

func (f *fakeRepository) UpdateSignupWelcomeEmailMirror(_ context.Context, userID string, mirror models.MirrorSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signupMirrors[userID] = mirror
	return nil
}

func (f *fakeRepository) UpdateLoginAlertEmailMirror(_ context.Context, loginID string, mirror models.MirrorSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginAlert[loginID] = mirror
	return nil
}

func (f *fakeRepository) UpdateLoginInAppMirror(_ context.Context, loginID string, mirror models.MirrorSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginInApp[loginID] = mirror
	return nil
}

func (f *fakeRepository) UpdatePurchasePushMirror(_ context.Context, orderID string, mirror models.MirrorSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchaseMirror[orderID] = mirror
	return nil
}

func (f *fakeRepository) UpdateFriendRequestMirror(_ context.Context, id string, mirror models.MirrorSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.friendMirror[id] = mirror
	return nil
}

func (f *fakeRepository) UpdateResetPasswordMirror(_ context.Context, token string, mirror models.MirrorSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetMirror[token] = mirror
	return nil
}

func newTestQueueClient(t *testing.T) *queue.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	qc, err := queue.NewClient("redis://"+mr.Addr(), testQueueConfig())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { qc.Close() })
	return qc
}

func testQueueConfig() config.QueueConfig {
	tier := config.TierConfig{Delay: "0", MaxAttempts: 3, Concurrency: 5}
	family := config.ChannelQueueConfig{Primary: tier, Retry1: tier, Retry2: tier, DLQ: tier}
	return config.QueueConfig{Email: family, InApp: family, Push: family}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatch_Signup(t *testing.T) {
	repo := newFakeRepository()
	qc := newTestQueueClient(t)
	orch := New(repo, qc, testLogger())

	results, err := orch.Dispatch(context.Background(), models.EventSignup, EventPayload{
		Signup: &SignupData{UserID: "u1", Username: "alice", Email: "alice@example.com"},
	}, DispatchContext{SourceEntityID: "signup-1"})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 channel result, got %d", len(results))
	}
	result, ok := results[models.ChannelEmail]
	if !ok {
		t.Fatal("expected email channel result")
	}
	if !result.Success {
		t.Errorf("expected success, got reason %q", result.Reason)
	}
	if result.NotificationID == "" {
		t.Error("expected notification id to be set")
	}

	if len(repo.emails) != 1 {
		t.Fatalf("expected 1 email notification created, got %d", len(repo.emails))
	}
	for _, n := range repo.emails {
		if n.Status != models.StatusPending {
			t.Errorf("status = %q, want pending", n.Status)
		}
		if n.Subject == "" {
			t.Error("expected non-empty subject")
		}
	}
	if _, ok := repo.signupMirrors["u1"]; !ok {
		t.Error("expected signup mirror to be updated")
	}
}

func TestDispatch_Login_EnablesEmailAndInApp(t *testing.T) {
	repo := newFakeRepository()
	qc := newTestQueueClient(t)
	orch := New(repo, qc, testLogger())

	results, err := orch.Dispatch(context.Background(), models.EventLogin, EventPayload{
		Login: &LoginData{UserID: "u7", Email: "u7@example.com", IPAddress: "10.0.0.1"},
	}, DispatchContext{SourceEntityID: "login-1"})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 channel results (email, in_app), got %d", len(results))
	}
	for _, channel := range []models.Channel{models.ChannelEmail, models.ChannelInApp} {
		result, ok := results[channel]
		if !ok {
			t.Fatalf("expected %s channel result", channel)
		}
		if !result.Success {
			t.Errorf("%s: expected success, got reason %q", channel, result.Reason)
		}
	}
}

func TestDispatch_InvalidEventType(t *testing.T) {
	repo := newFakeRepository()
	qc := newTestQueueClient(t)
	orch := New(repo, qc, testLogger())

	_, err := orch.Dispatch(context.Background(), models.EventType("bogus"), EventPayload{}, DispatchContext{})
	if err == nil {
		t.Fatal("expected validation error for unknown event type")
	}
	var verr *ValidationError
	if !asValidationError(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
}

func asValidationError(err error, target **ValidationError) bool {
	if ve, ok := err.(*ValidationError); ok {
		*target = ve
		return true
	}
	return false
}

func TestDispatch_MissingPayload(t *testing.T) {
	repo := newFakeRepository()
	qc := newTestQueueClient(t)
	orch := New(repo, qc, testLogger())

	_, err := orch.Dispatch(context.Background(), models.EventPurchase, EventPayload{}, DispatchContext{})
	if err == nil {
		t.Fatal("expected validation error for missing purchase payload")
	}
}

func TestDispatch_FriendRequest(t *testing.T) {
	repo := newFakeRepository()
	qc := newTestQueueClient(t)
	orch := New(repo, qc, testLogger())

	results, err := orch.Dispatch(context.Background(), models.EventFriendRequest, EventPayload{
		FriendRequest: &FriendRequestData{FromUserID: "u1", ToUserID: "u2"},
	}, DispatchContext{SourceEntityID: "fr-1"})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	result := results[models.ChannelInApp]
	if !result.Success {
		t.Errorf("expected success, got reason %q", result.Reason)
	}

	for _, n := range repo.inApp {
		if n.ExpiresAt.IsZero() {
			t.Error("expected expires_at to be set")
		}
		if n.MirrorKey != "fr-1" {
			t.Errorf("mirror key = %q, want %q", n.MirrorKey, "fr-1")
		}
	}
}

func TestDispatch_Purchase(t *testing.T) {
	repo := newFakeRepository()
	qc := newTestQueueClient(t)
	orch := New(repo, qc, testLogger())

	results, err := orch.Dispatch(context.Background(), models.EventPurchase, EventPayload{
		Purchase: &PurchaseData{UserID: "u3", OrderID: "order-1", TotalAmount: 19.99, Currency: "USD"},
	}, DispatchContext{SourceEntityID: "order-1"})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	result, ok := results[models.ChannelPush]
	if !ok {
		t.Fatal("expected push channel result")
	}
	if !result.Success {
		t.Errorf("expected success, got reason %q", result.Reason)
	}
	if len(repo.push) != 1 {
		t.Fatalf("expected 1 push notification created, got %d", len(repo.push))
	}
	if _, ok := repo.purchaseMirror["order-1"]; !ok {
		t.Error("expected purchase mirror to be updated")
	}
}

func TestDispatch_ResetPassword(t *testing.T) {
	repo := newFakeRepository()
	qc := newTestQueueClient(t)
	orch := New(repo, qc, testLogger())

	results, err := orch.Dispatch(context.Background(), models.EventResetPassword, EventPayload{
		ResetPassword: &ResetPasswordData{UserID: "u4", Email: "u4@example.com", Token: "reset-tok"},
	}, DispatchContext{SourceEntityID: "reset-tok"})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	result, ok := results[models.ChannelEmail]
	if !ok {
		t.Fatal("expected email channel result")
	}
	if !result.Success {
		t.Errorf("expected success, got reason %q", result.Reason)
	}
	if _, ok := repo.resetMirror["reset-tok"]; !ok {
		t.Error("expected reset password mirror to be updated")
	}
}
