package tokens

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/amityvox/notifyhub/internal/models"
)

type fakeRepo struct {
	mu     sync.Mutex
	tokens map[string]*models.FcmToken
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{tokens: map[string]*models.FcmToken{}}
}

func (f *fakeRepo) CreateFcmToken(_ context.Context, t *models.FcmToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.tokens {
		if existing.Token == t.Token {
			existing.UserID = t.UserID
			existing.IsActive = true
			existing.IsStale = false
			existing.RefreshCount++
			return nil
		}
	}
	f.tokens[t.ID.String()] = t
	return nil
}

func (f *fakeRepo) GetFcmToken(_ context.Context, id string) (*models.FcmToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[id], nil
}

func (f *fakeRepo) ListActiveFcmTokensByUser(_ context.Context, userID string) ([]*models.FcmToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.FcmToken
	for _, t := range f.tokens {
		if t.UserID == userID && t.IsActive && !t.IsStale {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListFcmTokensByUser(_ context.Context, userID string) ([]*models.FcmToken, error) {
	return f.ListActiveFcmTokensByUser(context.Background(), userID)
}

func (f *fakeRepo) TouchFcmToken(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tokens[id]; ok {
		t.LastActivityAt = at
	}
	return nil
}

func (f *fakeRepo) MarkFcmTokenStale(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tokens[id]; ok {
		t.IsStale = true
		t.IsActive = false
	}
	return nil
}

func (f *fakeRepo) RecordFcmTokenError(_ context.Context, id string, tokenErr models.TokenError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tokens[id]; ok {
		t.Errors = append(t.Errors, tokenErr)
	}
	return nil
}

func (f *fakeRepo) UpdateFcmTokenStats(_ context.Context, id string, stats models.NotificationStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tokens[id]; ok {
		t.NotificationStats = stats
	}
	return nil
}

func (f *fakeRepo) DeleteFcmToken(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, id)
	return nil
}

func (f *fakeRepo) SweepStaleFcmTokens(_ context.Context, _ time.Duration, _ int) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) SweepExpiredFcmTokens(_ context.Context, _ int) (int64, error) {
	return 0, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validToken(suffix string) string {
	base := ""
	for len(base) < 100 {
		base += "a"
	}
	return base + suffix
}

func TestRegister_RejectsShortToken(t *testing.T) {
	reg := New(newFakeRepo(), testLogger())
	_, err := reg.Register(context.Background(), RegisterInput{UserID: "u1", Token: "short"})
	if err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRegister_Succeeds(t *testing.T) {
	repo := newFakeRepo()
	reg := New(repo, testLogger())
	tok, err := reg.Register(context.Background(), RegisterInput{UserID: "u1", Token: validToken("1")})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if tok.UserID != "u1" {
		t.Errorf("user id = %q, want u1", tok.UserID)
	}
	active, err := reg.ResolveActive(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ResolveActive: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active token, got %d", len(active))
	}
}

func TestClassifyProviderError(t *testing.T) {
	cases := map[string]ProviderErrorDisposition{
		"UNREGISTERED":     DispositionStale,
		"NOT_FOUND":        DispositionStale,
		"INTERNAL":         DispositionRetryable,
		"QUOTA_EXCEEDED":   DispositionRetryable,
	}
	for code, want := range cases {
		if got := ClassifyProviderError(code); got != want {
			t.Errorf("ClassifyProviderError(%q) = %q, want %q", code, got, want)
		}
	}
}

func TestHandleProviderError_MarksStale(t *testing.T) {
	repo := newFakeRepo()
	reg := New(repo, testLogger())
	tok, err := reg.Register(context.Background(), RegisterInput{UserID: "u1", Token: validToken("2")})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := reg.HandleProviderError(context.Background(), tok.ID.String(), "UNREGISTERED", "token not registered"); err != nil {
		t.Fatalf("HandleProviderError: %v", err)
	}

	active, _ := reg.ResolveActive(context.Background(), "u1")
	if len(active) != 0 {
		t.Errorf("expected stale token excluded from active set, got %d", len(active))
	}
}
