package events

import (
	"encoding/json"
	"testing"
)

func TestEventMarshal(t *testing.T) {
	data, _ := json.Marshal(map[string]string{"message": "hello"})
	event := Event{
		Type:   "notification:new",
		UserID: "user789",
		Data:   data,
	}

	encoded, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if decoded.Type != "notification:new" {
		t.Errorf("type = %q, want %q", decoded.Type, "notification:new")
	}
	if decoded.UserID != "user789" {
		t.Errorf("user_id = %q, want %q", decoded.UserID, "user789")
	}

	var payload map[string]string
	if err := json.Unmarshal(decoded.Data, &payload); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if payload["message"] != "hello" {
		t.Errorf("data.message = %q, want %q", payload["message"], "hello")
	}
}

func TestEventMarshal_EmptyOptionals(t *testing.T) {
	data, _ := json.Marshal(nil)
	event := Event{
		Type: "pong",
		Data: data,
	}

	encoded, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	str := string(encoded)
	if contains(str, `"user_id"`) {
		t.Error("empty user_id should be omitted")
	}
}

func TestUserTopic(t *testing.T) {
	tests := []struct {
		userID string
		want   string
	}{
		{"u-42", "notifyhub.user.u-42"},
		{"", "notifyhub.user."},
	}

	for _, tc := range tests {
		t.Run(tc.userID, func(t *testing.T) {
			if got := UserTopic(tc.userID); got != tc.want {
				t.Errorf("UserTopic(%q) = %q, want %q", tc.userID, got, tc.want)
			}
		})
	}
}

func TestSubjectConstants(t *testing.T) {
	subjects := []string{
		SubjectNotificationDelivered, SubjectTokenStale, SubjectUserWildcard,
	}

	for _, s := range subjects {
		if s == "" {
			t.Error("empty subject constant")
		}
		if !contains(s, "notifyhub.") {
			t.Errorf("subject %q should contain 'notifyhub.'", s)
		}
	}
}

func TestEventJSON_Tags(t *testing.T) {
	data := []byte(`{"t":"TEST","user_id":"u","d":{"key":"val"}}`)
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if event.Type != "TEST" {
		t.Errorf("Type = %q, want %q", event.Type, "TEST")
	}
	if event.UserID != "u" {
		t.Errorf("UserID = %q, want %q", event.UserID, "u")
	}
}

func contains(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
