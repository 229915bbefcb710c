package push

import "testing"

func TestBuildMessage_SetsClickActionInData(t *testing.T) {
	m := buildMessage([]string{"tok1"}, Message{
		Title:       "Purchase confirmed",
		Body:        "Order #123",
		ClickAction: "/orders/123",
	})
	if m.Data["click_action"] != "/orders/123" {
		t.Errorf("click_action = %q, want /orders/123", m.Data["click_action"])
	}
	if m.Notification.Title != "Purchase confirmed" {
		t.Errorf("title = %q", m.Notification.Title)
	}
	if len(m.Tokens) != 1 || m.Tokens[0] != "tok1" {
		t.Errorf("tokens = %v", m.Tokens)
	}
}

func TestBuildMessage_NilDataInitialized(t *testing.T) {
	m := buildMessage([]string{"t"}, Message{Title: "x", Body: "y"})
	if m.Data == nil {
		t.Fatal("expected non-nil data map")
	}
}
