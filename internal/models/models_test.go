package models

import "testing"

func TestEventTypeValid(t *testing.T) {
	tests := []struct {
		name  string
		event EventType
		want  bool
	}{
		{"signup", EventSignup, true},
		{"login", EventLogin, true},
		{"reset_password", EventResetPassword, true},
		{"purchase", EventPurchase, true},
		{"friend_request", EventFriendRequest, true},
		{"unknown", EventType("logout"), false},
		{"empty", EventType(""), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.event.Valid(); got != tc.want {
				t.Errorf("Valid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEventTypePriority(t *testing.T) {
	tests := []struct {
		event EventType
		want  int
	}{
		{EventResetPassword, 10},
		{EventPurchase, 8},
		{EventSignup, 5},
		{EventLogin, 3},
		{EventFriendRequest, 2},
		{EventType("unknown"), 0},
	}

	for _, tc := range tests {
		t.Run(string(tc.event), func(t *testing.T) {
			if got := tc.event.Priority(); got != tc.want {
				t.Errorf("Priority() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestEnabledChannelsMapping(t *testing.T) {
	tests := []struct {
		event EventType
		want  []Channel
	}{
		{EventSignup, []Channel{ChannelEmail}},
		{EventLogin, []Channel{ChannelEmail, ChannelInApp}},
		{EventResetPassword, []Channel{ChannelEmail}},
		{EventPurchase, []Channel{ChannelPush}},
		{EventFriendRequest, []Channel{ChannelInApp}},
	}

	for _, tc := range tests {
		t.Run(string(tc.event), func(t *testing.T) {
			got := EnabledChannels[tc.event]
			if len(got) != len(tc.want) {
				t.Fatalf("EnabledChannels[%s] = %v, want %v", tc.event, got, tc.want)
			}
			for i, ch := range got {
				if ch != tc.want[i] {
					t.Errorf("EnabledChannels[%s][%d] = %v, want %v", tc.event, i, ch, tc.want[i])
				}
			}
		})
	}
}

func TestTierNext(t *testing.T) {
	tests := []struct {
		name   string
		tier   Tier
		next   Tier
		hasNext bool
	}{
		{"primary to retry-1", TierPrimary, TierRetry1, true},
		{"retry-1 to retry-2", TierRetry1, TierRetry2, true},
		{"retry-2 to dlq", TierRetry2, TierDLQ, true},
		{"dlq is terminal", TierDLQ, "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, ok := tc.tier.Next()
			if ok != tc.hasNext {
				t.Errorf("Next() ok = %v, want %v", ok, tc.hasNext)
			}
			if ok && next != tc.next {
				t.Errorf("Next() = %v, want %v", next, tc.next)
			}
		})
	}
}
