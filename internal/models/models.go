package models

import (
	"time"
)

// EventType is the closed set of business events that can drive a
// notification fan-out.
type EventType string

const (
	EventSignup        EventType = "signup"
	EventLogin         EventType = "login"
	EventResetPassword EventType = "reset_password"
	EventPurchase      EventType = "purchase"
	EventFriendRequest EventType = "friend_request"
)

// Valid reports whether the event type belongs to the closed set.
func (e EventType) Valid() bool {
	switch e {
	case EventSignup, EventLogin, EventResetPassword, EventPurchase, EventFriendRequest:
		return true
	}
	return false
}

// Priority returns the event type's numeric priority from the fixed table:
// reset_password=10, purchase=8, signup=5, login=3, friend_request=2. The
// value is carried in each job payload; queue.Client.Enqueue does not use
// it, so jobs within a queue are not reordered by priority.
func (e EventType) Priority() int {
	switch e {
	case EventResetPassword:
		return 10
	case EventPurchase:
		return 8
	case EventSignup:
		return 5
	case EventLogin:
		return 3
	case EventFriendRequest:
		return 2
	default:
		return 0
	}
}

// Channel is the closed set of delivery channels.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "in_app"
	ChannelPush  Channel = "push"
)

// EnabledChannels is the fixed event-type -> channel-set mapping. No dynamic
// subscription layer exists; this table is authoritative.
var EnabledChannels = map[EventType][]Channel{
	EventSignup:        {ChannelEmail},
	EventLogin:         {ChannelEmail, ChannelInApp},
	EventResetPassword: {ChannelEmail},
	EventPurchase:      {ChannelPush},
	EventFriendRequest: {ChannelInApp},
}

// Tier is one of the four queue tiers in a channel family.
type Tier string

const (
	TierPrimary Tier = "primary"
	TierRetry1  Tier = "retry-1"
	TierRetry2  Tier = "retry-2"
	TierDLQ     Tier = "dlq"
)

// Next returns the tier that follows t in the escalation chain, and whether
// one exists (false for dlq, the terminal tier).
func (t Tier) Next() (Tier, bool) {
	switch t {
	case TierPrimary:
		return TierRetry1, true
	case TierRetry1:
		return TierRetry2, true
	case TierRetry2:
		return TierDLQ, true
	default:
		return "", false
	}
}

// RecordStatus is the shared status vocabulary; not every value applies to
// every channel (push additionally uses "sent"/"clicked", in-app uses
// "queued"/"expired").
type RecordStatus string

const (
	StatusPending    RecordStatus = "pending"
	StatusProcessing RecordStatus = "processing"
	StatusQueued     RecordStatus = "queued"
	StatusSent       RecordStatus = "sent"
	StatusDelivered  RecordStatus = "delivered"
	StatusFailed     RecordStatus = "failed"
	StatusExpired    RecordStatus = "expired"
	StatusClicked    RecordStatus = "clicked"
)

// RetryHistoryEntry is one entry of EmailNotification's retry history.
type RetryHistoryEntry struct {
	Attempt   int       `json:"attempt"`
	Timestamp time.Time `json:"timestamp"`
	Queue     Tier      `json:"queue"`
	Error     string    `json:"error,omitempty"`
}

// EscalationHistoryEntry records one worker-initiated tier transition.
type EscalationHistoryEntry struct {
	FromQueue Tier      `json:"from_queue"`
	ToQueue   Tier      `json:"to_queue"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
	Attempts  int       `json:"attempts"`
}

// EmailRecipient identifies the target of an EmailNotification.
type EmailRecipient struct {
	Email    string `json:"email"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// EmailBody holds the rendered HTML and plain-text fallback.
type EmailBody struct {
	HTML string `json:"html"`
	Text string `json:"text"`
}

// EmailNotification is the tracking record for one email delivery attempt
// lifecycle. See invariants I1-I4 and X1-X2 in the data model.
type EmailNotification struct {
	ID                ULID                     `json:"id"`
	EventType         EventType                `json:"event_type"`
	Recipient         EmailRecipient           `json:"recipient"`
	Subject           string                   `json:"subject"`
	Body              EmailBody                `json:"body"`
	Status            RecordStatus             `json:"status"`
	Attempts          int                      `json:"attempts"`
	MaxAttempts       int                      `json:"max_attempts"`
	CurrentQueue      Tier                     `json:"current_queue_name"`
	JobID             string                   `json:"job_id"`
	LastAttemptAt     *time.Time               `json:"last_attempt_at,omitempty"`
	DeliveredAt       *time.Time               `json:"delivered_at,omitempty"`
	FailedAt          *time.Time               `json:"failed_at,omitempty"`
	FailureReason     string                   `json:"failure_reason,omitempty"`
	RetryHistory      []RetryHistoryEntry      `json:"retry_history"`
	EscalationHistory []EscalationHistoryEntry `json:"escalation_history"`
	MessageID         string                   `json:"message_id,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

// DeliveryHistoryEntry is one entry of InAppNotification's delivery history.
type DeliveryHistoryEntry struct {
	Attempt        int          `json:"attempt"`
	Timestamp      time.Time    `json:"timestamp"`
	Status         RecordStatus `json:"status"`
	SocketID       string       `json:"socket_id,omitempty"`
	DeliveryMethod string       `json:"delivery_method,omitempty"`
	Queue          Tier         `json:"queue"`
}

// InAppPriority mirrors the in-app notification's own priority vocabulary,
// distinct from the numeric EventType.Priority.
type InAppPriority string

const (
	InAppLow    InAppPriority = "low"
	InAppNormal InAppPriority = "normal"
	InAppHigh   InAppPriority = "high"
	InAppUrgent InAppPriority = "urgent"
)

// InAppNotification is the tracking record for one in-app (socket) delivery
// attempt lifecycle.
type InAppNotification struct {
	ID                ULID                     `json:"id"`
	EventType         EventType                `json:"event_type"`
	RecipientUserID   string                   `json:"recipient_user_id"`
	Title             string                   `json:"title"`
	Message           string                   `json:"message"`
	Data              map[string]any           `json:"data,omitempty"`
	Priority          InAppPriority            `json:"priority"`
	Status            RecordStatus             `json:"status"`
	IsRead            bool                     `json:"is_read"`
	SocketID          string                   `json:"socket_id,omitempty"`
	CurrentQueue      Tier                     `json:"current_queue_name"`
	Attempts          int                      `json:"attempts"`
	MaxAttempts       int                      `json:"max_attempts"`
	MirrorKey         string                   `json:"-"`
	ExpiresAt         time.Time                `json:"expires_at"`
	DeliveryHistory   []DeliveryHistoryEntry   `json:"delivery_history"`
	EscalationHistory []EscalationHistoryEntry `json:"escalation_history"`
	CreatedAt         time.Time                `json:"created_at"`
}

// PushDeliveryStatus are the per-disposition flags of a PushNotification.
type PushDeliveryStatus struct {
	Sent      bool `json:"sent"`
	Delivered bool `json:"delivered"`
	Clicked   bool `json:"clicked"`
	Failed    bool `json:"failed"`
}

// PushTokenResult is one token's disposition within a multicast attempt.
type PushTokenResult struct {
	Token   string `json:"token"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PushProviderResponse summarizes one FCM multicast invocation.
type PushProviderResponse struct {
	SuccessCount int               `json:"success_count"`
	FailureCount int               `json:"failure_count"`
	Results      []PushTokenResult `json:"results,omitempty"`
}

// PushSource records what business entity triggered this push.
type PushSource struct {
	Type           string `json:"type"`
	ReferenceID    string `json:"reference_id"`
	ReferenceModel string `json:"reference_model"`
	TriggerDetails string `json:"trigger_details,omitempty"`
}

// PushTimestamps groups the lifecycle timestamps of a PushNotification.
type PushTimestamps struct {
	SentAt        *time.Time `json:"sent_at,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	ClickedAt     *time.Time `json:"clicked_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// PushNotification is the tracking record for one push delivery attempt
// lifecycle.
type PushNotification struct {
	ID                ULID                     `json:"id"`
	EventType         EventType                `json:"event_type"`
	RecipientUserID   string                   `json:"recipient_user_id"`
	Title             string                   `json:"title"`
	Body              string                   `json:"body"`
	Data              map[string]any           `json:"data,omitempty"`
	ImageURL          string                   `json:"image_url,omitempty"`
	ClickAction       string                   `json:"click_action,omitempty"`
	Priority          InAppPriority            `json:"priority"`
	Status            RecordStatus             `json:"status"`
	DeliveryStatus    PushDeliveryStatus       `json:"delivery_status"`
	Attempts          int                      `json:"attempts"`
	MaxAttempts       int                      `json:"max_attempts"`
	CurrentQueue      Tier                     `json:"current_queue_name"`
	ProviderResponse  PushProviderResponse     `json:"provider_response"`
	Source            PushSource              `json:"source"`
	ExpiresAt         time.Time                `json:"expires_at"`
	Timestamps        PushTimestamps           `json:"timestamps"`
	EscalationHistory []EscalationHistoryEntry `json:"escalation_history"`
	FailureReason     string                   `json:"failure_reason,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
}

// MirrorSummary is the eventually-consistent summary embedded into an
// originating business entity. The tracking record is the source of truth;
// the mirror is updated tracking-record-first, mirror-second.
type MirrorSummary struct {
	Status          RecordStatus           `json:"status"`
	Attempts        int                    `json:"attempts"`
	LastAttemptAt   *time.Time             `json:"last_attempt_at,omitempty"`
	DeliveredAt     *time.Time             `json:"delivered_at,omitempty"`
	FailedAt        *time.Time             `json:"failed_at,omitempty"`
	FailureReason   string                 `json:"failure_reason,omitempty"`
	QueueJobID      string                 `json:"queue_job_id,omitempty"`
	NotificationID  string                 `json:"notification_id,omitempty"`
	DeliveryHistory []DeliveryHistoryEntry `json:"delivery_history,omitempty"`
}

// Signup is the minimal business entity that originates a signup event.
type Signup struct {
	ID           ULID          `json:"id"`
	UserID       string        `json:"user_id"`
	Username     string        `json:"username"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"`
	WelcomeEmail MirrorSummary `json:"welcome_email"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Login is the minimal business entity that originates a login event.
type Login struct {
	ID                     ULID          `json:"id"`
	UserID                 string        `json:"user_id"`
	IPAddress              string        `json:"ip_address,omitempty"`
	LoginAlertEmail        MirrorSummary `json:"login_alert_email"`
	LoginInAppNotification MirrorSummary `json:"login_in_app_notification"`
	CreatedAt              time.Time     `json:"created_at"`
}

// PurchaseItem is one line item of a Purchase.
type PurchaseItem struct {
	SKU      string  `json:"sku"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Purchase is the minimal business entity that originates a purchase event.
type Purchase struct {
	ID                       ULID           `json:"id"`
	UserID                   string         `json:"user_id"`
	OrderID                  string         `json:"order_id"`
	TotalAmount              float64        `json:"total_amount"`
	Currency                 string         `json:"currency"`
	Items                    []PurchaseItem `json:"items,omitempty"`
	PurchasePushNotification MirrorSummary  `json:"purchase_push_notification"`
	CreatedAt                time.Time      `json:"created_at"`
}

// FriendRequest is the minimal business entity that originates a
// friend-request event.
type FriendRequest struct {
	ID                             ULID          `json:"id"`
	FromUserID                     string        `json:"from_user_id"`
	ToUserID                       string        `json:"to_user_id"`
	FriendRequestInAppNotification MirrorSummary `json:"friend_request_in_app_notification"`
	CreatedAt                      time.Time     `json:"created_at"`
}

// ResetPassword is the minimal business entity that originates a
// reset_password event.
type ResetPassword struct {
	ID         ULID          `json:"id"`
	UserID     string        `json:"user_id"`
	Token      string        `json:"token"`
	ResetEmail MirrorSummary `json:"reset_email"`
	CreatedAt  time.Time     `json:"created_at"`
}

// DevicePlatform is the closed set of FcmToken device platforms.
type DevicePlatform string

const (
	PlatformWeb     DevicePlatform = "web"
	PlatformAndroid DevicePlatform = "android"
	PlatformIOS     DevicePlatform = "ios"
)

// DeviceInfo describes the device a token was registered from.
type DeviceInfo struct {
	Platform    DevicePlatform `json:"platform"`
	Browser     string         `json:"browser,omitempty"`
	OS          string         `json:"os,omitempty"`
	DeviceModel string         `json:"device_model,omitempty"`
	AppVersion  string         `json:"app_version,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
}

// TokenPermissions are per-channel delivery opt-ins for a token.
type TokenPermissions struct {
	Email bool `json:"email"`
	InApp bool `json:"in_app"`
	Push  bool `json:"push"`
}

// TokenError is one provider error recorded against a token.
type TokenError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Resolved  bool      `json:"resolved"`
}

// NotificationStats tracks per-token delivery counters.
type NotificationStats struct {
	Sent            int        `json:"sent"`
	Delivered       int        `json:"delivered"`
	Clicked         int        `json:"clicked"`
	Failed          int        `json:"failed"`
	LastSentAt      *time.Time `json:"last_sent_at,omitempty"`
	LastDeliveredAt *time.Time `json:"last_delivered_at,omitempty"`
	LastClickedAt   *time.Time `json:"last_clicked_at,omitempty"`
	LastFailedAt    *time.Time `json:"last_failed_at,omitempty"`
}

// FcmToken is a registered push device token and its lifecycle state.
type FcmToken struct {
	ID                ULID              `json:"id"`
	UserID            string            `json:"user_id"`
	Token             string            `json:"token"`
	DeviceInfo        DeviceInfo        `json:"device_info"`
	Permissions       TokenPermissions  `json:"permissions"`
	IsActive          bool              `json:"is_active"`
	IsStale           bool              `json:"is_stale"`
	LastActivityAt    time.Time         `json:"last_activity_at"`
	RefreshCount      int               `json:"refresh_count"`
	NotificationStats NotificationStats `json:"notification_stats"`
	Errors            []TokenError      `json:"errors,omitempty"`
	ExpiresAt         time.Time         `json:"expires_at"`
	CreatedAt         time.Time         `json:"created_at"`
}

// TokenStaleAfter is the inactivity window after which a token is marked
// stale and excluded from delivery resolution.
const TokenStaleAfter = 30 * 24 * time.Hour

// InAppExpiresAfter is the default lifetime of an InAppNotification.
const InAppExpiresAfter = 24 * time.Hour

// PushExpiresAfter is the default lifetime of a PushNotification.
const PushExpiresAfter = 7 * 24 * time.Hour
