package socket

// MessageType is the closed set of frames exchanged over a socket
// connection (spec §4.5/§6).
type MessageType string

const (
	// Client -> server.
	MsgAuthenticate     MessageType = "authenticate"
	MsgNotificationAck  MessageType = "notification:ack"
	MsgNotificationRead MessageType = "notification:markRead"
	MsgPing             MessageType = "ping"

	// Server -> client.
	MsgAuthSuccess       MessageType = "auth:success"
	MsgAuthError         MessageType = "auth:error"
	MsgNotificationNew   MessageType = "notification:new"
	MsgNotificationsRead MessageType = "notifications:markedRead"
	MsgPong              MessageType = "pong"
)

// Message is one frame exchanged with a connected client.
type Message struct {
	Type    MessageType `json:"type"`
	Topic   string      `json:"topic,omitempty"`
	Payload any         `json:"payload,omitempty"`
}

// authenticatePayload is the body of a client's authenticate frame.
type authenticatePayload struct {
	UserID       string `json:"userId"`
	SessionToken string `json:"sessionToken"`
}

// authSuccessPayload is the body of the server's auth:success reply.
type authSuccessPayload struct {
	UserID string `json:"userId"`
}

// authErrorPayload is the body of the server's auth:error reply.
type authErrorPayload struct {
	Message string `json:"message"`
}

// markReadPayload is the body of a client's notification:markRead frame.
type markReadPayload struct {
	NotificationIDs []string `json:"notificationIds"`
}
