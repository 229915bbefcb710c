package orchestrator

import (
	"fmt"

	"github.com/amityvox/notifyhub/internal/models"
)

// renderEmailBody dispatches on event type to produce a deterministic
// subject + HTML/text body pair (spec §4.3 step 2).
func renderEmailBody(eventType models.EventType, payload EventPayload) (subject, html, text string) {
	switch eventType {
	case models.EventSignup:
		username := ""
		if payload.Signup != nil {
			username = payload.Signup.Username
		}
		subject = "Welcome to notifyhub"
		text = fmt.Sprintf("Hi %s, your account is ready.", username)
		html = fmt.Sprintf("<p>Hi %s, your account is ready.</p>", username)
	case models.EventLogin:
		ip := ""
		if payload.Login != nil {
			ip = payload.Login.IPAddress
		}
		subject = "New sign-in to your account"
		text = fmt.Sprintf("We noticed a new sign-in from %s. If this wasn't you, reset your password.", ip)
		html = fmt.Sprintf("<p>We noticed a new sign-in from %s. If this wasn't you, reset your password.</p>", ip)
	case models.EventResetPassword:
		token := ""
		if payload.ResetPassword != nil {
			token = payload.ResetPassword.Token
		}
		subject = "Reset your password"
		text = fmt.Sprintf("Use this code to reset your password: %s", token)
		html = fmt.Sprintf("<p>Use this code to reset your password: <strong>%s</strong></p>", token)
	default:
		subject = "Notification"
		text = "You have a new notification."
		html = "<p>You have a new notification.</p>"
	}
	return subject, html, text
}

// renderInAppBody dispatches on event type to produce a title + message +
// data blob.
func renderInAppBody(eventType models.EventType, payload EventPayload) (title, message string, data map[string]any) {
	switch eventType {
	case models.EventLogin:
		ip := ""
		if payload.Login != nil {
			ip = payload.Login.IPAddress
		}
		title = "New sign-in"
		message = fmt.Sprintf("Your account was accessed from %s.", ip)
		data = map[string]any{"ip_address": ip}
	case models.EventFriendRequest:
		from := ""
		if payload.FriendRequest != nil {
			from = payload.FriendRequest.FromUserID
		}
		title = "New friend request"
		message = fmt.Sprintf("%s sent you a friend request.", from)
		data = map[string]any{"from_user_id": from}
	default:
		title = "Notification"
		message = "You have a new notification."
		data = map[string]any{}
	}
	return title, message, data
}

// renderPushBody dispatches on event type to produce a title + body + image
// + click-action.
func renderPushBody(eventType models.EventType, payload EventPayload) (title, body, imageURL, clickAction string) {
	switch eventType {
	case models.EventPurchase:
		orderID, total, currency := "", 0.0, ""
		if payload.Purchase != nil {
			orderID = payload.Purchase.OrderID
			total = payload.Purchase.TotalAmount
			currency = payload.Purchase.Currency
		}
		title = "Purchase confirmed"
		body = fmt.Sprintf("Order %s for %.2f %s is confirmed.", orderID, total, currency)
		clickAction = "/orders/" + orderID
	default:
		title = "Notification"
		body = "You have a new notification."
	}
	return title, body, imageURL, clickAction
}
