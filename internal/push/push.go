// Package push wraps the Firebase Cloud Messaging client used by the push
// channel worker (spec §4.4.3): multicast batching in groups of 500 tokens
// and per-token error classification feeding the token registry's
// disposition rules.
package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/amityvox/notifyhub/internal/config"
)

// maxTokensPerBatch is FCM's hard limit on tokens per multicast request.
const maxTokensPerBatch = 500

// Client wraps a Firebase messaging.Client.
type Client struct {
	messaging *messaging.Client
}

// New initializes the Firebase Admin SDK and returns a push Client.
func New(ctx context.Context, cfg config.FCMConfig) (*Client, error) {
	var opts []option.ClientOption
	var appCfg *firebase.Config
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.ProjectID != "" {
		appCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, appCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting messaging client: %w", err)
	}

	return &Client{messaging: client}, nil
}

// Message is the rendered content of one push notification, fanned out to
// every token in a recipient's active set.
type Message struct {
	Title       string
	Body        string
	Data        map[string]string
	ImageURL    string
	ClickAction string
}

// TokenResult is one token's disposition within a multicast send, plus the
// FCM error code classification the caller hands to tokens.ClassifyProviderError.
type TokenResult struct {
	Token     string
	Success   bool
	ErrorCode string
	Error     string
}

// SendMulticast fans msg out to every token, batching into groups of
// maxTokensPerBatch. Returns one TokenResult per input token, in order.
func (c *Client) SendMulticast(ctx context.Context, tokens []string, msg Message) ([]TokenResult, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	results := make([]TokenResult, 0, len(tokens))
	for start := 0; start < len(tokens); start += maxTokensPerBatch {
		end := start + maxTokensPerBatch
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]

		resp, err := c.messaging.SendEachForMulticast(ctx, buildMessage(batch, msg))
		if err != nil {
			for _, t := range batch {
				results = append(results, TokenResult{Token: t, Success: false, ErrorCode: "INTERNAL", Error: err.Error()})
			}
			continue
		}

		for i, r := range resp.Responses {
			tr := TokenResult{Token: batch[i], Success: r.Success}
			if !r.Success && r.Error != nil {
				tr.ErrorCode = classifyError(r.Error)
				tr.Error = r.Error.Error()
			}
			results = append(results, tr)
		}
	}

	return results, nil
}

func buildMessage(tokens []string, msg Message) *messaging.MulticastMessage {
	data := msg.Data
	if data == nil {
		data = map[string]string{}
	}
	if msg.ClickAction != "" {
		data["click_action"] = msg.ClickAction
	}

	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title:    msg.Title,
			Body:     msg.Body,
			ImageURL: msg.ImageURL,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}
}

// classifyError maps an FCM SDK error to the code vocabulary the tokens
// package's ClassifyProviderError switches on.
func classifyError(err error) string {
	switch {
	case messaging.IsUnregistered(err):
		return "UNREGISTERED"
	case messaging.IsSenderIDMismatch(err):
		return "SENDER_ID_MISMATCH"
	case messaging.IsInvalidArgument(err):
		return "INVALID_ARGUMENT"
	default:
		return "INTERNAL"
	}
}
