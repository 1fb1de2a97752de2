package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the webhook body.
const SignatureHeader = "X-Line-Signature"

// Webhook is the body LINE posts to the webhook endpoint.
type Webhook struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// Event is one webhook event. Only the fields used for text replies are decoded.
type Event struct {
	Type       string  `json:"type"`
	ReplyToken string  `json:"replyToken"`
	Timestamp  int64   `json:"timestamp"`
	Source     Source  `json:"source"`
	Message    Message `json:"message"`
}

// Source identifies who sent an event.
type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// Message is the message carried by a message event.
type Message struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

// IsText reports whether e is a text message event.
func (e Event) IsText() bool {
	return e.Type == "message" && e.Message.Type == "text"
}

// SessionID derives the chat session of the event sender.
func (e Event) SessionID() string {
	return "line:" + e.Source.UserID
}

// ParseWebhook decodes a webhook body.
func ParseWebhook(body []byte) (*Webhook, error) {
	var w Webhook
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("line: decode webhook: %w", err)
	}
	return &w, nil
}

// Sign returns the signature LINE computes for body with channelSecret.
func Sign(channelSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature authenticates body.
func VerifySignature(channelSecret string, body []byte, signature string) bool {
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
