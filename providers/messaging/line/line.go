package line

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultBaseURL is the LINE Messaging API endpoint.
	DefaultBaseURL = "https://api.line.me"

	replyPath      = "/v2/bot/message/reply"
	defaultTimeout = 10 * time.Second
)

var (
	// ErrMissingToken is returned when no channel access token is configured.
	ErrMissingToken = errors.New("line: channel access token is empty")
	// ErrMissingReplyToken is returned when an event carries no reply token.
	ErrMissingReplyToken = errors.New("line: reply token is empty")
)

// Client sends reply messages on behalf of one LINE channel.
type Client struct {
	http *resty.Client
}

// Option configures a Client.
type Option func(*resty.Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *resty.Client) {
		c.SetBaseURL(url)
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) {
		c.SetTimeout(d)
	}
}

// New returns a Client authenticating with token. When token is empty the
// LINE_CHANNEL_ACCESS_TOKEN environment variable is used.
func New(token string, opts ...Option) (*Client, error) {
	if token == "" {
		token = os.Getenv("LINE_CHANNEL_ACCESS_TOKEN")
	}
	if token == "" {
		return nil, ErrMissingToken
	}

	hc := resty.New().
		SetBaseURL(DefaultBaseURL).
		SetTimeout(defaultTimeout).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(token)
	for _, opt := range opts {
		opt(hc)
	}
	return &Client{http: hc}, nil
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []textMessage `json:"messages"`
}

// APIError is the error body returned by the Messaging API.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Details    []struct {
		Message  string `json:"message"`
		Property string `json:"property"`
	} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("line: %s (status %d): %s %s", e.Message, e.StatusCode, e.Details[0].Property, e.Details[0].Message)
	}
	return fmt.Sprintf("line: %s (status %d)", e.Message, e.StatusCode)
}

// ReplyText answers the event identified by replyToken with one text message.
func (c *Client) ReplyText(ctx context.Context, replyToken, text string) error {
	if replyToken == "" {
		return ErrMissingReplyToken
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(replyRequest{
			ReplyToken: replyToken,
			Messages:   []textMessage{{Type: "text", Text: text}},
		}).
		SetError(&APIError{}).
		Post(replyPath)
	if err != nil {
		return fmt.Errorf("line: reply: %w", err)
	}
	if resp.IsError() {
		if apiErr, ok := resp.Error().(*APIError); ok && apiErr.Message != "" {
			apiErr.StatusCode = resp.StatusCode()
			return apiErr
		}
		return &APIError{StatusCode: resp.StatusCode(), Message: resp.Status()}
	}
	return nil
}
