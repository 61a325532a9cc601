// Package sms wraps the Twilio API for sending follow-up text messages.
package sms

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Sender sends one SMS and returns the provider message id.
type Sender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

// phoneNumberRegex strips everything that is not a digit or leading plus.
var phoneNumberRegex = regexp.MustCompile(`[^\d+]`)

// Opts holds configuration options for the Twilio SMS client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Option defines a configuration option for the Twilio SMS client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number in E.164 format.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// Client wraps the Twilio REST API for SMS.
type Client struct {
	client *twilio.RestClient
	from   string
}

// NewClient creates a Twilio SMS client. Options fall back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, and TWILIO_FROM_NUMBER environment
// variables.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio SMS client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{client: client, from: cfg.FromNumber}, nil
}

// CanonicalizeNumber validates and canonicalizes a phone number, keeping
// digits and a leading plus only.
func CanonicalizeNumber(number string) (string, error) {
	if number == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(number, "")
	if len(canonical) > 0 && canonical[0] != '+' {
		canonical = "+" + canonical
	}
	if len(canonical) < 7 {
		return "", fmt.Errorf("invalid phone number: %q is too short", number)
	}
	return canonical, nil
}

// SendSMS sends body to the given number and returns the Twilio message SID.
func (c *Client) SendSMS(ctx context.Context, to, body string) (string, error) {
	canonical, err := CanonicalizeNumber(to)
	if err != nil {
		slog.Error("Client.SendSMS: invalid recipient", "error", err, "to", to)
		return "", err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(canonical)
	params.SetFrom(c.from)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Client.SendSMS: send failed", "error", err, "to", canonical)
		return "", fmt.Errorf("failed to send SMS to %s: %w", canonical, err)
	}
	var sid string
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("Client.SendSMS: message sent", "to", canonical, "sid", sid)
	return sid, nil
}
