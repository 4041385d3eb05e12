// Package email sends transactional mail through the Postmark API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const defaultEndpoint = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	endpoint    string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithEndpoint points the client at a different Postmark-compatible API URL.
func WithEndpoint(u string) Option {
	return func(cl *Client) {
		cl.endpoint = u
	}
}

// NewClient builds a client. baseURL is the public site address used to
// build links in outgoing mail.
func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		endpoint:    defaultEndpoint,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c != nil && c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// ResetLink returns the page a member opens to choose a new password.
func (c *Client) ResetLink(token string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", c.baseURL, url.QueryEscape(token))
}

// SendPasswordReset mails a one-hour reset link to a member.
func (c *Client) SendPasswordReset(ctx context.Context, toEmail, username, token string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	link := c.ResetLink(token)
	textBody := fmt.Sprintf(
		"Hi %s,\n\nSomeone asked to reset the password for your May Cafe account. Open the link below to choose a new one:\n\n%s\n\nThis link expires in 1 hour. If you did not ask for this, ignore this email.",
		username, link,
	)
	htmlBody := fmt.Sprintf(
		`<p>Hi %s,</p><p>Someone asked to reset the password for your May Cafe account.</p><p><a href="%s">Choose a new password</a></p><p>This link expires in 1 hour. If you did not ask for this, ignore this email.</p>`,
		username, link,
	)

	return c.send(ctx, postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  "Reset your May Cafe password",
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
}

func (c *Client) send(ctx context.Context, payload postmarkEmail) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
