// Package notify delivers email through a SendGrid-compatible transactional
// mail API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// Message is one email to deliver.
type Message struct {
	Subject    string
	Body       string
	Recipients []string
}

// Notifier sends a message to its recipients. Delivery is binary per call:
// either the API accepted it or it did not.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// EmailClient posts messages to the v3 mail-send endpoint. The zero value is
// not usable; construct with NewEmailClient.
//
// Deliberately a plain http.Client rather than retryablehttp: a notification
// must be attempted at most once per run, and automatic retries on flaky 5xx
// responses could double-send.
type EmailClient struct {
	APIKey     string
	Sender     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewEmailClient builds a client for the hosted mail API.
func NewEmailClient(apiKey, sender string) *EmailClient {
	return &EmailClient{
		APIKey:     apiKey,
		Sender:     sender,
		BaseURL:    "https://api.sendgrid.com",
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type emailAddress struct {
	Email string `json:"email"`
}

type personalization struct {
	To []emailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
}

// Send posts one message. Any 2xx response counts as delivered; anything
// else is a delivery failure carrying whatever error detail the API gave.
func (c *EmailClient) Send(ctx context.Context, msg Message) error {
	if len(msg.Recipients) == 0 {
		return fmt.Errorf("no recipients")
	}

	to := make([]emailAddress, 0, len(msg.Recipients))
	for _, r := range msg.Recipients {
		to = append(to, emailAddress{Email: r})
	}
	payload := sendRequest{
		Personalizations: []personalization{{To: to}},
		From:             emailAddress{Email: c.Sender},
		Subject:          msg.Subject,
		Content:          []mailContent{{Type: "text/plain", Value: msg.Body}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := gjson.GetBytes(respBody, "errors.0.message").String()
	if detail == "" {
		detail = string(respBody)
	}
	return fmt.Errorf("mail API returned %d: %s", resp.StatusCode, detail)
}
