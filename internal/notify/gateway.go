package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/payprompt/payprompt-backend/internal/config"
)

// Gateway delivers customer SMS and operator email. The state machine only
// cares whether delivery was accepted; a non-nil error means it was not.
type Gateway interface {
	SendSMS(ctx context.Context, msisdn, message string) error
	SendEmail(ctx context.Context, recipients []string, subject, body string) error
}

type Client struct {
	http *http.Client
	cfg  config.Config
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		http: &http.Client{Timeout: 15 * time.Second},
		cfg:  cfg,
	}
}

type smsRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
}

func (c *Client) SendSMS(ctx context.Context, msisdn, message string) error {
	body, err := json.Marshal(smsRequest{To: msisdn, From: c.cfg.SMSSender, Message: message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SMSURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-SMS-Apikey", c.cfg.SMSAPIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("sms send failed", "msisdn", msisdn, "err", err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Warn("sms gateway rejected message", "msisdn", msisdn, "status", resp.StatusCode)
		return fmt.Errorf("sms gateway returned %d", resp.StatusCode)
	}
	return nil
}

type emailRequest struct {
	Sender     string   `json:"sender"`
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
}

func (c *Client) SendEmail(ctx context.Context, recipients []string, subject, body string) error {
	if c.cfg.EmailURL == "" {
		return fmt.Errorf("email relay not configured")
	}
	payload, err := json.Marshal(emailRequest{
		Sender:     c.cfg.EmailSender,
		Recipients: recipients,
		Subject:    subject,
		Body:       body,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.EmailURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("email send failed", "err", err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email relay returned %d", resp.StatusCode)
	}
	return nil
}
