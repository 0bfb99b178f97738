// Package mailer sends the few emails the service produces: guardian
// reminders and operator password resets.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"text"`
}

// Delivery reports what happened to a message. When Sent is false the
// caller is expected to hand MailtoURL to a human.
type Delivery struct {
	Sent      bool   `json:"sent"`
	MailtoURL string `json:"mailto_url,omitempty"`
}

type Mailer interface {
	Send(ctx context.Context, msg Message) (Delivery, error)
}

var ErrNoRecipient = errors.New("mail recipient is empty")

// APIMailer posts messages as JSON to an HTTP mail relay.
type APIMailer struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
}

func NewAPIMailer(endpoint, apiKey, from string) *APIMailer {
	return &APIMailer{
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type apiRequest struct {
	From string `json:"from"`
	Message
}

func (a *APIMailer) Send(ctx context.Context, msg Message) (Delivery, error) {
	if strings.TrimSpace(msg.To) == "" {
		return Delivery{}, ErrNoRecipient
	}
	body, err := json.Marshal(apiRequest{From: a.from, Message: msg})
	if err != nil {
		return Delivery{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return Delivery{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Delivery{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.WithField("prefix", "mailer").
			WithField("status", resp.StatusCode).
			WithField("resp", string(detail)).
			Error("mail relay rejected message")
		return Delivery{}, fmt.Errorf("mail relay answered %d", resp.StatusCode)
	}
	log.WithField("prefix", "mailer").WithField("to", msg.To).Debug("message relayed")
	return Delivery{Sent: true}, nil
}

// MailtoMailer does not send anything; it produces a mailto: link so an
// operator's own mail client can send the message.
type MailtoMailer struct{}

func (MailtoMailer) Send(ctx context.Context, msg Message) (Delivery, error) {
	if strings.TrimSpace(msg.To) == "" {
		return Delivery{}, ErrNoRecipient
	}
	return Delivery{MailtoURL: MailtoURL(msg)}, nil
}

// MailtoURL encodes msg with %20 for spaces, which mail clients expect.
func MailtoURL(msg Message) string {
	q := url.Values{}
	q.Set("subject", msg.Subject)
	q.Set("body", msg.Body)
	query := strings.ReplaceAll(q.Encode(), "+", "%20")
	return "mailto:" + url.PathEscape(msg.To) + "?" + query
}

// New picks the HTTP relay when an endpoint is configured.
func New(endpoint, apiKey, from string) Mailer {
	if strings.TrimSpace(endpoint) == "" {
		return MailtoMailer{}
	}
	return NewAPIMailer(endpoint, apiKey, from)
}
