package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/allisson/outbox/internal/outbox/domain"
)

// DefaultWebhookTimeout bounds a single webhook request.
const DefaultWebhookTimeout = 10 * time.Second

// webhookEnvelope is the JSON body posted for each message.
type webhookEnvelope struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SendCount int             `json:"send_count"`
}

// WebhookSender POSTs each message to an HTTP endpoint. Any 2xx response counts as delivered.
// Connection errors and 5xx responses are retried by the client before the attempt is reported
// as failed.
//
// With a signing key every request carries HeaderTimestamp and HeaderSignature.
type WebhookSender struct {
	url    string
	client *retryablehttp.Client
	signer *WebhookSigner
	now    func() time.Time
	logger *slog.Logger
}

// NewWebhookSender creates a WebhookSender for url. An empty signingKey disables signatures.
func NewWebhookSender(
	url string,
	timeout time.Duration,
	maxRetries int,
	signingKey string,
	logger *slog.Logger,
) (*WebhookSender, error) {
	if url == "" {
		return nil, errors.New("webhook sender requires a url")
	}
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	logger = orDiscard(logger)

	client := retryablehttp.NewClient()
	client.RetryMax = maxRetries
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = logger

	var signer *WebhookSigner
	if signingKey != "" {
		var err error
		if signer, err = NewWebhookSigner(signingKey); err != nil {
			return nil, err
		}
	}

	return &WebhookSender{url: url, client: client, signer: signer, now: time.Now, logger: logger}, nil
}

// Send posts msg. Payloads that are not valid JSON are sent as a JSON string.
func (s *WebhookSender) Send(ctx context.Context, msg *domain.Message) (bool, error) {
	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		quoted, err := json.Marshal(msg.Payload)
		if err != nil {
			return false, fmt.Errorf("failed to encode payload: %w", err)
		}
		payload = quoted
	}

	body, err := json.Marshal(webhookEnvelope{
		ID:        msg.ID.String(),
		Topic:     msg.Topic,
		Payload:   payload,
		CreatedAt: msg.CreatedAt,
		SendCount: msg.SendCount,
	})
	if err != nil {
		return false, fmt.Errorf("failed to encode webhook body: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderMessageID, msg.ID.String())
	req.Header.Set(HeaderTopic, msg.Topic)
	req.Header.Set(HeaderSendCount, strconv.Itoa(msg.SendCount))
	if s.signer != nil {
		timestamp := s.now().Unix()
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
		req.Header.Set(HeaderSignature, s.signer.Sign(timestamp, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to call webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return true, nil
}

// Close releases idle connections.
func (s *WebhookSender) Close() error {
	s.client.HTTPClient.CloseIdleConnections()
	return nil
}
