// Package webhook calls an HTTP endpoint once a request is approved.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/approvals/pkg/models"
	"github.com/dukex/approvals/pkg/template"
)

const (
	Type = "webhook"

	defaultTimeout = 30 * time.Second
)

var (
	// ErrWebhookURLMissing is returned when the request metadata has no webhook_url.
	ErrWebhookURLMissing = errors.New("missing webhook_url")
	// ErrWebhookStatus is returned for non-2xx responses.
	ErrWebhookStatus = errors.New("webhook returned an error status")
)

// Action reads its configuration from the request metadata:
//
//	webhook_url      URL template (required)
//	webhook_method   HTTP method, POST by default
//	webhook_headers  map of header templates
//	webhook_body     body template, the JSON encoded request by default
//	webhook_attempts number of attempts on transport errors and 5xx, 1 by default
type Action struct {
	client *http.Client
	delay  time.Duration
	logger *slog.Logger
}

func NewAction(logger *slog.Logger) *Action {
	return &Action{
		client: &http.Client{Timeout: defaultTimeout},
		delay:  time.Second,
		logger: logger.With("action_type", Type),
	}
}

func (*Action) Type() string {
	return Type
}

func (a *Action) Execute(ctx context.Context, request *models.ApprovalRequest) error {
	data := template.RequestData(request)

	rawURL, _ := request.Metadata["webhook_url"].(string)
	if rawURL == "" {
		return ErrWebhookURLMissing
	}

	url, err := template.Render(rawURL, data)
	if err != nil {
		return err
	}

	method, _ := request.Metadata["webhook_method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	body, err := a.body(request, data)
	if err != nil {
		return err
	}

	headers, err := a.headers(request, data)
	if err != nil {
		return err
	}

	attempts := 1
	if n, ok := request.Metadata["webhook_attempts"].(float64); ok && n > 1 {
		attempts = int(n)
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			a.logger.InfoContext(ctx, "Retrying webhook", "attempt", attempt, "request_id", request.ID)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.delay):
			}
		}

		var retry bool

		retry, lastErr = a.call(ctx, strings.ToUpper(method), url, body, headers)
		if lastErr == nil || !retry {
			return lastErr
		}
	}

	return fmt.Errorf("all %d webhook attempts failed: %w", attempts, lastErr)
}

func (a *Action) call(ctx context.Context, method, url, body string, headers map[string]string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return resp.StatusCode >= 500, fmt.Errorf("%w: %d", ErrWebhookStatus, resp.StatusCode)
	}

	a.logger.InfoContext(ctx, "Webhook delivered", "status", resp.StatusCode, "url", url)

	return false, nil
}

func (a *Action) body(request *models.ApprovalRequest, data map[string]any) (string, error) {
	if tmpl, ok := request.Metadata["webhook_body"].(string); ok && tmpl != "" {
		return template.Render(tmpl, data)
	}

	b, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	return string(b), nil
}

func (a *Action) headers(request *models.ApprovalRequest, data map[string]any) (map[string]string, error) {
	headers := make(map[string]string)

	configured, ok := request.Metadata["webhook_headers"].(map[string]any)
	if !ok {
		return headers, nil
	}

	for key, value := range configured {
		s, ok := value.(string)
		if !ok {
			continue
		}

		rendered, err := template.Render(s, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render header '%s': %w", key, err)
		}

		headers[key] = rendered
	}

	return headers, nil
}
