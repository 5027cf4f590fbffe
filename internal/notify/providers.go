package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Provider delivers one rendered message to one recipient.
type Provider interface {
	Send(ctx context.Context, message, recipient string) error
}

type ProviderConfig struct {
	Kind         string
	WebhookURL   string
	WebhookToken string
}

func NewProvider(cfg ProviderConfig, logger zerolog.Logger) Provider {
	switch cfg.Kind {
	case "", "stub", "log":
		return logProvider{logger: logger}
	case "noop":
		return noopProvider{}
	case "fail":
		return failProvider{}
	case "webhook":
		if cfg.WebhookURL == "" {
			return logProvider{logger: logger}
		}
		return webhookProvider{url: cfg.WebhookURL, token: cfg.WebhookToken, client: &http.Client{Timeout: 5 * time.Second}}
	default:
		if strings.HasPrefix(cfg.Kind, "http://") || strings.HasPrefix(cfg.Kind, "https://") {
			return webhookProvider{url: cfg.Kind, client: &http.Client{Timeout: 5 * time.Second}}
		}
		return logProvider{logger: logger}
	}
}

type logProvider struct {
	logger zerolog.Logger
}

func (p logProvider) Send(ctx context.Context, message, recipient string) error {
	p.logger.Info().Str("channel", "email").Str("recipient", recipient).Str("message", message).Msg("send notification")
	return nil
}

type noopProvider struct{}

func (noopProvider) Send(ctx context.Context, message, recipient string) error {
	return nil
}

type failProvider struct{}

func (failProvider) Send(ctx context.Context, message, recipient string) error {
	return errors.New("provider failure")
}

type webhookProvider struct {
	url    string
	token  string
	client *http.Client
}

func (p webhookProvider) Send(ctx context.Context, message, recipient string) error {
	payload := map[string]string{
		"channel":   "email",
		"recipient": recipient,
		"message":   message,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider rejected request: %s", resp.Status)
	}
	return nil
}
