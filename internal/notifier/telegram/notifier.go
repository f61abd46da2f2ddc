// Package telegram delivers notifications through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gazette-watcher/internal/metrics"
)

const (
	// DefaultAPIBaseURL is the public Bot API endpoint.
	DefaultAPIBaseURL = "https://api.telegram.org"
	// DefaultTimeout bounds each sendMessage call.
	DefaultTimeout = 20 * time.Second
)

// Config controls the Bot API client.
type Config struct {
	APIBaseURL string
	Timeout    time.Duration
}

// Limiter paces messages per chat.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// Notifier posts messages with the sendMessage method. Credentials are
// supplied on every call.
type Notifier struct {
	baseURL string
	client  *http.Client
	limiter Limiter
	logger  *zap.Logger
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// New builds a Notifier. A nil limiter disables pacing.
func New(cfg Config, limiter Limiter, logger *zap.Logger) *Notifier {
	base := strings.TrimRight(cfg.APIBaseURL, "/")
	if base == "" {
		base = DefaultAPIBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		baseURL: base,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger,
	}
}

// Send delivers text to chatID and reports whether it was accepted.
// Only a 200 response counts as delivered; anything else, including a
// transport failure or timeout, yields false.
func (n *Notifier) Send(ctx context.Context, botToken, chatID, text string) bool {
	ok := n.send(ctx, botToken, chatID, text)
	if ok {
		metrics.ObserveNotification(metrics.OutcomeSent)
	} else {
		metrics.ObserveNotification(metrics.OutcomeFailed)
	}
	return ok
}

func (n *Notifier) send(ctx context.Context, botToken, chatID, text string) bool {
	log := n.logger.With(zap.String("chat_id", chatID))
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx, chatID); err != nil {
			log.Warn("notification not sent", zap.Error(err))
			return false
		}
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		log.Warn("encode sendMessage payload", zap.Error(err))
		return false
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		// The error text embeds the endpoint, which carries the token.
		log.Warn("build sendMessage request failed")
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Warn("sendMessage request failed", zap.String("reason", redact(err.Error(), botToken)))
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		log.Warn("sendMessage rejected", zap.Int("status", resp.StatusCode))
		return false
	}
	return true
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "<redacted>")
}
