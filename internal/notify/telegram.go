package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"flatwatch/internal/config"
	"flatwatch/internal/normalize"
)

// telegramMaxChars — лимит длины текста sendMessage.
const telegramMaxChars = 4096

// TelegramSink отправляет текстовое сообщение во все настроенные чаты.
type TelegramSink struct {
	cfg    config.TelegramConfig
	client *http.Client
	norm   *normalize.Normalizer
}

func NewTelegramSink(cfg config.TelegramConfig, client *http.Client) *TelegramSink {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &TelegramSink{
		cfg:    cfg,
		client: client,
		norm: normalize.NewNormalizer(config.NormalizeConfig{MaxPreviewChars: telegramMaxChars}),
	}
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (s *TelegramSink) Send(ctx context.Context, title, htmlBody string) error {
	text := s.norm.TruncatePreview(title + "\n\n" + s.norm.HTMLToText(htmlBody))

	var errs []error
	for _, chat := range s.cfg.Chats {
		if err := s.sendMessage(ctx, chat, text); err != nil {
			errs = append(errs, fmt.Errorf("chat %s: %w", chat, err))
		}
	}
	if len(errs) > 0 {
		return &DeliveryError{Sink: "telegram", Err: errors.Join(errs...)}
	}
	return nil
}

func (s *TelegramSink) sendMessage(ctx context.Context, chat, text string) error {
	endpoint := strings.TrimRight(s.cfg.APIURL, "/") + "/bot" + s.cfg.Token + "/sendMessage"
	form := url.Values{
		"chat_id": {chat},
		"text":    {text},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		// в ошибке url.Error был бы токен
		return errors.New("failed to build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return uerr.Err
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return err
	}

	var tr telegramResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("status %d: invalid response: %w", resp.StatusCode, err)
	}
	if !tr.OK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, tr.Description)
	}
	return nil
}
