package notify

import (
	"context"

	"flatwatch/internal/config"
	"flatwatch/internal/normalize"
	"flatwatch/internal/observability"
)

// LogSink ничего не отправляет, только пишет сообщение в лог (dry-run).
type LogSink struct {
	logger *observability.Logger
	norm   *normalize.Normalizer
}

func NewLogSink(logger *observability.Logger) *LogSink {
	return &LogSink{
		logger: logger,
		norm: normalize.NewNormalizer(config.NormalizeConfig{MaxPreviewChars: 300}),
	}
}

func (s *LogSink) Send(_ context.Context, title, htmlBody string) error {
	s.logger.Info("Dry run, notification not sent",
		"title", title,
		"preview", s.norm.TruncatePreview(s.norm.HTMLToText(htmlBody)),
	)
	return nil
}
