package notify

import (
	"context"
	"errors"

	"flatwatch/internal/observability"
)

// Multi рассылает сообщение во все каналы. Доставка успешна, если
// сообщение принял хотя бы один канал; отказы остальных логируются.
type Multi struct {
	sinks  []Sink
	logger *observability.Logger
}

func NewMulti(logger *observability.Logger, sinks ...Sink) *Multi {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &Multi{sinks: sinks, logger: logger}
}

func (m *Multi) Send(ctx context.Context, title, htmlBody string) error {
	if len(m.sinks) == 0 {
		return &DeliveryError{Sink: "multi", Err: errors.New("no sinks configured")}
	}

	var errs []error
	for _, s := range m.sinks {
		if err := s.Send(ctx, title, htmlBody); err != nil {
			errs = append(errs, err)
		}
	}

	switch {
	case len(errs) == 0:
		return nil
	case len(errs) < len(m.sinks):
		m.logger.Warn("Notification partially delivered", "failed", len(errs), "total", len(m.sinks), "error", errors.Join(errs...))
		return nil
	default:
		return &DeliveryError{Sink: "multi", Err: errors.Join(errs...)}
	}
}
