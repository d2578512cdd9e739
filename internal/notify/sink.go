// Package notify доставляет уведомления о новых объявлениях.
package notify

import (
	"context"
	"fmt"
)

// Sink — канал доставки. htmlBody — готовый HTML, каналы без HTML сами
// превращают его в текст.
type Sink interface {
	Send(ctx context.Context, title, htmlBody string) error
}

// DeliveryError — канал не принял сообщение.
type DeliveryError struct {
	Sink string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver via %s: %v", e.Sink, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
