package notify

import (
	"context"
	"net"
	"time"

	"github.com/wneessen/go-mail"

	"flatwatch/internal/config"
)

const defaultSMTPTimeout = 30 * time.Second

type sendFunc func(ctx context.Context, msg *mail.Msg) error

// SMTPSink отправляет HTML-письмо. STARTTLS включается, если сервер его объявляет.
// Соединение и весь диалог ограничены cfg.TimeoutS и дедлайном ctx.
type SMTPSink struct {
	cfg     config.SMTPConfig
	timeout time.Duration
	send    sendFunc
	now     func() time.Time
}

func NewSMTPSink(cfg config.SMTPConfig) *SMTPSink {
	s := &SMTPSink{cfg: cfg, timeout: cfg.GetTimeout(), now: time.Now}
	if s.timeout <= 0 {
		s.timeout = defaultSMTPTimeout
	}
	s.send = s.dialAndSend
	return s
}

func (s *SMTPSink) Send(ctx context.Context, title, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return &DeliveryError{Sink: "smtp", Err: err}
	}

	msg, err := s.buildMessage(title, htmlBody)
	if err != nil {
		return &DeliveryError{Sink: "smtp", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.send(ctx, msg); err != nil {
		return &DeliveryError{Sink: "smtp", Err: err}
	}
	return nil
}

func (s *SMTPSink) buildMessage(title, htmlBody string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, err
	}
	if err := msg.To(s.cfg.To...); err != nil {
		return nil, err
	}
	msg.Subject(title)
	msg.SetDateWithValue(s.now())
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	return msg, nil
}

func (s *SMTPSink) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithDialContextFunc(deadlineDialer(s.timeout)),
	}
	if s.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.User),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// deadlineDialer ставит соединению дедлайн из ctx (но не дальше timeout),
// чтобы молчащий сервер не держал чтение приветствия бесконечно.
func deadlineDialer(timeout time.Duration) mail.DialContextFunc {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		deadline := time.Now().Add(timeout)
		if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
			deadline = dl
		}
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}
