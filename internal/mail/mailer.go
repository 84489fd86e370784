package mail

import (
	"context"
	"fmt"
	"sync"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Message is one outbound transactional email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a single message. SMTPSender is the production
// implementation; NoopSender serves tests and local development.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig configures the outbound SMTP client.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type SMTPSender struct {
	client *gomail.Client
	from   string
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	client, err := gomail.NewClient(cfg.Host,
		gomail.WithPort(cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(cfg.Username),
		gomail.WithPassword(cfg.Password),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	return &SMTPSender{client: client, from: cfg.From}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if err := m.From(s.from); err != nil {
		return err
	}
	if err := m.To(msg.To); err != nil {
		return err
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.Body)

	return s.client.DialAndSendWithContext(ctx, m)
}

// NoopSender discards messages.
type NoopSender struct{}

func (NoopSender) Send(context.Context, Message) error { return nil }

// Dispatcher queues messages and delivers them off the request path. Enqueue
// never blocks and never fails the triggering operation; delivery is retried
// a few times and then given up with a log entry.
type Dispatcher struct {
	sender  Sender
	logger  *zap.Logger
	ch      chan Message
	done    chan struct{}
	wg      sync.WaitGroup
	retries int
	once    sync.Once
}

func NewDispatcher(sender Sender, bufferSize int, logger *zap.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 64
	}

	d := &Dispatcher{
		sender:  sender,
		logger:  logger,
		ch:      make(chan Message, bufferSize),
		done:    make(chan struct{}),
		retries: 3,
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Enqueue hands a message to the delivery worker. A full queue drops the
// message with a log entry rather than stalling the caller.
func (d *Dispatcher) Enqueue(msg Message) {
	select {
	case d.ch <- msg:
	case <-d.done:
	default:
		d.logger.Warn("mail queue full, message dropped", zap.String("to", msg.To))
	}
}

// Close drains the queue and stops the worker.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	var err error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * time.Second)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err = d.sender.Send(ctx, msg)
		cancel()
		if err == nil {
			return
		}
	}

	d.logger.Error("mail delivery failed",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Error(err))
}

// VerificationEmail builds the email-verification message.
func VerificationEmail(to, token, baseURL string) Message {
	link := fmt.Sprintf("%s/api/verify-email?token=%s&email=%s", baseURL, token, to)
	return Message{
		To:      to,
		Subject: "Verify your TrueGate account",
		Body: fmt.Sprintf(
			"<p>Welcome to TrueGate.</p><p>Confirm your email address by opening "+
				"<a href=%q>this link</a>. The link expires in 24 hours.</p>", link),
	}
}

// ResetEmail builds the password-reset message.
func ResetEmail(to, token, baseURL string) Message {
	link := fmt.Sprintf("%s/reset-password?token=%s", baseURL, token)
	return Message{
		To:      to,
		Subject: "Reset your TrueGate password",
		Body: fmt.Sprintf(
			"<p>A password reset was requested for your account.</p><p>Open "+
				"<a href=%q>this link</a> to choose a new password. If you did not "+
				"request this, ignore this message.</p>", link),
	}
}
