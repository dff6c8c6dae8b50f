package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/elskow/mystery-message/internal/config"
)

const dialTimeout = 10 * time.Second

var errNacked = errors.New("notify: broker rejected message")

type dialFunc func(addr string) (*amqp.Connection, error)

func dialAMQP(addr string) (*amqp.Connection, error) {
	return amqp.DialConfig(addr, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
}

// AMQPSender publishes verification emails to a RabbitMQ topic exchange with
// publisher confirms, so a returned nil means the broker has the message.
type AMQPSender struct {
	url        string
	dial       dialFunc
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	log        *zap.Logger

	// sem serializes use of the channel; one token, taken with the caller's context
	sem chan struct{}
}

func NewAMQPSender(cfg *config.NotificationConfig, log *zap.Logger) (*AMQPSender, error) {
	cleanURL, err := sanitizeAMQPURL(cfg.AMQPURL)
	if err != nil {
		return nil, err
	}

	s := newAMQPSender(cleanURL, dialAMQP, cfg, log)
	if err := s.connect(); err != nil {
		return nil, err
	}

	return s, nil
}

func newAMQPSender(addr string, dial dialFunc, cfg *config.NotificationConfig, log *zap.Logger) *AMQPSender {
	return &AMQPSender{
		url:        addr,
		dial:       dial,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		log:        log,
		sem:        make(chan struct{}, 1),
	}
}

// connect dials the broker and opens a channel. Callers hold sem, except
// during construction.
func (s *AMQPSender) connect() error {
	conn, err := s.dial(s.url)
	if err != nil {
		return fmt.Errorf("dialing rabbitmq: %w", err)
	}
	s.conn = conn
	if err := s.openChannel(); err != nil {
		conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// ensureChannel redials a dead connection and reopens a closed channel.
func (s *AMQPSender) ensureChannel() error {
	if s.conn == nil || s.conn.IsClosed() {
		s.log.Warn("rabbitmq connection lost, redialing")
		s.channel = nil
		return s.connect()
	}
	if s.channel == nil || s.channel.IsClosed() {
		return s.openChannel()
	}
	return nil
}

func (s *AMQPSender) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for rabbitmq channel: %w", ctx.Err())
	}
}

func (s *AMQPSender) release() {
	<-s.sem
}

func (s *AMQPSender) openChannel() error {
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	if err := ch.ExchangeDeclare(s.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("declaring exchange %q: %w", s.exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return fmt.Errorf("enabling publisher confirms: %w", err)
	}
	s.channel = ch
	return nil
}

func (s *AMQPSender) SendVerification(ctx context.Context, v Verification) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding verification: %w", err)
	}

	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	if err := s.ensureChannel(); err != nil {
		return err
	}

	confirm, err := s.channel.PublishWithDeferredConfirmWithContext(ctx,
		s.exchange,
		s.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Type:         "email.verification",
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publishing verification: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for confirm: %w", err)
	}
	if !acked {
		return errNacked
	}

	s.log.Debug("verification published",
		zap.String("exchange", s.exchange),
		zap.String("routing_key", s.routingKey),
		zap.String("username", v.Username))
	return nil
}

func (s *AMQPSender) Close() error {
	s.sem <- struct{}{}
	defer s.release()

	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("parsing amqp url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("amqp url scheme must be amqp:// or amqps://")
	}
	return clean, nil
}
