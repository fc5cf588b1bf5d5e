package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/alem-hub/palms-core/internal/domain/notification"
	"github.com/alem-hub/palms-core/internal/domain/tasking"
	"github.com/alem-hub/palms-core/pkg/circuitbreaker"
	"github.com/alem-hub/palms-core/pkg/logger"
	"github.com/alem-hub/palms-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// AMQP PUBLISHER
// Почта, трекер задач и календарь обрабатываются внешними сервисами;
// сюда только публикуем запросы в брокер.
// ══════════════════════════════════════════════════════════════════════════════

// Routing keys of outbound requests.
const (
	RoutingKeyMail           = "mail.send"
	RoutingKeyTaskProject    = "task.project.create"
	RoutingKeyTask           = "task.create"
	RoutingKeyCalendarCreate = "calendar.event.create"
	RoutingKeyCalendarCancel = "calendar.event.cancel"
)

// AMQPConfig configures the broker connection.
type AMQPConfig struct {
	URL            string
	Exchange       string
	MailQueue      string
	TaskQueue      string
	CalendarQueue  string
	PublishTimeout time.Duration
}

// DefaultAMQPConfig returns sensible defaults.
func DefaultAMQPConfig(url string) AMQPConfig {
	return AMQPConfig{
		URL:            url,
		Exchange:       "palms.requests",
		MailQueue:      "palms.mail",
		TaskQueue:      "palms.task_projects",
		CalendarQueue:  "palms.calendar",
		PublishTimeout: 5 * time.Second,
	}
}

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Envelope is the body of every published request.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher sends mail, tracker and calendar requests to the broker.
// It implements notification.Mailer and tasking.Emitter.
type Publisher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	ch      Channel
	reopen  func() (Channel, error)
	config  AMQPConfig
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
	now     func() time.Time
}

var (
	_ notification.Mailer = (*Publisher)(nil)
	_ tasking.Emitter     = (*Publisher)(nil)
)

// DialPublisher connects to the broker, declares the topology and returns
// a ready publisher.
func DialPublisher(config AMQPConfig, log *logger.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	open := func() (Channel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("failed to open channel: %w", err)
		}
		if err := declareTopology(ch, config); err != nil {
			_ = ch.Close()
			return nil, err
		}
		return ch, nil
	}

	ch, err := open()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	p := NewPublisher(ch, config, log)
	p.conn = conn
	p.reopen = open
	return p, nil
}

func declareTopology(ch *amqp.Channel, config AMQPConfig) error {
	if err := ch.ExchangeDeclare(config.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", config.Exchange, err)
	}

	for _, b := range topology(config) {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.key, config.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.queue, err)
		}
	}
	return nil
}

type binding struct {
	queue string
	key   string
}

// topology lists queue bindings. The tracker queue takes boards and tasks,
// the calendar queue takes creates and cancels. Declaring a queue twice is
// a no-op.
func topology(config AMQPConfig) []binding {
	return []binding{
		{config.MailQueue, RoutingKeyMail},
		{config.TaskQueue, RoutingKeyTaskProject},
		{config.TaskQueue, RoutingKeyTask},
		{config.CalendarQueue, RoutingKeyCalendarCreate},
		{config.CalendarQueue, RoutingKeyCalendarCancel},
	}
}

// NewPublisher wraps an already opened channel.
func NewPublisher(ch Channel, config AMQPConfig, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Default()
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 5 * time.Second
	}
	log = log.With(logger.Component("amqp_publisher"))

	return &Publisher{
		ch:      ch,
		config:  config,
		retrier: retry.BrokerRetrier(),
		breaker: circuitbreaker.BrokerBreaker(circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		})),
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SendMail implements notification.Mailer.
func (p *Publisher) SendMail(ctx context.Context, mail notification.Mail) error {
	if !mail.HasRecipients() {
		return nil
	}
	return p.publish(ctx, RoutingKeyMail, "mail."+mail.Template, mail)
}

// RequestTaskProject implements tasking.Emitter.
func (p *Publisher) RequestTaskProject(ctx context.Context, req tasking.TaskProjectRequest) error {
	return p.publish(ctx, RoutingKeyTaskProject, "task_project.create", req)
}

// RequestTask implements tasking.Emitter.
func (p *Publisher) RequestTask(ctx context.Context, req tasking.TaskRequest) error {
	return p.publish(ctx, RoutingKeyTask, "task.create", req)
}

// RequestCalendarEvent implements tasking.Emitter.
func (p *Publisher) RequestCalendarEvent(ctx context.Context, req tasking.CalendarEventRequest) error {
	return p.publish(ctx, RoutingKeyCalendarCreate, "calendar_event.create."+string(req.Kind), req)
}

// CancelCalendarEvent implements tasking.Emitter.
func (p *Publisher) CancelCalendarEvent(ctx context.Context, req tasking.CalendarEventCancel) error {
	return p.publish(ctx, RoutingKeyCalendarCancel, "calendar_event.cancel."+string(req.Kind), req)
}

func (p *Publisher) publish(ctx context.Context, routingKey, msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}

	env := Envelope{
		ID:        uuid.NewString(),
		Type:      msgType,
		CreatedAt: p.now(),
		Payload:   raw,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	err = p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.retrier.Do(ctx, func(ctx context.Context) error {
			return p.publishOnce(ctx, routingKey, env, body)
		})
	})
	if err != nil {
		p.log.Error("failed to publish",
			logger.String("routing_key", routingKey),
			logger.String("message_id", env.ID),
			logger.Err(err),
		)
		return fmt.Errorf("publish %s: %w", msgType, err)
	}

	p.log.Debug("published",
		logger.String("routing_key", routingKey),
		logger.String("message_id", env.ID),
	)
	return nil
}

func (p *Publisher) publishOnce(ctx context.Context, routingKey string, env Envelope, body []byte) error {
	ch, err := p.channel()
	if err != nil {
		return retry.Retryable(err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()

	err = ch.PublishWithContext(
		publishCtx,
		p.config.Exchange, // exchange
		routingKey,        // routing key
		false,             // mandatory
		false,             // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    env.ID,
			Type:         env.Type,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    env.CreatedAt,
		},
	)
	if err == nil {
		return nil
	}

	if errors.Is(err, amqp.ErrClosed) {
		p.dropChannel(ch)
	}
	return retry.Retryable(err)
}

// channel returns the current channel, reopening it after a failure.
func (p *Publisher) channel() (Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		return p.ch, nil
	}
	if p.reopen == nil {
		return nil, amqp.ErrClosed
	}
	ch, err := p.reopen()
	if err != nil {
		return nil, err
	}
	p.ch = ch
	p.log.Info("amqp channel reopened")
	return ch, nil
}

func (p *Publisher) dropChannel(ch Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == ch {
		_ = ch.Close()
		p.ch = nil
	}
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
		p.ch = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	p.log.Info("amqp publisher closed")
	return errors.Join(errs...)
}
