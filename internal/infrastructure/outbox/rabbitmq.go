package outbox

import (
	"context"
	"fmt"
	"strconv"
	"time"

	domoutbox "github.com/Zhima-Mochi/storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront/internal/observability"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange   = "storefront.events"
	exchangeType      = "topic"
	dialAttempts      = 5
	dialRetryInterval = 2 * time.Second
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher publishes each message to a topic exchange with the event
// name as routing key, e.g. "payment.reconciled".
type RabbitPublisher struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
}

// DialRabbit connects with a short retry for container startup and declares
// the exchange.
func DialRabbit(ctx context.Context, url, exchange string, log observability.Logger) (*RabbitPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if log == nil {
		log = observability.NopLogger()
	}

	var (
		conn *amqp.Connection
		err  error
	)
	for i := 0; i < dialAttempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		log.Warn("rabbitmq_dial_failed", observability.F("attempt", i+1), observability.Err(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialRetryInterval):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("outbox: connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("outbox: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, exchangeType, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("outbox: declare exchange %s: %w", exchange, err)
	}
	return &RabbitPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

var _ domoutbox.Publisher = (*RabbitPublisher)(nil)

func (p *RabbitPublisher) Publish(ctx context.Context, e domoutbox.Event) error {
	m, err := domoutbox.NewMessage(e)
	if err != nil {
		return err
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, m.Name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    strconv.FormatInt(m.ID, 10),
		Type:         m.Name,
		Timestamp:    m.CreatedAt,
		Body:         m.Payload,
	})
	if err != nil {
		return fmt.Errorf("outbox: rabbitmq publish %s: %w", m.Name, err)
	}
	return nil
}

func (p *RabbitPublisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
