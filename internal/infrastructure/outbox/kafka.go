package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	domoutbox "github.com/Zhima-Mochi/storefront/internal/domain/outbox"

	"github.com/Shopify/sarama"
)

const (
	headerEvent     = "event"
	headerMessageID = "message_id"
)

// KafkaPublisher writes outbox messages to a single topic, keyed by order id
// so events of one order stay on one partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	conf := sarama.NewConfig()
	conf.Producer.Return.Successes = true
	conf.Producer.Return.Errors = true
	conf.Producer.RequiredAcks = sarama.WaitForAll
	conf.Producer.Idempotent = true
	conf.Net.MaxOpenRequests = 1
	conf.Version = sarama.V2_1_0_0

	producer, err := sarama.NewSyncProducer(brokers, conf)
	if err != nil {
		return nil, fmt.Errorf("outbox: kafka producer: %w", err)
	}
	return NewKafkaPublisherFromProducer(producer, topic), nil
}

func NewKafkaPublisherFromProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

var _ domoutbox.Publisher = (*KafkaPublisher)(nil)

func (p *KafkaPublisher) Publish(ctx context.Context, e domoutbox.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := domoutbox.NewMessage(e)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(m.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerEvent), Value: []byte(m.Name)},
			{Key: []byte(headerMessageID), Value: []byte(strconv.FormatInt(m.ID, 10))},
		},
	}
	if key := partitionKey(m); key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("outbox: kafka send %s: %w", m.Name, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.producer.Close() }

func partitionKey(m domoutbox.Message) string {
	var keyed struct {
		OrderID int64 `json:"order_id"`
	}
	if err := json.Unmarshal(m.Payload, &keyed); err != nil || keyed.OrderID == 0 {
		return ""
	}
	return strconv.FormatInt(keyed.OrderID, 10)
}
