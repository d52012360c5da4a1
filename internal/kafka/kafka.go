package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

var ErrDisabled = errors.New("kafka disabled")

// Client holds the broker list parsed from a comma separated string.
type Client struct {
	Brokers []string
}

func NewClient(brokersCSV string) *Client {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return &Client{Brokers: brokers}
}

func (c *Client) Enabled() bool {
	return len(c.Brokers) > 0
}

// Publisher writes outbox events to Kafka. The topic travels on each message,
// and messages with the same key (the invoice number) land on one partition.
type Publisher struct {
	writer *kafka.Writer
}

func (c *Client) NewPublisher() (*Publisher, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	return &Publisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}, nil
}

func (p *Publisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	return p.writer.WriteMessages(ctx, Message(topic, key, payload))
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Message builds the wire message for an event.
func Message(topic, key string, payload []byte) kafka.Message {
	return kafka.Message{Topic: topic, Key: []byte(key), Value: payload, Time: time.Now().UTC()}
}
