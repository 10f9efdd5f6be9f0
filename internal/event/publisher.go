package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const TypePaymentReconciled = "payment.reconciled"

type PaymentReconciled struct {
	Type              string    `json:"type"`
	Reference         string    `json:"reference"`
	PaymentID         uint      `json:"payment_id"`
	OrderID           uint      `json:"order_id"`
	UserID            uint      `json:"user_id"`
	Status            string    `json:"status"`
	Amount            string    `json:"amount"`
	ProviderPaymentID string    `json:"provider_payment_id,omitempty"`
	Source            string    `json:"source"`
	OccurredAt        time.Time `json:"occurred_at"`
}

type Publisher interface {
	PublishPaymentReconciled(ctx context.Context, evt *PaymentReconciled) error
	Close() error
}

type kafkaPublisher struct {
	writer *kafka.Writer
}

// NewPublisher returns a Kafka-backed publisher, or a no-op one when no
// brokers are configured.
func NewPublisher(brokersCSV, topic string) Publisher {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return NopPublisher{}
	}

	return &kafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *kafkaPublisher) PublishPaymentReconciled(ctx context.Context, evt *PaymentReconciled) error {
	evt.Type = TypePaymentReconciled
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// keyed by reference so events for one payment stay ordered
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.Reference),
		Value: data,
		Time:  evt.OccurredAt,
	})
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

type NopPublisher struct{}

func (NopPublisher) PublishPaymentReconciled(context.Context, *PaymentReconciled) error {
	return nil
}

func (NopPublisher) Close() error {
	return nil
}
