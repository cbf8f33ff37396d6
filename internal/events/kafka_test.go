package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paidEvent() OrderEvent {
	return OrderEvent{
		EventType:     TopicOrderPaid,
		OrderID:       "order-1",
		Status:        "paid",
		TotalAmount:   decimal.RequireFromString("1500.00"),
		PaymentRef:    "pidx-1",
		CustomerEmail: "sita@example.com",
		OccurredAt:    time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, config)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderPaid {
			return fmt.Errorf("unexpected topic %q", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "order-1" {
			return fmt.Errorf("expected order id as key, got %q", key)
		}

		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var decoded OrderEvent
		if err := json.Unmarshal(value, &decoded); err != nil {
			return err
		}
		if !decoded.TotalAmount.Equal(decimal.RequireFromString("1500")) || decoded.PaymentRef != "pidx-1" {
			return fmt.Errorf("unexpected payload %s", value)
		}
		return nil
	})

	publisher := NewKafkaPublisherWithProducer(producer)
	require.NoError(t, publisher.Publish(context.Background(), paidEvent()))
	require.NoError(t, publisher.Close())
}

func TestKafkaPublisher_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	publisher := NewKafkaPublisherWithProducer(producer)
	err := publisher.Publish(context.Background(), paidEvent())

	require.Error(t, err)
	assert.True(t, errors.Is(err, sarama.ErrNotLeaderForPartition))
	require.NoError(t, publisher.Close())
}

func TestLogPublisher_NeverFails(t *testing.T) {
	assert.NoError(t, NewLogPublisher().Publish(context.Background(), paidEvent()))
}
