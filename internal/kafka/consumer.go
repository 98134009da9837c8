package kafka

import (
	"context"
	"errors"
	"log"

	"github.com/IBM/sarama"
)

// MessageHandler handles one consumed message. A returned error is logged and the
// message is still marked, so a poison message cannot stall the partition.
type MessageHandler func(ctx context.Context, msg *sarama.ConsumerMessage) error

type ConsumerGroupHandler struct {
	handle MessageHandler
}

func NewConsumerGroupHandler(handle MessageHandler) ConsumerGroupHandler {
	return ConsumerGroupHandler{handle: handle}
}

func (ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.handle(session.Context(), msg); err != nil {
			log.Printf("Error handling message topic=%s partition=%d offset=%d: %v", msg.Topic, msg.Partition, msg.Offset, err)
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

func NewConsumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	return config
}

// StartSaramaConsumer consumes topics until ctx is cancelled.
func StartSaramaConsumer(ctx context.Context, cfg *sarama.Config, brokers []string, groupID string, topics []string, handle MessageHandler) error {
	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := consumerGroup.Close(); err != nil {
			log.Printf("Error closing consumer group: %v", err)
		}
	}()

	handler := NewConsumerGroupHandler(handle)

	for {
		if err := consumerGroup.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			log.Printf("Error from consumer: %v", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
