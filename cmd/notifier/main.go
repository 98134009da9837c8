package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"
	"golang.org/x/sync/errgroup"

	"gitlab.ozon.dev/qwestard/laundry/internal/config"
	"gitlab.ozon.dev/qwestard/laundry/internal/kafka"
	"gitlab.ozon.dev/qwestard/laundry/internal/models"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	log.Printf("Notifier consuming %s from %v", cfg.KafkaTopic, cfg.KafkaBrokers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return kafka.StartSaramaConsumer(gctx, kafka.NewConsumerConfig(), cfg.KafkaBrokers,
			cfg.KafkaGroupID, []string{cfg.KafkaTopic}, notify)
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("Notifier stopped: %v", err)
	}
}

func notify(_ context.Context, msg *sarama.ConsumerMessage) error {
	var ev models.StatusEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("decode event at offset %d: %w", msg.Offset, err)
	}
	log.Println(notification(ev))
	return nil
}

func notification(ev models.StatusEvent) string {
	switch {
	case ev.NewStatus == models.StatusPending:
		return fmt.Sprintf("customer %s: request %s was placed", ev.CustomerID, ev.RequestID)
	case ev.NewStatus == models.StatusAccepted:
		return fmt.Sprintf("customer %s: provider %s accepted request %s", ev.CustomerID, ev.ProviderID, ev.RequestID)
	case ev.NewStatus.Terminal():
		return fmt.Sprintf("customer %s: request %s is completed", ev.CustomerID, ev.RequestID)
	}
	return fmt.Sprintf("customer %s: request %s moved from %s to %s", ev.CustomerID, ev.RequestID, ev.OldStatus, ev.NewStatus)
}
