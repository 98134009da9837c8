package taskprocessor

import (
	"context"
	"log"
	"time"

	"gitlab.ozon.dev/qwestard/laundry/internal/repository"
)

type Publisher interface {
	Publish(topic, key string, message []byte) error
}

// TaskProcessor moves outbox tasks to the broker. A task is deleted once published;
// failures are retried after retryDelay until maxAttempts is reached.
type TaskProcessor struct {
	repo         repository.TaskRepository
	producer     Publisher
	topic        string
	pollInterval time.Duration
	limit        int
	maxAttempts  int
	retryDelay   time.Duration
	now          func() time.Time
}

func NewTaskProcessor(repo repository.TaskRepository, producer Publisher, topic string, pollInterval time.Duration, limit int) *TaskProcessor {
	return &TaskProcessor{
		repo:         repo,
		producer:     producer,
		topic:        topic,
		pollInterval: pollInterval,
		limit:        limit,
		maxAttempts:  3,
		retryDelay:   2 * time.Second,
		now:          time.Now,
	}
}

func (p *TaskProcessor) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.ProcessPendingTasks(ctx)
		}
	}
}

func (p *TaskProcessor) ProcessPendingTasks(ctx context.Context) {
	tasks, err := p.repo.GetPendingTasks(ctx, p.limit, p.maxAttempts, p.now())
	if err != nil {
		log.Printf("Error fetching pending tasks: %v", err)
		return
	}
	for _, task := range tasks {
		err = p.repo.MarkTaskProcessing(ctx, task.ID)
		if err != nil {
			log.Printf("Error marking task %s as PROCESSING: %v", task.ID, err)
			continue
		}

		err = p.producer.Publish(p.topic, task.EventKey, []byte(task.Payload))
		if err != nil {
			p.update(ctx, task, err)
			continue
		}
		log.Printf("Task %s processed and published to Kafka", task.ID)
		err = p.repo.DeleteTask(ctx, task.ID)
		if err != nil {
			log.Printf("Error deleting task %s after successful publish: %v", task.ID, err)
		}
	}
}

func (p *TaskProcessor) update(ctx context.Context, task *repository.Task, err error) {
	newAttempt := task.AttemptCount + 1
	var newStatus repository.TaskStatus
	if newAttempt >= p.maxAttempts {
		newStatus = repository.TaskStatusNoAttemptsLeft
	} else {
		newStatus = repository.TaskStatusFailed
	}
	nextAttempt := p.now().Add(p.retryDelay)
	errUpd := p.repo.UpdateTaskFailure(ctx, task.ID, newAttempt, newStatus, nextAttempt)
	if errUpd != nil {
		log.Printf("Error updating task %s on failure: %v", task.ID, errUpd)
	}
	log.Printf("Failed to publish task %s: %v", task.ID, err)
}
