package taskprocessor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gitlab.ozon.dev/qwestard/laundry/internal/repository"
)

type fakeTaskRepo struct {
	tasks      map[string]*repository.Task
	processing []string
	deleted    []string
	failures   map[string]repository.TaskStatus
	getErr     error
}

func newFakeTaskRepo(tasks ...*repository.Task) *fakeTaskRepo {
	r := &fakeTaskRepo{
		tasks:    make(map[string]*repository.Task),
		failures: make(map[string]repository.TaskStatus),
	}
	for _, t := range tasks {
		r.tasks[t.ID] = t
	}
	return r
}

func (r *fakeTaskRepo) CreateTask(_ context.Context, key string, payload []byte) error {
	id := key + "-task"
	r.tasks[id] = &repository.Task{ID: id, EventKey: key, Payload: string(payload), Status: repository.TaskStatusCreated}
	return nil
}

func (r *fakeTaskRepo) GetPendingTasks(_ context.Context, limit, _ int, _ time.Time) ([]*repository.Task, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	var res []*repository.Task
	for _, t := range r.tasks {
		if len(res) == limit {
			break
		}
		res = append(res, t)
	}
	return res, nil
}

func (r *fakeTaskRepo) MarkTaskProcessing(_ context.Context, id string) error {
	r.processing = append(r.processing, id)
	return nil
}

func (r *fakeTaskRepo) DeleteTask(_ context.Context, id string) error {
	r.deleted = append(r.deleted, id)
	delete(r.tasks, id)
	return nil
}

func (r *fakeTaskRepo) UpdateTaskFailure(_ context.Context, id string, attempt int, status repository.TaskStatus, _ time.Time) error {
	r.failures[id] = status
	r.tasks[id].AttemptCount = attempt
	return nil
}

type fakePublisher struct {
	err  error
	keys []string
}

func (p *fakePublisher) Publish(_, key string, _ []byte) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	return nil
}

var _ repository.TaskRepository = (*fakeTaskRepo)(nil)

func TestPublishedTasksAreDeleted(t *testing.T) {
	repo := newFakeTaskRepo(&repository.Task{ID: "t1", EventKey: "r1", Payload: "{}"})
	pub := &fakePublisher{}
	p := NewTaskProcessor(repo, pub, "events", time.Second, 10)

	p.ProcessPendingTasks(context.Background())

	assert.Equal(t, []string{"r1"}, pub.keys)
	assert.Equal(t, []string{"t1"}, repo.processing)
	assert.Equal(t, []string{"t1"}, repo.deleted)
}

func TestFailedPublishIsRetriedThenGivenUp(t *testing.T) {
	repo := newFakeTaskRepo(&repository.Task{ID: "t1", EventKey: "r1"})
	pub := &fakePublisher{err: errors.New("broker down")}
	p := NewTaskProcessor(repo, pub, "events", time.Second, 10)

	p.ProcessPendingTasks(context.Background())
	assert.Equal(t, repository.TaskStatusFailed, repo.failures["t1"])
	assert.Empty(t, repo.deleted)

	p.ProcessPendingTasks(context.Background())
	p.ProcessPendingTasks(context.Background())
	assert.Equal(t, repository.TaskStatusNoAttemptsLeft, repo.failures["t1"])
	assert.Equal(t, 3, repo.tasks["t1"].AttemptCount)
}

func TestFetchErrorDoesNothing(t *testing.T) {
	repo := newFakeTaskRepo()
	repo.getErr = errors.New("db down")
	pub := &fakePublisher{}
	p := NewTaskProcessor(repo, pub, "events", time.Second, 10)

	p.ProcessPendingTasks(context.Background())
	assert.Empty(t, pub.keys)
}

type signalPublisher struct {
	sent chan string
}

func (p *signalPublisher) Publish(_, key string, _ []byte) error {
	p.sent <- key
	return nil
}

func TestStartStopsOnCancel(t *testing.T) {
	repo := newFakeTaskRepo(&repository.Task{ID: "t1", EventKey: "r1"})
	pub := &signalPublisher{sent: make(chan string, 1)}
	p := NewTaskProcessor(repo, pub, "events", 5*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- p.Start(ctx) }()

	select {
	case key := <-pub.sent:
		assert.Equal(t, "r1", key)
	case <-time.After(time.Second):
		t.Fatal("task was not published")
	}
	cancel()
	assert.NoError(t, <-done)
}
