package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"gitlab.ozon.dev/qwestard/laundry/internal/models"
	"gitlab.ozon.dev/qwestard/laundry/internal/repository"
)

type snapshot struct {
	Requests []models.Request `json:"requests"`
	Messages []models.Message `json:"messages"`
}

// Store is the shared in-memory state: the signed-in user, every request and the
// message list. Each collection is read and replaced as a whole; the typed
// RequestRepository methods are built on top of that rule.
type Store struct {
	mu       sync.RWMutex
	user     *models.User
	requests []models.Request
	messages []models.Message
	dataFile string
}

// New returns an empty store. A non-empty dataFile is loaded now and rewritten on
// every change of the request or message collections.
func New(dataFile string) (*Store, error) {
	st := &Store{dataFile: dataFile}
	if dataFile == "" {
		return st, nil
	}
	if err := st.loadFromFile(); err != nil {
		return st, err
	}
	return st, nil
}

func (st *Store) loadFromFile() error {
	file, err := os.OpenFile(st.dataFile, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	var snap snapshot
	if err := json.NewDecoder(file).Decode(&snap); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("ошибка декодирования файла: %w", err)
	}
	st.requests = snap.Requests
	st.messages = snap.Messages
	return nil
}

// saveToFile writes the given collections; the caller assigns them only on success.
func (st *Store) saveToFile(requests []models.Request, messages []models.Message) error {
	if st.dataFile == "" {
		return nil
	}
	file, err := os.OpenFile(st.dataFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot{Requests: requests, Messages: messages})
}

// User returns the signed-in identity, if any.
func (st *Store) User() (models.User, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.user == nil {
		return models.User{}, false
	}
	return st.user.Clone(), true
}

func (st *Store) SetUser(u *models.User) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if u == nil {
		st.user = nil
		return
	}
	c := u.Clone()
	st.user = &c
}

// Requests returns a copy of the whole request collection in insertion order.
func (st *Store) Requests() []models.Request {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return cloneRequests(st.requests)
}

// SetRequests replaces the whole request collection.
func (st *Store) SetRequests(requests []models.Request) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.setRequestsLocked(cloneRequests(requests))
}

func (st *Store) setRequestsLocked(requests []models.Request) error {
	if err := st.saveToFile(requests, st.messages); err != nil {
		return fmt.Errorf("сбой при сохранении файла: %w", err)
	}
	st.requests = requests
	return nil
}

func (st *Store) Messages() []models.Message {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return append([]models.Message(nil), st.messages...)
}

func (st *Store) SetMessages(messages []models.Message) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	next := append([]models.Message(nil), messages...)
	if err := st.saveToFile(st.requests, next); err != nil {
		return fmt.Errorf("сбой при сохранении файла: %w", err)
	}
	st.messages = next
	return nil
}

// Create appends r to the collection.
func (st *Store) Create(_ context.Context, r *models.Request) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	for i := range st.requests {
		if st.requests[i].ID == r.ID {
			return fmt.Errorf("заявка с ID %s уже существует", r.ID)
		}
	}
	next := cloneRequests(st.requests)
	next = append(next, r.Clone())
	return st.setRequestsLocked(next)
}

func (st *Store) GetByID(_ context.Context, id string) (*models.Request, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for i := range st.requests {
		if st.requests[i].ID == id {
			r := st.requests[i].Clone()
			return &r, nil
		}
	}
	return nil, nil
}

func (st *Store) List(_ context.Context, filter repository.RequestFilter) ([]*models.Request, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	res := make([]*models.Request, 0)
	for i := range st.requests {
		if !filter.Match(&st.requests[i]) {
			continue
		}
		r := st.requests[i].Clone()
		res = append(res, &r)
	}
	sortByCreatedAt(res)
	return res, nil
}

// Update reads the whole collection, applies fn to a copy of one request and writes
// the whole collection back. Nothing changes when fn or the snapshot write fails.
func (st *Store) Update(_ context.Context, id string, fn repository.MutateFunc) (*models.Request, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	next := cloneRequests(st.requests)
	for i := range next {
		if next[i].ID != id {
			continue
		}
		if err := fn(&next[i]); err != nil {
			return nil, err
		}
		if err := st.setRequestsLocked(next); err != nil {
			return nil, err
		}
		r := next[i].Clone()
		return &r, nil
	}
	return nil, &models.NotFoundError{RequestID: id}
}

func cloneRequests(in []models.Request) []models.Request {
	out := make([]models.Request, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

func sortByCreatedAt(requests []*models.Request) {
	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
}

var _ repository.RequestRepository = (*Store)(nil)
