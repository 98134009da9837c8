package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"gitlab.ozon.dev/qwestard/laundry/internal/audit"
	"gitlab.ozon.dev/qwestard/laundry/internal/models"
	"gitlab.ozon.dev/qwestard/laundry/internal/pricing"
	"gitlab.ozon.dev/qwestard/laundry/internal/repository"
)

type Auditor interface {
	Log(record audit.AuditLog)
}

// Outbox stores events for asynchronous publication.
type Outbox interface {
	CreateTask(ctx context.Context, key string, payload []byte) error
}

type Option func(*LaundryService)

func WithAuditor(a Auditor) Option {
	return func(s *LaundryService) { s.auditor = a }
}

func WithOutbox(o Outbox) Option {
	return func(s *LaundryService) { s.outbox = o }
}

func WithClock(now func() time.Time) Option {
	return func(s *LaundryService) { s.now = now }
}

// LaundryService is the only place requests are created or change status.
type LaundryService struct {
	repo    repository.RequestRepository
	ids     models.IDGenerator
	pricer  pricing.Pricer
	auditor Auditor
	outbox  Outbox
	now     func() time.Time
}

func NewLaundryService(repo repository.RequestRepository, ids models.IDGenerator, pricer pricing.Pricer, opts ...Option) *LaundryService {
	s := &LaundryService{
		repo:   repo,
		ids:    ids,
		pricer: pricer,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateRequestInput struct {
	Items               string `json:"items"`
	SpecialInstructions string `json:"special_instructions"`
	PickupAddress       string `json:"pickup_address"`
	DeliveryAddress     string `json:"delivery_address"`
}

// ParseItems splits a comma-separated list, trims every item and drops empty ones.
func ParseItems(s string) []string {
	parts := strings.Split(s, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}

func (s *LaundryService) CreateRequest(ctx context.Context, actor models.User, in CreateRequestInput) (*models.Request, error) {
	if actor.Role != models.RoleCustomer {
		return nil, &models.NotAuthorizedError{ActorID: actor.ID, Action: "create requests"}
	}
	items := ParseItems(in.Items)
	var problems []string
	if len(items) == 0 {
		problems = append(problems, "items are required")
	}
	if strings.TrimSpace(in.PickupAddress) == "" {
		problems = append(problems, "pickup address is required")
	}
	if strings.TrimSpace(in.DeliveryAddress) == "" {
		problems = append(problems, "delivery address is required")
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, strings.Join(problems, ", "))
	}

	now := s.now()
	r := &models.Request{
		ID:                  s.ids.NewID(),
		CustomerID:          actor.ID,
		Status:              models.StatusPending,
		Items:               items,
		SpecialInstructions: in.SpecialInstructions,
		PickupAddress:       strings.TrimSpace(in.PickupAddress),
		DeliveryAddress:     strings.TrimSpace(in.DeliveryAddress),
		EstimatedPrice:      s.pricer.Estimate(items),
		CreatedAt:           now,
		LastStateChange:     now,
		Customer:            actor,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	s.record(ctx, actor, r, "", "request created")
	return r, nil
}

// AcceptRequest claims a pending request for the acting provider.
func (s *LaundryService) AcceptRequest(ctx context.Context, actor models.User, id string) (*models.Request, error) {
	if actor.Role != models.RoleProvider {
		return nil, &models.NotAuthorizedError{ActorID: actor.ID, Action: "accept requests"}
	}
	r, err := s.repo.Update(ctx, id, func(r *models.Request) error {
		return r.Accept(actor, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, r, models.StatusPending, "request accepted")
	return r, nil
}

// AdvanceStatus moves a request the actor is assigned to one step forward.
func (s *LaundryService) AdvanceStatus(ctx context.Context, actor models.User, id string) (*models.Request, error) {
	return s.transition(ctx, actor, id, func(current models.Status) (models.Status, bool) {
		return current.Next()
	})
}

// SetStatus fires only when target is the direct successor of the current status.
func (s *LaundryService) SetStatus(ctx context.Context, actor models.User, id string, target models.Status) (*models.Request, error) {
	if target == models.StatusAccepted {
		return s.AcceptRequest(ctx, actor, id)
	}
	return s.transition(ctx, actor, id, func(models.Status) (models.Status, bool) {
		return target, target.Valid()
	})
}

func (s *LaundryService) transition(ctx context.Context, actor models.User, id string, pick func(models.Status) (models.Status, bool)) (*models.Request, error) {
	var prev models.Status
	r, err := s.repo.Update(ctx, id, func(r *models.Request) error {
		if actor.Role != models.RoleProvider || r.ProviderID == "" || r.ProviderID != actor.ID {
			return &models.NotAuthorizedError{ActorID: actor.ID, Action: "update request " + r.ID}
		}
		prev = r.Status
		target, ok := pick(r.Status)
		if !ok {
			return &models.InvalidTransitionError{RequestID: r.ID, From: r.Status, To: target}
		}
		return r.MoveTo(target, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, r, prev, "status changed")
	return r, nil
}

// GetRequest is visible to its customer, its provider, and to any provider while pending.
func (s *LaundryService) GetRequest(ctx context.Context, actor models.User, id string) (*models.Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &models.NotFoundError{RequestID: id}
	}
	switch {
	case actor.Role == models.RoleCustomer && r.CustomerID == actor.ID:
	case actor.Role == models.RoleProvider && (r.ProviderID == actor.ID || r.Status == models.StatusPending):
	default:
		return nil, &models.NotAuthorizedError{ActorID: actor.ID, Action: "view request " + id}
	}
	return r, nil
}

// AvailableRequests is every pending request; it does not depend on who asks.
func (s *LaundryService) AvailableRequests(ctx context.Context) ([]*models.Request, error) {
	return s.repo.List(ctx, repository.RequestFilter{Status: models.StatusPending})
}

func (s *LaundryService) ProviderJobs(ctx context.Context, providerID string) ([]*models.Request, error) {
	if providerID == "" {
		return []*models.Request{}, nil
	}
	return s.repo.List(ctx, repository.RequestFilter{ProviderID: providerID})
}

func (s *LaundryService) CustomerRequests(ctx context.Context, customerID string) ([]*models.Request, error) {
	if customerID == "" {
		return []*models.Request{}, nil
	}
	return s.repo.List(ctx, repository.RequestFilter{CustomerID: customerID})
}

func (s *LaundryService) record(ctx context.Context, actor models.User, r *models.Request, old models.Status, msg string) {
	if s.auditor != nil {
		s.auditor.Log(audit.AuditLog{
			Timestamp: s.now(),
			RequestID: r.ID,
			ActorID:   actor.ID,
			OldStatus: string(old),
			NewStatus: string(r.Status),
			Message:   msg,
		})
	}
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(models.StatusEvent{
		Type:       models.EventStatusChanged,
		RequestID:  r.ID,
		CustomerID: r.CustomerID,
		ProviderID: r.ProviderID,
		OldStatus:  old,
		NewStatus:  r.Status,
		OccurredAt: r.LastStateChange,
	})
	if err != nil {
		log.Printf("Error encoding event for request %s: %v", r.ID, err)
		return
	}
	if err := s.outbox.CreateTask(ctx, r.ID, payload); err != nil {
		log.Printf("Error enqueueing event for request %s: %v", r.ID, err)
	}
}
