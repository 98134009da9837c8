package repository

import (
	"context"

	"gitlab.ozon.dev/qwestard/laundry/internal/models"
)

// RequestFilter selects requests by exact match on every non-empty field.
type RequestFilter struct {
	Status     models.Status
	CustomerID string
	ProviderID string
}

func (f RequestFilter) Match(r *models.Request) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.CustomerID != "" && r.CustomerID != f.CustomerID {
		return false
	}
	if f.ProviderID != "" && r.ProviderID != f.ProviderID {
		return false
	}
	return true
}

// MutateFunc changes a request in place. Returning an error aborts the update.
type MutateFunc func(r *models.Request) error

type RequestRepository interface {
	Create(ctx context.Context, r *models.Request) error
	// GetByID returns nil, nil when the request does not exist.
	GetByID(ctx context.Context, id string) (*models.Request, error)
	// List returns matching requests ordered by creation time.
	List(ctx context.Context, filter RequestFilter) ([]*models.Request, error)
	// Update reads the request, applies fn and writes the result as one step.
	// A missing request yields *models.NotFoundError.
	Update(ctx context.Context, id string, fn MutateFunc) (*models.Request, error)
}
