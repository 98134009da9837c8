package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"gitlab.ozon.dev/qwestard/laundry/internal/models"
)

const selectRequests = `SELECT
		id, customer_id, provider_id, status, items, special_instructions,
		pickup_address, delivery_address, estimated_price, created_at, last_state_change,
		customer, provider
	FROM requests`

type requestRow struct {
	ID                  string         `db:"id"`
	CustomerID          string         `db:"customer_id"`
	ProviderID          sql.NullString `db:"provider_id"`
	Status              string         `db:"status"`
	Items               string         `db:"items"`
	SpecialInstructions string         `db:"special_instructions"`
	PickupAddress       string         `db:"pickup_address"`
	DeliveryAddress     string         `db:"delivery_address"`
	EstimatedPrice      int            `db:"estimated_price"`
	CreatedAt           time.Time      `db:"created_at"`
	LastStateChange     time.Time      `db:"last_state_change"`
	Customer            string         `db:"customer"`
	Provider            sql.NullString `db:"provider"`
}

func toRow(r *models.Request) (requestRow, error) {
	items, err := json.Marshal(r.Items)
	if err != nil {
		return requestRow{}, fmt.Errorf("marshal items: %w", err)
	}
	customer, err := json.Marshal(r.Customer)
	if err != nil {
		return requestRow{}, fmt.Errorf("marshal customer: %w", err)
	}
	row := requestRow{
		ID:                  r.ID,
		CustomerID:          r.CustomerID,
		ProviderID:          sql.NullString{String: r.ProviderID, Valid: r.ProviderID != ""},
		Status:              string(r.Status),
		Items:               string(items),
		SpecialInstructions: r.SpecialInstructions,
		PickupAddress:       r.PickupAddress,
		DeliveryAddress:     r.DeliveryAddress,
		EstimatedPrice:      r.EstimatedPrice,
		CreatedAt:           r.CreatedAt.UTC(),
		LastStateChange:     r.LastStateChange.UTC(),
		Customer:            string(customer),
	}
	if r.Provider != nil {
		provider, err := json.Marshal(r.Provider)
		if err != nil {
			return requestRow{}, fmt.Errorf("marshal provider: %w", err)
		}
		row.Provider = sql.NullString{String: string(provider), Valid: true}
	}
	return row, nil
}

func (row requestRow) toModel() (*models.Request, error) {
	r := &models.Request{
		ID:                  row.ID,
		CustomerID:          row.CustomerID,
		ProviderID:          row.ProviderID.String,
		Status:              models.Status(row.Status),
		SpecialInstructions: row.SpecialInstructions,
		PickupAddress:       row.PickupAddress,
		DeliveryAddress:     row.DeliveryAddress,
		EstimatedPrice:      row.EstimatedPrice,
		CreatedAt:           row.CreatedAt.UTC(),
		LastStateChange:     row.LastStateChange.UTC(),
	}
	if err := json.Unmarshal([]byte(row.Items), &r.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items of %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.Customer), &r.Customer); err != nil {
		return nil, fmt.Errorf("unmarshal customer of %s: %w", row.ID, err)
	}
	if row.Provider.Valid {
		r.Provider = &models.User{}
		if err := json.Unmarshal([]byte(row.Provider.String), r.Provider); err != nil {
			return nil, fmt.Errorf("unmarshal provider of %s: %w", row.ID, err)
		}
	}
	return r, nil
}

// SQLRequestRepository works on both postgres and sqlite: queries are written with ?
// placeholders and rebound for the driver.
type SQLRequestRepository struct {
	db *sqlx.DB
}

func NewSQLRequestRepository(db *sqlx.DB) *SQLRequestRepository {
	return &SQLRequestRepository{db: db}
}

func (r *SQLRequestRepository) Create(ctx context.Context, req *models.Request) error {
	row, err := toRow(req)
	if err != nil {
		return err
	}
	query := `INSERT INTO requests (
			id, customer_id, provider_id, status, items, special_instructions,
			pickup_address, delivery_address, estimated_price, created_at, last_state_change,
			customer, provider
		) VALUES (
			:id, :customer_id, :provider_id, :status, :items, :special_instructions,
			:pickup_address, :delivery_address, :estimated_price, :created_at, :last_state_change,
			:customer, :provider
		)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

func (r *SQLRequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	var row requestRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(selectRequests+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get request by id: %w", err)
	}
	return row.toModel()
}

func (r *SQLRequestRepository) List(ctx context.Context, filter RequestFilter) ([]*models.Request, error) {
	var filters []string
	var args []interface{}

	if filter.Status != "" {
		filters = append(filters, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.CustomerID != "" {
		filters = append(filters, "customer_id = ?")
		args = append(args, filter.CustomerID)
	}
	if filter.ProviderID != "" {
		filters = append(filters, "provider_id = ?")
		args = append(args, filter.ProviderID)
	}

	query := selectRequests
	if len(filters) > 0 {
		query += " WHERE " + strings.Join(filters, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	var rows []requestRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	res := make([]*models.Request, 0, len(rows))
	for _, row := range rows {
		req, err := row.toModel()
		if err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, nil
}

// Update guards the write with the status it read, so two concurrent accepts of the same
// request cannot both succeed.
func (r *SQLRequestRepository) Update(ctx context.Context, id string, fn MutateFunc) (*models.Request, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var row requestRow
	err = tx.GetContext(ctx, &row, tx.Rebind(selectRequests+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{RequestID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get request for update: %w", err)
	}
	req, err := row.toModel()
	if err != nil {
		return nil, err
	}
	prev := req.Status
	if err := fn(req); err != nil {
		return nil, err
	}

	if err := guardedUpdate(ctx, tx, req, prev); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return req, nil
}

// guardedUpdate writes req only if the stored status is still prev.
func guardedUpdate(ctx context.Context, tx *sqlx.Tx, req *models.Request, prev models.Status) error {
	next, err := toRow(req)
	if err != nil {
		return err
	}
	query := `UPDATE requests SET
			provider_id = ?, status = ?, items = ?, special_instructions = ?,
			pickup_address = ?, delivery_address = ?, estimated_price = ?,
			last_state_change = ?, provider = ?
		WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, tx.Rebind(query),
		next.ProviderID, next.Status, next.Items, next.SpecialInstructions,
		next.PickupAddress, next.DeliveryAddress, next.EstimatedPrice,
		next.LastStateChange, next.Provider,
		req.ID, string(prev),
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if n == 0 {
		return &models.InvalidTransitionError{RequestID: req.ID, From: prev, To: req.Status}
	}
	return nil
}
