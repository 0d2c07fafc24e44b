package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const customerColumns = `id::text, email, COALESCE(phone, ''), COALESCE(name, ''), COALESCE(company, ''), plan, created_at`

// CustomerStore persists customers and their per-channel identifiers.
type CustomerStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewCustomerStore(log *slog.Logger, pool *pgxpool.Pool) *CustomerStore {
	return &CustomerStore{
		pool:   pool,
		logger: log.With(slog.String("store", "customers")),
	}
}

// Create inserts a new customer record.
func (s *CustomerStore) Create(ctx context.Context, in NewCustomer) (Customer, error) {
	plan := in.Plan
	if plan == "" {
		plan = "free"
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO customers (email, name, phone, company, plan)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5)
		 RETURNING `+customerColumns,
		in.Email, in.Name, in.Phone, in.Company, plan,
	)
	customer, err := scanCustomer(row)
	if err != nil {
		return Customer{}, fmt.Errorf("create customer: %w", err)
	}
	return customer, nil
}

// GetByID finds a customer by id.
func (s *CustomerStore) GetByID(ctx context.Context, id string) (Customer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	customer, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("get customer: %w", err)
	}
	return customer, nil
}

// GetByEmail finds a customer by email.
func (s *CustomerStore) GetByEmail(ctx context.Context, email string) (Customer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE email = $1`, email)
	customer, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("get customer by email: %w", err)
	}
	return customer, nil
}

// GetByPhone finds a customer by phone number.
func (s *CustomerStore) GetByPhone(ctx context.Context, phone string) (Customer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE phone = $1`, phone)
	customer, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("get customer by phone: %w", err)
	}
	return customer, nil
}

// ResolveByIdentifier finds the customer linked to a channel identifier.
func (s *CustomerStore) ResolveByIdentifier(ctx context.Context, identifierType, identifierValue string) (Customer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT c.id::text, c.email, COALESCE(c.phone, ''), COALESCE(c.name, ''), COALESCE(c.company, ''), c.plan, c.created_at
		 FROM customers c
		 JOIN customer_identifiers ci ON c.id = ci.customer_id
		 WHERE ci.identifier_type = $1 AND ci.identifier_value = $2`,
		identifierType, identifierValue,
	)
	customer, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("resolve identifier: %w", err)
	}
	return customer, nil
}

// LinkIdentifier records a channel identifier for a customer. The unique
// constraint on (identifier_type, identifier_value) makes the insert
// idempotent: a duplicate is a no-op, not an error.
func (s *CustomerStore) LinkIdentifier(ctx context.Context, customerID, identifierType, identifierValue, channel string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO customer_identifiers (customer_id, identifier_type, identifier_value, channel)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (identifier_type, identifier_value) DO NOTHING`,
		customerID, identifierType, identifierValue, channel,
	)
	if err != nil {
		return fmt.Errorf("link identifier: %w", err)
	}
	return nil
}

// Update applies the non-nil fields of the update struct.
func (s *CustomerStore) Update(ctx context.Context, id string, update CustomerUpdate) (Customer, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE customers SET
		    email = COALESCE($2, email),
		    phone = COALESCE($3, phone),
		    name = COALESCE($4, name),
		    company = COALESCE($5, company),
		    plan = COALESCE($6, plan)
		 WHERE id = $1
		 RETURNING `+customerColumns,
		id, update.Email, update.Phone, update.Name, update.Company, update.Plan,
	)
	customer, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("update customer: %w", err)
	}
	return customer, nil
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Email, &c.Phone, &c.Name, &c.Company, &c.Plan, &c.CreatedAt)
	return c, err
}
