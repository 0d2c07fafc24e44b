package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/store"
)

// CustomerStore is the subset of customer persistence the resolver needs.
type CustomerStore interface {
	ResolveByIdentifier(ctx context.Context, identifierType, identifierValue string) (store.Customer, error)
	GetByEmail(ctx context.Context, email string) (store.Customer, error)
	GetByPhone(ctx context.Context, phone string) (store.Customer, error)
	Create(ctx context.Context, in store.NewCustomer) (store.Customer, error)
	LinkIdentifier(ctx context.Context, customerID, identifierType, identifierValue, channel string) error
}

// Resolver maps raw per-channel identifiers to durable customer records.
// Resolving the same identifier twice always yields the same customer id;
// the identifier uniqueness constraint is the safety net under concurrent
// first contact.
type Resolver struct {
	customers CustomerStore
	logger    *slog.Logger
}

func NewResolver(log *slog.Logger, customers CustomerStore) *Resolver {
	return &Resolver{
		customers: customers,
		logger:    log.With(slog.String("component", "identity")),
	}
}

// Resolve finds or creates the customer behind an identifier. Lookup order:
// identifier mapping, direct email match, then create with a placeholder
// email for non-email identifiers.
func (r *Resolver) Resolve(ctx context.Context, identifierValue string, identifierType channel.IdentifierType, ch channel.ChannelType) (store.Customer, error) {
	identifierValue = strings.TrimSpace(identifierValue)
	if identifierValue == "" {
		return store.Customer{}, fmt.Errorf("identifier value is required")
	}

	customer, err := r.customers.ResolveByIdentifier(ctx, identifierType.String(), identifierValue)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Customer{}, fmt.Errorf("resolve identifier: %w", err)
	}

	customer, err = r.lookupDirect(ctx, identifierValue, identifierType)
	if err == nil {
		if err := r.customers.LinkIdentifier(ctx, customer.ID, identifierType.String(), identifierValue, ch.String()); err != nil {
			return store.Customer{}, err
		}
		return customer, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Customer{}, err
	}

	created, err := r.createCustomer(ctx, identifierValue, identifierType)
	if err != nil {
		return store.Customer{}, err
	}

	if err := r.customers.LinkIdentifier(ctx, created.ID, identifierType.String(), identifierValue, ch.String()); err != nil {
		return store.Customer{}, err
	}

	// A concurrent first contact may have linked the identifier before us.
	// The linked row wins; our freshly created record is abandoned and the
	// stable id is whatever the mapping now points at.
	winner, err := r.customers.ResolveByIdentifier(ctx, identifierType.String(), identifierValue)
	if err == nil && winner.ID != created.ID {
		r.logger.Info("identifier create race resolved to existing customer",
			slog.String("identifier_type", identifierType.String()),
			slog.String("customer_id", winner.ID),
		)
		return winner, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return store.Customer{}, fmt.Errorf("confirm identifier: %w", err)
	}

	return created, nil
}

// lookupDirect matches an identifier against the customer record's own
// email or phone column before falling back to creation.
func (r *Resolver) lookupDirect(ctx context.Context, identifierValue string, identifierType channel.IdentifierType) (store.Customer, error) {
	switch identifierType {
	case channel.IdentifierEmail:
		customer, err := r.customers.GetByEmail(ctx, identifierValue)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return store.Customer{}, fmt.Errorf("lookup by email: %w", err)
		}
		return customer, err
	case channel.IdentifierPhone:
		customer, err := r.customers.GetByPhone(ctx, identifierValue)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return store.Customer{}, fmt.Errorf("lookup by phone: %w", err)
		}
		return customer, err
	default:
		return store.Customer{}, store.ErrNotFound
	}
}

func (r *Resolver) createCustomer(ctx context.Context, identifierValue string, identifierType channel.IdentifierType) (store.Customer, error) {
	in := store.NewCustomer{}
	if identifierType == channel.IdentifierEmail {
		in.Email = identifierValue
	} else {
		// Non-email identifiers get a placeholder address so the email
		// uniqueness constraint still holds.
		in.Email = fmt.Sprintf("%s@unknown.local", identifierValue)
		in.Phone = identifierValue
	}

	created, err := r.customers.Create(ctx, in)
	if err != nil {
		// Lost a create race on the email unique constraint: re-read.
		existing, lookupErr := r.customers.GetByEmail(ctx, in.Email)
		if lookupErr == nil {
			return existing, nil
		}
		return store.Customer{}, fmt.Errorf("create customer: %w", err)
	}
	return created, nil
}
