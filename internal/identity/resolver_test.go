package identity

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/store"
)

type fakeCustomerStore struct {
	byIdentifier map[string]store.Customer
	byEmail      map[string]store.Customer
	byPhone      map[string]store.Customer
	created      []store.NewCustomer
	linked       []string
	createErr    error
}

func newFakeCustomerStore() *fakeCustomerStore {
	return &fakeCustomerStore{
		byIdentifier: map[string]store.Customer{},
		byEmail:      map[string]store.Customer{},
		byPhone:      map[string]store.Customer{},
	}
}

func (f *fakeCustomerStore) ResolveByIdentifier(ctx context.Context, identifierType, identifierValue string) (store.Customer, error) {
	if c, ok := f.byIdentifier[identifierType+":"+identifierValue]; ok {
		return c, nil
	}
	return store.Customer{}, store.ErrNotFound
}

func (f *fakeCustomerStore) GetByEmail(ctx context.Context, email string) (store.Customer, error) {
	if c, ok := f.byEmail[email]; ok {
		return c, nil
	}
	return store.Customer{}, store.ErrNotFound
}

func (f *fakeCustomerStore) GetByPhone(ctx context.Context, phone string) (store.Customer, error) {
	if c, ok := f.byPhone[phone]; ok {
		return c, nil
	}
	return store.Customer{}, store.ErrNotFound
}

func (f *fakeCustomerStore) Create(ctx context.Context, in store.NewCustomer) (store.Customer, error) {
	if f.createErr != nil {
		return store.Customer{}, f.createErr
	}
	f.created = append(f.created, in)
	c := store.Customer{ID: "created-" + in.Email, Email: in.Email, Phone: in.Phone}
	f.byEmail[in.Email] = c
	if in.Phone != "" {
		f.byPhone[in.Phone] = c
	}
	return c, nil
}

func (f *fakeCustomerStore) LinkIdentifier(ctx context.Context, customerID, identifierType, identifierValue, channel string) error {
	f.linked = append(f.linked, customerID+"|"+identifierType+":"+identifierValue)
	return nil
}

func TestResolveExistingIdentifier(t *testing.T) {
	t.Parallel()

	fake := newFakeCustomerStore()
	fake.byIdentifier["email:jo@example.com"] = store.Customer{ID: "c1", Email: "jo@example.com"}

	r := NewResolver(slog.Default(), fake)
	got, err := r.Resolve(context.Background(), "jo@example.com", channel.IdentifierEmail, channel.TypeEmail)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "c1" {
		t.Fatalf("expected c1, got %q", got.ID)
	}
	if len(fake.created) != 0 {
		t.Fatal("no customer should be created for a known identifier")
	}
}

func TestResolveLinksExistingEmailCustomer(t *testing.T) {
	t.Parallel()

	fake := newFakeCustomerStore()
	fake.byEmail["jo@example.com"] = store.Customer{ID: "c2", Email: "jo@example.com"}

	r := NewResolver(slog.Default(), fake)
	got, err := r.Resolve(context.Background(), "jo@example.com", channel.IdentifierEmail, channel.TypeWebForm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "c2" {
		t.Fatalf("expected c2, got %q", got.ID)
	}
	if len(fake.linked) != 1 {
		t.Fatalf("expected one identifier link, got %d", len(fake.linked))
	}
	if len(fake.created) != 0 {
		t.Fatal("existing email customer must not be recreated")
	}
}

func TestResolveLinksExistingPhoneCustomer(t *testing.T) {
	t.Parallel()

	fake := newFakeCustomerStore()
	fake.byPhone["+14155550100"] = store.Customer{ID: "c7", Email: "pat@example.com", Phone: "+14155550100"}

	r := NewResolver(slog.Default(), fake)
	got, err := r.Resolve(context.Background(), "+14155550100", channel.IdentifierPhone, channel.TypeWhatsApp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "c7" {
		t.Fatalf("expected c7, got %q", got.ID)
	}
	if len(fake.created) != 0 {
		t.Fatal("existing phone customer must not be recreated")
	}
	if len(fake.linked) != 1 {
		t.Fatalf("expected one identifier link, got %d", len(fake.linked))
	}
}

func TestResolveCreatesPlaceholderForPhone(t *testing.T) {
	t.Parallel()

	fake := newFakeCustomerStore()

	r := NewResolver(slog.Default(), fake)
	got, err := r.Resolve(context.Background(), "+14155550100", channel.IdentifierPhone, channel.TypeWhatsApp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.created) != 1 {
		t.Fatalf("expected one create, got %d", len(fake.created))
	}
	created := fake.created[0]
	if created.Email != "+14155550100@unknown.local" {
		t.Fatalf("expected placeholder email, got %q", created.Email)
	}
	if created.Phone != "+14155550100" {
		t.Fatalf("expected phone set, got %q", created.Phone)
	}
	if got.Phone != "+14155550100" {
		t.Fatalf("expected resolved phone, got %q", got.Phone)
	}
	if len(fake.linked) != 1 {
		t.Fatalf("expected identifier linked, got %d links", len(fake.linked))
	}
}

func TestResolveIdempotent(t *testing.T) {
	t.Parallel()

	fake := newFakeCustomerStore()
	r := NewResolver(slog.Default(), fake)

	first, err := r.Resolve(context.Background(), "sam@example.com", channel.IdentifierEmail, channel.TypeEmail)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Resolve(context.Background(), "sam@example.com", channel.IdentifierEmail, channel.TypeEmail)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("resolution must be idempotent: %q != %q", first.ID, second.ID)
	}
	if len(fake.created) != 1 {
		t.Fatalf("expected exactly one create, got %d", len(fake.created))
	}
}

func TestResolveCreateRaceYieldsWinner(t *testing.T) {
	t.Parallel()

	// The identifier mapping reveals another customer after our create:
	// the mapped row wins.
	fake := newFakeCustomerStore()
	race := &racingStore{
		fakeCustomerStore: fake,
		winner:            store.Customer{ID: "winner", Email: "race@example.com"},
	}
	r := NewResolver(slog.Default(), race)

	got, err := r.Resolve(context.Background(), "race@example.com", channel.IdentifierEmail, channel.TypeEmail)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "winner" {
		t.Fatalf("expected winning row, got %q", got.ID)
	}
}

func TestResolveCreateConflictRereads(t *testing.T) {
	t.Parallel()

	// A unique-constraint loss on create falls back to the existing row.
	fake := newFakeCustomerStore()
	fake.createErr = errors.New("duplicate key value violates unique constraint")
	fake.byEmail["+14155550100@unknown.local"] = store.Customer{ID: "c9", Email: "+14155550100@unknown.local"}

	r := NewResolver(slog.Default(), fake)
	got, err := r.Resolve(context.Background(), "+14155550100", channel.IdentifierPhone, channel.TypeWhatsApp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "c9" {
		t.Fatalf("expected existing customer, got %q", got.ID)
	}
}

func TestResolveEmptyIdentifier(t *testing.T) {
	t.Parallel()

	r := NewResolver(slog.Default(), newFakeCustomerStore())
	if _, err := r.Resolve(context.Background(), "   ", channel.IdentifierEmail, channel.TypeEmail); err == nil {
		t.Fatal("expected error for empty identifier")
	}
}

// racingStore makes the post-create identifier confirmation return a
// different customer, simulating a concurrent first contact.
type racingStore struct {
	*fakeCustomerStore
	winner   store.Customer
	resolved int
}

func (r *racingStore) ResolveByIdentifier(ctx context.Context, identifierType, identifierValue string) (store.Customer, error) {
	r.resolved++
	if r.resolved == 1 {
		return store.Customer{}, store.ErrNotFound
	}
	return r.winner, nil
}
