package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/store"
)

type fakeIdentity struct {
	customer store.Customer
	err      error
	calls    int
}

func (f *fakeIdentity) Resolve(ctx context.Context, identifierValue string, identifierType channel.IdentifierType, ch channel.ChannelType) (store.Customer, error) {
	f.calls++
	if f.err != nil {
		return store.Customer{}, f.err
	}
	return f.customer, nil
}

type fakeConversations struct {
	conversation store.Conversation
	err          error
}

func (f *fakeConversations) Resolve(ctx context.Context, customerID, ch string) (store.Conversation, error) {
	if f.err != nil {
		return store.Conversation{}, f.err
	}
	return f.conversation, nil
}

type fakeTickets struct {
	ticket  store.Ticket
	err     error
	created []store.NewTicket
}

func (f *fakeTickets) Create(ctx context.Context, in store.NewTicket) (store.Ticket, error) {
	if f.err != nil {
		return store.Ticket{}, f.err
	}
	f.created = append(f.created, in)
	return f.ticket, nil
}

type fakeMessages struct {
	stored []store.NewMessage
	err    error
}

func (f *fakeMessages) Store(ctx context.Context, in store.NewMessage) (store.Message, error) {
	if f.err != nil {
		return store.Message{}, f.err
	}
	f.stored = append(f.stored, in)
	return store.Message{ID: "msg-1"}, nil
}

type fakePublisher struct {
	published []any
	keys      []string
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, key string, v any) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, v)
	return nil
}

type testValidator struct {
	validate *validator.Validate
}

func (v *testValidator) Validate(i any) error { return v.validate.Struct(i) }

type formFixture struct {
	handler       *SupportFormHandler
	identity      *fakeIdentity
	conversations *fakeConversations
	tickets       *fakeTickets
	messages      *fakeMessages
	publisher     *fakePublisher
}

func newFormFixture() *formFixture {
	f := &formFixture{
		identity:      &fakeIdentity{customer: store.Customer{ID: "cust-1", Email: "eve@example.com", Name: "Eve"}},
		conversations: &fakeConversations{conversation: store.Conversation{ID: "conv-1", Status: store.ConversationActive}},
		tickets: &fakeTickets{ticket: store.Ticket{
			ID:           "id-1",
			TicketNumber: "TKT-1200",
			CreatedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		}},
		messages:  &fakeMessages{},
		publisher: &fakePublisher{},
	}
	f.handler = NewSupportFormHandler(slog.Default(), f.identity, f.conversations, f.tickets, f.messages, f.publisher)
	return f
}

func submitForm(t *testing.T, f *formFixture, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Validator = &testValidator{validate: validator.New()}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/support/form", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := f.handler.Submit(c)
	if err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

const validForm = `{
	"name": "Eve Adams",
	"email": "eve@example.com",
	"subject": "Cannot export reports",
	"category": "technical",
	"message": "The export button has been failing all morning."
}`

func TestSupportFormSubmit(t *testing.T) {
	t.Parallel()

	f := newFormFixture()
	rec := submitForm(t, f, validForm)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp SupportFormResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "TKT-1200", resp.TicketID)
	assert.Equal(t, "received", resp.Status)
	assert.Contains(t, resp.Message, "30 minutes")

	require.Len(t, f.tickets.created, 1)
	created := f.tickets.created[0]
	assert.Equal(t, "cust-1", created.CustomerID)
	assert.Equal(t, "technical", created.Category)
	assert.Equal(t, "medium", created.Priority)
	assert.Equal(t, "web_form", created.SourceChannel)

	require.Len(t, f.messages.stored, 1)
	assert.Equal(t, store.DirectionInbound, f.messages.stored[0].Direction)

	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, "eve@example.com", f.publisher.keys[0])
	inbound, ok := f.publisher.published[0].(channel.InboundMessage)
	require.True(t, ok)
	assert.Equal(t, channel.TypeWebForm, inbound.Channel)
	assert.Equal(t, "TKT-1200", inbound.Metadata["ticket_number"])
	assert.Equal(t, "conv-1", inbound.Metadata["conversation_id"])
}

func TestSupportFormValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"missing email", `{"name":"Eve Adams","subject":"Cannot export","category":"technical","message":"The export button is failing."}`},
		{"bad email", `{"name":"Eve Adams","email":"not-an-email","subject":"Cannot export","category":"technical","message":"The export button is failing."}`},
		{"short subject", `{"name":"Eve Adams","email":"eve@example.com","subject":"Hi","category":"technical","message":"The export button is failing."}`},
		{"unknown category", `{"name":"Eve Adams","email":"eve@example.com","subject":"Cannot export","category":"gossip","message":"The export button is failing."}`},
		{"short message", `{"name":"Eve Adams","email":"eve@example.com","subject":"Cannot export","category":"technical","message":"short"}`},
		{"bad priority", `{"name":"Eve Adams","email":"eve@example.com","subject":"Cannot export","category":"technical","priority":"urgent","message":"The export button is failing."}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFormFixture()
			rec := submitForm(t, f, tc.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Zero(t, f.identity.calls, "nothing should be persisted on validation failure")
		})
	}
}

func TestSupportFormMalformedJSON(t *testing.T) {
	t.Parallel()

	f := newFormFixture()
	rec := submitForm(t, f, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSupportFormExplicitPriorityKept(t *testing.T) {
	t.Parallel()

	f := newFormFixture()
	body := `{"name":"Eve Adams","email":"eve@example.com","subject":"Cannot export","category":"technical","priority":"high","message":"The export button is failing."}`
	rec := submitForm(t, f, body)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, f.tickets.created, 1)
	assert.Equal(t, "high", f.tickets.created[0].Priority)
}

func TestSupportFormStoreFailure(t *testing.T) {
	t.Parallel()

	f := newFormFixture()
	f.tickets.err = errors.New("database down")
	rec := submitForm(t, f, validForm)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, f.publisher.published, "no publish when ticket creation fails")
}

func TestSupportFormPublishFailureStillAccepted(t *testing.T) {
	t.Parallel()

	f := newFormFixture()
	f.publisher.err = errors.New("kafka unreachable")
	rec := submitForm(t, f, validForm)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp SupportFormResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "TKT-1200", resp.TicketID)
}
