package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/campaign-api/internal/model"
	"github.com/jwalitptl/campaign-api/internal/repository/memory"
	"github.com/jwalitptl/campaign-api/internal/service/campaign"
	"github.com/jwalitptl/campaign-api/internal/service/recipient"
	"github.com/jwalitptl/campaign-api/pkg/logger"
)

type fakeTransport struct {
	sent      []Message
	failPhone string
	fatalAt   int
}

func (f *fakeTransport) Send(ctx context.Context, msg Message) (Result, error) {
	if f.fatalAt > 0 && len(f.sent) == f.fatalAt {
		return Result{}, fmt.Errorf("carrier: %w", ErrFatal)
	}
	if msg.PhoneNumber == f.failPhone {
		return Result{}, stderrors.New("rejected")
	}
	f.sent = append(f.sent, msg)
	return Result{Delivered: true}, nil
}

type fixture struct {
	store     *memory.Store
	campaigns *campaign.Service
	owner     model.Principal
}

func newFixture() *fixture {
	store := memory.NewStore()
	return &fixture{
		store:     store,
		campaigns: campaign.NewService(store, logger.Nop(), nil),
		owner:     model.Principal{TenantID: uuid.New(), UserID: uuid.New()},
	}
}

// sending creates a campaign with the given recipients, sends it and
// returns the queued dispatch event.
func (f *fixture) sending(t *testing.T, phones ...string) (*model.Campaign, *model.OutboxEvent) {
	t.Helper()
	ctx := context.Background()

	c, err := f.campaigns.Create(ctx, f.owner, &model.CreateCampaignRequest{
		Name:             "Promo",
		MessageTemplate:  "Hi {name}, code {code}",
		VariableDefaults: map[string]string{"code": "SAVE10"},
	})
	require.NoError(t, err)

	in := make([]model.RecipientInput, len(phones))
	for i, p := range phones {
		name := fmt.Sprintf("R%d", i+1)
		in[i] = model.RecipientInput{PhoneNumber: p, Name: &name}
	}
	_, err = recipient.NewService(f.store, logger.Nop(), nil).AddBulk(ctx, f.owner, c.ID, in)
	require.NoError(t, err)

	_, err = f.campaigns.Send(ctx, f.owner, c.ID)
	require.NoError(t, err)

	events := f.store.OutboxEvents()
	require.NotEmpty(t, events)
	return c, events[len(events)-1]
}

func TestHandleEventCompletesCampaign(t *testing.T) {
	f := newFixture()
	c, event := f.sending(t, "+1111111111", "+1222222222", "+1333333333")

	transport := &fakeTransport{failPhone: "+1222222222"}
	svc := NewService(f.store, f.campaigns, transport, logger.Nop(), nil)

	require.NoError(t, svc.HandleEvent(context.Background(), event))

	require.Len(t, transport.sent, 2)
	assert.Equal(t, "Hi R1, code SAVE10", transport.sent[0].Body)
	assert.Equal(t, "+1333333333", transport.sent[1].PhoneNumber)

	got, err := f.campaigns.Get(context.Background(), f.owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusCompleted, got.Status)
	assert.Equal(t, 2, got.SentCount)
	assert.Equal(t, 2, got.DeliveredCount)
	assert.Equal(t, 1, got.FailedCount)

	// redelivery is a no-op once the campaign has left sending
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Len(t, transport.sent, 2)
}

func TestHandleEventFatalFailsCampaign(t *testing.T) {
	f := newFixture()
	c, event := f.sending(t, "+1111111111", "+1222222222", "+1333333333")

	svc := NewService(f.store, f.campaigns, &fakeTransport{fatalAt: 1}, logger.Nop(), nil)
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	got, err := f.campaigns.Get(context.Background(), f.owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusFailed, got.Status)
	assert.Equal(t, 1, got.SentCount)
	assert.NotNil(t, got.CompletedAt)
}

func TestHandleEventCancelledContext(t *testing.T) {
	f := newFixture()
	c, event := f.sending(t, "+1111111111")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport := &fakeTransport{}
	svc := NewService(f.store, f.campaigns, transport, logger.Nop(), nil)
	require.NoError(t, svc.HandleEvent(ctx, event))

	got, err := f.campaigns.Get(context.Background(), f.owner, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusFailed, got.Status)
	assert.Zero(t, got.SentCount)
	assert.Empty(t, transport.sent)
}

func TestHandleEventIgnoresUnknownCampaign(t *testing.T) {
	f := newFixture()
	event, err := model.NewOutboxEvent(f.owner.TenantID, uuid.New(), model.EventCampaignDispatch, model.DispatchPayload{
		TenantID:   f.owner.TenantID,
		CampaignID: uuid.New(),
	})
	require.NoError(t, err)

	svc := NewService(f.store, f.campaigns, &fakeTransport{}, logger.Nop(), nil)
	assert.NoError(t, svc.HandleEvent(context.Background(), event))

	event.Payload = []byte("{")
	assert.Error(t, svc.HandleEvent(context.Background(), event))
}

func TestLogTransport(t *testing.T) {
	tr := NewLogTransport(logger.Nop())

	res, err := tr.Send(context.Background(), Message{PhoneNumber: "+1111111111", Body: "hi"})
	require.NoError(t, err)
	assert.True(t, res.Delivered)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tr.Send(ctx, Message{})
	assert.ErrorIs(t, err, context.Canceled)
}
