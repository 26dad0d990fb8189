package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/campaign-api/internal/model"
	"github.com/jwalitptl/campaign-api/internal/repository"
)

type tx struct {
	state *state
}

func (t *tx) LockCampaign(ctx context.Context, tenantID, id uuid.UUID) (*model.Campaign, error) {
	return t.state.campaign(tenantID, id)
}

func (t *tx) UpdateCampaign(ctx context.Context, c *model.Campaign) error {
	cur, ok := t.state.campaigns[c.ID]
	if !ok || cur.TenantID != c.TenantID {
		return repository.ErrNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	updated := copyCampaign(c)
	updated.CreatedAt = cur.CreatedAt
	updated.CreatedBy = cur.CreatedBy
	t.state.campaigns[c.ID] = updated
	return nil
}

func (t *tx) DeleteCampaign(ctx context.Context, tenantID, id uuid.UUID) error {
	c, ok := t.state.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return repository.ErrNotFound
	}
	delete(t.state.campaigns, id)
	t.dropRecipients(id)
	return nil
}

func (t *tx) ExistingPhones(ctx context.Context, campaignID uuid.UUID, phones []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	for _, p := range phones {
		if _, ok := t.state.phones[recipientKey{campaignID, p}]; ok {
			existing[p] = struct{}{}
		}
	}
	return existing, nil
}

func (t *tx) InsertRecipients(ctx context.Context, recipients []*model.Recipient) (map[string]struct{}, error) {
	inserted := make(map[string]struct{}, len(recipients))
	for _, r := range recipients {
		key := recipientKey{r.CampaignID, r.PhoneNumber}
		if _, ok := t.state.phones[key]; ok {
			continue
		}
		t.state.phones[key] = struct{}{}
		t.state.recipients[r.CampaignID] = append(t.state.recipients[r.CampaignID], copyRecipient(r))
		inserted[r.PhoneNumber] = struct{}{}
	}
	return inserted, nil
}

func (t *tx) DeleteRecipient(ctx context.Context, campaignID, id uuid.UUID) error {
	list := t.state.recipients[campaignID]
	for i, r := range list {
		if r.ID != id {
			continue
		}
		delete(t.state.phones, recipientKey{campaignID, r.PhoneNumber})
		t.state.recipients[campaignID] = append(list[:i:i], list[i+1:]...)
		return nil
	}
	return repository.ErrNotFound
}

func (t *tx) DeleteRecipients(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	n := len(t.state.recipients[campaignID])
	t.dropRecipients(campaignID)
	return int64(n), nil
}

func (t *tx) CountRecipients(ctx context.Context, campaignID uuid.UUID) (int, error) {
	return len(t.state.recipients[campaignID]), nil
}

func (t *tx) CreateOutboxEvent(ctx context.Context, event *model.OutboxEvent) error {
	t.state.outbox = append(t.state.outbox, copyEvent(event))
	return nil
}

func (t *tx) dropRecipients(campaignID uuid.UUID) {
	for _, r := range t.state.recipients[campaignID] {
		delete(t.state.phones, recipientKey{campaignID, r.PhoneNumber})
	}
	delete(t.state.recipients, campaignID)
}

var _ repository.Tx = (*tx)(nil)
