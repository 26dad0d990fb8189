// Package memory is an in-process repository.Store. It backs the "memory"
// database driver and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/campaign-api/internal/model"
	"github.com/jwalitptl/campaign-api/internal/repository"
)

type recipientKey struct {
	campaignID uuid.UUID
	phone      string
}

type state struct {
	campaigns  map[uuid.UUID]*model.Campaign
	recipients map[uuid.UUID][]*model.Recipient
	phones     map[recipientKey]struct{}
	outbox     []*model.OutboxEvent
}

func (s *state) clone() *state {
	out := &state{
		campaigns:  make(map[uuid.UUID]*model.Campaign, len(s.campaigns)),
		recipients: make(map[uuid.UUID][]*model.Recipient, len(s.recipients)),
		phones:     make(map[recipientKey]struct{}, len(s.phones)),
		outbox:     make([]*model.OutboxEvent, 0, len(s.outbox)),
	}
	for id, c := range s.campaigns {
		out.campaigns[id] = copyCampaign(c)
	}
	for id, rs := range s.recipients {
		cp := make([]*model.Recipient, len(rs))
		for i, r := range rs {
			cp[i] = copyRecipient(r)
		}
		out.recipients[id] = cp
	}
	for k := range s.phones {
		out.phones[k] = struct{}{}
	}
	for _, e := range s.outbox {
		out.outbox = append(out.outbox, copyEvent(e))
	}
	return out
}

// Store keeps everything behind one mutex. WithTx works on a copy and swaps
// it in on success, so a failed unit of work leaves no trace.
type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: &state{
		campaigns:  make(map[uuid.UUID]*model.Campaign),
		recipients: make(map[uuid.UUID][]*model.Recipient),
		phones:     make(map[recipientKey]struct{}),
	}}
}

func (s *Store) Campaigns() repository.CampaignRepository   { return campaignRepo{s} }
func (s *Store) Recipients() repository.RecipientRepository { return recipientRepo{s} }
func (s *Store) Outbox() repository.OutboxRepository        { return outboxRepo{s} }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) WithTx(ctx context.Context, fn func(repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(&tx{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// OutboxEvents returns a snapshot of every stored outbox event.
func (s *Store) OutboxEvents() []*model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.OutboxEvent, 0, len(s.state.outbox))
	for _, e := range s.state.outbox {
		out = append(out, copyEvent(e))
	}
	return out
}

type campaignRepo struct{ s *Store }

func (r campaignRepo) Create(ctx context.Context, c *model.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if _, ok := r.s.state.campaigns[c.ID]; ok {
		return repository.ErrDuplicate
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	r.s.state.campaigns[c.ID] = copyCampaign(c)
	return nil
}

func (r campaignRepo) Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.state.campaign(tenantID, id)
}

func (r campaignRepo) List(ctx context.Context, tenantID uuid.UUID, filter model.CampaignFilter) ([]*model.Campaign, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var matched []*model.Campaign
	for _, c := range r.s.state.campaigns {
		if c.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	window := paginate(len(matched), filter.Pagination)
	out := make([]*model.Campaign, 0, window.end-window.start)
	for _, c := range matched[window.start:window.end] {
		out = append(out, copyCampaign(c))
	}
	return out, len(matched), nil
}

type recipientRepo struct{ s *Store }

func (r recipientRepo) Get(ctx context.Context, campaignID, id uuid.UUID) (*model.Recipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, rec := range r.s.state.recipients[campaignID] {
		if rec.ID == id {
			return copyRecipient(rec), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r recipientRepo) List(ctx context.Context, campaignID uuid.UUID, filter model.RecipientFilter) ([]*model.Recipient, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	all := r.s.state.recipients[campaignID]
	window := paginate(len(all), filter.Pagination)
	out := make([]*model.Recipient, 0, window.end-window.start)
	for _, rec := range all[window.start:window.end] {
		out = append(out, copyRecipient(rec))
	}
	return out, len(all), nil
}

func (r recipientRepo) ListAll(ctx context.Context, campaignID uuid.UUID) ([]*model.Recipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	all := r.s.state.recipients[campaignID]
	out := make([]*model.Recipient, 0, len(all))
	for _, rec := range all {
		out = append(out, copyRecipient(rec))
	}
	return out, nil
}

func (s *state) campaign(tenantID, id uuid.UUID) (*model.Campaign, error) {
	c, ok := s.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return copyCampaign(c), nil
}

type window struct{ start, end int }

func paginate(n int, p model.Pagination) window {
	if p.PageSize <= 0 {
		return window{0, n}
	}
	start := p.Offset()
	if start > n {
		start = n
	}
	end := start + p.PageSize
	if end > n {
		end = n
	}
	return window{start, end}
}

var _ repository.Store = (*Store)(nil)
