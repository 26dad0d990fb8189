package campaign

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/campaign-api/internal/model"
	"github.com/jwalitptl/campaign-api/internal/repository"
	"github.com/jwalitptl/campaign-api/pkg/errors"
	"github.com/jwalitptl/campaign-api/pkg/logger"
	"github.com/jwalitptl/campaign-api/pkg/metrics"
	"github.com/jwalitptl/campaign-api/pkg/template"
	"github.com/jwalitptl/campaign-api/pkg/validator"
)

type CampaignService interface {
	Create(ctx context.Context, p model.Principal, req *model.CreateCampaignRequest) (*model.Campaign, error)
	List(ctx context.Context, p model.Principal, filter model.CampaignFilter) (*model.Page[model.CampaignView], error)
	Get(ctx context.Context, p model.Principal, id uuid.UUID) (*model.Campaign, error)
	Update(ctx context.Context, p model.Principal, id uuid.UUID, req *model.UpdateCampaignRequest) (*model.Campaign, error)
	Delete(ctx context.Context, p model.Principal, id uuid.UUID) error
	Send(ctx context.Context, p model.Principal, id uuid.UUID) (*model.Campaign, error)
	Cancel(ctx context.Context, p model.Principal, id uuid.UUID) (*model.Campaign, error)
	Preview(ctx context.Context, p model.Principal, id, recipientID uuid.UUID) (*model.PreviewResult, error)
	FinishDispatch(ctx context.Context, tenantID, id uuid.UUID, report model.DispatchReport) (*model.Campaign, error)
}

type Service struct {
	store   repository.Store
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(store repository.Store, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		log:     log,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, p model.Principal, req *model.CreateCampaignRequest) (*model.Campaign, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.MessageTemplate = strings.TrimSpace(req.MessageTemplate)
	if err := validator.Struct(req); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		TenantID:        p.TenantID,
		CreatedBy:       p.UserID,
		Name:            req.Name,
		Description:     trimOptional(req.Description),
		MessageTemplate: req.MessageTemplate,
		Status:          model.CampaignStatusDraft,
	}

	if req.TemplateVariables != nil {
		vars, err := declaredVariables(req.TemplateVariables)
		if err != nil {
			return nil, err
		}
		c.TemplateVariables = vars
	}
	c.VariableDefaults = cleanDefaults(req.VariableDefaults)
	if err := checkDeclarations(c); err != nil {
		return nil, err
	}

	if req.ScheduledAt != nil {
		if err := s.checkSchedule(*req.ScheduledAt); err != nil {
			return nil, err
		}
		at := req.ScheduledAt.UTC()
		c.ScheduledAt = &at
		if _, err := c.Fire(model.EventSchedule); err != nil {
			return nil, err
		}
	}

	if err := s.store.Campaigns().Create(ctx, c); err != nil {
		return nil, mapStoreError(err)
	}

	s.log.Info("campaign created",
		"tenant_id", p.TenantID.String(),
		"campaign_id", c.ID.String(),
		"status", string(c.Status))
	return c, nil
}

func (s *Service) List(ctx context.Context, p model.Principal, filter model.CampaignFilter) (*model.Page[model.CampaignView], error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, errors.Validation("status", fmt.Sprintf("unknown campaign status %q", filter.Status))
	}
	filter.Normalize()

	campaigns, total, err := s.store.Campaigns().List(ctx, p.TenantID, filter)
	if err != nil {
		return nil, mapStoreError(err)
	}

	views := make([]model.CampaignView, 0, len(campaigns))
	for _, c := range campaigns {
		views = append(views, c.View())
	}
	return &model.Page[model.CampaignView]{Items: views, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (s *Service) Get(ctx context.Context, p model.Principal, id uuid.UUID) (*model.Campaign, error) {
	c, err := s.store.Campaigns().Get(ctx, p.TenantID, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return c, nil
}

// Update applies a partial update while the campaign is editable. Setting
// scheduled_at on a draft schedules it; a scheduled campaign stays scheduled.
func (s *Service) Update(ctx context.Context, p model.Principal, id uuid.UUID, req *model.UpdateCampaignRequest) (*model.Campaign, error) {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}
	if req.MessageTemplate != nil {
		tpl := strings.TrimSpace(*req.MessageTemplate)
		req.MessageTemplate = &tpl
	}
	if err := validator.Struct(req); err != nil {
		return nil, err
	}
	if req.ScheduledAt != nil {
		if err := s.checkSchedule(*req.ScheduledAt); err != nil {
			return nil, err
		}
	}

	var (
		updated *model.Campaign
		from    model.CampaignStatus
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		c, err := tx.LockCampaign(ctx, p.TenantID, id)
		if err != nil {
			return err
		}
		if !c.IsEditable() {
			return errors.State(fmt.Sprintf("cannot edit campaign in %s status", c.Status))
		}
		prev := c.Status

		if req.Name != nil {
			c.Name = *req.Name
		}
		if req.Description != nil {
			c.Description = trimOptional(req.Description)
		}
		if req.MessageTemplate != nil {
			c.MessageTemplate = *req.MessageTemplate
		}
		if req.TemplateVariables != nil {
			vars, err := declaredVariables(*req.TemplateVariables)
			if err != nil {
				return err
			}
			c.TemplateVariables = vars
		}
		if req.VariableDefaults != nil {
			c.VariableDefaults = cleanDefaults(*req.VariableDefaults)
		}
		if req.MessageTemplate != nil || req.TemplateVariables != nil {
			if err := checkDeclarations(c); err != nil {
				return err
			}
		}
		if req.ScheduledAt != nil {
			at := req.ScheduledAt.UTC()
			c.ScheduledAt = &at
			if c.Status == model.CampaignStatusDraft {
				if _, err := c.Fire(model.EventSchedule); err != nil {
					return err
				}
			}
		}

		if err := tx.UpdateCampaign(ctx, c); err != nil {
			return err
		}
		from = prev
		updated = c
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	if updated.Status != from {
		s.transitioned(updated, from)
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, p model.Principal, id uuid.UUID) error {
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		c, err := tx.LockCampaign(ctx, p.TenantID, id)
		if err != nil {
			return err
		}
		if c.Status == model.CampaignStatusSending {
			return errors.State("cannot delete campaign while sending")
		}
		return tx.DeleteCampaign(ctx, p.TenantID, id)
	})
	if err != nil {
		return mapStoreError(err)
	}

	s.log.Info("campaign deleted", "tenant_id", p.TenantID.String(), "campaign_id", id.String())
	return nil
}

// Send moves the campaign to sending and queues the dispatch event in the
// same unit of work.
func (s *Service) Send(ctx context.Context, p model.Principal, id uuid.UUID) (*model.Campaign, error) {
	var (
		sent *model.Campaign
		from model.CampaignStatus
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		c, err := tx.LockCampaign(ctx, p.TenantID, id)
		if err != nil {
			return err
		}
		if !c.IsSendable() {
			return errors.State(fmt.Sprintf("campaign cannot be sent. Status: %s, Recipients: %d", c.Status, c.TotalRecipients))
		}

		prev, err := c.Fire(model.EventSend)
		if err != nil {
			return err
		}
		now := s.now()
		c.StartedAt = &now

		if err := tx.UpdateCampaign(ctx, c); err != nil {
			return err
		}

		event, err := model.NewOutboxEvent(c.TenantID, c.ID, model.EventCampaignDispatch, model.DispatchPayload{
			TenantID:   c.TenantID,
			CampaignID: c.ID,
		})
		if err != nil {
			return err
		}
		if err := tx.CreateOutboxEvent(ctx, event); err != nil {
			return err
		}

		from = prev
		sent = c
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	s.transitioned(sent, from)
	return sent, nil
}

func (s *Service) Cancel(ctx context.Context, p model.Principal, id uuid.UUID) (*model.Campaign, error) {
	var (
		cancelled *model.Campaign
		from      model.CampaignStatus
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		c, err := tx.LockCampaign(ctx, p.TenantID, id)
		if err != nil {
			return err
		}
		prev, err := c.Fire(model.EventCancel)
		if err != nil {
			return err
		}
		if err := tx.UpdateCampaign(ctx, c); err != nil {
			return err
		}
		from = prev
		cancelled = c
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	s.transitioned(cancelled, from)
	return cancelled, nil
}

// Preview renders the message one recipient would receive.
func (s *Service) Preview(ctx context.Context, p model.Principal, id, recipientID uuid.UUID) (*model.PreviewResult, error) {
	c, err := s.store.Campaigns().Get(ctx, p.TenantID, id)
	if err != nil {
		return nil, mapStoreError(err)
	}

	rec, err := s.store.Recipients().Get(ctx, c.ID, recipientID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("recipient", err)
		}
		return nil, errors.Internal(err)
	}

	vars := template.ResolveVars(c.VariableDefaults, rec.PhoneNumber, rec.Name, rec.Email, rec.CustomData)
	return &model.PreviewResult{
		CampaignID:  c.ID,
		RecipientID: rec.ID,
		Message:     template.Render(c.MessageTemplate, vars),
		Missing:     template.Missing(template.Variables(c.MessageTemplate), vars),
	}, nil
}

// FinishDispatch records the outcome of a dispatch run and closes the
// campaign. Counters never move backwards.
func (s *Service) FinishDispatch(ctx context.Context, tenantID, id uuid.UUID, report model.DispatchReport) (*model.Campaign, error) {
	var (
		finished *model.Campaign
		from     model.CampaignStatus
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		c, err := tx.LockCampaign(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if c.Status != model.CampaignStatusSending {
			return errors.State(fmt.Sprintf("cannot finish dispatch of a campaign in %s status", c.Status))
		}
		if err := applyReport(c, report); err != nil {
			return err
		}

		event := model.EventComplete
		if report.Fatal {
			event = model.EventFail
		}
		prev, err := c.Fire(event)
		if err != nil {
			return err
		}
		now := s.now()
		c.CompletedAt = &now

		if err := tx.UpdateCampaign(ctx, c); err != nil {
			return err
		}
		from = prev
		finished = c
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	s.transitioned(finished, from)

	s.log.Info("campaign dispatch finished",
		"tenant_id", tenantID.String(),
		"campaign_id", id.String(),
		"status", string(finished.Status),
		"sent", finished.SentCount,
		"delivered", finished.DeliveredCount,
		"failed", finished.FailedCount,
		"reason", report.Reason)
	return finished, nil
}

func applyReport(c *model.Campaign, r model.DispatchReport) error {
	if r.Sent < c.SentCount || r.Delivered < c.DeliveredCount || r.Failed < c.FailedCount {
		return errors.BadRequest("dispatch counters cannot decrease", nil)
	}
	if r.Delivered > r.Sent {
		return errors.BadRequest("delivered count exceeds sent count", nil)
	}
	if r.Sent+r.Failed > c.TotalRecipients {
		return errors.BadRequest("sent and failed counts exceed total recipients", nil)
	}
	c.SentCount = r.Sent
	c.DeliveredCount = r.Delivered
	c.FailedCount = r.Failed
	return nil
}

func (s *Service) transitioned(c *model.Campaign, from model.CampaignStatus) {
	s.metrics.Transition(string(from), string(c.Status))
	s.log.Info("campaign status changed",
		"tenant_id", c.TenantID.String(),
		"campaign_id", c.ID.String(),
		"from", string(from),
		"to", string(c.Status))
}

func (s *Service) checkSchedule(at time.Time) error {
	if !at.After(s.now()) {
		return errors.Validation("scheduled_at", "scheduled time must be in the future")
	}
	return nil
}

// declaredVariables trims and dedupes declared names, keeping order.
func declaredVariables(in []string) (pq.StringArray, error) {
	out := make(pq.StringArray, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		name := strings.TrimSpace(v)
		if !template.ValidName(name) {
			return nil, errors.Validation("template_variables",
				fmt.Sprintf("invalid variable name %q: use letters, digits and underscores", v))
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// checkDeclarations requires every placeholder to be declared once the
// campaign declares its variables.
func checkDeclarations(c *model.Campaign) error {
	if c.TemplateVariables == nil {
		return nil
	}
	if undeclared := template.Undeclared(c.MessageTemplate, c.TemplateVariables); len(undeclared) > 0 {
		return errors.Validation("template_variables",
			fmt.Sprintf("template uses undeclared variables: %s", strings.Join(undeclared, ", ")))
	}
	return nil
}

func cleanDefaults(in map[string]string) model.CustomData {
	var out model.CustomData
	for k, v := range in {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		if out == nil {
			out = make(model.CustomData, len(in))
		}
		out[key] = v
	}
	return out
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	if stderrors.Is(err, repository.ErrNotFound) {
		return errors.NotFound("campaign", err)
	}
	if stderrors.Is(err, repository.ErrDuplicate) {
		return errors.Conflict("campaign already exists")
	}
	return errors.Internal(err)
}

var _ CampaignService = (*Service)(nil)
