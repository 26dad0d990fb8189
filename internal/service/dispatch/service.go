// Package dispatch delivers a sending campaign to its recipients and
// reports the outcome back to the campaign service.
package dispatch

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/campaign-api/internal/model"
	"github.com/jwalitptl/campaign-api/internal/repository"
	"github.com/jwalitptl/campaign-api/pkg/logger"
	"github.com/jwalitptl/campaign-api/pkg/metrics"
	"github.com/jwalitptl/campaign-api/pkg/template"
)

// Finisher records the result of a dispatch run.
type Finisher interface {
	FinishDispatch(ctx context.Context, tenantID, id uuid.UUID, report model.DispatchReport) (*model.Campaign, error)
}

type Service struct {
	store     repository.Store
	campaigns Finisher
	transport Transport
	log       *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(store repository.Store, campaigns Finisher, transport Transport, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:     store,
		campaigns: campaigns,
		transport: transport,
		log:       log,
		metrics:   m,
	}
}

// HandleEvent consumes a campaign.dispatch outbox event. Events for
// campaigns that are gone or no longer sending are acknowledged and ignored.
func (s *Service) HandleEvent(ctx context.Context, event *model.OutboxEvent) error {
	var payload model.DispatchPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode dispatch payload: %w", err)
	}

	c, err := s.store.Campaigns().Get(ctx, payload.TenantID, payload.CampaignID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			s.log.Warn("dispatch skipped, campaign not found", "campaign_id", payload.CampaignID.String())
			return nil
		}
		return fmt.Errorf("failed to load campaign: %w", err)
	}
	if c.Status != model.CampaignStatusSending {
		s.log.Info("dispatch skipped",
			"campaign_id", c.ID.String(),
			"status", string(c.Status))
		return nil
	}

	recipients, err := s.store.Recipients().ListAll(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("failed to load recipients: %w", err)
	}

	report := s.deliver(ctx, c, recipients)

	// the run may have been cut short by ctx; the outcome still has to land
	if _, err := s.campaigns.FinishDispatch(context.WithoutCancel(ctx), c.TenantID, c.ID, report); err != nil {
		return fmt.Errorf("failed to finish dispatch: %w", err)
	}

	s.metrics.Dispatched("sent", report.Sent)
	s.metrics.Dispatched("delivered", report.Delivered)
	s.metrics.Dispatched("failed", report.Failed)
	return nil
}

func (s *Service) deliver(ctx context.Context, c *model.Campaign, recipients []*model.Recipient) model.DispatchReport {
	var report model.DispatchReport

	for _, rec := range recipients {
		if err := ctx.Err(); err != nil {
			report.Fatal = true
			report.Reason = err.Error()
			break
		}

		vars := template.ResolveVars(c.VariableDefaults, rec.PhoneNumber, rec.Name, rec.Email, rec.CustomData)
		res, err := s.transport.Send(ctx, Message{
			CampaignID:  c.ID,
			RecipientID: rec.ID,
			PhoneNumber: rec.PhoneNumber,
			Body:        template.Render(c.MessageTemplate, vars),
		})
		if err != nil {
			if stderrors.Is(err, ErrFatal) || stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
				report.Fatal = true
				report.Reason = err.Error()
				break
			}
			s.log.Warn("message failed",
				"campaign_id", c.ID.String(),
				"recipient_id", rec.ID.String(),
				"error", err.Error())
			report.Failed++
			continue
		}

		report.Sent++
		if res.Delivered {
			report.Delivered++
		}
	}
	return report
}
