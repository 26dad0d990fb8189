package memory

import (
	"time"

	"github.com/lib/pq"

	"github.com/jwalitptl/campaign-api/internal/model"
)

func copyCampaign(c *model.Campaign) *model.Campaign {
	cp := *c
	cp.Description = copyString(c.Description)
	if c.TemplateVariables != nil {
		cp.TemplateVariables = append(pq.StringArray(nil), c.TemplateVariables...)
	}
	cp.VariableDefaults = c.VariableDefaults.Clone()
	cp.ScheduledAt = copyTime(c.ScheduledAt)
	cp.StartedAt = copyTime(c.StartedAt)
	cp.CompletedAt = copyTime(c.CompletedAt)
	return &cp
}

func copyRecipient(r *model.Recipient) *model.Recipient {
	cp := *r
	cp.Name = copyString(r.Name)
	cp.Email = copyString(r.Email)
	cp.CustomData = r.CustomData.Clone()
	return &cp
}

func copyEvent(e *model.OutboxEvent) *model.OutboxEvent {
	cp := *e
	cp.Payload = append([]byte(nil), e.Payload...)
	cp.ErrorMessage = copyString(e.ErrorMessage)
	cp.RetryAt = copyTime(e.RetryAt)
	cp.ProcessedAt = copyTime(e.ProcessedAt)
	return &cp
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
