package model

import (
	"fmt"

	"github.com/jwalitptl/campaign-api/pkg/errors"
)

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

type CampaignEvent string

const (
	EventSchedule CampaignEvent = "schedule"
	EventSend     CampaignEvent = "send"
	EventComplete CampaignEvent = "complete"
	EventFail     CampaignEvent = "fail"
	EventCancel   CampaignEvent = "cancel"
)

var transitions = map[CampaignStatus]map[CampaignEvent]CampaignStatus{
	CampaignStatusDraft: {
		EventSchedule: CampaignStatusScheduled,
		EventSend:     CampaignStatusSending,
		EventCancel:   CampaignStatusCancelled,
	},
	CampaignStatusScheduled: {
		EventSend:   CampaignStatusSending,
		EventCancel: CampaignStatusCancelled,
	},
	CampaignStatusSending: {
		EventComplete: CampaignStatusCompleted,
		EventFail:     CampaignStatusFailed,
	},
}

func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusSending,
		CampaignStatusCompleted, CampaignStatusFailed, CampaignStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no event can leave s.
func (s CampaignStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s CampaignStatus) IsEditable() bool {
	return s == CampaignStatusDraft || s == CampaignStatusScheduled
}

// Next returns the status reached by firing event from s.
func (s CampaignStatus) Next(event CampaignEvent) (CampaignStatus, error) {
	next, ok := transitions[s][event]
	if !ok {
		return s, errors.State(fmt.Sprintf("cannot %s a campaign in %s status", event, s))
	}
	return next, nil
}

// Fire applies event to the campaign and returns the previous status.
func (c *Campaign) Fire(event CampaignEvent) (CampaignStatus, error) {
	prev := c.Status
	next, err := prev.Next(event)
	if err != nil {
		return prev, err
	}
	c.Status = next
	return prev, nil
}
