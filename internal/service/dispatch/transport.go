package dispatch

import (
	"context"
	stderrors "errors"

	"github.com/google/uuid"

	"github.com/jwalitptl/campaign-api/pkg/logger"
)

// ErrFatal aborts the whole run when returned (or wrapped) by a Transport.
var ErrFatal = stderrors.New("transport unavailable")

type Message struct {
	CampaignID  uuid.UUID
	RecipientID uuid.UUID
	PhoneNumber string
	Body        string
}

type Result struct {
	Delivered bool
}

// Transport hands one rendered message to a carrier.
type Transport interface {
	Send(ctx context.Context, msg Message) (Result, error)
}

// LogTransport logs each message instead of sending it and reports it as
// delivered.
type LogTransport struct {
	log *logger.Logger
}

func NewLogTransport(log *logger.Logger) *LogTransport {
	return &LogTransport{log: log}
}

func (t *LogTransport) Send(ctx context.Context, msg Message) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	t.log.Debug("message sent",
		"campaign_id", msg.CampaignID.String(),
		"recipient_id", msg.RecipientID.String(),
		"phone_number", msg.PhoneNumber,
		"length", len(msg.Body))
	return Result{Delivered: true}, nil
}
