package recipient

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jwalitptl/campaign-api/internal/model"
	"github.com/jwalitptl/campaign-api/internal/repository"
	"github.com/jwalitptl/campaign-api/pkg/errors"
	"github.com/jwalitptl/campaign-api/pkg/logger"
	"github.com/jwalitptl/campaign-api/pkg/metrics"
	"github.com/jwalitptl/campaign-api/pkg/validator"
)

// MaxBulkRecipients bounds a single bulk ingestion call.
const MaxBulkRecipients = 10000

const maxNameLength = 255

const (
	modeSingle = "single"
	modeBulk   = "bulk"
	modeFile   = "file"
)

type RecipientService interface {
	AddRecipient(ctx context.Context, p model.Principal, campaignID uuid.UUID, in model.RecipientInput) (*model.Recipient, error)
	AddBulk(ctx context.Context, p model.Principal, campaignID uuid.UUID, in []model.RecipientInput) (*model.IngestResult, error)
	Upload(ctx context.Context, p model.Principal, campaignID uuid.UUID, file io.Reader, delimiter rune) (*model.IngestResult, error)
	List(ctx context.Context, p model.Principal, campaignID uuid.UUID, filter model.RecipientFilter) (*model.Page[*model.Recipient], error)
	Get(ctx context.Context, p model.Principal, campaignID, id uuid.UUID) (*model.Recipient, error)
	Delete(ctx context.Context, p model.Principal, campaignID, id uuid.UUID) error
	DeleteAll(ctx context.Context, p model.Principal, campaignID uuid.UUID) (int64, error)
}

type Service struct {
	store   repository.Store
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewService(store repository.Store, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, log: log, metrics: m}
}

// candidate is one input row before validation. label prefixes its error
// messages in the outcome report.
type candidate struct {
	label     string
	phone     string
	name      string
	email     string
	custom    model.CustomData
	customErr error
}

func fromInput(label string, in model.RecipientInput) candidate {
	c := candidate{label: label, phone: in.PhoneNumber}
	if in.Name != nil {
		c.name = *in.Name
	}
	if in.Email != nil {
		c.email = *in.Email
	}
	c.custom, c.customErr = customDataFromJSON(in.CustomData)
	return c
}

func fromFileRow(row fileRow) candidate {
	return candidate{
		label:  fmt.Sprintf("Row %d", row.number),
		phone:  row.record[FieldPhoneNumber],
		name:   row.record[FieldName],
		email:  row.record[FieldEmail],
		custom: ExtractCustomData(row.record, reservedFields),
	}
}

// build validates c and returns the recipient to stage.
func (c candidate) build(campaignID uuid.UUID, now time.Time) (*model.Recipient, error) {
	if strings.TrimSpace(c.phone) == "" {
		return nil, errors.Validation(FieldPhoneNumber, "phone_number is required")
	}
	phone, err := validator.NormalizePhone(c.phone)
	if err != nil {
		return nil, err
	}

	rec := &model.Recipient{
		ID:          uuid.New(),
		CampaignID:  campaignID,
		PhoneNumber: phone,
		CustomData:  c.custom,
		CreatedAt:   now,
	}

	if name := strings.TrimSpace(c.name); name != "" {
		if utf8.RuneCountInString(name) > maxNameLength {
			return nil, errors.Validation(FieldName, fmt.Sprintf("name must not exceed %d characters", maxNameLength))
		}
		rec.Name = &name
	}

	if strings.TrimSpace(c.email) != "" {
		email, err := validator.NormalizeEmail(c.email)
		if err != nil {
			return nil, err
		}
		rec.Email = &email
	}

	if c.customErr != nil {
		return nil, c.customErr
	}
	return rec, nil
}

func errorMessage(err error) string {
	if appErr, ok := errors.As(err); ok {
		return appErr.Message
	}
	return err.Error()
}

func (s *Service) AddRecipient(ctx context.Context, p model.Principal, campaignID uuid.UUID, in model.RecipientInput) (*model.Recipient, error) {
	var created *model.Recipient

	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		campaign, err := lockEditable(ctx, tx, p, campaignID, "add recipients to")
		if err != nil {
			return err
		}

		rec, err := fromInput("", in).build(campaign.ID, time.Now().UTC())
		if err != nil {
			return err
		}

		existing, err := tx.ExistingPhones(ctx, campaign.ID, []string{rec.PhoneNumber})
		if err != nil {
			return err
		}
		if _, dup := existing[rec.PhoneNumber]; dup {
			return errors.Conflict(fmt.Sprintf("recipient with phone number %s already exists in this campaign", rec.PhoneNumber))
		}

		inserted, err := tx.InsertRecipients(ctx, []*model.Recipient{rec})
		if err != nil {
			return err
		}
		if _, ok := inserted[rec.PhoneNumber]; !ok {
			return errors.Conflict(fmt.Sprintf("recipient with phone number %s already exists in this campaign", rec.PhoneNumber))
		}

		if err := recount(ctx, tx, campaign); err != nil {
			return err
		}
		created = rec
		return nil
	})
	if err != nil {
		s.countFailure(modeSingle, err)
		return nil, mapStoreError(err)
	}

	s.metrics.Ingested(modeSingle, "added", 1)
	s.log.Info("recipient added",
		"tenant_id", p.TenantID.String(),
		"campaign_id", campaignID.String(),
		"recipient_id", created.ID.String())
	return created, nil
}

func (s *Service) AddBulk(ctx context.Context, p model.Principal, campaignID uuid.UUID, in []model.RecipientInput) (*model.IngestResult, error) {
	if len(in) == 0 {
		return nil, errors.Format("recipients list cannot be empty", nil)
	}
	if len(in) > MaxBulkRecipients {
		return nil, errors.Format(fmt.Sprintf("maximum %d recipients per request", MaxBulkRecipients), nil)
	}

	candidates := make([]candidate, len(in))
	for i, rec := range in {
		candidates[i] = fromInput(fmt.Sprintf("Recipient %d", i+1), rec)
	}
	return s.ingest(ctx, p, campaignID, modeBulk, candidates)
}

func (s *Service) Upload(ctx context.Context, p model.Principal, campaignID uuid.UUID, file io.Reader, delimiter rune) (*model.IngestResult, error) {
	rows, err := parseDelimited(file, delimiter)
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, len(rows))
	for i, row := range rows {
		candidates[i] = fromFileRow(row)
	}
	return s.ingest(ctx, p, campaignID, modeFile, candidates)
}

// ingest runs the batch pipeline: gate, validate, dedup, insert, recount.
// The report only escapes if the whole unit of work commits.
func (s *Service) ingest(ctx context.Context, p model.Principal, campaignID uuid.UUID, mode string, candidates []candidate) (*model.IngestResult, error) {
	var result *model.IngestResult

	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		campaign, err := lockEditable(ctx, tx, p, campaignID, "add recipients to")
		if err != nil {
			return err
		}

		res := &model.IngestResult{CampaignID: campaign.ID}
		now := time.Now().UTC()

		valid := make([]*model.Recipient, 0, len(candidates))
		for _, c := range candidates {
			rec, err := c.build(campaign.ID, now)
			if err != nil {
				res.ErrorCount++
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", c.label, errorMessage(err)))
				continue
			}
			valid = append(valid, rec)
		}

		phones := make([]string, len(valid))
		for i, rec := range valid {
			phones[i] = rec.PhoneNumber
		}
		existing, err := tx.ExistingPhones(ctx, campaign.ID, phones)
		if err != nil {
			return err
		}

		dedup := NewDeduplicator(existing)
		staged := make([]*model.Recipient, 0, len(valid))
		for _, rec := range valid {
			if !dedup.Admit(rec.PhoneNumber) {
				res.DuplicateCount++
				continue
			}
			staged = append(staged, rec)
		}

		if len(staged) > 0 {
			inserted, err := tx.InsertRecipients(ctx, staged)
			if err != nil {
				return err
			}
			res.AddedCount = len(inserted)
			// rows a concurrent writer stored first
			res.DuplicateCount += len(staged) - len(inserted)
		}

		if err := recount(ctx, tx, campaign); err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.metrics.Ingested(mode, "added", result.AddedCount)
	s.metrics.Ingested(mode, "duplicate", result.DuplicateCount)
	s.metrics.Ingested(mode, "error", result.ErrorCount)
	s.log.Info("recipients ingested",
		"tenant_id", p.TenantID.String(),
		"campaign_id", campaignID.String(),
		"mode", mode,
		"added", result.AddedCount,
		"duplicates", result.DuplicateCount,
		"errors", result.ErrorCount)
	return result, nil
}

func (s *Service) List(ctx context.Context, p model.Principal, campaignID uuid.UUID, filter model.RecipientFilter) (*model.Page[*model.Recipient], error) {
	if _, err := s.store.Campaigns().Get(ctx, p.TenantID, campaignID); err != nil {
		return nil, mapStoreError(err)
	}

	filter.Normalize()
	items, total, err := s.store.Recipients().List(ctx, campaignID, filter)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if items == nil {
		items = []*model.Recipient{}
	}
	return &model.Page[*model.Recipient]{Items: items, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (s *Service) Get(ctx context.Context, p model.Principal, campaignID, id uuid.UUID) (*model.Recipient, error) {
	if _, err := s.store.Campaigns().Get(ctx, p.TenantID, campaignID); err != nil {
		return nil, mapStoreError(err)
	}

	rec, err := s.store.Recipients().Get(ctx, campaignID, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("recipient", err)
		}
		return nil, errors.Internal(err)
	}
	return rec, nil
}

func (s *Service) Delete(ctx context.Context, p model.Principal, campaignID, id uuid.UUID) error {
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		campaign, err := lockEditable(ctx, tx, p, campaignID, "remove recipients from")
		if err != nil {
			return err
		}
		if err := tx.DeleteRecipient(ctx, campaign.ID, id); err != nil {
			if stderrors.Is(err, repository.ErrNotFound) {
				return errors.NotFound("recipient", err)
			}
			return err
		}
		return recount(ctx, tx, campaign)
	})
	return mapStoreError(err)
}

func (s *Service) DeleteAll(ctx context.Context, p model.Principal, campaignID uuid.UUID) (int64, error) {
	var deleted int64
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		campaign, err := lockEditable(ctx, tx, p, campaignID, "remove recipients from")
		if err != nil {
			return err
		}
		n, err := tx.DeleteRecipients(ctx, campaign.ID)
		if err != nil {
			return err
		}
		deleted = n
		return recount(ctx, tx, campaign)
	})
	if err != nil {
		return 0, mapStoreError(err)
	}

	s.log.Info("recipients cleared",
		"tenant_id", p.TenantID.String(),
		"campaign_id", campaignID.String(),
		"deleted", deleted)
	return deleted, nil
}

func (s *Service) countFailure(mode string, err error) {
	switch {
	case errors.Is(err, errors.ErrValidation):
		s.metrics.Ingested(mode, "error", 1)
	case errors.Is(err, errors.ErrConflict):
		s.metrics.Ingested(mode, "duplicate", 1)
	}
}

// lockEditable takes the campaign row lock and refuses campaigns whose
// status no longer allows recipient changes.
func lockEditable(ctx context.Context, tx repository.Tx, p model.Principal, campaignID uuid.UUID, action string) (*model.Campaign, error) {
	campaign, err := tx.LockCampaign(ctx, p.TenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.IsEditable() {
		return nil, errors.State(fmt.Sprintf("cannot %s a campaign in %s status", action, campaign.Status))
	}
	return campaign, nil
}

// recount stores the authoritative recipient count on the campaign.
func recount(ctx context.Context, tx repository.Tx, campaign *model.Campaign) error {
	total, err := tx.CountRecipients(ctx, campaign.ID)
	if err != nil {
		return err
	}
	campaign.TotalRecipients = total
	return tx.UpdateCampaign(ctx, campaign)
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
		return errors.Conflict("recipient already exists in this campaign")
	}
	return errors.Internal(err)
}

var _ RecipientService = (*Service)(nil)
