package recipient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/campaign-api/internal/model"
	"github.com/jwalitptl/campaign-api/internal/repository"
	"github.com/jwalitptl/campaign-api/internal/repository/memory"
	"github.com/jwalitptl/campaign-api/pkg/errors"
	"github.com/jwalitptl/campaign-api/pkg/logger"
)

type fixture struct {
	store    *memory.Store
	svc      *Service
	owner    model.Principal
	campaign *model.Campaign
}

func newFixture(t *testing.T, status model.CampaignStatus) *fixture {
	t.Helper()
	store := memory.NewStore()
	owner := model.Principal{TenantID: uuid.New(), UserID: uuid.New()}

	c := &model.Campaign{
		TenantID:        owner.TenantID,
		CreatedBy:       owner.UserID,
		Name:            "Spring sale",
		MessageTemplate: "Hi {name}, {discount}% off!",
		Status:          status,
	}
	require.NoError(t, store.Campaigns().Create(context.Background(), c))

	return &fixture{
		store:    store,
		svc:      NewService(store, logger.Nop(), nil),
		owner:    owner,
		campaign: c,
	}
}

func (f *fixture) reload(t *testing.T) *model.Campaign {
	t.Helper()
	c, err := f.store.Campaigns().Get(context.Background(), f.owner.TenantID, f.campaign.ID)
	require.NoError(t, err)
	return c
}

func (f *fixture) stored(t *testing.T) []*model.Recipient {
	t.Helper()
	all, err := f.store.Recipients().ListAll(context.Background(), f.campaign.ID)
	require.NoError(t, err)
	return all
}

func str(s string) *string { return &s }

func TestAddBulkCollapsesFormattingVariants(t *testing.T) {
	f := newFixture(t, model.CampaignStatusDraft)

	res, err := f.svc.AddBulk(context.Background(), f.owner, f.campaign.ID, []model.RecipientInput{
		{PhoneNumber: "+1-234-567-890", Name: str("Jane")},
		{PhoneNumber: "+1234567890", Name: str("Janet")},
	})
	require.NoError(t, err)

	assert.Equal(t, f.campaign.ID, res.CampaignID)
	assert.Equal(t, 1, res.AddedCount)
	assert.Equal(t, 1, res.DuplicateCount)
	assert.Equal(t, 0, res.ErrorCount)
	assert.Nil(t, res.Errors)

	stored := f.stored(t)
	require.Len(t, stored, 1)
	assert.Equal(t, "+1234567890", stored[0].PhoneNumber)
	assert.Equal(t, "Jane", *stored[0].Name, "first occurrence wins")
	assert.Equal(t, 1, f.reload(t).TotalRecipients)
}

func TestAddBulkReportsRowErrorsInOrder(t *testing.T) {
	f := newFixture(t, model.CampaignStatusDraft)

	res, err := f.svc.AddBulk(context.Background(), f.owner, f.campaign.ID, []model.RecipientInput{
		{PhoneNumber: "+1234567890"},
		{PhoneNumber: "12345"},
		{PhoneNumber: "+1987654321", Email: str("not-an-email")},
		{PhoneNumber: "+1555555555", CustomData: map[string]interface{}{"tags": []interface{}{"a"}}},
		{PhoneNumber: "+1444444444", Email: str("Ann@Example.com"), CustomData: map[string]interface{}{"discount": 15.0, "vip": true}},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.AddedCount)
	assert.Equal(t, 0, res.DuplicateCount)
	assert.Equal(t, 3, res.ErrorCount)
	require.Len(t, res.Errors, 3)
	assert.True(t, strings.HasPrefix(res.Errors[0], "Recipient 2: "), res.Errors[0])
	assert.Equal(t, "Recipient 3: invalid email format", res.Errors[1])
	assert.True(t, strings.HasPrefix(res.Errors[2], "Recipient 4: custom_data"), res.Errors[2])

	stored := f.stored(t)
	require.Len(t, stored, 2)
	assert.Equal(t, "ann@example.com", *stored[1].Email)
	assert.Equal(t, model.CustomData{"discount": "15", "vip": "true"}, stored[1].CustomData)
	assert.Equal(t, 2, f.reload(t).TotalRecipients)
}

func TestAddBulkCountsStoredPhonesAsDuplicates(t *testing.T) {
	f := newFixture(t, model.CampaignStatusDraft)
	ctx := context.Background()

	_, err := f.svc.AddRecipient(ctx, f.owner, f.campaign.ID, model.RecipientInput{PhoneNumber: "+1234567890"})
	require.NoError(t, err)

	res, err := f.svc.AddBulk(ctx, f.owner, f.campaign.ID, []model.RecipientInput{
		{PhoneNumber: "+1 234 567 890"},
		{PhoneNumber: "+1987654321"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.AddedCount)
	assert.Equal(t, 1, res.DuplicateCount)
	assert.Equal(t, 2, f.reload(t).TotalRecipients)
}

func TestAddBulkBounds(t *testing.T) {
	f := newFixture(t, model.CampaignStatusDraft)

	_, err := f.svc.AddBulk(context.Background(), f.owner, f.campaign.ID, nil)
	assert.True(t, errors.Is(err, errors.ErrFormat))

	tooMany := make([]model.RecipientInput, MaxBulkRecipients+1)
	_, err = f.svc.AddBulk(context.Background(), f.owner, f.campaign.ID, tooMany)
	assert.True(t, errors.Is(err, errors.ErrFormat))
	assert.Empty(t, f.stored(t))
}

func TestAddBulkAtLimit(t *testing.T) {
	f := newFixture(t, model.CampaignStatusDraft)

	in := make([]model.RecipientInput, MaxBulkRecipients)
	for i := range in {
		in[i] = model.RecipientInput{PhoneNumber: fmt.Sprintf("+1%09d", i)}
	}
	res, err := f.svc.AddBulk(context.Background(), f.owner, f.campaign.ID, in)
	require.NoError(t, err)
	assert.Equal(t, MaxBulkRecipients, res.AddedCount)
	assert.Equal(t, MaxBulkRecipients, f.reload(t).TotalRecipients)
}

func TestAddRecipientConflictLeavesTotal(t *testing.T) {
	f := newFixture(t, model.CampaignStatusDraft)
	ctx := context.Background()

	rec, err := f.svc.AddRecipient(ctx, f.owner, f.campaign.ID, model.RecipientInput{
		PhoneNumber: "+1234567890",
		Name:        str("  Jane  "),
		CustomData:  map[string]interface{}{"discount": "15", "email": "ignored@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Jane", *rec.Name)
	assert.Equal(t, model.CustomData{"discount": "15"}, rec.CustomData)

	_, err = f.svc.AddRecipient(ctx, f.owner, f.campaign.ID, model.RecipientInput{PhoneNumber: "+1-234-567-890"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
	assert.Equal(t, 1, f.reload(t).TotalRecipients)
	assert.Len(t, f.stored(t), 1)
}

func TestAddRecipientValidation(t *testing.T) {
	f := newFixture(t, model.CampaignStatusDraft)

	_, err := f.svc.AddRecipient(context.Background(), f.owner, f.campaign.ID, model.RecipientInput{PhoneNumber: "555-1234"})
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrValidation, appErr.Code)
	assert.Equal(t, "phone_number", appErr.Field)

	_, err = f.svc.AddRecipient(context.Background(), f.owner, f.campaign.ID, model.RecipientInput{
		PhoneNumber: "+1234567890",
		Name:        str(strings.Repeat("x", 256)),
	})
	appErr, ok = errors.As(err)
	require.True(t, ok)
	assert.Equal(t, "name", appErr.Field)
	assert.Empty(t, f.stored(t))
}

func TestIngestRefusedWhenNotEditable(t *testing.T) {
	for _, status := range []model.CampaignStatus{
		model.CampaignStatusSending, model.CampaignStatusCompleted,
		model.CampaignStatusFailed, model.CampaignStatusCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t, status)
			ctx := context.Background()

			_, err := f.svc.AddRecipient(ctx, f.owner, f.campaign.ID, model.RecipientInput{PhoneNumber: "+1234567890"})
			assert.True(t, errors.Is(err, errors.ErrState))

			_, err = f.svc.AddBulk(ctx, f.owner, f.campaign.ID, []model.RecipientInput{{PhoneNumber: "+1234567890"}})
			assert.True(t, errors.Is(err, errors.ErrState))

			_, err = f.svc.Upload(ctx, f.owner, f.campaign.ID, strings.NewReader("phone_number\n+1234567890\n"), ',')
			assert.True(t, errors.Is(err, errors.ErrState))

			c := f.reload(t)
			assert.Equal(t, status, c.Status)
			assert.Equal(t, 0, c.TotalRecipients)
			assert.Empty(t, f.stored(t))
		})
	}
}

func TestIngestForeignTenantIsNotFound(t *testing.T) {
	f := newFixture(t, model.CampaignStatusDraft)
	stranger := model.Principal{TenantID: uuid.New(), UserID: uuid.New()}

	_, err := f.svc.AddBulk(context.Background(), stranger, f.campaign.ID, []model.RecipientInput{{PhoneNumber: "+1234567890"}})
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = f.svc.List(context.Background(), stranger, f.campaign.ID, model.RecipientFilter{})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.Empty(t, f.stored(t))
}

func TestUploadMissingPhoneColumn(t *testing.T) {
	f := newFixture(t, model.CampaignStatusDraft)

	_, err := f.svc.Upload(context.Background(), f.owner, f.campaign.ID,
		strings.NewReader("name,email\nJane,jane@example.com\n"), ',')
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFormat))
	assert.Empty(t, f.stored(t))
	assert.Equal(t, 0, f.reload(t).TotalRecipients)
}

func TestUploadRowsAndCustomData(t *testing.T) {
	f := newFixture(t, model.CampaignStatusDraft)

	file := "\ufeff phone_number ;name;email;discount;store\n" +
		"+1234567890;Jane;JANE@example.com;15; Main St \n" +
		";Nobody;;;\n" +
		"+1-234-567-890;Dup;;;\n" +
		"+1987654321;Short\n"

	res, err := f.svc.Upload(context.Background(), f.owner, f.campaign.ID, strings.NewReader(file), ';')
	require.NoError(t, err)

	assert.Equal(t, 2, res.AddedCount)
	assert.Equal(t, 1, res.DuplicateCount)
	assert.Equal(t, 1, res.ErrorCount)
	assert.Equal(t, []string{"Row 3: phone_number is required"}, res.Errors)

	stored := f.stored(t)
	require.Len(t, stored, 2)
	assert.Equal(t, "jane@example.com", *stored[0].Email)
	assert.Equal(t, model.CustomData{"discount": "15", "store": "Main St"}, stored[0].CustomData)
	assert.Nil(t, stored[1].CustomData)
	assert.Nil(t, stored[1].Email)
	assert.Equal(t, 2, f.reload(t).TotalRecipients)
}

func TestUploadMalformedFilePersistsNothing(t *testing.T) {
	f := newFixture(t, model.CampaignStatusDraft)

	file := "phone_number,name\n+1234567890,Jane\n+1987654321,\"broken\n"
	_, err := f.svc.Upload(context.Background(), f.owner, f.campaign.ID, strings.NewReader(file), ',')
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFormat))
	assert.Empty(t, f.stored(t))
}

func TestUploadHeaderOnly(t *testing.T) {
	f := newFixture(t, model.CampaignStatusDraft)

	res, err := f.svc.Upload(context.Background(), f.owner, f.campaign.ID, strings.NewReader("phone_number,name\n"), ',')
	require.NoError(t, err)
	assert.Equal(t, model.IngestResult{CampaignID: f.campaign.ID}, *res)
}

func TestDeleteRecomputesTotal(t *testing.T) {
	f := newFixture(t, model.CampaignStatusDraft)
	ctx := context.Background()

	_, err := f.svc.AddBulk(ctx, f.owner, f.campaign.ID, []model.RecipientInput{
		{PhoneNumber: "+1234567890"}, {PhoneNumber: "+1987654321"}, {PhoneNumber: "+1555555555"},
	})
	require.NoError(t, err)

	first := f.stored(t)[0]
	require.NoError(t, f.svc.Delete(ctx, f.owner, f.campaign.ID, first.ID))
	assert.Equal(t, 2, f.reload(t).TotalRecipients)

	err = f.svc.Delete(ctx, f.owner, f.campaign.ID, first.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	n, err := f.svc.DeleteAll(ctx, f.owner, f.campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 0, f.reload(t).TotalRecipients)

	// the phone can be added again once removed
	_, err = f.svc.AddRecipient(ctx, f.owner, f.campaign.ID, model.RecipientInput{PhoneNumber: first.PhoneNumber})
	require.NoError(t, err)
}

func TestListPaginates(t *testing.T) {
	f := newFixture(t, model.CampaignStatusDraft)
	ctx := context.Background()

	in := make([]model.RecipientInput, 25)
	for i := range in {
		in[i] = model.RecipientInput{PhoneNumber: fmt.Sprintf("+1%09d", i)}
	}
	_, err := f.svc.AddBulk(ctx, f.owner, f.campaign.ID, in)
	require.NoError(t, err)

	page, err := f.svc.List(ctx, f.owner, f.campaign.ID, model.RecipientFilter{Pagination: model.Pagination{Page: 3, PageSize: 10}})
	require.NoError(t, err)
	assert.Equal(t, 25, page.Total)
	require.Len(t, page.Items, 5)
	assert.Equal(t, "+1000000020", page.Items[0].PhoneNumber)

	got, err := f.svc.Get(ctx, f.owner, f.campaign.ID, page.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, page.Items[0].PhoneNumber, got.PhoneNumber)

	_, err = f.svc.Get(ctx, f.owner, f.campaign.ID, uuid.New())
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

// racedStore lets another writer store the first staged phone after the
// dedup seed was read but before the batch insert runs.
type racedStore struct {
	*memory.Store
}

func (s racedStore) WithTx(ctx context.Context, fn func(repository.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx repository.Tx) error {
		return fn(racedTx{Tx: tx})
	})
}

type racedTx struct {
	repository.Tx
}

func (t racedTx) InsertRecipients(ctx context.Context, recipients []*model.Recipient) (map[string]struct{}, error) {
	if len(recipients) > 0 {
		first := *recipients[0]
		first.ID = uuid.New()
		if _, err := t.Tx.InsertRecipients(ctx, []*model.Recipient{&first}); err != nil {
			return nil, err
		}
	}
	return t.Tx.InsertRecipients(ctx, recipients)
}

func TestAddBulkCountsRowsLostAtInsertAsDuplicates(t *testing.T) {
	f := newFixture(t, model.CampaignStatusDraft)
	svc := NewService(racedStore{f.store}, logger.Nop(), nil)

	res, err := svc.AddBulk(context.Background(), f.owner, f.campaign.ID, []model.RecipientInput{
		{PhoneNumber: "+1111111111"},
		{PhoneNumber: "+1222222222"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.AddedCount)
	assert.Equal(t, 1, res.DuplicateCount)
	assert.Zero(t, res.ErrorCount)

	assert.Equal(t, 2, f.reload(t).TotalRecipients)
	assert.Len(t, f.stored(t), 2)
}

func TestAddRecipientLostAtInsertIsConflict(t *testing.T) {
	f := newFixture(t, model.CampaignStatusDraft)
	svc := NewService(racedStore{f.store}, logger.Nop(), nil)

	_, err := svc.AddRecipient(context.Background(), f.owner, f.campaign.ID, model.RecipientInput{PhoneNumber: "+1111111111"})
	assert.True(t, errors.Is(err, errors.ErrConflict))

	// the unit of work rolled back, so the other writer's row went with it
	assert.Zero(t, f.reload(t).TotalRecipients)
	assert.Empty(t, f.stored(t))
}

func TestConcurrentAddBulkAdmitsEachPhoneOnce(t *testing.T) {
	f := newFixture(t, model.CampaignStatusDraft)
	ctx := context.Background()

	const (
		workers = 8
		phones  = 50
	)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		added int
		dups  int
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			in := make([]model.RecipientInput, phones)
			for i := range in {
				// every worker shares the same phones in a different order
				in[i] = model.RecipientInput{PhoneNumber: fmt.Sprintf("+1555%07d", (i+w*7)%phones)}
			}
			res, err := f.svc.AddBulk(ctx, f.owner, f.campaign.ID, in)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			added += res.AddedCount
			dups += res.DuplicateCount
			mu.Unlock()
		}(w)
	}
	wg.Wait()

	assert.Equal(t, phones, added)
	assert.Equal(t, workers*phones-phones, dups)
	assert.Equal(t, phones, f.reload(t).TotalRecipients)
	assert.Len(t, f.stored(t), phones)
}
