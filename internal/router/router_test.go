package router

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/campaign-api/internal/handler"
	campaignHandler "github.com/jwalitptl/campaign-api/internal/handler/campaign"
	recipientHandler "github.com/jwalitptl/campaign-api/internal/handler/recipient"
	"github.com/jwalitptl/campaign-api/internal/middleware"
	"github.com/jwalitptl/campaign-api/internal/model"
	"github.com/jwalitptl/campaign-api/internal/repository/memory"
	"github.com/jwalitptl/campaign-api/internal/service/campaign"
	"github.com/jwalitptl/campaign-api/internal/service/recipient"
	"github.com/jwalitptl/campaign-api/pkg/auth"
	"github.com/jwalitptl/campaign-api/pkg/logger"
	"github.com/jwalitptl/campaign-api/pkg/metrics"
)

type apiFixture struct {
	engine *gin.Engine
	jwt    *auth.HMACService
	token  string
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()

	store := memory.NewStore()
	log := logger.Nop()
	m := metrics.New("test")
	jwt := auth.NewHMACService("secret", "")

	r := NewRouter(
		middleware.NewAuthMiddleware(jwt),
		handler.NewHealthHandler(map[string]handler.Pinger{"database": store}),
		[]Handler{
			campaignHandler.NewHandler(campaign.NewService(store, log, m)),
			recipientHandler.NewHandler(recipient.NewService(store, log, m)),
		},
		log,
		m,
		RouterConfig{Mode: gin.TestMode, RequestTimeout: 5 * time.Second, MaxBodyBytes: 1 << 20},
	)
	r.Setup()

	return &apiFixture{engine: r.Engine(), jwt: jwt, token: mint(t, jwt, uuid.New())}
}

func mint(t *testing.T, jwt *auth.HMACService, tenant uuid.UUID) string {
	t.Helper()
	token, err := jwt.GenerateToken(model.Principal{TenantID: tenant, UserID: uuid.New()}, time.Hour)
	require.NoError(t, err)
	return token
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Field   string          `json:"field"`
	Data    json.RawMessage `json:"data"`
}

func (f *apiFixture) call(t *testing.T, token, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return f.send(t, token, req)
}

func (f *apiFixture) send(t *testing.T, token string, req *http.Request) (int, envelope) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func (f *apiFixture) createCampaign(t *testing.T) string {
	t.Helper()
	code, env := f.call(t, f.token, http.MethodPost, "/api/v1/campaigns", map[string]interface{}{
		"name":             "Spring sale",
		"message_template": "Hi {name}, {discount}% off!",
	})
	require.Equal(t, http.StatusCreated, code, env.Message)

	var c model.CampaignView
	require.NoError(t, json.Unmarshal(env.Data, &c))
	assert.Equal(t, model.CampaignStatusDraft, c.Status)
	assert.True(t, c.IsEditable)
	assert.False(t, c.IsSendable)
	return c.ID.String()
}

func upload(t *testing.T, path, filename, content, delimiter string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	if delimiter != "" {
		require.NoError(t, w.WriteField("delimiter", delimiter))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestCampaignLifecycle(t *testing.T) {
	f := newAPI(t)
	id := f.createCampaign(t)
	base := "/api/v1/campaigns/" + id

	code, env := f.call(t, f.token, http.MethodPost, base+"/recipients", map[string]interface{}{
		"phone_number": "+1 234 567 890",
		"name":         "Jane",
		"custom_data":  map[string]interface{}{"discount": 15},
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var rec model.Recipient
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, "+1234567890", rec.PhoneNumber)

	code, env = f.call(t, f.token, http.MethodPost, base+"/recipients", map[string]interface{}{"phone_number": "+1234567890"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict_error", env.Code)

	code, env = f.call(t, f.token, http.MethodPost, base+"/recipients/bulk", map[string]interface{}{
		"recipients": []map[string]interface{}{
			{"phone_number": "+1987654321"},
			{"phone_number": "+1234567890"},
			{"phone_number": "123"},
		},
	})
	require.Equal(t, http.StatusOK, code)
	var report model.IngestResult
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 1, report.AddedCount)
	assert.Equal(t, 1, report.DuplicateCount)
	assert.Equal(t, 1, report.ErrorCount)
	require.Len(t, report.Errors, 1)
	assert.True(t, strings.HasPrefix(report.Errors[0], "Recipient 3: "), report.Errors[0])

	code, env = f.send(t, f.token, upload(t, base+"/recipients/upload", "list.csv",
		"phone_number;name\n+1555000111;Ann\n+1987654321;Dup\nbad;X\n", ";"))
	require.Equal(t, http.StatusOK, code, env.Message)
	report = model.IngestResult{}
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 1, report.AddedCount)
	assert.Equal(t, 1, report.DuplicateCount)
	require.Len(t, report.Errors, 1)
	assert.True(t, strings.HasPrefix(report.Errors[0], "Row 4: phone number must start with +"), report.Errors[0])

	code, env = f.call(t, f.token, http.MethodPost, base+"/preview", map[string]string{"recipient_id": rec.ID.String()})
	require.Equal(t, http.StatusOK, code)
	var preview model.PreviewResult
	require.NoError(t, json.Unmarshal(env.Data, &preview))
	assert.Equal(t, "Hi Jane, 15% off!", preview.Message)

	code, env = f.call(t, f.token, http.MethodGet, base+"/recipients?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, code)
	var page struct {
		Items      []model.Recipient `json:"items"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 3, page.Pagination.Total)

	code, env = f.call(t, f.token, http.MethodPost, base+"/send", nil)
	require.Equal(t, http.StatusAccepted, code, env.Message)

	code, env = f.call(t, f.token, http.MethodPost, base+"/recipients", map[string]interface{}{"phone_number": "+1444000111"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "state_error", env.Code)

	code, _ = f.call(t, f.token, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestUploadRejections(t *testing.T) {
	f := newAPI(t)
	base := "/api/v1/campaigns/" + f.createCampaign(t)

	code, env := f.send(t, f.token, upload(t, base+"/recipients/upload", "list.xlsx", "phone_number\n", ""))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "format_error", env.Code)

	code, env = f.send(t, f.token, upload(t, base+"/recipients/upload", "list.csv", "name\nJane\n", ""))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "format_error", env.Code)

	code, env = f.send(t, f.token, upload(t, base+"/recipients/upload", "list.csv", "phone_number\n", ":"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "format_error", env.Code)

	code, env = f.send(t, f.token, upload(t, base+"/recipients/upload", "list.tsv", "phone_number\tname\n+1234567890\tJane\n", ""))
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = f.call(t, f.token, http.MethodPost, base+"/recipients/bulk", map[string]interface{}{"recipients": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "format_error", env.Code)
}

func TestTenantIsolationAndAuth(t *testing.T) {
	f := newAPI(t)
	id := f.createCampaign(t)

	other := mint(t, f.jwt, uuid.New())
	code, env := f.call(t, other, http.MethodGet, "/api/v1/campaigns/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Code)

	code, env = f.call(t, other, http.MethodPost, "/api/v1/campaigns/"+id+"/recipients", map[string]string{"phone_number": "+1234567890"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.call(t, "", http.MethodGet, "/api/v1/campaigns", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.call(t, f.token, http.MethodGet, "/api/v1/campaigns/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestValidationErrorsCarryField(t *testing.T) {
	f := newAPI(t)

	code, env := f.call(t, f.token, http.MethodPost, "/api/v1/campaigns", map[string]interface{}{
		"name":             "x",
		"message_template": "short",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", env.Code)
	assert.Equal(t, "message_template", env.Field)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns", strings.NewReader("{"))
	code, env = f.send(t, f.token, req)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "format_error", env.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPI(t)

	code, _ := f.call(t, "", http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.call(t, "", http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, code)

	f.createCampaign(t)

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")
}
