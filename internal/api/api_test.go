package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenmail/campaignd/internal/mailing"
	"github.com/lumenmail/campaignd/internal/repository/postgres"
	"github.com/lumenmail/campaignd/internal/tracking"
	"github.com/lumenmail/campaignd/internal/worker"
)

type stubSender struct {
	lastMsg *worker.EmailMessage
	fail    bool
}

func (s *stubSender) Send(_ context.Context, msg *worker.EmailMessage) (*worker.SendResult, error) {
	s.lastMsg = msg
	if s.fail {
		return &worker.SendResult{Success: false, Error: errors.New("esp rejected message")}, nil
	}
	return &worker.SendResult{Success: true, MessageID: "msg-1"}, nil
}

func newTestAPI(t *testing.T) (*chi.Mux, sqlmock.Sqlmock, *stubSender) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sender := &stubSender{}
	composer := worker.NewComposer(mailing.NewRenderer(),
		tracking.NewSigner("test-secret", "http://track.local"), "Lumen Mail", "news@lumenmail.io")
	h := NewHandlers(postgres.NewStore(db), composer, sender)
	return SetupRoutes(h, nil, false), mock, sender
}

var campaignCols = []string{
	"id", "name", "subject", "preheader", "from_name", "from_email",
	"html_content", "plain_content", "include_tags", "exclude_tags", "status",
	"total_recipients", "sent_count", "open_count", "click_count", "bounce_count",
	"unsubscribe_count", "spam_count",
	"scheduled_at", "started_at", "completed_at", "test_sent_at", "test_sent_to",
	"created_at", "updated_at",
}

type rowOpts struct {
	status     string
	testSentAt interface{}
	sent, open int
}

func campaignRow(id string, o rowOpts) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(campaignCols).AddRow(
		id, "Spring Sale", "Sale starts now", "", "Growth", "growth@lumenmail.io",
		"<body><p>hi</p></body>", "", "{}", "{}", o.status,
		100, o.sent, o.open, 0, 0,
		0, 0,
		nil, nil, nil, o.testSentAt, "",
		now, now,
	)
}

func campaignRowHTML(id, status, html string, testSentAt interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(campaignCols).AddRow(
		id, "Spring Sale", "Sale starts now", "", "Growth", "growth@lumenmail.io",
		html, "", "{}", "{}", status,
		100, 0, 0, 0, 0,
		0, 0,
		nil, nil, nil, testSentAt, "",
		now, now,
	)
}

func doRequest(router *chi.Mux, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestListCampaigns(t *testing.T) {
	router, mock, _ := newTestAPI(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM campaigns WHERE 1=1 AND status = \$1`).
		WithArgs("draft").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT (.+) FROM campaigns WHERE 1=1 AND status = \$1 ORDER BY created_at DESC`).
		WithArgs("draft", 20, 0).
		WillReturnRows(campaignRow("camp-1", rowOpts{status: "draft"}))

	rr := doRequest(router, "GET", "/api/campaigns?status=draft", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"camp-1"`)
	assert.Contains(t, rr.Body.String(), `"total":1`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListCampaignsBadStatusFilter(t *testing.T) {
	router, _, _ := newTestAPI(t)
	rr := doRequest(router, "GET", "/api/campaigns?status=launched", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetCampaignNotFound(t *testing.T) {
	router, mock, _ := newTestAPI(t)

	mock.ExpectQuery(`SELECT (.+) FROM campaigns WHERE id = \$1`).
		WithArgs("camp-missing").
		WillReturnRows(sqlmock.NewRows(campaignCols))

	rr := doRequest(router, "GET", "/api/campaigns/camp-missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateCampaign(t *testing.T) {
	router, mock, _ := newTestAPI(t)

	mock.ExpectQuery(`INSERT INTO campaigns`).
		WillReturnRows(campaignRow("camp-new", rowOpts{status: "draft"}))

	rr := doRequest(router, "POST", "/api/campaigns", `{"name":"Spring Sale","subject":"Sale starts now"}`)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"camp-new"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCampaignValidation(t *testing.T) {
	router, _, _ := newTestAPI(t)

	rr := doRequest(router, "POST", "/api/campaigns", `{"subject":"no name"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "name is required")

	rr = doRequest(router, "POST", "/api/campaigns", `{"name":"x","from_email":"not-an-address"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateCampaignConflict(t *testing.T) {
	router, mock, _ := newTestAPI(t)

	mock.ExpectQuery(`UPDATE campaigns`).
		WillReturnRows(sqlmock.NewRows(campaignCols))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	rr := doRequest(router, "PUT", "/api/campaigns/camp-1", `{"name":"Renamed"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestDeleteCampaignOnlyDrafts(t *testing.T) {
	router, mock, _ := newTestAPI(t)

	mock.ExpectExec(`DELETE FROM campaigns WHERE id = \$1 AND status = 'draft'`).
		WithArgs("camp-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	rr := doRequest(router, "DELETE", "/api/campaigns/camp-1", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestSendRequiresTestSend(t *testing.T) {
	router, mock, _ := newTestAPI(t)

	mock.ExpectQuery(`SELECT (.+) FROM campaigns WHERE id = \$1`).
		WithArgs("camp-1").
		WillReturnRows(campaignRow("camp-1", rowOpts{status: "draft"}))

	rr := doRequest(router, "POST", "/api/campaigns/camp-1/send", "")

	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)
	assert.Contains(t, rr.Body.String(), "test send")
}

func TestSendCampaign(t *testing.T) {
	router, mock, _ := newTestAPI(t)

	mock.ExpectQuery(`SELECT (.+) FROM campaigns WHERE id = \$1`).
		WithArgs("camp-1").
		WillReturnRows(campaignRow("camp-1", rowOpts{status: "draft", testSentAt: time.Now()}))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE campaigns\s+SET status = 'sending'`).
		WithArgs("camp-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO dispatch_outbox`).
		WithArgs("camp-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rr := doRequest(router, "POST", "/api/campaigns/camp-1/send", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"sending"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendRejectsBadTemplate(t *testing.T) {
	router, mock, _ := newTestAPI(t)

	mock.ExpectQuery(`SELECT (.+) FROM campaigns WHERE id = \$1`).
		WithArgs("camp-1").
		WillReturnRows(campaignRowHTML("camp-1", "draft", "<body>{% endif %}</body>", time.Now()))

	rr := doRequest(router, "POST", "/api/campaigns/camp-1/send", "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "template error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPreviewCampaign(t *testing.T) {
	router, mock, _ := newTestAPI(t)

	html := `<body><p>Hi {{ first_name }} ({{ email }})</p><a href="{{ unsubscribe_url }}">Unsubscribe</a></body>`
	mock.ExpectQuery(`SELECT (.+) FROM campaigns WHERE id = \$1`).
		WithArgs("camp-1").
		WillReturnRows(campaignRowHTML("camp-1", "draft", html, nil))

	rr := doRequest(router, "GET", "/api/campaigns/camp-1/preview", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	body := rr.Body.String()
	assert.Contains(t, body, "Hi John (john@example.com)")
	assert.Contains(t, body, `href="#"`)
}

func TestTestSendRecordsGate(t *testing.T) {
	router, mock, sender := newTestAPI(t)

	mock.ExpectQuery(`SELECT (.+) FROM campaigns WHERE id = \$1`).
		WithArgs("camp-1").
		WillReturnRows(campaignRow("camp-1", rowOpts{status: "draft"}))
	mock.ExpectExec(`UPDATE campaigns SET test_sent_at = NOW\(\)`).
		WithArgs("camp-1", "qa@lumenmail.io").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rr := doRequest(router, "POST", "/api/campaigns/camp-1/test", `{"email":"qa@lumenmail.io"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, sender.lastMsg)
	assert.Equal(t, "qa@lumenmail.io", sender.lastMsg.Email)
	assert.True(t, strings.HasPrefix(sender.lastMsg.Subject, "[TEST] "))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTestSendFailureDoesNotUnlock(t *testing.T) {
	router, mock, sender := newTestAPI(t)
	sender.fail = true

	mock.ExpectQuery(`SELECT (.+) FROM campaigns WHERE id = \$1`).
		WithArgs("camp-1").
		WillReturnRows(campaignRow("camp-1", rowOpts{status: "draft"}))

	rr := doRequest(router, "POST", "/api/campaigns/camp-1/test", `{"email":"qa@lumenmail.io"}`)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleCampaignTooSoon(t *testing.T) {
	router, mock, _ := newTestAPI(t)

	mock.ExpectQuery(`SELECT (.+) FROM campaigns WHERE id = \$1`).
		WithArgs("camp-1").
		WillReturnRows(campaignRow("camp-1", rowOpts{status: "draft", testSentAt: time.Now()}))

	at := time.Now().Add(2 * time.Minute).Format(time.RFC3339)
	rr := doRequest(router, "POST", "/api/campaigns/camp-1/schedule", `{"scheduled_at":"`+at+`"}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "minutes in the future")
}

func TestScheduleCampaign(t *testing.T) {
	router, mock, _ := newTestAPI(t)

	mock.ExpectQuery(`SELECT (.+) FROM campaigns WHERE id = \$1`).
		WithArgs("camp-1").
		WillReturnRows(campaignRow("camp-1", rowOpts{status: "draft", testSentAt: time.Now()}))
	mock.ExpectExec(`UPDATE campaigns SET status = 'scheduled'`).
		WithArgs("camp-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	at := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	rr := doRequest(router, "POST", "/api/campaigns/camp-1/schedule", `{"scheduled_at":"`+at+`"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPauseConflict(t *testing.T) {
	router, mock, _ := newTestAPI(t)

	mock.ExpectExec(`UPDATE campaigns SET status = 'paused'`).
		WithArgs("camp-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	rr := doRequest(router, "POST", "/api/campaigns/camp-1/pause", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestCampaignStats(t *testing.T) {
	router, mock, _ := newTestAPI(t)

	mock.ExpectQuery(`SELECT (.+) FROM campaigns WHERE id = \$1`).
		WithArgs("camp-1").
		WillReturnRows(campaignRow("camp-1", rowOpts{status: "sent", sent: 100, open: 40}))
	mock.ExpectQuery(`SELECT (.+) FROM campaign_events`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "campaign_id", "recipient_id", "event_type", "link_url",
			"device_type", "country", "user_agent", "created_at",
		}).AddRow("ev-1", "camp-1", "rec-1", "open", "", "mobile", "US", "ua",
			time.Date(2026, 4, 1, 14, 30, 0, 0, time.UTC)))

	rr := doRequest(router, "GET", "/api/campaigns/camp-1/stats", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `"open_rate":40`)
	assert.Contains(t, body, `"device_breakdown"`)
	assert.Contains(t, body, `"mobile":1`)
	assert.Contains(t, body, `"hourly_engagement"`)
	assert.Contains(t, body, `"best_hour":14`)
	assert.Contains(t, body, `"weekday_engagement"`)
	assert.Contains(t, body, `"best_weekday":3`)
}

func TestBestSendTimeUnavailable(t *testing.T) {
	router, mock, _ := newTestAPI(t)

	mock.ExpectQuery(`SELECT (.+) FROM campaign_events`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "campaign_id", "recipient_id", "event_type", "link_url",
			"device_type", "country", "user_agent", "created_at",
		}))

	rr := doRequest(router, "GET", "/api/analytics/best-send-time", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"available":false`)
}
