package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"reading-club-system/middleware"
	"reading-club-system/models"
	"reading-club-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFlusher struct {
	calls int
	err   error
}

func (f *stubFlusher) Flush(context.Context) error {
	f.calls++
	return f.err
}

const testAdminToken = "admin-secret"

func newTestApp(t *testing.T) (*fiber.App, *services.Club, *captureNotifier, *stubFlusher) {
	t.Helper()
	notifier := &captureNotifier{}
	d, club := newTestDispatcher(newTestClock(), notifier)
	flusher := &stubFlusher{}

	app := fiber.New()
	SetupHealthRoutes(app, club, HealthSources{})
	SetupWebhookRoutes(app, d, "hook-secret")
	SetupAdminRoutes(app, club, flusher, testAdminToken, 3)
	return app, club, notifier, flusher
}

func decode(t *testing.T, body io.Reader, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(body).Decode(v))
}

func postUpdate(t *testing.T, app *fiber.App, secret, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(middleware.TelegramSecretHeader, secret)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestWebhookDispatchesCommand(t *testing.T) {
	app, club, notifier, _ := newTestApp(t)

	update := `{"update_id":1,"message":{"message_id":5,"from":{"id":7,"username":"reader","first_name":"Ann"},
		"chat":{"id":7,"type":"private"},"text":"/start"}}`
	assert.Equal(t, fiber.StatusOK, postUpdate(t, app, "hook-secret", update))

	assert.True(t, club.Members.IsRegistered(7))
	replies := notifier.to(services.DirectRecipient(7))
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "@reader")
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	app, club, _, _ := newTestApp(t)
	update := `{"update_id":1,"message":{"from":{"id":7},"chat":{"id":7,"type":"private"},"text":"/start"}}`

	assert.Equal(t, fiber.StatusUnauthorized, postUpdate(t, app, "", update))
	assert.Equal(t, fiber.StatusUnauthorized, postUpdate(t, app, "wrong", update))
	assert.False(t, club.Members.IsRegistered(7))
}

func TestWebhookIgnoresUnsupportedUpdates(t *testing.T) {
	app, _, notifier, _ := newTestApp(t)
	for _, body := range []string{
		`not json`,
		`{"update_id":2}`,
		`{"update_id":3,"message":{"from":{"id":7,"is_bot":true},"chat":{"id":7,"type":"private"},"text":"/start"}}`,
		`{"update_id":4,"message":{"from":{"id":7},"chat":{"id":-5,"type":"channel"},"text":"/start"}}`,
	} {
		assert.Equal(t, fiber.StatusOK, postUpdate(t, app, "hook-secret", body))
	}
	assert.Empty(t, notifier.msgs)
}

func TestTelegramUpdateToEvent(t *testing.T) {
	var u telegramUpdate
	require.NoError(t, json.Unmarshal([]byte(`{"update_id":9,"message":{"message_id":3,"message_thread_id":4,
		"from":{"id":7,"first_name":"Ann"},"chat":{"id":-1001,"type":"supergroup"},"text":"/balance",
		"reply_to_message":{"message_id":2,"from":{"id":8}}}}`), &u))

	ev, ok := u.toEvent()
	require.True(t, ok)
	assert.Equal(t, ChatGroup, ev.Chat)
	assert.EqualValues(t, -1001, ev.ChatID)
	assert.EqualValues(t, 4, ev.ThreadID)
	require.NotNil(t, ev.ReplyTargetID)
	assert.EqualValues(t, 8, *ev.ReplyTargetID)
}

func TestHealth(t *testing.T) {
	app, club, _, _ := newTestApp(t)
	club.Members.Register(7, "", "Ann", "")
	_, adm := club.Registry.Submit(7, "https://habr.com/a", "", "")
	require.True(t, adm.Allowed)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]any
	decode(t, resp.Body, &body)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["members"])
	assert.EqualValues(t, 1, body["queue"])
	assert.EqualValues(t, 0, body["published_today"])
	assert.Equal(t, false, body["duel_running"])
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubSaved time.Time

func (s stubSaved) LastSaved() time.Time { return time.Time(s) }

type stubOutbox struct{}

func (stubOutbox) Stats() (int64, int64, int64) { return 4, 1, 2 }
func (stubOutbox) Pending() int                { return 3 }

func TestHealthReportsSources(t *testing.T) {
	_, club := newTestDispatcher(newTestClock(), nil)
	saved := time.Date(2026, 3, 2, 7, 59, 0, 0, time.UTC)

	app := fiber.New()
	SetupHealthRoutes(app, club, HealthSources{Store: stubPinger{}, Snapshots: stubSaved(saved), Outbox: stubOutbox{}})
	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var body map[string]any
	decode(t, resp.Body, &body)
	assert.Equal(t, "ok", body["storage"])
	assert.Equal(t, "2026-03-02T07:59:00Z", body["last_saved"])
	notifications := body["notifications"].(map[string]any)
	assert.EqualValues(t, 2, notifications["dropped"])
	assert.EqualValues(t, 3, notifications["pending"])

	app = fiber.New()
	SetupHealthRoutes(app, club, HealthSources{Store: stubPinger{err: errors.New("connection refused")}})
	resp, err = app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	decode(t, resp.Body, &body)
	assert.Equal(t, "degraded", body["status"])
}

func adminReq(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAdminPublish(t *testing.T) {
	app, club, _, _ := newTestApp(t)
	club.Registry.Submit(7, "https://habr.com/a", "A", "")
	club.Registry.Submit(8, "https://habr.com/b", "B", "")

	resp, err := app.Test(httptest.NewRequest("POST", "/admin/publish", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(adminReq("POST", "/admin/publish?n=zero", ""))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(adminReq("POST", "/admin/publish?n=1", ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out struct {
		Count     int                 `json:"count"`
		Published []models.Submission `json:"published"`
	}
	decode(t, resp.Body, &out)
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, "A", out.Published[0].Title)
	assert.Equal(t, 1, club.Registry.QueueSize())
}

func TestAdminStartDuel(t *testing.T) {
	app, _, notifier, _ := newTestApp(t)

	resp, err := app.Test(adminReq("POST", "/admin/duels", `{"topic":"Fog","prize":9223372036854775807}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(adminReq("POST", "/admin/duels", `{"topic":"Fog","prize":40}`))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var duel models.Duel
	decode(t, resp.Body, &duel)
	assert.Equal(t, "Fog", duel.Topic)
	assert.EqualValues(t, 40, duel.Prize)
	assert.Len(t, notifier.to(services.DirectRecipient(groupChat)), 1)

	resp, err = app.Test(adminReq("POST", "/admin/duels", `{"topic":"Again"}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, err = app.Test(adminReq("POST", "/admin/duels", `{"topic":"  "}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAdminSnapshotAndFlush(t *testing.T) {
	app, club, _, flusher := newTestApp(t)
	club.Members.Register(7, "reader", "", "")

	resp, err := app.Test(adminReq("GET", "/admin/snapshot", ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var snap models.Snapshot
	decode(t, resp.Body, &snap)
	assert.Equal(t, models.SnapshotVersion, snap.Version)
	require.Len(t, snap.Members, 1)
	assert.EqualValues(t, 50, snap.Accounts[0].Balance)

	resp, err = app.Test(adminReq("POST", "/admin/snapshot/flush", ""))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	flusher.err = errors.New("redis down")
	resp, err = app.Test(adminReq("POST", "/admin/snapshot/flush", ""))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 2, flusher.calls)
}

func TestAdminMembers(t *testing.T) {
	app, club, _, _ := newTestApp(t)
	d := NewDispatcher(club, DispatcherConfig{AllowedDomains: []string{"habr.com"}})
	ctx := context.Background()
	d.Handle(ctx, direct(7, "/start"))
	d.Handle(ctx, direct(7, "/submit https://habr.com/a Rain"))

	resp, err := app.Test(adminReq("GET", "/admin/members/7", ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out struct {
		Member  models.Member        `json:"member"`
		Balance int64                `json:"balance"`
		Ledger  []models.LedgerEntry `json:"ledger"`
		Pending *models.Submission   `json:"pending"`
	}
	decode(t, resp.Body, &out)
	assert.EqualValues(t, 60, out.Balance)
	assert.Len(t, out.Ledger, 2)
	require.NotNil(t, out.Pending)
	assert.Equal(t, "Rain", out.Pending.Title)

	resp, err = app.Test(adminReq("GET", "/admin/members/8", ""))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(adminReq("POST", "/admin/members/x/archive", ""))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(adminReq("POST", "/admin/members/7/archive", ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, d.Handle(ctx, direct(7, "/balance")), "archived")
	assert.EqualValues(t, 60, club.Ledger.Balance(7), "archiving keeps the balance")
}

func TestAdminQueueAndDuel(t *testing.T) {
	app, club, _, _ := newTestApp(t)
	club.Registry.Submit(7, "https://habr.com/a", "A", "")
	club.Registry.Submit(8, "https://habr.com/b", "B", "")
	club.PublishNow(context.Background(), 1)

	resp, err := app.Test(adminReq("GET", "/admin/queue", ""))
	require.NoError(t, err)
	var queue struct {
		Queue     []models.Submission `json:"queue"`
		Published []models.Submission `json:"published"`
	}
	decode(t, resp.Body, &queue)
	require.Len(t, queue.Queue, 1)
	assert.Equal(t, "B", queue.Queue[0].Title)
	require.Len(t, queue.Published, 1)
	assert.Equal(t, "A", queue.Published[0].Title)

	duel, err := club.StartDuel(context.Background(), services.DuelOptions{Topic: "Fog"})
	require.NoError(t, err)
	resp, err = app.Test(adminReq("GET", "/admin/duels/"+duel.ID, ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var got struct {
		Duel  models.Duel `json:"duel"`
		Tally []int       `json:"tally"`
	}
	decode(t, resp.Body, &got)
	assert.Equal(t, "Fog", got.Duel.Topic)
	assert.Equal(t, []int{0}, got.Tally)

	resp, err = app.Test(adminReq("GET", "/admin/duels/missing", ""))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
