package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"speedliner/internal/domain/models"
	"speedliner/internal/usecase"
	"speedliner/pkg/cache"
	xhttp "speedliner/pkg/http"
	"speedliner/pkg/http/middleware"
)

const testRoutes = `[
	{"id": "1", "from": "Jita", "to": "Amarr", "pricePerM3": 500},
	{"id": "2", "from": "Jita", "to": "Rens", "pricePerM3": 300, "visibility": "whitelist", "allowedCorps": [98000001]}
]`

type stubEndpoint struct {
	mu     sync.Mutex
	status int
	calls  int
}

func (e *stubEndpoint) Submit(context.Context, *models.ExpressRequest, models.Credentials) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.status, nil
}

func (e *stubEndpoint) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type stubStore struct {
	mu     sync.Mutex
	values map[string]int64
}

func (s *stubStore) Load(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *stubStore) Save(_ context.Context, key string, v int64, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v
	return nil
}

type testAPI struct {
	echo     *echo.Echo
	hub      *usecase.SessionHub
	endpoint *stubEndpoint
	routes   *cache.MemoryCache
}

func newTestAPI(t *testing.T, status int, opts Options) *testAPI {
	t.Helper()
	endpoint := &stubEndpoint{status: status}
	factory := &usecase.SubmitterFactory{
		Endpoint: endpoint,
		Store:    &stubStore{values: make(map[string]int64)},
		Cooldown: 5 * time.Minute,
		Config:   usecase.SubmissionConfig{Note: "test"},
	}
	hub := usecase.NewSessionHub(usecase.NewRouteRegistry(nil), factory,
		usecase.SessionConfig{Debounce: 20 * time.Millisecond, Cooldown: 5 * time.Minute}, nil, nil)
	if _, err := hub.SetRoutesData([]byte(testRoutes)); err != nil {
		t.Fatalf("routes: %v", err)
	}
	t.Cleanup(hub.Shutdown)

	mem := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })
	opts.RoutesCache = mem
	opts.RoutesTTL = time.Minute

	e := echo.New()
	NewQuoteEchoHandler(nil, hub, nil, opts).RegisterRoutes(e)
	NewSessionHandler(nil, hub, nil, opts).RegisterRoutes(e)
	return &testAPI{echo: e, hub: hub, endpoint: endpoint, routes: mem}
}

func (a *testAPI) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	var env struct {
		Status int             `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if env.Status != rec.Code {
		t.Fatalf("envelope status %d, http status %d", env.Status, rec.Code)
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		t.Fatalf("decode data: %v (%s)", err, env.Data)
	}
}

func TestQuoteStandard(t *testing.T) {
	api := newTestAPI(t, http.StatusCreated, Options{})
	rec := api.do(httptest.NewRequest(http.MethodGet, "/api/quote?route=1&volume=100.000&collateral=1000000", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}

	var res models.QuoteResponse
	decodeData(t, rec, &res)
	if res.Quote == nil || res.Quote.FinalTotal != 50_030_000 || res.Quote.Days != 3 {
		t.Fatalf("unexpected quote %+v", res.Quote)
	}
	if res.Mail != nil {
		t.Fatalf("standard quote must not carry a mail preview")
	}
	if !strings.HasPrefix(res.Message, "Reward: ") {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestQuoteExpressIncludesMail(t *testing.T) {
	api := newTestAPI(t, http.StatusCreated, Options{Note: "hello"})
	rec := api.do(jsonRequest(http.MethodPost, "/api/quote",
		`{"route":"1","volume":"100000","collateral":"1000000","express":true}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}

	var res models.QuoteResponse
	decodeData(t, rec, &res)
	if res.Quote.FinalTotal != 100_060_000 || res.Quote.BaseTotal != 50_030_000 || res.Quote.Days != 1 {
		t.Fatalf("unexpected express quote %+v", res.Quote)
	}
	if res.Mail == nil || !strings.HasPrefix(res.Mail.Subject, "EXPRESS: Jita ↔ Amarr") {
		t.Fatalf("unexpected mail %+v", res.Mail)
	}
	if !strings.Contains(res.Mail.Body, "hello") {
		t.Fatalf("mail body misses the note: %q", res.Mail.Body)
	}
}

func TestQuoteValidationErrors(t *testing.T) {
	api := newTestAPI(t, http.StatusCreated, Options{})
	cases := []struct {
		query string
		code  string
	}{
		{"volume=1&collateral=1", "ERR_NO_ROUTE"},
		{"route=unknown&volume=1&collateral=1", "ERR_NO_ROUTE"},
		{"route=1&volume=abc&collateral=1", "ERR_INVALID_VOLUME"},
		{"route=1&volume=400000&collateral=1", "ERR_VOLUME_EXCEEDED"},
		{"route=1&volume=1&collateral=30000000000", "ERR_COLLATERAL_EXCEEDED"},
	}
	for _, tc := range cases {
		rec := api.do(httptest.NewRequest(http.MethodGet, "/api/quote?"+tc.query, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", tc.query, rec.Code)
		}
		var errs []xhttp.ValidationError
		decodeData(t, rec, &errs)
		if len(errs) != 1 || errs[0].Code != tc.code {
			t.Fatalf("%s: errors = %+v", tc.query, errs)
		}
	}
}

func TestRoutesVisibility(t *testing.T) {
	api := newTestAPI(t, http.StatusCreated, Options{})

	list := func(query string) []models.RouteOption {
		rec := api.do(httptest.NewRequest(http.MethodGet, "/api/routes"+query, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var res struct {
			Rows  []models.RouteOption `json:"rows"`
			Total int64                `json:"total"`
		}
		decodeData(t, rec, &res)
		if int64(len(res.Rows)) != res.Total {
			t.Fatalf("total %d for %d rows", res.Total, len(res.Rows))
		}
		return res.Rows
	}

	if got := list(""); len(got) != 1 || got[0].Value != "1" {
		t.Fatalf("public listing = %+v", got)
	}
	if got := list("?corp=98000001"); len(got) != 2 {
		t.Fatalf("corp listing = %+v", got)
	}
	if api.routes.Len() != 2 {
		t.Fatalf("expected 2 cached listings, got %d", api.routes.Len())
	}
	// served from cache the second time
	if got := list("?corp=98000001"); len(got) != 2 {
		t.Fatalf("cached corp listing = %+v", got)
	}
}

func TestReplaceRoutesRequiresToken(t *testing.T) {
	api := newTestAPI(t, http.StatusCreated, Options{AdminToken: "s3cret"})
	doc := `[{"id":"9","from":"Dodixie","to":"Hek","pricePerM3":100}]`

	rec := api.do(jsonRequest(http.MethodPut, "/api/routes", doc))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d", rec.Code)
	}

	req := jsonRequest(http.MethodPut, "/api/routes", doc)
	req.Header.Set(echo.HeaderAuthorization, "Bearer s3cret")
	rec = api.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with token = %d body %s", rec.Code, rec.Body.String())
	}
	var res models.ReplaceRoutesResponse
	decodeData(t, rec, &res)
	if res.Accepted != 1 || res.Version != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := api.hub.Registry().Get("1"); ok {
		t.Fatalf("replacement must be wholesale")
	}

	req = jsonRequest(http.MethodPut, "/api/routes", `{"not":"a list"}`)
	req.Header.Set(echo.HeaderAuthorization, "Bearer s3cret")
	if rec = api.do(req); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad document status = %d", rec.Code)
	}
}

func TestExpressThenCooldown(t *testing.T) {
	api := newTestAPI(t, http.StatusCreated, Options{})
	body := `{"route":"1","volume":"100000","collateral":"1000000"}`

	rec := api.do(jsonRequest(http.MethodPost, "/api/express", body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("first express status = %d body %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "speedliner_client" || !cookies[0].HttpOnly {
		t.Fatalf("expected client cookie, got %+v", cookies)
	}

	req := jsonRequest(http.MethodPost, "/api/express", body)
	req.AddCookie(cookies[0])
	rec = api.do(req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second express status = %d", rec.Code)
	}
	if api.endpoint.Calls() != 1 {
		t.Fatalf("endpoint called %d times", api.endpoint.Calls())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/express/cooldown", nil)
	req.AddCookie(cookies[0])
	rec = api.do(req)
	var cd models.CooldownResponse
	decodeData(t, rec, &cd)
	if cd.RemainingMs <= 0 || !strings.HasPrefix(cd.Text, "Cooldown active: 0") {
		t.Fatalf("unexpected cooldown %+v", cd)
	}

	// a different browser is not locked out
	rec = api.do(httptest.NewRequest(http.MethodGet, "/api/express/cooldown", nil))
	decodeData(t, rec, &cd)
	if cd.RemainingMs != 0 {
		t.Fatalf("fresh client has cooldown %d", cd.RemainingMs)
	}
}

func TestExpressRejectedIsBadGateway(t *testing.T) {
	api := newTestAPI(t, http.StatusInternalServerError, Options{})
	rec := api.do(jsonRequest(http.MethodPost, "/api/express", `{"route":"1","volume":"100","collateral":"100"}`))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}

	var errs []xhttp.AppError
	decodeData(t, rec, &errs)
	if len(errs) != 1 || errs[0].Params["kind"] != string(models.SubmissionRejected) {
		t.Fatalf("unexpected errors %+v", errs)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/express/cooldown", nil)
	req.AddCookie(rec.Result().Cookies()[0])
	var cd models.CooldownResponse
	decodeData(t, api.do(req), &cd)
	if cd.RemainingMs != 0 {
		t.Fatalf("rejected submission must not arm the cooldown")
	}
}

type stubHistory struct {
	key   string
	limit int
}

func (h *stubHistory) Recent(_ context.Context, key string, limit int) ([]models.AuditEvent, error) {
	h.key, h.limit = key, limit
	return []models.AuditEvent{{ClientKey: key, Route: "Jita ↔ Amarr", Outcome: models.OutcomeSubmitted, Status: 201}}, nil
}

func TestExpressHistory(t *testing.T) {
	rec := newTestAPI(t, http.StatusCreated, Options{}).do(httptest.NewRequest(http.MethodGet, "/api/express/history", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("history without a store should not be routed, got %d", rec.Code)
	}

	history := &stubHistory{}
	api := newTestAPI(t, http.StatusCreated, Options{History: history})
	const client = "6f1c2b8e-2d7a-4f7e-9a43-1f5b2c3d4e5f"
	req := httptest.NewRequest(http.MethodGet, "/api/express/history?limit=5", nil)
	req.AddCookie(&http.Cookie{Name: "speedliner_client", Value: client})
	rec = api.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}

	var list struct {
		Rows  []models.AuditEvent `json:"rows"`
		Total int64               `json:"total"`
	}
	decodeData(t, rec, &list)
	if history.key != client || history.limit != 5 {
		t.Fatalf("store queried with key=%q limit=%d", history.key, history.limit)
	}
	if list.Total != 1 || list.Rows[0].Outcome != models.OutcomeSubmitted {
		t.Fatalf("unexpected rows %+v", list)
	}

	rec = api.do(httptest.NewRequest(http.MethodGet, "/api/express/history?limit=500", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("limit over max should be rejected, got %d", rec.Code)
	}
}

func TestDecodeClientMessage(t *testing.T) {
	ev, err := decodeClientMessage([]byte(`{"type":"volume","value":"12.500"}`))
	if err != nil || ev != (models.VolumeEdited{Raw: "12.500"}) {
		t.Fatalf("volume = %#v, %v", ev, err)
	}
	ev, err = decodeClientMessage([]byte(`{"type":"route","value":4}`))
	if err != nil || ev != (models.RouteChanged{RouteID: "4"}) {
		t.Fatalf("route = %#v, %v", ev, err)
	}
	ev, _ = decodeClientMessage([]byte(`{"type":"express","on":true}`))
	if ev != (models.ExpressToggled{On: true}) {
		t.Fatalf("express = %#v", ev)
	}
	ev, _ = decodeClientMessage([]byte(`{"type":"dismiss","reason":"revoked"}`))
	if ev != (models.ModalDismissed{Reason: models.DismissClose}) {
		t.Fatalf("clients cannot send revoked, got %#v", ev)
	}
	if _, err := decodeClientMessage([]byte(`{"type":"launch"}`)); err != errUnknownMessage {
		t.Fatalf("expected unknown message error, got %v", err)
	}
	if _, err := decodeClientMessage([]byte(`nope`)); err == nil {
		t.Fatalf("expected malformed error")
	}
}

func TestSessionWebsocketQuote(t *testing.T) {
	api := newTestAPI(t, http.StatusCreated, Options{})
	srv := httptest.NewServer(api.echo)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/session"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if len(resp.Cookies()) != 1 {
		t.Fatalf("expected client cookie on upgrade, got %+v", resp.Cookies())
	}

	frames := []string{
		`{"type":"route","value":"1"}`,
		`{"type":"volume","value":"100000"}`,
		`{"type":"collateral","value":"1000000"}`,
	}
	for _, f := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type != "snapshot" || msg.Snapshot == nil || msg.Snapshot.Quote == nil {
			continue
		}
		if msg.Snapshot.Quote.FinalTotal == 50_030_000 {
			break
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == "error" {
			if msg.Message != errUnknownMessage.Error() {
				t.Fatalf("error message = %q", msg.Message)
			}
			break
		}
	}
}

func TestRateLimitSkipsFormEdits(t *testing.T) {
	for _, ev := range []models.Event{models.RouteChanged{}, models.VolumeEdited{}, models.CollateralEdited{}} {
		if rateLimited(ev) {
			t.Fatalf("%T must not be rate limited", ev)
		}
	}
	for _, ev := range []models.Event{models.ConfirmClicked{}, models.ModalRequested{}, models.ExpressToggled{}, models.Recalculate{}} {
		if !rateLimited(ev) {
			t.Fatalf("%T must be rate limited", ev)
		}
	}
}

func TestSessionWebsocketKeepsLastEditUnderLimit(t *testing.T) {
	api := newTestAPI(t, http.StatusCreated, Options{EventLimit: middleware.NewKeyLimiter(0.001, 1, time.Minute)})
	srv := httptest.NewServer(api.echo)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/session", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	frames := []string{
		`{"type":"calculate"}`,
		`{"type":"calculate"}`,
		`{"type":"route","value":"1"}`,
		`{"type":"volume","value":"100000"}`,
		`{"type":"collateral","value":"1"}`,
		`{"type":"collateral","value":"10"}`,
		`{"type":"collateral","value":"100"}`,
		`{"type":"collateral","value":"100000"}`,
		`{"type":"collateral","value":"1000000"}`,
	}
	for _, f := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	limited := 0
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v (rate limited %d)", err, limited)
		}
		if msg.Type == "error" {
			limited++
			continue
		}
		if msg.Snapshot != nil && msg.Snapshot.Quote != nil && msg.Snapshot.Quote.FinalTotal == 50_030_000 {
			if msg.Snapshot.CollateralDisplay != "1.000.000" {
				t.Fatalf("collateral display %q", msg.Snapshot.CollateralDisplay)
			}
			break
		}
	}
	if limited != 1 {
		t.Fatalf("expected only the second calculate to be limited, got %d", limited)
	}
}
