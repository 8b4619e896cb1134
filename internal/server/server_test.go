package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"worktrack/internal/workspace"
)

func newTestServer(t *testing.T, auth AuthConfig) (http.Handler, *workspace.Workspace) {
	t.Helper()
	ws, err := workspace.Init(t.TempDir(), "test")
	if err != nil {
		t.Fatalf("init workspace: %v", err)
	}
	handler, err := New(Config{Workspace: ws, Auth: auth})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return handler, ws
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, rec, &envelope)
	return envelope.Error.Code
}

func TestHealth(t *testing.T) {
	handler, _ := newTestServer(t, AuthConfig{})
	rec := doRequest(t, handler, http.MethodGet, "/v0/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("body = %#v", body)
	}
}

func TestCreateAndGetItem(t *testing.T) {
	handler, _ := newTestServer(t, AuthConfig{})

	rec := doRequest(t, handler, http.MethodPost, "/v0/items",
		`{"title":"Fix Login","assignee":"sam","labels":["auth"]}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rec.Code, rec.Body.String())
	}
	var created ItemResponse
	decodeBody(t, rec, &created)
	if created.UID != "fs:fix-login" || created.State != "TODO" {
		t.Errorf("created = %#v", created)
	}

	rec = doRequest(t, handler, http.MethodGet, "/v0/items/fs:fix-login", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got ItemResponse
	decodeBody(t, rec, &got)
	if got.Title != "Fix Login" || got.Assignee != "sam" {
		t.Errorf("got = %#v", got)
	}
}

func TestCreateItemConflict(t *testing.T) {
	handler, _ := newTestServer(t, AuthConfig{})
	doRequest(t, handler, http.MethodPost, "/v0/items", `{"title":"Dup"}`, nil)
	rec := doRequest(t, handler, http.MethodPost, "/v0/items", `{"title":"Dup"}`, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "conflict" {
		t.Errorf("code = %q", code)
	}
}

func TestGetItemNotFound(t *testing.T) {
	handler, _ := newTestServer(t, AuthConfig{})
	rec := doRequest(t, handler, http.MethodGet, "/v0/items/fs:nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "not_found" {
		t.Errorf("code = %q", code)
	}
}

func TestSearchFilters(t *testing.T) {
	handler, _ := newTestServer(t, AuthConfig{})
	doRequest(t, handler, http.MethodPost, "/v0/items", `{"title":"A","labels":["auth"]}`, nil)
	doRequest(t, handler, http.MethodPost, "/v0/items", `{"title":"B"}`, nil)

	rec := doRequest(t, handler, http.MethodPost, "/v0/search", `{"label":"auth"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var items []ItemResponse
	decodeBody(t, rec, &items)
	if len(items) != 1 || items[0].UID != "fs:a" {
		t.Errorf("items = %#v", items)
	}

	rec = doRequest(t, handler, http.MethodPost, "/v0/search", `{}`, nil)
	decodeBody(t, rec, &items)
	if len(items) != 2 {
		t.Errorf("unfiltered = %#v", items)
	}
}

func TestSetFieldsEndpoint(t *testing.T) {
	handler, ws := newTestServer(t, AuthConfig{})
	doRequest(t, handler, http.MethodPost, "/v0/items", `{"title":"Set Me"}`, nil)

	body := `{"operations":[{"path":"state","value":"IN_PROGRESS"},{"path":"fields.priority","value":2}]}`
	rec := doRequest(t, handler, http.MethodPost, "/v0/items/fs:set-me/set", body,
		map[string]string{"X-Actor-Id": "bot"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var updated ItemResponse
	decodeBody(t, rec, &updated)
	if updated.State != "IN_PROGRESS" {
		t.Errorf("state = %q", updated.State)
	}

	events, err := ws.ReadEvents("fs:set-me", nil)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	var sawActor bool
	for _, ev := range events {
		if ev.Actor == "bot" {
			sawActor = true
		}
	}
	if !sawActor {
		t.Errorf("actor header not recorded: %#v", events)
	}

	rec = doRequest(t, handler, http.MethodPost, "/v0/items/fs:set-me/set", `{"operations":[]}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty ops status = %d", rec.Code)
	}
}

func TestPatchEndpoint(t *testing.T) {
	handler, _ := newTestServer(t, AuthConfig{})
	doRequest(t, handler, http.MethodPost, "/v0/items", `{"title":"Patch Me"}`, nil)

	rec := doRequest(t, handler, http.MethodPatch, "/v0/items/fs:patch-me",
		`{"assignee":"sam","fields":{"blocked":true}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var updated ItemResponse
	decodeBody(t, rec, &updated)
	if updated.Assignee != "sam" || updated.Fields["blocked"] != true {
		t.Errorf("updated = %#v", updated)
	}

	rec = doRequest(t, handler, http.MethodPatch, "/v0/items/fs:patch-me",
		`{"fields":{"blocked":null}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("null patch status = %d body = %s", rec.Code, rec.Body.String())
	}
	updated = ItemResponse{}
	decodeBody(t, rec, &updated)
	if _, ok := updated.Fields["blocked"]; ok {
		t.Errorf("blocked survived null patch: %#v", updated.Fields)
	}
}

func TestEventsEndpoints(t *testing.T) {
	handler, _ := newTestServer(t, AuthConfig{})
	doRequest(t, handler, http.MethodPost, "/v0/items", `{"title":"Logged"}`, nil)

	rec := doRequest(t, handler, http.MethodPost, "/v0/items/fs:logged/events",
		`{"type":"COMMENT_ADDED","payload":{"message":"from api"}}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("append status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodGet, "/v0/items/fs:logged/events", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var events []EventResponse
	decodeBody(t, rec, &events)
	if len(events) != 2 {
		t.Fatalf("events = %#v", events)
	}
	if events[0].Type != "CREATED" || events[1].Type != "COMMENT_ADDED" {
		t.Errorf("types = %s, %s", events[0].Type, events[1].Type)
	}

	rec = doRequest(t, handler, http.MethodGet, "/v0/items/fs:logged/events?since_days=1", "", nil)
	decodeBody(t, rec, &events)
	if len(events) != 2 {
		t.Errorf("since_days=1 events = %#v", events)
	}
}

func TestBearerAuth(t *testing.T) {
	const secret = "test-secret"
	handler, _ := newTestServer(t, AuthConfig{JWTSecret: secret})

	// Health stays open.
	rec := doRequest(t, handler, http.MethodGet, "/v0/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodPost, "/v0/search", `{}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodPost, "/v0/search", `{}`,
		map[string]string{"Authorization": "Bearer not-a-token"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", rec.Code)
	}

	token := signToken(t, secret, "sam")
	rec = doRequest(t, handler, http.MethodPost, "/v0/items", `{"title":"Authed"}`,
		map[string]string{"Authorization": "Bearer " + token})
	if rec.Code != http.StatusCreated {
		t.Fatalf("authed status = %d body = %s", rec.Code, rec.Body.String())
	}

	// Wrong signing key is rejected.
	rec = doRequest(t, handler, http.MethodPost, "/v0/search", `{}`,
		map[string]string{"Authorization": "Bearer " + signToken(t, "other-secret", "sam")})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key status = %d", rec.Code)
	}
}

func TestBearerAuthRecordsActor(t *testing.T) {
	const secret = "test-secret"
	handler, ws := newTestServer(t, AuthConfig{JWTSecret: secret})
	token := signToken(t, secret, "jwt-user")

	doRequest(t, handler, http.MethodPost, "/v0/items", `{"title":"Traced"}`,
		map[string]string{"Authorization": "Bearer " + token})

	events, err := ws.ReadEvents("fs:traced", nil)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(events) == 0 || events[0].Actor != "jwt-user" {
		t.Errorf("events = %#v", events)
	}
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestCreateItemValidation(t *testing.T) {
	handler, _ := newTestServer(t, AuthConfig{})
	rec := doRequest(t, handler, http.MethodPost, "/v0/items", `{"title":""}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "title") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
