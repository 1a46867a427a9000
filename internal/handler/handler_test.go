package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/eventreg/internal/auth"
	"github.com/Shivanand-hulikatti/eventreg/internal/model"
	"github.com/Shivanand-hulikatti/eventreg/internal/repository"
	"github.com/Shivanand-hulikatti/eventreg/internal/service"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	t      *testing.T
	router http.Handler
	jwt    *auth.JWTManager
	dir    *repository.MemoryDirectory
}

func newTestServer(t *testing.T, perMinute int) *testServer {
	t.Helper()
	dir := repository.NewMemoryDirectory()
	ledger := repository.NewMemoryLedger(dir, repository.LedgerOptions{})
	jwt := auth.NewJWTManager("test-secret", time.Hour, "eventreg")

	router := NewRouter(RouterConfig{
		Logger:             zerolog.Nop(),
		Authenticator:      auth.NewBearerAuthenticator(jwt),
		Events:             service.NewEventService(dir, ledger, nil),
		Registrations:      service.NewRegistrationService(ledger),
		RateLimitPerMinute: perMinute,
	})
	return &testServer{t: t, router: router, jwt: jwt, dir: dir}
}

func (s *testServer) token(userID, role string) string {
	s.t.Helper()
	tok, err := s.jwt.Generate(userID, model.Role(role))
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) addEvent(id string, capacity int) {
	s.dir.Add(model.Event{ID: id, Name: id, Capacity: &capacity, CreatedAt: time.Now().UTC()})
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) Problem {
	t.Helper()
	assert.Equal(t, problemContentType, rec.Header().Get("Content-Type"))
	var p Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p), rec.Body.String())
	return p
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, 0)
	rec := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestProblemCarriesRequestID(t *testing.T) {
	s := newTestServer(t, 0)
	for _, path := range []string{"/events/missing", "/nowhere"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(requestIDHeader, "req-42")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code, path)
		p := decodeProblem(t, rec)
		assert.Equal(t, "req-42", p.RequestID, path)
		assert.Equal(t, path, p.Instance)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, 0)
	s.do(http.MethodGet, "/health", "", nil)
	rec := s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "eventreg_http_requests_total")
}

func TestRegistrationLifecycle(t *testing.T) {
	s := newTestServer(t, 0)
	s.addEvent("E1", 2)
	alice := s.token("alice", "attendee")

	rec := s.do(http.MethodPost, "/registrations", alice, map[string]string{"eventId": "E1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reg model.Registration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.Equal(t, "alice", reg.UserID)
	assert.Equal(t, model.StatusActive, reg.Status)

	rec = s.do(http.MethodPost, "/registrations", alice, map[string]string{"eventId": "E1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, model.CodeAlreadyRegistered, decodeProblem(t, rec).Code)

	rec = s.do(http.MethodGet, "/registrations/user/alice", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []model.Registration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Len(t, mine, 1)

	rec = s.do(http.MethodDelete, "/registrations/E1", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cancelled model.Registration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	assert.Equal(t, reg.ID, cancelled.ID)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	rec = s.do(http.MethodDelete, "/registrations/E1", alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, model.CodeNotRegistered, decodeProblem(t, rec).Code)
}

func TestRegisterErrors(t *testing.T) {
	s := newTestServer(t, 0)
	s.addEvent("E1", 1)
	alice := s.token("alice", "attendee")
	bob := s.token("bob", "attendee")

	rec := s.do(http.MethodPost, "/registrations", "", map[string]string{"eventId": "E1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, model.CodeAuthRequired, decodeProblem(t, rec).Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = s.do(http.MethodPost, "/registrations", "garbage", map[string]string{"eventId": "E1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/registrations", alice, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, model.CodeInvalidInput, p.Code)
	assert.Equal(t, "is required", p.Errors["eventId"])

	rec = s.do(http.MethodPost, "/registrations", alice, `{"eventId":"E1","extra":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/registrations", alice, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/registrations", alice, map[string]string{"eventId": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, model.CodeEventNotFound, decodeProblem(t, rec).Code)

	rec = s.do(http.MethodPost, "/registrations", alice, map[string]string{"eventId": "E1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(http.MethodPost, "/registrations", bob, map[string]string{"eventId": "E1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, model.CodeEventFull, decodeProblem(t, rec).Code)
}

func TestRegistrationClosed(t *testing.T) {
	s := newTestServer(t, 0)
	past := time.Now().Add(-time.Hour)
	s.dir.Add(model.Event{ID: "old", Name: "old", RegistrationClosesAt: &past, CreatedAt: time.Now()})

	rec := s.do(http.MethodPost, "/registrations", s.token("alice", "attendee"), map[string]string{"eventId": "old"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, model.CodeRegistrationClosed, decodeProblem(t, rec).Code)
}

func TestListRegistrationsAuthorization(t *testing.T) {
	s := newTestServer(t, 0)
	s.addEvent("E1", 10)
	alice := s.token("alice", "attendee")
	admin := s.token("root", "admin")

	rec := s.do(http.MethodGet, "/registrations", alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, model.CodeForbidden, decodeProblem(t, rec).Code)

	rec = s.do(http.MethodGet, "/registrations", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	for _, user := range []string{"alice", "bob", "carol"} {
		rec := s.do(http.MethodPost, "/registrations", s.token(user, "attendee"), map[string]string{"eventId": "E1"})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	s.do(http.MethodDelete, "/registrations/E1", s.token("bob", "attendee"), nil)

	rec = s.do(http.MethodGet, "/registrations?eventId=E1&status=active", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var active []model.Registration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	assert.Len(t, active, 2)

	rec = s.do(http.MethodGet, "/registrations?limit=1&offset=2", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page []model.Registration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page, 1)

	for _, q := range []string{"status=bogus", "limit=x", "offset=-1"} {
		rec = s.do(http.MethodGet, "/registrations?"+q, admin, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec = s.do(http.MethodGet, "/registrations/user/alice", s.token("bob", "attendee"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/registrations/user/alice", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/registrations/user/dave", s.token("dave", "attendee"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestConcurrentRegistrationOverHTTP(t *testing.T) {
	s := newTestServer(t, 0)
	s.addEvent("E1", 3)

	codes := make(chan int, 10)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		token := s.token("user-"+strings.Repeat("x", i+1), "attendee")
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- s.do(http.MethodPost, "/registrations", token, map[string]string{"eventId": "E1"}).Code
		}()
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for c := range codes {
		counts[c]++
	}
	assert.Equal(t, 3, counts[http.StatusCreated])
	assert.Equal(t, 7, counts[http.StatusConflict])
}

func TestEventRoutes(t *testing.T) {
	s := newTestServer(t, 0)
	admin := s.token("root", "admin")

	rec := s.do(http.MethodPost, "/events", s.token("alice", "attendee"), map[string]any{"name": "Talk", "capacity": 5})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/events", "", map[string]any{"name": "Talk"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/events", admin, map[string]any{"name": "Talk", "capacity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeProblem(t, rec).Errors, "capacity")

	rec = s.do(http.MethodPost, "/events", admin, map[string]any{"name": "Talk", "capacity": 5})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var event model.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))

	rec = s.do(http.MethodPost, "/registrations", s.token("alice", "attendee"), map[string]string{"eventId": event.ID})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(http.MethodGet, "/events/"+event.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.ActiveCount)

	rec = s.do(http.MethodGet, "/events", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = s.do(http.MethodGet, "/events/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, 0)
	rec := s.do(http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, model.Code("not_found"), decodeProblem(t, rec).Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, 2)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/events", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/events", "", nil).Code)

	rec := s.do(http.MethodGet, "/events", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Health and metrics are not limited.
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "", nil).Code)
}

func TestLimiterStoreSweepsIdleClients(t *testing.T) {
	store := newLimiterStore(10)
	now := time.Now()
	store.now = func() time.Time { return now }

	store.limiter("1.1.1.1")
	now = now.Add(limiterTTL + time.Minute)
	store.limiter("2.2.2.2")

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.NotContains(t, store.limiters, "1.1.1.1")
	assert.Contains(t, store.limiters, "2.2.2.2")
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	writeError(rec, req, context.Canceled)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, model.CodeInternal, p.Code)
	assert.Empty(t, p.Detail)
}

func TestWriteErrorTransientSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	writeError(rec, req, model.ErrTransient)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, model.CodeTransient, decodeProblem(t, rec).Code)
}

func TestStatusForCoversTaxonomy(t *testing.T) {
	tests := map[model.Code]int{
		model.CodeAuthRequired:       http.StatusUnauthorized,
		model.CodeForbidden:          http.StatusForbidden,
		model.CodeNotOwner:           http.StatusForbidden,
		model.CodeEventNotFound:      http.StatusNotFound,
		model.CodeEventFull:          http.StatusConflict,
		model.CodeAlreadyRegistered:  http.StatusConflict,
		model.CodeNotRegistered:      http.StatusNotFound,
		model.CodeRegistrationClosed: http.StatusConflict,
		model.CodeInvalidInput:       http.StatusBadRequest,
		model.CodeTransient:          http.StatusServiceUnavailable,
		model.CodeInternal:           http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusFor(code), code)
	}
}

type panickingLedger struct {
	repository.Ledger
}

func (panickingLedger) ListForUser(context.Context, string) ([]model.Registration, error) {
	panic("ledger exploded")
}

func TestPanicIsRecoveredAndLogged(t *testing.T) {
	var logs bytes.Buffer
	dir := repository.NewMemoryDirectory()
	ledger := panickingLedger{Ledger: repository.NewMemoryLedger(dir, repository.LedgerOptions{})}
	jwt := auth.NewJWTManager("test-secret", time.Hour, "eventreg")
	router := NewRouter(RouterConfig{
		Logger:        zerolog.New(&logs),
		Authenticator: auth.NewBearerAuthenticator(jwt),
		Events:        service.NewEventService(dir, ledger, nil),
		Registrations: service.NewRegistrationService(ledger),
	})
	s := &testServer{t: t, router: router, jwt: jwt, dir: dir}

	rec := s.do(http.MethodGet, "/registrations/user/alice", s.token("alice", "attendee"), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var access map[string]any
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		if entry["message"] == "request" {
			access = entry
		}
	}
	require.NotNil(t, access, logs.String())
	assert.Equal(t, float64(http.StatusInternalServerError), access["status"])
	assert.Equal(t, "/registrations/user/alice", access["path"])
}
