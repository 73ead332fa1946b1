package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusgate/internal/attendance"
	"campusgate/internal/auth"
	"campusgate/internal/directory"
	"campusgate/internal/gate"
	"campusgate/internal/queue"
)

var testTokens = TokenSettings{
	Issuer:     "campusgate",
	SigningKey: "test-signing-key",
	AccessTTL:  time.Minute,
	RefreshTTL: time.Hour,
}

type fakeDecider struct {
	decision gate.Decision
	err      error
	last     gate.Scan
}

func (f *fakeDecider) Decide(_ context.Context, scan gate.Scan) (gate.Decision, error) {
	f.last = scan
	return f.decision, f.err
}

type fakeInvalidator struct{ calls int }

func (f *fakeInvalidator) Invalidate() { f.calls++ }

type testServer struct {
	router  *gin.Engine
	decider *fakeDecider
	store   *attendance.Memory
	scans   *queue.InMemory
	dir     *fakeInvalidator
	token   string
}

func setupRouter(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &testServer{
		decider: &fakeDecider{},
		store:   attendance.NewMemory(),
		scans:   queue.NewInMemory(4),
		dir:     &fakeInvalidator{},
	}
	svc := attendance.NewService(s.store, s.store, time.UTC)
	checks := map[string]HealthCheck{"db": func(context.Context) bool { return true }}
	h := New(s.decider, svc, s.scans, s.dir, testTokens, checks)
	s.router = NewRouter(h, RouterOptions{})

	pair, err := auth.Issue("gate-1", auth.RoleTerminal, testTokens.Issuer, testTokens.SigningKey, time.Minute, time.Hour)
	require.NoError(t, err)
	s.token = pair.AccessToken
	return s
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestRegisterTerminal(t *testing.T) {
	s := setupRouter(t)
	s.token = ""

	w := s.do(http.MethodPost, "/v1/terminals/register", map[string]string{"terminal_id": "gate-7"})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	claims, err := auth.Parse(resp.AccessToken, testTokens.SigningKey, testTokens.Issuer)
	require.NoError(t, err)
	assert.Equal(t, "gate-7", claims.Subject)

	w = s.do(http.MethodPost, "/v1/terminals/register", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostScan(t *testing.T) {
	granted := gate.Decision{
		Status:    attendance.Granted,
		Reason:    gate.ReasonGranted,
		Message:   "Entry granted: Dr. Rao, CSE",
		Identity:  &directory.Identity{ID: "S001", Name: "Dr. Rao", Department: "CSE", Role: directory.RoleStaff},
		Direction: attendance.In,
	}

	testCases := []struct {
		name     string
		body     any
		decision gate.Decision
		err      error
		want     int
	}{
		{name: "granted", body: map[string]any{"descriptor": []float32{0.1, 0.2}}, decision: granted, want: http.StatusOK},
		{name: "missing descriptor", body: map[string]any{}, want: http.StatusBadRequest},
		{name: "invalid descriptor", body: map[string]any{"descriptor": []float32{0.1}}, err: fmt.Errorf("%w: got 1 values", directory.ErrInvalidDescriptor), want: http.StatusUnprocessableEntity},
		{name: "persistence failure", body: map[string]any{"descriptor": []float32{0.1}}, err: fmt.Errorf("%w: disk full", attendance.ErrPersistence), want: http.StatusInternalServerError},
		{name: "cancelled", body: map[string]any{"descriptor": []float32{0.1}}, err: context.Canceled, want: http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := setupRouter(t)
			s.decider.decision = tc.decision
			s.decider.err = tc.err

			w := s.do(http.MethodPost, "/v1/scans", tc.body)
			assert.Equal(t, tc.want, w.Code)
			if tc.want == http.StatusOK {
				assert.Equal(t, "gate-1", s.decider.last.TerminalID)
				var got map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
				assert.Equal(t, "granted", got["status"])
				assert.Equal(t, "in", got["direction"])
			}
		})
	}
}

func TestPostScan_Unauthorized(t *testing.T) {
	s := setupRouter(t)
	s.token = ""
	w := s.do(http.MethodPost, "/v1/scans", map[string]any{"descriptor": []float32{0.1}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPostCapture(t *testing.T) {
	s := setupRouter(t)

	w := s.do(http.MethodPost, "/v1/scans/capture", map[string]string{"image_url": "https://cdn.example/cap.jpg"})
	require.Equal(t, http.StatusAccepted, w.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	messages, err := s.scans.Consume(ctx)
	require.NoError(t, err)

	msg := <-messages
	assert.Equal(t, queue.TypeScan, msg.Type)
	var job queue.ScanJob
	require.NoError(t, msg.Decode(&job))
	assert.Equal(t, "gate-1", job.TerminalID)
	assert.Equal(t, "https://cdn.example/cap.jpg", job.ImageURL)
}

func TestReports(t *testing.T) {
	s := setupRouter(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	rec := attendance.Record{PersonID: "S001", Role: directory.RoleStaff, Day: "2026-03-02", InAt: &at, Status: attendance.StatusIn}
	require.NoError(t, s.store.Apply(ctx, attendance.Transition{
		Record: &rec,
		Entry:  attendance.AccessLogEntry{ID: "e1", PersonID: "S001", Direction: attendance.In, Status: attendance.Granted, Day: "2026-03-02", Timestamp: at},
	}))

	testCases := []struct {
		name string
		path string
		want int
		key  string
	}{
		{name: "access logs", path: "/v1/access-logs?date=2026-03-02", want: http.StatusOK, key: "entries"},
		{name: "access logs bad date", path: "/v1/access-logs?date=March", want: http.StatusBadRequest},
		{name: "access logs bad status", path: "/v1/access-logs?status=maybe", want: http.StatusBadRequest},
		{name: "attendance", path: "/v1/attendance?date=2026-03-02", want: http.StatusOK, key: "records"},
		{name: "summary", path: "/v1/attendance/summary?date=2026-03-02", want: http.StatusOK, key: "entries"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(http.MethodGet, tc.path, nil)
			assert.Equal(t, tc.want, w.Code)
			if tc.key != "" {
				var got map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
				assert.Contains(t, got, tc.key)
			}
		})
	}

	w := s.do(http.MethodGet, "/v1/attendance/summary?date=2026-03-02", nil)
	var sum attendance.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, 1, sum.Entries)
	assert.Equal(t, 1, sum.Inside)
}

func TestRefreshDirectoryAndHealth(t *testing.T) {
	s := setupRouter(t)

	w := s.do(http.MethodPost, "/v1/directory/refresh", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, s.dir.calls)

	w = s.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","db":true}`, w.Body.String())
}

func (s *testServer) register(t *testing.T, terminalID string) (access, refresh string) {
	t.Helper()
	saved := s.token
	s.token = ""
	defer func() { s.token = saved }()

	w := s.do(http.MethodPost, "/v1/terminals/register", map[string]string{"terminal_id": terminalID})
	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.AccessToken, resp.RefreshToken
}

func TestRefreshTerminal(t *testing.T) {
	s := setupRouter(t)
	access, refresh := s.register(t, "gate-7")
	s.token = ""

	w := s.do(http.MethodPost, "/v1/terminals/refresh", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, w.Code)
	var rotated struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rotated))
	assert.NotEqual(t, refresh, rotated.RefreshToken)
	claims, err := auth.Parse(rotated.AccessToken, testTokens.SigningKey, testTokens.Issuer)
	require.NoError(t, err)
	assert.Equal(t, "gate-7", claims.Subject)

	testCases := []struct {
		name  string
		token string
		want  int
	}{
		{name: "reused refresh token", token: refresh, want: http.StatusUnauthorized},
		{name: "access token", token: access, want: http.StatusUnauthorized},
		{name: "garbage", token: "not-a-jwt", want: http.StatusUnauthorized},
		{name: "missing", token: "", want: http.StatusBadRequest},
		{name: "rotated refresh token", token: rotated.RefreshToken, want: http.StatusOK},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/v1/terminals/refresh", map[string]string{"refresh_token": tc.token})
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

type failingTokens struct {
	*attendance.Memory
}

func (failingTokens) SaveRefreshToken(context.Context, string, string, time.Time) error {
	return errors.New("token table unavailable")
}

func TestRegisterTerminal_TokenStoreFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mem := attendance.NewMemory()
	svc := attendance.NewService(mem, failingTokens{mem}, time.UTC)
	router := NewRouter(New(&fakeDecider{}, svc, nil, nil, testTokens, nil), RouterOptions{})

	body, _ := json.Marshal(map[string]string{"terminal_id": "gate-9"})
	req, _ := http.NewRequest(http.MethodPost, "/v1/terminals/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "refresh_token")
}
