package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patientcheck/patientcheck/internal/auth"
	"github.com/patientcheck/patientcheck/internal/cache"
	"github.com/patientcheck/patientcheck/internal/handler"
	"github.com/patientcheck/patientcheck/internal/metrics"
	"github.com/patientcheck/patientcheck/internal/model"
	"github.com/patientcheck/patientcheck/internal/service"
	scenario "github.com/patientcheck/patientcheck/internal/testutil"
)

const testAPIKey = "PYTESTKEY0000000000"

// memoryStore is an in-memory record store seeded with the shared scenarios.
type memoryStore struct {
	mu       sync.Mutex
	numbers  map[model.ExternalNumber][]string
	births   map[string]model.Date
	members  map[string]bool
	acquired int
	released int
	failWith error
}

func newMemoryStore(t *testing.T) *memoryStore {
	t.Helper()

	s := &memoryStore{
		numbers: make(map[model.ExternalNumber][]string),
		births:  make(map[string]model.Date),
		members: make(map[string]bool),
	}
	add := func(number, numberType, pid, birth string, member bool) {
		d, err := model.ParseDate(birth)
		require.NoError(t, err)
		key := model.ExternalNumber{Value: number, Type: numberType}
		s.numbers[key] = append(s.numbers[key], pid)
		s.births[pid] = d
		s.members[pid] = member
	}
	add(scenario.MemberNumber, scenario.NationalIDType, scenario.MemberPID, scenario.MemberBirthday, true)
	add(scenario.NonMemberNumber, scenario.NationalIDType, scenario.NonMemberPID, scenario.NonMemberBirthday, false)
	add(scenario.EndedMemberNumber, scenario.NationalIDType, scenario.EndedMemberPID, scenario.EndedMemberBirthday, false)
	add(scenario.SharedNumber, scenario.NationalIDType, scenario.SharedPIDA, scenario.SharedBirthdayA, false)
	add(scenario.SharedNumber, scenario.NationalIDType, scenario.SharedPIDB, scenario.SharedBirthdayB, true)
	add(scenario.HospitalNumber, scenario.HospitalIDType, scenario.HospitalOnlyPID, scenario.HospitalBirthday, true)
	return s
}

func (s *memoryStore) Acquire(context.Context) (service.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.acquired++
	return &memorySession{store: s}, nil
}

func (s *memoryStore) counts() (acquired, released int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired, s.released
}

type memorySession struct {
	store *memoryStore
}

func (m *memorySession) ResolveNumber(_ context.Context, number model.ExternalNumber) ([]string, error) {
	return m.store.numbers[number], nil
}

func (m *memorySession) HasActiveMembership(_ context.Context, pids []string, program string) (bool, error) {
	if program != scenario.ProgramName {
		return false, nil
	}
	for _, pid := range pids {
		if m.store.members[pid] {
			return true, nil
		}
	}
	return false, nil
}

func (m *memorySession) BirthDates(_ context.Context, pids []string) ([]model.Date, error) {
	dates := make([]model.Date, 0, len(pids))
	for _, pid := range pids {
		dates = append(dates, m.store.births[pid])
	}
	return dates, nil
}

func (m *memorySession) Release() {
	m.store.mu.Lock()
	m.store.released++
	m.store.mu.Unlock()
}

type testEnv struct {
	router  http.Handler
	store   *memoryStore
	metrics *metrics.InMemoryRecorder
}

type envOption func(*Deps)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	store := newMemoryStore(t)
	rec := metrics.NewInMemory()

	svc, err := service.NewCheckService(store, service.CheckConfig{
		ProgramName: scenario.ProgramName,
		NumberType:  scenario.NationalIDType,
		DemoEnabled: true,
	}, service.WithMetrics(rec))
	require.NoError(t, err)

	validator, err := auth.NewTokenSet([]string{testAPIKey})
	require.NoError(t, err)

	deps := Deps{
		Version:   "test",
		Checker:   svc,
		Validator: validator,
		Metrics:   rec,
		Database:  pingerFunc(func(context.Context) error { return nil }),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &testEnv{router: NewRouter(deps), store: store, metrics: rec}
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func checkBody(number, dob string) string {
	b, _ := json.Marshal(map[string]string{"externalNumber": number, "dateOfBirth": dob})
	return string(b)
}

func decodeCheck(t *testing.T, rec *httptest.ResponseRecorder) map[string]bool {
	t.Helper()
	var out map[string]bool
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestRouter_Scenarios(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		number     string
		dob        string
		wantNumber bool
		wantDate   bool
	}{
		{"A member with matching date", scenario.MemberNumber, scenario.MemberBirthday, true, true},
		{"A member with other date", scenario.MemberNumber, "2000-01-02", true, false},
		{"B non-member with matching date", scenario.NonMemberNumber, scenario.NonMemberBirthday, false, false},
		{"C unknown number", scenario.UnknownNumber, "2000-01-01", false, false},
		{"ended membership", scenario.EndedMemberNumber, scenario.EndedMemberBirthday, false, false},
		{"shared number, member record date", scenario.SharedNumber, scenario.SharedBirthdayB, true, true},
		{"shared number, non-member record date", scenario.SharedNumber, scenario.SharedBirthdayA, true, true},
		{"hospital number type is not resolved", scenario.HospitalNumber, scenario.HospitalBirthday, false, false},
		{"padded member number is not resolved", " " + scenario.MemberNumber + " ", scenario.MemberBirthday, false, false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)

			rec := env.do(t, http.MethodPost, "/api/v1/checks", testAPIKey, checkBody(tc.number, tc.dob))

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get(handler.CheckIDHeader))
			got := decodeCheck(t, rec)
			assert.Equal(t, map[string]bool{"numberMatched": tc.wantNumber, "dateMatched": tc.wantDate}, got)

			acquired, released := env.store.counts()
			assert.Equal(t, 1, acquired)
			assert.Equal(t, acquired, released, "every acquired session must be released")
		})
	}
}

func TestRouter_MissingDateIsValidationFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/checks", testAPIKey, `{"externalNumber":"8888888888"}`)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"VALIDATION_FAILED"`)
	acquired, _ := env.store.counts()
	assert.Zero(t, acquired)
}

func TestRouter_AuthBeforeStoreAndValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		token string
		body  string
	}{
		{"no token", "", checkBody(scenario.MemberNumber, scenario.MemberBirthday)},
		{"bad token", "BADTOKEN", checkBody(scenario.MemberNumber, scenario.MemberBirthday)},
		{"no token and invalid body", "", `not json`},
		{"bad token and missing date", "BADTOKEN", `{"externalNumber":"8888888888"}`},
	}

	var bodies []string
	for _, tc := range testCases {
		env := newTestEnv(t)
		for _, path := range []string{"/api/v1/checks", "/radar_check/"} {
			rec := env.do(t, http.MethodPost, path, tc.token, tc.body)

			assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.name, path)
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			assert.Empty(t, rec.Header().Get(handler.CheckIDHeader))
			bodies = append(bodies, rec.Body.String())
		}
		acquired, _ := env.store.counts()
		assert.Zero(t, acquired, tc.name)
	}

	for _, b := range bodies[1:] {
		assert.Equal(t, bodies[0], b)
	}
}

func TestRouter_Idempotent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	var first map[string]bool
	ids := make(map[string]bool)
	for i := 0; i < 5; i++ {
		rec := env.do(t, http.MethodPost, "/api/v1/checks", testAPIKey, checkBody(scenario.MemberNumber, "1999-01-01"))
		require.Equal(t, http.StatusOK, rec.Code)
		ids[rec.Header().Get(handler.CheckIDHeader)] = true

		got := decodeCheck(t, rec)
		if first == nil {
			first = got
		}
		assert.Equal(t, first, got)
	}
	assert.Len(t, ids, 5, "each check gets its own ID")
}

func TestRouter_LegacyRoute(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/radar_check/", testAPIKey,
		`{"nhsNumber":"`+scenario.MemberNumber+`","dateOfBirth":"`+scenario.MemberBirthday+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"nhsNumber":true,"dateOfBirth":true}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/radar_check/", testAPIKey, `{"dateOfBirth":"2000-01-01"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"nhsNumber"`)
}

func TestRouter_DemoPatients(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/checks", testAPIKey, checkBody("9686368973", "1968-02-12"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"numberMatched": true, "dateMatched": true}, decodeCheck(t, rec))

	rec = env.do(t, http.MethodPost, "/api/v1/checks", testAPIKey, checkBody("9658218881", "1921-08-08"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"numberMatched": true, "dateMatched": false}, decodeCheck(t, rec))

	acquired, _ := env.store.counts()
	assert.Zero(t, acquired, "demo answers never touch the store")
	assert.Equal(t, uint64(2), env.metrics.Snapshot().ChecksFromDemo)
}

func TestRouter_StoreUnavailable(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.store.failWith = errors.New("pool exhausted")

	rec := env.do(t, http.MethodPost, "/api/v1/checks", testAPIKey, checkBody(scenario.MemberNumber, scenario.MemberBirthday))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "STORE_UNAVAILABLE")
	assert.NotContains(t, rec.Body.String(), "numberMatched")
	assert.NotContains(t, rec.Body.String(), "pool exhausted")
	assert.Equal(t, uint64(1), env.metrics.Snapshot().CheckFailures[metrics.StageAcquire])
}

func TestRouter_BodyTooLarge(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(d *Deps) { d.MaxRequestBodySize = 32 })

	rec := env.do(t, http.MethodPost, "/api/v1/checks", testAPIKey, checkBody(scenario.MemberNumber, scenario.MemberBirthday))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "PAYLOAD_TOO_LARGE")
}

type countingLimiter struct {
	mu      sync.Mutex
	allowed int
}

func (l *countingLimiter) CheckCredentialRateLimit(_ context.Context, _ string, perMinute, _ int) (*cache.RateLimitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allowed == 0 {
		return &cache.RateLimitResult{Allowed: false, RetryAfter: time.Second, ResetAt: time.Now().Add(time.Second)}, nil
	}
	l.allowed--
	return &cache.RateLimitResult{Allowed: true, Remaining: int64(l.allowed), ResetAt: time.Now().Add(time.Minute)}, nil
}

func TestRouter_RateLimited(t *testing.T) {
	t.Parallel()
	limiter := &countingLimiter{allowed: 1}
	env := newTestEnv(t, func(d *Deps) {
		d.Limiter = limiter
		d.RateLimitPerMinute = 1
		d.RateLimitBurst = 1
	})

	rec := env.do(t, http.MethodPost, "/api/v1/checks", testAPIKey, checkBody(scenario.MemberNumber, scenario.MemberBirthday))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/checks", testAPIKey, checkBody(scenario.MemberNumber, scenario.MemberBirthday))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	acquired, _ := env.store.counts()
	assert.Equal(t, 1, acquired)
}

func TestRouter_Ambient(t *testing.T) {
	t.Parallel()
	prom := metrics.NewPrometheus()
	env := newTestEnv(t, func(d *Deps) {
		d.Metrics = prom
		d.MetricsHandler = prom.Handler()
	})

	rec := env.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = env.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"service":"patientcheck"`)

	rec = env.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")

	rec = env.do(t, http.MethodGet, "/api/v1/checks", testAPIKey, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	env.do(t, http.MethodPost, "/api/v1/checks", "BADTOKEN", checkBody(scenario.MemberNumber, scenario.MemberBirthday))
	rec = env.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `patientcheck_auth_failures_total{reason="invalid_key"} 1`)
	count, err := testutil.GatherAndCount(prom.Registry(), "patientcheck_auth_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRouter_NoMetricsRouteWhenDisabled(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
