package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hinfinity/hrdesk/internal/observability"
	"github.com/hinfinity/hrdesk/internal/rbac"
	"github.com/hinfinity/hrdesk/jobs"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 2, cfg.EscalationMaxLevel)
	require.Equal(t, "*/15 * * * *", cfg.EscalationSweepCron)
	require.Equal(t, 4, cfg.SweepConcurrency)
	require.Equal(t, 30*time.Second, cfg.EscalationLockTTL)
	require.Empty(t, cfg.EligibilityCatalog)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigOverridesAndValidation(t *testing.T) {
	t.Setenv("ESCALATION_MAX_LEVEL", "3")
	t.Setenv("ESCALATION_SWEEP_CRON", "*/5 * * * *")
	t.Setenv("APP_ENV", "production")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.EscalationMaxLevel)
	require.True(t, cfg.IsProduction())

	t.Setenv("ESCALATION_SWEEP_CRON", "every fifteen minutes")
	_, err = LoadConfig()
	require.Error(t, err)

	t.Setenv("ESCALATION_SWEEP_CRON", "*/15 * * * *")
	t.Setenv("ESCALATION_MAX_LEVEL", "0")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestInTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())
	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	require.False(t, InTestMode())
}

func TestLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{LogFormat: "json", AppEnv: "staging"}, &buf).Info("hello")
	require.Contains(t, buf.String(), `"msg":"hello"`)
	require.Contains(t, buf.String(), `"env":"staging"`)

	buf.Reset()
	newLogger(nil, &buf).Info("plain")
	require.Contains(t, buf.String(), "msg=plain")
}

type stubDirectory map[uuid.UUID]rbac.Principal

func (d stubDirectory) FindPrincipal(ctx context.Context, id uuid.UUID) (rbac.Principal, error) {
	p, ok := d[id]
	if !ok {
		return rbac.Principal{}, rbac.ErrPrincipalNotFound
	}
	return p, nil
}

func TestRouterWiresHealthMetricsAndIdentity(t *testing.T) {
	admin := rbac.Principal{ID: uuid.New(), Role: rbac.RoleAdmin, Active: true}
	staff := rbac.Principal{ID: uuid.New(), Role: rbac.RoleEmployee, Active: true}
	dir := stubDirectory{admin.ID: admin, staff.ID: staff}
	ready := errors.New("postgres down")
	router := NewRouter(RouterParams{
		Logger:         newLogger(nil, &bytes.Buffer{}),
		Config:         &Config{AppRequestTimeout: time.Second, RateLimitPerMin: 1000},
		RBACMiddleware: rbac.Middleware{Directory: dir},
		JobHandler:     jobs.NewHandler(nil, nil),
		Metrics:        observability.NewMetrics(),
		Ready:          func(*http.Request) error { return ready },
	})

	call := func(path string, principal uuid.UUID) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if principal != uuid.Nil {
			req.Header.Set(rbac.PrincipalHeader, principal.String())
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := call("/healthz", uuid.Nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	require.Equal(t, http.StatusServiceUnavailable, call("/readyz", uuid.Nil).Code)
	ready = nil
	require.Equal(t, http.StatusOK, call("/readyz", uuid.Nil).Code)

	require.Equal(t, http.StatusUnauthorized, call("/api/jobs/health", uuid.Nil).Code)
	require.Equal(t, http.StatusUnauthorized, call("/api/jobs/health", uuid.New()).Code)
	require.Equal(t, http.StatusForbidden, call("/api/jobs/health", staff.ID).Code)
	require.Equal(t, http.StatusOK, call("/api/jobs/health", admin.ID).Code)

	rr = call("/metrics", uuid.Nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `hrdesk_http_requests_total{code="200",route="/healthz"}`)
}
