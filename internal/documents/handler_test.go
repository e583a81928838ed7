package documents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/hinfinity/hrdesk/internal/eligibility"
	"github.com/hinfinity/hrdesk/internal/rbac"
	"github.com/hinfinity/hrdesk/internal/shared"
)

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func newTestRouter(f *fixture, idem IdempotencyGuard) chi.Router {
	r := chi.NewRouter()
	NewHandler(nil, f.svc, idem).MountRoutes(r)
	return r
}

func do(t *testing.T, router http.Handler, actor *rbac.Principal, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	if actor != nil {
		req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), *actor))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerSubmitAndApprove(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f, nil)
	emp := employee("Putri")
	f.facts[emp.ID] = eligibility.Facts{TenureDays: 200}

	rr := do(t, router, &emp, http.MethodPost, "/documents", `{"document_type":"experience_letter","purpose":"visa"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, StatusAwaitingApproval, created.Status)
	require.Equal(t, "Experience Letter", created.TypeLabel)

	rr = do(t, router, &emp, http.MethodPost, "/documents/"+created.ID.String()+"/approve", "")
	require.Equal(t, http.StatusForbidden, rr.Code)

	manager := managerUser
	rr = do(t, router, &manager, http.MethodPost, "/documents/"+created.ID.String()+"/approve", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, router, &manager, http.MethodPost, "/documents/"+created.ID.String()+"/approve", "")
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, &emp, http.MethodGet, "/documents/"+created.ID.String()+"/history", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "request_approved")
}

func TestHandlerValidationAndEligibilityErrors(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f, nil)
	emp := employee("Rani")

	rr := do(t, router, nil, http.MethodGet, "/documents", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, router, &emp, http.MethodPost, "/documents", `{"document_type":"salary_slip"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, &emp, http.MethodPost, "/documents", `{"document_type":"salary_slip","purpose":"x","format":"odt"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, &emp, http.MethodPost, "/documents", `{"document_type":"offer_letter","purpose":"copy"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "Offer letter already issued")

	rr = do(t, router, &emp, http.MethodGet, "/documents/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, &emp, http.MethodPost, "/documents/eligibility", `{"document_type":"salary_slip"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var res eligibility.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.True(t, res.Eligible)
	require.Equal(t, "2 minutes", res.EstimatedTime)
}

func TestHandlerRejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f, nil)
	req := f.submitAwaiting(t, employee("Sari"))
	hr := hrUser

	rr := do(t, router, &hr, http.MethodPost, "/documents/"+req.ID.String()+"/reject", `{"reason":""}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, router, &hr, http.MethodPost, "/documents/"+req.ID.String()+"/reject", `{"reason":"incomplete"}`)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHandlerIdempotentSubmit(t *testing.T) {
	f := newFixture(t)
	idem := &memoryIdempotency{keys: map[string]bool{}}
	router := newTestRouter(f, idem)
	emp := employee("Tono")
	body := `{"document_type":"salary_slip","purpose":"loan"}`

	rr := do(t, router, &emp, http.MethodPost, "/documents", body, IdempotencyHeader, "abc")
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, router, &emp, http.MethodPost, "/documents", body, IdempotencyHeader, "abc")
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, &emp, http.MethodPost, "/documents", `{"document_type":"offer_letter","purpose":"copy"}`, IdempotencyHeader, "def")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.False(t, idem.keys["def"])
}

func TestHandlerListAndMetrics(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f, nil)
	emp := employee("Umar")
	f.submitAwaiting(t, emp)

	rr := do(t, router, &emp, http.MethodGet, "/documents?search=experience", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data  []View `json:"data"`
		Total int    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 1, body.Total)

	rr = do(t, router, &emp, http.MethodGet, "/documents/metrics", "")
	require.Equal(t, http.StatusForbidden, rr.Code)

	hr := hrUser
	rr = do(t, router, &hr, http.MethodGet, "/documents/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"pending_approvals":1`)
}
