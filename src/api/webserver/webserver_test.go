package webserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/investigations"
	"github.com/stake-plus/osintops/src/shared/osint"
	"github.com/stake-plus/osintops/src/tracing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeService struct {
	submitted []investigations.Request
	submitErr error
	statusErr error
	reportErr error
	cancelErr error
	tracesErr error
	report    osint.Report
	events    []tracing.Event
}

func (f *fakeService) Submit(_ context.Context, req investigations.Request) (investigations.Ack, error) {
	if f.submitErr != nil {
		return investigations.Ack{}, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return investigations.Ack{InvestigationID: "inv-1", Status: osint.InvestigationRunning, Adapters: []string{"amass"}}, nil
}

func (f *fakeService) Status(_ context.Context, id string) (investigations.StatusView, error) {
	if f.statusErr != nil {
		return investigations.StatusView{}, f.statusErr
	}
	return investigations.StatusView{Investigation: osint.Investigation{ID: id, Status: osint.InvestigationRunning}}, nil
}

func (f *fakeService) Cancel(context.Context, string) error { return f.cancelErr }

func (f *fakeService) Report(context.Context, string) (osint.Report, error) {
	return f.report, f.reportErr
}

func (f *fakeService) Traces(_ context.Context, _ string, after uint64) ([]tracing.Event, error) {
	if f.tracesErr != nil {
		return nil, f.tracesErr
	}
	var out []tracing.Event
	for _, ev := range f.events {
		if ev.Seq > after {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeService) List(context.Context, int) ([]osint.Investigation, error) {
	return []osint.Investigation{{ID: "inv-1"}}, nil
}

func (f *fakeService) Purge(context.Context, string) error { return nil }

func (f *fakeService) Agents() []agentcore.Descriptor {
	return []agentcore.Descriptor{{Name: "amass", Category: osint.CategorySubdomainEnum, Available: true}}
}

func newTestServer(t *testing.T, svc Service, rate int) *Server {
	t.Helper()
	srv := New(Config{RateLimitPerMinute: rate}, svc, nil)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCreateInvestigation(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc, 10)

	rec := do(t, srv, http.MethodPost, "/v1/investigations",
		`{"target":{"type":"host","value":"example.com"},"scope":["subdomain_enum"],"deadlineSeconds":120}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var ack investigations.Ack
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, "inv-1", ack.InvestigationID)

	require.Len(t, svc.submitted, 1)
	req := svc.submitted[0]
	assert.Equal(t, osint.TargetDomain, req.Target.Type)
	assert.Equal(t, 2*time.Minute, req.Deadline)
	assert.Equal(t, []string{"subdomain_enum"}, req.Scope)
	assert.True(t, strings.HasPrefix(req.RequestedBy, "api:"))
}

func TestCreateValidation(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, 10)

	rec := do(t, srv, http.MethodPost, "/v1/investigations", `{"target":{"type":"domain"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/v1/investigations", `{"target":{"type":"fax","value":"1"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/v1/investigations", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: phone", osint.ErrUnsupportedTarget), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: x", osint.ErrInvalidTarget), http.StatusBadRequest},
		{fmt.Errorf("%w: x", investigations.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("%w: x", osint.ErrDuplicateInvestigation), http.StatusConflict},
		{fmt.Errorf("%w: x", osint.ErrStoreUnavailable), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		srv := newTestServer(t, &fakeService{submitErr: tc.err}, 10)
		rec := do(t, srv, http.MethodPost, "/v1/investigations", `{"target":{"type":"domain","value":"example.com"}}`)
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
		assert.Contains(t, rec.Body.String(), `"err"`)
	}
}

func TestReportEndpoint(t *testing.T) {
	svc := &fakeService{reportErr: fmt.Errorf("%w: inv-1", osint.ErrInvestigationNotTerminal)}
	srv := newTestServer(t, svc, 10)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/v1/investigations/inv-1/report", "").Code)

	svc.reportErr = nil
	svc.report = osint.Report{
		InvestigationID: "inv-1",
		Target:          osint.Target{Type: osint.TargetDomain, Value: "example.com"},
		Status:          osint.InvestigationCompleted,
	}
	rec := do(t, srv, http.MethodGet, "/v1/investigations/inv-1/report?format=markdown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, rec.Body.String(), "## OSINT report: domain:example.com")

	rec = do(t, srv, http.MethodGet, "/v1/investigations/inv-1/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"investigationId":"inv-1"`)
}

func TestTracesEndpoint(t *testing.T) {
	svc := &fakeService{events: []tracing.Event{
		{InvestigationID: "inv-1", Seq: 1, Kind: tracing.EventInvestigationCreated},
		{InvestigationID: "inv-1", Seq: 2, Kind: tracing.EventInvestigationStarted},
	}}
	srv := newTestServer(t, svc, 10)

	rec := do(t, srv, http.MethodGet, "/v1/investigations/inv-1/traces?after=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Events []tracing.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, uint64(2), body.Events[0].Seq)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/v1/investigations/inv-1/traces?after=-1", "").Code)

	rec = do(t, srv, http.MethodGet, "/v1/investigations/other/traces?after=5", "")
	assert.JSONEq(t, `{"events":[]}`, rec.Body.String())

	svc.tracesErr = osint.ErrStoreUnavailable
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodGet, "/v1/investigations/inv-1/traces", "").Code)
}

func TestCancelAndStatus(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc, 10)

	assert.Equal(t, http.StatusAccepted, do(t, srv, http.MethodDelete, "/v1/investigations/inv-1", "").Code)
	svc.cancelErr = investigations.ErrAlreadyTerminal
	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodDelete, "/v1/investigations/inv-1", "").Code)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/v1/investigations/inv-1", "").Code)
	svc.statusErr = fmt.Errorf("%w: inv-9", osint.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/v1/investigations/inv-9", "").Code)

	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/v1/investigations/inv-1/data", "").Code)
}

func TestListingEndpoints(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, 10)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "").Code)

	rec := do(t, srv, http.MethodGet, "/v1/agents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"amass"`)

	rec = do(t, srv, http.MethodGet, "/v1/investigations?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"inv-1"`)
}

func TestSubmitRateLimited(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, 2)
	body := `{"target":{"type":"domain","value":"example.com"}}`
	assert.Equal(t, http.StatusAccepted, do(t, srv, http.MethodPost, "/v1/investigations", body).Code)
	assert.Equal(t, http.StatusAccepted, do(t, srv, http.MethodPost, "/v1/investigations", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, srv, http.MethodPost, "/v1/investigations", body).Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/v1/investigations/inv-1", "").Code)
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(61 * time.Second)
	rl.cleanup()
	assert.True(t, rl.Allow("a"))
}
