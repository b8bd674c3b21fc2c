package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-kit/log"
	"github.com/gorilla/mux"
	reqcontext "github.com/prajwalbharadwajbm/mailbeacon/internal/context"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/metrics"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/repository"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, models.WorkToken) error { return nil }
func (nopDispatcher) Signal(context.Context, models.ControlSignal) error { return nil }

func newService() service.Service {
	repo := repository.NewSeededMemoryRepository()
	return service.NewCampaignService(repo, repo, nopDispatcher{}, log.NewNopLogger())
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	svc := NewLoggingMiddleware(log.NewLogfmtLogger(&buf))(newService())
	ctx := reqcontext.NewRequestContext(context.Background(), "req-1", "", "")

	c, err := svc.CreateCampaign(ctx, models.CreateCampaignRequest{Name: "n", Subject: "s", Lists: []int{1}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "method=CreateCampaign")
	assert.Contains(t, buf.String(), "request_id=req-1")
	assert.Contains(t, buf.String(), "success=true")
	assert.Contains(t, buf.String(), "level=info")

	buf.Reset()
	_, err = svc.FinishCampaign(ctx, c.ID)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "method=FinishCampaign")
	assert.Contains(t, buf.String(), "success=false")
	assert.Contains(t, buf.String(), "level=warn")

	// idle scheduler ticks stay quiet
	buf.Reset()
	_, err = svc.StartDueCampaigns(ctx)
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestServiceMetricsMiddleware(t *testing.T) {
	m := metrics.NewPrometheusMetrics(prometheus.NewRegistry())
	svc := NewServiceMetricsMiddleware(m)(newService())
	ctx := context.Background()

	c, err := svc.CreateCampaign(ctx, models.CreateCampaignRequest{
		Name: "n", Subject: "s", Lists: []int{1},
		Body: "<p>{{ .Subscriber.Attribs.plan }}</p>",
	})
	require.NoError(t, err)

	_, err = svc.StartCampaign(ctx, c.ID)
	require.NoError(t, err)
	_, err = svc.StartCampaign(ctx, c.ID)
	require.Error(t, err)
	_, err = svc.PauseCampaign(ctx, c.ID)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatusTransitions.WithLabelValues("start", "running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatusTransitions.WithLabelValues("pause", "paused")))

	_, err = svc.PreviewCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PreviewWarnings))
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.NewPrometheusMetrics(prometheus.NewRegistry())
	r := mux.NewRouter()
	r.Use(NewMetricsMiddleware(m).Middleware)
	r.HandleFunc("/api/campaigns/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/api/campaigns/1", "/api/campaigns/2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/campaigns/{id}", "404")))
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := NewRequestIDMiddleware().Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = reqcontext.GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-id", seen)
	assert.Equal(t, "upstream-id", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "upstream-id", seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}
