package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/":                             "/",
		"/healthz":                      "/healthz",
		"/applications":                 "/applications",
		"/applications/":                "/applications",
		"/applications/app-1":           "/applications/:id",
		"/applications/app-1/status":    "/applications/:id/status",
		"/applications/app-1/tags":      "/applications/:id/tags",
		"/applications/app-1/history":   "/applications/:id/history",
		"/internal/applicants/u-1/apps": "/internal",
	}
	for raw, want := range cases {
		require.Equal(t, want, canonicalPath(raw), "path %q", raw)
	}
}

func TestInstrumentHandlerCountsRequests(t *testing.T) {
	counter := httpRequests.WithLabelValues("PATCH", "/applications/:id", "418")
	before := testutil.ToFloat64(counter)

	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPatch, "/applications/app-7", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, before+1, testutil.ToFloat64(counter))
	require.Zero(t, testutil.ToFloat64(httpInFlight), "in-flight gauge must return to zero")
}

func TestInstrumentHandlerSkipsMetricsEndpoint(t *testing.T) {
	counter := httpRequests.WithLabelValues("GET", "/metrics", "200")
	before := testutil.ToFloat64(counter)

	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, before, testutil.ToFloat64(counter), "scrapes must not count themselves")
}

func TestRecordCounters(t *testing.T) {
	opErr := lifecycleOperations.WithLabelValues("create", "error")
	opOK := lifecycleOperations.WithLabelValues("create", "success")
	beforeErr := testutil.ToFloat64(opErr)
	beforeOK := testutil.ToFloat64(opOK)

	RecordOperation("create", errors.New("boom"))
	RecordOperation("create", nil)

	require.Equal(t, beforeErr+1, testutil.ToFloat64(opErr))
	require.Equal(t, beforeOK+1, testutil.ToFloat64(opOK))

	cascade := cascadeDeletes.WithLabelValues("applicant", "error")
	before := testutil.ToFloat64(cascade)
	RecordCascadeDelete("applicant", errors.New("boom"))
	require.Equal(t, before+1, testutil.ToFloat64(cascade))

	remote := remoteCalls.WithLabelValues("tagging", "success")
	before = testutil.ToFloat64(remote)
	RecordRemoteCall("tagging", nil)
	require.Equal(t, before+1, testutil.ToFloat64(remote))
}
