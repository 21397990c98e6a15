package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.ObserveStepDuration("ResourceCompile", 150*time.Millisecond)
	pr.IncStepResult("ResourceCompile", ResultSuccess)
	pr.IncStepResult("LanguageCompile", ResultFailed)
	pr.ObserveBuildDuration("local", 2*time.Second)
	pr.IncBuildOutcome("local", OutcomeFailed)
	pr.SetBuildInProgress(true)
	pr.IncRemotePoll("discovery")
	pr.IncHTTPRetry("503")
	pr.IncHTTPRetry("503")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)

	require.InDelta(t, 1, metricValue(t, reg, "pkgbuilder_step_results_total", "LanguageCompile"), 0)
	require.InDelta(t, 2, metricValue(t, reg, "pkgbuilder_http_retries_total", "503"), 0)
	require.InDelta(t, 1, metricValue(t, reg, "pkgbuilder_build_in_progress", ""), 0)

	pr.SetBuildInProgress(false)
	require.InDelta(t, 0, metricValue(t, reg, "pkgbuilder_build_in_progress", ""), 0)
}

// metricValue returns the counter or gauge value of the first series of name
// carrying a label equal to labelValue (any series when labelValue is empty).
func metricValue(t *testing.T, g prom.Gatherer, name, labelValue string) float64 {
	t.Helper()
	mfs, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelValue != "" && !hasLabelValue(m, labelValue) {
				continue
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s{%s} not found", name, labelValue)
	return 0
}

func hasLabelValue(m *dto.Metric, v string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetValue() == v {
			return true
		}
	}
	return false
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	require.NotPanics(t, func() {
		pr.IncBuildOutcome("remote", OutcomeSuccess)
		pr.ObserveStepDuration("x", time.Second)
		pr.SetBuildInProgress(true)
	})
}

func TestHTTPHandlerServesMetrics(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncBuildOutcome("remote", OutcomeSuccess)

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), `pkgbuilder_build_outcomes_total{outcome="success",strategy="remote"} 1`))
}
