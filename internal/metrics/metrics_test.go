package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordAgentRun(t *testing.T) {
	before := testutil.ToFloat64(agentRunsTotal.WithLabelValues("devex", "success"))
	RecordAgentRun("devex", true, 2*time.Second)
	after := testutil.ToFloat64(agentRunsTotal.WithLabelValues("devex", "success"))
	assert.Equal(t, before+1, after)
}

func TestRecordLLMRequestNormalizesProvider(t *testing.T) {
	before := testutil.ToFloat64(llmRequestsTotal.WithLabelValues("unknown", "error"))
	RecordLLMRequest("some-new-vendor", false, time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(llmRequestsTotal.WithLabelValues("unknown", "error")))
}

func TestServiceUpGauge(t *testing.T) {
	SetServiceUp("grafana", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(serviceUp.WithLabelValues("grafana")))
	SetServiceUp("grafana", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(serviceUp.WithLabelValues("grafana")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordArtifact("compose")
	RecordToolCall("security", "run_trivy_scan", true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "idpforge_artifacts_written_total")
	assert.Contains(t, body, `idpforge_tool_calls_total{agent="security",status="success",tool="run_trivy_scan"}`)
}
