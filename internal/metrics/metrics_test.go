package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.IntentSubmitted("http")
	m.IntentSubmitted("http")
	m.IntentSubmitted("kafka")
	m.BatchOutcome(OutcomeEmpty)
	m.BatchProcessed(150*time.Millisecond, 4, decimal.NewFromInt(800), decimal.RequireFromString("600.5"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.intentsSubmitted.WithLabelValues("http")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.intentsSubmitted.WithLabelValues("kafka")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batches.WithLabelValues(OutcomeEmpty)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batches.WithLabelValues(OutcomeProcessed)))
	assert.Equal(t, 800.0, testutil.ToFloat64(m.nettedAmount))
	assert.Equal(t, 600.5, testutil.ToFloat64(m.poolAmount))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.BatchOutcome(OutcomeFailed)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `anchor_batches_total{outcome="failed"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestInitPProf_Disabled(t *testing.T) {
	p, err := InitPProf(nil)
	assert.NoError(t, err)
	assert.Nil(t, p)

	p, err = InitPProf(&PProfConfig{Enabled: false})
	assert.NoError(t, err)
	assert.Nil(t, p)

	_, err = InitPProf(&PProfConfig{Enabled: true})
	assert.Error(t, err)
}
