package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ProposalCreated("solo")
	m.ProposalCreated("solo")
	m.Unmatched("solo_spread", 4)
	m.Completion(true, 29)
	m.Completion(false, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.proposalsCreated.WithLabelValues("solo")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.unmatchedReasons.WithLabelValues("solo_spread")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions.WithLabelValues("false")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SweepFinished(12 * time.Millisecond)
	m.Vote("scheduling")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "match_lifecycle_sweep_duration_ms_count 1"))
	assert.True(t, strings.Contains(body, `match_lifecycle_votes_total{outcome="scheduling"} 1`))
}
