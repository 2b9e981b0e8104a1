package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sifan077/LinkShield/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShieldMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewShieldMetrics(reg)

	m.Verdict("bot", true)
	m.Verdict("bot", true)
	m.Verdict("unknown", false)
	m.Cloaked()
	m.Redirect("replace")
	m.RecordFailure()
	m.SetActiveSessions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.verdicts.WithLabelValues("bot", "ultra")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verdicts.WithLabelValues("unknown", "shield")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cloaked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.redirects.WithLabelValues("replace")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recordFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeSessions))
}

func TestShieldMetrics_NilIsNoop(t *testing.T) {
	var m *ShieldMetrics
	assert.NotPanics(t, func() {
		m.Verdict("bot", false)
		m.Cloaked()
		m.Redirect("href")
		m.DecodeFailure()
		m.RecordPublished()
		m.RecordFailure()
		m.SetActiveSessions(1)
	})
}

func TestNewServer_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewShieldMetrics(reg).Cloaked()

	srv := NewServer(config.PrometheusConfig{}, reg)
	assert.Equal(t, ":9090", srv.Addr)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "shield_cloaked_total 1")
}
