package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audience/internal/core/tenant"
	"audience/internal/domain/importer"
)

func TestMetrics_Evaluation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveEvaluation("segment", 100, 7, 3*time.Millisecond)
	m.ObserveEvaluation("segment", 50, 3, time.Millisecond)

	assert.Equal(t, 150.0, testutil.ToFloat64(m.evalScanned.WithLabelValues("segment")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.evalMatched.WithLabelValues("segment")))
}

func TestMetrics_ImportAndRefresh(t *testing.T) {
	m := New(prometheus.NewRegistry())

	require.NoError(t, m.ImportHook(context.Background(), &importer.Result{Inserted: 3, Updated: 2, Skipped: 1}))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.importRows.WithLabelValues("inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.importRows.WithLabelValues("skipped")))

	m.ObserveRefresh(time.Second, nil)
	m.ObserveRefresh(time.Second, errors.New("x"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshRuns.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshRuns.WithLabelValues("error")))
}

func TestMetrics_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/segments/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/segments/1", "/segments/2", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/segments/:id", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")))
}

type staticStats tenant.ManagerStats

func (s staticStats) Stats() tenant.ManagerStats { return tenant.ManagerStats(s) }

func TestRegisterPoolStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterPoolStats(reg, staticStats{TotalPools: 2, TotalConns: 9, IdleConns: 5, AcquiredConns: 4})

	n, err := testutil.GatherAndCount(reg, "audience_tenant_pools", "audience_tenant_conns_idle")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		values[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
	}
	assert.Equal(t, 2.0, values["audience_tenant_pools"])
	assert.Equal(t, 4.0, values["audience_tenant_conns_acquired"])
}
