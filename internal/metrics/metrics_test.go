package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mymmsc/reactor"
	"github.com/mymmsc/reactor/internal/config"
)

func TestMetrics_Disabled(t *testing.T) {
	m := NewMetrics(&config.MetricsConfig{Enabled: false})
	assert.False(t, m.IsEnabled)

	m.Polled(reactor.BackendEpoll, 3, time.Millisecond)
	m.Dispatched(reactor.Timer)
	m.Grown(4, 6)
	m.SetCapacity(8)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Observer(t *testing.T) {
	m := NewMetrics(&config.MetricsConfig{Enabled: true})

	m.SetCapacity(4)
	m.Polled(reactor.BackendSelect, 2, 3*time.Millisecond)
	m.Polled(reactor.BackendSelect, 0, time.Millisecond)
	m.Dispatched(reactor.Read)
	m.Dispatched(reactor.Read | reactor.Write)
	m.Dispatched(reactor.Timer)
	m.Grown(4, 6)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PollTotal.WithLabelValues("select")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReadyTotal.WithLabelValues("select")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CallbackTotal.WithLabelValues("io")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallbackTotal.WithLabelValues("timer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GrowTotal))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.Capacity))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PollLatency))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(&config.MetricsConfig{Enabled: true})
	m.Dispatched(reactor.Timer)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `reactor_callbacks_total{kind="timer"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetrics_MetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(&config.MetricsConfig{Enabled: true})
	m.Grown(2, 3)
	r := gin.New()
	m.MetricsMiddleware(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reactor_capacity 3")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
