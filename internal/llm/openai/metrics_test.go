package openai

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/joseph-ayodele/calendar-converter/internal/common"
	"github.com/joseph-ayodele/calendar-converter/internal/llm"
)

// requestCounts sums llm.requests data points by backend and outcome.
func requestCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "llm.requests" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "llm.requests is %T", m.Data)
			for _, dp := range sum.DataPoints {
				backend, _ := dp.Attributes.Value(attribute.Key("llm.backend"))
				outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
				out[backend.AsString()+"/"+outcome.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestCompleteRecordsRequestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	var n int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&n, 1) == 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"choices":[{"message":{"content":"{}"}}]}`)
	}, func(cfg *Config) { cfg.MeterProvider = mp })

	req := c.NewRequest(llm.BuildPrompt("Lunch Friday at noon"))
	_, err := c.Complete(context.Background(), req)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), req)
	require.Error(t, err)

	// Backend left empty on the request comes from the context tag.
	req.Backend = ""
	_, err = c.Complete(common.WithBackend(context.Background(), "remote"), req)
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{
		"local/ok":         1,
		"local/bad_status": 1,
		"remote/ok":        1,
	}, requestCounts(t, reader))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *clientMetrics
	assert.NotPanics(t, func() {
		m.recordRequest(context.Background(), "local", "m", outcomeOK, 0)
		m.recordProbe(context.Background(), "local", true)
	})
}
