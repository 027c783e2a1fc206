package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestRecordIndexerOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsCollectorWithRegistry("test", reg)

	m.RecordIndexerOperation("index", "completed", 250*time.Millisecond)
	m.RecordIndexedFiles(3)
	m.RecordIndexedChunks(12)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	found := map[string]*dto.MetricFamily{}
	for _, mf := range metricFamilies {
		found[mf.GetName()] = mf
	}

	require.Contains(t, found, "test_indexer_operations_total")
	require.Contains(t, found, "test_indexed_files_total")
	require.Contains(t, found, "test_indexed_chunks_total")
}

func TestRecordSearch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsCollectorWithRegistry("test", reg)

	m.RecordSearch("hybrid", "ok", 5*time.Millisecond, 7)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	var sawResults bool
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_search_results_count" {
			sawResults = true
		}
	}
	require.True(t, sawResults)
}
