package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCall(t *testing.T) {
	before := testutil.ToFloat64(externalCalls.WithLabelValues("jina", "search", OutcomeError))
	RecordCall("jina", "search", OutcomeError)
	RecordCall("jina", "search", OutcomeError)
	after := testutil.ToFloat64(externalCalls.WithLabelValues("jina", "search", OutcomeError))

	assert.InDelta(t, 2, after-before, 0.0001)
}

func TestRecordDedupDropped_IgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(dedupDropped.WithLabelValues("url"))
	RecordDedupDropped("url", 0)
	RecordDedupDropped("url", 3)
	after := testutil.ToFloat64(dedupDropped.WithLabelValues("url"))

	assert.InDelta(t, 3, after-before, 0.0001)
}

func TestRecordCacheHit(t *testing.T) {
	before := testutil.ToFloat64(cacheHits.WithLabelValues("scrape"))
	RecordCacheHit("scrape")
	assert.InDelta(t, 1, testutil.ToFloat64(cacheHits.WithLabelValues("scrape"))-before, 0.0001)
}

func TestWriteTextfile(t *testing.T) {
	ObserveStage("collect_articles", "complete", 1500*time.Millisecond)

	path := filepath.Join(t.TempDir(), "research.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "topic_research_pipeline_stage_duration_seconds")
	assert.Contains(t, string(data), `stage="collect_articles"`)
}

func TestWriteTextfile_BadPath(t *testing.T) {
	err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom"))
	require.Error(t, err)
}
