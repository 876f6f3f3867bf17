// Package monitoring summarizes recent run history and raises alerts when
// failure rate, spend or unanswered runs cross configured thresholds.
package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-research/internal/model"
	"github.com/sells-group/topic-research/internal/store"
)

// maxRuns bounds how many runs one snapshot reads.
const maxRuns = 10000

// Snapshot is a point-in-time view of run health within a lookback window.
type Snapshot struct {
	Total    int     `json:"total"`
	Complete int     `json:"complete"`
	Failed   int     `json:"failed"`
	Running  int     `json:"running"`
	FailRate float64 `json:"fail_rate"`

	// NoChoice counts complete runs that ended without a primary choice.
	NoChoice     int     `json:"no_choice"`
	NoChoiceRate float64 `json:"no_choice_rate"`

	CostUSD         float64 `json:"cost_usd"`
	AvgTokens       int     `json:"avg_tokens"`
	AvgLLMCalls     float64 `json:"avg_llm_calls"`
	AvgDurationSecs float64 `json:"avg_duration_secs"`

	Topics []TopicCount `json:"topics,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// TopicCount is the number of runs requested for one topic key.
type TopicCount struct {
	Key  string `json:"key"`
	Runs int    `json:"runs"`
}

// RunLister is the part of store.Store the collector needs.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector builds snapshots from run history.
type Collector struct {
	runs RunLister
}

// NewCollector creates a new snapshot collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs}
}

// Collect gathers a snapshot of the runs created within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := time.Now().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        maxRuns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.Total = len(runs)
	var totalTokens, totalCalls int
	var totalDur time.Duration
	topics := map[string]int{}

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.Complete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
			if r.Result == nil || r.Result.PrimaryChoice == "" {
				snap.NoChoice++
			}
		case model.RunStatusFailed:
			snap.Failed++
		case model.RunStatusRunning:
			snap.Running++
		}
		if r.Result != nil {
			snap.CostUSD += r.Result.Usage.Cost
			totalTokens += r.Result.Usage.InputTokens + r.Result.Usage.OutputTokens
			totalCalls += r.Result.Usage.Calls
		}
		if r.TopicKey != "" {
			topics[r.TopicKey]++
		}
	}

	if finished := snap.Complete + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	if snap.Complete > 0 {
		snap.NoChoiceRate = float64(snap.NoChoice) / float64(snap.Complete)
		snap.AvgDurationSecs = totalDur.Seconds() / float64(snap.Complete)
	}
	if snap.Total > 0 {
		snap.AvgTokens = totalTokens / snap.Total
		snap.AvgLLMCalls = float64(totalCalls) / float64(snap.Total)
	}
	snap.Topics = topicCounts(topics)

	return snap, nil
}

// topicCounts orders topics by run count, then key.
func topicCounts(m map[string]int) []TopicCount {
	out := make([]TopicCount, 0, len(m))
	for k, n := range m {
		out = append(out, TopicCount{Key: k, Runs: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Runs != out[j].Runs {
			return out[i].Runs > out[j].Runs
		}
		return out[i].Key < out[j].Key
	})
	return out
}
