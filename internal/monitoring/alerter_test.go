package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/topic-research/internal/config"
)

func thresholds() config.MonitoringConfig {
	return config.MonitoringConfig{
		FailureRateThreshold:  0.10,
		NoChoiceRateThreshold: 0.50,
		CostThresholdUSD:      20.0,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	snap := &Snapshot{
		Total:         100,
		Complete:      95,
		Failed:        5,
		FailRate:      0.05,
		NoChoice:      10,
		NoChoiceRate:  0.105,
		CostUSD:       4.0,
		LookbackHours: 24,
	}

	assert.Empty(t, NewAlerter(thresholds()).Evaluate(snap))
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	snap := &Snapshot{
		Total:         20,
		Complete:      12,
		Failed:        8,
		FailRate:      0.4,
		LookbackHours: 24,
	}

	alerts := NewAlerter(thresholds()).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Equal(t, 20, alerts[0].Details["finished"])
}

func TestAlerter_Evaluate_NoRecommendation(t *testing.T) {
	snap := &Snapshot{
		Total:         10,
		Complete:      10,
		NoChoice:      7,
		NoChoiceRate:  0.7,
		LookbackHours: 12,
	}

	alerts := NewAlerter(thresholds()).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertNoRecommendation, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "70.0%")
	assert.Contains(t, alerts[0].Message, "last 12h")
}

func TestAlerter_Evaluate_CostOverrun(t *testing.T) {
	snap := &Snapshot{
		Total:         50,
		Complete:      48,
		Failed:        2,
		FailRate:      0.04,
		CostUSD:       25.0,
		LookbackHours: 24,
	}

	alerts := NewAlerter(thresholds()).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCostOverrun, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "$25.00")
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	snap := &Snapshot{
		Total:         20,
		Complete:      10,
		Failed:        10,
		FailRate:      0.5,
		NoChoice:      9,
		NoChoiceRate:  0.9,
		CostUSD:       300.0,
		LookbackHours: 24,
	}

	alerts := NewAlerter(thresholds()).Evaluate(snap)
	require.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, a := range alerts {
		types[a.Type] = true
	}
	assert.True(t, types[AlertFailureRate])
	assert.True(t, types[AlertNoRecommendation])
	assert.True(t, types[AlertCostOverrun])
}

func TestAlerter_Evaluate_MinimumRunsRequired(t *testing.T) {
	// 3 finished runs is below the minimum sample for rate alerts.
	snap := &Snapshot{
		Total:         3,
		Complete:      1,
		Failed:        2,
		FailRate:      0.666,
		NoChoice:      1,
		NoChoiceRate:  1,
		LookbackHours: 24,
	}

	assert.Empty(t, NewAlerter(thresholds()).Evaluate(snap))
}

func TestAlerter_Evaluate_ZeroThresholdsDisable(t *testing.T) {
	snap := &Snapshot{
		Total:        50,
		Complete:     25,
		Failed:       25,
		FailRate:     0.5,
		NoChoice:     25,
		NoChoiceRate: 1,
		CostUSD:      1000,
	}

	assert.Empty(t, NewAlerter(config.MonitoringConfig{}).Evaluate(snap))
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert)) {
			assert.NotEmpty(t, alert.Type)
		}
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	alerts := []Alert{
		{Type: AlertFailureRate, Severity: "high", Message: "test 1"},
		{Type: AlertCostOverrun, Severity: "high", Message: "test 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate, Message: "test"}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: "http://example.invalid"})

	assert.Equal(t, 0, a.SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate, Message: "test"}})
	assert.Equal(t, 0, sent)
}
