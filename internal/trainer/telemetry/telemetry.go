package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/verdantlabs/greencoach/config"
)

var (
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greencoach_sessions_total",
		Help: "Training sessions by terminal status",
	}, []string{"status"})
	stageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greencoach_stage_failures_total",
		Help: "Stage failures by stage name",
	}, []string{"stage"})
	llmTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greencoach_llm_tokens_total",
		Help: "LLM tokens consumed by model",
	}, []string{"model", "direction"})
	searchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greencoach_search_requests_total",
		Help: "Search adapter calls by outcome",
	}, []string{"outcome"})
)

// Telemetry records pipeline activity: session outcomes, per-model token and
// cost usage, search adapter health. Counters are exported on /metrics; the
// mutexed aggregates back the cost summary endpoint.
type Telemetry struct {
	config config.TelemetryConfig
	logger *log.Logger

	mu            sync.RWMutex
	totalSessions int64
	failedRuns    int64
	avgDuration   time.Duration
	modelTokens   map[string]int64
	modelCosts    map[string]float64
	totalCost     float64
	totalTokens   int64
}

func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config:      cfg,
		logger:      log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		modelTokens: make(map[string]int64),
		modelCosts:  make(map[string]float64),
	}
	if cfg.Enabled && cfg.PeriodicLogs {
		go t.startCostReporting()
	}
	return t
}

// RecordSession records a completed or failed training run.
func (t *Telemetry) RecordSession(sessionID string, success bool, duration time.Duration) {
	if !t.config.Enabled {
		return
	}
	status := "completed"
	if !success {
		status = "failed"
	}
	sessionsTotal.WithLabelValues(status).Inc()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalSessions++
	if !success {
		t.failedRuns++
	}
	if t.totalSessions == 1 {
		t.avgDuration = duration
	} else {
		total := t.avgDuration * time.Duration(t.totalSessions-1)
		t.avgDuration = (total + duration) / time.Duration(t.totalSessions)
	}
	t.logger.Printf("Session Event: ID=%s, Success=%t, Duration=%v", sessionID, success, duration)
}

// RecordStageFailure counts a stage-level failure.
func (t *Telemetry) RecordStageFailure(stage string) {
	if !t.config.Enabled {
		return
	}
	stageFailuresTotal.WithLabelValues(stage).Inc()
}

// RecordLLMUsage records token and cost usage for one generation call.
func (t *Telemetry) RecordLLMUsage(model string, inputTokens, outputTokens int64, cost float64) {
	if !t.config.Enabled {
		return
	}
	llmTokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	llmTokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))

	t.mu.Lock()
	defer t.mu.Unlock()
	tokens := inputTokens + outputTokens
	t.modelTokens[model] += tokens
	t.totalTokens += tokens
	if t.config.CostTracking {
		t.modelCosts[model] += cost
		t.totalCost += cost
	}
}

// RecordSearch counts a search adapter call by outcome.
func (t *Telemetry) RecordSearch(success bool) {
	if !t.config.Enabled {
		return
	}
	outcome := "ok"
	if !success {
		outcome = "degraded"
	}
	searchRequestsTotal.WithLabelValues(outcome).Inc()
}

// CostSummary provides a snapshot of accumulated cost and token usage.
type CostSummary struct {
	TotalCost   float64            `json:"total_cost"`
	TotalTokens int64              `json:"total_tokens"`
	ModelCosts  map[string]float64 `json:"model_costs"`
	ModelTokens map[string]int64   `json:"model_tokens"`
}

// GetCostSummary returns current cost summary
func (t *Telemetry) GetCostSummary() CostSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	summary := CostSummary{
		TotalCost:   t.totalCost,
		TotalTokens: t.totalTokens,
		ModelCosts:  make(map[string]float64, len(t.modelCosts)),
		ModelTokens: make(map[string]int64, len(t.modelTokens)),
	}
	for k, v := range t.modelCosts {
		summary.ModelCosts[k] = v
	}
	for k, v := range t.modelTokens {
		summary.ModelTokens[k] = v
	}
	return summary
}

func (t *Telemetry) startCostReporting() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		costs := t.GetCostSummary()
		t.logger.Printf("Cost Report: Total=$%.4f, Tokens=%d", costs.TotalCost, costs.TotalTokens)
		for model, cost := range costs.ModelCosts {
			t.logger.Printf("  Model %s: $%.4f", model, cost)
		}
	}
}

// Shutdown logs a final usage report.
func (t *Telemetry) Shutdown() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.logger.Printf("Final Report: Sessions=%d, Failed=%d, AvgDuration=%v, TotalCost=$%.4f, TotalTokens=%d",
		t.totalSessions, t.failedRuns, t.avgDuration, t.totalCost, t.totalTokens)
}
