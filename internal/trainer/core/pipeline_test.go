package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/verdantlabs/greencoach/config"
)

type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	prompts []string
	gate    chan struct{}
}

func (s *scriptedLLM) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.replies) == 0 {
		return "", 0, 0, fmt.Errorf("no scripted reply for call %d", len(s.prompts))
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, 100, 50, nil
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	text, _, _, err := s.GenerateWithTokens(ctx, prompt, model, options)
	return text, err
}

func (s *scriptedLLM) GetAvailableModels() []string { return []string{"gpt-4o"} }

func (s *scriptedLLM) GetModelInfo(model string) (ModelInfo, error) { return ModelInfo{Name: model}, nil }

func (s *scriptedLLM) CalculateCost(in, out int64, m string) float64 { return 0 }

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func (s *scriptedLLM) prompt(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts[i]
}

type fakeSearch struct {
	mu      sync.Mutex
	results [][]SourceRecord
	queries []string
}

func (f *fakeSearch) Search(ctx context.Context, query string, stage string) (string, []SourceRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if len(f.results) == 0 {
		return "No relevant search results found for this query.", nil
	}
	set := f.results[0]
	f.results = f.results[1:]
	out := make([]SourceRecord, len(set))
	for i, r := range set {
		r.Query = query
		r.Stage = stage
		r.AccessedAt = time.Now()
		out[i] = r
	}
	return "scripted results", out
}

func (f *fakeSearch) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) OnEvent(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func testConfig(maxSearches int) *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{Routing: config.LLMRoutingConfig{
			Scenario: "gpt-4o", Mistakes: "gpt-4o", Guidance: "gpt-4o",
			Assessment: "gpt-4o", Fallback: "gpt-4o-mini",
		}},
		Training: config.TrainingConfig{MaxSearchesPerStage: maxSearches},
	}
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return string(b)
}

func searchAction(query string) string {
	return fmt.Sprintf(`{"action": "search", "query": "%s"}`, query)
}

func TestPipelineCompletesFullRun(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		searchAction("green hosting market"),
		toJSON(t, validScenario()),
		searchAction("greenwashing enforcement cases"),
		toJSON(t, validAnalysis()),
		toJSON(t, validGuidance()),
		toJSON(t, validAssessment()),
	}}
	search := &fakeSearch{results: [][]SourceRecord{
		{
			rec("https://example.com/a", SourceTypeWebSearch, ""),
			rec("https://example.com/b", SourceTypeWebSearch, ""),
		},
		{
			rec("https://example.com/b", SourceTypeWebSearch, ""),
			rec("https://example.com/c", SourceTypeNews, ""),
		},
	}}
	recorder := &eventRecorder{}
	emitter := NewEmitter()
	emitter.Register(recorder)

	ctrl := NewController(testConfig(4), llm, search, nil, emitter)
	report, err := ctrl.Start(context.Background(), RunConfiguration{
		Industry: "Technology", Jurisdiction: "EU", Difficulty: "Beginner",
		LearnerProfile: "Marketing Director",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if report.Scenario.Industry != "Technology" {
		t.Errorf("scenario industry = %q, want Technology", report.Scenario.Industry)
	}
	// 4 collected, one (url, source_type) duplicate
	if len(report.SourcesUsed) != 3 {
		t.Errorf("sources_used = %d, want 3", len(report.SourcesUsed))
	}
	if report.SourceSummary.TotalSources != 3 {
		t.Errorf("TotalSources = %d, want 3", report.SourceSummary.TotalSources)
	}
	if report.SourceSummary.ContributingStages != 2 {
		t.Errorf("ContributingStages = %d, want 2", report.SourceSummary.ContributingStages)
	}

	run, ok := ctrl.Snapshot()
	if !ok {
		t.Fatalf("no run snapshot")
	}
	if run.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", run.Status, StatusCompleted)
	}
	if run.StageIndex != 4 {
		t.Errorf("stage index = %d, want 4", run.StageIndex)
	}
	if len(run.Sources) != 4 {
		t.Errorf("raw source log = %d, want 4", len(run.Sources))
	}

	events := recorder.all()
	if events[0].Type != EventSessionStart {
		t.Errorf("first event = %q", events[0].Type)
	}
	if events[len(events)-1].Type != EventSessionComplete {
		t.Errorf("last event = %q", events[len(events)-1].Type)
	}
	var started []string
	for _, ev := range events {
		if ev.Type == EventStageStart {
			started = append(started, ev.Stage)
		}
	}
	wantOrder := []string{StageScenarioBuilder, StageMistakeIllustrator, StageBestPracticeCoach, StageAssessmentCoach}
	if len(started) != len(wantOrder) {
		t.Fatalf("stage starts = %v", started)
	}
	for i := range wantOrder {
		if started[i] != wantOrder[i] {
			t.Errorf("stage start %d = %q, want %q", i, started[i], wantOrder[i])
		}
	}
}

func TestPipelineFailsOnValidationError(t *testing.T) {
	brokenAnalysis := validAnalysis()
	brokenAnalysis.ProblematicMessages = nil // marshals as null, decodes back to nil

	llm := &scriptedLLM{replies: []string{
		toJSON(t, validScenario()),
		toJSON(t, brokenAnalysis),
	}}
	recorder := &eventRecorder{}
	emitter := NewEmitter()
	emitter.Register(recorder)

	ctrl := NewController(testConfig(0), llm, &fakeSearch{}, nil, emitter)
	_, err := ctrl.Start(context.Background(), RunConfiguration{
		Industry: "Technology", Jurisdiction: "EU", Difficulty: "Beginner", LearnerProfile: "x",
	})
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	if !strings.Contains(err.Error(), "problematic_messages") {
		t.Errorf("error = %q", err)
	}

	// the third stage was never invoked
	if got := llm.callCount(); got != 2 {
		t.Errorf("llm calls = %d, want 2", got)
	}

	run, ok := ctrl.Snapshot()
	if !ok {
		t.Fatalf("no run snapshot")
	}
	if run.Status != StatusFailed {
		t.Errorf("status = %q, want %q", run.Status, StatusFailed)
	}
	if run.StageIndex != 2 {
		t.Errorf("stage index = %d, want 2", run.StageIndex)
	}

	events := recorder.all()
	if events[len(events)-1].Type != EventError {
		t.Errorf("last event = %q, want %q", events[len(events)-1].Type, EventError)
	}
}

func TestStartRejectsConcurrentRun(t *testing.T) {
	gate := make(chan struct{})
	llm := &scriptedLLM{
		gate: gate,
		replies: []string{
			toJSON(t, validScenario()),
			toJSON(t, validAnalysis()),
			toJSON(t, validGuidance()),
			toJSON(t, validAssessment()),
		},
	}
	ctrl := NewController(testConfig(0), llm, &fakeSearch{}, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Start(context.Background(), RunConfiguration{
			Industry: "Technology", Jurisdiction: "EU", Difficulty: "Beginner", LearnerProfile: "x",
		})
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for {
		if run, ok := ctrl.Snapshot(); ok && run.Status == StatusRunning {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("first run never reached running state")
		case <-time.After(5 * time.Millisecond):
		}
	}

	_, err := ctrl.Start(context.Background(), RunConfiguration{
		Industry: "Retail", Jurisdiction: "US", Difficulty: "Advanced", LearnerProfile: "x",
	})
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("second Start error = %v, want ErrRunInProgress", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// terminal state frees the slot
	llm2 := &scriptedLLM{replies: []string{
		toJSON(t, validScenario()),
		toJSON(t, validAnalysis()),
		toJSON(t, validGuidance()),
		toJSON(t, validAssessment()),
	}}
	llm.mu.Lock()
	llm.gate = nil
	llm.replies = llm2.replies
	llm.mu.Unlock()
	if _, err := ctrl.Start(context.Background(), RunConfiguration{
		Industry: "Technology", Jurisdiction: "EU", Difficulty: "Beginner", LearnerProfile: "x",
	}); err != nil {
		t.Fatalf("run after completion: %v", err)
	}
}

func TestSearchBudgetDegradesInBand(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		searchAction("first query"),
		searchAction("second query over budget"),
		toJSON(t, validScenario()),
		toJSON(t, validAnalysis()),
		toJSON(t, validGuidance()),
		toJSON(t, validAssessment()),
	}}
	search := &fakeSearch{results: [][]SourceRecord{
		{rec("https://example.com/a", SourceTypeWebSearch, "")},
	}}
	ctrl := NewController(testConfig(1), llm, search, nil, nil)

	report, err := ctrl.Start(context.Background(), RunConfiguration{
		Industry: "Technology", Jurisdiction: "EU", Difficulty: "Beginner", LearnerProfile: "x",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := search.callCount(); got != 1 {
		t.Errorf("search calls = %d, want 1", got)
	}
	// the over-budget attempt got an in-band error blob, not an aborted stage
	if !strings.Contains(llm.prompt(2), "search budget for this stage is exhausted") {
		t.Errorf("transcript missing budget exhaustion notice")
	}
	if len(report.SourcesUsed) != 1 {
		t.Errorf("sources_used = %d, want 1", len(report.SourcesUsed))
	}
}

func TestRunawayToolLoopFailsStage(t *testing.T) {
	var replies []string
	for i := 0; i < 16; i++ {
		replies = append(replies, searchAction(fmt.Sprintf("query %d", i)))
	}
	llm := &scriptedLLM{replies: replies}
	search := &fakeSearch{results: [][]SourceRecord{
		{rec("https://example.com/a", SourceTypeWebSearch, "")},
	}}
	ctrl := NewController(testConfig(1), llm, search, nil, nil)

	_, err := ctrl.Start(context.Background(), RunConfiguration{
		Industry: "Technology", Jurisdiction: "EU", Difficulty: "Beginner", LearnerProfile: "x",
	})
	if err == nil {
		t.Fatalf("expected failure when the model never answers")
	}
	if !strings.Contains(err.Error(), "generation attempts") {
		t.Errorf("error = %q", err)
	}
	// budget of 1 allows 4 generations before the stage gives up
	if got := llm.callCount(); got != 4 {
		t.Errorf("llm calls = %d, want 4", got)
	}
	if got := search.callCount(); got != 1 {
		t.Errorf("search calls = %d, want 1", got)
	}
	run, ok := ctrl.Snapshot()
	if !ok {
		t.Fatalf("no run snapshot")
	}
	if run.Status != StatusFailed {
		t.Errorf("status = %q, want %q", run.Status, StatusFailed)
	}
}

func TestDegradedSearchKeepsPipelineRunning(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		searchAction("query that fails"),
		toJSON(t, validScenario()),
		toJSON(t, validAnalysis()),
		toJSON(t, validGuidance()),
		toJSON(t, validAssessment()),
	}}
	// no scripted results: the fake returns the no-results blob with nil records
	ctrl := NewController(testConfig(4), llm, &fakeSearch{}, nil, nil)

	report, err := ctrl.Start(context.Background(), RunConfiguration{
		Industry: "Technology", Jurisdiction: "EU", Difficulty: "Beginner", LearnerProfile: "x",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(report.SourcesUsed) != 0 {
		t.Errorf("sources_used = %d, want 0", len(report.SourcesUsed))
	}
	if !strings.Contains(llm.prompt(1), "No relevant search results found for this query.") {
		t.Errorf("transcript missing degraded tool output")
	}
}

func TestParseSearchAction(t *testing.T) {
	if q, ok := parseSearchAction(`{"action": "search", "query": "eu green claims"}`); !ok || q != "eu green claims" {
		t.Errorf("parse = %q, %v", q, ok)
	}
	if q, ok := parseSearchAction("Thinking first.\n" + `{"action": "search", "query": "wrapped"}`); !ok || q != "wrapped" {
		t.Errorf("wrapped parse = %q, %v", q, ok)
	}
	if _, ok := parseSearchAction(`{"action": "lookup", "query": "x"}`); ok {
		t.Errorf("unknown action accepted")
	}
	if _, ok := parseSearchAction(`{"action": "search", "query": "   "}`); ok {
		t.Errorf("blank query accepted")
	}
	if _, ok := parseSearchAction(`{"company_name": "Acme"}`); ok {
		t.Errorf("stage payload mistaken for tool call")
	}
}

func TestExtractFirstJSON(t *testing.T) {
	in := "Here is my answer:\n{\"a\": {\"b\": 1}, \"c\": 2}\ntrailing text {\"d\": 3}"
	want := `{"a": {"b": 1}, "c": 2}`
	if got := extractFirstJSON(in); got != want {
		t.Errorf("extractFirstJSON = %q, want %q", got, want)
	}
	if got := extractFirstJSON("no json here"); got != "no json here" {
		t.Errorf("passthrough = %q", got)
	}
}

func TestNewSessionID(t *testing.T) {
	now := time.Date(2026, 8, 27, 15, 4, 5, 0, time.UTC)
	if got := NewSessionID(now); got != "TRAIN_20260827_150405" {
		t.Errorf("NewSessionID = %q", got)
	}
}
