package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/verdantlabs/greencoach/config"
	"github.com/verdantlabs/greencoach/internal/trainer/telemetry"
)

// ErrRunInProgress is returned by Start while another run is still RUNNING.
// Runs are never queued; the caller decides whether to retry.
var ErrRunInProgress = errors.New("a training run is already in progress")

// Controller executes the four-stage training pipeline. One controller owns
// at most one run at a time; all run state is written by the goroutine
// executing Start, and readers get copies via Snapshot.
type Controller struct {
	cfg     *config.Config
	llm     LLMProvider
	search  SearchTool
	tele    *telemetry.Telemetry
	emitter *Emitter
	logger  *log.Logger

	mu  sync.Mutex
	run *PipelineRun
}

func NewController(cfg *config.Config, llm LLMProvider, search SearchTool, tele *telemetry.Telemetry, emitter *Emitter) *Controller {
	if emitter == nil {
		emitter = NewEmitter()
	}
	return &Controller{
		cfg:     cfg,
		llm:     llm,
		search:  search,
		tele:    tele,
		emitter: emitter,
		logger:  log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags),
	}
}

// NewSessionID mints a session identifier for callers that do not supply one.
func NewSessionID(now time.Time) string {
	return "TRAIN_" + now.Format("20060102_150405")
}

// Start executes a full training run and blocks until it completes or fails.
// It returns ErrRunInProgress when a run is already in flight.
func (c *Controller) Start(ctx context.Context, rc RunConfiguration) (*TrainingReport, error) {
	c.mu.Lock()
	if c.run != nil && c.run.Status == StatusRunning {
		c.mu.Unlock()
		return nil, ErrRunInProgress
	}
	if rc.SessionID == "" {
		rc.SessionID = NewSessionID(time.Now())
	}
	if rc.CreatedAt.IsZero() {
		rc.CreatedAt = time.Now()
	}
	run := &PipelineRun{
		Config:    rc,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	c.run = run
	c.mu.Unlock()

	c.emit(Event{SessionID: rc.SessionID, Type: EventSessionStart,
		Message: fmt.Sprintf("Training session started: industry=%s jurisdiction=%s difficulty=%s", rc.Industry, rc.Jurisdiction, rc.Difficulty)})

	report, err := c.execute(ctx, run)

	c.mu.Lock()
	run.FinishedAt = time.Now()
	if err != nil {
		run.Status = StatusFailed
		run.Error = err.Error()
	} else {
		run.Status = StatusCompleted
		run.Report = report
	}
	c.mu.Unlock()

	if c.tele != nil {
		c.tele.RecordSession(rc.SessionID, err == nil, time.Since(run.StartedAt))
	}
	if err != nil {
		c.emit(Event{SessionID: rc.SessionID, Type: EventError, Message: err.Error()})
		return nil, err
	}
	c.emit(Event{SessionID: rc.SessionID, Type: EventSessionComplete,
		Message: "Training session complete",
		Summary: fmt.Sprintf("%d sources cited, %d assessment questions", len(report.SourcesUsed), len(report.AssessmentQuestions))})
	return report, nil
}

// Snapshot returns a copy of the current run state, if any.
func (c *Controller) Snapshot() (PipelineRun, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return PipelineRun{}, false
	}
	cp := *c.run
	cp.Sources = append([]SourceRecord(nil), c.run.Sources...)
	return cp, true
}

func (c *Controller) execute(ctx context.Context, run *PipelineRun) (report *TrainingReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Printf("panic during run %s: %v", run.Config.SessionID, r)
			report = nil
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()

	for i, stage := range pipelineStages() {
		c.withRunLock(func() { run.StageIndex = i + 1 })
		if err := c.runStage(ctx, run, stage); err != nil {
			if c.tele != nil {
				c.tele.RecordStageFailure(stage.name)
			}
			return nil, fmt.Errorf("stage %s: %w", stage.name, err)
		}
	}

	rep := c.assembleReport(run)
	if verr := ValidateTrainingReport(rep); verr != nil {
		return nil, verr
	}
	return rep, nil
}

func (c *Controller) runStage(ctx context.Context, run *PipelineRun, stage stageDef) error {
	sessionID := run.Config.SessionID
	c.logger.Printf("[%s] starting stage %s", sessionID, stage.name)
	c.emit(Event{SessionID: sessionID, Type: EventStageStart, Stage: stage.name, Message: stage.description})

	model := stage.model(c.cfg.LLM.Routing)
	if model == "" {
		model = c.cfg.LLM.Routing.Fallback
	}

	prompt := stage.prompt(run)
	transcript := prompt
	maxSearches := c.cfg.Training.MaxSearchesPerStage
	searches := 0

	// The model gets one generation per allowed search plus a few to recover
	// from degraded tool output. A model that keeps asking to search past
	// that fails the stage instead of burning paid calls forever.
	maxAttempts := maxSearches + 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		raw, inTok, outTok, err := c.llm.GenerateWithTokens(ctx, transcript, model, map[string]interface{}{})
		if err != nil {
			return fmt.Errorf("generation: %w", err)
		}
		if c.tele != nil {
			c.tele.RecordLLMUsage(model, inTok, outTok, c.llm.CalculateCost(inTok, outTok, model))
		}

		if query, ok := parseSearchAction(raw); ok {
			var toolOut string
			if searches >= maxSearches {
				// Budget exhausted; degrade exactly like a tool failure.
				toolOut = "Error: search budget for this stage is exhausted. Answer with the information you already have."
			} else {
				searches++
				text, records := c.search.Search(ctx, query, stage.name)
				toolOut = text
				c.withRunLock(func() { run.Sources = append(run.Sources, records...) })
				if c.tele != nil {
					c.tele.RecordSearch(len(records) > 0)
				}
				c.emit(Event{SessionID: sessionID, Type: EventToolUse, Stage: stage.name,
					Message: fmt.Sprintf("Searching: %s", query),
					Summary: fmt.Sprintf("%d sources", len(records))})
			}
			transcript = transcript + "\n\nASSISTANT:\n" + raw + "\n\nSEARCH RESULTS:\n" + toolOut + "\n\nContinue. Remember to respond ONLY with the strict JSON object described above when done."
			continue
		}

		var (
			summary string
			verr    *ValidationError
			perr    error
		)
		c.withRunLock(func() { summary, verr, perr = stage.parse(run, raw) })
		if perr != nil {
			return perr
		}
		if verr != nil {
			return verr
		}
		c.logger.Printf("[%s] stage %s complete: %s", sessionID, stage.name, summary)
		c.emit(Event{SessionID: sessionID, Type: EventStageComplete, Stage: stage.name,
			Message: fmt.Sprintf("Completed: %s", stage.description), Summary: summary})
		return nil
	}

	return fmt.Errorf("no structured answer after %d generation attempts", maxAttempts)
}

// assembleReport merges the four validated stage outputs and the deduplicated
// source log into the final report, by value.
func (c *Controller) assembleReport(run *PipelineRun) *TrainingReport {
	deduped := DeduplicateSources(run.Sources)
	return &TrainingReport{
		SessionID:            run.Config.SessionID,
		Timestamp:            run.StartedAt.Format(time.RFC3339),
		LearnerProfile:       run.Config.LearnerProfile,
		Scenario:             *run.Scenario,
		ProblematicAnalysis:  *run.Analysis,
		BestPractices:        *run.Guidance,
		AssessmentQuestions:  run.Assessment.AssessmentQuestions,
		PersonalizedFeedback: run.Assessment.PersonalizedFeedback,
		KeyTakeaways:         run.Assessment.KeyTakeaways,
		ComplianceChecklist:  run.Assessment.ComplianceChecklist,
		SourcesUsed:          deduped,
		SourceSummary:        SummarizeSources(run.Sources),
	}
}

func (c *Controller) withRunLock(fn func()) {
	c.mu.Lock()
	fn()
	c.mu.Unlock()
}

func (c *Controller) emit(ev Event) {
	c.emitter.emit(ev)
}

// Register installs the listener receiving this controller's events.
func (c *Controller) Register(l Listener) {
	c.emitter.Register(l)
}

// parseSearchAction detects the tool-invocation envelope in a model reply.
func parseSearchAction(raw string) (string, bool) {
	var action struct {
		Action string `json:"action"`
		Query  string `json:"query"`
	}
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &action); err != nil {
		return "", false
	}
	if action.Action != "search" {
		return "", false
	}
	query := strings.TrimSpace(action.Query)
	if query == "" {
		return "", false
	}
	return query, true
}
