package core

import (
	"context"
	"time"
)

// RunConfiguration is the immutable per-session input for a training run.
type RunConfiguration struct {
	SessionID      string    `json:"session_id"`
	Industry       string    `json:"industry"`
	Jurisdiction   string    `json:"jurisdiction"`
	Difficulty     string    `json:"difficulty"`
	LearnerProfile string    `json:"learner_profile"`
	CreatedAt      time.Time `json:"created_at"`
}

// Source types attached to every SourceRecord.
const (
	SourceTypeWebSearch      = "web_search"
	SourceTypeNews           = "news"
	SourceTypeKnowledgePanel = "knowledge_panel"
	SourceTypeRegulatory     = "regulatory"
	SourceTypeOther          = "other"
)

// SourceRecord is a structured citation entry produced by the search adapter.
// Records are never mutated after creation, only collected.
type SourceRecord struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	Type        string    `json:"source_type"`
	Query       string    `json:"originating_query"`
	AccessedAt  time.Time `json:"access_timestamp"`
	Stage       string    `json:"contributing_stage"`
}

// Scenario is the stage 1 output: a realistic business scenario for
// sustainability messaging training.
type Scenario struct {
	CompanyName           string   `json:"company_name"`
	Industry              string   `json:"industry"`
	CompanySize           string   `json:"company_size"`
	Location              string   `json:"location"`
	ProductService        string   `json:"product_service"`
	TargetAudience        string   `json:"target_audience"`
	MarketingObjectives   []string `json:"marketing_objectives"`
	SustainabilityContext string   `json:"sustainability_context"`
	PreliminaryClaims     []string `json:"preliminary_claims"`
	RegulatoryContext     string   `json:"regulatory_context"`
	MarketResearchSources []string `json:"market_research_sources"`
}

// ProblematicMessage is one flawed sustainability message with its analysis.
type ProblematicMessage struct {
	ID                    string   `json:"id"`
	Message               string   `json:"message"`
	ProblemsIdentified    []string `json:"problems_identified"`
	RegulatoryViolations  []string `json:"regulatory_violations"`
	GreenwashingPatterns  []string `json:"greenwashing_patterns"`
	RealWorldExamples     []string `json:"real_world_examples"`
	WhyProblematic        string   `json:"why_problematic"`
	PotentialConsequences []string `json:"potential_consequences"`
}

// ProblematicAnalysis is the stage 2 output.
type ProblematicAnalysis struct {
	ScenarioReference    string               `json:"scenario_reference"`
	ProblematicMessages  []ProblematicMessage `json:"problematic_messages"`
	GeneralPatternsFound []string             `json:"general_patterns_found"`
	RegulatoryLandscape  string               `json:"regulatory_landscape"`
	ResearchSources      []string             `json:"research_sources"`
}

// CorrectedMessage is a compliant rewrite of one problematic message.
type CorrectedMessage struct {
	OriginalMessageID      string   `json:"original_message_id"`
	CorrectedMessage       string   `json:"corrected_message"`
	ChangesMade            []string `json:"changes_made"`
	ComplianceNotes        string   `json:"compliance_notes"`
	BestPracticesApplied   []string `json:"best_practices_applied"`
	RealWorldExamples      []string `json:"real_world_examples"`
	EffectivenessRationale string   `json:"effectiveness_rationale"`
}

// BestPracticeGuidance is the stage 3 output.
type BestPracticeGuidance struct {
	ScenarioReference        string             `json:"scenario_reference"`
	CorrectedMessages        []CorrectedMessage `json:"corrected_messages"`
	GeneralGuidelines        []string           `json:"general_guidelines"`
	KeyPrinciples            []string           `json:"key_principles"`
	RegulatoryComplianceTips []string           `json:"regulatory_compliance_tips"`
	IndustrySpecificAdvice   string             `json:"industry_specific_advice"`
	ResearchSources          []string           `json:"research_sources"`
}

// AssessmentQuestion is one knowledge-check question in the final report.
type AssessmentQuestion struct {
	ID                string   `json:"id"`
	Type              string   `json:"type"` // multiple_choice, scenario_analysis, identification
	Question          string   `json:"question"`
	Options           []string `json:"options"`
	CorrectAnswer     string   `json:"correct_answer"`
	Explanation       string   `json:"explanation"`
	DifficultyLevel   string   `json:"difficulty_level"`
	LearningObjective string   `json:"learning_objective"`
}

// PersonalizedFeedback carries learner-specific recommendations.
type PersonalizedFeedback struct {
	RoleSpecificTips            []string `json:"role_specific_tips"`
	TeamTrainingRecommendations []string `json:"team_training_recommendations"`
	ImplementationStrategies    []string `json:"implementation_strategies"`
	NextSteps                   []string `json:"next_steps"`
	AdditionalResources         []string `json:"additional_resources"`
}

// AssessmentPacket is what the stage 4 generation call itself produces. The
// controller merges it with prior stage outputs into the TrainingReport.
type AssessmentPacket struct {
	AssessmentQuestions  []AssessmentQuestion `json:"assessment_questions"`
	PersonalizedFeedback PersonalizedFeedback `json:"personalized_feedback"`
	KeyTakeaways         []string             `json:"key_takeaways"`
	ComplianceChecklist  []string             `json:"compliance_checklist"`
}

// SourceSummary holds aggregate counts over the deduplicated bibliography.
type SourceSummary struct {
	TotalSources       int `json:"total_sources"`
	UniqueDomains      int `json:"unique_domains"`
	ContributingStages int `json:"contributing_stages"`
}

// TrainingReport is the final merged output of a completed run.
type TrainingReport struct {
	SessionID            string               `json:"session_id"`
	Timestamp            string               `json:"timestamp"`
	LearnerProfile       string               `json:"learner_profile"`
	Scenario             Scenario             `json:"scenario"`
	ProblematicAnalysis  ProblematicAnalysis  `json:"problematic_analysis"`
	BestPractices        BestPracticeGuidance `json:"best_practices"`
	AssessmentQuestions  []AssessmentQuestion `json:"assessment_questions"`
	PersonalizedFeedback PersonalizedFeedback `json:"personalized_feedback"`
	KeyTakeaways         []string             `json:"key_takeaways"`
	ComplianceChecklist  []string             `json:"compliance_checklist"`
	SourcesUsed          []SourceRecord       `json:"sources_used"`
	SourceSummary        SourceSummary        `json:"source_summary"`
}

// RunStatus is the lifecycle state of a PipelineRun.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// PipelineRun is the aggregate root of one training session. It is mutated
// only by the Controller; listeners see snapshots via events.
type PipelineRun struct {
	Config     RunConfiguration      `json:"config"`
	Status     RunStatus             `json:"status"`
	StageIndex int                   `json:"stage_index"` // 1-based index of the stage in flight or last finished
	Scenario   *Scenario             `json:"scenario,omitempty"`
	Analysis   *ProblematicAnalysis  `json:"analysis,omitempty"`
	Guidance   *BestPracticeGuidance `json:"guidance,omitempty"`
	Assessment *AssessmentPacket     `json:"assessment,omitempty"`
	Sources    []SourceRecord        `json:"sources"`
	Report     *TrainingReport       `json:"report,omitempty"`
	Error      string                `json:"error,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at,omitempty"`
}

// LLMProvider interface defines the contract for LLM providers
type LLMProvider interface {
	// Generate generates text using the LLM
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)

	// GenerateWithTokens generates text and returns token usage
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)

	// GetAvailableModels returns available models
	GetAvailableModels() []string

	// GetModelInfo returns information about a specific model
	GetModelInfo(model string) (ModelInfo, error)

	// CalculateCost calculates the cost for a given number of tokens
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// ModelInfo contains information about an LLM model
type ModelInfo struct {
	Name            string   `json:"name"`
	Provider        string   `json:"provider"`
	MaxTokens       int      `json:"max_tokens"`
	CostPer1KInput  float64  `json:"cost_per_1k_input"`
	CostPer1KOutput float64  `json:"cost_per_1k_output"`
	Capabilities    []string `json:"capabilities"`
	Description     string   `json:"description"`
}

// SearchTool is the capability handed to each stage. Failures come back as a
// descriptive text blob in place of results, never as an error value, so a
// stage can proceed with degraded context.
type SearchTool interface {
	Search(ctx context.Context, query string, stage string) (string, []SourceRecord)
}
