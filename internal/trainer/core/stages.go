package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/verdantlabs/greencoach/config"
)

// Stage names, in execution order.
const (
	StageScenarioBuilder    = "scenario_builder"
	StageMistakeIllustrator = "mistake_illustrator"
	StageBestPracticeCoach  = "best_practice_coach"
	StageAssessmentCoach    = "assessment_coach"
)

// stageDef binds a pipeline stage to its routing slot, prompt builder and
// payload parser. The parser stores the validated output on the run.
type stageDef struct {
	name        string
	description string
	model       func(r config.LLMRoutingConfig) string
	prompt      func(run *PipelineRun) string
	parse       func(run *PipelineRun, raw string) (summary string, verr *ValidationError, err error)
}

func pipelineStages() []stageDef {
	return []stageDef{
		{
			name:        StageScenarioBuilder,
			description: "Building a realistic business scenario",
			model:       func(r config.LLMRoutingConfig) string { return r.Scenario },
			prompt:      buildScenarioPrompt,
			parse:       parseScenario,
		},
		{
			name:        StageMistakeIllustrator,
			description: "Illustrating problematic sustainability messages",
			model:       func(r config.LLMRoutingConfig) string { return r.Mistakes },
			prompt:      buildMistakesPrompt,
			parse:       parseMistakes,
		},
		{
			name:        StageBestPracticeCoach,
			description: "Correcting messages with best practices",
			model:       func(r config.LLMRoutingConfig) string { return r.Guidance },
			prompt:      buildGuidancePrompt,
			parse:       parseGuidance,
		},
		{
			name:        StageAssessmentCoach,
			description: "Generating assessment and personalized feedback",
			model:       func(r config.LLMRoutingConfig) string { return r.Assessment },
			prompt:      buildAssessmentPrompt,
			parse:       parseAssessment,
		},
	}
}

// toolDirective is the shared preamble teaching the model how to invoke the
// search tool mid-stage and how to terminate with its structured answer.
const toolDirective = `You may research before answering. To search the web, respond ONLY with:
{"action": "search", "query": "<your query>"}
Search results will be appended to this conversation. When you have enough information, respond ONLY with the strict JSON object described below. Copy the titles and URLs of sources you relied on into the source fields of your answer.`

func buildScenarioPrompt(run *PipelineRun) string {
	cfg := run.Config
	return fmt.Sprintf(`You are a sustainability marketing scenario builder creating training material.

LEARNER PROFILE:
%s

SESSION PARAMETERS:
- Industry: %s
- Jurisdiction / regulatory framework: %s
- Difficulty: %s

%s

Create a realistic business scenario for sustainability messaging training in the %s industry under %s regulation. The company should face genuine sustainability communication challenges and want to make preliminary claims that will later be examined for greenwashing risk.

Return ONLY strict JSON with keys:
{"company_name": string, "industry": string, "company_size": string, "location": string, "product_service": string, "target_audience": string, "marketing_objectives": [string], "sustainability_context": string, "preliminary_claims": [string], "regulatory_context": string, "market_research_sources": [string]}
The "industry" field must be exactly %q.`,
		cfg.LearnerProfile, cfg.Industry, cfg.Jurisdiction, cfg.Difficulty,
		toolDirective, cfg.Industry, cfg.Jurisdiction, cfg.Industry)
}

func buildMistakesPrompt(run *PipelineRun) string {
	scenarioJSON := mustJSON(run.Scenario)
	return fmt.Sprintf(`You are a greenwashing analyst illustrating problematic sustainability messages for training.

BUSINESS SCENARIO (from the previous stage):
%s

Difficulty: %s. Jurisdiction: %s.

%s

Write 3 to 5 problematic sustainability marketing messages this company might plausibly publish, each demonstrating distinct greenwashing patterns and regulatory violations, grounded in real-world enforcement cases where possible.

Return ONLY strict JSON with keys:
{"scenario_reference": string, "problematic_messages": [{"id": string, "message": string, "problems_identified": [string], "regulatory_violations": [string], "greenwashing_patterns": [string], "real_world_examples": [string], "why_problematic": string, "potential_consequences": [string]}], "general_patterns_found": [string], "regulatory_landscape": string, "research_sources": [string]}`,
		scenarioJSON, run.Config.Difficulty, run.Config.Jurisdiction, toolDirective)
}

func buildGuidancePrompt(run *PipelineRun) string {
	scenarioJSON := mustJSON(run.Scenario)
	analysisJSON := mustJSON(run.Analysis)
	return fmt.Sprintf(`You are a sustainability communications coach correcting flawed messages.

BUSINESS SCENARIO:
%s

PROBLEMATIC MESSAGE ANALYSIS (from the previous stage):
%s

%s

For every problematic message above, produce a corrected, compliant version with the specific changes made, plus general guidance for the scenario's industry.

Return ONLY strict JSON with keys:
{"scenario_reference": string, "corrected_messages": [{"original_message_id": string, "corrected_message": string, "changes_made": [string], "compliance_notes": string, "best_practices_applied": [string], "real_world_examples": [string], "effectiveness_rationale": string}], "general_guidelines": [string], "key_principles": [string], "regulatory_compliance_tips": [string], "industry_specific_advice": string, "research_sources": [string]}`,
		scenarioJSON, analysisJSON, toolDirective)
}

func buildAssessmentPrompt(run *PipelineRun) string {
	scenarioJSON := mustJSON(run.Scenario)
	analysisJSON := mustJSON(run.Analysis)
	guidanceJSON := mustJSON(run.Guidance)
	return fmt.Sprintf(`You are a training assessment coach closing a sustainability-messaging session.

LEARNER PROFILE:
%s

BUSINESS SCENARIO:
%s

PROBLEMATIC MESSAGE ANALYSIS:
%s

BEST PRACTICE GUIDANCE:
%s

%s

Produce the assessment for this session: 5 to 8 questions testing the patterns and corrections covered above, personalized feedback for the learner's role, key takeaways, and a compliance checklist. Question difficulty_level must match %q.

Return ONLY strict JSON with keys:
{"assessment_questions": [{"id": string, "type": string, "question": string, "options": [string], "correct_answer": string, "explanation": string, "difficulty_level": string, "learning_objective": string}], "personalized_feedback": {"role_specific_tips": [string], "team_training_recommendations": [string], "implementation_strategies": [string], "next_steps": [string], "additional_resources": [string]}, "key_takeaways": [string], "compliance_checklist": [string]}`,
		run.Config.LearnerProfile, scenarioJSON, analysisJSON, guidanceJSON,
		toolDirective, strings.ToLower(run.Config.Difficulty))
}

func parseScenario(run *PipelineRun, raw string) (string, *ValidationError, error) {
	var s Scenario
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &s); err != nil {
		return "", nil, fmt.Errorf("parse scenario: %w", err)
	}
	if verr := ValidateScenario(&s); verr != nil {
		return "", verr, nil
	}
	run.Scenario = &s
	return fmt.Sprintf("%s (%s, %s)", s.CompanyName, s.Industry, s.CompanySize), nil, nil
}

func parseMistakes(run *PipelineRun, raw string) (string, *ValidationError, error) {
	var a ProblematicAnalysis
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &a); err != nil {
		return "", nil, fmt.Errorf("parse problematic analysis: %w", err)
	}
	if verr := ValidateProblematicAnalysis(&a); verr != nil {
		return "", verr, nil
	}
	run.Analysis = &a
	return fmt.Sprintf("%d problematic messages, %d patterns", len(a.ProblematicMessages), len(a.GeneralPatternsFound)), nil, nil
}

func parseGuidance(run *PipelineRun, raw string) (string, *ValidationError, error) {
	var g BestPracticeGuidance
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &g); err != nil {
		return "", nil, fmt.Errorf("parse guidance: %w", err)
	}
	if verr := ValidateBestPracticeGuidance(&g); verr != nil {
		return "", verr, nil
	}
	run.Guidance = &g
	return fmt.Sprintf("%d corrected messages, %d guidelines", len(g.CorrectedMessages), len(g.GeneralGuidelines)), nil, nil
}

func parseAssessment(run *PipelineRun, raw string) (string, *ValidationError, error) {
	var p AssessmentPacket
	if err := json.Unmarshal([]byte(extractFirstJSON(raw)), &p); err != nil {
		return "", nil, fmt.Errorf("parse assessment: %w", err)
	}
	if verr := ValidateAssessmentPacket(&p); verr != nil {
		return "", verr, nil
	}
	run.Assessment = &p
	return fmt.Sprintf("%d assessment questions, %d takeaways", len(p.AssessmentQuestions), len(p.KeyTakeaways)), nil, nil
}

func mustJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

// extractFirstJSON attempts to find the first top-level JSON object in a string
func extractFirstJSON(s string) string {
	start := -1
	depth := 0
	for i, ch := range s {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return s
}
