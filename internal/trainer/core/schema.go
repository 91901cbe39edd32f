package core

import (
	"fmt"
	"strings"
)

// ValidationError reports every missing or malformed field of one stage
// payload. A nil *ValidationError means the payload is accepted; no partial
// coercion is ever applied.
type ValidationError struct {
	Schema string
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Schema, strings.Join(e.Issues, "; "))
}

// Required list fields are detected through json.Unmarshal's nil/non-nil
// distinction: an absent or null list decodes to a nil slice, a present empty
// list to a non-nil one. Validators therefore require non-nil, not non-empty.

// ValidateScenario checks the stage 1 payload.
func ValidateScenario(s *Scenario) *ValidationError {
	var issues []string
	requireString(&issues, "company_name", s.CompanyName)
	requireString(&issues, "industry", s.Industry)
	requireString(&issues, "company_size", s.CompanySize)
	requireString(&issues, "location", s.Location)
	requireString(&issues, "product_service", s.ProductService)
	requireString(&issues, "target_audience", s.TargetAudience)
	requireList(&issues, "marketing_objectives", s.MarketingObjectives)
	requireString(&issues, "sustainability_context", s.SustainabilityContext)
	requireList(&issues, "preliminary_claims", s.PreliminaryClaims)
	requireString(&issues, "regulatory_context", s.RegulatoryContext)
	requireList(&issues, "market_research_sources", s.MarketResearchSources)
	if len(issues) > 0 {
		return &ValidationError{Schema: "scenario", Issues: issues}
	}
	return nil
}

// ValidateProblematicAnalysis checks the stage 2 payload, including every
// nested message.
func ValidateProblematicAnalysis(a *ProblematicAnalysis) *ValidationError {
	var issues []string
	requireString(&issues, "scenario_reference", a.ScenarioReference)
	requireList(&issues, "problematic_messages", a.ProblematicMessages)
	for i, m := range a.ProblematicMessages {
		prefix := fmt.Sprintf("problematic_messages[%d].", i)
		requireString(&issues, prefix+"id", m.ID)
		requireString(&issues, prefix+"message", m.Message)
		requireList(&issues, prefix+"problems_identified", m.ProblemsIdentified)
		requireList(&issues, prefix+"regulatory_violations", m.RegulatoryViolations)
		requireList(&issues, prefix+"greenwashing_patterns", m.GreenwashingPatterns)
		requireList(&issues, prefix+"real_world_examples", m.RealWorldExamples)
		requireString(&issues, prefix+"why_problematic", m.WhyProblematic)
		requireList(&issues, prefix+"potential_consequences", m.PotentialConsequences)
	}
	requireList(&issues, "general_patterns_found", a.GeneralPatternsFound)
	requireString(&issues, "regulatory_landscape", a.RegulatoryLandscape)
	requireList(&issues, "research_sources", a.ResearchSources)
	if len(issues) > 0 {
		return &ValidationError{Schema: "problematic_analysis", Issues: issues}
	}
	return nil
}

// ValidateBestPracticeGuidance checks the stage 3 payload.
func ValidateBestPracticeGuidance(g *BestPracticeGuidance) *ValidationError {
	var issues []string
	requireString(&issues, "scenario_reference", g.ScenarioReference)
	requireList(&issues, "corrected_messages", g.CorrectedMessages)
	for i, m := range g.CorrectedMessages {
		prefix := fmt.Sprintf("corrected_messages[%d].", i)
		requireString(&issues, prefix+"original_message_id", m.OriginalMessageID)
		requireString(&issues, prefix+"corrected_message", m.CorrectedMessage)
		requireList(&issues, prefix+"changes_made", m.ChangesMade)
		requireString(&issues, prefix+"compliance_notes", m.ComplianceNotes)
		requireList(&issues, prefix+"best_practices_applied", m.BestPracticesApplied)
		requireList(&issues, prefix+"real_world_examples", m.RealWorldExamples)
		requireString(&issues, prefix+"effectiveness_rationale", m.EffectivenessRationale)
	}
	requireList(&issues, "general_guidelines", g.GeneralGuidelines)
	requireList(&issues, "key_principles", g.KeyPrinciples)
	requireList(&issues, "regulatory_compliance_tips", g.RegulatoryComplianceTips)
	requireString(&issues, "industry_specific_advice", g.IndustrySpecificAdvice)
	requireList(&issues, "research_sources", g.ResearchSources)
	if len(issues) > 0 {
		return &ValidationError{Schema: "best_practice_guidance", Issues: issues}
	}
	return nil
}

// ValidateAssessmentPacket checks the stage 4 generation payload before the
// controller folds it into the final report.
func ValidateAssessmentPacket(p *AssessmentPacket) *ValidationError {
	var issues []string
	requireList(&issues, "assessment_questions", p.AssessmentQuestions)
	for i, q := range p.AssessmentQuestions {
		prefix := fmt.Sprintf("assessment_questions[%d].", i)
		requireString(&issues, prefix+"id", q.ID)
		requireString(&issues, prefix+"type", q.Type)
		requireString(&issues, prefix+"question", q.Question)
		requireList(&issues, prefix+"options", q.Options)
		requireString(&issues, prefix+"correct_answer", q.CorrectAnswer)
		requireString(&issues, prefix+"explanation", q.Explanation)
		requireString(&issues, prefix+"difficulty_level", q.DifficultyLevel)
		requireString(&issues, prefix+"learning_objective", q.LearningObjective)
	}
	fb := p.PersonalizedFeedback
	requireList(&issues, "personalized_feedback.role_specific_tips", fb.RoleSpecificTips)
	requireList(&issues, "personalized_feedback.team_training_recommendations", fb.TeamTrainingRecommendations)
	requireList(&issues, "personalized_feedback.implementation_strategies", fb.ImplementationStrategies)
	requireList(&issues, "personalized_feedback.next_steps", fb.NextSteps)
	requireList(&issues, "personalized_feedback.additional_resources", fb.AdditionalResources)
	requireList(&issues, "key_takeaways", p.KeyTakeaways)
	requireList(&issues, "compliance_checklist", p.ComplianceChecklist)
	if len(issues) > 0 {
		return &ValidationError{Schema: "assessment_packet", Issues: issues}
	}
	return nil
}

// ValidateTrainingReport checks the fully assembled report. The nested stage
// payloads revalidate so a report is never accepted with fields its stages
// would have rejected.
func ValidateTrainingReport(r *TrainingReport) *ValidationError {
	var issues []string
	requireString(&issues, "session_id", r.SessionID)
	requireString(&issues, "timestamp", r.Timestamp)
	requireString(&issues, "learner_profile", r.LearnerProfile)
	if err := ValidateScenario(&r.Scenario); err != nil {
		issues = append(issues, prefixIssues("scenario.", err.Issues)...)
	}
	if err := ValidateProblematicAnalysis(&r.ProblematicAnalysis); err != nil {
		issues = append(issues, prefixIssues("problematic_analysis.", err.Issues)...)
	}
	if err := ValidateBestPracticeGuidance(&r.BestPractices); err != nil {
		issues = append(issues, prefixIssues("best_practices.", err.Issues)...)
	}
	packet := AssessmentPacket{
		AssessmentQuestions:  r.AssessmentQuestions,
		PersonalizedFeedback: r.PersonalizedFeedback,
		KeyTakeaways:         r.KeyTakeaways,
		ComplianceChecklist:  r.ComplianceChecklist,
	}
	if err := ValidateAssessmentPacket(&packet); err != nil {
		issues = append(issues, err.Issues...)
	}
	if r.SourcesUsed == nil {
		issues = append(issues, "sources_used: missing required list")
	}
	if len(issues) > 0 {
		return &ValidationError{Schema: "training_report", Issues: issues}
	}
	return nil
}

func requireString(issues *[]string, field, value string) {
	if strings.TrimSpace(value) == "" {
		*issues = append(*issues, field+": missing required field")
	}
}

func requireList[T any](issues *[]string, field string, value []T) {
	if value == nil {
		*issues = append(*issues, field+": missing required list")
	}
}

func prefixIssues(prefix string, issues []string) []string {
	out := make([]string, len(issues))
	for i, s := range issues {
		out[i] = prefix + s
	}
	return out
}
