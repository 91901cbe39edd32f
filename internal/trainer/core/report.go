package core

import (
	"fmt"
	"sort"
	"strings"
)

// RenderMarkdown formats a completed report as a long-form training document.
// The structured report stays authoritative; this is a presentation view.
func RenderMarkdown(r *TrainingReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Sustainability Messaging Training Report\n\n")
	fmt.Fprintf(&b, "- Session: %s\n- Generated: %s\n\n", r.SessionID, r.Timestamp)

	fmt.Fprintf(&b, "## Learner Profile\n\n%s\n\n", r.LearnerProfile)

	s := r.Scenario
	fmt.Fprintf(&b, "## Business Scenario\n\n")
	fmt.Fprintf(&b, "**%s** — %s (%s), %s\n\n", s.CompanyName, s.Industry, s.CompanySize, s.Location)
	fmt.Fprintf(&b, "%s\n\n", s.SustainabilityContext)
	fmt.Fprintf(&b, "Product/service: %s. Target audience: %s.\n\n", s.ProductService, s.TargetAudience)
	writeList(&b, "Marketing objectives", s.MarketingObjectives)
	writeList(&b, "Preliminary claims under review", s.PreliminaryClaims)
	fmt.Fprintf(&b, "**Regulatory context:** %s\n\n", s.RegulatoryContext)

	fmt.Fprintf(&b, "## Problematic Messages\n\n%s\n\n", r.ProblematicAnalysis.RegulatoryLandscape)
	for i, m := range r.ProblematicAnalysis.ProblematicMessages {
		fmt.Fprintf(&b, "### %d. %s\n\n> %s\n\n", i+1, m.ID, m.Message)
		writeList(&b, "Problems identified", m.ProblemsIdentified)
		writeList(&b, "Regulatory violations", m.RegulatoryViolations)
		writeList(&b, "Greenwashing patterns", m.GreenwashingPatterns)
		fmt.Fprintf(&b, "**Why problematic:** %s\n\n", m.WhyProblematic)
		writeList(&b, "Potential consequences", m.PotentialConsequences)
	}
	writeList(&b, "General patterns found", r.ProblematicAnalysis.GeneralPatternsFound)

	fmt.Fprintf(&b, "## Corrected Messages\n\n")
	for i, m := range r.BestPractices.CorrectedMessages {
		fmt.Fprintf(&b, "### %d. Correction for %s\n\n> %s\n\n", i+1, m.OriginalMessageID, m.CorrectedMessage)
		writeList(&b, "Changes made", m.ChangesMade)
		fmt.Fprintf(&b, "**Compliance notes:** %s\n\n", m.ComplianceNotes)
		fmt.Fprintf(&b, "**Why it works:** %s\n\n", m.EffectivenessRationale)
	}
	writeList(&b, "General guidelines", r.BestPractices.GeneralGuidelines)
	writeList(&b, "Key principles", r.BestPractices.KeyPrinciples)
	writeList(&b, "Regulatory compliance tips", r.BestPractices.RegulatoryComplianceTips)
	fmt.Fprintf(&b, "**Industry-specific advice:** %s\n\n", r.BestPractices.IndustrySpecificAdvice)

	fmt.Fprintf(&b, "## Assessment\n\n")
	for i, q := range r.AssessmentQuestions {
		fmt.Fprintf(&b, "**Q%d (%s, %s):** %s\n\n", i+1, q.Type, q.DifficultyLevel, q.Question)
		for _, o := range q.Options {
			fmt.Fprintf(&b, "- %s\n", o)
		}
		fmt.Fprintf(&b, "\n*Answer:* %s — %s\n\n", q.CorrectAnswer, q.Explanation)
	}

	fb := r.PersonalizedFeedback
	fmt.Fprintf(&b, "## Personalized Feedback\n\n")
	writeList(&b, "Role-specific tips", fb.RoleSpecificTips)
	writeList(&b, "Team training recommendations", fb.TeamTrainingRecommendations)
	writeList(&b, "Implementation strategies", fb.ImplementationStrategies)
	writeList(&b, "Next steps", fb.NextSteps)
	writeList(&b, "Additional resources", fb.AdditionalResources)

	writeList(&b, "Key takeaways", r.KeyTakeaways)
	writeList(&b, "Compliance checklist", r.ComplianceChecklist)

	fmt.Fprintf(&b, "## Sources\n\n")
	fmt.Fprintf(&b, "%d sources across %d domains, %d contributing stages.\n\n",
		r.SourceSummary.TotalSources, r.SourceSummary.UniqueDomains, r.SourceSummary.ContributingStages)
	grouped := GroupSourcesByType(r.SourcesUsed)
	types := make([]string, 0, len(grouped))
	for typ := range grouped {
		types = append(types, typ)
	}
	sort.Strings(types)
	for _, typ := range types {
		fmt.Fprintf(&b, "### %s\n\n", typ)
		for _, src := range grouped[typ] {
			fmt.Fprintf(&b, "- [%s](%s) — %s (stage: %s, query: %q)\n", src.Title, src.URL, src.Description, src.Stage, src.Query)
		}
		fmt.Fprintf(&b, "\n")
	}

	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "**%s:**\n\n", heading)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	fmt.Fprintf(b, "\n")
}
