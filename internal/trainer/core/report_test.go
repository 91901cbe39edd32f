package core

import (
	"strings"
	"testing"
)

func TestRenderMarkdown(t *testing.T) {
	r := validReport()
	r.SourcesUsed = []SourceRecord{
		{Title: "EU Green Claims Directive", URL: "https://example.com/a", Description: "overview",
			Type: SourceTypeWebSearch, Query: "green claims", Stage: StageScenarioBuilder},
	}
	r.SourceSummary = SummarizeSources(r.SourcesUsed)

	md := RenderMarkdown(&r)

	for _, want := range []string{
		"# Sustainability Messaging Training Report",
		"## Business Scenario",
		"Acme Renewables",
		"## Problematic Messages",
		"> Our hosting is 100% carbon neutral.",
		"## Corrected Messages",
		"## Assessment",
		"## Personalized Feedback",
		"## Sources",
		"EU Green Claims Directive",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderMarkdownSourceSectionsSorted(t *testing.T) {
	r := validReport()
	r.SourcesUsed = []SourceRecord{
		{Title: "w", URL: "https://example.com/w", Type: SourceTypeWebSearch, Stage: StageScenarioBuilder},
		{Title: "k", URL: "https://example.com/k", Type: SourceTypeKnowledgePanel, Stage: StageScenarioBuilder},
		{Title: "n", URL: "https://example.com/n", Type: SourceTypeNews, Stage: StageScenarioBuilder},
	}
	r.SourceSummary = SummarizeSources(r.SourcesUsed)

	// type sections render in lexical order on every run
	md := RenderMarkdown(&r)
	kp := strings.Index(md, "### "+SourceTypeKnowledgePanel)
	news := strings.Index(md, "### "+SourceTypeNews)
	web := strings.Index(md, "### "+SourceTypeWebSearch)
	if kp < 0 || news < 0 || web < 0 {
		t.Fatalf("missing source sections: %d %d %d", kp, news, web)
	}
	if !(kp < news && news < web) {
		t.Errorf("section order = %d, %d, %d; want knowledge_panel < news < web_search", kp, news, web)
	}
}
