package core

import (
	"testing"
)

func rec(url, typ, stage string) SourceRecord {
	return SourceRecord{Title: "t", URL: url, Type: typ, Stage: stage}
}

func TestDeduplicateSourcesFirstWins(t *testing.T) {
	in := []SourceRecord{
		rec("https://example.com/a", SourceTypeWebSearch, StageScenarioBuilder),
		rec("https://example.com/b", SourceTypeWebSearch, StageScenarioBuilder),
		rec("https://example.com/a", SourceTypeWebSearch, StageMistakeIllustrator),
		rec("https://example.com/a", SourceTypeNews, StageMistakeIllustrator),
	}
	out := DeduplicateSources(in)
	if len(out) != 3 {
		t.Fatalf("deduped = %d, want 3", len(out))
	}
	// same URL under a different source_type is a distinct entry
	if out[2].Type != SourceTypeNews {
		t.Errorf("out[2].Type = %q", out[2].Type)
	}
	// first occurrence keeps its stage attribution
	if out[0].Stage != StageScenarioBuilder {
		t.Errorf("out[0].Stage = %q", out[0].Stage)
	}
}

func TestDeduplicateSourcesIdempotent(t *testing.T) {
	in := []SourceRecord{
		rec("https://example.com/a", SourceTypeWebSearch, StageScenarioBuilder),
		rec("https://example.com/a", SourceTypeWebSearch, StageScenarioBuilder),
		rec("https://example.com/b", SourceTypeNews, StageBestPracticeCoach),
	}
	once := DeduplicateSources(in)
	twice := DeduplicateSources(once)
	if len(once) != len(twice) {
		t.Fatalf("dedup not idempotent: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("record %d changed across passes", i)
		}
	}
}

func TestDeduplicateSourcesEmpty(t *testing.T) {
	out := DeduplicateSources(nil)
	if out == nil || len(out) != 0 {
		t.Fatalf("want empty non-nil slice, got %v", out)
	}
}

func TestGroupSources(t *testing.T) {
	in := []SourceRecord{
		rec("https://example.com/a", SourceTypeWebSearch, StageScenarioBuilder),
		rec("https://example.com/b", SourceTypeNews, StageScenarioBuilder),
		rec("https://example.com/c", SourceTypeWebSearch, StageAssessmentCoach),
	}
	byType := GroupSourcesByType(in)
	if len(byType[SourceTypeWebSearch]) != 2 || len(byType[SourceTypeNews]) != 1 {
		t.Errorf("byType = %v", byType)
	}
	byStage := GroupSourcesByStage(in)
	if len(byStage[StageScenarioBuilder]) != 2 || len(byStage[StageAssessmentCoach]) != 1 {
		t.Errorf("byStage = %v", byStage)
	}
}

func TestSummarizeSources(t *testing.T) {
	in := []SourceRecord{
		rec("https://www.example.com/a", SourceTypeWebSearch, StageScenarioBuilder),
		rec("https://example.com/b", SourceTypeWebSearch, StageMistakeIllustrator),
		rec("https://news.example.com/c", SourceTypeNews, StageMistakeIllustrator),
		// duplicate touched again by a later stage
		rec("https://www.example.com/a", SourceTypeWebSearch, StageBestPracticeCoach),
	}
	sum := SummarizeSources(in)
	if sum.TotalSources != 3 {
		t.Errorf("TotalSources = %d, want 3", sum.TotalSources)
	}
	// www. strip folds www.example.com and example.com together
	if sum.UniqueDomains != 2 {
		t.Errorf("UniqueDomains = %d, want 2", sum.UniqueDomains)
	}
	// the duplicate-only stage still counts as contributing
	if sum.ContributingStages != 3 {
		t.Errorf("ContributingStages = %d, want 3", sum.ContributingStages)
	}
}
