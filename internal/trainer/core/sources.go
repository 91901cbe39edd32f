package core

import (
	"net/url"
	"strings"
)

// DeduplicateSources drops later records whose (url, source_type) pair was
// already seen. First occurrence wins and keeps its stage attribution; input
// order is preserved so bibliographies are reproducible.
func DeduplicateSources(in []SourceRecord) []SourceRecord {
	seen := map[string]bool{}
	out := make([]SourceRecord, 0, len(in))
	for _, r := range in {
		key := r.URL + "|" + r.Type
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// GroupSourcesByType buckets records by source_type, preserving order within
// each bucket.
func GroupSourcesByType(in []SourceRecord) map[string][]SourceRecord {
	out := map[string][]SourceRecord{}
	for _, r := range in {
		out[r.Type] = append(out[r.Type], r)
	}
	return out
}

// GroupSourcesByStage buckets records by the stage whose adapter call
// produced them.
func GroupSourcesByStage(in []SourceRecord) map[string][]SourceRecord {
	out := map[string][]SourceRecord{}
	for _, r := range in {
		out[r.Stage] = append(out[r.Stage], r)
	}
	return out
}

// SummarizeSources computes bibliography counts for the final report. Total
// and domain counts run over the deduplicated list; stage contributions count
// the raw log, so a stage that only re-touched known sources still counts.
func SummarizeSources(raw []SourceRecord) SourceSummary {
	deduped := DeduplicateSources(raw)
	domains := map[string]bool{}
	for _, r := range deduped {
		if d := sourceDomain(r.URL); d != "" {
			domains[d] = true
		}
	}
	stages := map[string]bool{}
	for _, r := range raw {
		if r.Stage != "" {
			stages[r.Stage] = true
		}
	}
	return SourceSummary{
		TotalSources:       len(deduped),
		UniqueDomains:      len(domains),
		ContributingStages: len(stages),
	}
}

func sourceDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}
