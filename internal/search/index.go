package search

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve"
	"github.com/verdantlabs/greencoach/internal/trainer/core"
)

// reportDoc is the flattened view of a report indexed for full-text search.
type reportDoc struct {
	SessionID    string `json:"session_id"`
	CompanyName  string `json:"company_name"`
	Industry     string `json:"industry"`
	Jurisdiction string `json:"jurisdiction"`
	KeyTakeaways string `json:"key_takeaways"`
	Guidelines   string `json:"guidelines"`
}

// Index holds an in-memory full-text index over completed training reports.
type Index struct {
	idx bleve.Index
}

func NewIndex() (*Index, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{idx: idx}, nil
}

// IndexReport adds a completed report, keyed by stored report id.
func (i *Index) IndexReport(id string, jurisdiction string, r *core.TrainingReport) error {
	doc := reportDoc{
		SessionID:    r.SessionID,
		CompanyName:  r.Scenario.CompanyName,
		Industry:     r.Scenario.Industry,
		Jurisdiction: jurisdiction,
		KeyTakeaways: strings.Join(r.KeyTakeaways, " "),
		Guidelines:   strings.Join(r.BestPractices.GeneralGuidelines, " "),
	}
	return i.idx.Index(id, doc)
}

// Hit is one search result with its relevance score.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Search runs a free-text query and returns matching report ids.
func (i *Index) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := i.idx.Search(req)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

func (i *Index) Close() error { return i.idx.Close() }
