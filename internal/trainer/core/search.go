package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// serperResponse is the subset of the Serper payload the adapter consumes.
type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
	KnowledgeGraph *struct {
		Title       string            `json:"title"`
		Description string            `json:"description"`
		Website     string            `json:"website"`
		Attributes  map[string]string `json:"attributes"`
	} `json:"knowledgeGraph"`
	News []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date"`
	} `json:"news"`
}

const (
	maxOrganicRecords = 8
	maxNewsRecords    = 3
	organicDisplayTop = 5
)

// SerperSearch wraps the Serper web-search API. One POST per invocation, no
// internal retry; every failure mode comes back as a descriptive text blob so
// the calling stage can continue with degraded context.
type SerperSearch struct {
	apiKey   string
	endpoint string
	gl       string
	hl       string
	num      int
	http     *HTTPClient
	logger   *log.Logger
	now      func() time.Time
}

func NewSerperSearch(apiKey, endpoint, gl, hl string, num int, timeout time.Duration) *SerperSearch {
	s := &SerperSearch{
		apiKey:   apiKey,
		endpoint: endpoint,
		gl:       gl,
		hl:       hl,
		num:      num,
		http:     NewHTTPClient(timeout, 0, 0),
		logger:   log.New(log.Writer(), "[SEARCH] ", log.LstdFlags),
		now:      time.Now,
	}
	if s.endpoint == "" {
		s.endpoint = "https://google.serper.dev/search"
	}
	if s.gl == "" {
		s.gl = "us"
	}
	if s.hl == "" {
		s.hl = "en"
	}
	if s.num <= 0 {
		s.num = 10
	}
	if s.apiKey == "" {
		s.logger.Printf("Warning: SERPER_API_KEY not found in environment variables")
	}
	return s
}

// Search executes one query and returns the rendered display text plus the
// parallel structured source records, each stamped with the query, the
// access time and the invoking stage.
func (s *SerperSearch) Search(ctx context.Context, query string, stage string) (string, []SourceRecord) {
	if s.apiKey == "" {
		return "Error: Serper API key not configured. Please set SERPER_API_KEY environment variable.", nil
	}

	payload := map[string]any{
		"q":   query,
		"num": s.num,
		"gl":  s.gl,
		"hl":  s.hl,
	}
	headers := map[string]string{
		"X-API-KEY":    s.apiKey,
		"Content-Type": "application/json",
	}

	var resp serperResponse
	if err := s.http.DoJSON(ctx, "POST", s.endpoint, headers, payload, &resp); err != nil {
		s.logger.Printf("search %q failed: %v", query, err)
		return fmt.Sprintf("Search request failed: %v", err), nil
	}

	accessedAt := s.now()
	var records []SourceRecord
	var lines []string

	if len(resp.Organic) > 0 {
		lines = append(lines, "=== Search Results ===\n")
		for i, r := range resp.Organic {
			if i < organicDisplayTop {
				lines = append(lines, fmt.Sprintf("%d. **%s**", i+1, r.Title))
				lines = append(lines, fmt.Sprintf("   %s", r.Snippet))
				lines = append(lines, fmt.Sprintf("   Source: %s\n", r.Link))
			}
			if i < maxOrganicRecords {
				records = append(records, SourceRecord{
					Title:       r.Title,
					URL:         r.Link,
					Description: r.Snippet,
					Type:        SourceTypeWebSearch,
					Query:       query,
					AccessedAt:  accessedAt,
					Stage:       stage,
				})
			}
		}
	}

	if kg := resp.KnowledgeGraph; kg != nil {
		lines = append(lines, "=== Knowledge Panel ===")
		if kg.Title != "" {
			lines = append(lines, fmt.Sprintf("**%s**", kg.Title))
		}
		if kg.Description != "" {
			lines = append(lines, kg.Description)
		}
		for name, value := range kg.Attributes {
			lines = append(lines, fmt.Sprintf("%s: %s", name, value))
		}
		lines = append(lines, "")
		records = append(records, SourceRecord{
			Title:       kg.Title,
			URL:         kg.Website,
			Description: kg.Description,
			Type:        SourceTypeKnowledgePanel,
			Query:       query,
			AccessedAt:  accessedAt,
			Stage:       stage,
		})
	}

	if len(resp.News) > 0 {
		lines = append(lines, "=== Recent News ===")
		for i, n := range resp.News {
			if i >= maxNewsRecords {
				break
			}
			lines = append(lines, fmt.Sprintf("• **%s** (%s)", n.Title, n.Date))
			lines = append(lines, fmt.Sprintf("  %s\n", n.Snippet))
			records = append(records, SourceRecord{
				Title:       n.Title,
				URL:         n.Link,
				Description: n.Snippet,
				Type:        SourceTypeNews,
				Query:       query,
				AccessedAt:  accessedAt,
				Stage:       stage,
			})
		}
	}

	if len(records) == 0 {
		return "No relevant search results found for this query.", nil
	}

	// Restate the sources so the model can copy titles and URLs into its
	// structured citation fields. Citation completeness does not depend on
	// this: the adapter-level record list above is authoritative.
	lines = append(lines, "=== Sources For Citation ===")
	lines = append(lines, "Cite the sources you use by copying the exact title and URL into your output's source fields:")
	for i, r := range records {
		lines = append(lines, fmt.Sprintf("%d. %s - %s", i+1, r.Title, r.URL))
	}

	return strings.Join(lines, "\n"), records
}
