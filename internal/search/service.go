package search

import (
	"log"
	"sort"
	"strings"

	"chronicle/editor/internal/doc"
)

const (
	SourceMeili  = "meilisearch"
	SourceMemory = "memory"

	defaultLimit = 20
)

// Service is the page search facade. It queries the backend when one is
// configured and healthy and otherwise matches titles of the pages the caller
// already holds.
type Service struct {
	backend Backend
}

// NewService creates a search service. backend may be nil.
func NewService(backend Backend) *Service {
	return &Service{backend: backend}
}

// Search answers q. pages is the caller's current page list for q.ScopeID and
// is used when the backend is unavailable or fails.
func (s *Service) Search(q Query, pages []doc.Doc) Response {
	if s.backend != nil && s.backend.Healthy() {
		results, total, err := s.backend.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: SourceMeili}
		}
		log.Printf("search: backend error, falling back to memory: %v", err)
	}

	results := matchTitles(q, pages)
	return Response{Results: results, Total: len(results), Query: q.Text, Source: SourceMemory}
}

// IndexPages pushes page records to the backend (fire-and-forget).
func (s *Service) IndexPages(scopeID string, pages []doc.Doc) {
	if s.backend == nil || !s.backend.Healthy() || len(pages) == 0 {
		return
	}
	records := make([]PageRecord, 0, len(pages))
	for _, page := range pages {
		records = append(records, RecordFor(scopeID, page))
	}
	go func() {
		if err := s.backend.IndexPages(records); err != nil {
			log.Printf("search: index %d pages in %s: %v", len(records), scopeID, err)
		}
	}()
}

// DeletePages removes pages from the backend (fire-and-forget).
func (s *Service) DeletePages(ids []string) {
	if s.backend == nil || !s.backend.Healthy() || len(ids) == 0 {
		return
	}
	go func() {
		if err := s.backend.DeletePages(ids); err != nil {
			log.Printf("search: delete pages %v: %v", ids, err)
		}
	}()
}

// RecordFor converts a page into its index record.
func RecordFor(scopeID string, page doc.Doc) PageRecord {
	return PageRecord{
		ID:       page.ID,
		Title:    page.Title,
		ScopeID:  scopeID,
		ParentID: page.Parent(),
	}
}

func matchTitles(q Query, pages []doc.Doc) []Result {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	results := []Result{}
	for _, page := range pages {
		title := doc.NormalizeTitle(page.Title)
		if needle != "" && !strings.Contains(strings.ToLower(title), needle) {
			continue
		}
		results = append(results, Result{
			ID:       page.ID,
			Title:    title,
			Snippet:  title,
			ParentID: page.Parent(),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return strings.ToLower(results[i].Title) < strings.ToLower(results[j].Title)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
