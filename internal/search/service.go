package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to SQL.
type Service struct {
	meili *Meili
	sql   *SQLSearch
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili *Meili, sqlSearch *SQLSearch) *Service {
	return &Service{meili: meili, sql: sqlSearch}
}

// Search tries Meilisearch if healthy, otherwise falls back to SQL.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to sql: %v", err)
	}

	results, total, err := s.sql.Search(q)
	if err != nil {
		log.Printf("search: sql error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexRequest indexes a request (fire-and-forget to Meilisearch).
func (s *Service) IndexRequest(record RequestRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexRequest(record); err != nil {
			log.Printf("search: index request %d: %v", record.ID, err)
		}
	}()
}

// DeleteRequest removes a request from the search index (fire-and-forget).
func (s *Service) DeleteRequest(id int64) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteRequest(id); err != nil {
			log.Printf("search: delete request %d: %v", id, err)
		}
	}()
}

// ReindexAllFromDB reindexes every request from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromDB(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.sql == nil {
		return
	}
	records, err := s.sql.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if len(records) == 0 {
		return
	}
	if err := s.meili.IndexRequests(records); err != nil {
		log.Printf("search: reindex requests: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
