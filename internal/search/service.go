package search

import "log"

// Service is the facade that tries Meilisearch first and falls back to the
// Postgres searcher.
type Service struct {
	meili *Meili
	pg    *PgSearch
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, pg *PgSearch) *Service {
	return &Service{meili: meili, pg: pg}
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	results, total, err := s.pg.Search(q)
	if err != nil {
		log.Printf("search: postgres fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexWorkshop indexes a workshop (fire-and-forget to Meilisearch).
func (s *Service) IndexWorkshop(record WorkshopRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexWorkshop(record); err != nil {
			log.Printf("search: index workshop %s: %v", record.ID, err)
		}
	}()
}

// DeleteWorkshop removes a workshop from the index (fire-and-forget).
func (s *Service) DeleteWorkshop(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteWorkshop(id); err != nil {
			log.Printf("search: delete workshop %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes every workshop record to Meilisearch. Called during
// bootstrap when Meilisearch is healthy.
func (s *Service) ReindexAll(records []WorkshopRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if len(records) == 0 {
		return
	}
	if err := s.meili.IndexWorkshops(records); err != nil {
		log.Printf("search: reindex workshops: %v", err)
	}
}

func nonNil(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	return results
}
