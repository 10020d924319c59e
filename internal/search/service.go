package search

import "log"

// Service is the nil-safe facade the app layer talks to. A nil *Service or a
// missing/unhealthy Meilisearch simply reports no results, and the caller
// falls back to the store.
type Service struct {
	meili *Meili
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili *Meili) *Service {
	return &Service{meili: meili}
}

// Search returns indexed matches and whether the index was able to answer.
// ok == false means the caller must use its store fallback.
func (s *Service) Search(q Query) ([]CaseRecord, bool) {
	if s == nil || s.meili == nil || !s.meili.Healthy() {
		return nil, false
	}
	records, err := s.meili.Search(q)
	if err != nil {
		log.Printf("search: meilisearch error, falling back to store: %v", err)
		return nil, false
	}
	return records, true
}

// IndexCase indexes a case (fire-and-forget).
func (s *Service) IndexCase(record CaseRecord) {
	if s == nil || s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexCase(record); err != nil {
			log.Printf("search: index case %s: %v", record.ID, err)
		}
	}()
}

// RemoveCase drops a case from the index (fire-and-forget).
func (s *Service) RemoveCase(id string) {
	if s == nil || s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteCase(id); err != nil {
			log.Printf("search: delete case %s: %v", id, err)
		}
	}()
}
