package search

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxCases = "orienta_cases"

// Meili wraps the Meilisearch client behind a health gate.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the cases index. The
// client is usable even when the initial connection fails; a background loop
// flips it healthy once the server comes back.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxCases,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxCases, err)
	}

	index := m.client.Index(idxCases)
	filterable := []interface{}{"ownerId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxCases, err)
	}
	searchable := []string{"initials", "institution", "searchKey"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxCases, err)
	}
	sortable := []string{"updatedAt"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		log.Printf("search: update sortable attrs for %s: %v", idxCases, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search runs an owner-scoped free-text query against the cases index.
func (m *Meili) Search(q Query) ([]CaseRecord, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 50
	}

	resp, err := m.client.Index(idxCases).Search(q.Text, &meili.SearchRequest{
		Limit:  limit,
		Filter: []string{fmt.Sprintf("ownerId = %q", q.OwnerID)},
		Sort:   []string{"updatedAt:desc"},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	records := make([]CaseRecord, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		records = append(records, hitToRecord(hit))
	}
	return records, nil
}

func hitToRecord(hit meili.Hit) CaseRecord {
	return CaseRecord{
		ID:          decodeString(hit, "id"),
		OwnerID:     decodeString(hit, "ownerId"),
		Initials:    decodeString(hit, "initials"),
		Institution: decodeString(hit, "institution"),
		SearchKey:   decodeString(hit, "searchKey"),
		UpdatedAt:   decodeTime(hit, "updatedAt"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeTime(hit meili.Hit, key string) time.Time {
	raw, ok := hit[key]
	if !ok {
		return time.Time{}
	}
	var t time.Time
	if err := json.Unmarshal(raw, &t); err == nil {
		return t
	}
	return time.Time{}
}

// IndexCase adds or updates a case in the search index.
func (m *Meili) IndexCase(record CaseRecord) error {
	_, err := m.client.Index(idxCases).AddDocuments([]CaseRecord{record}, nil)
	return err
}

// DeleteCase removes a case from the search index.
func (m *Meili) DeleteCase(id string) error {
	_, err := m.client.Index(idxCases).DeleteDocument(id, nil)
	return err
}
