package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxRequests = "ndtdesk_requests"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the requests index.
// An unreachable server is tolerated; the health loop will pick it up later.
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
		Uid:        idxRequests,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxRequests, err)
	}

	index := m.client.Index(idxRequests)
	searchable := []string{"request_number", "order_number", "drawing", "material", "protocol_number", "notes"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxRequests, err)
	}
	filterable := []interface{}{"status_name", "executor_name"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxRequests, err)
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

// Search queries the requests index.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	resp, err := m.client.Index(idxRequests).Search(q.Text, &meili.SearchRequest{
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"*"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		RequestNumber: decodeString(hit, "request_number"),
		OrderNumber:   decodeString(hit, "order_number"),
		Drawing:       decodeString(hit, "drawing"),
		StatusName:    decodeString(hit, "status_name"),
		ExecutorName:  decodeString(hit, "executor_name"),
	}
	r.ID = decodeID(hit)
	r.Snippet = firstNonBlank(
		decodeFormattedString(hit, "notes"),
		decodeFormattedString(hit, "drawing"),
		decodeFormattedString(hit, "order_number"),
	)
	return r
}

func decodeID(hit meili.Hit) int64 {
	raw, ok := hit["id"]
	if !ok {
		return 0
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		parsed, _ := strconv.ParseInt(s, 10, 64)
		return parsed
	}
	return 0
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

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexRequest adds or updates a request in the search index.
func (m *Meili) IndexRequest(record RequestRecord) error {
	_, err := m.client.Index(idxRequests).AddDocuments([]RequestRecord{record}, nil)
	return err
}

// DeleteRequest removes a request from the search index.
func (m *Meili) DeleteRequest(id int64) error {
	_, err := m.client.Index(idxRequests).DeleteDocument(strconv.FormatInt(id, 10), nil)
	return err
}

// IndexRequests bulk-indexes requests.
func (m *Meili) IndexRequests(records []RequestRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxRequests).AddDocuments(records, nil)
	return err
}
