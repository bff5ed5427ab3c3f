package completion

import (
	"encoding/json"
	"sync"

	"lspadapter/internal/engine"
	"lspadapter/internal/uri"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// ResolveIndex identifies one candidate of one completion response. It
// travels to the client as the item's data and comes back on resolve.
type ResolveIndex struct {
	RequestID int64 `json:"completionId"`
	Index     int   `json:"index"`
}

// DecodeResolveIndex reads a ResolveIndex from an item's data field as it
// arrives from the client.
func DecodeResolveIndex(data any) (ResolveIndex, error) {
	var idx ResolveIndex
	if data == nil {
		return idx, engine.NotFoundf("completion item carries no resolve data")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return idx, engine.Mark(engine.ErrNotFound, err)
	}
	if err := json.Unmarshal(raw, &idx); err != nil {
		return idx, engine.Mark(engine.ErrNotFound, err)
	}
	if idx.RequestID <= 0 || idx.Index < 0 {
		return idx, engine.NotFoundf("invalid resolve data %s", raw)
	}
	return idx, nil
}

type resolveEntry struct {
	document   string
	candidates []Candidate
}

// ResolveCache keeps the candidate arrays of recent completion responses.
// Only the newest response per document is kept, and at most capacity
// responses overall.
type ResolveCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[int64]*resolveEntry
	order    []int64
	latest   map[string]int64
}

func NewResolveCache(capacity int) *ResolveCache {
	if capacity < 1 {
		capacity = 1
	}
	return &ResolveCache{
		capacity: capacity,
		entries:  make(map[int64]*resolveEntry),
		latest:   make(map[string]int64),
	}
}

// Put stores the candidates of request id, superseding the previous
// request for the same document. A Put for an id older than the one
// already stored for the document is dropped.
func (c *ResolveCache) Put(document protocol.DocumentUri, id int64, candidates []Candidate) {
	doc := uri.Normalize(document)

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.latest[doc]; ok {
		if prev > id {
			return
		}
		c.removeLocked(prev)
	}
	c.entries[id] = &resolveEntry{document: doc, candidates: candidates}
	c.order = append(c.order, id)
	c.latest[doc] = id

	for len(c.order) > c.capacity {
		c.removeLocked(c.order[0])
	}
}

// Lookup returns the candidate idx points at.
func (c *ResolveCache) Lookup(idx ResolveIndex) (Candidate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[idx.RequestID]
	if !ok {
		return Candidate{}, engine.NotFoundf("completion %d is no longer cached", idx.RequestID)
	}
	if idx.Index < 0 || idx.Index >= len(e.candidates) {
		return Candidate{}, engine.NotFoundf("completion %d has no item %d", idx.RequestID, idx.Index)
	}
	return e.candidates[idx.Index], nil
}

// Forget drops the cached response for a closed document.
func (c *ResolveCache) Forget(document protocol.DocumentUri) {
	doc := uri.Normalize(document)

	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.latest[doc]; ok {
		c.removeLocked(id)
	}
}

// Len returns the number of cached responses.
func (c *ResolveCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResolveCache) removeLocked(id int64) {
	e, ok := c.entries[id]
	if !ok {
		return
	}
	delete(c.entries, id)
	if c.latest[e.document] == id {
		delete(c.latest, e.document)
	}
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
