package cache

import (
	"container/list"
	"sync"
	"time"

	"voicenotes/internal/models"
)

const MaxCacheSize = 150

type cacheEntry struct {
	id        int64
	note      *models.Note
	timestamp time.Time
}

// Cache is an LRU over notes keyed by id, backing point reads. It is
// dropped wholesale whenever the store reports a mutation; the snapshot
// feed makes finer invalidation pointless at this size.
type Cache struct {
	mu      sync.RWMutex
	items   map[int64]*list.Element
	order   *list.List
	maxSize int
}

func New() *Cache {
	return &Cache{
		items:   make(map[int64]*list.Element),
		order:   list.New(),
		maxSize: MaxCacheSize,
	}
}

func (c *Cache) Get(id int64) (*models.Note, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if elem, ok := c.items[id]; ok {
		entry := elem.Value.(*cacheEntry)
		return entry.note, true
	}
	return nil, false
}

func (c *Cache) Set(id int64, note *models.Note) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[id]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.note = note
		entry.timestamp = time.Now()
		return
	}

	if c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			entry := oldest.Value.(*cacheEntry)
			delete(c.items, entry.id)
			c.order.Remove(oldest)
		}
	}

	entry := &cacheEntry{
		id:        id,
		note:      note,
		timestamp: time.Now(),
	}
	elem := c.order.PushFront(entry)
	c.items[id] = elem
}

func (c *Cache) Invalidate(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[id]; ok {
		delete(c.items, id)
		c.order.Remove(elem)
	}
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[int64]*list.Element)
	c.order = list.New()
}
