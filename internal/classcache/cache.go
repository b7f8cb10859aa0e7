// Package classcache maintains a size-bounded cache of class-file bytes.
// Sandboxed method callers share one instance so repeated evaluations of
// breakpoints in the same classes do not refetch class files from the
// runtime.
package classcache

import (
	"container/list"
	"sync"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"github.com/lamprey-dbg/lamprey/internal/jvmti"
)

// Cache is a least-recently-used byte cache keyed by class handle. Safe
// for concurrent use.
type Cache struct {
	introspector jvmti.Introspector
	logger       zerolog.Logger
	maxBytes     int64

	mu       sync.Mutex
	curBytes int64
	index    map[jvmti.ClassID]*list.Element
	lru      *list.List // front is most recently used
}

type cacheEntry struct {
	class jvmti.ClassID
	data  []byte
	sum   uint64
}

// New creates a cache with the given byte budget.
func New(introspector jvmti.Introspector, maxBytes int64, logger zerolog.Logger) *Cache {
	return &Cache{
		introspector: introspector,
		logger:       logger.With().Str("component", "class_files_cache").Logger(),
		maxBytes:     maxBytes,
		index:        make(map[jvmti.ClassID]*list.Element),
		lru:          list.New(),
	}
}

// ClassFile returns the class-file bytes for class and their xxh3 content
// hash. The hash identifies identical class bytes across handle
// generations. Callers must not modify the returned slice.
func (c *Cache) ClassFile(class jvmti.ClassID) ([]byte, uint64, error) {
	c.mu.Lock()
	if elem, ok := c.index[class]; ok {
		c.lru.MoveToFront(elem)
		e := elem.Value.(*cacheEntry)
		c.mu.Unlock()
		return e.data, e.sum, nil
	}
	c.mu.Unlock()

	// Fetch without the lock; class-file retrieval can be slow.
	data, err := c.introspector.ClassFile(class)
	if err != nil {
		return nil, 0, err
	}
	sum := xxh3.Hash(data)

	if int64(len(data)) > c.maxBytes {
		c.logger.Debug().Uint64("class", uint64(class)).Int("bytes", len(data)).
			Msg("class file exceeds cache budget, serving uncached")
		return data, sum, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A concurrent fetch may have inserted the class already.
	if elem, ok := c.index[class]; ok {
		c.lru.MoveToFront(elem)
		e := elem.Value.(*cacheEntry)
		return e.data, e.sum, nil
	}

	c.index[class] = c.lru.PushFront(&cacheEntry{class: class, data: data, sum: sum})
	c.curBytes += int64(len(data))
	for c.curBytes > c.maxBytes {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		e := oldest.Value.(*cacheEntry)
		c.lru.Remove(oldest)
		delete(c.index, e.class)
		c.curBytes -= int64(len(e.data))
	}
	return data, sum, nil
}

// Stats reports the number of cached class files and their total size.
func (c *Cache) Stats() (entries int, bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index), c.curBytes
}
