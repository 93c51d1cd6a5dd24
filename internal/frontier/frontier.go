// Package frontier implements the priority frontier for crawling:
// discovered-but-unvisited URLs ordered by scheduling priority, with
// insertion-order FIFO as the tie-break so equal-priority entries
// dequeue deterministically.
package frontier

import (
	"container/heap"
	"sort"
	"sync"
	"time"
)

// Entry is one discovered URL waiting in the frontier.
type Entry struct {
	// Normalized absolute URL
	URL string

	// Crawl depth (0 for the seed)
	Depth int

	// Scheduling priority; higher dequeues first
	Priority float64

	// The page this URL was discovered on (empty for the seed)
	Referer string

	// When this entry was discovered
	DiscoveredAt time.Time

	// Insertion sequence, assigned by the frontier
	seq uint64
}

// NewEntry creates a frontier entry.
func NewEntry(url string, depth int, priority float64, referer string) *Entry {
	return &Entry{
		URL:          url,
		Depth:        depth,
		Priority:     priority,
		Referer:      referer,
		DiscoveredAt: time.Now(),
	}
}

// Stats holds frontier counters.
type Stats struct {
	Queued      int
	Visited     int
	TotalAdded  int
	Duplicates  int
	CapDrops    int
	DepthCounts map[int]int
}

// Frontier is an in-memory priority frontier with a size cap. Safe
// for concurrent use, though the crawl loop drives it from a single
// goroutine.
type Frontier struct {
	mu          sync.RWMutex
	heap        entryHeap
	queued      map[string]struct{}
	visited     map[string]struct{}
	capacity    int
	nextSeq     uint64
	totalAdded  int
	duplicates  int
	capDrops    int
	depthCounts map[int]int
}

// New creates a frontier. A capacity of 0 means unbounded.
func New(capacity int) *Frontier {
	return &Frontier{
		heap:        make(entryHeap, 0),
		queued:      make(map[string]struct{}),
		visited:     make(map[string]struct{}),
		capacity:    capacity,
		depthCounts: make(map[int]int),
	}
}

// Push inserts an entry. It reports false when the URL is already
// queued or visited, or the frontier is full.
func (f *Frontier) Push(e *Entry) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.visited[e.URL]; exists {
		f.duplicates++
		return false
	}
	if _, exists := f.queued[e.URL]; exists {
		f.duplicates++
		return false
	}
	if f.capacity > 0 && f.heap.Len() >= f.capacity {
		f.capDrops++
		return false
	}

	e.seq = f.nextSeq
	f.nextSeq++

	heap.Push(&f.heap, e)
	f.queued[e.URL] = struct{}{}
	f.totalAdded++
	f.depthCounts[e.Depth]++
	return true
}

// Pop removes and returns the highest-priority entry, breaking ties
// by insertion order. Returns nil when the frontier is empty.
func (f *Frontier) Pop() *Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.heap.Len() == 0 {
		return nil
	}

	e := heap.Pop(&f.heap).(*Entry)
	delete(f.queued, e.URL)
	return e
}

// Peek returns the next entry without removing it.
func (f *Frontier) Peek() *Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.heap.Len() == 0 {
		return nil
	}
	return f.heap[0]
}

// Len returns the number of queued entries.
func (f *Frontier) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.heap.Len()
}

// IsEmpty reports whether the frontier has no queued entries.
func (f *Frontier) IsEmpty() bool {
	return f.Len() == 0
}

// Contains reports whether the URL is queued or already visited.
func (f *Frontier) Contains(url string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if _, exists := f.visited[url]; exists {
		return true
	}
	_, exists := f.queued[url]
	return exists
}

// MarkVisited records a URL as visited, blocking future pushes of it.
func (f *Frontier) MarkVisited(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visited[url] = struct{}{}
}

// HasVisited reports whether a URL was marked visited.
func (f *Frontier) HasVisited(url string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, exists := f.visited[url]
	return exists
}

// VisitedCount returns the number of visited URLs.
func (f *Frontier) VisitedCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.visited)
}

// VisitedURLs returns the visited set, sorted. Used for checkpointing.
func (f *Frontier) VisitedURLs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	urls := make([]string, 0, len(f.visited))
	for url := range f.visited {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// Drain removes and returns all queued entries in priority order,
// leaving the frontier empty.
func (f *Frontier) Drain() []*Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := make([]*Entry, 0, f.heap.Len())
	for f.heap.Len() > 0 {
		e := heap.Pop(&f.heap).(*Entry)
		delete(f.queued, e.URL)
		entries = append(entries, e)
	}
	return entries
}

// Snapshot returns the queued entries without removing them, in the
// order they would dequeue. Used for checkpointing.
func (f *Frontier) Snapshot() []*Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries := make([]*Entry, len(f.heap))
	copy(entries, f.heap)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		return entries[i].seq < entries[j].seq
	})
	return entries
}

// Stats returns a copy of the frontier counters.
func (f *Frontier) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	depthCounts := make(map[int]int, len(f.depthCounts))
	for depth, count := range f.depthCounts {
		depthCounts[depth] = count
	}

	return Stats{
		Queued:      f.heap.Len(),
		Visited:     len(f.visited),
		TotalAdded:  f.totalAdded,
		Duplicates:  f.duplicates,
		CapDrops:    f.capDrops,
		DepthCounts: depthCounts,
	}
}

// entryHeap orders entries by descending priority, then ascending
// insertion sequence.
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x interface{}) {
	*h = append(*h, x.(*Entry))
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
