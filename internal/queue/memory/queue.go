// Package memory provides the in-process URL queue drained by capture workers.
package memory

import (
	"errors"
	"sync"
)

// ErrAlreadyLoaded is returned when EnqueueAll is called more than once.
var ErrAlreadyLoaded = errors.New("queue already loaded")

// Queue is a load-once queue of unique URLs. After EnqueueAll the backing
// channel is closed, so TryDequeue never blocks: it either receives an item or
// observes the closed channel.
type Queue struct {
	mu     sync.Mutex
	ch     chan string
	total  int
	loaded bool
}

// NewQueue constructs an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// EnqueueAll loads the URL set, dropping exact duplicates, and returns the
// number of items enqueued.
func (q *Queue) EnqueueAll(urls []string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.loaded {
		return 0, ErrAlreadyLoaded
	}

	seen := make(map[string]struct{}, len(urls))
	unique := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		unique = append(unique, u)
	}

	ch := make(chan string, len(unique))
	for _, u := range unique {
		ch <- u
	}
	close(ch)

	q.ch = ch
	q.total = len(unique)
	q.loaded = true
	return len(unique), nil
}

// TryDequeue pops the next URL. It returns false when the queue is empty or
// has not been loaded yet.
func (q *Queue) TryDequeue() (string, bool) {
	q.mu.Lock()
	ch := q.ch
	q.mu.Unlock()

	select {
	case u, ok := <-ch:
		if !ok {
			return "", false
		}
		return u, true
	default:
		return "", false
	}
}

// Len returns the number of URLs still pending.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ch)
}

// Total returns the number of URLs loaded.
func (q *Queue) Total() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.total
}
