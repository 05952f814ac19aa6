package client

import "sync"

type closer interface{ Close() }

// StreamCache holds the lazily created multicast streams of one facade, one per
// accessor.
type StreamCache struct {
	mu      sync.Mutex
	streams map[string]closer
}

// Cached returns the stream cached under key, building it on first use. Concurrent
// first calls build it once.
func Cached[T any](c *StreamCache, key string, build func() *Multicast[T]) *Multicast[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.streams[key]; ok {
		return s.(*Multicast[T])
	}
	if c.streams == nil {
		c.streams = make(map[string]closer)
	}
	m := build()
	c.streams[key] = m
	return m
}

// Len returns the number of streams built so far.
func (c *StreamCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

// Close cancels every cached stream and ends its listeners with ErrStreamClosed.
// Cached streams stay usable: a new listener reopens the remote call.
func (c *StreamCache) Close() {
	c.mu.Lock()
	streams := make([]closer, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	c.mu.Unlock()

	for _, s := range streams {
		s.Close()
	}
}
