package cache

import (
	"time"
)

// recentlyViewedLimit caps each type's recently viewed shadow list.
const recentlyViewedLimit = 10

// Collection is the cache entry wrapper for one entity type.
// A nil LastFetch means the data must be refetched before it is trusted.
type Collection[T any] struct {
	LastFetch *time.Time `json:"last_fetch"`
	Data      []T        `json:"data"`
	Total     int        `json:"total"`
}

type entity interface {
	EntityID() int64
}

// collection holds one entity type's cached list and its shadow lists.
// It is not safe for concurrent use; Store serializes access.
type collection[T entity] struct {
	lastFetch *time.Time
	// removed holds ids already subtracted from total since the last set.
	removed map[int64]struct{}
	items   []T
	viewed  []T
	total   int
}

func (c *collection[T]) set(items []T, total int, now time.Time) {
	c.items = append([]T(nil), items...)
	c.total = max(total, 0)
	c.removed = nil
	stamp := now
	c.lastFetch = &stamp

	// The shadow list follows the fresh data.
	for i := range c.viewed {
		if idx := c.index(c.viewed[i].EntityID()); idx >= 0 {
			c.viewed[i] = c.items[idx]
		}
	}
}

func (c *collection[T]) index(id int64) int {
	for i := range c.items {
		if c.items[i].EntityID() == id {
			return i
		}
	}
	return -1
}

func (c *collection[T]) get(id int64) (T, bool) {
	if idx := c.index(id); idx >= 0 {
		return c.items[idx], true
	}
	for _, v := range c.viewed {
		if v.EntityID() == id {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// update applies fn to every cached copy of id and reports whether any existed.
func (c *collection[T]) update(id int64, fn func(*T)) bool {
	found := false
	for i := range c.items {
		if c.items[i].EntityID() == id {
			fn(&c.items[i])
			found = true
		}
	}
	for i := range c.viewed {
		if c.viewed[i].EntityID() == id {
			fn(&c.viewed[i])
			found = true
		}
	}
	return found
}

// remove drops id from every list and decrements the total, floored at zero.
// The total counts backend rows beyond the cached page, so an id that was never
// cached still decrements it; removing the same id again does not.
func (c *collection[T]) remove(id int64) {
	c.items = without(c.items, id)
	c.viewed = without(c.viewed, id)
	if _, done := c.removed[id]; done {
		return
	}
	if c.removed == nil {
		c.removed = make(map[int64]struct{})
	}
	c.removed[id] = struct{}{}
	if c.total > 0 {
		c.total--
	}
}

// view puts item at the head of the shadow list. A main-list copy of the same
// entity is replaced too, since item was just read from the backend.
func (c *collection[T]) view(item T) {
	delete(c.removed, item.EntityID())
	if idx := c.index(item.EntityID()); idx >= 0 {
		c.items[idx] = item
	}
	c.viewed = without(c.viewed, item.EntityID())
	c.viewed = append([]T{item}, c.viewed...)
	if len(c.viewed) > recentlyViewedLimit {
		c.viewed = c.viewed[:recentlyViewedLimit]
	}
}

func (c *collection[T]) snapshot() Collection[T] {
	out := Collection[T]{
		Data:  append([]T(nil), c.items...),
		Total: c.total,
	}
	if c.lastFetch != nil {
		stamp := *c.lastFetch
		out.LastFetch = &stamp
	}
	return out
}

func (c *collection[T]) restore(in Collection[T]) {
	c.items = append([]T(nil), in.Data...)
	c.total = max(in.Total, 0)
	c.removed = nil
	c.lastFetch = nil
	if in.LastFetch != nil {
		stamp := *in.LastFetch
		c.lastFetch = &stamp
	}
}

func without[T entity](list []T, id int64) []T {
	out := list[:0:0]
	for _, v := range list {
		if v.EntityID() != id {
			out = append(out, v)
		}
	}
	return out
}
