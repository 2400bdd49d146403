package cache

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Cache is a weighted least recently used cache. Items are evicted, least
// recently used first, once the total weight exceeds the budget.
type Cache[V any] interface {
	// GetWeight returns the current total weight of cached items
	GetWeight() int

	// GetBudget returns the weight budget
	GetBudget() int

	// Insert stores the value under the key, replacing any existing value
	Insert(key string, value V, weight int)

	// Retrieve returns the value stored under the key, marking it as recently
	// used
	Retrieve(key string) (V, bool)

	// Remove drops the value stored under the key, if any
	Remove(key string)

	// Clear drops every cached value
	Clear()
}

type node[V any] struct {
	next   *node[V]
	prev   *node[V]
	key    string
	value  V
	weight int
}

type cache[V any] struct {
	log *logrus.Entry

	mu     sync.Mutex
	head   *node[V]
	tail   *node[V]
	lookup map[string]*node[V]
	weight int
	budget int
}

// New returns a new cache with the provided weight budget.
func New[V any](name string, budget int) Cache[V] {
	return &cache[V]{
		log:    logrus.StandardLogger().WithFields(logrus.Fields{"type": "cache", "name": name}),
		lookup: make(map[string]*node[V]),
		budget: budget,
	}
}

func (c *cache[V]) GetWeight() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.weight
}

func (c *cache[V]) GetBudget() int {
	return c.budget
}

func (c *cache[V]) Insert(key string, value V, weight int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.lookup[key]; ok {
		c.unlink(existing)
		c.weight -= existing.weight
		delete(c.lookup, key)
	}

	n := &node[V]{
		key:    key,
		value:  value,
		weight: weight,
	}
	c.pushFront(n)
	c.lookup[key] = n
	c.weight += weight

	for c.weight > c.budget && c.tail != nil {
		evicted := c.tail
		c.unlink(evicted)
		c.weight -= evicted.weight
		delete(c.lookup, evicted.key)

		c.log.WithFields(logrus.Fields{
			"key":          evicted.key,
			"weight":       evicted.weight,
			"spare_weight": c.budget - c.weight,
		}).Trace("evicted")
	}
}

func (c *cache[V]) Retrieve(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.lookup[key]
	if !ok {
		var zero V
		return zero, false
	}

	if n != c.head {
		c.unlink(n)
		c.pushFront(n)
	}

	return n.value, true
}

func (c *cache[V]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.lookup[key]
	if !ok {
		return
	}

	c.unlink(n)
	c.weight -= n.weight
	delete(c.lookup, key)
}

func (c *cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.head = nil
	c.tail = nil
	c.lookup = make(map[string]*node[V])
	c.weight = 0
}

func (c *cache[V]) pushFront(n *node[V]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *cache[V]) unlink(n *node[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.next = nil
	n.prev = nil
}
