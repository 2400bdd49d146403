package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_InsertAndRetrieve(t *testing.T) {
	c := New[string]("test", 10)

	_, ok := c.Retrieve("a")
	assert.False(t, ok)

	c.Insert("a", "value-a", 1)
	c.Insert("b", "value-b", 2)
	assert.Equal(t, 3, c.GetWeight())
	assert.Equal(t, 10, c.GetBudget())

	value, ok := c.Retrieve("a")
	require.True(t, ok)
	assert.Equal(t, "value-a", value)

	// Inserting an existing key replaces its value and weight
	c.Insert("a", "value-a2", 4)
	value, ok = c.Retrieve("a")
	require.True(t, ok)
	assert.Equal(t, "value-a2", value)
	assert.Equal(t, 6, c.GetWeight())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int]("test", 3)

	c.Insert("a", 1, 1)
	c.Insert("b", 2, 1)
	c.Insert("c", 3, 1)

	// a becomes the most recently used, leaving b to be evicted
	_, ok := c.Retrieve("a")
	require.True(t, ok)

	c.Insert("d", 4, 1)
	assert.Equal(t, 3, c.GetWeight())

	_, ok = c.Retrieve("b")
	assert.False(t, ok)
	for _, key := range []string{"a", "c", "d"} {
		_, ok = c.Retrieve(key)
		assert.True(t, ok, key)
	}

	// A heavy item evicts as many items as needed
	c.Insert("e", 5, 3)
	assert.Equal(t, 3, c.GetWeight())
	for _, key := range []string{"a", "c", "d"} {
		_, ok = c.Retrieve(key)
		assert.False(t, ok, key)
	}
}

func TestCache_RemoveAndClear(t *testing.T) {
	c := New[int]("test", 10)

	c.Insert("a", 1, 2)
	c.Insert("b", 2, 3)

	c.Remove("a")
	c.Remove("missing")
	_, ok := c.Retrieve("a")
	assert.False(t, ok)
	assert.Equal(t, 3, c.GetWeight())

	c.Clear()
	_, ok = c.Retrieve("b")
	assert.False(t, ok)
	assert.Equal(t, 0, c.GetWeight())

	c.Insert("c", 3, 1)
	value, ok := c.Retrieve("c")
	require.True(t, ok)
	assert.Equal(t, 3, value)
}

func TestCache_Concurrency(t *testing.T) {
	c := New[int]("test", 50)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("%d-%d", i, j%20)
				c.Insert(key, j, 1)
				c.Retrieve(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.GetWeight(), 50)
}
