package sync

import (
	"testing"

	"github.com/google/uuid"
)

func TestSeenCacheRemembers(t *testing.T) {
	c := newSeenCache(10)
	id := uuid.New()

	if c.Contains(id) {
		t.Fatalf("Expected fresh cache not to contain id")
	}
	c.Add(id)
	if !c.Contains(id) {
		t.Errorf("Expected cache to contain added id")
	}

	// Re-adding must not grow the cache
	c.Add(id)
	if c.Len() != 1 {
		t.Errorf("Expected length 1 after duplicate add, got %d", c.Len())
	}
}

func TestSeenCacheEvictsLRU(t *testing.T) {
	c := newSeenCache(3)

	first := uuid.New()
	c.Add(first)
	second := uuid.New()
	c.Add(second)
	third := uuid.New()
	c.Add(third)

	// Touch first so second becomes the eviction candidate
	c.Add(first)
	c.Add(uuid.New())

	if c.Contains(second) {
		t.Errorf("Expected least recently seen id to be evicted")
	}
	if !c.Contains(first) || !c.Contains(third) {
		t.Errorf("Expected recently seen ids to survive eviction")
	}
	if c.Len() != 3 {
		t.Errorf("Expected length capped at 3, got %d", c.Len())
	}
}
