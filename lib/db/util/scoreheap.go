// Package util
//
// This file provides a specialized priority queue for eviction scoring.
//
// The implementation combines a binary heap with a hash map to provide both
// efficient priority-based operations and key-based access. The cache uses it
// to order entries by eviction score (lowest first) while still being able to
// drop a specific key when it is invalidated.
//
// Complexity:
//   - O(log n) for priority operations (Push, Pop, Update)
//   - O(1) for key-based lookups and existence checks
//   - O(log n) for key-based removal
//
// Concurrency: this implementation is not thread-safe; callers apply their
// own synchronization.
//
// Example usage:
//
//	h := NewScoreHeap()
//
//	// Add entries with their eviction scores
//	h.AddItem("user:1", 120.0)
//	h.AddItem("user:2", 3.5)
//
//	// Pop entries lowest score first
//	for h.Len() > 0 {
//	    key, score, _ := h.PopMin()
//	    // evict key
//	}
package util

import (
	"container/heap"
	"strconv"
)

// scoreItem is a single keyed entry ordered by its score
type scoreItem struct {
	Key   string  // Cache key of the entry
	Score float64 // Eviction score, lower means evict earlier
	index int     // Index in the heap, maintained by heap package
}

func (i *scoreItem) String() string {
	return "{Key: " + i.Key + ", Score: " + strconv.FormatFloat(i.Score, 'g', -1, 64) + "}"
}

// ScoreHeap implements a min-heap over keyed scores
// with both heap operations and key-based access
type ScoreHeap struct {
	items    []*scoreItem          // The actual heap slice
	itemsMap map[string]*scoreItem // Map for O(1) access by key
}

// NewScoreHeap creates a new empty score heap
func NewScoreHeap() *ScoreHeap {
	return &ScoreHeap{
		items:    make([]*scoreItem, 0),
		itemsMap: make(map[string]*scoreItem),
	}
}

// Len returns the number of items in the heap (part of heap.Interface)
func (sh *ScoreHeap) Len() int { return len(sh.items) }

// Less compares items by score, lowest first (part of heap.Interface)
func (sh *ScoreHeap) Less(i, j int) bool {
	return sh.items[i].Score < sh.items[j].Score
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (sh *ScoreHeap) Swap(i, j int) {
	sh.items[i], sh.items[j] = sh.items[j], sh.items[i]
	sh.items[i].index = i
	sh.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface)
func (sh *ScoreHeap) Push(x interface{}) {
	n := len(sh.items)
	item := x.(*scoreItem)
	item.index = n
	sh.items = append(sh.items, item)
	sh.itemsMap[item.Key] = item
}

// Pop removes and returns the minimum item (part of heap.Interface)
func (sh *ScoreHeap) Pop() interface{} {
	old := sh.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	item.index = -1 // For safety
	sh.items = old[:n-1]
	delete(sh.itemsMap, item.Key)
	return item
}

// AddItem adds a new keyed score or updates an existing one
func (sh *ScoreHeap) AddItem(key string, score float64) {
	// Check if item already exists
	if item, exists := sh.itemsMap[key]; exists {
		// Update score and fix heap
		item.Score = score
		heap.Fix(sh, item.index)
		return
	}

	// Create and add new item
	item := &scoreItem{
		Key:   key,
		Score: score,
	}
	heap.Push(sh, item)
}

// RemoveByKey removes an item by its key
func (sh *ScoreHeap) RemoveByKey(key string) (float64, bool) {
	item, exists := sh.itemsMap[key]
	if !exists {
		return 0, false
	}

	// Remove from heap
	heap.Remove(sh, item.index)
	return item.Score, true
}

// PopMin removes and returns the lowest-scoring key
func (sh *ScoreHeap) PopMin() (string, float64, bool) {
	if len(sh.items) == 0 {
		return "", 0, false
	}
	item := heap.Pop(sh).(*scoreItem)
	return item.Key, item.Score, true
}

// Peek returns the lowest-scoring key without removing it
func (sh *ScoreHeap) Peek() (string, float64, bool) {
	if len(sh.items) == 0 {
		return "", 0, false
	}
	return sh.items[0].Key, sh.items[0].Score, true
}

// Contains checks if a key exists in the heap
func (sh *ScoreHeap) Contains(key string) bool {
	_, exists := sh.itemsMap[key]
	return exists
}
