// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extractor

import "github.com/AleutianAI/egx/services/extract/egraph"

// UniqueQueue is a FIFO of node ids that ignores an insert while the same
// id is already pending. A popped id may be inserted again.
type UniqueQueue struct {
	items   []egraph.NodeID
	head    int
	pending map[egraph.NodeID]struct{}
}

// NewUniqueQueue creates a queue with room for capacity ids.
func NewUniqueQueue(capacity int) *UniqueQueue {
	return &UniqueQueue{
		items:   make([]egraph.NodeID, 0, capacity),
		pending: make(map[egraph.NodeID]struct{}, capacity),
	}
}

// Insert enqueues id unless it is already pending. Reports whether it was
// added.
func (q *UniqueQueue) Insert(id egraph.NodeID) bool {
	if _, ok := q.pending[id]; ok {
		return false
	}
	q.pending[id] = struct{}{}
	q.items = append(q.items, id)
	return true
}

// Pop removes the oldest pending id.
func (q *UniqueQueue) Pop() (egraph.NodeID, bool) {
	if q.head >= len(q.items) {
		return "", false
	}
	id := q.items[q.head]
	q.items[q.head] = ""
	q.head++
	delete(q.pending, id)
	// Compact once the consumed prefix dominates.
	if q.head > 1024 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return id, true
}

// Len returns the number of pending ids.
func (q *UniqueQueue) Len() int {
	return len(q.items) - q.head
}

// Shuffle permutes the pending ids with swap, typically rand.Shuffle's
// callback signature bound to a private generator.
func (q *UniqueQueue) Shuffle(shuffle func(n int, swap func(i, j int))) {
	pending := q.items[q.head:]
	shuffle(len(pending), func(i, j int) { pending[i], pending[j] = pending[j], pending[i] })
}
