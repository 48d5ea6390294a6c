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

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/egx/services/extract/egraph"
)

func TestUniqueQueue(t *testing.T) {
	q := NewUniqueQueue(4)
	assert.True(t, q.Insert("a"))
	assert.True(t, q.Insert("b"))
	assert.False(t, q.Insert("a"))
	assert.Equal(t, 2, q.Len())

	id, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, egraph.NodeID("a"), id)

	// Popped ids may be queued again.
	assert.True(t, q.Insert("a"))
	id, _ = q.Pop()
	assert.Equal(t, egraph.NodeID("b"), id)
	id, _ = q.Pop()
	assert.Equal(t, egraph.NodeID("a"), id)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestUniqueQueue_Compacts(t *testing.T) {
	q := NewUniqueQueue(0)
	for i := 0; i < 5000; i++ {
		q.Insert(egraph.NodeID(fmt.Sprintf("n%d", i)))
	}
	for i := 0; i < 4000; i++ {
		_, ok := q.Pop()
		require.True(t, ok)
	}
	assert.Equal(t, 1000, q.Len())
	assert.Less(t, len(q.items), 5000)
}

func TestBudget_VisitLimit(t *testing.T) {
	b := NewBudget(context.Background(), BudgetConfig{MaxVisits: 3})
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Visit())
	}
	assert.ErrorIs(t, b.Visit(), ErrVisitLimitExceeded)
	assert.ErrorIs(t, b.Visit(), ErrBudgetExhausted)
	assert.True(t, b.Exhausted())
	assert.Equal(t, "visits", b.ExhaustedBy())
	assert.Contains(t, b.String(), "EXHAUSTED by visits")
}

func TestBudget_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBudget(ctx, BudgetConfig{})
	var err error
	for i := 0; i < timeCheckInterval && err == nil; i++ {
		err = b.Visit()
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "context", b.ExhaustedBy())
}

func TestBudgetConfig_Unlimited(t *testing.T) {
	assert.True(t, BudgetConfig{}.Unlimited())
	assert.False(t, BudgetConfig{MaxVisits: 1}.Unlimited())
}
