// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/egx/services/extract/egraph"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker() (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := NewBreaker(DefaultBreakerConfig())
	b.now = clock.now
	b.lastStateChange = clock.now()
	return b, clock
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker()

	for i := 0; i < 2; i++ {
		ok, _ := b.Allow()
		require.True(t, ok)
		b.RecordFailure()
		assert.Equal(t, BreakerClosed, b.State())
	}
	ok, _ := b.Allow()
	require.True(t, ok)
	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())

	ok, _ = b.Allow()
	assert.False(t, ok)
	assert.Equal(t, int64(1), b.Stats().TotalRejections)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker()
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, clock := newTestBreaker()
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, BreakerOpen, b.State())

	clock.advance(29 * time.Second)
	ok, _ := b.Allow()
	assert.False(t, ok)

	clock.advance(time.Second)
	ok, release := b.Allow()
	require.True(t, ok)
	require.NotNil(t, release)
	assert.Equal(t, BreakerHalfOpen, b.State())

	// Only one probe at a time.
	second, _ := b.Allow()
	assert.False(t, second)

	b.RecordSuccess()
	release()
	assert.Equal(t, BreakerHalfOpen, b.State())

	ok, release = b.Allow()
	require.True(t, ok)
	b.RecordSuccess()
	release()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker()
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clock.advance(31 * time.Second)
	ok, release := b.Allow()
	require.True(t, ok)
	b.RecordFailure()
	release()
	assert.Equal(t, BreakerOpen, b.State())

	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestGuard(t *testing.T) {
	calls := 0
	inner := Func(func(context.Context, Candidate) (egraph.Cost, error) {
		calls++
		return egraph.Infinity, errors.New("down")
	})
	b, _ := newTestBreaker()
	g := Guard(inner, b)
	c := Candidate{ID: "x"}

	for i := 0; i < 3; i++ {
		_, err := g.Evaluate(context.Background(), c)
		require.Error(t, err)
	}
	assert.Equal(t, 3, calls)

	cost, err := g.Evaluate(context.Background(), c)
	assert.True(t, cost.IsInf())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, KindBreaker, KindOf(err))
	assert.Equal(t, 3, calls)
}

func TestGuard_InvalidCandidatesDoNotTrip(t *testing.T) {
	inner := Func(func(_ context.Context, c Candidate) (egraph.Cost, error) {
		return egraph.Infinity, newError("func", c, KindInvalid, ErrInvalidCandidate)
	})
	b, _ := newTestBreaker()
	g := Guard(inner, b)
	for i := 0; i < 5; i++ {
		_, err := g.Evaluate(context.Background(), Candidate{ID: "x"})
		require.ErrorIs(t, err, ErrInvalidCandidate)
	}
	assert.Equal(t, BreakerClosed, b.State())
}

func TestWireCodec(t *testing.T) {
	codec := wireCodec{}
	in := &CircuitFiles{EdgeList: "0 1\n", NodeCSV: "id,class\n", Summary: `{"classes":2}`}
	data, err := codec.Marshal(in)
	require.NoError(t, err)

	var out CircuitFiles
	require.NoError(t, codec.Unmarshal(data, &out))
	assert.Equal(t, *in, out)

	// Unknown fields are skipped and a double delay is accepted.
	var raw []byte
	raw = appendString(raw, 9, "ignored")
	raw = append(raw, 0x09) // field 1, fixed64
	raw = append(raw, 0, 0, 0, 0, 0, 0, 0x29, 0x40)
	var reply DelayReply
	require.NoError(t, codec.Unmarshal(raw, &reply))
	assert.Equal(t, 12.5, reply.Delay)

	_, err = codec.Marshal("nope")
	assert.Error(t, err)
}

func TestLRUCache_Evicts(t *testing.T) {
	c := newLRUCache[string, int](2)
	c.set("a", 1)
	c.set("b", 2)
	_, _ = c.get("a")
	c.set("c", 3)

	_, ok := c.get("b")
	assert.False(t, ok)
	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, int64(1), c.evictions.Load())
	assert.Equal(t, 2, c.len())
}
