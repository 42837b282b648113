package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/intent/internal/contracts"
)

func TestDueQueue_Order(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	q := newDueQueue()

	q.schedule(pairKey{"b.com", contracts.SourceNews}, base)
	q.schedule(pairKey{"a.com", contracts.SourceNews}, base)
	q.schedule(pairKey{"a.com", contracts.SourceCommunity}, base)
	q.schedule(pairKey{"c.com", contracts.SourceNews}, base.Add(time.Minute))
	q.schedule(pairKey{"d.com", contracts.SourceNews}, base.Add(-time.Minute))

	var got []pairKey
	for {
		key, ok := q.popDue(base)
		if !ok {
			break
		}
		got = append(got, key)
	}

	assert.Equal(t, []pairKey{
		{"d.com", contracts.SourceNews},
		{"a.com", contracts.SourceCommunity},
		{"a.com", contracts.SourceNews},
		{"b.com", contracts.SourceNews},
	}, got)
	assert.Equal(t, 1, q.Len(), "c.com is not due yet")
}

func TestDueQueue_RescheduleAndRemove(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	q := newDueQueue()
	a := pairKey{"a.com", contracts.SourceNews}
	b := pairKey{"b.com", contracts.SourceNews}

	q.schedule(a, base)
	q.schedule(b, base.Add(time.Hour))
	q.schedule(a, base.Add(2*time.Hour))

	key, ok := q.popDue(base.Add(time.Hour))
	assert.True(t, ok)
	assert.Equal(t, b, key)

	q.remove(a)
	assert.False(t, q.contains(a))
	_, ok = q.popDue(base.Add(24 * time.Hour))
	assert.False(t, ok)
}
