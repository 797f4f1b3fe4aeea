package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sol-txflow/internal/logic/txn"
)

func TestFeeCache_InsertOrdered(t *testing.T) {
	fc := NewFeeCache(time.Minute)
	fc.Insert([]txn.PrioritizationFee{{Slot: 5, MicroLamports: 50}, {Slot: 3, MicroLamports: 30}, {Slot: 4, MicroLamports: 40}})
	fc.Insert([]txn.PrioritizationFee{{Slot: 4, MicroLamports: 44}})

	assert.Equal(t, []txn.PrioritizationFee{{Slot: 3, MicroLamports: 30}, {Slot: 4, MicroLamports: 44}, {Slot: 5, MicroLamports: 50}}, fc.samples)
	slot, n := fc.Latest()
	assert.Equal(t, uint64(5), slot)
	assert.Equal(t, 3, n)
}

func TestFeeCache_Median(t *testing.T) {
	now := time.Unix(1000, 0)
	fc := NewFeeCache(10 * time.Second)
	fc.now = func() time.Time { return now }

	_, ok := fc.MedianPriorityFee()
	assert.False(t, ok)

	fc.Insert([]txn.PrioritizationFee{{Slot: 1}, {Slot: 2}})
	_, ok = fc.MedianPriorityFee()
	assert.False(t, ok, "all zero samples carry no price")

	fc.Insert([]txn.PrioritizationFee{{Slot: 3, MicroLamports: 100}, {Slot: 4, MicroLamports: 300}, {Slot: 5, MicroLamports: 200}})
	median, ok := fc.MedianPriorityFee()
	assert.True(t, ok)
	assert.Equal(t, uint64(200), median)

	now = now.Add(11 * time.Second)
	_, ok = fc.MedianPriorityFee()
	assert.False(t, ok, "stale")
}

func TestFeeCache_Capacity(t *testing.T) {
	fc := NewFeeCache(time.Minute)
	points := make([]txn.PrioritizationFee, 0, 450)
	for i := 1; i <= 450; i++ {
		points = append(points, txn.PrioritizationFee{Slot: uint64(i), MicroLamports: 1})
	}
	fc.Insert(points)
	slot, n := fc.Latest()
	assert.Equal(t, uint64(450), slot)
	assert.Equal(t, 300, n)
	assert.Equal(t, uint64(151), fc.samples[0].Slot)
}
