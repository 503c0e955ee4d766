package scheduler

import (
	"time"
)

// DefaultSlotDuration is the placement granularity used by WithStaggering.
const DefaultSlotDuration = 15 * time.Minute

// BucketMap counts upcoming fire times per fixed-width time slot, so new
// interval jobs can be anchored in the least busy slot.
type BucketMap struct {
	slot      time.Duration
	slots     map[int64]int
	jobToSlot map[string]int64
}

// NewBucketMap creates an empty BucketMap. A non-positive slot uses DefaultSlotDuration.
func NewBucketMap(slot time.Duration) *BucketMap {
	if slot <= 0 {
		slot = DefaultSlotDuration
	}
	return &BucketMap{
		slot:      slot,
		slots:     make(map[int64]int),
		jobToSlot: make(map[string]int64),
	}
}

// SlotKey converts a time to its slot key. Times in the same slot share a key.
func (b *BucketMap) SlotKey(t time.Time) int64 {
	return t.UnixNano() / int64(b.slot)
}

// SlotTime converts a slot key back to its start time (UTC).
func (b *BucketMap) SlotTime(key int64) time.Time {
	return time.Unix(0, key*int64(b.slot)).UTC()
}

// AddJob records jobID as firing at t, moving it if it was already placed.
func (b *BucketMap) AddJob(jobID string, t time.Time) {
	b.RemoveJob(jobID)

	key := b.SlotKey(t)
	b.slots[key]++
	b.jobToSlot[jobID] = key
}

// RemoveJob forgets jobID.
func (b *BucketMap) RemoveJob(jobID string) {
	key, ok := b.jobToSlot[jobID]
	if !ok {
		return
	}
	b.slots[key]--
	if b.slots[key] <= 0 {
		delete(b.slots, key)
	}
	delete(b.jobToSlot, jobID)
}

// Load returns the number of jobs placed in the slot containing t.
func (b *BucketMap) Load(t time.Time) int {
	return b.slots[b.SlotKey(t)]
}

// FindLeastLoaded returns the start of the least loaded slot that begins in
// [from, to). Ties go to the earliest slot. It reports false when no slot
// boundary falls inside the range.
func (b *BucketMap) FindLeastLoaded(from, to time.Time) (time.Time, bool) {
	key := b.SlotKey(from)
	if b.SlotTime(key).Before(from) {
		key++
	}

	bestKey, bestLoad, found := int64(0), 0, false
	for ; b.SlotTime(key).Before(to); key++ {
		load := b.slots[key]
		if !found || load < bestLoad {
			bestKey, bestLoad, found = key, load, true
		}
		if bestLoad == 0 {
			break
		}
	}

	if !found {
		return time.Time{}, false
	}
	return b.SlotTime(bestKey), true
}
