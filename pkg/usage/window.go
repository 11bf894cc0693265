package usage

import (
	"sync"
	"time"
)

// rollingWindow accumulates usage over a rolling time window.
//
// The window is divided into fixed-size buckets; old buckets are pruned when
// they fall outside the window. Bucket granularity bounds accuracy: the
// last-hour window uses 1-minute buckets, the last-day window 1-hour buckets.
type rollingWindow struct {
	window     time.Duration
	bucketSize time.Duration
	buckets    []bucket
	mu         sync.Mutex

	now func() time.Time
}

// bucket holds usage for one time interval.
type bucket struct {
	timestamp time.Time
	usage     WindowUsage
}

func newRollingWindow(window, bucketSize time.Duration) *rollingWindow {
	numBuckets := int(window / bucketSize)
	if numBuckets == 0 {
		numBuckets = 1
	}
	return &rollingWindow{
		window:     window,
		bucketSize: bucketSize,
		buckets:    make([]bucket, numBuckets),
		now:        time.Now,
	}
}

// add records usage in the bucket for the current time.
func (rw *rollingWindow) add(u WindowUsage) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	now := rw.now()
	rw.pruneLocked(now)

	b := rw.findOrCreateBucketLocked(now)
	b.usage = b.usage.add(u)
}

// sum returns the usage accumulated across all live buckets.
func (rw *rollingWindow) sum() WindowUsage {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	rw.pruneLocked(rw.now())

	var total WindowUsage
	for i := range rw.buckets {
		if !rw.buckets[i].timestamp.IsZero() {
			total = total.add(rw.buckets[i].usage)
		}
	}
	return total
}

// reset clears all buckets.
func (rw *rollingWindow) reset() {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	for i := range rw.buckets {
		rw.buckets[i] = bucket{}
	}
}

// pruneLocked clears buckets older than the window. Caller holds mu.
func (rw *rollingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-rw.window)
	for i := range rw.buckets {
		if !rw.buckets[i].timestamp.IsZero() && rw.buckets[i].timestamp.Before(cutoff) {
			rw.buckets[i] = bucket{}
		}
	}
}

// findOrCreateBucketLocked returns the bucket for the current interval,
// reusing an empty slot or evicting the oldest. Caller holds mu.
func (rw *rollingWindow) findOrCreateBucketLocked(now time.Time) *bucket {
	bucketTime := now.Truncate(rw.bucketSize)

	for i := range rw.buckets {
		if rw.buckets[i].timestamp.Equal(bucketTime) {
			return &rw.buckets[i]
		}
	}

	targetIdx := -1
	for i := range rw.buckets {
		if rw.buckets[i].timestamp.IsZero() {
			targetIdx = i
			break
		}
	}
	if targetIdx == -1 {
		oldestIdx := 0
		oldestTime := rw.buckets[0].timestamp
		for i := 1; i < len(rw.buckets); i++ {
			if rw.buckets[i].timestamp.Before(oldestTime) {
				oldestIdx = i
				oldestTime = rw.buckets[i].timestamp
			}
		}
		targetIdx = oldestIdx
	}

	rw.buckets[targetIdx] = bucket{timestamp: bucketTime}
	return &rw.buckets[targetIdx]
}
