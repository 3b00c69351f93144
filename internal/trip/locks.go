package trip

import "sync"

const tripLockStripes = 64

// tripLocks orders cache fills of a trip against invalidations of the same
// trip. Trips sharing a stripe also share a lock.
type tripLocks struct {
	stripes [tripLockStripes]sync.Mutex
}

func (l *tripLocks) lock(id int64) func() {
	mu := &l.stripes[uint64(id)%tripLockStripes]
	mu.Lock()
	return mu.Unlock
}
