package applock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// lockFileName is the cross-process unlock mutex under the state dir.
const lockFileName = "unlock.lock"

// serializer guarantees at most one unlock attempt is validated at a
// time. Within the process it is a FIFO waiter chain so attempts run in
// arrival order without starvation; across processes it additionally
// takes an advisory file lock when the runtime provides one. A missing
// or unusable lock file degrades to in-process exclusion only.
type serializer struct {
	path string // lock file path; empty disables cross-process locking

	mu   sync.Mutex
	tail chan struct{} // closed when the current tail releases
}

func newSerializer(dir string) *serializer {
	s := &serializer{}
	if dir != "" {
		path := filepath.Join(dir, lockFileName)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
		if err == nil {
			f.Close()
			s.path = path
		}
	}
	return s
}

// runExclusive runs fn while holding the serializer. The lock is released
// even when fn panics, so a fault in one attempt never starves the next
// waiter.
func (s *serializer) runExclusive(ctx context.Context, fn func() error) error {
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// acquire takes the in-process FIFO slot, then the cross-process file
// lock. Ordering matters: only one goroutine per process ever blocks on
// the file lock, which keeps the file lock's queueing fair enough.
func (s *serializer) acquire(ctx context.Context) (release func(), err error) {
	s.mu.Lock()
	prev := s.tail
	slot := make(chan struct{})
	s.tail = slot
	s.mu.Unlock()

	released := false
	releaseSlot := func() {
		if !released {
			released = true
			close(slot)
		}
	}

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Hand the slot through so later waiters are not stranded.
			go func() {
				<-prev
				releaseSlot()
			}()
			return nil, ctx.Err()
		}
	}

	if s.path == "" {
		return releaseSlot, nil
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		// Cross-process exclusion unavailable; in-process still holds.
		return releaseSlot, nil
	}
	if err := flockWait(ctx, f); err != nil {
		f.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			releaseSlot()
			return nil, ctxErr
		}
		return releaseSlot, nil
	}

	return func() {
		if err := flockRelease(f); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to release unlock serializer: %v\n", err)
		}
		f.Close()
		releaseSlot()
	}, nil
}

// flockRetryInterval paces the poll for the cross-process lock.
const flockRetryInterval = 25 * time.Millisecond

// flockWait acquires the file lock by polling the non-blocking variant,
// so a caller cancelled while another process holds the lock is not
// stuck until that process releases it.
func flockWait(ctx context.Context, f *os.File) error {
	for {
		ok, err := flockTryExclusive(f)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(flockRetryInterval):
		}
	}
}
