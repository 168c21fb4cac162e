//go:build unix

package localstore

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWriteLocker_AcquireRelease(t *testing.T) {
	dir := t.TempDir()
	locker := newWriteLocker(dir)

	if err := locker.acquire(500 * time.Millisecond); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, lockFileName))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if len(data) == 0 {
		t.Error("lock file should contain holder info")
	}

	if err := locker.release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
}

func TestWriteLocker_Timeout(t *testing.T) {
	dir := t.TempDir()
	holder := newWriteLocker(dir)
	if err := holder.acquire(500 * time.Millisecond); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer holder.release()

	other := newWriteLocker(dir)
	start := time.Now()
	if err := other.acquire(30 * time.Millisecond); err == nil {
		other.release()
		t.Fatal("expected timeout while lock is held")
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Error("acquire returned before the timeout elapsed")
	}
}

func TestWriteLocker_ConcurrentAccess(t *testing.T) {
	dir := t.TempDir()

	const numGoroutines = 5
	const numIterations = 10

	var counter, inside int64
	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				locker := newWriteLocker(dir)
				if err := locker.acquire(5 * time.Second); err != nil {
					t.Errorf("acquire failed: %v", err)
					return
				}
				if atomic.AddInt64(&inside, 1) != 1 {
					t.Error("two holders inside the lock")
				}
				atomic.AddInt64(&counter, 1)
				atomic.AddInt64(&inside, -1)
				locker.release()
			}
		}()
	}
	wg.Wait()

	if counter != numGoroutines*numIterations {
		t.Errorf("counter: got %d, want %d", counter, numGoroutines*numIterations)
	}
}
