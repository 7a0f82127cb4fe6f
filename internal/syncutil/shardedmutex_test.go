package syncutil

import (
	"sync"
	"testing"
)

func TestShardedMutexSerializesSameKey(t *testing.T) {
	var sm ShardedMutex
	var wg sync.WaitGroup

	counter := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := sm.Lock("chore_1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("expected 100 increments, got %d", counter)
	}
}

func TestShardedMutexUnlockReleases(t *testing.T) {
	var sm ShardedMutex

	unlock := sm.Lock("chore_1")
	unlock()

	done := make(chan struct{})
	go func() {
		unlock := sm.Lock("chore_1")
		unlock()
		close(done)
	}()
	<-done
}
