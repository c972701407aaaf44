package docsync

import (
	"sync"
	"testing"
)

func TestDocumentLocksSerializeSameDocument(t *testing.T) {
	locks := newDocumentLocks()

	const workers = 8
	const iterations = 50
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				release := locks.acquire("doc-1")
				counter++
				release()
			}
		}()
	}
	wg.Wait()

	if counter != workers*iterations {
		t.Fatalf("expected %d increments, got %d", workers*iterations, counter)
	}
}

func TestDocumentLocksIndependentDocuments(t *testing.T) {
	locks := newDocumentLocks()

	releaseA := locks.acquire("doc-a")
	done := make(chan struct{})
	go func() {
		release := locks.acquire("doc-b")
		release()
		close(done)
	}()
	<-done
	releaseA()
}

func TestDocumentLocksCleanUpEntries(t *testing.T) {
	locks := newDocumentLocks()

	release := locks.acquire("doc-1")
	release()

	locks.mu.Lock()
	remaining := len(locks.locks)
	locks.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("released locks must be removed from the map, got %d entries", remaining)
	}
}
