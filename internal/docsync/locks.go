package docsync

import "sync"

// documentLocks serializes mutating operations per document. The state
// machine and version-number computation are check-then-act sequences;
// without per-document ordering two concurrent pushes could both read the
// same latest version and clobber each other.
type documentLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newDocumentLocks() *documentLocks {
	return &documentLocks{locks: make(map[string]*lockEntry)}
}

// acquire blocks until the per-document lock is held and returns the release
// function. Entries are reference counted so the map does not grow without
// bound.
func (l *documentLocks) acquire(documentID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[documentID]
	if !ok {
		entry = &lockEntry{}
		l.locks[documentID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, documentID)
		}
		l.mu.Unlock()
	}
}
