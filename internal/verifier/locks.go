package verifier

import (
	"sync"

	"OracleVerifier/internal/model"
)

// taskLocks serializes vote processing per task. Entries are dropped once
// no goroutine holds or waits for them.
type taskLocks struct {
	mu    sync.Mutex
	locks map[model.TaskID]*taskLock
}

// taskLock is one task's mutex with its holder/waiter count.
type taskLock struct {
	mu   sync.Mutex
	refs int
}

// newTaskLocks creates an empty lock table.
func newTaskLocks() *taskLocks {
	return &taskLocks{locks: make(map[model.TaskID]*taskLock)}
}

// lock acquires the mutex of id and returns its release function.
func (t *taskLocks) lock(id model.TaskID) func() {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &taskLock{}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, id)
		}
		t.mu.Unlock()
	}
}

// size returns the number of live entries.
func (t *taskLocks) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.locks)
}
