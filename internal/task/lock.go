package task

import "sync"

// LockRegistry serializes mutations per task, standing in for a row-level
// lock: all writes that span a task and its assignments or responses must run
// under the task's lock. There is no cross-task locking; distinct tasks
// mutate fully in parallel.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the lock for taskID and returns the unlock function.
func (r *LockRegistry) Lock(taskID string) func() {
	r.mu.Lock()
	l, ok := r.locks[taskID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[taskID] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}
