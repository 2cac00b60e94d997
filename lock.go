package quota

import (
	"sync"

	"github.com/xraph/quota/types"
)

// userLocks serializes operations per principal. Entries are removed once no
// goroutine holds or waits on them.
type userLocks struct {
	mu    sync.Mutex
	locks map[types.Principal]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[types.Principal]*userLock)}
}

// lock acquires the lock for p and returns its release function.
func (u *userLocks) lock(p types.Principal) func() {
	u.mu.Lock()
	l, ok := u.locks[p]
	if !ok {
		l = &userLock{}
		u.locks[p] = l
	}
	l.refs++
	u.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		u.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.locks, p)
		}
		u.mu.Unlock()
	}
}

// do runs fn while holding the lock for p. Plugin hooks are emitted by the
// caller after do returns so a slow hook never blocks the user.
func (u *userLocks) do(p types.Principal, fn func() error) error {
	unlock := u.lock(p)
	defer unlock()
	return fn()
}

func (u *userLocks) size() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.locks)
}
