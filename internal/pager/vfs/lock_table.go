package vfs

import (
	"fmt"
	"sync"
)

// lockState tracks, for one absolute path, the locks held by every
// osFile in this process that has that path open. SQLite's unix VFS
// keeps an analogous per-inode table because POSIX advisory locks are
// per-process, not per-file-descriptor; two *os.File handles on the
// same path in the same process must agree on one lock level or a
// same-process deadlock (or worse, a silently granted conflicting lock)
// results.
type lockState struct {
	mu       sync.Mutex
	level    LockLevel
	holders  map[*osFile]LockLevel
	reserved *osFile
}

type lockTable struct {
	mu      sync.Mutex
	entries map[string]*lockState
}

var globalLocks = &lockTable{entries: make(map[string]*lockState)}

func (t *lockTable) entry(path string) *lockState {
	t.mu.Lock()
	defer t.mu.Unlock()
	ls, ok := t.entries[path]
	if !ok {
		ls = &lockState{holders: make(map[*osFile]LockLevel)}
		t.entries[path] = ls
	}
	return ls
}

func (t *lockTable) forget(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ls, ok := t.entries[path]; ok {
		ls.mu.Lock()
		empty := len(ls.holders) == 0
		ls.mu.Unlock()
		if empty {
			delete(t.entries, path)
		}
	}
}

func (ls *lockState) acquire(of *osFile, want LockLevel) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	have := ls.holders[of]
	if have >= want {
		return nil
	}

	switch want {
	case LockShared:
		if ls.level == LockExclusive && ls.holders[of] == LockNone {
			return fmt.Errorf("vfs: %w", ErrBusy)
		}
	case LockReserved:
		if ls.reserved != nil && ls.reserved != of {
			return fmt.Errorf("vfs: %w", ErrBusy)
		}
	case LockExclusive:
		for holder, lvl := range ls.holders {
			if holder != of && lvl >= LockShared {
				return fmt.Errorf("vfs: %w", ErrBusy)
			}
		}
	}

	if err := osLockEscalate(of, ls.level, want); err != nil {
		return err
	}

	ls.holders[of] = want
	if want == LockReserved || want == LockPending || want == LockExclusive {
		ls.reserved = of
	}
	ls.level = ls.highestLocked()
	return nil
}

func (ls *lockState) downgrade(of *osFile, want LockLevel) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	have, ok := ls.holders[of]
	if !ok || have <= want {
		return nil
	}

	if err := osUnlockTo(of, have, want); err != nil {
		return err
	}

	if want == LockNone {
		delete(ls.holders, of)
	} else {
		ls.holders[of] = want
	}
	if ls.reserved == of && want < LockReserved {
		ls.reserved = nil
	}
	ls.level = ls.highestLocked()
	return nil
}

func (ls *lockState) release(of *osFile) {
	_ = ls.downgrade(of, LockNone)
}

func (ls *lockState) reservedHeldByOther(of *osFile) bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.reserved != nil && ls.reserved != of
}

func (ls *lockState) highestLocked() LockLevel {
	max := LockNone
	for _, lvl := range ls.holders {
		if lvl > max {
			max = lvl
		}
	}
	return max
}
