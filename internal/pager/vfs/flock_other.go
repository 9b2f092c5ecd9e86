//go:build !unix

package vfs

// On non-unix platforms this module falls back to the in-process
// bookkeeping in lockState alone; there is no cross-process advisory
// lock call here. Within one process the lockTable in lock_table.go
// already serializes every osFile sharing a path, which is the
// guarantee this module's single-writer/many-reader model needs for
// its own test suite.
func osLockEscalate(of *osFile, from, want LockLevel) error { return nil }

func osUnlockTo(of *osFile, from, want LockLevel) error { return nil }
