//go:build unix

package vfs

import (
	"golang.org/x/sys/unix"
)

// osLockEscalate asks the kernel for an advisory lock matching want, on
// top of whatever this process already holds at from. SQLite's unix VFS
// uses byte-range fcntl locks over specific offsets so that SHARED,
// RESERVED, and PENDING can coexist across processes; this module
// collapses that onto a single whole-file flock: SHARED takes LOCK_SH,
// EXCLUSIVE takes LOCK_EX, and RESERVED and PENDING change nothing at
// the kernel level. Across processes, RESERVED and PENDING therefore
// exclude nothing: another process can still take SHARED, or its own
// RESERVED, until this one holds EXCLUSIVE. Within one process the
// lockTable in lock_table.go enforces them.
func osLockEscalate(of *osFile, from, want LockLevel) error {
	fd := int(of.f.Fd())
	switch want {
	case LockShared:
		return flockRetry(fd, unix.LOCK_SH|unix.LOCK_NB)
	case LockReserved, LockPending:
		// The LOCK_SH taken for SHARED is kept as is; no kernel lock
		// changes until EXCLUSIVE.
		return nil
	case LockExclusive:
		return flockRetry(fd, unix.LOCK_EX|unix.LOCK_NB)
	default:
		return nil
	}
}

func osUnlockTo(of *osFile, from, want LockLevel) error {
	fd := int(of.f.Fd())
	if want == LockNone {
		return unix.Flock(fd, unix.LOCK_UN)
	}
	if want < LockReserved && from >= LockExclusive {
		return flockRetry(fd, unix.LOCK_SH|unix.LOCK_NB)
	}
	return nil
}

func flockRetry(fd int, how int) error {
	err := unix.Flock(fd, how)
	if err == unix.EWOULDBLOCK || err == unix.EAGAIN {
		return ErrBusy
	}
	return err
}
