// Package vfs defines the abstract boundary between the pager and the host
// operating system's file I/O, modeled on SQLite's sqlite3_vfs/sqlite3_io_methods
// split. Everything above this package — the page cache, the pager state
// machine, the WAL module — talks to files only through this interface.
package vfs

import "fmt"

// LockLevel is one of the five lock states a File can hold on the database
// file. The levels form a total order. The bundled VFSes enforce no
// transition order: Lock may skip levels and Unlock may drop to any
// lower level.
type LockLevel int

const (
	LockNone LockLevel = iota
	LockShared
	LockReserved
	LockPending
	LockExclusive

	// LockUnknown is never requested; it is the state a caller should
	// record after an Unlock call returns an error, since the actual
	// lock held by the OS is no longer known.
	LockUnknown LockLevel = -1
)

func (l LockLevel) String() string {
	switch l {
	case LockNone:
		return "NONE"
	case LockShared:
		return "SHARED"
	case LockReserved:
		return "RESERVED"
	case LockPending:
		return "PENDING"
	case LockExclusive:
		return "EXCLUSIVE"
	case LockUnknown:
		return "UNKNOWN"
	default:
		return fmt.Sprintf("LockLevel(%d)", int(l))
	}
}

// OpenFlag controls how Open creates or opens a file.
type OpenFlag int

const (
	OpenReadOnly OpenFlag = 1 << iota
	OpenReadWrite
	OpenCreate
	OpenExclusive
	// OpenMainDB marks the file as the primary database file, as opposed
	// to a journal, WAL, or sub-journal; a VFS may use this to decide
	// whether directory-sync-on-create is worth the cost.
	OpenMainDB
	OpenJournal
	OpenWAL
)

// SyncFlag controls the strength of a Sync call. SyncDataOnly may be
// OR'd with SyncNormal or SyncFull to request that only file data (not
// metadata) be flushed, where the OS distinguishes the two.
type SyncFlag int

const (
	SyncNormal SyncFlag = iota
	SyncFull
	SyncDataOnly SyncFlag = 1 << 4
)

// DeviceCharacteristic reports properties of the underlying storage that
// let the pager skip otherwise-mandatory safety work.
type DeviceCharacteristic int

const (
	// IOCapAtomic indicates that single sector writes are atomic.
	IOCapAtomic DeviceCharacteristic = 1 << iota
	// IOCapAtomicPage indicates that full page-sized writes are atomic,
	// enabling the single-page atomic-write optimisation (spec rule 1d).
	IOCapAtomicPage
	// IOCapSequential indicates information is written to disk in the
	// same order as calls to WriteAt.
	IOCapSequential
	// IOCapSafeAppend indicates new data appended to a file will not
	// become visible to a reader until after the append completes.
	IOCapSafeAppend
	// IOCapPowersafeOverwrite indicates overwriting data in an existing
	// sector can never corrupt other data in the same sector, even on
	// power loss mid-write.
	IOCapPowersafeOverwrite
)

// FileControlOp identifies a fileControl operation; new ops can be added
// without changing the File interface.
type FileControlOp int

const (
	// FileControlSizeHint previews the expected final size of the file
	// so the VFS can pre-allocate in one call.
	FileControlSizeHint FileControlOp = iota
	// FileControlPowersafeOverwrite toggles whether partial-sector
	// overwrites are treated as atomic for this file.
	FileControlPowersafeOverwrite
)

// File is a single open handle. Implementations need not be safe for
// concurrent use by multiple goroutines; the pager serializes writer
// access to a given file and readers only ever call ReadAt/FileSize.
type File interface {
	ReadAt(buf []byte, off int64) (int, error)
	WriteAt(buf []byte, off int64) error
	Truncate(size int64) error
	Sync(flags SyncFlag) error
	FileSize() (int64, error)

	Lock(level LockLevel) error
	Unlock(level LockLevel) error
	// CheckReservedLock reports whether some connection, possibly in
	// another process, holds at least a RESERVED lock.
	CheckReservedLock() (bool, error)

	SectorSize() int
	DeviceCharacteristics() DeviceCharacteristic
	FileControl(op FileControlOp, arg any) (any, error)

	Close() error
}

// VFS is the factory and process-scoped services a pager needs beyond a
// single open file.
type VFS interface {
	// Open opens or creates path according to flags. existed reports
	// whether the file was already present before this call; it is false
	// when this call created it.
	Open(path string, flags OpenFlag) (file File, existed bool, err error)
	// Delete removes path. If mustExist is false, a missing file is not
	// an error.
	Delete(path string, mustExist bool) error
	// Access reports whether path exists and is accessible.
	Access(path string) (bool, error)
	FullPathname(path string) (string, error)

	CurrentTimeMillis() int64
	Randomness(n int) []byte
}

// BusyHandler is the signature of a busy callback: attempt counts calls
// starting at 1 and the result says whether to retry. Nothing in this
// module calls a BusyHandler; a lock that cannot be acquired because
// another connection holds a conflicting one fails with ErrBusy at once.
type BusyHandler func(attempt int) (retry bool)
