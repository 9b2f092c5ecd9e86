package vfs

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OS is the default VFS, backed by the host filesystem. Lock escalation
// is tracked per absolute path across every osFile opened by this
// process (see lockTable in lock_table.go; flock_unix.go /
// flock_other.go hold the cross-process half of the story).
type OS struct{}

// New returns the default OS-backed VFS.
func New() *OS { return &OS{} }

func (o *OS) Open(path string, flags OpenFlag) (File, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false, err
	}

	osFlags := os.O_RDONLY
	switch {
	case flags&OpenReadWrite != 0:
		osFlags = os.O_RDWR
	}
	if flags&OpenCreate != 0 {
		osFlags |= os.O_CREATE
	}
	if flags&OpenExclusive != 0 {
		osFlags |= os.O_EXCL
	}

	existed := true
	if _, statErr := os.Stat(abs); os.IsNotExist(statErr) {
		existed = false
	}

	f, err := os.OpenFile(abs, osFlags, 0644)
	if err != nil {
		return nil, false, fmt.Errorf("vfs: open %s: %w", abs, err)
	}

	return &osFile{f: f, path: abs, lock: globalLocks.entry(abs)}, existed, nil
}

func (o *OS) Delete(path string, mustExist bool) error {
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) && !mustExist {
		return nil
	}
	return err
}

func (o *OS) Access(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (o *OS) FullPathname(path string) (string, error) {
	return filepath.Abs(path)
}

func (o *OS) CurrentTimeMillis() int64 {
	return time.Now().UnixMilli()
}

// Randomness returns n cryptographically random bytes. A journal nonce
// (4 bytes) or a WAL salt pair (8 bytes) comes from NewNonce/NewSalt
// below instead, which take those bytes from a fresh UUIDv4.
func (o *OS) Randomness(n int) []byte {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		// crypto/rand.Reader does not fail on any supported platform;
		// this mirrors the VFS contract's "best effort" randomness,
		// falling back to time-seeded bytes rather than panicking.
		for i := range buf {
			buf[i] = byte(time.Now().UnixNano() >> uint(i%8*8))
		}
	}
	return buf
}

// NewNonce returns a 4-byte journal nonce drawn from a fresh UUIDv4.
func NewNonce() uint32 {
	id := uuid.New()
	return uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3])
}

// NewSalt returns the 8-byte WAL salt pair drawn from a fresh UUIDv4.
func NewSalt() (salt1, salt2 uint32) {
	id := uuid.New()
	salt1 = uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3])
	salt2 = uint32(id[4])<<24 | uint32(id[5])<<16 | uint32(id[6])<<8 | uint32(id[7])
	return
}

type osFile struct {
	f    *os.File
	path string
	lock *lockState

	mu sync.Mutex
}

func (of *osFile) ReadAt(buf []byte, off int64) (int, error) {
	return of.f.ReadAt(buf, off)
}

func (of *osFile) WriteAt(buf []byte, off int64) error {
	_, err := of.f.WriteAt(buf, off)
	return err
}

func (of *osFile) Truncate(size int64) error {
	return of.f.Truncate(size)
}

func (of *osFile) Sync(flags SyncFlag) error {
	return of.f.Sync()
}

func (of *osFile) FileSize() (int64, error) {
	info, err := of.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (of *osFile) SectorSize() int {
	return 512
}

func (of *osFile) DeviceCharacteristics() DeviceCharacteristic {
	return 0
}

func (of *osFile) FileControl(op FileControlOp, arg any) (any, error) {
	switch op {
	case FileControlSizeHint:
		if hint, ok := arg.(int64); ok {
			size, err := of.FileSize()
			if err == nil && size < hint {
				_ = of.f.Truncate(hint)
			}
		}
		return nil, nil
	default:
		return nil, nil
	}
}

func (of *osFile) Close() error {
	of.lock.release(of)
	globalLocks.forget(of.path)
	return of.f.Close()
}

func (of *osFile) Lock(level LockLevel) error {
	return of.lock.acquire(of, level)
}

func (of *osFile) Unlock(level LockLevel) error {
	return of.lock.downgrade(of, level)
}

func (of *osFile) CheckReservedLock() (bool, error) {
	return of.lock.reservedHeldByOther(of), nil
}
