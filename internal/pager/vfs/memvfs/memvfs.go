// Package memvfs implements vfs.VFS entirely in memory, for tests that
// need deterministic files and crash injection. The one injection point
// is FS.KillAfterBytes, which fails writes once a byte count across all
// files is passed; there is no hook tied to a sync or a checkpoint.
package memvfs

import (
	"fmt"
	"sync"

	"github.com/FocuswithJustin/gopager/internal/pager/vfs"
)

// FS is an in-memory filesystem. The zero value is ready to use.
type FS struct {
	mu    sync.Mutex
	files map[string]*memFile

	// KillAfterBytes, if non-zero, makes the next WriteAt (cumulative
	// across every file opened from this FS) that would push total
	// bytes written past this threshold instead return ErrIOErr,
	// simulating a crash mid-write.
	KillAfterBytes int64
	written        int64
}

// New returns an empty in-memory filesystem.
func New() *FS {
	return &FS{files: make(map[string]*memFile)}
}

type memFile struct {
	mu       sync.Mutex
	data     []byte
	refs     int
	lockedBy map[*memHandle]vfs.LockLevel
	reserved *memHandle
}

func (fs *FS) Open(path string, flags vfs.OpenFlag) (vfs.File, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, existed := fs.files[path]
	if !existed {
		if flags&vfs.OpenCreate == 0 {
			return nil, false, fmt.Errorf("memvfs: %s: %w", path, vfs.ErrCantOpen)
		}
		if fs.files == nil {
			fs.files = make(map[string]*memFile)
		}
		f = &memFile{lockedBy: make(map[*memHandle]vfs.LockLevel)}
		fs.files[path] = f
	}
	f.refs++
	return &memHandle{fs: fs, f: f, path: path}, existed, nil
}

func (fs *FS) Delete(path string, mustExist bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.files[path]; !ok {
		if mustExist {
			return fmt.Errorf("memvfs: %s not found", path)
		}
		return nil
	}
	delete(fs.files, path)
	return nil
}

func (fs *FS) Access(path string) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ok := fs.files[path]
	return ok, nil
}

func (fs *FS) FullPathname(path string) (string, error) { return path, nil }

func (fs *FS) CurrentTimeMillis() int64 { return 0 }

func (fs *FS) Randomness(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i*2654435761 + 1)
	}
	return buf
}

type memHandle struct {
	fs   *FS
	f    *memFile
	path string
}

func (h *memHandle) ReadAt(buf []byte, off int64) (int, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	if off >= int64(len(h.f.data)) {
		return 0, nil
	}
	n := copy(buf, h.f.data[off:])
	return n, nil
}

func (h *memHandle) WriteAt(buf []byte, off int64) error {
	h.fs.mu.Lock()
	kill := h.fs.KillAfterBytes > 0 && h.fs.written+int64(len(buf)) > h.fs.KillAfterBytes
	if !kill {
		h.fs.written += int64(len(buf))
	}
	h.fs.mu.Unlock()
	if kill {
		return vfs.ErrIOErr
	}

	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	end := off + int64(len(buf))
	if end > int64(len(h.f.data)) {
		grown := make([]byte, end)
		copy(grown, h.f.data)
		h.f.data = grown
	}
	copy(h.f.data[off:end], buf)
	return nil
}

func (h *memHandle) Truncate(size int64) error {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	if size <= int64(len(h.f.data)) {
		h.f.data = h.f.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, h.f.data)
	h.f.data = grown
	return nil
}

func (h *memHandle) Sync(flags vfs.SyncFlag) error { return nil }

func (h *memHandle) FileSize() (int64, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	return int64(len(h.f.data)), nil
}

func (h *memHandle) SectorSize() int { return 512 }

func (h *memHandle) DeviceCharacteristics() vfs.DeviceCharacteristic { return 0 }

func (h *memHandle) FileControl(op vfs.FileControlOp, arg any) (any, error) { return nil, nil }

func (h *memHandle) Close() error {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	delete(h.f.lockedBy, h)
	if h.f.reserved == h {
		h.f.reserved = nil
	}
	h.f.refs--
	return nil
}

func (h *memHandle) Lock(level vfs.LockLevel) error {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	if level >= vfs.LockExclusive {
		for other, lvl := range h.f.lockedBy {
			if other != h && lvl >= vfs.LockShared {
				return vfs.ErrBusy
			}
		}
	}
	if level >= vfs.LockReserved && h.f.reserved != nil && h.f.reserved != h {
		return vfs.ErrBusy
	}
	h.f.lockedBy[h] = level
	if level >= vfs.LockReserved {
		h.f.reserved = h
	}
	return nil
}

func (h *memHandle) Unlock(level vfs.LockLevel) error {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	if level == vfs.LockNone {
		delete(h.f.lockedBy, h)
	} else {
		h.f.lockedBy[h] = level
	}
	if h.f.reserved == h && level < vfs.LockReserved {
		h.f.reserved = nil
	}
	return nil
}

func (h *memHandle) CheckReservedLock() (bool, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	return h.f.reserved != nil && h.f.reserved != h, nil
}
