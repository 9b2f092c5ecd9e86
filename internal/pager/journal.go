package pager

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/gopager/internal/pager/vfs"
)

// Journal header constants
const (
	// JournalHeaderSize is the size of the journal header in bytes.
	JournalHeaderSize = 28

	// JournalMagic is the magic number at the start of a journal file.
	JournalMagic = 0xd9d505f9

	// JournalFormatVersion is the journal format version.
	JournalFormatVersion = 1
)

// Journal is a rollback journal: it stores the original content of
// every page a write transaction touches, before the touch, so the
// transaction can be undone by replaying those originals back onto the
// database file.
type Journal struct {
	vfs      vfs.VFS
	file     vfs.File
	filename string

	pageSize  int
	pageCount int
	dbSize    Pgno
	nonce     uint32

	initialized  bool
	headerSynced bool

	mu sync.Mutex
}

// JournalHeader is the header of a journal file.
type JournalHeader struct {
	Magic         uint32
	PageCount     uint32
	Nonce         uint32
	InitialSize   uint32
	SectorSize    uint32
	PageSize      uint32
	FormatVersion uint32
}

// NewJournal creates a new journal descriptor. Open must be called
// before it can be written to.
func NewJournal(v vfs.VFS, filename string, pageSize int, dbSize Pgno) *Journal {
	return &Journal{
		vfs:      v,
		filename: filename,
		pageSize: pageSize,
		dbSize:   dbSize,
		nonce:    generateNonce(v),
	}
}

// Open opens or creates the journal file and writes its header.
func (j *Journal) Open() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		return errors.New("journal already open")
	}

	f, _, err := j.vfs.Open(j.filename, vfs.OpenReadWrite|vfs.OpenCreate|vfs.OpenJournal)
	if err != nil {
		return NewPathError(CodeCantOpen, "open journal", j.filename, err)
	}
	j.file = f

	if err := j.writeHeaderLocked(); err != nil {
		j.file.Close()
		j.file = nil
		return err
	}

	j.initialized = true
	return nil
}

// Close closes the journal file without deleting it.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// WriteOriginal appends pageNum's original content to the journal.
// This must happen before the pager lets a caller modify that content.
func (j *Journal) WriteOriginal(pageNum uint32, data []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return errors.New("journal not open")
	}
	if len(data) != j.pageSize {
		return fmt.Errorf("invalid page size: got %d, expected %d", len(data), j.pageSize)
	}

	entry := make([]byte, 4+j.pageSize+4)
	binary.BigEndian.PutUint32(entry[0:4], pageNum)
	copy(entry[4:4+j.pageSize], data)
	checksum := j.calculateChecksum(pageNum, data)
	binary.BigEndian.PutUint32(entry[4+j.pageSize:], checksum)

	offset := JournalHeaderSize + int64(j.pageCount)*int64(4+j.pageSize+4)
	if err := j.file.WriteAt(entry, offset); err != nil {
		return NewPathError(CodeIOErrWrite, "journal page", j.filename, err)
	}

	j.pageCount++
	return j.updatePageCountLocked()
}

// Sync syncs the journal file to disk. The pager must call this before
// letting a dirty page's original content be overwritten in the
// database file.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return errors.New("journal not open")
	}
	j.headerSynced = true
	return j.file.Sync(vfs.SyncNormal)
}

// Rollback replays every journaled page back onto the pager's database
// file, verifying each entry's checksum first; a checksum mismatch at
// entry N means the journal was torn at N, so replay simply stops
// there rather than treating it as corruption; everything before N was
// synced and is trustworthy.
func (j *Journal) Rollback(pager *Pager) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}

	entrySize := 4 + j.pageSize + 4
	for i := 0; ; i++ {
		off := int64(JournalHeaderSize) + int64(i)*int64(entrySize)
		entry := make([]byte, entrySize)
		n, err := j.file.ReadAt(entry, off)
		if n < entrySize {
			_ = err
			break
		}

		pageNum := binary.BigEndian.Uint32(entry[0:4])
		pageData := entry[4 : 4+j.pageSize]
		storedChecksum := binary.BigEndian.Uint32(entry[4+j.pageSize:])
		if j.calculateChecksum(pageNum, pageData) != storedChecksum {
			break
		}

		offset := int64(pageNum-1) * int64(j.pageSize)
		if err := pager.file.WriteAt(pageData, offset); err != nil {
			return NewPathError(CodeIOErrWrite, fmt.Sprintf("restore page %d", pageNum), pager.filename, err)
		}
	}

	return pager.file.Sync(vfs.SyncNormal)
}

// PagesSince returns, for each page journaled since mark (a count
// previously obtained from GetPageCount when a savepoint was taken),
// that page's earliest post-mark original content: its value at the
// moment the savepoint was taken. A page journaled only before mark is
// omitted, since a savepoint rollback must leave it untouched. Used to
// roll back to a savepoint by reading originals directly from the
// journal instead of keeping a second in-memory copy of every page a
// transaction touches.
func (j *Journal) PagesSince(mark int) (map[uint32][]byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil, errors.New("journal not open")
	}

	result := make(map[uint32][]byte)
	entrySize := 4 + j.pageSize + 4
	for i := mark; i < j.pageCount; i++ {
		off := int64(JournalHeaderSize) + int64(i)*int64(entrySize)
		entry := make([]byte, entrySize)
		if _, err := j.file.ReadAt(entry, off); err != nil {
			return nil, NewPathError(CodeIOErrRead, "read journal entry", j.filename, err)
		}
		pageNum := binary.BigEndian.Uint32(entry[0:4])
		if _, exists := result[pageNum]; exists {
			continue
		}
		data := make([]byte, j.pageSize)
		copy(data, entry[4:4+j.pageSize])
		result[pageNum] = data
	}
	return result, nil
}

// Finalize deletes the journal file after a successful commit.
func (j *Journal) Finalize() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		if err := j.file.Close(); err != nil {
			return err
		}
		j.file = nil
	}
	if err := j.vfs.Delete(j.filename, false); err != nil {
		return NewPathError(CodeIOErr, "delete journal", j.filename, err)
	}
	j.initialized = false
	j.pageCount = 0
	return nil
}

// Delete removes the journal file, closing it first if open.
func (j *Journal) Delete() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		j.file.Close()
		j.file = nil
	}
	if err := j.vfs.Delete(j.filename, false); err != nil {
		return NewPathError(CodeIOErr, "delete journal", j.filename, err)
	}
	j.initialized = false
	j.pageCount = 0
	return nil
}

// Exists returns true if the journal file exists.
func (j *Journal) Exists() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	ok, _ := j.vfs.Access(j.filename)
	return ok
}

// IsValid reports whether the journal file exists, is large enough to
// hold a header, and has a header that matches this pager's page size
// -- i.e. whether it is a hot journal worth rolling back.
func (j *Journal) IsValid() (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	ok, err := j.vfs.Access(j.filename)
	if err != nil || !ok {
		return false, err
	}

	needClose := false
	if j.file == nil {
		f, _, err := j.vfs.Open(j.filename, vfs.OpenReadWrite|vfs.OpenJournal)
		if err != nil {
			return false, nil
		}
		j.file = f
		needClose = true
	}
	if needClose {
		defer func() {
			j.file.Close()
			j.file = nil
		}()
	}

	size, err := j.file.FileSize()
	if err != nil {
		return false, err
	}
	if size < JournalHeaderSize {
		return false, nil
	}

	header, err := j.readHeaderLocked()
	if err != nil {
		return false, err
	}
	if header.Magic != JournalMagic {
		return false, nil
	}
	if int(header.PageSize) != j.pageSize {
		return false, nil
	}
	return true, nil
}

func (j *Journal) writeHeaderLocked() error {
	header := JournalHeader{
		Magic:         JournalMagic,
		PageCount:     0,
		Nonce:         j.nonce,
		InitialSize:   uint32(j.dbSize),
		SectorSize:    512,
		PageSize:      uint32(j.pageSize),
		FormatVersion: JournalFormatVersion,
	}

	data := make([]byte, JournalHeaderSize)
	binary.BigEndian.PutUint32(data[0:4], header.Magic)
	binary.BigEndian.PutUint32(data[4:8], header.PageCount)
	binary.BigEndian.PutUint32(data[8:12], header.Nonce)
	binary.BigEndian.PutUint32(data[12:16], header.InitialSize)
	binary.BigEndian.PutUint32(data[16:20], header.SectorSize)
	binary.BigEndian.PutUint32(data[20:24], header.PageSize)
	binary.BigEndian.PutUint32(data[24:28], header.FormatVersion)

	if err := j.file.WriteAt(data, 0); err != nil {
		return NewPathError(CodeIOErrWrite, "write journal header", j.filename, err)
	}
	return nil
}

func (j *Journal) readHeaderLocked() (*JournalHeader, error) {
	data := make([]byte, JournalHeaderSize)
	if _, err := j.file.ReadAt(data, 0); err != nil {
		return nil, NewPathError(CodeIOErrRead, "read journal header", j.filename, err)
	}
	return &JournalHeader{
		Magic:         binary.BigEndian.Uint32(data[0:4]),
		PageCount:     binary.BigEndian.Uint32(data[4:8]),
		Nonce:         binary.BigEndian.Uint32(data[8:12]),
		InitialSize:   binary.BigEndian.Uint32(data[12:16]),
		SectorSize:    binary.BigEndian.Uint32(data[16:20]),
		PageSize:      binary.BigEndian.Uint32(data[20:24]),
		FormatVersion: binary.BigEndian.Uint32(data[24:28]),
	}, nil
}

func (j *Journal) updatePageCountLocked() error {
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, uint32(j.pageCount))
	if err := j.file.WriteAt(data, 4); err != nil {
		return NewPathError(CodeIOErrWrite, "update journal page count", j.filename, err)
	}
	return nil
}

// calculateChecksum hashes a journal entry with blake3, seeded by the
// journal's random nonce so two journals for the same page never
// collide on checksum by coincidence.
func (j *Journal) calculateChecksum(pageNum uint32, data []byte) uint32 {
	h := blake3.New()
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], pageNum)
	binary.BigEndian.PutUint32(hdr[4:8], j.nonce)
	h.Write(hdr[:])
	h.Write(data)
	sum := h.Sum(nil)
	return binary.BigEndian.Uint32(sum[0:4])
}

// GetPageCount returns the number of pages in the journal.
func (j *Journal) GetPageCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.pageCount
}

// IsOpen returns true if the journal file is open.
func (j *Journal) IsOpen() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file != nil
}

// generateNonce draws a random journal nonce from a fresh UUIDv4 rather
// than a fixed constant, so two journals never share a checksum seed.
func generateNonce(v vfs.VFS) uint32 {
	return vfs.NewNonce()
}

// Truncate truncates the journal file to zero length, used in TRUNCATE
// journal mode.
func (j *Journal) Truncate() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		if err := j.file.Truncate(0); err != nil {
			return NewPathError(CodeIOErrTruncate, "truncate journal", j.filename, err)
		}
		if err := j.file.Close(); err != nil {
			return err
		}
		j.file = nil
	}
	j.initialized = false
	j.pageCount = 0
	return nil
}

// ZeroHeader zeroes the journal header to invalidate it without
// deleting or truncating the file, used in PERSIST journal mode.
func (j *Journal) ZeroHeader() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		f, existed, err := j.vfs.Open(j.filename, vfs.OpenReadWrite|vfs.OpenJournal)
		if err != nil {
			return NewPathError(CodeCantOpen, "open journal for zeroing", j.filename, err)
		}
		if !existed {
			return nil
		}
		defer f.Close()
		zeros := make([]byte, 4)
		if err := f.WriteAt(zeros, 0); err != nil {
			return NewPathError(CodeIOErrWrite, "zero journal header", j.filename, err)
		}
		return f.Sync(vfs.SyncNormal)
	}

	zeros := make([]byte, 4)
	if err := j.file.WriteAt(zeros, 0); err != nil {
		return NewPathError(CodeIOErrWrite, "zero journal header", j.filename, err)
	}
	if err := j.file.Close(); err != nil {
		return err
	}
	j.file = nil
	j.initialized = false
	j.pageCount = 0
	return nil
}
