package pager

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/FocuswithJustin/gopager/internal/pager/alloc"
	"github.com/FocuswithJustin/gopager/internal/pager/pcache"
	"github.com/FocuswithJustin/gopager/internal/pager/pcache1"
	"github.com/FocuswithJustin/gopager/internal/pager/vfs"
	"github.com/FocuswithJustin/gopager/internal/pager/wal"
)

// Pager states, mirroring SQLite's pager state machine: a connection
// moves strictly forward through these (with Commit/Rollback looping
// back to PagerStateOpen) except for PagerStateError, which any state
// can fall into and which Rollback, Close or a fresh Open clears.
const (
	PagerStateOpen = iota
	PagerStateReader
	PagerStateWriterLocked
	PagerStateWriterCachemod
	PagerStateWriterDbmod
	PagerStateWriterFinished
	PagerStateError
)

// Default values
const (
	DefaultCacheSize  = 2000 // default number of pages to cache
	DefaultSectorSize = 512  // assumed disk sector size, bytes
	defaultExtraBytes = 0
	defaultSlabCap    = 32
)

// Common errors
var (
	ErrInvalidPageSize = errors.New("invalid page size")
	ErrInvalidPageNum  = errors.New("invalid page number")
	ErrInvalidOffset   = errors.New("invalid offset")
	ErrPageNotFound    = errors.New("page not found")
	ErrCacheFull       = errors.New("cache full")
	ErrReadOnly        = errors.New("pager is read-only")
	ErrNoTransaction   = errors.New("no transaction active")
	ErrTransactionOpen = errors.New("transaction already open")
	ErrDatabaseLocked  = errors.New("database is locked")
	ErrDatabaseCorrupt = errors.New("database file is corrupt")
	ErrDiskIO          = errors.New("disk I/O error")
	ErrDiskFull        = errors.New("disk full")
	ErrSpillDisabled   = errors.New("cache spill disallowed in current spill mode")
)

// Pager manages reading and writing pages from/to a database file. It
// implements page caching through pcache, durability through either a
// rollback journal or a WAL, and the lock-level state machine a VFS
// exposes.
type Pager struct {
	vfs      vfs.VFS
	file     vfs.File
	filename string

	journal         *Journal
	journalFilename string

	walFile *wal.WAL
	walSnap *wal.Snapshot

	cache     *pcache.Manager
	allocator *alloc.Allocator
	group     *pcache1.Group
	sharedMem bool // true if group/allocator came from the process-wide config

	header *DatabaseHeader

	state     int
	lockState vfs.LockLevel

	pageSize   int
	sectorSize int
	dbSize     Pgno
	dbOrigSize Pgno
	maxPageNum Pgno

	journalMode JournalMode
	synchronous SynchronousLevel
	lockingMode LockingMode

	// spillMode narrows when stressWriteback may write a dirty page out
	// mid-statement. noSpillDepth is a scoped counter: while positive,
	// spilling is refused regardless of spillMode, matching SQLite's
	// scoped doNotSpill acquisition around operations (like restoring a
	// savepoint) that must not have the cache's own eviction policy
	// interleave writes with theirs.
	spillMode    SpillMode
	noSpillDepth int

	readOnly bool
	tempFile bool

	errCode error

	savepoints []*Savepoint

	log *slog.Logger

	mu sync.RWMutex
}

// Open opens a database file and creates a new Pager. If the file
// doesn't exist (or is empty) and readOnly is false, a new database is
// created.
func Open(filename string, readOnly bool, opts ...Option) (*Pager, error) {
	o := resolveOptions(opts)
	if !isValidPageSize(o.PageSize) {
		return nil, ErrInvalidPageSize
	}

	v := o.VFS
	if v == nil {
		return nil, fmt.Errorf("pager: Open requires a VFS (use WithVFS or WithMemoryVFS)")
	}

	group, allocator, shared := sharedGroupAndAllocator(o.PageSize)
	if !shared {
		group = pcache1.NewGroup()
		group.SetMaxPage(o.CacheSize)
		allocator = alloc.New(o.PageSize, defaultExtraBytes, defaultSlabCap)
	}

	p := &Pager{
		vfs:             v,
		filename:        filename,
		journalFilename: filename + "-journal",
		pageSize:        o.PageSize,
		journalMode:     o.JournalMode,
		synchronous:     o.Synchronous,
		lockingMode:     o.LockingMode,
		readOnly:        readOnly,
		state:           PagerStateOpen,
		lockState:       vfs.LockNone,
		allocator:       allocator,
		group:           group,
		sharedMem:       shared,
		log:             o.Logger,
		maxPageNum:      0x7FFFFFFF,
		spillMode:       o.SpillMode,
		sectorSize:      o.SectorSize,
	}
	if p.sectorSize <= 0 {
		p.sectorSize = DefaultSectorSize
	}
	p.cache = pcache.New(group, allocator, o.PageSize, true)
	p.cache.SetStress(p.stressWriteback)

	flags := vfs.OpenMainDB
	if readOnly {
		flags |= vfs.OpenReadOnly
	} else {
		flags |= vfs.OpenReadWrite | vfs.OpenCreate
	}

	file, existed, err := v.Open(filename, flags)
	if err != nil {
		return nil, fmt.Errorf("pager: open database file: %w", err)
	}
	p.file = file

	size, err := file.FileSize()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("pager: stat database file: %w", err)
	}

	if size == 0 {
		if readOnly {
			file.Close()
			return nil, errors.New("cannot create new database in read-only mode")
		}
		if err := p.initializeNewDatabase(); err != nil {
			file.Close()
			return nil, err
		}
	} else {
		if err := p.readHeader(); err != nil {
			file.Close()
			return nil, err
		}
	}

	p.dbSize = Pgno(size / int64(p.pageSize))
	if p.dbSize == 0 {
		p.dbSize = 1
	}
	p.dbOrigSize = p.dbSize

	if existed && !readOnly && p.journalMode != JournalModeWAL {
		if err := p.recoverHotJournal(); err != nil {
			file.Close()
			return nil, err
		}
	}

	if p.journalMode == JournalModeWAL {
		if err := p.openWAL(); err != nil {
			file.Close()
			return nil, err
		}
	}

	atomic.AddInt64(&globalConfig.pagersOpen, 1)
	p.log.Debug("pager opened", "path", filename, "page_size", p.pageSize, "pages", p.dbSize, "read_only", readOnly)

	return p, nil
}

// HotJournalStatus reports on a rollback journal found alongside a
// database file, without opening the database itself or rolling the
// journal back.
type HotJournalStatus struct {
	Exists bool
	Valid  bool // true iff Open would treat this as a hot journal to recover
}

// CheckHotJournal inspects filename+"-journal" and reports whether a
// hot journal is present and would be replayed on the next read-write
// Open. It never mutates the journal or database file.
func CheckHotJournal(v vfs.VFS, filename string, pageSize int) (HotJournalStatus, error) {
	j := NewJournal(v, filename+"-journal", pageSize, 0)
	if !j.Exists() {
		return HotJournalStatus{}, nil
	}
	valid, err := j.IsValid()
	if err != nil {
		return HotJournalStatus{Exists: true}, err
	}
	return HotJournalStatus{Exists: true, Valid: valid}, nil
}

// Close closes the pager and releases all resources.
func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state >= PagerStateWriterLocked && p.state != PagerStateError {
		if err := p.rollbackLocked(); err != nil {
			return err
		}
	}

	p.cache.Close()

	if p.journal != nil {
		p.journal.Close()
		p.journal = nil
	}
	if p.file != nil {
		if err := p.file.Close(); err != nil {
			return err
		}
		p.file = nil
	}

	if !p.sharedMem {
		_ = p.allocator.Close()
	}

	p.state = PagerStateOpen
	p.lockState = vfs.LockNone
	atomic.AddInt64(&globalConfig.pagersOpen, -1)

	return nil
}

// Get retrieves a page from the database. The returned page's
// reference count is incremented; callers must Put it when finished.
func (p *Pager) Get(pgno Pgno) (*DbPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pgno == 0 || pgno > p.maxPageNum {
		return nil, ErrInvalidPageNum
	}

	if p.state == PagerStateOpen {
		if err := p.acquireSharedLock(); err != nil {
			return nil, err
		}
	}

	cp, err := p.cache.Fetch(uint32(pgno), pcache1.CreateAlways)
	if err != nil {
		return nil, NewPathError(CodeNoMem, "get", p.filename, err)
	}

	if !cp.Loaded {
		if err := p.readPageInto(pgno, cp); err != nil {
			p.cache.Release(cp, true)
			return nil, err
		}
		cp.Loaded = true
	}

	return wrapPage(p, cp), nil
}

// readPageInto loads pgno's on-disk content (or the WAL's overriding
// frame, in WAL mode) into an already-allocated cache buffer.
func (p *Pager) readPageInto(pgno Pgno, cp *pcache.Page) error {
	if p.walSnap != nil {
		if fr, ok := p.walSnap.Lookup(uint32(pgno)); ok {
			copy(cp.Data, fr.Data)
			return nil
		}
	}

	offset := int64(pgno-1) * int64(p.pageSize)
	n, err := p.file.ReadAt(cp.Data, offset)
	if err != nil {
		return NewPathError(CodeIOErrRead, "read page", p.filename, err)
	}
	if n < p.pageSize {
		for i := n; i < p.pageSize; i++ {
			cp.Data[i] = 0
		}
	}
	if pgno > p.dbSize {
		p.dbSize = pgno
	}
	return nil
}

// Put releases a reference to a page.
func (p *Pager) Put(page *DbPage) {
	if page == nil {
		return
	}
	page.Unref()
}

// Write marks a page as writeable, journaling its original content the
// first time it is touched within the current transaction.
func (p *Pager) Write(page *DbPage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.readOnly {
		return ErrReadOnly
	}
	if page == nil {
		return errors.New("nil page")
	}

	if p.state == PagerStateOpen || p.state == PagerStateReader {
		if err := p.beginWriteTransactionLocked(); err != nil {
			return err
		}
	}

	if !page.IsWriteable() {
		if err := p.journalPage(page); err != nil {
			return err
		}
	}

	if len(p.savepoints) > 0 {
		if err := p.savePageState(page); err != nil {
			return err
		}
	}

	page.MakeWriteable()
	page.MakeDirty()

	if p.state == PagerStateWriterLocked {
		p.state = PagerStateWriterCachemod
	}

	return nil
}

// Commit commits the current write transaction.
func (p *Pager) Commit() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state < PagerStateWriterLocked {
		return ErrNoTransaction
	}

	if err := p.bumpChangeCounter(); err != nil {
		p.state = PagerStateError
		p.errCode = err
		return err
	}

	var err error
	if p.journalMode == JournalModeWAL {
		err = p.commitWAL()
	} else {
		err = p.commitRollback()
	}
	if err != nil {
		p.state = PagerStateError
		p.errCode = err
		return err
	}

	for _, cp := range p.cache.DirtyList() {
		cp.Writeable = false
	}
	p.cache.CleanAll()
	p.clearSavepointsLocked()

	p.state = PagerStateOpen
	p.lockState = vfs.LockShared
	p.dbOrigSize = p.dbSize

	p.log.Debug("commit", "pages", p.dbSize)
	return nil
}

// commitRollback flushes a rollback-mode write transaction. The
// journal is synced first, so every original page image (including
// page 1's, freshly journaled by bumpChangeCounter if nothing else
// touched it) is durable before the database file they guard against
// is touched (WRITER_CACHEMOD -> WRITER_DBMOD), and only then are the
// dirty pages written out.
func (p *Pager) commitRollback() error {
	if p.journal != nil && p.synchronous != SynchronousOff {
		if err := p.journal.Sync(); err != nil {
			return NewPathError(CodeIOErrFsync, "sync journal", p.filename, err)
		}
	}

	if err := p.writeDirtyPages(); err != nil {
		return err
	}
	if p.synchronous != SynchronousOff {
		if err := p.file.Sync(vfs.SyncNormal); err != nil {
			return NewPathError(CodeIOErrFsync, "sync database", p.filename, err)
		}
	}
	return p.finalizeJournal()
}

func (p *Pager) commitWAL() error {
	dirty := p.cache.DirtyList()
	frames := make([]*wal.Frame, 0, len(dirty))
	for _, cp := range dirty {
		if !cp.ShouldWrite() {
			continue
		}
		commitSize := uint32(0)
		if cp == dirty[len(dirty)-1] {
			commitSize = uint32(p.dbSize)
		}
		if err := p.walFile.Append(cp.Pgno, cp.Data, commitSize); err != nil {
			return NewPathError(CodeIOErrWrite, "wal append", p.filename+"-wal", err)
		}
		frames = append(frames, &wal.Frame{Pgno: uint32(cp.Pgno), CommitSize: commitSize, Data: cp.Data})
	}
	if err := p.walFile.Sync(); err != nil {
		return NewPathError(CodeIOErrFsync, "wal sync", p.filename+"-wal", err)
	}
	p.refreshWALSnapshot(frames)
	return nil
}

// Rollback rolls back the current write transaction.
func (p *Pager) Rollback() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rollbackLocked()
}

func (p *Pager) rollbackLocked() error {
	if p.state < PagerStateWriterLocked {
		return ErrNoTransaction
	}

	if p.journalMode != JournalModeWAL && p.journal != nil {
		if err := p.journal.Rollback(p); err != nil {
			p.state = PagerStateError
			p.errCode = err
			return err
		}
		p.journal.Delete()
		p.journal = nil
	}

	// The cached copies of dirty pages still hold the discarded
	// modifications; the next Get reloads them from the file or WAL.
	for _, cp := range p.cache.DirtyList() {
		cp.Writeable = false
		cp.Loaded = false
	}
	p.cache.CleanAll()
	p.cache.Truncate(uint32(p.dbOrigSize))
	p.dbSize = p.dbOrigSize
	p.clearSavepointsLocked()

	p.state = PagerStateOpen
	p.lockState = vfs.LockShared

	return nil
}

// PageSize returns the page size of the database.
func (p *Pager) PageSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pageSize
}

// PageCount returns the number of pages in the database.
func (p *Pager) PageCount() Pgno {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dbSize
}

// IsReadOnly returns true if the pager is read-only.
func (p *Pager) IsReadOnly() bool { return p.readOnly }

// GetHeader returns the database header.
func (p *Pager) GetHeader() *DatabaseHeader {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.header
}

func (p *Pager) initializeNewDatabase() error {
	p.header = NewDatabaseHeader(p.pageSize)
	p.header.DatabaseSize = 0

	headerData := p.header.Serialize()
	if err := p.file.WriteAt(headerData, 0); err != nil {
		return NewPathError(CodeIOErrWrite, "write header", p.filename, err)
	}
	empty := make([]byte, p.pageSize-DatabaseHeaderSize)
	if err := p.file.WriteAt(empty, DatabaseHeaderSize); err != nil {
		return NewPathError(CodeIOErrWrite, "write first page", p.filename, err)
	}
	if err := p.file.Sync(vfs.SyncNormal); err != nil {
		return NewPathError(CodeIOErrFsync, "sync database", p.filename, err)
	}
	p.dbSize = 1
	return nil
}

func (p *Pager) readHeader() error {
	headerData := make([]byte, DatabaseHeaderSize)
	if _, err := p.file.ReadAt(headerData, 0); err != nil {
		return NewPathError(CodeIOErrRead, "read header", p.filename, err)
	}

	header, err := ParseDatabaseHeader(headerData)
	if err != nil {
		return NewPathError(CodeCorrupt, "parse header", p.filename, err)
	}
	if err := header.Validate(); err != nil {
		return NewPathError(CodeCorrupt, "validate header", p.filename, err)
	}
	p.header = header

	if actual := header.GetPageSize(); actual != p.pageSize {
		p.pageSize = actual
		p.cache.Close()
		if !p.sharedMem {
			_ = p.allocator.Close()
			p.allocator = alloc.New(actual, defaultExtraBytes, defaultSlabCap)
		}
		p.cache = pcache.New(p.group, p.allocator, actual, true)
		p.cache.SetStress(p.stressWriteback)
	}
	return nil
}

// writePage writes one page's content directly to the database file.
func (p *Pager) writePage(pgno Pgno, data []byte, shouldWrite bool) error {
	if pgno == 0 {
		return ErrInvalidPageNum
	}
	if !shouldWrite {
		return nil
	}
	offset := int64(pgno-1) * int64(p.pageSize)
	if err := p.file.WriteAt(data, offset); err != nil {
		return NewPathError(CodeIOErrWrite, fmt.Sprintf("write page %d", pgno), p.filename, err)
	}
	if pgno > p.dbSize {
		p.dbSize = pgno
	}
	return nil
}

func (p *Pager) writeDirtyPages() error {
	for _, cp := range p.cache.DirtyList() {
		if err := p.writePage(Pgno(cp.Pgno), cp.Data, cp.ShouldWrite()); err != nil {
			return err
		}
	}
	p.state = PagerStateWriterFinished
	return nil
}

// stressWriteback is the pcache.Manager's StressFunc: it forces one
// dirty page out to the journal/WAL and, once its sync requirement is
// satisfied, to the database file, so its cache slot can be recycled
// mid-transaction.
func (p *Pager) stressWriteback(cp *pcache.Page) error {
	if p.noSpillDepth > 0 {
		return ErrSpillDisabled
	}
	if p.spillMode == SpillOffRollback {
		return ErrSpillDisabled
	}
	if p.spillMode == SpillOffNoSync && cp.NeedsSync() {
		return ErrSpillDisabled
	}

	if cp.NeedsSync() && p.journalMode != JournalModeWAL && p.journal != nil {
		if err := p.journal.Sync(); err != nil {
			return err
		}
		p.cache.ClearSyncFlags()
	}
	if err := p.writePage(Pgno(cp.Pgno), cp.Data, cp.ShouldWrite()); err != nil {
		return err
	}
	p.cache.MakeClean(cp)
	return nil
}

// enterNoSpill and exitNoSpill bracket a scoped region where
// stressWriteback must not run, mirroring SQLite's doNotSpill
// acquisition around a savepoint rollback: the pages restoreToSavepoint
// is about to overwrite must not be spilled out from under it by the
// cache's own eviction policy first.
func (p *Pager) enterNoSpill() {
	p.noSpillDepth++
}

func (p *Pager) exitNoSpill() {
	p.noSpillDepth--
}

func (p *Pager) acquireSharedLock() error {
	if p.lockState >= vfs.LockShared {
		return nil
	}
	if err := p.file.Lock(vfs.LockShared); err != nil {
		p.lockState = vfs.LockUnknown
		return NewPathError(CodeBusy, "lock shared", p.filename, err)
	}
	p.lockState = vfs.LockShared
	p.state = PagerStateReader
	return nil
}

func (p *Pager) beginWriteTransactionLocked() error {
	if p.readOnly {
		return ErrReadOnly
	}
	if p.state >= PagerStateWriterLocked {
		return ErrTransactionOpen
	}

	if err := p.file.Lock(vfs.LockReserved); err != nil {
		return NewPathError(CodeBusy, "lock reserved", p.filename, err)
	}
	p.lockState = vfs.LockReserved
	p.state = PagerStateWriterLocked
	p.dbOrigSize = p.dbSize

	if p.journalMode != JournalModeWAL {
		if err := p.openJournal(); err != nil {
			return err
		}
	}

	return nil
}

func (p *Pager) journalPage(page *DbPage) error {
	if p.journalMode == JournalModeOff || p.journalMode == JournalModeWAL {
		return nil
	}
	if p.journal == nil {
		if err := p.openJournal(); err != nil {
			return err
		}
	}
	if err := p.journal.WriteOriginal(uint32(page.Pgno), page.Data); err != nil {
		return err
	}
	return p.journalSectorSiblings(page.Pgno)
}

// pagesPerSector reports how many database pages make up one disk
// sector, at least 1. It is 1 whenever pageSize already meets or
// exceeds sectorSize, in which case no grouping is needed.
func (p *Pager) pagesPerSector() int {
	if p.sectorSize <= p.pageSize {
		return 1
	}
	return p.sectorSize / p.pageSize
}

// journalSectorSiblings journals every other page sharing pgno's disk
// sector that has not already been journaled this transaction.
// Flushing a single dirty page back to the database file while leaving
// its sector-mates untouched risks the OS tearing the physical sector
// mid-write if the page size is smaller than the sector size; a crash
// there would corrupt the sibling pages' content with no journal entry
// to roll them back from. Journaling the whole sector up front, before
// any of its pages can reach the database file, closes that gap:
// Rollback can restore every page in the sector, not just the one the
// caller actually modified. Siblings pulled in this way are marked
// Writeable but not dirty, so they pick up no spurious journal-sync
// requirement of their own (nothing about their content changed) --
// the would-be duplicate sync SQLite calls SPILLFLAG_NOSYNC suppression
// around a grouped write never arises here in the first place.
func (p *Pager) journalSectorSiblings(pgno Pgno) error {
	perSector := p.pagesPerSector()
	if perSector <= 1 {
		return nil
	}

	group := (uint32(pgno) - 1) / uint32(perSector)
	first := Pgno(group*uint32(perSector) + 1)
	last := first + Pgno(perSector) - 1

	for sib := first; sib <= last; sib++ {
		if sib == pgno || sib < 1 || sib > p.dbOrigSize {
			continue
		}

		cp, err := p.cache.Fetch(uint32(sib), pcache1.CreateAlways)
		if err != nil {
			return NewPathError(CodeNoMem, "journal sector sibling", p.filename, err)
		}
		if cp.Writeable {
			p.cache.Release(cp, false)
			continue
		}
		if !cp.Loaded {
			if err := p.readPageInto(sib, cp); err != nil {
				p.cache.Release(cp, false)
				return err
			}
			cp.Loaded = true
		}
		if err := p.journal.WriteOriginal(uint32(sib), cp.Data); err != nil {
			p.cache.Release(cp, false)
			return err
		}
		cp.Writeable = true
		p.cache.Release(cp, false)
	}
	return nil
}

func (p *Pager) openJournal() error {
	if p.journal != nil {
		return nil
	}
	p.journal = NewJournal(p.vfs, p.journalFilename, p.pageSize, p.dbSize)
	return p.journal.Open()
}

func (p *Pager) finalizeJournal() error {
	if p.journal == nil {
		return nil
	}
	var err error
	switch p.journalMode {
	case JournalModeDelete:
		err = p.journal.Finalize()
	case JournalModeTruncate:
		err = p.journal.Truncate()
	case JournalModePersist:
		err = p.journal.ZeroHeader()
	case JournalModeMemory:
		err = p.journal.Finalize()
	}
	p.journal = nil
	return err
}

func (p *Pager) recoverHotJournal() error {
	j := NewJournal(p.vfs, p.journalFilename, p.pageSize, p.dbSize)
	valid, err := j.IsValid()
	if err != nil || !valid {
		return nil
	}
	p.log.Info("recovering hot journal", "path", p.journalFilename)
	if err := j.Open(); err != nil {
		return err
	}
	if err := j.Rollback(p); err != nil {
		return fmt.Errorf("pager: hot journal recovery: %w", err)
	}
	return j.Delete()
}

func (p *Pager) openWAL() error {
	walPath := p.filename + "-wal"
	f, existed, err := p.vfs.Open(walPath, vfs.OpenReadWrite|vfs.OpenCreate|vfs.OpenWAL)
	if err != nil {
		return NewPathError(CodeCantOpen, "open wal", walPath, err)
	}
	if !existed {
		s1, s2 := vfs.NewSalt()
		w, err := wal.Create(f, p.pageSize, s1, s2)
		if err != nil {
			return err
		}
		p.walFile = w
		p.walSnap = wal.BuildSnapshot(nil)
		return nil
	}
	w, frames, err := wal.Open(f, p.pageSize)
	if err != nil {
		return err
	}
	p.walFile = w
	p.walSnap = wal.BuildSnapshot(frames)
	if sz := p.walSnap.DBSize(); sz > 0 {
		p.dbSize = Pgno(sz)
	}
	return nil
}

// refreshWALSnapshot folds the frames just appended by commitWAL into
// the pager's snapshot so a subsequent Get sees the committed content
// instead of falling through to the stale on-disk page.
func (p *Pager) refreshWALSnapshot(frames []*wal.Frame) {
	if p.walSnap == nil {
		p.walSnap = wal.BuildSnapshot(nil)
	}
	p.walSnap = p.walSnap.Merge(frames)
}

// bumpChangeCounter advances the file change counter and pokes it,
// along with the current page count, directly into page 1's cached
// content, mirroring SQLite's pager_write_changecounter: the counter
// rides along with whatever write already touches page 1 instead of
// a separate header record, so it cannot be clobbered by (or clobber)
// an unrelated in-flight modification to the rest of page 1. In
// rollback mode this journals page 1's original content the first time
// a transaction touches it; in WAL mode page 1 simply rides the normal
// dirty-page append like any other page. Called on every committing
// write transaction, whether or not the page count changed, so bytes
// 24-27 of page 1 always differ across a commit.
func (p *Pager) bumpChangeCounter() error {
	cp, err := p.cache.Fetch(1, pcache1.CreateAlways)
	if err != nil {
		return NewPathError(CodeNoMem, "commit", p.filename, err)
	}
	page := wrapPage(p, cp)
	defer p.Put(page)

	if !cp.Loaded {
		if err := p.readPageInto(1, cp); err != nil {
			return err
		}
		cp.Loaded = true
	}
	if !page.IsWriteable() {
		if err := p.journalPage(page); err != nil {
			return err
		}
	}

	p.header.FileChangeCounter++
	p.header.DatabaseSize = uint32(p.dbSize)

	binary.BigEndian.PutUint32(page.Data[OffsetFileChangeCounter:], p.header.FileChangeCounter)
	binary.BigEndian.PutUint32(page.Data[OffsetDatabaseSize:], p.header.DatabaseSize)

	page.MakeWriteable()
	page.MakeDirty()
	return nil
}
