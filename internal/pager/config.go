package pager

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/FocuswithJustin/gopager/internal/pager/alloc"
	"github.com/FocuswithJustin/gopager/internal/pager/pcache1"
	"github.com/FocuswithJustin/gopager/internal/pager/vfs"
	"github.com/FocuswithJustin/gopager/internal/pager/vfs/memvfs"
)

// JournalMode selects the durability backend a Pager uses for atomic
// commits.
type JournalMode int

const (
	// JournalModeDelete removes the rollback journal file after a
	// successful commit.
	JournalModeDelete JournalMode = iota
	// JournalModePersist zeroes the journal header after commit but
	// leaves the file in place, avoiding a create/delete cycle on
	// filesystems where that is expensive.
	JournalModePersist
	// JournalModeTruncate truncates the journal file to zero length
	// after commit.
	JournalModeTruncate
	// JournalModeMemory keeps journal content in memory only; a crash
	// loses the ability to roll back, trading durability for speed.
	JournalModeMemory
	// JournalModeOff disables rollback journaling entirely: no journal
	// is written, so there is no recovery of any kind. It is a separate
	// mode from JournalModeWAL and cannot be combined with it.
	JournalModeOff
	// JournalModeWAL uses the write-ahead log backend instead of a
	// rollback journal.
	JournalModeWAL
)

// SynchronousLevel controls how aggressively the pager calls Sync
// relative to commit/checkpoint boundaries.
type SynchronousLevel int

const (
	SynchronousOff SynchronousLevel = iota
	SynchronousNormal
	SynchronousFull
	SynchronousExtra
)

// LockingMode controls whether a Pager drops back to a shared lock
// between read transactions.
type LockingMode int

const (
	LockingModeNormal LockingMode = iota
	LockingModeExclusive
)

// SpillMode narrows when Fetch's stress callback is allowed to write a
// dirty page out mid-statement, mirroring SQLite's doNotSpill bit
// field.
type SpillMode int

const (
	SpillAllowed SpillMode = iota
	SpillOffRollback
	SpillOffNoSync
)

// Options holds the resolved configuration for one Pager, built from
// the zero value plus any Option funcs passed to Open.
type Options struct {
	PageSize    int
	CacheSize   int // pages; 0 means no limit; negative values are not converted to a memory size
	JournalMode JournalMode
	Synchronous SynchronousLevel
	LockingMode LockingMode
	MmapSize    int64
	VFS         vfs.VFS
	Logger      *slog.Logger
	SpillMode   SpillMode
	SectorSize  int
}

// Option configures a Pager at Open time.
type Option func(*Options)

// WithPageSize sets the page size for a newly created database. Has no
// effect opening an existing database, whose page size comes from its
// header.
func WithPageSize(n int) Option {
	return func(o *Options) { o.PageSize = n }
}

// WithCacheSize sets the suggested page-cache budget as a page count,
// passed unchanged to the cache group; 0 means no limit. A negative
// value is not converted to a byte budget, and the group evicts nothing
// under it.
func WithCacheSize(n int) Option {
	return func(o *Options) { o.CacheSize = n }
}

// WithJournalMode selects the durability backend.
func WithJournalMode(m JournalMode) Option {
	return func(o *Options) { o.JournalMode = m }
}

// WithSynchronous sets how aggressively fsync is called.
func WithSynchronous(s SynchronousLevel) Option {
	return func(o *Options) { o.Synchronous = s }
}

// WithLockingMode sets whether the pager holds an EXCLUSIVE lock for
// the life of the connection instead of dropping to SHARED between
// transactions.
func WithLockingMode(m LockingMode) Option {
	return func(o *Options) { o.LockingMode = m }
}

// WithMmapSize sets the maximum number of bytes the pager may map
// directly rather than reading through the page cache. A Pager that
// has no mmap-capable VFS silently ignores this.
func WithMmapSize(n int64) Option {
	return func(o *Options) { o.MmapSize = n }
}

// WithVFS overrides the file-system implementation; the default is the
// real OS filesystem. Tests pass memvfs.New() here to get deterministic
// crash injection.
func WithVFS(v vfs.VFS) Option {
	return func(o *Options) { o.VFS = v }
}

// WithLogger overrides the structured logger used for pager-internal
// events (state transitions, recovery, checkpoints). The default
// discards all output.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithSectorSize sets the assumed disk sector size, in bytes. When it
// exceeds the page size, journalPage also journals this page's other
// sector-mates before any of them can reach the database file, so a
// torn sector write mid-crash can still be rolled back in full. The
// default, 512, matches the journal header's own SectorSize field.
func WithSectorSize(n int) Option {
	return func(o *Options) { o.SectorSize = n }
}

// WithSpillMode narrows when the cache's stress callback may write a
// dirty page out mid-statement. The default, SpillAllowed, lets the
// pager spill freely whenever the cache needs a free slot.
func WithSpillMode(m SpillMode) Option {
	return func(o *Options) { o.SpillMode = m }
}

// WithMemoryVFS is a convenience for WithVFS(memvfs.New()), used by
// tests that want a fresh in-memory filesystem without importing the
// memvfs package directly.
func WithMemoryVFS() Option {
	return func(o *Options) { o.VFS = memvfs.New() }
}

func defaultOptions() *Options {
	return &Options{
		PageSize:    DefaultPageSize,
		CacheSize:   DefaultCacheSize,
		JournalMode: JournalModeDelete,
		Synchronous: SynchronousFull,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		SectorSize:  DefaultSectorSize,
	}
}

func resolveOptions(opts []Option) *Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// globalConfig mirrors SQLite's process-wide sqlite3_config(): a set of
// knobs that may only be changed before any Pager has been opened, and
// that every subsequently opened Pager inherits unless overridden by a
// per-connection Option.
var globalConfig = struct {
	mu          sync.Mutex
	pagersOpen  int64 // atomic counter of live pagers, gates reconfiguration
	group       *pcache1.Group
	allocator   *alloc.Allocator
	pageSize    int
	extraBytes  int
}{}

var errConfigAfterOpen = NewError(CodeProtocol, "configure", fmt.Errorf("cannot reconfigure after a pager has been opened"))

// ConfigurePageCache installs a process-wide shared page cache group
// and backing allocator, used by every Pager opened afterward that
// does not pass its own. It must be called before the first Pager is
// opened; calling it afterward returns an error rather than silently
// reconfiguring live pagers out from under them.
func ConfigurePageCache(pageSize, extraBytes, maxPages int) error {
	globalConfig.mu.Lock()
	defer globalConfig.mu.Unlock()

	if atomic.LoadInt64(&globalConfig.pagersOpen) > 0 {
		return errConfigAfterOpen
	}

	globalConfig.pageSize = pageSize
	globalConfig.extraBytes = extraBytes
	globalConfig.allocator = alloc.New(pageSize, extraBytes, maxPages)
	globalConfig.group = pcache1.NewGroup()
	globalConfig.group.SetMaxPage(maxPages)
	return nil
}

// ShutdownPageCache releases the process-wide page cache installed by
// ConfigurePageCache. Like ConfigurePageCache, it is only valid with no
// pager currently open.
func ShutdownPageCache() error {
	globalConfig.mu.Lock()
	defer globalConfig.mu.Unlock()

	if atomic.LoadInt64(&globalConfig.pagersOpen) > 0 {
		return errConfigAfterOpen
	}
	if globalConfig.allocator != nil {
		_ = globalConfig.allocator.Close()
	}
	globalConfig.allocator = nil
	globalConfig.group = nil
	return nil
}

func sharedGroupAndAllocator(pageSize int) (*pcache1.Group, *alloc.Allocator, bool) {
	globalConfig.mu.Lock()
	defer globalConfig.mu.Unlock()
	if globalConfig.allocator == nil || globalConfig.pageSize != pageSize {
		return nil, nil, false
	}
	return globalConfig.group, globalConfig.allocator, true
}
