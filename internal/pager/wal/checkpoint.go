package wal

import "fmt"

// Snapshot is a reader's fixed view of the WAL as of the moment it was
// built: the most recent frame for each page, and the database size in
// pages as of the last complete commit at or before that point. Two
// readers built at different times may legitimately see different
// snapshots of the same open WAL; that is the whole point of a reader
// never needing a lock that would block the writer.
type Snapshot struct {
	byPgno   map[uint32]*Frame
	dbSize   uint32
	maxIndex int // number of frames folded into this snapshot; Checkpoint does not read it
}

// BuildSnapshot folds frames (as returned by Open, or accumulated since)
// into a Snapshot: only frames up to and including the last one with a
// non-zero CommitSize are visible, since a reader must never observe a
// partially-committed transaction.
func BuildSnapshot(frames []*Frame) *Snapshot {
	s := &Snapshot{byPgno: make(map[uint32]*Frame)}
	lastCommit := -1
	for i, f := range frames {
		if f.CommitSize != 0 {
			lastCommit = i
		}
	}
	if lastCommit < 0 {
		return s
	}
	for i := 0; i <= lastCommit; i++ {
		f := frames[i]
		s.byPgno[f.Pgno] = f
		if f.CommitSize != 0 {
			s.dbSize = f.CommitSize
		}
	}
	s.maxIndex = lastCommit + 1
	return s
}

// Merge folds frames appended after this snapshot was built into a new
// snapshot, without re-reading frames already folded into s. Used after
// a WAL commit so a reader's next Lookup sees the just-written pages
// instead of falling through to the stale on-disk copy.
func (s *Snapshot) Merge(frames []*Frame) *Snapshot {
	next := &Snapshot{byPgno: make(map[uint32]*Frame, len(s.byPgno)+len(frames)), dbSize: s.dbSize, maxIndex: s.maxIndex}
	for pgno, f := range s.byPgno {
		next.byPgno[pgno] = f
	}
	lastCommit := -1
	for i, f := range frames {
		if f.CommitSize != 0 {
			lastCommit = i
		}
	}
	if lastCommit < 0 {
		return next
	}
	for i := 0; i <= lastCommit; i++ {
		f := frames[i]
		next.byPgno[f.Pgno] = f
		if f.CommitSize != 0 {
			next.dbSize = f.CommitSize
		}
	}
	next.maxIndex += lastCommit + 1
	return next
}

// Lookup returns the frame for pgno visible in this snapshot, if any.
func (s *Snapshot) Lookup(pgno uint32) (*Frame, bool) {
	f, ok := s.byPgno[pgno]
	return f, ok
}

// DBSize returns the database size, in pages, as of this snapshot's
// last commit.
func (s *Snapshot) DBSize() uint32 { return s.dbSize }

// Checkpointer copies every frame in a snapshot into the main database
// file, in page-number order so writes are roughly sequential, then
// syncs it. It does not reset the WAL; the caller does that afterwards.
// pageSize must match the WAL's own page size.
type Checkpointer struct {
	pageSize int
}

// NewCheckpointer returns a Checkpointer for a database using the given
// page size.
func NewCheckpointer(pageSize int) *Checkpointer {
	return &Checkpointer{pageSize: pageSize}
}

// WritePage is implemented by whatever the pager exposes for writing a
// raw page of bytes to the main database file; a plain function, so the
// Checkpointer holds no handle on the database file itself.
type WritePage func(pgno uint32, data []byte) error

// SyncDB is implemented by the pager to fsync the main database file
// once every frame has been copied in.
type SyncDB func() error

// Checkpoint copies every page in snap into the database via write,
// then calls sync once. It returns the number of pages written.
func (c *Checkpointer) Checkpoint(snap *Snapshot, write WritePage, sync SyncDB) (int, error) {
	pgnos := make([]uint32, 0, len(snap.byPgno))
	for pgno := range snap.byPgno {
		pgnos = append(pgnos, pgno)
	}
	sortUint32(pgnos)

	for _, pgno := range pgnos {
		f := snap.byPgno[pgno]
		if len(f.Data) != c.pageSize {
			return 0, fmt.Errorf("wal: checkpoint frame for page %d is %d bytes, want %d", pgno, len(f.Data), c.pageSize)
		}
		if err := write(pgno, f.Data); err != nil {
			return 0, fmt.Errorf("wal: checkpoint write page %d: %w", pgno, err)
		}
	}
	if err := sync(); err != nil {
		return 0, fmt.Errorf("wal: checkpoint sync: %w", err)
	}
	return len(pgnos), nil
}

func sortUint32(s []uint32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
