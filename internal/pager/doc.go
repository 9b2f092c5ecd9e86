/*
Package pager implements a pure Go SQLite-style database pager: page
I/O, caching, and atomic commit/rollback sitting between a B-tree layer
and the operating system's file I/O.

SQLite is in the public domain: https://sqlite.org/copyright.html

# Overview

The pager sits between the B-tree layer and a pluggable vfs.VFS,
providing page-based I/O, caching (via the pcache/pcache1 packages),
atomic commits, and concurrency control through file locking.

# Database File Format

SQLite databases begin with a 100-byte header containing metadata:
  - Magic string: "SQLite format 3\0"
  - Page size (512 to 65536 bytes, power of 2)
  - File format versions
  - Database size in pages
  - Schema information
  - Text encoding
  - User-defined metadata

All database access is done in fixed-size pages. The first page contains the
database header followed by the root page of the schema table.

# Page Management

Pages are the fundamental unit of database I/O:
  - Each page has a unique page number (1-based)
  - Pages can be clean (unchanged) or dirty (modified)
  - Reference counting prevents premature eviction from cache
  - Dirty pages are tracked for efficient commits

DbPage is a thin wrapper over pcache.Page; the page cache itself lives
in the pcache/pcache1/alloc packages, so its buffers, LRU recycling,
and stress-eviction policy can be shared across pagers via a process-
wide pcache1.Group (see ConfigurePageCache).

# Transaction Management

Write transactions use either a rollback journal or a WAL for atomicity:

  1. Begin: Acquire locks, open journal/WAL
  2. Journal: Record original page content before modification (rollback mode)
  3. Modify: Update pages in cache
  4. Commit: Write dirty pages (or WAL frames), sync, finalize journal
  5. Rollback: Restore pages from journal, discard cache

A hot journal found on Open (a hard crash before the previous
connection finalized it) is rolled back automatically before the
database is otherwise touched.

# Pager States

The pager implements a state machine:

	OPEN -> READER -> WRITER_LOCKED -> WRITER_CACHEMOD ->
	WRITER_DBMOD -> WRITER_FINISHED -> OPEN

Error conditions transition to the ERROR state, requiring rollback.

# Usage

Basic usage pattern:

	p, err := pager.Open("mydb.db", false, pager.WithMemoryVFS())
	if err != nil {
	    return err
	}
	defer p.Close()

	page, err := p.Get(1)
	if err != nil {
	    return err
	}
	defer p.Put(page)

	if err := p.Write(page); err != nil {
	    return err
	}
	if err := page.Write(100, []byte("Hello, World!")); err != nil {
	    return err
	}

	if err := p.Commit(); err != nil {
	    return err
	}

See the example tests for more usage patterns.

# Thread Safety

All public operations are thread-safe:
  - Pager uses RWMutex for state protection
  - pcache operations are mutex-protected
  - Reference counts are tracked under the cache's own lock

# Savepoints

Savepoints (see savepoint.go) let a write transaction undo part of its
own work without a full rollback. In the rollback-journal modes a
savepoint records the journal's page count and reads originals back
from the journal entries written after it; in WAL mode and with
journaling off it keeps an in-memory copy of each page the first time
the page is written after the savepoint.

# References

  - SQLite File Format: https://www.sqlite.org/fileformat.html
  - SQLite Architecture: https://www.sqlite.org/arch.html
  - SQLite Source Code: src/pager.c, src/pager.h, src/wal.c
*/
package pager
