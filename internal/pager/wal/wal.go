// Package wal implements the write-ahead log durability backend: an
// append-only file of committed page frames that readers replay on top
// of the main database file, checkpointed back into place once no
// reader still needs the old content.
//
// The file format mirrors SQLite's WAL: a 32-byte header followed by a
// sequence of 24-byte frame headers each immediately followed by one
// page of content. Frames are chained by a running checksum so a
// truncated tail (the crash case this format exists to survive) is
// detected by the first frame whose checksum does not match rather
// than by a length field.
package wal

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/gopager/internal/pager/vfs"
)

const (
	// HeaderSize is the size of the WAL file header.
	HeaderSize = 32
	// FrameHeaderSize is the size of the per-frame header preceding each
	// page's content.
	FrameHeaderSize = 24

	magic = 0x377f0682
)

// Header is the WAL file header, present once at offset 0.
type Header struct {
	Magic       uint32
	FormatVer   uint32
	PageSize    uint32
	Checkpoint  uint32 // checkpoint sequence number, bumped each time the WAL is reset
	Salt1, Salt2 uint32
	Checksum1, Checksum2 uint32
}

// Frame is one committed page as recorded in the WAL: its identity,
// content, and the database size in pages immediately after the commit
// that produced it (0 for a frame that is not the last of its commit).
type Frame struct {
	Pgno        uint32
	CommitSize  uint32 // 0 unless this frame ends a transaction
	Data        []byte
	offset      int64 // byte offset of this frame's header in the WAL file, set on read/append
}

// WAL is one open write-ahead log. It is not safe for concurrent use by
// more than one writer. Append, FrameCount and Reset take the WAL's
// mutex, so FrameCount may be called while a writer appends; Sync does
// not take it.
type WAL struct {
	mu sync.Mutex

	file     vfs.File
	pageSize int

	hdr        Header
	checksum1  uint32
	checksum2  uint32
	nextOffset int64
	frameCount int
}

// Create initializes a brand-new WAL file with the salt pair the caller
// passes in.
func Create(f vfs.File, pageSize int, salt1, salt2 uint32) (*WAL, error) {
	w := &WAL{file: f, pageSize: pageSize}
	w.hdr = Header{
		Magic:     magic,
		FormatVer: 1,
		PageSize:  uint32(pageSize),
		Salt1:     salt1,
		Salt2:     salt2,
	}
	w.checksum1, w.checksum2 = checksumSeed(salt1, salt2)
	w.hdr.Checksum1, w.hdr.Checksum2 = w.checksum1, w.checksum2
	if err := w.writeHeader(); err != nil {
		return nil, err
	}
	w.nextOffset = HeaderSize
	return w, nil
}

// Open reads an existing WAL's header and validates the frame chain up
// to the first broken checksum, positioning the WAL to append after the
// last valid frame. It returns the frames found valid so a reader can
// build its snapshot without a second pass.
func Open(f vfs.File, pageSize int) (*WAL, []*Frame, error) {
	w := &WAL{file: f, pageSize: pageSize}
	if err := w.readHeader(); err != nil {
		return nil, nil, err
	}
	if w.hdr.Magic != magic {
		return nil, nil, fmt.Errorf("wal: bad magic %#x", w.hdr.Magic)
	}
	if int(w.hdr.PageSize) != pageSize {
		return nil, nil, fmt.Errorf("wal: page size mismatch: header has %d, want %d", w.hdr.PageSize, pageSize)
	}

	w.checksum1, w.checksum2 = w.hdr.Checksum1, w.hdr.Checksum2
	w.nextOffset = HeaderSize

	var frames []*Frame
	for {
		frame, ok, err := w.readFrameAt(w.nextOffset)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}
		frames = append(frames, frame)
		w.nextOffset += int64(FrameHeaderSize + pageSize)
		w.frameCount++
	}
	return w, frames, nil
}

// Append writes one frame to the end of the log, chaining its checksum
// onto the running total. commitSize must be non-zero on the frame that
// completes a transaction and zero otherwise; the reader stops treating
// the WAL as containing a valid commit at the first frame after the
// last non-zero commitSize.
func (w *WAL) Append(pgno uint32, data []byte, commitSize uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(data) != w.pageSize {
		return fmt.Errorf("wal: frame data is %d bytes, want %d", len(data), w.pageSize)
	}

	c1, c2 := chainChecksum(w.checksum1, w.checksum2, pgno, commitSize, w.hdr.Salt1, w.hdr.Salt2, data)

	buf := make([]byte, FrameHeaderSize+len(data))
	binary.BigEndian.PutUint32(buf[0:4], pgno)
	binary.BigEndian.PutUint32(buf[4:8], commitSize)
	binary.BigEndian.PutUint32(buf[8:12], w.hdr.Salt1)
	binary.BigEndian.PutUint32(buf[12:16], w.hdr.Salt2)
	binary.BigEndian.PutUint32(buf[16:20], c1)
	binary.BigEndian.PutUint32(buf[20:24], c2)
	copy(buf[FrameHeaderSize:], data)

	if err := w.file.WriteAt(buf, w.nextOffset); err != nil {
		return fmt.Errorf("wal: append frame: %w", err)
	}

	w.checksum1, w.checksum2 = c1, c2
	w.nextOffset += int64(len(buf))
	w.frameCount++
	return nil
}

// Sync flushes appended frames to stable storage. Callers must Sync
// after the last frame of a commit before acknowledging that commit.
func (w *WAL) Sync() error {
	return w.file.Sync(vfs.SyncNormal)
}

// FrameCount returns the number of frames currently in the log.
func (w *WAL) FrameCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frameCount
}

// Reset truncates the log back to just its header with a fresh salt,
// called after a checkpoint has copied every frame into the database
// file. The checkpoint sequence number is incremented so readers mid-
// snapshot from before the reset can detect it if they re-check the
// header.
func (w *WAL) Reset(salt1, salt2 uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.hdr.Checkpoint++
	w.hdr.Salt1, w.hdr.Salt2 = salt1, salt2
	w.checksum1, w.checksum2 = checksumSeed(salt1, salt2)
	w.hdr.Checksum1, w.hdr.Checksum2 = w.checksum1, w.checksum2
	if err := w.writeHeader(); err != nil {
		return err
	}
	if err := w.file.Truncate(HeaderSize); err != nil {
		return fmt.Errorf("wal: truncate on reset: %w", err)
	}
	w.nextOffset = HeaderSize
	w.frameCount = 0
	return nil
}

func (w *WAL) writeHeader() error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], w.hdr.Magic)
	binary.BigEndian.PutUint32(buf[4:8], w.hdr.FormatVer)
	binary.BigEndian.PutUint32(buf[8:12], w.hdr.PageSize)
	binary.BigEndian.PutUint32(buf[12:16], w.hdr.Checkpoint)
	binary.BigEndian.PutUint32(buf[16:20], w.hdr.Salt1)
	binary.BigEndian.PutUint32(buf[20:24], w.hdr.Salt2)
	binary.BigEndian.PutUint32(buf[24:28], w.hdr.Checksum1)
	binary.BigEndian.PutUint32(buf[28:32], w.hdr.Checksum2)
	if err := w.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("wal: write header: %w", err)
	}
	return nil
}

func (w *WAL) readHeader() error {
	buf := make([]byte, HeaderSize)
	n, err := w.file.ReadAt(buf, 0)
	if err != nil {
		return fmt.Errorf("wal: read header: %w", err)
	}
	if n < HeaderSize {
		return fmt.Errorf("wal: truncated header: got %d bytes", n)
	}
	w.hdr = Header{
		Magic:      binary.BigEndian.Uint32(buf[0:4]),
		FormatVer:  binary.BigEndian.Uint32(buf[4:8]),
		PageSize:   binary.BigEndian.Uint32(buf[8:12]),
		Checkpoint: binary.BigEndian.Uint32(buf[12:16]),
		Salt1:      binary.BigEndian.Uint32(buf[16:20]),
		Salt2:      binary.BigEndian.Uint32(buf[20:24]),
		Checksum1:  binary.BigEndian.Uint32(buf[24:28]),
		Checksum2:  binary.BigEndian.Uint32(buf[28:32]),
	}
	return nil
}

// readFrameAt reads and validates the frame at off, returning ok=false
// (with no error) at end-of-file or at the first frame whose checksum
// does not chain correctly - both signal "nothing more to replay",
// which is exactly how a torn write at the tail of the WAL should be
// treated.
func (w *WAL) readFrameAt(off int64) (*Frame, bool, error) {
	hdr := make([]byte, FrameHeaderSize)
	n, err := w.file.ReadAt(hdr, off)
	if err != nil {
		return nil, false, fmt.Errorf("wal: read frame header: %w", err)
	}
	if n < FrameHeaderSize {
		return nil, false, nil
	}

	pgno := binary.BigEndian.Uint32(hdr[0:4])
	commitSize := binary.BigEndian.Uint32(hdr[4:8])
	salt1 := binary.BigEndian.Uint32(hdr[8:12])
	salt2 := binary.BigEndian.Uint32(hdr[12:16])
	c1 := binary.BigEndian.Uint32(hdr[16:20])
	c2 := binary.BigEndian.Uint32(hdr[20:24])

	if salt1 != w.hdr.Salt1 || salt2 != w.hdr.Salt2 {
		return nil, false, nil
	}

	data := make([]byte, w.pageSize)
	n, err = w.file.ReadAt(data, off+FrameHeaderSize)
	if err != nil {
		return nil, false, fmt.Errorf("wal: read frame data: %w", err)
	}
	if n < w.pageSize {
		return nil, false, nil
	}

	wantC1, wantC2 := chainChecksum(w.checksum1, w.checksum2, pgno, commitSize, salt1, salt2, data)
	if wantC1 != c1 || wantC2 != c2 {
		return nil, false, nil
	}
	w.checksum1, w.checksum2 = c1, c2

	return &Frame{Pgno: pgno, CommitSize: commitSize, Data: data, offset: off}, true, nil
}

// checksumSeed derives the initial running checksum pair from the WAL's
// salt, so two WAL files with different salts never accidentally agree
// on a checksum chain for the same frame content.
func checksumSeed(salt1, salt2 uint32) (uint32, uint32) {
	h := blake3.New()
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], salt1)
	binary.BigEndian.PutUint32(buf[4:8], salt2)
	h.Write(buf[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint32(sum[0:4]), binary.BigEndian.Uint32(sum[4:8])
}

// chainChecksum folds one frame's header fields and content onto the
// previous checksum pair.
func chainChecksum(prev1, prev2, pgno, commitSize, salt1, salt2 uint32, data []byte) (uint32, uint32) {
	h := blake3.New()
	var buf [24]byte
	binary.BigEndian.PutUint32(buf[0:4], prev1)
	binary.BigEndian.PutUint32(buf[4:8], prev2)
	binary.BigEndian.PutUint32(buf[8:12], pgno)
	binary.BigEndian.PutUint32(buf[12:16], commitSize)
	binary.BigEndian.PutUint32(buf[16:20], salt1)
	binary.BigEndian.PutUint32(buf[20:24], salt2)
	h.Write(buf[:])
	h.Write(data)
	sum := h.Sum(nil)
	return binary.BigEndian.Uint32(sum[0:4]), binary.BigEndian.Uint32(sum[4:8])
}
