package memvfs

import (
	"testing"

	"github.com/FocuswithJustin/gopager/internal/pager/vfs"
)

func TestOpenCreateThenReopen(t *testing.T) {
	fs := New()

	f, existed, err := fs.Open("/db", vfs.OpenReadWrite|vfs.OpenCreate)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if existed {
		t.Fatal("fresh file reported as existed")
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f2, existed2, err := fs.Open("/db", vfs.OpenReadWrite)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !existed2 {
		t.Fatal("reopened file should report existed")
	}
	_ = f2.Close()
}

func TestOpenWithoutCreateMissing(t *testing.T) {
	fs := New()
	if _, _, err := fs.Open("/missing", vfs.OpenReadWrite); err == nil {
		t.Fatal("expected error opening missing file without OpenCreate")
	}
}

func TestWriteAtReadAtRoundTrip(t *testing.T) {
	fs := New()
	f, _, err := fs.Open("/db", vfs.OpenReadWrite|vfs.OpenCreate)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	want := []byte("hello page")
	if err := f.WriteAt(want, 4096); err != nil {
		t.Fatalf("writeat: %v", err)
	}

	got := make([]byte, len(want))
	n, err := f.ReadAt(got, 4096)
	if err != nil {
		t.Fatalf("readat: %v", err)
	}
	if n != len(want) {
		t.Fatalf("short read: got %d want %d", n, len(want))
	}
	if string(got) != string(want) {
		t.Fatalf("round trip mismatch: got %q want %q", got, want)
	}

	size, err := f.FileSize()
	if err != nil {
		t.Fatalf("filesize: %v", err)
	}
	if size != 4096+int64(len(want)) {
		t.Fatalf("unexpected size %d", size)
	}
}

func TestKillAfterBytesSimulatesCrash(t *testing.T) {
	fs := New()
	fs.KillAfterBytes = 10

	f, _, err := fs.Open("/db", vfs.OpenReadWrite|vfs.OpenCreate)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if err := f.WriteAt(make([]byte, 4), 0); err != nil {
		t.Fatalf("first write should succeed: %v", err)
	}
	if err := f.WriteAt(make([]byte, 4096), 4); err == nil {
		t.Fatal("expected simulated crash on write past KillAfterBytes")
	}
}

func TestLockEscalationBlocksConflictingExclusive(t *testing.T) {
	fs := New()
	a, _, err := fs.Open("/db", vfs.OpenReadWrite|vfs.OpenCreate)
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	defer a.Close()
	b, _, err := fs.Open("/db", vfs.OpenReadWrite)
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	defer b.Close()

	if err := a.Lock(vfs.LockShared); err != nil {
		t.Fatalf("a shared: %v", err)
	}
	if err := b.Lock(vfs.LockShared); err != nil {
		t.Fatalf("b shared: %v", err)
	}
	if err := a.Lock(vfs.LockExclusive); err == nil {
		t.Fatal("expected a's exclusive lock to be blocked by b's shared lock")
	}

	if err := b.Unlock(vfs.LockNone); err != nil {
		t.Fatalf("b unlock: %v", err)
	}
	if err := a.Lock(vfs.LockExclusive); err != nil {
		t.Fatalf("a exclusive after b released: %v", err)
	}
}

func TestReservedLockExclusiveAcrossHandles(t *testing.T) {
	fs := New()
	a, _, _ := fs.Open("/db", vfs.OpenReadWrite|vfs.OpenCreate)
	defer a.Close()
	b, _, _ := fs.Open("/db", vfs.OpenReadWrite)
	defer b.Close()

	if err := a.Lock(vfs.LockReserved); err != nil {
		t.Fatalf("a reserved: %v", err)
	}
	if err := b.Lock(vfs.LockReserved); err == nil {
		t.Fatal("expected b reserved to be blocked while a holds reserved")
	}

	held, err := b.CheckReservedLock()
	if err != nil {
		t.Fatalf("check reserved: %v", err)
	}
	if !held {
		t.Fatal("expected CheckReservedLock to report a's reserved lock")
	}
}

func TestDeleteRemovesFile(t *testing.T) {
	fs := New()
	f, _, _ := fs.Open("/db", vfs.OpenReadWrite|vfs.OpenCreate)
	_ = f.Close()

	if err := fs.Delete("/db", true); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, err := fs.Access("/db")
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	if ok {
		t.Fatal("file should no longer be accessible after delete")
	}
}
