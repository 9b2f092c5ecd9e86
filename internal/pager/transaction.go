package pager

import (
	"errors"
	"sync"

	"github.com/FocuswithJustin/gopager/internal/pager/vfs"
	"github.com/FocuswithJustin/gopager/internal/pager/wal"
)

// TransactionState represents the current state of a transaction.
type TransactionState int

const (
	// TxNone indicates no transaction is active.
	TxNone TransactionState = iota
	// TxRead indicates a read transaction is active.
	TxRead
	// TxWrite indicates a write transaction is active.
	TxWrite
)

// TransactionManager tracks transaction state independently of a
// Pager, for callers (e.g. a connection pool) that want to reason
// about transaction lifecycles without reaching into pager internals.
type TransactionManager struct {
	state      TransactionState
	journal    *Journal
	readRefs   int
	writeOwner interface{}
	mu         sync.RWMutex
}

// NewTransactionManager creates a new transaction manager.
func NewTransactionManager() *TransactionManager {
	return &TransactionManager{state: TxNone}
}

// BeginRead starts a read transaction. Multiple read transactions can
// be active simultaneously.
func (p *Pager) BeginRead() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == PagerStateOpen {
		if err := p.acquireSharedLock(); err != nil {
			return err
		}
	}
	if p.state == PagerStateError {
		return p.errCode
	}
	if p.state >= PagerStateWriterLocked {
		return nil
	}
	p.state = PagerStateReader
	return nil
}

// BeginWrite starts a write transaction. Only one write transaction
// can be active at a time.
func (p *Pager) BeginWrite() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.readOnly {
		return ErrReadOnly
	}
	if p.state >= PagerStateWriterLocked && p.state < PagerStateError {
		return ErrTransactionOpen
	}
	if p.state == PagerStateError {
		return p.errCode
	}
	return p.beginWriteTransactionLocked()
}

// InTransaction returns true if any transaction is active.
func (p *Pager) InTransaction() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state >= PagerStateReader && p.state < PagerStateError
}

// InWriteTransaction returns true if a write transaction is active.
func (p *Pager) InWriteTransaction() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state >= PagerStateWriterLocked && p.state < PagerStateError
}

// GetTransactionState returns the current transaction state.
func (p *Pager) GetTransactionState() TransactionState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	switch {
	case p.state == PagerStateError:
		return TxNone
	case p.state >= PagerStateWriterLocked:
		return TxWrite
	case p.state >= PagerStateReader:
		return TxRead
	default:
		return TxNone
	}
}

// EndRead ends a read transaction. Close does not call it; Close drops
// the lock by closing the database file.
func (p *Pager) EndRead() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != PagerStateReader {
		return nil
	}
	if p.lockingMode != LockingModeExclusive {
		if err := p.file.Unlock(vfs.LockNone); err != nil {
			p.lockState = vfs.LockUnknown
			return NewPathError(CodeIOErr, "unlock", p.filename, err)
		}
		p.lockState = vfs.LockNone
	}
	p.state = PagerStateOpen
	return nil
}

func (p *Pager) validateTransactionState() error {
	if p.state == PagerStateError {
		if p.errCode != nil {
			return p.errCode
		}
		return errors.New("pager is in error state")
	}
	return nil
}

func (p *Pager) setErrorState(err error) {
	p.state = PagerStateError
	p.errCode = err
}

func (p *Pager) clearErrorState() {
	if p.state == PagerStateError {
		p.state = PagerStateOpen
		p.errCode = nil
	}
}

// GetLockState returns the current lock level held on the database
// file.
func (p *Pager) GetLockState() vfs.LockLevel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lockState
}

func (p *Pager) upgradeToWriteLock() error {
	if p.readOnly {
		return ErrReadOnly
	}
	if p.lockState >= vfs.LockReserved {
		return nil
	}
	if err := p.file.Lock(vfs.LockReserved); err != nil {
		return NewPathError(CodeBusy, "upgrade lock", p.filename, err)
	}
	p.lockState = vfs.LockReserved
	return nil
}

func (p *Pager) downgradeLock() error {
	if p.lockState < vfs.LockReserved {
		return nil
	}
	if err := p.file.Unlock(vfs.LockShared); err != nil {
		p.lockState = vfs.LockUnknown
		return NewPathError(CodeIOErr, "downgrade lock", p.filename, err)
	}
	p.lockState = vfs.LockShared
	return nil
}

// TryUpgradeToExclusive attempts to acquire an EXCLUSIVE lock, passing
// through PENDING first. It does not wait: if another connection still
// holds a lock, the EXCLUSIVE request fails with a busy error. Neither
// bundled VFS refuses a new SHARED lock while PENDING is held.
func (p *Pager) TryUpgradeToExclusive() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tryUpgradeToExclusiveLocked()
}

func (p *Pager) tryUpgradeToExclusiveLocked() (bool, error) {
	if p.lockState >= vfs.LockExclusive {
		return true, nil
	}
	if err := p.file.Lock(vfs.LockPending); err != nil {
		return false, NewPathError(CodeBusy, "lock pending", p.filename, err)
	}
	p.lockState = vfs.LockPending

	if err := p.file.Lock(vfs.LockExclusive); err != nil {
		return false, NewPathError(CodeBusy, "lock exclusive", p.filename, err)
	}
	p.lockState = vfs.LockExclusive
	return true, nil
}

// WaitForReadersToFinish makes one attempt to acquire EXCLUSIVE via
// TryUpgradeToExclusive. It does not block: if another reader still
// holds a lock, it returns the busy error at once.
func (p *Pager) WaitForReadersToFinish() error {
	_, err := p.TryUpgradeToExclusive()
	return err
}

// Checkpoint copies every committed frame currently in the WAL back
// into the main database file and resets the WAL. It is only valid in
// WAL journal mode.
func (p *Pager) Checkpoint() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.journalMode != JournalModeWAL {
		return errors.New("checkpoint not supported outside wal journal mode")
	}
	if p.state >= PagerStateWriterLocked {
		return ErrTransactionOpen
	}
	if p.walFile == nil {
		return nil
	}

	if ok, err := p.tryUpgradeToExclusiveLocked(); err != nil || !ok {
		return err
	}

	checkpointer := wal.NewCheckpointer(p.pageSize)
	n, err := checkpointer.Checkpoint(p.walSnap, func(pgno uint32, data []byte) error {
		return p.writePage(Pgno(pgno), data, true)
	}, func() error {
		return p.file.Sync(vfs.SyncNormal)
	})
	if err != nil {
		return err
	}

	s1, s2 := vfs.NewSalt()
	if err := p.walFile.Reset(s1, s2); err != nil {
		return err
	}
	p.walSnap = wal.BuildSnapshot(nil)

	if err := p.file.Unlock(vfs.LockShared); err != nil {
		p.lockState = vfs.LockUnknown
	} else {
		p.lockState = vfs.LockShared
	}

	p.log.Info("checkpoint complete", "pages", n)
	return nil
}

// SetJournalMode sets the journal mode for the pager. It cannot be
// changed while a transaction is open.
func (p *Pager) SetJournalMode(mode JournalMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != PagerStateOpen {
		return errors.New("cannot change journal mode during transaction")
	}

	switch mode {
	case JournalModeDelete, JournalModePersist, JournalModeOff,
		JournalModeTruncate, JournalModeMemory:
		p.journalMode = mode
		return nil
	case JournalModeWAL:
		p.journalMode = mode
		return p.openWAL()
	default:
		return errors.New("invalid journal mode")
	}
}

// GetJournalMode returns the current journal mode.
func (p *Pager) GetJournalMode() JournalMode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.journalMode
}

// IsAutoVacuum returns true if auto-vacuum is enabled.
func (p *Pager) IsAutoVacuum() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.header == nil {
		return false
	}
	return p.header.LargestRootPage > 0
}

// GetPageCount returns the current page count.
func (p *Pager) GetPageCount() Pgno {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dbSize
}

// GetOriginalPageCount returns the page count at the start of the
// transaction.
func (p *Pager) GetOriginalPageCount() Pgno {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dbOrigSize
}
