package pager

import (
	"errors"
	"fmt"
	"sync"

	"github.com/FocuswithJustin/gopager/internal/pager/pcache1"
)

// Savepoint is a named point within a write transaction that a caller
// can roll back to without undoing the whole transaction. When a
// durable rollback journal is active, it works by remembering the
// journal's page count at the moment the savepoint was taken: every
// page journaled after that mark already carries its pre-savepoint
// content in the journal itself, so rolling back just re-reads it from
// there. In journal modes with no durable per-page record (WAL, or
// journaling disabled), it falls back to an in-memory copy of each
// touched page instead.
type Savepoint struct {
	name string

	dbSize Pgno

	// journalBacked is true when this savepoint can be rolled back by
	// reading originals from the rollback journal (journalPageCount),
	// rather than from pageStates.
	journalBacked bool

	journalPageCount int

	// pageStates holds, for each page first written after this
	// savepoint was taken, the page's content as of the savepoint. Only
	// populated when journalBacked is false.
	pageStates map[Pgno][]byte
}

// SavepointManager manages a stack of savepoints independently of a
// Pager.
type SavepointManager struct {
	savepoints []*Savepoint
	mu         sync.RWMutex
}

// NewSavepointManager creates a new savepoint manager.
func NewSavepointManager() *SavepointManager {
	return &SavepointManager{savepoints: make([]*Savepoint, 0)}
}

// Savepoint creates a new savepoint with the given name.
func (p *Pager) Savepoint(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state < PagerStateWriterLocked {
		return errors.New("savepoint requires active write transaction")
	}
	if p.state == PagerStateError {
		return p.errCode
	}
	if name == "" {
		return errors.New("savepoint name cannot be empty")
	}
	for _, sp := range p.getSavepoints() {
		if sp.name == name {
			return fmt.Errorf("savepoint %s already exists", name)
		}
	}

	sp := &Savepoint{
		name:          name,
		dbSize:        p.dbSize,
		journalBacked: p.journalMode != JournalModeOff && p.journalMode != JournalModeWAL,
		pageStates:    make(map[Pgno][]byte),
	}
	if p.journal != nil {
		sp.journalPageCount = p.journal.GetPageCount()
	}

	p.addSavepoint(sp)
	return nil
}

// Release releases a savepoint and all savepoints created after it.
func (p *Pager) Release(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state < PagerStateWriterLocked {
		return errors.New("release requires active write transaction")
	}
	if p.state == PagerStateError {
		return p.errCode
	}

	index := p.findSavepoint(name)
	if index == -1 {
		return fmt.Errorf("no such savepoint: %s", name)
	}
	p.releaseSavepoints(index)
	return nil
}

// RollbackTo rolls back to a savepoint, undoing all changes made after
// it while leaving the savepoint itself (and the transaction) active.
func (p *Pager) RollbackTo(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state < PagerStateWriterLocked {
		return errors.New("rollback to savepoint requires active write transaction")
	}
	if p.state == PagerStateError {
		return p.errCode
	}

	index := p.findSavepoint(name)
	if index == -1 {
		return fmt.Errorf("no such savepoint: %s", name)
	}
	target := p.getSavepoints()[index]

	if err := p.restoreToSavepoint(target, index); err != nil {
		return err
	}

	if index > 0 {
		p.releaseSavepoints(index - 1)
	}
	return nil
}

// ClearSavepoints removes all savepoints. Called when a transaction
// commits or rolls back.
func (p *Pager) ClearSavepoints() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearSavepointsLocked()
}

func (p *Pager) clearSavepointsLocked() {
	p.savepoints = nil
}

// savePageState records page's content for every active savepoint that
// is not journal-backed and does not yet have an original copy of it.
// Write calls it on every call while any savepoint is active, before
// the page is modified; only the first call per page and savepoint
// records anything. Journal-backed savepoints need nothing recorded here:
// journalPage has already durably written the same original content to
// the rollback journal moments earlier.
func (p *Pager) savePageState(page *DbPage) error {
	for _, sp := range p.getSavepoints() {
		if sp.journalBacked {
			continue
		}
		if _, exists := sp.pageStates[page.Pgno]; !exists {
			data := make([]byte, len(page.Data))
			copy(data, page.Data)
			sp.pageStates[page.Pgno] = data
		}
	}
	return nil
}

// pageStatesFor returns sp's recorded original content for every page
// touched since it was taken, sourcing it from the rollback journal
// when sp is journal-backed and from its in-memory copy otherwise.
func (p *Pager) pageStatesFor(sp *Savepoint) (map[Pgno][]byte, error) {
	if !sp.journalBacked {
		return sp.pageStates, nil
	}
	if p.journal == nil {
		return nil, nil
	}
	raw, err := p.journal.PagesSince(sp.journalPageCount)
	if err != nil {
		return nil, err
	}
	out := make(map[Pgno][]byte, len(raw))
	for pgno, data := range raw {
		out[Pgno(pgno)] = data
	}
	return out, nil
}

// restoreToSavepoint puts every page touched since sp was taken back
// to its content as of sp, by walking forward from sp through every
// newer savepoint and taking the oldest recorded copy of each page.
func (p *Pager) restoreToSavepoint(sp *Savepoint, index int) error {
	p.enterNoSpill()
	defer p.exitNoSpill()

	savepoints := p.getSavepoints()

	pagesToRestore := make(map[Pgno][]byte)
	states, err := p.pageStatesFor(sp)
	if err != nil {
		return err
	}
	for pgno, data := range states {
		pagesToRestore[pgno] = data
	}
	for i := index - 1; i >= 0; i-- {
		states, err := p.pageStatesFor(savepoints[i])
		if err != nil {
			return err
		}
		for pgno, data := range states {
			if _, exists := pagesToRestore[pgno]; !exists {
				pagesToRestore[pgno] = data
			}
		}
	}

	for pgno, data := range pagesToRestore {
		cp, err := p.cache.Fetch(uint32(pgno), pcache1.CreateAlways)
		if err != nil {
			return NewPathError(CodeNoMem, "restore savepoint page", p.filename, err)
		}
		copy(cp.Data, data)
		cp.Loaded = true
		p.cache.MakeDirty(cp)
	}

	p.dbSize = sp.dbSize
	return nil
}

func (p *Pager) addSavepoint(sp *Savepoint) {
	p.savepoints = append([]*Savepoint{sp}, p.savepoints...)
}

func (p *Pager) releaseSavepoints(index int) {
	if index < 0 || index >= len(p.savepoints) {
		return
	}
	p.savepoints = p.savepoints[index+1:]
}

func (p *Pager) getSavepoints() []*Savepoint {
	if p.savepoints == nil {
		return []*Savepoint{}
	}
	return p.savepoints
}

func (p *Pager) findSavepoint(name string) int {
	for i, sp := range p.getSavepoints() {
		if sp.name == name {
			return i
		}
	}
	return -1
}

// HasSavepoint returns true if a savepoint with the given name exists.
func (p *Pager) HasSavepoint(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.findSavepoint(name) != -1
}

// GetSavepointNames returns the names of all active savepoints.
func (p *Pager) GetSavepointNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	savepoints := p.getSavepoints()
	names := make([]string, len(savepoints))
	for i, sp := range savepoints {
		names[i] = sp.name
	}
	return names
}

func (p *Pager) savepointCount() int {
	return len(p.getSavepoints())
}
