package vfs

import "errors"

// Sentinel errors a VFS implementation returns; the pager package maps
// these onto its own Code taxonomy (see internal/pager/errcode.go).
var (
	ErrBusy     = errors.New("vfs: resource busy")
	ErrIOErr    = errors.New("vfs: i/o error")
	ErrFull     = errors.New("vfs: disk full")
	ErrCantOpen = errors.New("vfs: cannot open file")
)
