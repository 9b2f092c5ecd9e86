package pager

import (
	"errors"
	"fmt"

	errs "github.com/FocuswithJustin/gopager/internal/errs"
	"github.com/FocuswithJustin/gopager/internal/pager/vfs"
)

// Code classifies a pager failure the way a caller needs to react to
// it: retry (Busy/Locked), give up and report (Corrupt/Protocol), or
// treat storage itself as the problem (IOErr family, Full).
type Code int

const (
	CodeOK Code = iota
	CodeBusy
	CodeLocked
	CodeNoMem
	CodeReadOnly
	CodeIOErr
	CodeIOErrRead
	CodeIOErrWrite
	CodeIOErrShortRead
	CodeIOErrFsync
	CodeIOErrTruncate
	CodeCorrupt
	CodeFull
	CodeCantOpen
	CodeProtocol
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeBusy:
		return "BUSY"
	case CodeLocked:
		return "LOCKED"
	case CodeNoMem:
		return "NOMEM"
	case CodeReadOnly:
		return "READONLY"
	case CodeIOErr:
		return "IOERR"
	case CodeIOErrRead:
		return "IOERR_READ"
	case CodeIOErrWrite:
		return "IOERR_WRITE"
	case CodeIOErrShortRead:
		return "IOERR_SHORT_READ"
	case CodeIOErrFsync:
		return "IOERR_FSYNC"
	case CodeIOErrTruncate:
		return "IOERR_TRUNCATE"
	case CodeCorrupt:
		return "CORRUPT"
	case CodeFull:
		return "FULL"
	case CodeCantOpen:
		return "CANTOPEN"
	case CodeProtocol:
		return "PROTOCOL"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error is the typed error every pager operation that can fail returns.
// Op names the pager operation (e.g. "commit", "journal page 7"); Path,
// when set, is the file involved.
type Error struct {
	Code Code
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("pager: %s %s: %s: %v", e.Op, e.Path, e.Code, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("pager: %s: %s: %v", e.Op, e.Code, e.Err)
	default:
		return fmt.Sprintf("pager: %s: %s", e.Op, e.Code)
	}
}

// Unwrap exposes both the wrapped cause (if any) and the Code's
// equivalent internal/errs sentinel, so callers can use errors.Is with
// either a concrete underlying error or the coarse sentinel category.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Err, e.Code.sentinel()}
	}
	return []error{e.Code.sentinel()}
}

// sentinel maps a Code to the internal/errs category a generic caller
// would check for.
func (c Code) sentinel() error {
	switch c {
	case CodeBusy, CodeLocked:
		return errs.ErrUnavailable
	case CodeCorrupt, CodeProtocol:
		return errs.ErrInvalidInput
	case CodeReadOnly:
		return errs.ErrUnsupported
	case CodeCantOpen:
		return errs.ErrNotFound
	case CodeNoMem, CodeFull, CodeIOErr, CodeIOErrRead, CodeIOErrWrite,
		CodeIOErrShortRead, CodeIOErrFsync, CodeIOErrTruncate:
		return errs.ErrInternal
	default:
		return errs.ErrInternal
	}
}

// NewError wraps err (which may be nil) as a pager Error with the given
// code and operation name.
func NewError(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// NewPathError is NewError with a Path attached, for failures tied to a
// specific file.
func NewPathError(code Code, op, path string, err error) *Error {
	return &Error{Code: code, Op: op, Path: path, Err: err}
}

// CodeOf classifies err: a *Error's own Code, or the Code a known vfs
// sentinel maps to, or CodeIOErr as the catch-all for any other
// non-nil error reaching this layer from beneath the VFS boundary.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	switch {
	case errors.Is(err, vfs.ErrBusy):
		return CodeBusy
	case errors.Is(err, vfs.ErrFull):
		return CodeFull
	case errors.Is(err, vfs.ErrCantOpen):
		return CodeCantOpen
	case errors.Is(err, vfs.ErrIOErr):
		return CodeIOErr
	default:
		return CodeIOErr
	}
}
