package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// ExitFailure is the process status for every fatal condition
const ExitFailure = 1

// Exit terminates the process; replaced in tests
var Exit = os.Exit

// LocatedError records the operation that failed and where it was detected
type LocatedError struct {
	Op   string
	File string
	Line int
	Err  error
}

func (e *LocatedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *LocatedError) Unwrap() error { return e.Err }

// Locate wraps err with op and the caller's source position. A nil err
// returns nil so call sites can wrap unconditionally.
func Locate(op string, err error) error {
	if err == nil {
		return nil
	}
	_, file, line, _ := runtime.Caller(1)
	return &LocatedError{Op: op, File: filepath.Base(file), Line: line, Err: err}
}

// Die writes a fatal diagnostic for err to w and exits with ExitFailure.
// The reported position is that of the outermost LocatedError in the chain,
// or the caller of Die when there is none.
func Die(w io.Writer, err error) {
	var (
		le   *LocatedError
		file string
		line int
	)
	if errors.As(err, &le) {
		file, line = le.File, le.Line
	} else {
		_, path, l, _ := runtime.Caller(1)
		file, line = filepath.Base(path), l
	}
	fmt.Fprintf(w, "Error at line %d of file %s:\n", line, file)
	fmt.Fprintf(w, "%v\n", err)
	if f, ok := w.(*os.File); ok {
		f.Sync()
	}
	Exit(ExitFailure)
}
