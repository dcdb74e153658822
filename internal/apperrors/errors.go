// =============================================================================
// CTe/NFe Key Linker - Application Errors
// =============================================================================
//
// Typed failures that halt a run. Key-format failures live next to the key
// validator (validation.ValidationError); everything else is here.
//
// TAXONOMY:
//   - FileReadError   : a document could not be read (fatal)
//   - FileWriteError  : the report could not be written (fatal)
//   - ErrNoInputFiles : discovery found nothing to process (clean early exit)
//   - ErrNoResults    : aggregation produced an empty map
//
// =============================================================================

package apperrors

import (
	"errors"
	"fmt"
)

// Terminal conditions signaled before and after aggregation.
var (
	ErrNoInputFiles = errors.New("no CTe XML files found in the input directory")
	ErrNoResults    = errors.New("no NFe keys linked to any CTe key")
)

// FileReadError reports a document that could not be opened for reading.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("could not open <%s> for reading: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error {
	return e.Err
}

// FileWriteError reports an output file that could not be written.
type FileWriteError struct {
	Path string
	Err  error
}

func (e *FileWriteError) Error() string {
	return fmt.Sprintf("could not open <%s> for writing: %v", e.Path, e.Err)
}

func (e *FileWriteError) Unwrap() error {
	return e.Err
}
