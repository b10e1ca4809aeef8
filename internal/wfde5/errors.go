package wfde5

import "github.com/pkg/errors"

// Configuration errors. They are fatal for a run and are never retried.
var (
	ErrVariableMissing  = errors.New("variable not found in dataset")
	ErrShape            = errors.New("variable shape does not match coordinates")
	ErrEmptyAxis        = errors.New("coordinate axis is empty")
	ErrWindowOutOfRange = errors.New("index window exceeds dataset dimensions")
	ErrFileName         = errors.New("file name does not match <variable>_<dataset>_<yearmonth>_<version><ext>")
)
