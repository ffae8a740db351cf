package bloom

import "errors"

var (
	ErrInvalidMode       = errors.New("bloom: invalid filter mode")
	ErrAllocationFailed  = errors.New("bloom: buffer allocation failed")
	ErrInvalidBufferSize = errors.New("bloom: invalid buffer size")
	ErrNoHashFuncs       = errors.New("bloom: at least one hash function is required")
	ErrNilHashFunc       = errors.New("bloom: nil hash function")

	ErrNullFilter      = errors.New("bloom: filter is nil or destroyed")
	ErrNullBuffer      = errors.New("bloom: filter buffer is not allocated")
	ErrCounterExceeded = errors.New("bloom: counter cell exceeded its maximum value")

	ErrInvalidFilePath  = errors.New("bloom: invalid file path")
	ErrOpenFileFailed   = errors.New("bloom: open file failed")
	ErrDumpFailed       = errors.New("bloom: dump failed")
	ErrRestoreFailed    = errors.New("bloom: restore failed")
	ErrShortMetadata    = errors.New("bloom: metadata block too small")
	ErrMetadataMismatch = errors.New("bloom: metadata does not match filter")
)
