package domain

import "errors"

var (
	// ErrConfiguration signals invalid chunking or component parameters.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrProvider signals an embedding or generation provider failure.
	ErrProvider = errors.New("provider failure")
	// ErrDimensionMismatch signals inconsistent vector lengths.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrIncompatibleModel signals an attempt to compare vectors across embedding models.
	ErrIncompatibleModel = errors.New("incompatible embedding model")
	// ErrNotFound signals a missing file or referenced entity.
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedFormat signals an unrecognized document type.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrEmptyIndex signals an empty candidate set in fail-fast searches.
	ErrEmptyIndex = errors.New("no candidates match the query")
	// ErrRetrieval marks any failure during query-time retrieval.
	ErrRetrieval = errors.New("retrieval failed")
)

// RetrievalError wraps a gateway or store failure behind the single
// failure surface callers of Retrieve see.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return "retrieval failed: " + e.Err.Error() }

func (e *RetrievalError) Unwrap() error { return e.Err }

// Is reports true for ErrRetrieval so callers can match the whole class.
func (e *RetrievalError) Is(target error) bool { return target == ErrRetrieval }

// NewRetrievalError wraps err, preserving an existing RetrievalError.
func NewRetrievalError(err error) error {
	if err == nil {
		return nil
	}
	var re *RetrievalError
	if errors.As(err, &re) {
		return err
	}
	return &RetrievalError{Err: err}
}
