package index

import (
	"errors"
	"fmt"

	"github.com/hyperjump/shohin/internal/models"
)

// ErrIndexInit is returned by New when the embedding backend cannot serve.
var ErrIndexInit = errors.New("index initialization failed")

// RetrievalError is a search failure with the query and stage it happened on.
type RetrievalError struct {
	Query string
	Stage models.Stage
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed for %q (stage %s): %v", e.Query, e.Stage, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}
