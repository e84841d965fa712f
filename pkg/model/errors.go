package model

import "github.com/m-mizutani/goerr/v2"

// Error kinds surfaced by a turn. Callers match them with errors.Is.
var (
	ErrDeserialization = goerr.New("malformed inbound record")
	ErrThreadFetch     = goerr.New("thread fetch failed")
	ErrEmbedding       = goerr.New("embedding failed")
	ErrRetrieval       = goerr.New("memory retrieval failed")
	ErrGeneration      = goerr.New("generation failed")
	ErrToolExecution   = goerr.New("tool execution failed")
)

type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() []error {
	return []error{e.kind, e.cause}
}

// Kind tags err with one of the error kinds above while keeping err
// reachable through errors.Is and errors.As. A nil err yields nil.
func Kind(kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, cause: err}
}
