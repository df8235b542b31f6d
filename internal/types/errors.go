package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrPageNotFound        = errors.New("page does not exist")
	ErrRevisionUnavailable = errors.New("no retrievable deleted revision")
	ErrUnresolvable        = errors.New("article text unavailable")
	ErrMalformedTitle      = errors.New("title does not match archive pattern")
	ErrNoMatchingJob       = errors.New("no matching job")
	ErrLoginFailed         = errors.New("login failed")
)

// FetchError wraps transport-level failures talking to the wiki.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// APIError is an error payload returned by the MediaWiki Action API.
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s: %s", e.Code, e.Info)
}

// StorageError wraps errors that occur while writing a dataset.
type StorageError struct {
	Backend string
	Dataset string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s, %s): %v", e.Backend, e.Dataset, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors that occur in the normalization pipeline.
type PipelineError struct {
	Stage string
	Title string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q for %q: %v", e.Stage, e.Title, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
