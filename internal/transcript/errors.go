package transcript

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorType int

const (
	// ErrNoTranscript means the provider has no transcript in any language
	// acceptable under the fetch options.
	ErrNoTranscript ErrorType = iota
	// ErrProviderUnavailable means the remote call could not complete.
	ErrProviderUnavailable
	// ErrLanguageUnavailable is transient inside the fetcher's language
	// fallback; it is never surfaced when any fallback step succeeds.
	ErrLanguageUnavailable
	// ErrCacheIO is a disk failure in the cache; non-fatal, the cache
	// degrades to memory-only for the affected entry.
	ErrCacheIO
	// ErrClipboardIO is a platform failure reading or writing the clipboard.
	ErrClipboardIO
	ErrUnknown
)

func (t ErrorType) String() string {
	switch t {
	case ErrNoTranscript:
		return "NoTranscriptAvailable"
	case ErrProviderUnavailable:
		return "ProviderUnavailable"
	case ErrLanguageUnavailable:
		return "LanguageUnavailable"
	case ErrCacheIO:
		return "CacheIoError"
	case ErrClipboardIO:
		return "ClipboardIoError"
	default:
		return "Unknown"
	}
}

// PipelineError carries the failure kind through a pipeline run so the
// monitor can report it via callbacks without string matching.
type PipelineError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *PipelineError {
	return &PipelineError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *PipelineError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

func (e *PipelineError) WithContext(key string, value any) *PipelineError {
	e.Context[key] = value
	return e
}

func IsErrorType(err error, errorType ErrorType) bool {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Type == errorType
	}
	return false
}

// KindOf extracts the error type from err, defaulting to Unknown.
func KindOf(err error) ErrorType {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Type
	}
	return ErrUnknown
}

func WrapError(err error, errorType ErrorType, message string) *PipelineError {
	return NewErrorWithCause(errorType, message, err)
}
