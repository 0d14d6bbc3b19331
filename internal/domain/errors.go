package domain

import (
	"errors"
	"fmt"
)

// Broker errors. Every failure surfaced by the resolver or the download
// orchestrator matches exactly one of these with errors.Is.
var (
	// ErrInvalidInput is returned when an identifier is missing or a parameter is malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrExtractionFailed is returned when the extraction tool fails, times out,
	// or produces output that cannot be parsed.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrTranscodeFailed is returned when the transcoder exits non-zero or leaves no output.
	ErrTranscodeFailed = errors.New("transcode failed")

	// ErrIOFailed is returned when temporary storage cannot be written or read.
	ErrIOFailed = errors.New("temporary storage I/O failed")

	// ErrNotFound is returned when a requested item does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidFormat is returned when the extraction tool does not offer the
	// requested format for the video. It matches ErrNotFound as well.
	ErrInvalidFormat = fmt.Errorf("format not offered for video: %w", ErrNotFound)
)

// kinds is the taxonomy in match order. ErrInvalidFormat precedes ErrNotFound
// because it wraps it.
var kinds = []error{
	ErrInvalidInput,
	ErrInvalidFormat,
	ErrNotFound,
	ErrExtractionFailed,
	ErrTranscodeFailed,
	ErrIOFailed,
}

// BrokerError classifies a failure into the taxonomy while keeping the cause for logs.
type BrokerError struct {
	VideoID VideoID
	Op      string
	Kind    error
	Err     error
}

func (e *BrokerError) Error() string {
	msg := e.Op
	if e.VideoID != "" {
		msg += " [" + e.VideoID.String() + "]"
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the taxonomy kind and the underlying cause.
func (e *BrokerError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewBrokerError creates a new BrokerError. If err already carries a taxonomy
// kind, that kind is kept instead of the one passed in.
func NewBrokerError(videoID VideoID, op string, kind, err error) *BrokerError {
	if existing := KindOf(err); existing != nil {
		kind = existing
	}
	return &BrokerError{
		VideoID: videoID,
		Op:      op,
		Kind:    kind,
		Err:     err,
	}
}

// KindOf returns the taxonomy sentinel matched by err, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
