// Package common defines shared constants and sentinel errors used across
// the genofetch transfer engine. Callers should use errors.Is / errors.As
// to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Staging errors.
	ErrStagingTimeout = errors.New("staging wait budget exhausted")
	ErrStagingFailed  = errors.New("staging failed")

	// Transport errors.
	ErrRetryExhausted = errors.New("retries exhausted")
	ErrUnauthorized   = errors.New("unauthorized")

	// Envelope/decryption errors.
	ErrUnsupportedFormat = errors.New("unsupported container format")
	ErrNoMatchingKey     = errors.New("no header packet could be opened with the given key")

	// Verification errors.
	ErrSizeMismatch = errors.New("output size mismatch")
)

// PartFailedError reports that one part of a multipart download failed
// terminally, aborting the whole transfer.
type PartFailedError struct {
	Index int
	Err   error
}

func (e *PartFailedError) Error() string {
	return fmt.Sprintf("part %d failed: %v", e.Index, e.Err)
}

func (e *PartFailedError) Unwrap() error { return e.Err }

// ChecksumMismatchError reports that a downloaded part did not match the
// checksum supplied by the backend.
type ChecksumMismatchError struct {
	Index int
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch on part %d", e.Index)
}

// TamperedSegmentError reports an authentication failure on a ciphertext
// segment. No plaintext is ever emitted for the failing segment.
type TamperedSegmentError struct {
	Segment int
}

func (e *TamperedSegmentError) Error() string {
	return fmt.Sprintf("segment %d failed authentication", e.Segment)
}
