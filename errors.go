// errors.go: structured error handling for latchkv
//
// The storage contract itself never returns errors — oversized input and
// key-absent/present conditions are booleans (see spec.md §7) — so the
// error types here are reserved for conditions the five-operation contract
// has no boolean slot for: invalid configuration, a loader failing inside
// GetOrLoad, and the combiner reporting it has been shut down out from
// under an in-flight operation.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package latchkv

import (
	goerrors "errors"
	"fmt"

	"github.com/agilira/go-errors"
)

// Error codes for latchkv operations.
const (
	ErrCodeInvalidConfig  errors.ErrorCode = "LATCHKV_INVALID_CONFIG"
	ErrCodeInvalidMaxSize errors.ErrorCode = "LATCHKV_INVALID_MAX_SIZE"

	ErrCodeEmptyKey        errors.ErrorCode = "LATCHKV_EMPTY_KEY"
	ErrCodeCombinerClosed  errors.ErrorCode = "LATCHKV_COMBINER_CLOSED"
	ErrCodeEngineMisuse    errors.ErrorCode = "LATCHKV_ENGINE_MISUSE"

	ErrCodeLoaderFailed  errors.ErrorCode = "LATCHKV_LOADER_FAILED"
	ErrCodeInvalidLoader errors.ErrorCode = "LATCHKV_INVALID_LOADER"

	ErrCodeInternalError  errors.ErrorCode = "LATCHKV_INTERNAL_ERROR"
	ErrCodePanicRecovered errors.ErrorCode = "LATCHKV_PANIC_RECOVERED"
)

const (
	msgInvalidMaxSize = "invalid max size: must be greater than 0"
	msgEmptyKey       = "key cannot be empty"
	msgCombinerClosed = "combiner has been shut down"
	msgLoaderFailed   = "loader function failed"
	msgInvalidLoader  = "loader function cannot be nil"
	msgInternalError  = "internal cache error"
	msgPanicRecovered = "panic recovered in cache operation"
)

// NewErrInvalidMaxSize reports a non-positive MaxSize in Config.
func NewErrInvalidMaxSize(size int) error {
	return errors.NewWithContext(ErrCodeInvalidMaxSize, msgInvalidMaxSize, map[string]interface{}{
		"provided_size":    size,
		"minimum_required": 1,
	})
}

// NewErrEmptyKey reports an empty key passed to an operation that
// requires a non-empty one (GetOrLoad; the storage contract itself
// accepts the empty string as an ordinary key).
func NewErrEmptyKey(operation string) error {
	return errors.NewWithField(ErrCodeEmptyKey, msgEmptyKey, "operation", operation)
}

// NewErrCombinerClosed reports a shut-down combiner under latchkv's own
// error code so callers can use GetErrorCode/Is* uniformly. It builds a new
// error; it does not wrap combiner.ErrCombinerClosed.
func NewErrCombinerClosed() error {
	return errors.NewWithContext(ErrCodeCombinerClosed, msgCombinerClosed, nil)
}

// NewErrLoaderFailed wraps a GetOrLoad loader's error.
func NewErrLoaderFailed(key string, cause error) error {
	return errors.Wrap(cause, ErrCodeLoaderFailed, msgLoaderFailed).
		WithContext("key", key).
		AsRetryable()
}

// NewErrInvalidLoader reports a nil loader passed to GetOrLoad.
func NewErrInvalidLoader(key string) error {
	return errors.NewWithField(ErrCodeInvalidLoader, msgInvalidLoader, "key", key)
}

// NewErrInternal wraps an unexpected internal failure.
func NewErrInternal(operation string, cause error) error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeInternalError, msgInternalError).
			WithContext("operation", operation).
			WithSeverity("warning")
	}
	return errors.NewWithField(ErrCodeInternalError, msgInternalError, "operation", operation).
		WithSeverity("warning")
}

// NewErrPanicRecovered reports a panic recovered from a GetOrLoad loader.
func NewErrPanicRecovered(operation string, panicValue interface{}) error {
	return errors.NewWithContext(ErrCodePanicRecovered, msgPanicRecovered, map[string]interface{}{
		"operation":   operation,
		"panic_value": fmt.Sprintf("%v", panicValue),
	}).WithSeverity("critical")
}

// IsEmptyKey reports whether err is an empty-key error.
func IsEmptyKey(err error) bool {
	return errors.HasCode(err, ErrCodeEmptyKey)
}

// IsCombinerClosed reports whether err indicates the combiner was shut
// down while an operation was outstanding.
func IsCombinerClosed(err error) bool {
	return errors.HasCode(err, ErrCodeCombinerClosed)
}

// IsLoaderError reports whether err originated from a GetOrLoad loader.
func IsLoaderError(err error) bool {
	if err == nil {
		return false
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		code := coder.ErrorCode()
		return code == ErrCodeLoaderFailed || code == ErrCodeInvalidLoader
	}
	return false
}

// IsRetryable reports whether err implements the Retryable interface and
// is marked retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryable errors.Retryable
	if goerrors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}

// GetErrorCode extracts the error code from err, or "" if it has none.
func GetErrorCode(err error) errors.ErrorCode {
	if err == nil {
		return ""
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return ""
}

// GetErrorContext extracts the structured context attached to err, if any.
func GetErrorContext(err error) map[string]interface{} {
	if err == nil {
		return nil
	}
	var lerr *errors.Error
	if goerrors.As(err, &lerr) {
		return lerr.Context
	}
	return nil
}
