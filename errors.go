package livecam

import (
	"errors"
	"fmt"
)

var (
	// ErrDisposed is returned by operations issued after Manager.Dispose.
	ErrDisposed = errors.New("session disposed")

	// ErrManagerDeallocated completes a construction that was still pending
	// when the manager was torn down.
	ErrManagerDeallocated = errors.New("session manager torn down before engine construction completed")

	// ErrQueueClosed is returned when work is submitted to a closed queue.
	ErrQueueClosed = errors.New("queue closed")

	// ErrDeviceNotFound is returned when no device matches a lookup.
	ErrDeviceNotFound = errors.New("device not found")
)

// AudioSessionConfigError reports a failed platform audio-session call.
// It is never fatal: the session proceeds to camera initialization.
type AudioSessionConfigError struct {
	Op  string // "category" or "activate"
	Err error
}

func (e *AudioSessionConfigError) Error() string {
	return fmt.Sprintf("audio session %s: %v", e.Op, e.Err)
}

func (e *AudioSessionConfigError) Unwrap() error { return e.Err }

// InitializationError reports a failed lazy engine construction. The session
// reverts to StateUninitialized so the caller may retry.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("engine initialization failed: %v", e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// StreamingError reports a rejected StartStreaming call. The session state is
// left unchanged.
type StreamingError struct {
	Reason string
	Err    error
}

func (e *StreamingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("streaming failed: %s: %v", e.Reason, e.Err)
	}
	return "streaming failed: " + e.Reason
}

func (e *StreamingError) Unwrap() error { return e.Err }
