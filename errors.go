// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zfm20

import (
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/ZaparooProject/go-zfm20/internal/frame"
)

// Protocol faults - fatal to the current exchange, never retried by the core
var (
	// ErrInvalidPacket indicates the response was not an ACK packet.
	ErrInvalidPacket = errors.New("response is not an ACK packet")
	// ErrFramingFault aliases the codec's start marker fault.
	ErrFramingFault = frame.ErrInvalidHeader
	// ErrCorruptedPacket aliases the codec's checksum fault.
	ErrCorruptedPacket = frame.ErrChecksumMismatch
)

// Sensor-reported faults, one per recognized confirmation code
var (
	ErrCommunication           = errors.New("sensor communication error")
	ErrNoFinger                = errors.New("no finger on the sensor")
	ErrReadImage               = errors.New("failed to read the finger image")
	ErrMessyImage              = errors.New("finger image too messy")
	ErrFewFeaturePoints        = errors.New("too few feature points in image")
	ErrInvalidImage            = errors.New("invalid finger image")
	ErrNoMatch                 = errors.New("no matching template found")
	ErrCharacteristicsMismatch = errors.New("character buffers do not match")
	ErrInvalidPosition         = errors.New("invalid template position")
	ErrFlash                   = errors.New("flash write error")
	ErrDeleteFailed            = errors.New("failed to delete template")
)

// Workflow outcomes surfaced by the Session layer
var (
	// ErrBusy indicates another detection or enrollment sequence owns the
	// sensor.
	ErrBusy = errors.New("sensor is busy")
	// ErrAlreadyEnrolled indicates the finger matched an existing template
	// during enrollment.
	ErrAlreadyEnrolled = errors.New("finger is already enrolled")
	// ErrNotRecognized indicates a finger was scanned but matched no stored
	// template.
	ErrNotRecognized = errors.New("finger not recognized")
	// ErrCancelled indicates the detection loop honored a cancel request.
	ErrCancelled = errors.New("finger detection cancelled")
	// ErrReadInput wraps protocol faults that abort a workflow mid-sequence.
	ErrReadInput = errors.New("failed to read finger input")
	// ErrNoFreePosition indicates no storage slot is available for a new
	// template.
	ErrNoFreePosition = errors.New("no free template position")
)

// Transport errors
var (
	ErrTransportClosed  = errors.New("transport is closed")
	ErrTransportTimeout = errors.New("transport timeout")
	ErrTransportWrite   = errors.New("transport write failed")
	ErrTransportRead    = errors.New("transport read failed")
)

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error
	ErrorTypeTimeout
)

// TransportError wraps transport-level errors with additional context
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a transport error with consistent formatting
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTransportWriteError creates a write error (transient)
func NewTransportWriteError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportWrite, ErrorTypeTransient)
}

// NewTransportReadError creates a read error (transient)
func NewTransportReadError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportRead, ErrorTypeTransient)
}

// NewTransportClosedError creates a transport closed error (permanent)
func NewTransportClosedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportClosed, ErrorTypePermanent)
}

// SensorError reports a confirmation code the calling command did not
// recognize. Recognized codes map to the sentinel errors above; anything else
// is surfaced through this type so it is logged and propagated rather than
// silently swallowed.
type SensorError struct {
	Command string
	Code    byte
}

func (e *SensorError) Error() string {
	return fmt.Sprintf("%s: confirmation code 0x%02X (%s)",
		e.Command, e.Code, statusCodeMeaning(e.Code))
}

// statusCodeMeaning returns a human-readable meaning for confirmation codes,
// including codes no command in this driver maps to a sentinel.
func statusCodeMeaning(code byte) string {
	meanings := map[byte]string{
		0x00: "success",
		0x01: "packet receive error",
		0x02: "no finger on the sensor",
		0x03: "failed to capture image",
		0x06: "image too messy",
		0x07: "too few feature points",
		0x08: "fingers do not match",
		0x09: "no matching template",
		0x0A: "failed to combine character buffers",
		0x0B: "position out of range",
		0x0C: "failed to read template",
		0x0D: "failed to upload template",
		0x10: "failed to delete template",
		0x11: "failed to empty library",
		0x15: "no valid image in buffer",
		0x18: "flash write error",
	}
	if m, ok := meanings[code]; ok {
		return m
	}
	return "unknown code"
}

// IsRetryable returns true if the error is potentially retryable. Protocol
// faults are deliberately excluded: a bad start marker or checksum aborts the
// exchange and the decision to retry belongs to the caller.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrCommunication):
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error indicates the device or connection is
// gone and the session should stop entirely. This is distinct from
// IsRetryable, which classifies a single exchange.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Type == ErrorTypePermanent
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// isDeviceGoneError checks for OS-level errors indicating the serial adapter
// was unplugged during I/O.
func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		//nolint:exhaustive // Only checking specific device-gone errors
		switch errno {
		case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
			return true
		}
	}
	return false
}
