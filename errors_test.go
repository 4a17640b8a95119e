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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportError_Formatting(t *testing.T) {
	t.Parallel()

	err := NewTransportError("Write", "/dev/ttyUSB0", ErrTransportWrite, ErrorTypeTransient)
	assert.Equal(t, "Write /dev/ttyUSB0: transport write failed", err.Error())

	noPort := NewTransportError("Read", "", ErrTransportRead, ErrorTypeTransient)
	assert.Equal(t, "Read: transport read failed", noPort.Error())
}

func TestTransportError_Unwrap(t *testing.T) {
	t.Parallel()

	err := NewTransportClosedError("Write", "mock")
	assert.ErrorIs(t, err, ErrTransportClosed)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "Nil", err: nil, want: false},
		{name: "TransientTransport", err: NewTransportWriteError("Write", "mock"), want: true},
		{name: "TimeoutTransport", err: NewTransportError("Read", "mock", ErrTransportTimeout, ErrorTypeTimeout), want: true},
		{name: "PermanentTransport", err: NewTransportClosedError("Write", "mock"), want: false},
		{name: "WrappedSentinel", err: fmt.Errorf("op: %w", ErrTransportRead), want: true},
		{name: "Communication", err: ErrCommunication, want: true},
		{name: "FramingFault", err: ErrFramingFault, want: false},
		{name: "ChecksumFault", err: ErrCorruptedPacket, want: false},
		{name: "NoFinger", err: ErrNoFinger, want: false},
		{name: "NoMatch", err: ErrNoMatch, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "Nil", err: nil, want: false},
		{name: "TransportClosed", err: ErrTransportClosed, want: true},
		{name: "PermanentTransport", err: NewTransportClosedError("Write", "mock"), want: true},
		{name: "TransientTransport", err: NewTransportWriteError("Write", "mock"), want: false},
		{name: "EOF", err: io.EOF, want: true},
		{name: "ClosedPipe", err: io.ErrClosedPipe, want: true},
		{name: "DeviceGoneEIO", err: fmt.Errorf("read: %w", syscall.EIO), want: true},
		{name: "DeviceGoneENODEV", err: fmt.Errorf("open: %w", syscall.ENODEV), want: true},
		{name: "PlainError", err: errors.New("some error"), want: false},
		{name: "NoFinger", err: ErrNoFinger, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestSensorError_Message(t *testing.T) {
	t.Parallel()

	err := &SensorError{Command: "Store", Code: 0x18}
	assert.Equal(t, "Store: confirmation code 0x18 (flash write error)", err.Error())

	unknown := &SensorError{Command: "GenImg", Code: 0x7F}
	assert.Contains(t, unknown.Error(), "unknown code")
}

func TestWrapReadInput_PreservesSentinel(t *testing.T) {
	t.Parallel()

	inner := fmt.Errorf("Search: %w", ErrCorruptedPacket)
	wrapped := wrapReadInput(inner)

	require.ErrorIs(t, wrapped, ErrReadInput)
	assert.Contains(t, wrapped.Error(), "checksum")
}

func TestProtocolFaultAliases(t *testing.T) {
	t.Parallel()

	// The workflow layer and the codec report the same faults
	assert.ErrorIs(t, fmt.Errorf("x: %w", ErrFramingFault), ErrFramingFault)
	require.NotEqual(t, ErrFramingFault.Error(), ErrCorruptedPacket.Error())
}
