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

// Package uart implements the zfm20.Transport interface over a serial port.
// ZFM-20 modules speak 8N1 UART, 57600 baud from the factory.
package uart

import (
	"fmt"
	"strings"
	"sync"
	"time"

	zfm20 "github.com/ZaparooProject/go-zfm20"
	"go.bug.st/serial"
)

// DefaultBaudRate is the factory baud rate of ZFM-20 modules
const DefaultBaudRate = 57600

// defaultReadTimeout bounds a single byte read; the workflow layer applies
// its own round-trip timeouts above this.
const defaultReadTimeout = 2 * time.Second

// Transport implements the zfm20.Transport interface for UART communication.
type Transport struct {
	port     serial.Port
	portName string
	baudRate int
	timeout  time.Duration
	one      [1]byte
	mu       sync.Mutex
}

// Option configures the UART transport
type Option func(*Transport) error

// WithBaudRate overrides the default baud rate
func WithBaudRate(baudRate int) Option {
	return func(t *Transport) error {
		if baudRate <= 0 {
			return fmt.Errorf("baud rate must be positive, got %d", baudRate)
		}
		t.baudRate = baudRate
		return nil
	}
}

// WithReadTimeout overrides the default per-byte read timeout
func WithReadTimeout(timeout time.Duration) Option {
	return func(t *Transport) error {
		if timeout <= 0 {
			return fmt.Errorf("read timeout must be positive, got %v", timeout)
		}
		t.timeout = timeout
		return nil
	}
}

// New creates a UART transport and opens the port
func New(portName string, opts ...Option) (*Transport, error) {
	t := &Transport{
		portName: portName,
		baudRate: DefaultBaudRate,
		timeout:  defaultReadTimeout,
	}

	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}

	if err := t.open(); err != nil {
		return nil, err
	}

	return t, nil
}

// open acquires the serial port with the configured mode and timeout
func (t *Transport) open() error {
	port, err := serial.Open(t.portName, &serial.Mode{
		BaudRate: t.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("failed to open UART port %s: %w", t.portName, err)
	}

	if err := port.SetReadTimeout(t.timeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	t.port = port
	return nil
}

// Write sends raw bytes to the sensor and drains the output buffer
func (t *Transport) Write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return zfm20.NewTransportClosedError("Write", t.portName)
	}

	n, err := t.port.Write(data)
	if err != nil {
		return fmt.Errorf("UART write failed: %w", err)
	} else if n != len(data) {
		return zfm20.NewTransportWriteError("Write", t.portName)
	}

	return t.drainWithRetry("write")
}

// ReadByte reads a single byte bounded by the configured read timeout. A
// timeout returns ok=false with a nil error; the frame decoder records that
// as a "no data" position in the incoming stream.
func (t *Transport) ReadByte() (byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return 0, false, zfm20.NewTransportClosedError("ReadByte", t.portName)
	}

	n, err := t.port.Read(t.one[:])
	if err != nil {
		return 0, false, fmt.Errorf("UART read failed: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}

	return t.one[0], true, nil
}

// Reconnect reopens the serial port after it was closed or lost
func (t *Transport) Reconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port != nil {
		_ = t.port.Close()
		t.port = nil
	}

	return t.open()
}

// SetTimeout sets the per-byte read timeout
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.timeout = timeout
	if t.port == nil {
		return nil
	}
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("UART set timeout failed: %w", err)
	}
	return nil
}

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}

	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Type returns the transport type
func (*Transport) Type() zfm20.TransportType {
	return zfm20.TransportUART
}

// isInterruptedSystemCall checks if an error is caused by an interrupted
// system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system
// calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := t.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<attempt) // 2ms, 4ms, 8ms
			time.Sleep(delay)
			continue
		}

		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}

// Ensure Transport implements zfm20.Transport
var _ zfm20.Transport = (*Transport)(nil)
