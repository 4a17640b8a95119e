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
	"sync"
	"time"

	"github.com/ZaparooProject/go-zfm20/internal/frame"
)

// Transport defines the byte-stream capability the protocol engine needs
// from a serial device. The engine owns framing; a transport only moves raw
// bytes.
type Transport interface {
	// Write sends raw bytes to the sensor
	Write(data []byte) error

	// ReadByte reads a single byte bounded by the configured timeout.
	// A timed-out read returns ok=false with a nil error.
	ReadByte() (b byte, ok bool, err error)

	// Reconnect reopens the underlying device after it was closed or lost
	Reconnect() error

	// SetTimeout sets the per-byte read timeout
	SetTimeout(timeout time.Duration) error

	// Close closes the transport connection
	Close() error

	// IsConnected returns true if the transport is usable
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// mockReply is one scripted response for a command opcode
type mockReply struct {
	payload    []byte
	packetType byte
}

// MockTransport provides a scripted implementation of Transport for testing.
// It parses outgoing command frames, records the command payloads in order,
// and answers each opcode from a queued or sticky response.
type MockTransport struct {
	queues    map[byte][]mockReply
	defaults  map[byte]mockReply
	errorMap  map[byte]error
	exchanges [][]byte
	readBuf   []byte
	address   uint32
	timeout   time.Duration
	delay     time.Duration
	mu        sync.Mutex
	connected bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		address:   DefaultAddress,
		timeout:   time.Second,
		queues:    make(map[byte][]mockReply),
		defaults:  make(map[byte]mockReply),
		errorMap:  make(map[byte]error),
	}
}

// Write implements Transport. It decodes the outgoing command frame, records
// the exchange, and stages the scripted response for subsequent ReadByte
// calls.
func (m *MockTransport) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return NewTransportClosedError("Write", "mock")
	}

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	if len(data) < frame.HeaderLen+frame.ChecksumLen+1 {
		return errors.New("mock: short command frame")
	}

	length := int(data[7])<<8 | int(data[8])
	payload := make([]byte, length-frame.ChecksumLen)
	copy(payload, data[frame.HeaderLen:frame.HeaderLen+len(payload)])
	m.exchanges = append(m.exchanges, payload)

	opcode := payload[0]
	if err, exists := m.errorMap[opcode]; exists {
		return err
	}

	reply, ok := m.nextReply(opcode)
	if !ok {
		// Unscripted commands succeed with a bare success status
		reply = mockReply{packetType: frame.TypeAck, payload: []byte{statusSuccess}}
	}

	m.readBuf = frame.Encode(m.address, reply.packetType, reply.payload)
	return nil
}

// nextReply pops a queued reply for opcode, falling back to the sticky
// default when the queue is empty.
func (m *MockTransport) nextReply(opcode byte) (mockReply, bool) {
	if queue := m.queues[opcode]; len(queue) > 0 {
		reply := queue[0]
		m.queues[opcode] = queue[1:]
		return reply, true
	}
	if reply, ok := m.defaults[opcode]; ok {
		return reply, true
	}
	return mockReply{}, false
}

// ReadByte implements Transport, serving the staged response one byte at a
// time. An exhausted buffer behaves like a read timeout.
func (m *MockTransport) ReadByte() (byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, false, NewTransportClosedError("ReadByte", "mock")
	}

	if len(m.readBuf) == 0 {
		return 0, false, nil
	}

	b := m.readBuf[0]
	m.readBuf = m.readBuf[1:]
	return b, true, nil
}

// Reconnect implements Transport
func (m *MockTransport) Reconnect() error {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

// SetTimeout implements Transport
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
	return nil
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// IsConnected implements Transport
func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Type implements Transport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// QueueResponse schedules a one-shot ACK payload for a command opcode
func (m *MockTransport) QueueResponse(opcode byte, payload ...byte) {
	m.QueueRawResponse(opcode, frame.TypeAck, payload...)
}

// QueueRawResponse schedules a one-shot response with an explicit packet
// type, for exercising non-ACK handling
func (m *MockTransport) QueueRawResponse(opcode, packetType byte, payload ...byte) {
	m.mu.Lock()
	m.queues[opcode] = append(m.queues[opcode], mockReply{
		packetType: packetType,
		payload:    payload,
	})
	m.mu.Unlock()
}

// SetDefaultResponse configures a sticky ACK payload served whenever the
// opcode's queue is empty
func (m *MockTransport) SetDefaultResponse(opcode byte, payload ...byte) {
	m.mu.Lock()
	m.defaults[opcode] = mockReply{packetType: frame.TypeAck, payload: payload}
	m.mu.Unlock()
}

// SetError configures an error returned when the opcode is written
func (m *MockTransport) SetError(opcode byte, err error) {
	m.mu.Lock()
	m.errorMap[opcode] = err
	m.mu.Unlock()
}

// SetDelay configures a delay per exchange to simulate hardware response time
func (m *MockTransport) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// Exchanges returns the command payloads written so far, in order
func (m *MockTransport) Exchanges() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.exchanges))
	copy(out, m.exchanges)
	return out
}

// Opcodes returns just the opcode byte of each exchange, in order
func (m *MockTransport) Opcodes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.exchanges))
	for i, p := range m.exchanges {
		out[i] = p[0]
	}
	return out
}

// CallCount returns how many times an opcode was exchanged
func (m *MockTransport) CallCount(opcode byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, p := range m.exchanges {
		if p[0] == opcode {
			count++
		}
	}
	return count
}

// Reset clears recorded exchanges and reconnects the mock
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.exchanges = nil
	m.readBuf = nil
	m.connected = true
	m.mu.Unlock()
}
