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

// Package zfm20 drives ZFM-20 / R30x family optical fingerprint sensors over
// a byte-stream transport. Device exposes the raw protocol operations, one
// request/response exchange each; Session sequences them into finger
// detection, verification and enrollment workflows.
package zfm20

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ZaparooProject/go-zfm20/internal/frame"
)

// Device is the command protocol engine for one fingerprint sensor. Each
// method is a single blocking send-then-receive round trip over the owned
// transport.
//
// Thread safety: Device is NOT thread-safe. Use it from a single goroutine
// or through a Session, which serializes multi-step workflows.
type Device struct {
	transport Transport
	config    *DeviceConfig
	address   uint32
}

// New creates a new sensor device over the given transport
func New(transport Transport, opts ...Option) (*Device, error) {
	device := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
		address:   DefaultAddress,
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}

	if device.config.Timeout > 0 {
		if err := transport.SetTimeout(device.config.Timeout); err != nil {
			return nil, fmt.Errorf("failed to set transport timeout: %w", err)
		}
	}

	return device, nil
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// Address returns the configured device address
func (d *Device) Address() uint32 {
	return d.address
}

// Close closes the device connection
func (d *Device) Close() error {
	if d.transport != nil {
		if err := d.transport.Close(); err != nil {
			return fmt.Errorf("failed to close transport: %w", err)
		}
	}
	return nil
}

// exchange performs one command round trip: reacquire the transport if it
// was lost, send the command frame, reassemble the response and require an
// ACK packet. It returns the raw ACK payload, first byte being the
// confirmation code.
func (d *Device) exchange(op string, payload ...byte) ([]byte, error) {
	if !d.transport.IsConnected() {
		Debugf("%s: transport not connected, reacquiring", op)
		err := RetryWithConfig(context.Background(), d.config.RetryConfig, func() error {
			if err := d.transport.Reconnect(); err != nil {
				return NewTransportError(op, "", err, ErrorTypeTransient)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%s: reacquire transport: %w", op, err)
		}
	}

	Debugf("%s: sending % 02X", op, payload)
	wire := frame.Encode(d.address, frame.TypeCommand, payload)
	if err := d.transport.Write(wire); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	packetType, resp, err := frame.Decode(d.transport)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if packetType != frame.TypeAck {
		return nil, fmt.Errorf("%s: packet type 0x%02X: %w", op, packetType, ErrInvalidPacket)
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("%s: empty ACK payload: %w", op, ErrInvalidPacket)
	}

	Debugf("%s: confirmation 0x%02X", op, resp[0])
	return resp, nil
}

// confirm maps a confirmation code to the sentinel error recognized by the
// calling command. Codes outside the command's recognized set surface as a
// SensorError so they are never silently swallowed.
func confirm(op string, code byte, recognized map[byte]error) error {
	if code == statusSuccess {
		return nil
	}
	if sentinel, ok := recognized[code]; ok {
		return fmt.Errorf("%s: %w", op, sentinel)
	}
	Debugf("%s: unrecognized confirmation code 0x%02X", op, code)
	return &SensorError{Command: op, Code: code}
}

// Scan captures a finger image into the sensor's image buffer. ErrNoFinger
// is the expected result while no finger rests on the window; detection
// loops poll on it.
func (d *Device) Scan() error {
	resp, err := d.exchange("GenImg", cmdScan)
	if err != nil {
		return err
	}
	return confirm("GenImg", resp[0], map[byte]error{
		statusNoFinger:      ErrNoFinger,
		statusCommunication: ErrCommunication,
		statusReadImage:     ErrReadImage,
	})
}

// BufferImage extracts features from the captured image into the selected
// character buffer
func (d *Device) BufferImage(buffer CharBuffer) error {
	resp, err := d.exchange("Img2Tz", cmdBufferImage, byte(buffer))
	if err != nil {
		return err
	}
	return confirm("Img2Tz", resp[0], map[byte]error{
		statusCommunication:    ErrCommunication,
		statusMessyImage:       ErrMessyImage,
		statusFewFeaturePoints: ErrFewFeaturePoints,
		statusInvalidImage:     ErrInvalidImage,
	})
}

// SearchTemplate matches the selected character buffer against the template
// library and returns the matched position and score. ErrNoMatch indicates a
// clean scan with no stored counterpart.
func (d *Device) SearchTemplate(buffer CharBuffer) (position, score uint16, err error) {
	resp, err := d.exchange("Search", cmdSearchTemplate,
		byte(buffer),
		byte(searchStart>>8), byte(searchStart),
		byte(searchWindow>>8), byte(searchWindow),
	)
	if err != nil {
		return 0, 0, err
	}

	if err := confirm("Search", resp[0], map[byte]error{
		statusNoMatch:       ErrNoMatch,
		statusCommunication: ErrCommunication,
	}); err != nil {
		return 0, 0, err
	}

	if len(resp) < 5 {
		return 0, 0, fmt.Errorf("Search: payload %d bytes: %w", len(resp), ErrInvalidPacket)
	}

	position = binary.BigEndian.Uint16(resp[1:3])
	score = binary.BigEndian.Uint16(resp[3:5])
	Debugf("Search: position %d score %d", position, score)
	return position, score, nil
}

// CountTemplates returns the number of templates stored on the device
func (d *Device) CountTemplates() (uint16, error) {
	resp, err := d.exchange("TemplateNum", cmdCountTemplates)
	if err != nil {
		return 0, err
	}

	if err := confirm("TemplateNum", resp[0], map[byte]error{
		statusCommunication: ErrCommunication,
	}); err != nil {
		return 0, err
	}

	if len(resp) < 3 {
		return 0, fmt.Errorf("TemplateNum: payload %d bytes: %w", len(resp), ErrInvalidPacket)
	}

	return binary.BigEndian.Uint16(resp[1:3]), nil
}

// CreateTemplate merges the two character buffers into a storable template
func (d *Device) CreateTemplate() error {
	resp, err := d.exchange("RegModel", cmdCreateTemplate)
	if err != nil {
		return err
	}
	return confirm("RegModel", resp[0], map[byte]error{
		statusCommunication:           ErrCommunication,
		statusCharacteristicsMismatch: ErrCharacteristicsMismatch,
	})
}

// StoreTemplate writes the template in the selected character buffer to
// flash at the given position and returns the position on success
func (d *Device) StoreTemplate(buffer CharBuffer, position uint16) (uint16, error) {
	resp, err := d.exchange("Store", cmdStoreTemplate,
		byte(buffer),
		byte(position>>8), byte(position),
	)
	if err != nil {
		return 0, err
	}

	if err := confirm("Store", resp[0], map[byte]error{
		statusCommunication:   ErrCommunication,
		statusInvalidPosition: ErrInvalidPosition,
		statusFlash:           ErrFlash,
	}); err != nil {
		return 0, err
	}

	Debugf("Store: template stored at %d", position)
	return position, nil
}

// DeleteTemplate removes the template at the given position
func (d *Device) DeleteTemplate(position uint16) error {
	// Count of consecutive templates to delete is fixed at one
	resp, err := d.exchange("DeletChar", cmdDeleteTemplate,
		byte(position>>8), byte(position),
		0x00, 0x01,
	)
	if err != nil {
		return err
	}
	return confirm("DeletChar", resp[0], map[byte]error{
		statusCommunication:  ErrCommunication,
		statusDeleteTemplate: ErrDeleteFailed,
	})
}

// EraseAll removes every template from the library
func (d *Device) EraseAll() error {
	resp, err := d.exchange("Empty", cmdEraseAll)
	if err != nil {
		return err
	}
	return confirm("Empty", resp[0], map[byte]error{
		statusCommunication: ErrCommunication,
	})
}

// ReadIndexTable reads one page of the template occupancy bitmap. Each page
// covers 256 positions, least significant bit first within each byte.
func (d *Device) ReadIndexTable(page byte) ([]byte, error) {
	resp, err := d.exchange("ReadIndexTable", cmdReadIndexTable, page)
	if err != nil {
		return nil, err
	}

	if err := confirm("ReadIndexTable", resp[0], map[byte]error{
		statusCommunication: ErrCommunication,
	}); err != nil {
		return nil, err
	}

	if len(resp) < 1+indexTableSize {
		return nil, fmt.Errorf("ReadIndexTable: payload %d bytes: %w", len(resp), ErrInvalidPacket)
	}

	table := make([]byte, indexTableSize)
	copy(table, resp[1:1+indexTableSize])
	return table, nil
}
