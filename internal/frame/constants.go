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

package frame

// Start marker bytes - every frame begins with these two bytes
const (
	StartHigh = 0xEF
	StartLow  = 0x01
)

// Packet type codes
const (
	TypeCommand = 0x01 // Host to sensor
	TypeAck     = 0x07 // Sensor to host acknowledgment
)

// Frame layout offsets, counted from the first start marker byte
const (
	offsetType    = 6 // Packet type byte
	offsetLenHigh = 7 // Length high byte
	offsetLenLow  = 8 // Length low byte
	offsetPayload = 9 // First payload byte
)

// Frame size constants
const (
	// HeaderLen is the fixed portion before the payload:
	// start(2) + address(4) + type(1) + length(2)
	HeaderLen = 9
	// ChecksumLen is the size of the trailing checksum
	ChecksumLen = 2
	// minFrameBytes is the smallest read count at which the header and
	// length field are guaranteed to have arrived
	minFrameBytes = 12
)
