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

// Package frame implements the wire codec for the ZFM-20 packet protocol:
// a fixed two-byte start marker, a four-byte device address, a one-byte
// packet type, a two-byte big-endian length covering payload plus checksum,
// the payload, and a two-byte additive checksum.
package frame

// Encode serializes a packet into its exact wire bytes. The length field is
// the payload length plus the two checksum bytes. All multi-byte fields are
// big-endian.
func Encode(address uint32, packetType byte, payload []byte) []byte {
	length := uint16(len(payload) + ChecksumLen)

	buf := make([]byte, 0, HeaderLen+len(payload)+ChecksumLen)
	buf = append(buf, StartHigh, StartLow)
	buf = append(buf,
		byte(address>>24),
		byte(address>>16),
		byte(address>>8),
		byte(address),
	)
	buf = append(buf, packetType)
	buf = append(buf, byte(length>>8), byte(length))
	buf = append(buf, payload...)

	sum := Checksum(packetType, length, payload)
	buf = append(buf, byte(sum>>8&0xFF), byte(sum&0xFF))

	return buf
}
