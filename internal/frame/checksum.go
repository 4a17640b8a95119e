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

// Checksum computes the frame checksum over packet type, length field and
// payload. The running sum is carried as a native integer and may exceed
// 16 bits across additions; only the low 16 bits are transmitted, extracted
// by the caller via shift-and-mask.
func Checksum(packetType byte, length uint16, payload []byte) int {
	sum := int(packetType) + int(length>>8&0xFF) + int(length&0xFF)
	for _, b := range payload {
		sum += int(b)
	}
	return sum
}
