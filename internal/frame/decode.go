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

import "errors"

// Codec faults
var (
	// ErrInvalidHeader indicates the first two received bytes did not match
	// the start marker. No resynchronization is attempted; the caller decides
	// whether to retry the whole exchange.
	ErrInvalidHeader = errors.New("frame start marker mismatch")
	// ErrChecksumMismatch indicates the recomputed checksum did not match the
	// trailing two bytes of the frame.
	ErrChecksumMismatch = errors.New("frame checksum mismatch")
	// ErrTruncated indicates a byte needed to complete the frame never
	// arrived within the reads consumed so far.
	ErrTruncated = errors.New("frame truncated")
)

// ByteReader is the capability the decoder needs from a transport: read one
// byte, bounded by the transport's own timeout. A timed-out read returns
// ok=false with no error and still counts as one position in the stream.
type ByteReader interface {
	ReadByte() (b byte, ok bool, err error)
}

// noData marks a stream position where the read timed out with no byte.
const noData = -1

// Decode reassembles one frame from r, reading a single byte at a time, and
// returns its packet type and payload. The decoder itself has no timeout: a
// silent device is bounded by the transport's per-byte read timeout times the
// frame length, and by the caller's round-trip timeout above that.
//
// Header mismatch returns ErrInvalidHeader. A checksum mismatch or a frame
// with missing bytes returns ErrChecksumMismatch or ErrTruncated. Transport
// read errors are returned unchanged so callers can classify them.
func Decode(r ByteReader) (packetType byte, payload []byte, err error) {
	received := make([]int, 0, minFrameBytes)

	for {
		b, ok, err := r.ReadByte()
		if err != nil {
			return 0, nil, err
		}
		if ok {
			received = append(received, int(b))
		} else {
			received = append(received, noData)
		}

		n := len(received)
		if n < minFrameBytes {
			continue
		}

		if received[0] != StartHigh || received[1] != StartLow {
			return 0, nil, ErrInvalidHeader
		}

		lenHigh, lenLow := received[offsetLenHigh], received[offsetLenLow]
		if lenHigh == noData || lenLow == noData {
			return 0, nil, ErrTruncated
		}
		length := lenHigh<<8 | lenLow
		// The length field counts the payload plus its own checksum; a
		// smaller value cannot describe a valid frame.
		if length < ChecksumLen {
			return 0, nil, ErrChecksumMismatch
		}

		if n < offsetPayload+length {
			continue
		}

		return finishFrame(received, length)
	}
}

// finishFrame validates a positionally complete frame and extracts its
// payload.
func finishFrame(received []int, length int) (byte, []byte, error) {
	typ := received[offsetType]
	if typ == noData {
		return 0, nil, ErrTruncated
	}

	sum := typ + received[offsetLenHigh] + received[offsetLenLow]

	payloadLen := length - ChecksumLen
	payload := make([]byte, 0, payloadLen)
	for i := offsetPayload; i < offsetPayload+payloadLen; i++ {
		if received[i] == noData {
			return 0, nil, ErrTruncated
		}
		payload = append(payload, byte(received[i]))
		sum += received[i]
	}

	n := len(received)
	chkHigh, chkLow := received[n-2], received[n-1]
	if chkHigh == noData || chkLow == noData {
		return 0, nil, ErrTruncated
	}

	if chkHigh<<8|chkLow != sum&0xFFFF {
		return 0, nil, ErrChecksumMismatch
	}

	return byte(typ), payload, nil
}
