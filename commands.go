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

// ZFM-20 command opcodes
const (
	cmdScan           = 0x01 // GenImg: capture a finger image
	cmdBufferImage    = 0x02 // Img2Tz: extract features into a character buffer
	cmdSearchTemplate = 0x04 // Search: match a character buffer against the library
	cmdCreateTemplate = 0x05 // RegModel: merge the character buffers into a template
	cmdStoreTemplate  = 0x06 // Store: write a template to flash
	cmdDeleteTemplate = 0x0C // DeletChar: delete templates at a position
	cmdEraseAll       = 0x0D // Empty: erase the whole template library
	cmdCountTemplates = 0x1D // TemplateNum: read the stored template count
	cmdReadIndexTable = 0x1F // ReadIndexTable: read the template occupancy bitmap
)

// Confirmation codes carried in the first payload byte of every ACK
const (
	statusSuccess                 = 0x00
	statusCommunication           = 0x01
	statusNoFinger                = 0x02
	statusReadImage               = 0x03
	statusMessyImage              = 0x06
	statusFewFeaturePoints        = 0x07
	statusNoMatch                 = 0x09
	statusCharacteristicsMismatch = 0x0A
	statusInvalidPosition         = 0x0B
	statusDeleteTemplate          = 0x10
	statusInvalidImage            = 0x15
	statusFlash                   = 0x18
)

// CharBuffer selects one of the two device-side character buffers. A scanned
// image used for matching goes to the read buffer; an image destined for
// storage goes to the write buffer.
type CharBuffer byte

const (
	// BufferRead holds features pending comparison.
	BufferRead CharBuffer = 0x01
	// BufferWrite holds features pending storage.
	BufferWrite CharBuffer = 0x02
)

// Search parameters, fixed by the protocol
const (
	searchStart  uint16 = 0x0000
	searchWindow uint16 = 0x00A3
)

// indexTableSize is the byte length of one index table page, a bitmap
// covering 256 template positions.
const indexTableSize = 32

// DefaultAddress is the all-ones broadcast device address every module
// answers to out of the box.
const DefaultAddress uint32 = 0xFFFFFFFF
