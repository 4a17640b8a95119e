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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) (*Session, *MockTransport) {
	t.Helper()
	device, mock := newTestDevice(t)
	// The count exchange needs a two-byte count in its payload; the bare
	// default ACK is too short for it.
	mock.SetDefaultResponse(cmdCountTemplates, statusSuccess, 0x00, 0x05)
	return NewSession(device), mock
}

// queueSearchMatch stages a successful search result
func queueSearchMatch(mock *MockTransport, position, score uint16) {
	mock.QueueResponse(cmdSearchTemplate, statusSuccess,
		byte(position>>8), byte(position),
		byte(score>>8), byte(score),
	)
}

// queueSearchMiss stages a search that finds no matching template
func queueSearchMiss(mock *MockTransport) {
	mock.QueueResponse(cmdSearchTemplate, statusNoMatch, 0x00, 0x00, 0x00, 0x00)
}

// queueIndexTable stages an occupancy bitmap page
func queueIndexTable(mock *MockTransport, bitmap []byte) {
	page := make([]byte, indexTableSize)
	copy(page, bitmap)
	mock.QueueResponse(cmdReadIndexTable, append([]byte{statusSuccess}, page...)...)
}

func TestDetectFinger_ImmediateCapture(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)

	require.NoError(t, session.DetectFinger(time.Second))
	assert.Equal(t, ModeFree, session.Mode())
	// A clean capture does not refresh the template count
	assert.Equal(t, 0, mock.CallCount(cmdCountTemplates))
}

func TestDetectFinger_PollsUntilCapture(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)
	mock.QueueResponse(cmdScan, statusNoFinger)
	mock.QueueResponse(cmdScan, statusNoFinger)
	mock.QueueResponse(cmdScan, statusSuccess)

	require.NoError(t, session.DetectFinger(time.Second))
	assert.Equal(t, 3, mock.CallCount(cmdScan))
}

func TestDetectFinger_TimeoutReturnsNoFinger(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)
	mock.SetDefaultResponse(cmdScan, statusNoFinger)
	mock.SetDelay(time.Millisecond)

	err := session.DetectFinger(10 * time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoFinger)
	assert.Equal(t, ModeFree, session.Mode())

	// Timing out refreshes the template count on the way out
	assert.Equal(t, 1, mock.CallCount(cmdCountTemplates))
	assert.Equal(t, uint16(5), session.LastTemplateCount())
}

func TestDetectFinger_CancellationWinsOverTimeout(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)
	mock.SetDefaultResponse(cmdScan, statusNoFinger)

	session.CancelDetect()
	// The timeout has certainly elapsed by the first poll; cancellation
	// still takes precedence.
	err := session.DetectFinger(time.Nanosecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)

	// Honoring the request clears the flag
	assert.False(t, session.cancelDetect.Load())
	assert.Equal(t, ModeFree, session.Mode())
	assert.Equal(t, 1, mock.CallCount(cmdCountTemplates))
}

func TestDetectFinger_CancelFlagDoesNotLeakIntoNextRun(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)
	mock.QueueResponse(cmdScan, statusNoFinger)

	session.CancelDetect()
	require.ErrorIs(t, session.DetectFinger(time.Second), ErrCancelled)

	// Next detection runs normally
	require.NoError(t, session.DetectFinger(time.Second))
}

func TestDetectFinger_BusySensorRejected(t *testing.T) {
	t.Parallel()

	session, _ := newTestSession(t)
	require.True(t, session.tryEnterBusy())
	defer session.exitBusy(false)

	err := session.DetectFinger(time.Second)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, ModeBusy, session.Mode())
}

func TestDetectFinger_ProtocolFaultWrapped(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)
	mock.SetError(cmdScan, NewTransportWriteError("Write", "mock"))

	err := session.DetectFinger(time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReadInput)
	assert.Equal(t, ModeFree, session.Mode())
	// A fault exit does not recount
	assert.Equal(t, 0, mock.CallCount(cmdCountTemplates))
}

func TestVerifyFinger_Match(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)
	queueSearchMatch(mock, 7, 300)

	result, err := session.VerifyFinger(time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), result.Position)
	assert.Equal(t, uint16(300), result.Score)

	// Capture, extract into the read buffer, search
	assert.Equal(t, []byte{cmdScan, cmdBufferImage, cmdSearchTemplate}, mock.Opcodes())
	exchanges := mock.Exchanges()
	assert.Equal(t, []byte{cmdBufferImage, byte(BufferRead)}, exchanges[1])
}

func TestVerifyFinger_NotRecognized(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)
	queueSearchMiss(mock)

	_, err := session.VerifyFinger(time.Second)
	assert.ErrorIs(t, err, ErrNotRecognized)
}

func TestVerifyFinger_DetectionErrorsPassThrough(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)
	mock.SetDefaultResponse(cmdScan, statusNoFinger)
	mock.SetDelay(time.Millisecond)

	_, err := session.VerifyFinger(5 * time.Millisecond)
	assert.ErrorIs(t, err, ErrNoFinger)
}

func TestEnrollAt_FullWorkflow(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)
	queueSearchMiss(mock)

	stored, err := session.EnrollAt(5, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint16(5), stored)

	// Verify pass, second capture into the write buffer, merge, store
	assert.Equal(t, []byte{
		cmdScan, cmdBufferImage, cmdSearchTemplate,
		cmdScan, cmdBufferImage, cmdCreateTemplate, cmdStoreTemplate,
	}, mock.Opcodes())

	exchanges := mock.Exchanges()
	assert.Equal(t, []byte{cmdBufferImage, byte(BufferWrite)}, exchanges[4])
	assert.Equal(t, []byte{cmdStoreTemplate, byte(BufferWrite), 0x00, 0x05}, exchanges[6])
	assert.Equal(t, ModeFree, session.Mode())
}

func TestEnroll_AlreadyEnrolled(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)
	queueSearchMatch(mock, 2, 150)

	_, err := session.Enroll(time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)

	// No template was created or stored
	assert.Equal(t, 0, mock.CallCount(cmdCreateTemplate))
	assert.Equal(t, 0, mock.CallCount(cmdStoreTemplate))
}

func TestEnroll_BusySensorRejected(t *testing.T) {
	t.Parallel()

	session, _ := newTestSession(t)
	require.True(t, session.tryEnterBusy())
	defer session.exitBusy(false)

	_, err := session.Enroll(time.Second)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestEnroll_PicksFirstFreePosition(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)
	queueSearchMiss(mock)
	// Positions 0 and 2 occupied, 1 free
	queueIndexTable(mock, []byte{0b0000_0101})

	stored, err := session.Enroll(time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), stored)

	exchanges := mock.Exchanges()
	last := exchanges[len(exchanges)-1]
	assert.Equal(t, []byte{cmdStoreTemplate, byte(BufferWrite), 0x00, 0x01}, last)
}

func TestEnroll_ReusesDeletedSlot(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)
	queueSearchMiss(mock)
	// Slot 3 was deleted out of 0..9
	queueIndexTable(mock, []byte{0b1111_0111, 0b0000_0011})

	stored, err := session.Enroll(time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), stored)
}

func TestEnroll_NoFreePosition(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)
	queueSearchMiss(mock)

	full := make([]byte, indexTableSize)
	for i := range full {
		full[i] = 0xFF
	}
	queueIndexTable(mock, full)

	_, err := session.Enroll(time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoFreePosition)
}

func TestEnroll_StoreRejectsPosition(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)
	queueSearchMiss(mock)
	mock.QueueResponse(cmdStoreTemplate, statusInvalidPosition)

	_, err := session.EnrollAt(500, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoFreePosition)
}

func TestNextFreePosition_FallsBackToCount(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)
	mock.SetError(cmdReadIndexTable, NewTransportReadError("ReadByte", "mock"))
	mock.SetDefaultResponse(cmdCountTemplates, statusSuccess, 0x00, 0x04)

	position, err := session.nextFreePosition()
	require.NoError(t, err)
	assert.Equal(t, uint16(4), position)
}

func TestCountTemplates_RecordsLastCount(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)
	mock.QueueResponse(cmdCountTemplates, statusSuccess, 0x00, 0x2A)

	count, err := session.CountTemplates()
	require.NoError(t, err)
	assert.Equal(t, uint16(42), count)
	assert.Equal(t, uint16(42), session.LastTemplateCount())
}

func TestSession_DeleteAndErase(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)

	require.NoError(t, session.Delete(9))
	require.NoError(t, session.EraseAll())

	assert.Equal(t, []byte{cmdDeleteTemplate, cmdEraseAll}, mock.Opcodes())
	exchanges := mock.Exchanges()
	assert.Equal(t, []byte{cmdDeleteTemplate, 0x00, 0x09, 0x00, 0x01}, exchanges[0])
}

func TestSession_ConcurrentDetectionRejected(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)
	mock.SetDefaultResponse(cmdScan, statusNoFinger)
	mock.SetDelay(5 * time.Millisecond)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		done <- session.DetectFinger(0)
	}()

	<-started
	// Wait until the loop owns the sensor
	for session.Mode() != ModeBusy {
		time.Sleep(time.Millisecond)
	}

	_, err := session.Enroll(time.Second)
	assert.ErrorIs(t, err, ErrBusy)

	session.CancelDetect()
	assert.ErrorIs(t, <-done, ErrCancelled)
}

func TestSession_CloseClosesDevice(t *testing.T) {
	t.Parallel()

	session, mock := newTestSession(t)
	require.NoError(t, session.Close())
	assert.False(t, mock.IsConnected())
}
