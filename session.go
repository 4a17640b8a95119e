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
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-zfm20/internal/syncutil"
)

// Mode is the sensor's observable workflow state
type Mode string

const (
	// ModeFree means no detection or enrollment sequence is running.
	ModeFree Mode = "free"
	// ModeBusy means a detection loop owns the sensor.
	ModeBusy Mode = "busy"
)

// VerifyResult is a successful fingerprint match
type VerifyResult struct {
	// Position is the matched template position (finger ID)
	Position uint16
	// Score is the match accuracy score
	Score uint16
}

// Session sequences Device operations into finger workflows and owns the
// sensor's FREE/BUSY mode. Only one detection or enrollment sequence may run
// at a time; concurrent attempts fail fast with ErrBusy.
//
// Cancellation is cooperative: CancelDetect raises a flag that the detection
// loop observes at the top of each poll iteration, so cancellation latency
// is bounded below by the transport's per-byte read timeout.
type Session struct {
	device       *Device
	mode         Mode
	lastCount    uint16
	modeMu       syncutil.Mutex
	cancelDetect atomic.Bool
}

// NewSession creates a workflow session around a device
func NewSession(device *Device) *Session {
	return &Session{
		device: device,
		mode:   ModeFree,
	}
}

// Device returns the underlying protocol engine
func (s *Session) Device() *Device {
	return s.device
}

// Mode returns the sensor's current workflow mode
func (s *Session) Mode() Mode {
	s.modeMu.Lock()
	defer s.modeMu.Unlock()
	return s.mode
}

// LastTemplateCount returns the template count recorded by the most recent
// count exchange
func (s *Session) LastTemplateCount() uint16 {
	s.modeMu.Lock()
	defer s.modeMu.Unlock()
	return s.lastCount
}

// CancelDetect requests cancellation of a running detection loop. The flag
// is cleared by the loop when honored.
func (s *Session) CancelDetect() {
	s.cancelDetect.Store(true)
}

// Close closes the underlying device
func (s *Session) Close() error {
	return s.device.Close()
}

// tryEnterBusy atomically checks-and-claims the sensor. The check and the
// transition are one critical section so two callers cannot both pass.
func (s *Session) tryEnterBusy() bool {
	s.modeMu.Lock()
	defer s.modeMu.Unlock()
	if s.mode == ModeBusy {
		return false
	}
	s.mode = ModeBusy
	return true
}

// exitBusy releases the sensor. When recount is set the template count is
// refreshed against the device first, so the outward mode change is only
// visible once the count is in sync; the sensor keeps its operating mode
// consistent with the stored-template count.
func (s *Session) exitBusy(recount bool) {
	if recount {
		if _, err := s.CountTemplates(); err != nil {
			Debugf("template recount on busy exit failed: %v", err)
		}
	}
	s.modeMu.Lock()
	s.mode = ModeFree
	s.modeMu.Unlock()
}

// DetectFinger polls the sensor until a finger is captured. A timeout of
// zero polls indefinitely. It returns nil on capture, ErrNoFinger when the
// timeout elapses, ErrCancelled when a cancel request is honored (the
// request wins over a simultaneous timeout), ErrBusy if another sequence
// owns the sensor, and an ErrReadInput-wrapped error on any protocol fault.
func (s *Session) DetectFinger(timeout time.Duration) error {
	if !s.tryEnterBusy() {
		return ErrBusy
	}

	Debugf("detecting finger, timeout %v", timeout)
	start := time.Now()

	for {
		err := s.device.Scan()
		if err == nil {
			s.exitBusy(false)
			return nil
		}

		if errors.Is(err, ErrNoFinger) {
			// Cancellation takes precedence over an elapsed timeout and
			// clears the flag as a side effect.
			if s.cancelDetect.CompareAndSwap(true, false) {
				Debugln("finger detection cancelled")
				s.exitBusy(true)
				return ErrCancelled
			}
			if timeout > 0 && time.Since(start) >= timeout {
				Debugln("finger detection timed out")
				s.exitBusy(true)
				return ErrNoFinger
			}
			continue
		}

		Debugf("finger detection aborted: %v", err)
		s.exitBusy(false)
		return wrapReadInput(err)
	}
}

// VerifyFinger waits for a finger and matches it against the template
// library. ErrNoFinger and ErrCancelled pass through from detection;
// ErrNotRecognized means the finger is not enrolled.
func (s *Session) VerifyFinger(timeout time.Duration) (VerifyResult, error) {
	if err := s.DetectFinger(timeout); err != nil {
		return VerifyResult{}, err
	}

	if err := s.device.BufferImage(BufferRead); err != nil {
		return VerifyResult{}, wrapReadInput(err)
	}

	position, score, err := s.device.SearchTemplate(BufferRead)
	if err != nil {
		if errors.Is(err, ErrNoMatch) {
			return VerifyResult{}, ErrNotRecognized
		}
		return VerifyResult{}, wrapReadInput(err)
	}

	Debugf("finger verified: position %d score %d", position, score)
	return VerifyResult{Position: position, Score: score}, nil
}

// Enroll registers a new finger at the next free template position and
// returns the stored position. The finger must not already be enrolled.
func (s *Session) Enroll(timeout time.Duration) (uint16, error) {
	return s.enroll(-1, timeout)
}

// EnrollAt registers a new finger at an explicit template position
func (s *Session) EnrollAt(position uint16, timeout time.Duration) (uint16, error) {
	return s.enroll(int(position), timeout)
}

// enroll runs the full enrollment workflow. position < 0 selects the next
// free slot. The verify pass guards against duplicates: a successful match
// means the finger is already enrolled and no template is created.
func (s *Session) enroll(position int, timeout time.Duration) (uint16, error) {
	if s.Mode() != ModeFree {
		Debugln("enroll rejected, sensor is busy")
		return 0, ErrBusy
	}

	_, err := s.VerifyFinger(timeout)
	switch {
	case err == nil:
		Debugln("enroll rejected, finger already enrolled")
		return 0, ErrAlreadyEnrolled
	case errors.Is(err, ErrNotRecognized):
		Debugln("finger not enrolled yet, storing")
	default:
		return 0, err
	}

	return s.storeNewFinger(position)
}

// storeNewFinger captures the finger a second time and writes its template.
// There is no rollback: a fault after CreateTemplate leaves the device-side
// buffers as-is and the whole enrollment must be retried.
func (s *Session) storeNewFinger(position int) (uint16, error) {
	if err := s.DetectFinger(0); err != nil {
		return 0, err
	}

	if err := s.device.BufferImage(BufferWrite); err != nil {
		return 0, wrapReadInput(err)
	}

	if err := s.device.CreateTemplate(); err != nil {
		return 0, wrapReadInput(err)
	}

	target, err := s.resolvePosition(position)
	if err != nil {
		return 0, err
	}

	stored, err := s.device.StoreTemplate(BufferWrite, target)
	if err != nil {
		if errors.Is(err, ErrInvalidPosition) {
			return 0, ErrNoFreePosition
		}
		return 0, wrapReadInput(err)
	}

	Debugf("new finger stored at %d", stored)
	return stored, nil
}

// resolvePosition picks the storage slot for a new template
func (s *Session) resolvePosition(position int) (uint16, error) {
	if position >= 0 {
		return uint16(position), nil
	}
	return s.nextFreePosition()
}

// nextFreePosition scans the template occupancy bitmap for the first vacant
// slot inside the search window, so positions vacated by deletions are
// reused. When the index table cannot be read the template count serves as
// a degraded fallback.
func (s *Session) nextFreePosition() (uint16, error) {
	table, err := s.device.ReadIndexTable(0)
	if err != nil {
		Debugf("index table unavailable, falling back to template count: %v", err)
		count, err := s.CountTemplates()
		if err != nil {
			return 0, wrapReadInput(err)
		}
		return count, nil
	}

	for pos := uint16(0); pos < searchWindow; pos++ {
		if table[pos/8]&(1<<(pos%8)) == 0 {
			return pos, nil
		}
	}

	return 0, ErrNoFreePosition
}

// CountTemplates reads the stored template count and records it
func (s *Session) CountTemplates() (uint16, error) {
	count, err := s.device.CountTemplates()
	if err != nil {
		return 0, err
	}

	s.modeMu.Lock()
	s.lastCount = count
	s.modeMu.Unlock()
	return count, nil
}

// Delete removes the template at the given position
func (s *Session) Delete(position uint16) error {
	Debugf("deleting template at %d", position)
	return s.device.DeleteTemplate(position)
}

// EraseAll removes every stored template
func (s *Session) EraseAll() error {
	Debugln("erasing all templates")
	return s.device.EraseAll()
}

// wrapReadInput folds a protocol fault into the workflow-level read fault so
// callers branch on one error while the underlying detail stays in the
// message.
func wrapReadInput(err error) error {
	return fmt.Errorf("%w: %v", ErrReadInput, err)
}
