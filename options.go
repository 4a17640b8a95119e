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
	"fmt"
	"time"
)

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// RetryConfig configures retry behavior for connection establishment
	RetryConfig *RetryConfig
	// Timeout is the per-byte read timeout applied to the transport
	Timeout time.Duration
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		RetryConfig: DefaultRetryConfig(),
		Timeout:     2 * time.Second,
	}
}

// Option configures a Device during construction
type Option func(*Device) error

// WithAddress sets the four-byte device address used in every frame. The
// default is the all-ones broadcast address.
func WithAddress(address uint32) Option {
	return func(d *Device) error {
		d.address = address
		return nil
	}
}

// WithTimeout sets the per-byte read timeout applied to the transport
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", timeout)
		}
		d.config.Timeout = timeout
		return nil
	}
}

// WithRetryConfig sets the retry configuration used when establishing or
// reacquiring the connection
func WithRetryConfig(config *RetryConfig) Option {
	return func(d *Device) error {
		if config == nil {
			return fmt.Errorf("retry config must not be nil")
		}
		d.config.RetryConfig = config
		return nil
	}
}
