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
	"context"
	"errors"
	"fmt"
)

// TransportFactory is a function type for creating transports. It keeps this
// package free of a dependency on concrete transport implementations.
type TransportFactory func(path string) (Transport, error)

// ConnectSensor opens a transport through the factory, builds a Device and
// wraps it in a Session. Opening is retried with backoff since USB serial
// adapters are commonly slow to appear after plug-in.
//
// Example usage:
//
//	session, err := zfm20.ConnectSensor("/dev/ttyUSB0", func(path string) (zfm20.Transport, error) {
//	    return uart.New(path)
//	})
func ConnectSensor(path string, factory TransportFactory, opts ...Option) (*Session, error) {
	if factory == nil {
		return nil, errors.New("transport factory not provided")
	}

	// Apply the options up front so a WithRetryConfig override governs the
	// open attempts, not just the device built afterwards.
	settings := &Device{config: DefaultDeviceConfig(), address: DefaultAddress}
	for _, opt := range opts {
		if err := opt(settings); err != nil {
			return nil, err
		}
	}

	var transport Transport
	err := RetryWithConfig(context.Background(), settings.config.RetryConfig, func() error {
		t, err := factory(path)
		if err != nil {
			return NewTransportError("connect", path, err, ErrorTypeTransient)
		}
		transport = t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open transport %s: %w", path, err)
	}

	device, err := New(transport, opts...)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}

	return NewSession(device), nil
}
