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

// Command reader exercises a ZFM-20 fingerprint sensor from the command
// line: enroll fingers, verify them against the template library, and manage
// stored templates.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	zfm20 "github.com/ZaparooProject/go-zfm20"
	"github.com/ZaparooProject/go-zfm20/transport/uart"
)

type config struct {
	devicePath string
	command    string
	args       []string
	timeout    time.Duration
	baudRate   int
	debug      bool
}

// Package-level flag variables
var (
	flagDevicePath string
	flagBaudRate   int
	flagTimeout    time.Duration
	flagDebug      bool
)

func init() {
	flag.StringVar(&flagDevicePath, "device", "/dev/ttyUSB0", "Serial device path")
	flag.IntVar(&flagBaudRate, "baud", uart.DefaultBaudRate, "Serial baud rate")
	flag.DurationVar(&flagTimeout, "timeout", 10*time.Second, "Finger detection timeout (0 waits forever)")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] <command> [args]

Commands:
  enroll [position]   Enroll a new finger, optionally at a fixed position
  verify              Match a finger against the template library
  watch               Verify fingers in a loop until interrupted
  count               Print the number of stored templates
  delete <position>   Delete the template at a position
  erase               Delete every stored template

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func parseConfig() (*config, error) {
	flag.Usage = usage
	flag.Parse()

	if flagDebug {
		zfm20.SetDebugEnabled(true)
	}

	if flag.NArg() < 1 {
		return nil, errors.New("no command given")
	}

	return &config{
		devicePath: flagDevicePath,
		baudRate:   flagBaudRate,
		timeout:    flagTimeout,
		debug:      flagDebug,
		command:    flag.Arg(0),
		args:       flag.Args()[1:],
	}, nil
}

// connect opens the sensor over UART and wraps it in a workflow session
func connect(cfg *config) (*zfm20.Session, error) {
	session, err := zfm20.ConnectSensor(cfg.devicePath, func(path string) (zfm20.Transport, error) {
		return uart.New(path, uart.WithBaudRate(cfg.baudRate))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sensor at %s: %w", cfg.devicePath, err)
	}
	return session, nil
}

// cancelOnSignal forwards SIGINT/SIGTERM to the session's detection loop so
// a blocked "place finger" prompt exits cleanly.
func cancelOnSignal(session *zfm20.Session) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-sigCh:
				fmt.Fprintln(os.Stderr, "\ninterrupted, cancelling...")
				session.CancelDetect()
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func runEnroll(session *zfm20.Session, cfg *config) error {
	var position = -1
	if len(cfg.args) > 0 {
		p, err := strconv.ParseUint(cfg.args[0], 10, 16)
		if err != nil {
			return fmt.Errorf("invalid position %q: %w", cfg.args[0], err)
		}
		position = int(p)
	}

	fmt.Println("Place finger on the sensor...")

	var stored uint16
	var err error
	if position >= 0 {
		stored, err = session.EnrollAt(uint16(position), cfg.timeout)
	} else {
		stored, err = session.Enroll(cfg.timeout)
	}

	switch {
	case err == nil:
		fmt.Printf("Finger enrolled at position %d\n", stored)
		return nil
	case errors.Is(err, zfm20.ErrAlreadyEnrolled):
		fmt.Println("Finger is already enrolled")
		return nil
	default:
		return err
	}
}

func runVerify(session *zfm20.Session, cfg *config) error {
	fmt.Println("Place finger on the sensor...")

	result, err := session.VerifyFinger(cfg.timeout)
	switch {
	case err == nil:
		fmt.Printf("Match: position %d, score %d\n", result.Position, result.Score)
		return nil
	case errors.Is(err, zfm20.ErrNotRecognized):
		fmt.Println("Finger not recognized")
		return nil
	default:
		return err
	}
}

func runWatch(session *zfm20.Session, _ *config) error {
	fmt.Println("Watching for fingers, press Ctrl-C to stop...")

	for {
		// No timeout, each iteration waits for a finger indefinitely
		result, err := session.VerifyFinger(0)
		switch {
		case err == nil:
			fmt.Printf("Match: position %d, score %d\n", result.Position, result.Score)
		case errors.Is(err, zfm20.ErrNotRecognized):
			fmt.Println("Finger not recognized")
		case errors.Is(err, zfm20.ErrCancelled):
			return nil
		default:
			if zfm20.IsFatal(err) {
				return err
			}
			fmt.Fprintf(os.Stderr, "verify failed: %v\n", err)
		}

		// Small pause so the same touch is not matched twice
		time.Sleep(500 * time.Millisecond)
	}
}

func runCount(session *zfm20.Session, _ *config) error {
	count, err := session.CountTemplates()
	if err != nil {
		return err
	}
	fmt.Printf("%d templates stored\n", count)
	return nil
}

func runDelete(session *zfm20.Session, cfg *config) error {
	if len(cfg.args) < 1 {
		return errors.New("delete requires a position argument")
	}
	position, err := strconv.ParseUint(cfg.args[0], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid position %q: %w", cfg.args[0], err)
	}

	if err := session.Delete(uint16(position)); err != nil {
		return err
	}
	fmt.Printf("Template %d deleted\n", position)
	return nil
}

func runErase(session *zfm20.Session, _ *config) error {
	if err := session.EraseAll(); err != nil {
		return err
	}
	fmt.Println("All templates erased")
	return nil
}

func run(cfg *config) error {
	session, err := connect(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	stop := cancelOnSignal(session)
	defer stop()

	switch cfg.command {
	case "enroll":
		return runEnroll(session, cfg)
	case "verify":
		return runVerify(session, cfg)
	case "watch":
		return runWatch(session, cfg)
	case "count":
		return runCount(session, cfg)
	case "delete":
		return runDelete(session, cfg)
	case "erase":
		return runErase(session, cfg)
	default:
		return fmt.Errorf("unknown command %q", cfg.command)
	}
}

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg, err := parseConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		usage()
		return 2
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
