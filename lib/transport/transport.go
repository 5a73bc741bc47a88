// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package transport abstracts the raw L2 send and receive backend of the
// protocol engine. Implementations exist for a Linux packet socket and an
// in-memory virtual network for tests; the engine never inspects which one
// it is running on.
package transport

import (
	"errors"
	stdsync "sync"

	"github.com/avdecc-go/avdecc/lib/entity"
	"github.com/avdecc-go/avdecc/lib/logger"
)

var l = logger.DefaultLogger.NewFacility("transport", "Raw Ethernet frame transport")

var (
	ErrClosed            = errors.New("transport closed")
	ErrInterfaceNotFound = errors.New("network interface not found")
	ErrInterfaceInvalid  = errors.New("network interface unusable")
)

// A FrameHandler receives one raw Ethernet frame. Each received frame is
// delivered exactly once.
type FrameHandler func(frame []byte)

type Interface interface {
	// Send queues a raw Ethernet frame for transmission. A non-nil error
	// means the transport is dead and the owning engine must terminate.
	Send(frame []byte) error
	// OnFrame installs the receive handler. Must be called once, before
	// frames start flowing.
	OnFrame(fn FrameHandler)
	JoinMulticast(mac entity.MacAddress) error
	LeaveMulticast(mac entity.MacAddress) error
	LocalMac() entity.MacAddress
	InterfaceIndex() uint16
	// Error returns the fatal error that killed the transport, if any.
	Error() error
	Close() error
}

// errorHolder keeps the first fatal transport error. Uses stdlib sync as it
// must be trivially embeddable and can never block.
type errorHolder struct {
	err error
	mut stdsync.Mutex
}

func (e *errorHolder) setError(err error) {
	e.mut.Lock()
	if e.err == nil {
		e.err = err
	}
	e.mut.Unlock()
}

func (e *errorHolder) Error() error {
	e.mut.Lock()
	err := e.err
	e.mut.Unlock()
	return err
}
