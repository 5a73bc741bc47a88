// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

import (
	"errors"

	"github.com/avdecc-go/avdecc/lib/protocol"
)

// The engine error kinds. A command result handler receives one of these,
// or nil on success; the status mapping helpers below translate them into
// the per sub-protocol status lattices.
var (
	// ErrTransport means the transport is dead and the engine instance is
	// no longer usable.
	ErrTransport = errors.New("transport error")
	// ErrTimeout means the command was retransmitted until its attempts
	// were exhausted without a response.
	ErrTimeout = errors.New("command timed out")
	// ErrAborted means the engine shut down while the command was pending.
	ErrAborted = errors.New("command aborted")

	ErrUnknownRemoteEntity    = errors.New("unknown remote entity")
	ErrUnknownLocalEntity     = errors.New("unknown local entity")
	ErrInvalidEntityType      = errors.New("invalid entity type for this operation")
	ErrDuplicateLocalEntityID = errors.New("entity ID already registered")
	ErrInterfaceNotFound      = errors.New("network interface not found")
	ErrInterfaceInvalid       = errors.New("network interface invalid")
	ErrInterfaceNotSupported  = errors.New("protocol interface not supported")
	ErrMessageNotSupported    = errors.New("message type not supported")
	ErrNotRunning             = errors.New("engine is shut down")
	ErrInternal               = errors.New("internal error")
)

// AemCommandStatusFor translates a command result into the AEM status
// lattice. With a nil error the wire status of the response is returned.
func AemCommandStatusFor(response *protocol.AemAecpdu, err error) protocol.AemCommandStatus {
	switch {
	case err == nil:
		return protocol.AemCommandStatus(response.Status)
	case errors.Is(err, ErrTimeout):
		return protocol.AemStatusTimedOut
	case errors.Is(err, ErrTransport):
		return protocol.AemStatusNetworkError
	case errors.Is(err, ErrUnknownRemoteEntity):
		return protocol.AemStatusUnknownEntity
	case errors.Is(err, protocol.ErrInvalidLength):
		return protocol.AemStatusProtocolError
	default:
		return protocol.AemStatusInternalError
	}
}

// AaCommandStatusFor translates a command result into the Address Access
// status lattice.
func AaCommandStatusFor(response *protocol.AaAecpdu, err error) protocol.AaCommandStatus {
	switch {
	case err == nil:
		return protocol.AaCommandStatus(response.Status)
	case errors.Is(err, ErrAborted):
		return protocol.AaStatusAborted
	case errors.Is(err, ErrTimeout):
		return protocol.AaStatusTimedOut
	case errors.Is(err, ErrTransport):
		return protocol.AaStatusNetworkError
	case errors.Is(err, ErrUnknownRemoteEntity):
		return protocol.AaStatusUnknownEntity
	case errors.Is(err, protocol.ErrInvalidLength):
		return protocol.AaStatusProtocolError
	default:
		return protocol.AaStatusInternalError
	}
}

// MvuCommandStatusFor translates a command result into the Milan vendor
// unique status lattice.
func MvuCommandStatusFor(response *protocol.MvuAecpdu, err error) protocol.MvuCommandStatus {
	switch {
	case err == nil:
		return protocol.MvuCommandStatus(response.Status)
	case errors.Is(err, ErrTimeout):
		return protocol.MvuStatusTimedOut
	case errors.Is(err, ErrTransport):
		return protocol.MvuStatusNetworkError
	case errors.Is(err, ErrUnknownRemoteEntity):
		return protocol.MvuStatusUnknownEntity
	case errors.Is(err, protocol.ErrInvalidLength):
		return protocol.MvuStatusProtocolError
	default:
		return protocol.MvuStatusInternalError
	}
}

// AcmpStatusFor translates a command result into the ACMP control status
// lattice.
func AcmpStatusFor(response *protocol.Acmpdu, err error) protocol.AcmpStatus {
	switch {
	case err == nil:
		return response.Status
	case errors.Is(err, ErrTimeout):
		return protocol.AcmpStatusTimedOut
	case errors.Is(err, ErrTransport):
		return protocol.AcmpStatusNetworkError
	case errors.Is(err, ErrUnknownRemoteEntity):
		return protocol.AcmpStatusUnknownEntity
	case errors.Is(err, protocol.ErrInvalidLength):
		return protocol.AcmpStatusProtocolError
	default:
		return protocol.AcmpStatusInternalError
	}
}
