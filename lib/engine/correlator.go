// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

import (
	"time"

	"github.com/avdecc-go/avdecc/lib/entity"
	"github.com/avdecc-go/avdecc/lib/protocol"
)

// Retransmission budget. Vars rather than consts so tests can compress
// time; should not be modified in production code.
var (
	// AecpCommandTimeout is the per attempt AECP response timeout.
	AecpCommandTimeout = 250 * time.Millisecond
	// AecpCommandRetries is the number of retransmissions after the
	// initial send.
	AecpCommandRetries = 2
	// AcmpCommandTimeout is the per attempt ACMP response timeout for
	// message types not in AcmpMessageTypeTimeouts.
	AcmpCommandTimeout = 250 * time.Millisecond
	// AcmpCommandRetries is the number of retransmissions after the
	// initial send.
	AcmpCommandRetries = 2
)

// AcmpMessageTypeTimeouts carries the per message type command timeouts of
// IEEE 1722.1-2013 table 8.4.
var AcmpMessageTypeTimeouts = map[protocol.AcmpMessageType]time.Duration{
	protocol.AcmpConnectTxCommand:       2000 * time.Millisecond,
	protocol.AcmpDisconnectTxCommand:    200 * time.Millisecond,
	protocol.AcmpGetTxStateCommand:      200 * time.Millisecond,
	protocol.AcmpConnectRxCommand:       4500 * time.Millisecond,
	protocol.AcmpDisconnectRxCommand:    500 * time.Millisecond,
	protocol.AcmpGetRxStateCommand:      200 * time.Millisecond,
	protocol.AcmpGetTxConnectionCommand: 200 * time.Millisecond,
}

func acmpTimeoutFor(t protocol.AcmpMessageType) time.Duration {
	if d, ok := AcmpMessageTypeTimeouts[t]; ok {
		return d
	}
	return AcmpCommandTimeout
}

// AecpCommandResultHandler receives the result of a sent AECP command:
// either the matching response with a nil error, or a nil response with
// ErrTimeout, ErrAborted or ErrTransport. Invoked exactly once, on the
// dispatcher goroutine.
type AecpCommandResultHandler func(response protocol.AecpPDU, result error)

// AcmpCommandResultHandler is the ACMP counterpart.
type AcmpCommandResultHandler func(response *protocol.Acmpdu, result error)

type commandKind uint8

const (
	kindAecp commandKind = iota
	kindAcmp
)

// A commandKey identifies one in-flight command. For ACMP, whose frames
// are multicast, the target is zero and correlation is by controller and
// sequence ID alone.
type commandKey struct {
	kind       commandKind
	controller entity.ID
	target     entity.ID
	sequenceID uint16
}

// An inFlightCommand is one slot in the correlator table, created at send
// time and freed on response, exhaustion or shutdown.
type inFlightCommand struct {
	key               commandKey
	frame             []byte // original bytes, resent verbatim
	timeout           time.Duration
	deadline          time.Time
	attemptsRemaining int

	// Expected response shape.
	aecpResponseType protocol.AecpMessageType
	aemCommandType   protocol.AemCommandType // for AEM only
	mvuCommandType   protocol.MvuCommandType // for MVU only
	acmpResponseType protocol.AcmpMessageType

	aecpHandler AecpCommandResultHandler
	acmpHandler AcmpCommandResultHandler
}

// matchesAecp reports whether a received AECP response fulfills this slot.
// The sequence ID already matched via the key; this checks the message
// type and, for AEM and MVU, the echoed command type.
func (c *inFlightCommand) matchesAecp(pdu protocol.AecpPDU) bool {
	if pdu.Header().MessageType != c.aecpResponseType {
		return false
	}
	switch pdu := pdu.(type) {
	case *protocol.AemAecpdu:
		return pdu.CommandType == c.aemCommandType
	case *protocol.MvuAecpdu:
		return pdu.CommandType == c.mvuCommandType
	default:
		return true
	}
}

// complete hands the result to the dispatcher queue. Must be called with
// the slot already removed from the table.
func (c *inFlightCommand) complete(d *dispatcher, aecp protocol.AecpPDU, acmp *protocol.Acmpdu, result error) {
	switch {
	case c.aecpHandler != nil:
		h := c.aecpHandler
		d.enqueueFunc(func() { h(aecp, result) })
	case c.acmpHandler != nil:
		h := c.acmpHandler
		d.enqueueFunc(func() { h(acmp, result) })
	}
}
