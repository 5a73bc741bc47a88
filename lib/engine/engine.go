// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package engine implements the controller side 1722.1 protocol engine:
// ADP discovery and advertising, AECP and ACMP command correlation with
// retransmission, and the observer event surface.
package engine

import (
	"context"
	stdsync "sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/avdecc-go/avdecc/lib/entity"
	"github.com/avdecc-go/avdecc/lib/logger"
	"github.com/avdecc-go/avdecc/lib/protocol"
	"github.com/avdecc-go/avdecc/lib/sync"
	"github.com/avdecc-go/avdecc/lib/timeutil"
	"github.com/avdecc-go/avdecc/lib/transport"
)

var l = logger.DefaultLogger.NewFacility("engine", "The 1722.1 protocol engine")

type engineState int

const (
	stateRunning engineState = iota
	stateShuttingDown
	stateTerminated
)

// Options configure an Engine at construction.
type Options struct {
	// Protocol carries the codec conformance deviations.
	Protocol protocol.Options
	// EnableRedundancy advertises Milan redundant stream support on local
	// entities.
	EnableRedundancy bool
}

// An Engine owns one transport and runs the protocol state machines on it.
// All notification callbacks are delivered on a single dispatcher
// goroutine; see Observer.
type Engine struct {
	transport transport.Interface
	codec     protocol.Codec
	opts      Options

	mut      sync.Mutex
	state    engineState
	locals   map[entity.ID]*localState
	remotes  map[entity.ID]*remoteState
	inflight map[commandKey]*inFlightCommand

	disp            *dispatcher
	timerKick       chan struct{}
	discoverLimiter *rate.Limiter
	cancel          context.CancelFunc
	timerDone       chan struct{}
	failOnce        stdsync.Once
	shutdownOnce    stdsync.Once
}

// New creates an engine on the given transport and starts its timer and
// dispatcher. The transport's multicast membership is joined here.
func New(t transport.Interface, opts Options) (*Engine, error) {
	if !t.LocalMac().IsValid() {
		return nil, ErrInterfaceInvalid
	}
	e := &Engine{
		transport:       t,
		codec:           protocol.Codec{Opts: opts.Protocol},
		opts:            opts,
		mut:             sync.NewMutex(),
		locals:          make(map[entity.ID]*localState),
		remotes:         make(map[entity.ID]*remoteState),
		inflight:        make(map[commandKey]*inFlightCommand),
		disp:            newDispatcher(),
		timerKick:       make(chan struct{}, 1),
		discoverLimiter: rate.NewLimiter(rate.Limit(5), 5),
		timerDone:       make(chan struct{}),
	}

	if err := t.JoinMulticast(protocol.AdpMulticastAddress); err != nil {
		return nil, err
	}
	if err := t.JoinMulticast(protocol.IdentifyMulticastAddress); err != nil {
		return nil, err
	}
	t.OnFrame(e.handleFrame)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go e.timerLoop(ctx)

	return e, nil
}

// RegisterObserver subscribes o to engine notifications.
func (e *Engine) RegisterObserver(o Observer) {
	e.disp.register(o)
}

// UnregisterObserver unsubscribes o. On return o is guaranteed to receive
// no further callbacks, unless called from within one of o's own
// callbacks, in which case only the current callback completes.
func (e *Engine) UnregisterObserver(o Observer) {
	e.disp.unregister(o)
}

// RegisterLocalEntity adds a local entity. Advertising starts separately
// via EnableEntityAdvertising.
func (e *Engine) RegisterLocalEntity(ent *entity.LocalEntity) error {
	if !ent.EntityID.IsValid() {
		return ErrInvalidEntityType
	}
	ent.ValidTime = entity.ClampValidTime(ent.ValidTime)
	if e.opts.EnableRedundancy {
		// Milan redundant stream support rides on the vendor unique
		// protocol; advertise it.
		ent.Capabilities |= entity.CapabilityVendorUniqueSupported
	}

	e.mut.Lock()
	if e.state != stateRunning {
		e.mut.Unlock()
		return ErrNotRunning
	}
	if _, ok := e.locals[ent.EntityID]; ok {
		e.mut.Unlock()
		return ErrDuplicateLocalEntityID
	}
	e.locals[ent.EntityID] = &localState{ent: ent}
	snapshot := ent.DiscoveredEntity
	e.disp.enqueueEvent(func(o Observer) { o.OnLocalEntityOnline(snapshot) })
	e.mut.Unlock()

	l.Infof("registered local entity %v", ent.EntityID)
	return nil
}

// UnregisterLocalEntity removes a local entity, sending a departing
// message if it was advertising.
func (e *Engine) UnregisterLocalEntity(id entity.ID) error {
	e.mut.Lock()
	ls, ok := e.locals[id]
	if !ok {
		e.mut.Unlock()
		return ErrUnknownLocalEntity
	}
	var frame []byte
	if ls.advertising {
		frame = e.buildDepartingLocked(ls)
	}
	delete(e.locals, id)
	e.disp.enqueueEvent(func(o Observer) { o.OnLocalEntityOffline(id) })
	e.mut.Unlock()

	if frame != nil {
		return e.send(frame)
	}
	return nil
}

// EnableEntityAdvertising starts periodic ENTITY_AVAILABLE transmission
// for a local entity, with the first advertisement immediate.
func (e *Engine) EnableEntityAdvertising(id entity.ID) error {
	e.mut.Lock()
	if e.state != stateRunning {
		e.mut.Unlock()
		return ErrNotRunning
	}
	ls, ok := e.locals[id]
	if !ok {
		e.mut.Unlock()
		return ErrUnknownLocalEntity
	}
	if ls.advertising {
		e.mut.Unlock()
		return nil
	}
	ls.advertising = true
	frame := e.buildAvailableLocked(ls, time.Now())
	snapshot := ls.ent.DiscoveredEntity
	e.disp.enqueueEvent(func(o Observer) { o.OnLocalEntityUpdated(snapshot) })
	e.mut.Unlock()

	e.kickTimer()
	return e.send(frame)
}

// DisableEntityAdvertising stops the advertiser for a local entity and
// sends one ENTITY_DEPARTING.
func (e *Engine) DisableEntityAdvertising(id entity.ID) error {
	e.mut.Lock()
	ls, ok := e.locals[id]
	if !ok {
		e.mut.Unlock()
		return ErrUnknownLocalEntity
	}
	if !ls.advertising {
		e.mut.Unlock()
		return nil
	}
	ls.advertising = false
	frame := e.buildDepartingLocked(ls)
	snapshot := ls.ent.DiscoveredEntity
	e.disp.enqueueEvent(func(o Observer) { o.OnLocalEntityUpdated(snapshot) })
	e.mut.Unlock()

	return e.send(frame)
}

// SendAdpMessage transmits one raw ADP message.
func (e *Engine) SendAdpMessage(pdu *protocol.Adpdu) error {
	bs, err := pdu.MarshalBinary()
	if err != nil {
		return err
	}
	return e.send(protocol.WriteFrame(protocol.AdpMulticastAddress, e.transport.LocalMac(), bs))
}

// SendAecpCommand stamps the sequence ID, records the in-flight slot and
// transmits the command. The handler is invoked exactly once.
func (e *Engine) SendAecpCommand(pdu protocol.AecpPDU, destMac entity.MacAddress, handler AecpCommandResultHandler) error {
	hdr := pdu.Header()
	if !hdr.MessageType.IsCommand() {
		return ErrMessageNotSupported
	}

	e.mut.Lock()
	if e.state != stateRunning {
		e.mut.Unlock()
		return ErrNotRunning
	}
	ls, ok := e.locals[hdr.ControllerEntityID]
	if !ok {
		e.mut.Unlock()
		return ErrUnknownLocalEntity
	}

	hdr.SequenceID = ls.nextAecpSequenceID()
	key := commandKey{
		kind:       kindAecp,
		controller: hdr.ControllerEntityID,
		target:     hdr.TargetEntityID,
		sequenceID: hdr.SequenceID,
	}
	if _, taken := e.inflight[key]; taken {
		// Sequence wrap onto a slot that is still pending.
		e.mut.Unlock()
		return ErrInternal
	}

	bs, err := e.codec.EncodeAecpdu(pdu)
	if err != nil {
		e.mut.Unlock()
		return err
	}
	frame := protocol.WriteFrame(destMac, e.transport.LocalMac(), bs)

	cmd := &inFlightCommand{
		key:               key,
		frame:             frame,
		timeout:           AecpCommandTimeout,
		deadline:          time.Now().Add(AecpCommandTimeout),
		attemptsRemaining: AecpCommandRetries,
		aecpResponseType:  hdr.MessageType.ResponseType(),
		aecpHandler:       handler,
	}
	switch pdu := pdu.(type) {
	case *protocol.AemAecpdu:
		cmd.aemCommandType = pdu.CommandType
	case *protocol.MvuAecpdu:
		cmd.mvuCommandType = pdu.CommandType
	}
	e.inflight[key] = cmd
	e.mut.Unlock()

	e.kickTimer()
	return e.send(frame)
}

// SendAecpResponse transmits an AECP response for a command previously
// delivered via OnAecpCommand. Sequence and controller IDs must already
// echo the command's.
func (e *Engine) SendAecpResponse(pdu protocol.AecpPDU, destMac entity.MacAddress) error {
	if pdu.Header().MessageType.IsCommand() {
		return ErrMessageNotSupported
	}
	bs, err := e.codec.EncodeAecpdu(pdu)
	if err != nil {
		return err
	}
	return e.send(protocol.WriteFrame(destMac, e.transport.LocalMac(), bs))
}

// SendAcmpCommand stamps the sequence ID, records the in-flight slot and
// multicasts the command. The handler is invoked exactly once.
func (e *Engine) SendAcmpCommand(pdu *protocol.Acmpdu, handler AcmpCommandResultHandler) error {
	if !pdu.MessageType.IsCommand() {
		return ErrMessageNotSupported
	}

	e.mut.Lock()
	if e.state != stateRunning {
		e.mut.Unlock()
		return ErrNotRunning
	}
	ls, ok := e.locals[pdu.ControllerEntityID]
	if !ok {
		e.mut.Unlock()
		return ErrUnknownLocalEntity
	}

	pdu.SequenceID = ls.nextAcmpSequenceID()
	key := commandKey{
		kind:       kindAcmp,
		controller: pdu.ControllerEntityID,
		sequenceID: pdu.SequenceID,
	}
	if _, taken := e.inflight[key]; taken {
		e.mut.Unlock()
		return ErrInternal
	}

	bs, err := pdu.MarshalBinary()
	if err != nil {
		e.mut.Unlock()
		return err
	}
	frame := protocol.WriteFrame(protocol.AdpMulticastAddress, e.transport.LocalMac(), bs)

	timeout := acmpTimeoutFor(pdu.MessageType)
	e.inflight[key] = &inFlightCommand{
		key:               key,
		frame:             frame,
		timeout:           timeout,
		deadline:          time.Now().Add(timeout),
		attemptsRemaining: AcmpCommandRetries,
		acmpResponseType:  pdu.MessageType.ResponseType(),
		acmpHandler:       handler,
	}
	e.mut.Unlock()

	e.kickTimer()
	return e.send(frame)
}

// SendAcmpResponse multicasts an ACMP response.
func (e *Engine) SendAcmpResponse(pdu *protocol.Acmpdu) error {
	if pdu.MessageType.IsCommand() {
		return ErrMessageNotSupported
	}
	bs, err := pdu.MarshalBinary()
	if err != nil {
		return err
	}
	return e.send(protocol.WriteFrame(protocol.AdpMulticastAddress, e.transport.LocalMac(), bs))
}

// send hands a frame to the transport, escalating a dead transport to
// engine failure.
func (e *Engine) send(frame []byte) error {
	if err := e.transport.Send(frame); err != nil {
		e.fail(err)
		return ErrTransport
	}
	return nil
}

// fail terminates the engine on a fatal transport error: all in-flight
// commands complete with ErrTransport and observers get OnTransportError.
func (e *Engine) fail(cause error) {
	e.failOnce.Do(func() {
		l.Warnf("transport failed, terminating engine: %v", cause)
		e.mut.Lock()
		e.state = stateTerminated
		for key, cmd := range e.inflight {
			delete(e.inflight, key)
			cmd.complete(e.disp, nil, nil, ErrTransport)
		}
		e.disp.enqueueEvent(func(o Observer) { o.OnTransportError() })
		e.mut.Unlock()
		e.cancel()
	})
}

// handleFrame is the transport receive entry point.
func (e *Engine) handleFrame(frame []byte) {
	pdu, _, err := e.codec.DecodeFrame(frame)
	if err != nil {
		metricDecodeErrors.Inc()
		l.Debugln("dropping frame:", err)
		return
	}

	now := time.Now()
	var outgoing [][]byte

	e.mut.Lock()
	if e.state != stateRunning {
		e.mut.Unlock()
		return
	}
	switch pdu := pdu.(type) {
	case *protocol.Adpdu:
		outgoing = e.handleAdp(pdu, now)
	case *protocol.Acmpdu:
		e.handleAcmp(pdu)
	default:
		e.handleAecp(pdu.(protocol.AecpPDU))
	}
	e.mut.Unlock()

	for _, f := range outgoing {
		if e.send(f) != nil {
			return
		}
	}
}

// handleAecp routes one inbound AECPDU: response fulfillment first, then
// command and unsolicited dispatch. Called with the state lock held.
func (e *Engine) handleAecp(pdu protocol.AecpPDU) {
	hdr := pdu.Header()

	if hdr.MessageType.IsCommand() {
		if _, ok := e.locals[hdr.TargetEntityID]; ok {
			e.disp.enqueueEvent(func(o Observer) { o.OnAecpCommand(pdu) })
		}
		return
	}

	key := commandKey{
		kind:       kindAecp,
		controller: hdr.ControllerEntityID,
		target:     hdr.TargetEntityID,
		sequenceID: hdr.SequenceID,
	}
	if cmd, ok := e.inflight[key]; ok && cmd.matchesAecp(pdu) {
		delete(e.inflight, key)
		cmd.complete(e.disp, pdu, nil, nil)
		return
	}

	// A response we have no slot for: an unsolicited notification if it is
	// addressed to one of our controllers, a stale duplicate otherwise.
	if _, ok := e.locals[hdr.ControllerEntityID]; ok {
		e.disp.enqueueEvent(func(o Observer) { o.OnAecpUnsolicitedResponse(pdu) })
	}
}

// handleAcmp routes one inbound ACMPDU. Frames whose controller is not one
// of our local entities are sniffed. Called with the state lock held.
func (e *Engine) handleAcmp(pdu *protocol.Acmpdu) {
	_, ours := e.locals[pdu.ControllerEntityID]

	if !ours {
		if pdu.MessageType.IsCommand() {
			e.disp.enqueueEvent(func(o Observer) { o.OnAcmpSniffedCommand(pdu) })
		} else {
			e.disp.enqueueEvent(func(o Observer) { o.OnAcmpSniffedResponse(pdu) })
		}
		return
	}

	if pdu.MessageType.IsCommand() {
		// A command carrying our controller ID is our own multicast echo.
		return
	}

	key := commandKey{
		kind:       kindAcmp,
		controller: pdu.ControllerEntityID,
		sequenceID: pdu.SequenceID,
	}
	if cmd, ok := e.inflight[key]; ok && pdu.MessageType == cmd.acmpResponseType {
		delete(e.inflight, key)
		cmd.complete(e.disp, nil, pdu, nil)
	}
	// Duplicate or stale responses to our own commands are dropped.
}

func (e *Engine) kickTimer() {
	select {
	case e.timerKick <- struct{}{}:
	default:
	}
}

// timerLoop services retransmissions, discovery expiry and advertising.
func (e *Engine) timerLoop(ctx context.Context) {
	defer close(e.timerDone)
	timer := timeutil.NewDeadlineTimer()
	defer timer.Stop()

	for {
		now := time.Now()
		var outgoing [][]byte

		e.mut.Lock()
		if e.state == stateRunning {
			e.expireRemotesLocked(now)
			outgoing = append(outgoing, e.advertiseDueLocked(now)...)
			outgoing = append(outgoing, e.retransmitDueLocked(now)...)
		}
		next := e.nextDeadlineLocked(now)
		e.mut.Unlock()

		for _, f := range outgoing {
			if e.send(f) != nil {
				return
			}
		}

		timer.Reset(next)
		select {
		case <-timer.C():
		case <-e.timerKick:
		case <-ctx.Done():
			return
		}
	}
}

// retransmitDueLocked resends or times out in-flight commands whose
// deadline passed.
func (e *Engine) retransmitDueLocked(now time.Time) [][]byte {
	var frames [][]byte
	for key, cmd := range e.inflight {
		if now.Before(cmd.deadline) {
			continue
		}
		if cmd.attemptsRemaining > 0 {
			cmd.attemptsRemaining--
			cmd.deadline = now.Add(cmd.timeout)
			frames = append(frames, cmd.frame)
			metricRetransmits.Inc()
			l.Debugf("retransmitting %v seq %d, %d attempts left", key.kind, key.sequenceID, cmd.attemptsRemaining)
			continue
		}
		delete(e.inflight, key)
		metricTimeouts.Inc()
		l.Debugf("command %v seq %d timed out", key.kind, key.sequenceID)
		cmd.complete(e.disp, nil, nil, ErrTimeout)
	}
	return frames
}

// nextDeadlineLocked computes the next timer wakeup: the earliest of the
// in-flight deadlines, advertise deadlines and the expiry scan tick.
func (e *Engine) nextDeadlineLocked(now time.Time) time.Time {
	next := now.Add(ExpiryScanInterval)
	for _, cmd := range e.inflight {
		if cmd.deadline.Before(next) {
			next = cmd.deadline
		}
	}
	for _, ls := range e.locals {
		if ls.advertising && ls.nextAdvertise.Before(next) {
			next = ls.nextAdvertise
		}
	}
	return next
}

// Shutdown stops the engine: pending commands complete with ErrAborted,
// advertising local entities send ENTITY_DEPARTING, and the call blocks
// until all dispatcher callbacks have been delivered. Idempotent.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		var frames [][]byte

		e.mut.Lock()
		if e.state == stateRunning {
			e.state = stateShuttingDown
			for key, cmd := range e.inflight {
				delete(e.inflight, key)
				cmd.complete(e.disp, nil, nil, ErrAborted)
			}
			for _, ls := range e.locals {
				if ls.advertising {
					ls.advertising = false
					frames = append(frames, e.buildDepartingLocked(ls))
				}
			}
			e.state = stateTerminated
		}
		e.mut.Unlock()

		e.cancel()
		<-e.timerDone
		for _, f := range frames {
			e.transport.Send(f)
		}
		e.disp.stop()
		l.Infoln("engine terminated")
	})
}
