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

var (
	// ExpiryScanInterval bounds how long a departed remote entity can
	// outlive its valid time.
	ExpiryScanInterval = time.Second
	// AdpValidTimeUnit scales the decoded ADP valid time. One second per
	// the standard; tests compress it.
	AdpValidTimeUnit = time.Second
)

// localState is a registered local entity plus its advertising schedule
// and per sub-protocol sequence counters.
type localState struct {
	ent           *entity.LocalEntity
	advertising   bool
	nextAdvertise time.Time
	aecpSequence  uint16
	acmpSequence  uint16
}

func (s *localState) nextAecpSequenceID() uint16 {
	id := s.aecpSequence
	s.aecpSequence++
	return id
}

func (s *localState) nextAcmpSequenceID() uint16 {
	id := s.acmpSequence
	s.acmpSequence++
	return id
}

// remoteState is a discovered remote entity plus its expiry deadline.
type remoteState struct {
	ent     entity.DiscoveredEntity
	expires time.Time
}

// handleAdp processes one inbound discovery message. Called with the state
// lock held; returns frames to transmit after the lock is released.
func (e *Engine) handleAdp(pdu *protocol.Adpdu, now time.Time) [][]byte {
	switch pdu.MessageType {
	case protocol.AdpEntityAvailable:
		e.handleEntityAvailable(pdu, now)
	case protocol.AdpEntityDeparting:
		e.handleEntityDeparting(pdu)
	case protocol.AdpEntityDiscover:
		return e.handleEntityDiscover(pdu, now)
	}
	return nil
}

func (e *Engine) handleEntityAvailable(pdu *protocol.Adpdu, now time.Time) {
	if !pdu.EntityID.IsValid() {
		return
	}
	if _, ours := e.locals[pdu.EntityID]; ours {
		// Our own advertisement echoed back.
		return
	}

	seen := pdu.Entity()
	expiry := now.Add(2 * time.Duration(seen.ValidTime) * AdpValidTimeUnit)

	rs, ok := e.remotes[pdu.EntityID]
	if !ok {
		e.remotes[pdu.EntityID] = &remoteState{ent: seen, expires: expiry}
		metricRemoteEntities.Set(float64(len(e.remotes)))
		l.Debugln("remote entity online:", pdu.EntityID)
		ent := seen
		e.disp.enqueueEvent(func(o Observer) { o.OnRemoteEntityOnline(ent) })
		e.kickTimer()
		return
	}

	// An available index going backwards means the entity restarted.
	restarted := seen.AvailableIndex < rs.ent.AvailableIndex
	changed := !rs.ent.SameDiscoveryInfo(&seen) || restarted
	rs.ent = seen
	rs.expires = expiry
	if changed {
		l.Debugln("remote entity updated:", pdu.EntityID)
		ent := seen
		e.disp.enqueueEvent(func(o Observer) { o.OnRemoteEntityUpdated(ent) })
	}
}

func (e *Engine) handleEntityDeparting(pdu *protocol.Adpdu) {
	if _, ok := e.remotes[pdu.EntityID]; !ok {
		return
	}
	delete(e.remotes, pdu.EntityID)
	metricRemoteEntities.Set(float64(len(e.remotes)))
	l.Debugln("remote entity departing:", pdu.EntityID)
	id := pdu.EntityID
	e.disp.enqueueEvent(func(o Observer) { o.OnRemoteEntityOffline(id) })
}

// handleEntityDiscover answers a global or targeted ENTITY_DISCOVER with an
// immediate out-of-schedule advertisement for each matching advertising
// local entity.
func (e *Engine) handleEntityDiscover(pdu *protocol.Adpdu, now time.Time) [][]byte {
	var frames [][]byte
	for id, ls := range e.locals {
		if !ls.advertising {
			continue
		}
		if pdu.EntityID.IsValid() && pdu.EntityID != id {
			continue
		}
		frames = append(frames, e.buildAvailableLocked(ls, now))
	}
	return frames
}

// buildAvailableLocked builds one ENTITY_AVAILABLE frame for a local
// entity, bumping its available index and rescheduling the advertiser.
func (e *Engine) buildAvailableLocked(ls *localState, now time.Time) []byte {
	ls.ent.MacAddress = e.transport.LocalMac()
	ls.ent.InterfaceIndex = e.transport.InterfaceIndex()
	adp := protocol.NewAdpdu(protocol.AdpEntityAvailable, &ls.ent.DiscoveredEntity)
	ls.ent.AvailableIndex++
	ls.nextAdvertise = now.Add(time.Duration(ls.ent.ValidTime) * AdpValidTimeUnit / 2)
	bs, _ := adp.MarshalBinary()
	return protocol.WriteFrame(protocol.AdpMulticastAddress, e.transport.LocalMac(), bs)
}

// buildDepartingLocked builds one ENTITY_DEPARTING frame.
func (e *Engine) buildDepartingLocked(ls *localState) []byte {
	adp := protocol.NewAdpdu(protocol.AdpEntityDeparting, &ls.ent.DiscoveredEntity)
	adp.AvailableIndex = 0
	bs, _ := adp.MarshalBinary()
	return protocol.WriteFrame(protocol.AdpMulticastAddress, e.transport.LocalMac(), bs)
}

// expireRemotesLocked removes remote entities whose valid time ran out.
func (e *Engine) expireRemotesLocked(now time.Time) {
	for id, rs := range e.remotes {
		if now.Before(rs.expires) {
			continue
		}
		delete(e.remotes, id)
		metricRemoteEntities.Set(float64(len(e.remotes)))
		l.Debugln("remote entity expired:", id)
		id := id
		e.disp.enqueueEvent(func(o Observer) { o.OnRemoteEntityOffline(id) })
	}
}

// advertiseDueLocked builds frames for local entities whose advertise
// deadline passed.
func (e *Engine) advertiseDueLocked(now time.Time) [][]byte {
	var frames [][]byte
	for _, ls := range e.locals {
		if ls.advertising && !now.Before(ls.nextAdvertise) {
			frames = append(frames, e.buildAvailableLocked(ls, now))
		}
	}
	return frames
}

// DiscoverRemoteEntities broadcasts a global ENTITY_DISCOVER. Calls beyond
// the discovery rate limit are coalesced into the already pending one.
func (e *Engine) DiscoverRemoteEntities() error {
	return e.DiscoverRemoteEntity(entity.UninitializedID)
}

// DiscoverRemoteEntity sends an ENTITY_DISCOVER targeting one entity ID,
// or all entities for the zero ID.
func (e *Engine) DiscoverRemoteEntity(id entity.ID) error {
	e.mut.Lock()
	if e.state != stateRunning {
		e.mut.Unlock()
		return ErrNotRunning
	}
	e.mut.Unlock()

	if !e.discoverLimiter.Allow() {
		l.Debugln("discovery rate limited")
		return nil
	}

	adp := &protocol.Adpdu{MessageType: protocol.AdpEntityDiscover, EntityID: id}
	bs, err := adp.MarshalBinary()
	if err != nil {
		return err
	}
	return e.send(protocol.WriteFrame(protocol.AdpMulticastAddress, e.transport.LocalMac(), bs))
}

// RemoteEntities returns a snapshot of the currently online remote
// entities.
func (e *Engine) RemoteEntities() []entity.DiscoveredEntity {
	e.mut.Lock()
	defer e.mut.Unlock()
	res := make([]entity.DiscoveredEntity, 0, len(e.remotes))
	for _, rs := range e.remotes {
		res = append(res, rs.ent)
	}
	return res
}
