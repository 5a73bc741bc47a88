// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

import (
	stdsync "sync"

	"github.com/avdecc-go/avdecc/lib/entity"
	"github.com/avdecc-go/avdecc/lib/protocol"
	"github.com/avdecc-go/avdecc/lib/sync"
)

// An Observer receives engine notifications. Callbacks run on the engine's
// dispatcher goroutine, in the order the triggering frames were processed,
// and never hold the engine state lock; observers may call back into the
// engine freely.
type Observer interface {
	OnTransportError()

	OnLocalEntityOnline(e entity.DiscoveredEntity)
	OnLocalEntityOffline(id entity.ID)
	OnLocalEntityUpdated(e entity.DiscoveredEntity)
	OnRemoteEntityOnline(e entity.DiscoveredEntity)
	OnRemoteEntityOffline(id entity.ID)
	OnRemoteEntityUpdated(e entity.DiscoveredEntity)

	// OnAecpCommand is an AECP command addressed to a registered local
	// entity.
	OnAecpCommand(pdu protocol.AecpPDU)
	// OnAecpUnsolicitedResponse is an AECP response addressed to a
	// registered local entity with no matching in-flight command.
	OnAecpUnsolicitedResponse(pdu protocol.AecpPDU)

	// Sniffed ACMP traffic: frames whose controller is not one of our
	// local entities.
	OnAcmpSniffedCommand(pdu *protocol.Acmpdu)
	OnAcmpSniffedResponse(pdu *protocol.Acmpdu)
}

// BaseObserver is a no-op Observer for embedding.
type BaseObserver struct{}

func (BaseObserver) OnTransportError()                             {}
func (BaseObserver) OnLocalEntityOnline(entity.DiscoveredEntity)   {}
func (BaseObserver) OnLocalEntityOffline(entity.ID)                {}
func (BaseObserver) OnLocalEntityUpdated(entity.DiscoveredEntity)  {}
func (BaseObserver) OnRemoteEntityOnline(entity.DiscoveredEntity)  {}
func (BaseObserver) OnRemoteEntityOffline(entity.ID)               {}
func (BaseObserver) OnRemoteEntityUpdated(entity.DiscoveredEntity) {}
func (BaseObserver) OnAecpCommand(protocol.AecpPDU)                {}
func (BaseObserver) OnAecpUnsolicitedResponse(protocol.AecpPDU)    {}
func (BaseObserver) OnAcmpSniffedCommand(*protocol.Acmpdu)         {}
func (BaseObserver) OnAcmpSniffedResponse(*protocol.Acmpdu)        {}

// A dispatchItem is either an event fanned out to every observer or a
// plain function (command result callbacks, drain barriers).
type dispatchItem struct {
	event func(Observer)
	fn    func()
}

// The dispatcher serializes all observer callbacks and command result
// callbacks on one goroutine, preserving enqueue order. The queue is
// unbounded so that enqueueing under the engine state lock can never
// block.
type dispatcher struct {
	mut       stdsync.Mutex
	cond      *stdsync.Cond
	queue     []dispatchItem
	observers []Observer
	stopped   bool

	// delivering is the observer currently inside a callback, and
	// deliveringGoid the dispatcher goroutine's ID, for the unregister
	// wait and its self-unregistration escape.
	delivering     Observer
	deliveringGoid int
}

func newDispatcher() *dispatcher {
	d := &dispatcher{}
	d.cond = stdsync.NewCond(&d.mut)
	go d.loop()
	return d
}

func (d *dispatcher) loop() {
	goid := sync.GoroutineID()
	for {
		d.mut.Lock()
		for len(d.queue) == 0 && !d.stopped {
			d.cond.Wait()
		}
		if d.stopped && len(d.queue) == 0 {
			d.mut.Unlock()
			return
		}
		item := d.queue[0]
		d.queue = d.queue[1:]

		if item.fn != nil {
			d.mut.Unlock()
			item.fn()
			continue
		}

		// Deliver to each observer still registered at delivery time. The
		// registration check and the delivering marker are updated under
		// the dispatcher lock so Unregister can wait for the in-progress
		// callback.
		var seen []Observer
		for {
			var next Observer
			for _, o := range d.observers {
				if !observerIn(seen, o) {
					next = o
					break
				}
			}
			if next == nil {
				break
			}
			seen = append(seen, next)
			d.delivering = next
			d.deliveringGoid = goid
			d.mut.Unlock()
			item.event(next)
			d.mut.Lock()
			d.delivering = nil
			d.cond.Broadcast()
		}
		d.mut.Unlock()
	}
}

// Observer sets are small; a slice scan is fine.
func observerIn(os []Observer, o Observer) bool {
	for _, e := range os {
		if e == o {
			return true
		}
	}
	return false
}

func (d *dispatcher) enqueueEvent(ev func(Observer)) {
	d.mut.Lock()
	if !d.stopped {
		d.queue = append(d.queue, dispatchItem{event: ev})
		d.cond.Broadcast()
	}
	d.mut.Unlock()
}

func (d *dispatcher) enqueueFunc(fn func()) {
	d.mut.Lock()
	if d.stopped {
		d.mut.Unlock()
		fn()
		return
	}
	d.queue = append(d.queue, dispatchItem{fn: fn})
	d.cond.Broadcast()
	d.mut.Unlock()
}

func (d *dispatcher) register(o Observer) {
	d.mut.Lock()
	d.observers = append(d.observers, o)
	d.mut.Unlock()
}

// unregister removes the observer and blocks until any callback currently
// being delivered to it has returned, unless called from inside that very
// callback.
func (d *dispatcher) unregister(o Observer) {
	d.mut.Lock()
	for i, reg := range d.observers {
		if reg == o {
			d.observers = append(d.observers[:i], d.observers[i+1:]...)
			break
		}
	}
	if d.deliveringGoid != sync.GoroutineID() {
		for d.delivering == o {
			d.cond.Wait()
		}
	}
	d.mut.Unlock()
}

// drain blocks until everything enqueued before the call has been
// delivered.
func (d *dispatcher) drain() {
	done := make(chan struct{})
	d.enqueueFunc(func() { close(done) })
	<-done
}

func (d *dispatcher) stop() {
	d.drain()
	d.mut.Lock()
	d.stopped = true
	d.cond.Broadcast()
	d.mut.Unlock()
}
