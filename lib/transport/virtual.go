// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/avdecc-go/avdecc/lib/entity"
)

// A VirtualNetwork is a process local Ethernet segment. Endpoints attached
// to the same network see each other's frames; delivery is synchronous in
// the sender's goroutine, so per-sender ordering is preserved. Multicast
// frames are looped back to the sender too, matching what an AF_PACKET
// socket with multicast membership observes, so the engine's own-echo
// filtering runs in tests.
type VirtualNetwork struct {
	endpoints *xsync.MapOf[entity.MacAddress, *VirtualEndpoint]
}

func NewVirtualNetwork() *VirtualNetwork {
	return &VirtualNetwork{
		endpoints: xsync.NewMapOf[entity.MacAddress, *VirtualEndpoint](),
	}
}

// Endpoint attaches a new endpoint with the given MAC to the network.
func (n *VirtualNetwork) Endpoint(mac entity.MacAddress, interfaceIndex uint16) *VirtualEndpoint {
	ep := &VirtualEndpoint{
		network:        n,
		mac:            mac,
		interfaceIndex: interfaceIndex,
	}
	n.endpoints.Store(mac, ep)
	return ep
}

func (n *VirtualNetwork) deliver(from *VirtualEndpoint, frame []byte) {
	var dst entity.MacAddress
	copy(dst[:], frame)
	multicast := dst[0]&1 != 0

	n.endpoints.Range(func(mac entity.MacAddress, ep *VirtualEndpoint) bool {
		if !multicast && (mac != dst || ep == from) {
			return true
		}
		ep.receive(frame)
		return true
	})
}

// A VirtualEndpoint is one attachment to a VirtualNetwork, implementing
// Interface.
type VirtualEndpoint struct {
	network        *VirtualNetwork
	mac            entity.MacAddress
	interfaceIndex uint16
	handler        atomic.Pointer[FrameHandler]
	closed         atomic.Bool
	errorHolder
}

func (e *VirtualEndpoint) Send(frame []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	// Copy so the receiver cannot observe later mutation by the sender.
	cp := make([]byte, len(frame))
	copy(cp, frame)
	e.network.deliver(e, cp)
	return nil
}

func (e *VirtualEndpoint) receive(frame []byte) {
	if e.closed.Load() {
		return
	}
	if h := e.handler.Load(); h != nil {
		(*h)(frame)
	}
}

func (e *VirtualEndpoint) OnFrame(fn FrameHandler) {
	e.handler.Store(&fn)
}

func (e *VirtualEndpoint) JoinMulticast(entity.MacAddress) error {
	// The virtual segment floods multicast to every endpoint.
	return nil
}

func (e *VirtualEndpoint) LeaveMulticast(entity.MacAddress) error {
	return nil
}

func (e *VirtualEndpoint) LocalMac() entity.MacAddress {
	return e.mac
}

func (e *VirtualEndpoint) InterfaceIndex() uint16 {
	return e.interfaceIndex
}

func (e *VirtualEndpoint) Close() error {
	if e.closed.CompareAndSwap(false, true) {
		e.network.endpoints.Delete(e.mac)
	}
	return nil
}
