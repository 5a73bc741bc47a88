// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transport

import (
	"sync"
	"testing"

	"github.com/avdecc-go/avdecc/lib/entity"
)

var (
	macA = entity.MacAddress{0x02, 0, 0, 0, 0, 0x0A}
	macB = entity.MacAddress{0x02, 0, 0, 0, 0, 0x0B}
	macC = entity.MacAddress{0x02, 0, 0, 0, 0, 0x0C}

	multicast = entity.MacAddress{0x91, 0xE0, 0xF0, 0x01, 0x00, 0x00}
)

func frameTo(dst entity.MacAddress, payload byte) []byte {
	f := make([]byte, 15)
	copy(f, dst[:])
	f[14] = payload
	return f
}

type recorder struct {
	mut    sync.Mutex
	frames [][]byte
}

func (r *recorder) handler(frame []byte) {
	r.mut.Lock()
	r.frames = append(r.frames, frame)
	r.mut.Unlock()
}

func (r *recorder) count() int {
	r.mut.Lock()
	defer r.mut.Unlock()
	return len(r.frames)
}

func TestVirtualUnicast(t *testing.T) {
	net := NewVirtualNetwork()
	a := net.Endpoint(macA, 1)
	b := net.Endpoint(macB, 2)
	c := net.Endpoint(macC, 3)

	var rb, rc recorder
	b.OnFrame(rb.handler)
	c.OnFrame(rc.handler)

	if err := a.Send(frameTo(macB, 1)); err != nil {
		t.Fatal(err)
	}
	if rb.count() != 1 || rc.count() != 0 {
		t.Errorf("unicast delivered to b=%d c=%d", rb.count(), rc.count())
	}
}

func TestVirtualMulticast(t *testing.T) {
	net := NewVirtualNetwork()
	a := net.Endpoint(macA, 1)
	b := net.Endpoint(macB, 2)
	c := net.Endpoint(macC, 3)

	var ra, rb, rc recorder
	a.OnFrame(ra.handler)
	b.OnFrame(rb.handler)
	c.OnFrame(rc.handler)

	if err := a.Send(frameTo(multicast, 2)); err != nil {
		t.Fatal(err)
	}
	// A packet socket with multicast membership sees its own
	// transmissions; the virtual segment reproduces that.
	if ra.count() != 1 {
		t.Errorf("sender saw its own multicast %d times, expected 1", ra.count())
	}
	if rb.count() != 1 || rc.count() != 1 {
		t.Errorf("multicast delivered to b=%d c=%d", rb.count(), rc.count())
	}
}

func TestVirtualClose(t *testing.T) {
	net := NewVirtualNetwork()
	a := net.Endpoint(macA, 1)
	b := net.Endpoint(macB, 2)

	var rb recorder
	b.OnFrame(rb.handler)
	b.Close()

	if err := a.Send(frameTo(macB, 3)); err != nil {
		t.Fatal(err)
	}
	if rb.count() != 0 {
		t.Error("closed endpoint received a frame")
	}
	if err := b.Send(frameTo(macA, 4)); err != ErrClosed {
		t.Errorf("send on closed endpoint: %v", err)
	}
}

func TestVirtualSenderIsolation(t *testing.T) {
	net := NewVirtualNetwork()
	a := net.Endpoint(macA, 1)
	b := net.Endpoint(macB, 2)

	var rb recorder
	b.OnFrame(rb.handler)

	f := frameTo(macB, 5)
	if err := a.Send(f); err != nil {
		t.Fatal(err)
	}
	f[14] = 99 // mutating the sender's buffer must not affect the receiver
	rb.mut.Lock()
	got := rb.frames[0][14]
	rb.mut.Unlock()
	if got != 5 {
		t.Errorf("receiver observed sender mutation: %d", got)
	}
}
