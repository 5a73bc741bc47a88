// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build linux

package transport

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/thejerf/suture/v4"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/avdecc-go/avdecc/lib/entity"
)

// avtpEtherType matches protocol.EtherType; repeated here to keep the
// transport free of codec imports.
const avtpEtherType = 0x22F0

// An EthernetTransport is an AF_PACKET socket bound to one interface,
// filtered to the AVTP EtherType. Its reader runs as a suture service.
type EthernetTransport struct {
	fd         int
	ifIndex    int
	mac        entity.MacAddress
	handler    atomic.Pointer[FrameHandler]
	supervisor *suture.Supervisor
	cancel     context.CancelFunc
	errorHolder
}

// NewEthernetTransport opens a packet socket on the named interface and
// starts receiving.
func NewEthernetTransport(interfaceName string) (*EthernetTransport, error) {
	intf, err := net.InterfaceByName(interfaceName)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInterfaceNotFound, interfaceName)
	}
	if len(intf.HardwareAddr) != 6 || intf.Flags&net.FlagUp == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInterfaceInvalid, interfaceName)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(avtpEtherType)))
	if err != nil {
		return nil, fmt.Errorf("opening packet socket: %w", err)
	}

	if err := attachEtherTypeFilter(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}

	addr := &unix.SockaddrLinklayer{
		Protocol: htons(avtpEtherType),
		Ifindex:  intf.Index,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("binding packet socket to %q: %w", interfaceName, err)
	}

	t := &EthernetTransport{
		fd:      fd,
		ifIndex: intf.Index,
		mac:     entity.MacAddressFromBytes(intf.HardwareAddr),
	}

	t.supervisor = suture.NewSimple("transport.ethernet/" + interfaceName)
	t.supervisor.Add(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.supervisor.ServeBackground(ctx)

	l.Infof("Ethernet transport up on %s (%v, index %d)", interfaceName, t.mac, intf.Index)
	return t, nil
}

// attachEtherTypeFilter installs a classic BPF program accepting only the
// AVTP EtherType.
func attachEtherTypeFilter(fd int) error {
	prog, err := bpf.Assemble([]bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: avtpEtherType, SkipFalse: 1},
		bpf.RetConstant{Val: 0xFFFF},
		bpf.RetConstant{Val: 0},
	})
	if err != nil {
		return fmt.Errorf("assembling filter: %w", err)
	}
	filter := make([]unix.SockFilter, len(prog))
	for i, ins := range prog {
		filter[i] = unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	fprog := unix.SockFprog{
		Len:    uint16(len(filter)),
		Filter: &filter[0],
	}
	if err := unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &fprog); err != nil {
		return fmt.Errorf("attaching filter: %w", err)
	}
	return nil
}

// Serve implements suture.Service; it is the receive loop.
func (t *EthernetTransport) Serve(ctx context.Context) error {
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, _, err := unix.Recvfrom(t.fd, buf, 0)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.setError(fmt.Errorf("packet socket read: %w", err))
			return suture.ErrDoNotRestart
		}
		if n < 14 {
			continue
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		if h := t.handler.Load(); h != nil {
			(*h)(frame)
		}
	}
}

func (t *EthernetTransport) Send(frame []byte) error {
	if err := t.Error(); err != nil {
		return err
	}
	var dst [8]byte
	copy(dst[:], frame[:6])
	addr := &unix.SockaddrLinklayer{
		Protocol: htons(avtpEtherType),
		Ifindex:  t.ifIndex,
		Halen:    6,
		Addr:     dst,
	}
	if err := unix.Sendto(t.fd, frame, 0, addr); err != nil {
		err = fmt.Errorf("packet socket write: %w", err)
		t.setError(err)
		return err
	}
	return nil
}

func (t *EthernetTransport) OnFrame(fn FrameHandler) {
	t.handler.Store(&fn)
}

func (t *EthernetTransport) JoinMulticast(mac entity.MacAddress) error {
	return t.multicastOp(unix.PACKET_ADD_MEMBERSHIP, mac)
}

func (t *EthernetTransport) LeaveMulticast(mac entity.MacAddress) error {
	return t.multicastOp(unix.PACKET_DROP_MEMBERSHIP, mac)
}

func (t *EthernetTransport) multicastOp(op int, mac entity.MacAddress) error {
	mreq := unix.PacketMreq{
		Ifindex: int32(t.ifIndex),
		Type:    unix.PACKET_MR_MULTICAST,
		Alen:    6,
	}
	copy(mreq.Address[:], mac[:])
	if err := unix.SetsockoptPacketMreq(t.fd, unix.SOL_PACKET, op, &mreq); err != nil {
		return fmt.Errorf("multicast membership %v: %w", mac, err)
	}
	return nil
}

func (t *EthernetTransport) LocalMac() entity.MacAddress {
	return t.mac
}

func (t *EthernetTransport) InterfaceIndex() uint16 {
	return uint16(t.ifIndex)
}

func (t *EthernetTransport) Close() error {
	t.cancel()
	return unix.Close(t.fd)
}

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}
