// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MilanProtocolID is the vendor unique protocol identifier of the Milan
// specification.
var MilanProtocolID = [6]byte{0x00, 0x1B, 0xC5, 0x0A, 0xC1, 0x00}

// MvuCommandType is a Milan vendor unique command type.
type MvuCommandType uint16

const (
	MvuGetMilanInfo               MvuCommandType = 0x0000
	MvuSetSystemUniqueID          MvuCommandType = 0x0001
	MvuGetSystemUniqueID          MvuCommandType = 0x0002
	MvuSetMediaClockReferenceInfo MvuCommandType = 0x0003
	MvuGetMediaClockReferenceInfo MvuCommandType = 0x0004
)

func (t MvuCommandType) String() string {
	switch t {
	case MvuGetMilanInfo:
		return "GET_MILAN_INFO"
	case MvuSetSystemUniqueID:
		return "SET_SYSTEM_UNIQUE_ID"
	case MvuGetSystemUniqueID:
		return "GET_SYSTEM_UNIQUE_ID"
	case MvuSetMediaClockReferenceInfo:
		return "SET_MEDIA_CLOCK_REFERENCE_INFO"
	case MvuGetMediaClockReferenceInfo:
		return "GET_MEDIA_CLOCK_REFERENCE_INFO"
	default:
		return fmt.Sprintf("MVU command 0x%04X", uint16(t))
	}
}

// Milan GET_MILAN_INFO feature flags.
const (
	MilanFeatureRedundancy uint32 = 1 << 1
)

// mvuHeaderLength is the protocol_id plus the reserved bit and command
// type.
const mvuHeaderLength = 8

// An MvuAecpdu is a vendor unique AECPDU carrying a Milan MVU command or
// response. Vendor unique PDUs with a different protocol_id fail to decode.
type MvuAecpdu struct {
	AecpHeader
	CommandType MvuCommandType
	Payload     []byte
}

func (*MvuAecpdu) Subtype() Subtype      { return SubtypeAecp }
func (a *MvuAecpdu) Header() *AecpHeader { return &a.AecpHeader }

func (a *MvuAecpdu) String() string {
	return fmt.Sprintf("%v %v seq %d to %v", a.MessageType, a.CommandType, a.SequenceID, a.TargetEntityID)
}

func (a *MvuAecpdu) MarshalBinary() ([]byte, error) {
	return Codec{}.EncodeAecpdu(a)
}

func (a *MvuAecpdu) marshalBinary(c Codec) ([]byte, error) {
	total := ControlHeaderLength + AecpduCommonLength + mvuHeaderLength + len(a.Payload)
	if err := c.checkAecpduLength(total, true); err != nil {
		return nil, err
	}
	bs := make([]byte, total)
	a.AecpHeader.marshalTo(bs, uint16(AecpduCommonLength+mvuHeaderLength+len(a.Payload)))
	off := ControlHeaderLength + AecpduCommonLength
	copy(bs[off:], MilanProtocolID[:])
	binary.BigEndian.PutUint16(bs[off+6:], uint16(a.CommandType)&0x7FFF)
	copy(bs[off+mvuHeaderLength:], a.Payload)
	return bs, nil
}

func (a *MvuAecpdu) UnmarshalBinary(bs []byte) error {
	hdr, err := decodeControlHeader(bs)
	if err != nil {
		return err
	}
	if hdr.subtype != SubtypeAecp {
		return fmt.Errorf("%w: expected AECP, got %v", ErrUnsupportedSubtype, hdr.subtype)
	}
	return a.unmarshalPayload(hdr, bs[ControlHeaderLength:], Options{})
}

func (a *MvuAecpdu) unmarshalPayload(hdr controlHeader, p []byte, _ Options) error {
	if err := a.AecpHeader.unmarshalFrom(hdr, p); err != nil {
		return err
	}
	if int(hdr.cdl) < AecpduCommonLength+mvuHeaderLength {
		return fmt.Errorf("%w: AECPDU control_data_length %d below MVU minimum", ErrInvalidLength, hdr.cdl)
	}
	if !bytes.Equal(p[AecpduCommonLength:AecpduCommonLength+6], MilanProtocolID[:]) {
		return fmt.Errorf("%w: %X", ErrUnsupportedProtocol, p[AecpduCommonLength:AecpduCommonLength+6])
	}
	a.CommandType = MvuCommandType(binary.BigEndian.Uint16(p[AecpduCommonLength+6:]) & 0x7FFF)
	a.Payload = append([]byte(nil), p[AecpduCommonLength+mvuHeaderLength:hdr.cdl]...)
	if len(a.Payload) == 0 {
		a.Payload = nil
	}
	return nil
}
