// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"encoding/binary"
	"fmt"
)

// AaMode is the access mode of one Address Access TLV.
type AaMode uint8

const (
	AaModeRead    AaMode = 0
	AaModeWrite   AaMode = 1
	AaModeExecute AaMode = 2
)

func (m AaMode) String() string {
	switch m {
	case AaModeRead:
		return "READ"
	case AaModeWrite:
		return "WRITE"
	case AaModeExecute:
		return "EXECUTE"
	default:
		return fmt.Sprintf("AA mode %d", uint8(m))
	}
}

// aaTlvHeaderLength is mode+length plus the 64 bit address.
const aaTlvHeaderLength = 10

// An AaTlv is one memory access unit: a mode, a 64 bit address and, for
// writes and read responses, the data.
type AaTlv struct {
	Mode    AaMode
	Address uint64
	Data    []byte
}

func (t AaTlv) wireLength() int {
	return aaTlvHeaderLength + len(t.Data)
}

// An AaAecpdu is an AECPDU carrying an Address Access TLV stream.
type AaAecpdu struct {
	AecpHeader
	Tlvs []AaTlv
}

func (*AaAecpdu) Subtype() Subtype      { return SubtypeAecp }
func (a *AaAecpdu) Header() *AecpHeader { return &a.AecpHeader }

func (a *AaAecpdu) String() string {
	return fmt.Sprintf("%v %d TLVs seq %d to %v", a.MessageType, len(a.Tlvs), a.SequenceID, a.TargetEntityID)
}

func (a *AaAecpdu) MarshalBinary() ([]byte, error) {
	return Codec{}.EncodeAecpdu(a)
}

func (a *AaAecpdu) marshalBinary(c Codec) ([]byte, error) {
	tlvLen := 0
	for _, t := range a.Tlvs {
		if len(t.Data) > 0x0FFF {
			return nil, fmt.Errorf("%w: TLV data %d bytes", ErrPayloadTooBig, len(t.Data))
		}
		tlvLen += t.wireLength()
	}
	total := ControlHeaderLength + AecpduCommonLength + 2 + tlvLen
	if err := c.checkAecpduLength(total, true); err != nil {
		return nil, err
	}
	bs := make([]byte, total)
	a.AecpHeader.marshalTo(bs, uint16(AecpduCommonLength+2+tlvLen))
	binary.BigEndian.PutUint16(bs[ControlHeaderLength+AecpduCommonLength:], uint16(len(a.Tlvs)))
	off := ControlHeaderLength + AecpduCommonLength + 2
	for _, t := range a.Tlvs {
		binary.BigEndian.PutUint16(bs[off:], uint16(t.Mode&0x0F)<<12|uint16(len(t.Data))&0x0FFF)
		binary.BigEndian.PutUint64(bs[off+2:], t.Address)
		copy(bs[off+aaTlvHeaderLength:], t.Data)
		off += t.wireLength()
	}
	return bs, nil
}

func (a *AaAecpdu) UnmarshalBinary(bs []byte) error {
	hdr, err := decodeControlHeader(bs)
	if err != nil {
		return err
	}
	if hdr.subtype != SubtypeAecp {
		return fmt.Errorf("%w: expected AECP, got %v", ErrUnsupportedSubtype, hdr.subtype)
	}
	return a.unmarshalPayload(hdr, bs[ControlHeaderLength:], Options{})
}

func (a *AaAecpdu) unmarshalPayload(hdr controlHeader, p []byte, _ Options) error {
	if err := a.AecpHeader.unmarshalFrom(hdr, p); err != nil {
		return err
	}
	if int(hdr.cdl) < AecpduCommonLength+2 {
		return fmt.Errorf("%w: AECPDU control_data_length %d below AA minimum", ErrInvalidLength, hdr.cdl)
	}
	count := int(binary.BigEndian.Uint16(p[AecpduCommonLength:]))
	rest := p[AecpduCommonLength+2 : hdr.cdl]
	a.Tlvs = nil
	for i := 0; i < count; i++ {
		if len(rest) < aaTlvHeaderLength {
			return fmt.Errorf("%w: truncated AA TLV %d", ErrFrameTooShort, i)
		}
		ml := binary.BigEndian.Uint16(rest)
		tlv := AaTlv{
			Mode:    AaMode(ml >> 12),
			Address: binary.BigEndian.Uint64(rest[2:]),
		}
		dataLen := int(ml & 0x0FFF)
		if len(rest) < aaTlvHeaderLength+dataLen {
			return fmt.Errorf("%w: AA TLV %d data", ErrFrameTooShort, i)
		}
		if dataLen > 0 {
			tlv.Data = append([]byte(nil), rest[aaTlvHeaderLength:aaTlvHeaderLength+dataLen]...)
		}
		a.Tlvs = append(a.Tlvs, tlv)
		rest = rest[aaTlvHeaderLength+dataLen:]
	}
	return nil
}
