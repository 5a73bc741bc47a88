// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package protocol implements the IEEE 1722.1 protocol data units: ADPDU,
// AECPDU (AEM, Address Access and Milan vendor unique payloads) and ACMPDU,
// together with their Ethernet framing.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/avdecc-go/avdecc/lib/entity"
	"github.com/avdecc-go/avdecc/lib/logger"
)

var l = logger.DefaultLogger.NewFacility("protocol", "The 1722.1 PDU codec")

// EtherType is the AVTP EtherType.
const EtherType = 0x22F0

// Multicast destination addresses defined by 1722.1.
var (
	AdpMulticastAddress      = entity.MacAddress{0x91, 0xE0, 0xF0, 0x01, 0x00, 0x00}
	IdentifyMulticastAddress = entity.MacAddress{0x91, 0xE0, 0xF0, 0x01, 0x00, 0x01}
)

// Subtype selects the 1722.1 sub-protocol in the AVTP control header.
type Subtype uint8

const (
	SubtypeAdp  Subtype = 0x7A
	SubtypeAecp Subtype = 0x7B
	SubtypeAcmp Subtype = 0x7C
)

func (s Subtype) String() string {
	switch s {
	case SubtypeAdp:
		return "ADP"
	case SubtypeAecp:
		return "AECP"
	case SubtypeAcmp:
		return "ACMP"
	default:
		return fmt.Sprintf("subtype 0x%02X", uint8(s))
	}
}

const (
	// EthernetHeaderLength is destination MAC, source MAC and EtherType.
	EthernetHeaderLength = 14
	// ControlHeaderLength is the AVTP common control header including the
	// stream_id / entity_id field.
	ControlHeaderLength = 12
)

var (
	ErrFrameTooShort       = errors.New("frame too short")
	ErrNotAvtp             = errors.New("not an AVTP frame")
	ErrNotControlFrame     = errors.New("cd bit not set")
	ErrUnsupportedSubtype  = errors.New("unsupported AVTP subtype")
	ErrInvalidVersion      = errors.New("invalid AVTP version")
	ErrInvalidLength       = errors.New("invalid control data length")
	ErrPayloadTooBig       = errors.New("payload exceeds maximum AECPDU length")
	ErrUnsupportedProtocol = errors.New("unsupported vendor unique protocol")
	ErrUnknownMessageType  = errors.New("unknown message type")
)

// A PDU is one of the concrete 1722.1 protocol data units: *Adpdu,
// *AemAecpdu, *AaAecpdu, *MvuAecpdu or *Acmpdu. Dispatch is by type switch
// on the concrete variant.
type PDU interface {
	Subtype() Subtype
	MarshalBinary() ([]byte, error)
}

// Options are the receive and send path deviations from strict 1722.1
// conformance. The zero value is fully strict.
type Options struct {
	// IgnoreInvalidControlDataLength accepts inbound PDUs whose
	// control_data_length disagrees with the payload size table, as long as
	// enough bytes are present.
	IgnoreInvalidControlDataLength bool
	// AllowRecvBigAecpPayloads accepts inbound AECPDUs beyond the 524 byte
	// limit of IEEE 1722.1 clause 9.2.1.1.7.
	AllowRecvBigAecpPayloads bool
	// AllowSendBigAecpPayloads emits outbound AECPDUs beyond the 524 byte
	// limit.
	AllowSendBigAecpPayloads bool
	// IgnoreInvalidNonSuccessAemResponses accepts AEM responses whose
	// payload fails the size table when the carried status is not SUCCESS.
	// Some entities truncate payloads on failure responses.
	IgnoreInvalidNonSuccessAemResponses bool
}

// A Codec encodes and decodes PDUs under a given set of Options.
type Codec struct {
	Opts Options
}

// controlHeader is the AVTP common control header: cd, subtype, sv, version,
// control_data (message type), status, control_data_length and the eight
// byte stream_id field carrying the entity or stream identifier.
type controlHeader struct {
	subtype     Subtype
	sv          bool
	version     uint8
	messageType uint8  // 4 bits
	status      uint8  // 5 bits; valid_time for ADP
	cdl         uint16 // 11 bits; octets following the stream_id field
	streamID    uint64
}

func (h controlHeader) encode(bs []byte) {
	bs[0] = 0x80 | uint8(h.subtype)
	b1 := h.version<<4 | h.messageType&0x0F
	if h.sv {
		b1 |= 0x80
	}
	bs[1] = b1
	binary.BigEndian.PutUint16(bs[2:], uint16(h.status&0x1F)<<11|h.cdl&0x07FF)
	binary.BigEndian.PutUint64(bs[4:], h.streamID)
}

func decodeControlHeader(bs []byte) (controlHeader, error) {
	if len(bs) < ControlHeaderLength {
		return controlHeader{}, ErrFrameTooShort
	}
	if bs[0]&0x80 == 0 {
		return controlHeader{}, ErrNotControlFrame
	}
	h := controlHeader{
		subtype:     Subtype(bs[0] & 0x7F),
		sv:          bs[1]&0x80 != 0,
		version:     bs[1] >> 4 & 0x07,
		messageType: bs[1] & 0x0F,
	}
	sl := binary.BigEndian.Uint16(bs[2:])
	h.status = uint8(sl >> 11)
	h.cdl = sl & 0x07FF
	h.streamID = binary.BigEndian.Uint64(bs[4:])
	if h.version != 0 {
		return h, ErrInvalidVersion
	}
	if int(h.cdl) > len(bs)-ControlHeaderLength {
		return h, fmt.Errorf("%w: control_data_length %d exceeds %d remaining bytes", ErrInvalidLength, h.cdl, len(bs)-ControlHeaderLength)
	}
	return h, nil
}

// WriteFrame wraps an AVTP payload in an Ethernet header.
func WriteFrame(dst, src entity.MacAddress, payload []byte) []byte {
	frame := make([]byte, EthernetHeaderLength+len(payload))
	copy(frame, dst[:])
	copy(frame[6:], src[:])
	binary.BigEndian.PutUint16(frame[12:], EtherType)
	copy(frame[EthernetHeaderLength:], payload)
	return frame
}

// FrameInfo is the Ethernet-level addressing of a received frame.
type FrameInfo struct {
	DstMac entity.MacAddress
	SrcMac entity.MacAddress
}

// DecodeFrame parses a full Ethernet frame into one of the concrete PDU
// variants. Unknown subtypes and malformed payloads are errors; per the
// engine policy those frames are logged and dropped, never fatal.
func (c Codec) DecodeFrame(frame []byte) (PDU, FrameInfo, error) {
	if len(frame) < EthernetHeaderLength+ControlHeaderLength {
		return nil, FrameInfo{}, ErrFrameTooShort
	}
	var info FrameInfo
	copy(info.DstMac[:], frame)
	copy(info.SrcMac[:], frame[6:])
	if binary.BigEndian.Uint16(frame[12:]) != EtherType {
		return nil, info, ErrNotAvtp
	}

	payload := frame[EthernetHeaderLength:]
	hdr, err := decodeControlHeader(payload)
	if err != nil {
		return nil, info, err
	}

	var pdu PDU
	switch hdr.subtype {
	case SubtypeAdp:
		adpdu := &Adpdu{}
		err = adpdu.unmarshalPayload(hdr, payload[ControlHeaderLength:], c.Opts)
		pdu = adpdu
	case SubtypeAecp:
		pdu, err = c.decodeAecpdu(hdr, payload[ControlHeaderLength:])
	case SubtypeAcmp:
		acmpdu := &Acmpdu{}
		err = acmpdu.unmarshalPayload(hdr, payload[ControlHeaderLength:], c.Opts)
		pdu = acmpdu
	default:
		return nil, info, fmt.Errorf("%w: %v", ErrUnsupportedSubtype, hdr.subtype)
	}
	if err != nil {
		return nil, info, err
	}

	metricFramesDecoded.WithLabelValues(hdr.subtype.String()).Inc()
	return pdu, info, nil
}
