// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/avdecc-go/avdecc/lib/entity"
)

type AecpMessageType uint8

const (
	AecpAemCommand            AecpMessageType = 0
	AecpAemResponse           AecpMessageType = 1
	AecpAddressAccessCommand  AecpMessageType = 2
	AecpAddressAccessResponse AecpMessageType = 3
	AecpAvcCommand            AecpMessageType = 4
	AecpAvcResponse           AecpMessageType = 5
	AecpVendorUniqueCommand   AecpMessageType = 6
	AecpVendorUniqueResponse  AecpMessageType = 7
)

func (t AecpMessageType) String() string {
	switch t {
	case AecpAemCommand:
		return "AEM_COMMAND"
	case AecpAemResponse:
		return "AEM_RESPONSE"
	case AecpAddressAccessCommand:
		return "ADDRESS_ACCESS_COMMAND"
	case AecpAddressAccessResponse:
		return "ADDRESS_ACCESS_RESPONSE"
	case AecpVendorUniqueCommand:
		return "VENDOR_UNIQUE_COMMAND"
	case AecpVendorUniqueResponse:
		return "VENDOR_UNIQUE_RESPONSE"
	default:
		return fmt.Sprintf("AECP message type %d", uint8(t))
	}
}

// IsCommand reports whether the message type is a command (as opposed to a
// response).
func (t AecpMessageType) IsCommand() bool {
	return t&1 == 0
}

// ResponseType returns the response message type matching a command.
func (t AecpMessageType) ResponseType() AecpMessageType {
	return t | 1
}

const (
	// AecpduCommonLength is controller_entity_id plus sequence_id, the
	// octets common to all AECPDUs after the entity_id field.
	AecpduCommonLength = 10
	// AecpduMaximumLength is the largest AECPDU allowed by IEEE 1722.1
	// clause 9.2.1.1.7, measured over the whole AVTPDU.
	AecpduMaximumLength = 524
)

// AecpHeader is the part common to all AECP messages.
type AecpHeader struct {
	MessageType        AecpMessageType
	Status             uint8 // 5 bit wire status; meaning depends on payload kind
	TargetEntityID     entity.ID
	ControllerEntityID entity.ID
	SequenceID         uint16
}

func (h *AecpHeader) marshalTo(bs []byte, cdl uint16) {
	hdr := controlHeader{
		subtype:     SubtypeAecp,
		sv:          false,
		messageType: uint8(h.MessageType),
		status:      h.Status,
		cdl:         cdl,
		streamID:    uint64(h.TargetEntityID),
	}
	hdr.encode(bs)
	h.ControllerEntityID.PutBytes(bs[ControlHeaderLength:])
	binary.BigEndian.PutUint16(bs[ControlHeaderLength+8:], h.SequenceID)
}

func (h *AecpHeader) unmarshalFrom(hdr controlHeader, p []byte) error {
	if len(p) < AecpduCommonLength {
		return ErrFrameTooShort
	}
	h.MessageType = AecpMessageType(hdr.messageType)
	h.Status = hdr.status
	h.TargetEntityID = entity.ID(hdr.streamID)
	h.ControllerEntityID = entity.IDFromBytes(p[0:8])
	h.SequenceID = binary.BigEndian.Uint16(p[8:10])
	return nil
}

func (c Codec) checkAecpduLength(total int, send bool) error {
	if total <= AecpduMaximumLength {
		return nil
	}
	if send && c.Opts.AllowSendBigAecpPayloads {
		return nil
	}
	if !send && c.Opts.AllowRecvBigAecpPayloads {
		return nil
	}
	return fmt.Errorf("%w: %d > %d", ErrPayloadTooBig, total, AecpduMaximumLength)
}

// decodeAecpdu picks the concrete AECPDU variant from the message type.
func (c Codec) decodeAecpdu(hdr controlHeader, p []byte) (PDU, error) {
	if err := c.checkAecpduLength(ControlHeaderLength+int(hdr.cdl), false); err != nil {
		return nil, err
	}
	switch AecpMessageType(hdr.messageType) {
	case AecpAemCommand, AecpAemResponse:
		a := &AemAecpdu{}
		return a, a.unmarshalPayload(hdr, p, c.Opts)
	case AecpAddressAccessCommand, AecpAddressAccessResponse:
		a := &AaAecpdu{}
		return a, a.unmarshalPayload(hdr, p, c.Opts)
	case AecpVendorUniqueCommand, AecpVendorUniqueResponse:
		a := &MvuAecpdu{}
		return a, a.unmarshalPayload(hdr, p, c.Opts)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownMessageType, AecpMessageType(hdr.messageType))
	}
}

// AecpPDU is implemented by the concrete AECPDU variants and gives the
// correlator uniform access to the common header.
type AecpPDU interface {
	PDU
	Header() *AecpHeader
}
