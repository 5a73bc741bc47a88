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

type AcmpMessageType uint8

const (
	AcmpConnectTxCommand        AcmpMessageType = 0
	AcmpConnectTxResponse       AcmpMessageType = 1
	AcmpDisconnectTxCommand     AcmpMessageType = 2
	AcmpDisconnectTxResponse    AcmpMessageType = 3
	AcmpGetTxStateCommand       AcmpMessageType = 4
	AcmpGetTxStateResponse      AcmpMessageType = 5
	AcmpConnectRxCommand        AcmpMessageType = 6
	AcmpConnectRxResponse       AcmpMessageType = 7
	AcmpDisconnectRxCommand     AcmpMessageType = 8
	AcmpDisconnectRxResponse    AcmpMessageType = 9
	AcmpGetRxStateCommand       AcmpMessageType = 10
	AcmpGetRxStateResponse      AcmpMessageType = 11
	AcmpGetTxConnectionCommand  AcmpMessageType = 12
	AcmpGetTxConnectionResponse AcmpMessageType = 13
)

func (t AcmpMessageType) String() string {
	switch t {
	case AcmpConnectTxCommand:
		return "CONNECT_TX_COMMAND"
	case AcmpConnectTxResponse:
		return "CONNECT_TX_RESPONSE"
	case AcmpDisconnectTxCommand:
		return "DISCONNECT_TX_COMMAND"
	case AcmpDisconnectTxResponse:
		return "DISCONNECT_TX_RESPONSE"
	case AcmpGetTxStateCommand:
		return "GET_TX_STATE_COMMAND"
	case AcmpGetTxStateResponse:
		return "GET_TX_STATE_RESPONSE"
	case AcmpConnectRxCommand:
		return "CONNECT_RX_COMMAND"
	case AcmpConnectRxResponse:
		return "CONNECT_RX_RESPONSE"
	case AcmpDisconnectRxCommand:
		return "DISCONNECT_RX_COMMAND"
	case AcmpDisconnectRxResponse:
		return "DISCONNECT_RX_RESPONSE"
	case AcmpGetRxStateCommand:
		return "GET_RX_STATE_COMMAND"
	case AcmpGetRxStateResponse:
		return "GET_RX_STATE_RESPONSE"
	case AcmpGetTxConnectionCommand:
		return "GET_TX_CONNECTION_COMMAND"
	case AcmpGetTxConnectionResponse:
		return "GET_TX_CONNECTION_RESPONSE"
	default:
		return fmt.Sprintf("ACMP message type %d", uint8(t))
	}
}

// IsCommand reports whether the message type is a command.
func (t AcmpMessageType) IsCommand() bool {
	return t&1 == 0
}

// ResponseType returns the response message type matching a command.
func (t AcmpMessageType) ResponseType() AcmpMessageType {
	return t | 1
}

// AcmpduPayloadLength is the fixed number of octets following the
// stream_id field, per IEEE 1722.1-2013 clause 8.2.1.
const AcmpduPayloadLength = 44

// An Acmpdu is one connection management message.
type Acmpdu struct {
	MessageType AcmpMessageType
	Status      AcmpStatus

	StreamID           entity.ID
	ControllerEntityID entity.ID
	TalkerEntityID     entity.ID
	ListenerEntityID   entity.ID
	TalkerUniqueID     uint16
	ListenerUniqueID   uint16
	StreamDestMac      entity.MacAddress
	ConnectionCount    uint16
	SequenceID         uint16
	Flags              entity.ConnectionFlags
	StreamVlanID       uint16
}

func (*Acmpdu) Subtype() Subtype { return SubtypeAcmp }

func (a *Acmpdu) String() string {
	return fmt.Sprintf("%v seq %d talker %v/%d listener %v/%d", a.MessageType, a.SequenceID,
		a.TalkerEntityID, a.TalkerUniqueID, a.ListenerEntityID, a.ListenerUniqueID)
}

// TalkerStream returns the talker side stream identification.
func (a *Acmpdu) TalkerStream() entity.StreamIdentification {
	return entity.StreamIdentification{EntityID: a.TalkerEntityID, StreamIndex: a.TalkerUniqueID}
}

// ListenerStream returns the listener side stream identification.
func (a *Acmpdu) ListenerStream() entity.StreamIdentification {
	return entity.StreamIdentification{EntityID: a.ListenerEntityID, StreamIndex: a.ListenerUniqueID}
}

func (a *Acmpdu) MarshalBinary() ([]byte, error) {
	bs := make([]byte, ControlHeaderLength+AcmpduPayloadLength)
	hdr := controlHeader{
		subtype:     SubtypeAcmp,
		sv:          false,
		messageType: uint8(a.MessageType),
		status:      uint8(a.Status) & 0x1F,
		cdl:         AcmpduPayloadLength,
		streamID:    uint64(a.StreamID),
	}
	hdr.encode(bs)

	p := bs[ControlHeaderLength:]
	a.ControllerEntityID.PutBytes(p[0:])
	a.TalkerEntityID.PutBytes(p[8:])
	a.ListenerEntityID.PutBytes(p[16:])
	binary.BigEndian.PutUint16(p[24:], a.TalkerUniqueID)
	binary.BigEndian.PutUint16(p[26:], a.ListenerUniqueID)
	copy(p[28:], a.StreamDestMac[:])
	binary.BigEndian.PutUint16(p[34:], a.ConnectionCount)
	binary.BigEndian.PutUint16(p[36:], a.SequenceID)
	binary.BigEndian.PutUint16(p[38:], uint16(a.Flags))
	binary.BigEndian.PutUint16(p[40:], a.StreamVlanID)
	// p[42:44] reserved
	metricFramesEncoded.WithLabelValues(SubtypeAcmp.String()).Inc()
	return bs, nil
}

func (a *Acmpdu) UnmarshalBinary(bs []byte) error {
	hdr, err := decodeControlHeader(bs)
	if err != nil {
		return err
	}
	if hdr.subtype != SubtypeAcmp {
		return fmt.Errorf("%w: expected ACMP, got %v", ErrUnsupportedSubtype, hdr.subtype)
	}
	return a.unmarshalPayload(hdr, bs[ControlHeaderLength:], Options{})
}

func (a *Acmpdu) unmarshalPayload(hdr controlHeader, p []byte, opts Options) error {
	if hdr.messageType > uint8(AcmpGetTxConnectionResponse) {
		return fmt.Errorf("%w: ACMP %d", ErrUnknownMessageType, hdr.messageType)
	}
	if hdr.cdl != AcmpduPayloadLength && !opts.IgnoreInvalidControlDataLength {
		return fmt.Errorf("%w: ACMPDU control_data_length %d, expected %d", ErrInvalidLength, hdr.cdl, AcmpduPayloadLength)
	}
	if len(p) < AcmpduPayloadLength {
		return ErrFrameTooShort
	}

	a.MessageType = AcmpMessageType(hdr.messageType)
	a.Status = AcmpStatus(hdr.status)
	a.StreamID = entity.ID(hdr.streamID)
	a.ControllerEntityID = entity.IDFromBytes(p[0:8])
	a.TalkerEntityID = entity.IDFromBytes(p[8:16])
	a.ListenerEntityID = entity.IDFromBytes(p[16:24])
	a.TalkerUniqueID = binary.BigEndian.Uint16(p[24:])
	a.ListenerUniqueID = binary.BigEndian.Uint16(p[26:])
	a.StreamDestMac = entity.MacAddressFromBytes(p[28:34])
	a.ConnectionCount = binary.BigEndian.Uint16(p[34:])
	a.SequenceID = binary.BigEndian.Uint16(p[36:])
	a.Flags = entity.ConnectionFlags(binary.BigEndian.Uint16(p[38:]))
	a.StreamVlanID = binary.BigEndian.Uint16(p[40:])
	return nil
}
