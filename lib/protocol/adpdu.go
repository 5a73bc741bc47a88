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

type AdpMessageType uint8

const (
	AdpEntityAvailable AdpMessageType = 0
	AdpEntityDeparting AdpMessageType = 1
	AdpEntityDiscover  AdpMessageType = 2
)

func (t AdpMessageType) String() string {
	switch t {
	case AdpEntityAvailable:
		return "ENTITY_AVAILABLE"
	case AdpEntityDeparting:
		return "ENTITY_DEPARTING"
	case AdpEntityDiscover:
		return "ENTITY_DISCOVER"
	default:
		return fmt.Sprintf("ADP message type %d", uint8(t))
	}
}

// AdpduPayloadLength is the fixed number of octets following the entity_id
// field, per IEEE 1722.1-2013 clause 6.2.1.
const AdpduPayloadLength = 56

// An Adpdu is one discovery protocol message. For ENTITY_DISCOVER only
// MessageType and EntityID (the discovery target, zero for "all") are
// meaningful; the remaining fields are zero on the wire.
type Adpdu struct {
	MessageType AdpMessageType
	ValidTime   int // seconds, even, 2..62

	EntityID               entity.ID
	EntityModelID          entity.ID
	Capabilities           entity.Capabilities
	TalkerStreamSources    uint16
	TalkerCapabilities     entity.TalkerCapabilities
	ListenerStreamSinks    uint16
	ListenerCapabilities   entity.ListenerCapabilities
	ControllerCapabilities entity.ControllerCapabilities
	AvailableIndex         uint32
	GptpGrandmasterID      entity.ID
	GptpDomainNumber       uint8
	IdentifyControlIndex   uint16
	InterfaceIndex         uint16
	AssociationID          entity.ID
}

func (*Adpdu) Subtype() Subtype { return SubtypeAdp }

func (a *Adpdu) String() string {
	return fmt.Sprintf("%v from %v", a.MessageType, a.EntityID)
}

// NewAdpdu builds an ENTITY_AVAILABLE or ENTITY_DEPARTING message from an
// entity snapshot.
func NewAdpdu(t AdpMessageType, e *entity.DiscoveredEntity) *Adpdu {
	return &Adpdu{
		MessageType:            t,
		ValidTime:              e.ValidTime,
		EntityID:               e.EntityID,
		EntityModelID:          e.EntityModelID,
		Capabilities:           e.Capabilities,
		TalkerStreamSources:    e.TalkerStreamSources,
		TalkerCapabilities:     e.TalkerCapabilities,
		ListenerStreamSinks:    e.ListenerStreamSinks,
		ListenerCapabilities:   e.ListenerCapabilities,
		ControllerCapabilities: e.ControllerCapabilities,
		AvailableIndex:         e.AvailableIndex,
		GptpGrandmasterID:      e.GptpGrandmasterID,
		GptpDomainNumber:       e.GptpDomainNumber,
		IdentifyControlIndex:   e.IdentifyControlIndex,
		InterfaceIndex:         e.InterfaceIndex,
		AssociationID:          e.AssociationID,
	}
}

// Entity returns the discovery snapshot carried by an ENTITY_AVAILABLE.
func (a *Adpdu) Entity() entity.DiscoveredEntity {
	return entity.DiscoveredEntity{
		EntityID:               a.EntityID,
		EntityModelID:          a.EntityModelID,
		Capabilities:           a.Capabilities,
		TalkerStreamSources:    a.TalkerStreamSources,
		TalkerCapabilities:     a.TalkerCapabilities,
		ListenerStreamSinks:    a.ListenerStreamSinks,
		ListenerCapabilities:   a.ListenerCapabilities,
		ControllerCapabilities: a.ControllerCapabilities,
		AvailableIndex:         a.AvailableIndex,
		GptpGrandmasterID:      a.GptpGrandmasterID,
		GptpDomainNumber:       a.GptpDomainNumber,
		IdentifyControlIndex:   a.IdentifyControlIndex,
		InterfaceIndex:         a.InterfaceIndex,
		AssociationID:          a.AssociationID,
		ValidTime:              a.ValidTime,
	}
}

func (a *Adpdu) MarshalBinary() ([]byte, error) {
	bs := make([]byte, ControlHeaderLength+AdpduPayloadLength)
	validTime := a.ValidTime
	if a.MessageType != AdpEntityDiscover {
		validTime = entity.ClampValidTime(validTime)
	}
	hdr := controlHeader{
		subtype:     SubtypeAdp,
		sv:          false,
		messageType: uint8(a.MessageType),
		status:      uint8(validTime / 2),
		cdl:         AdpduPayloadLength,
		streamID:    uint64(a.EntityID),
	}
	hdr.encode(bs)

	p := bs[ControlHeaderLength:]
	a.EntityModelID.PutBytes(p[0:])
	binary.BigEndian.PutUint32(p[8:], uint32(a.Capabilities))
	binary.BigEndian.PutUint16(p[12:], a.TalkerStreamSources)
	binary.BigEndian.PutUint16(p[14:], uint16(a.TalkerCapabilities))
	binary.BigEndian.PutUint16(p[16:], a.ListenerStreamSinks)
	binary.BigEndian.PutUint16(p[18:], uint16(a.ListenerCapabilities))
	binary.BigEndian.PutUint32(p[20:], uint32(a.ControllerCapabilities))
	binary.BigEndian.PutUint32(p[24:], a.AvailableIndex)
	a.GptpGrandmasterID.PutBytes(p[28:])
	p[36] = a.GptpDomainNumber
	// p[37:40] reserved
	binary.BigEndian.PutUint16(p[40:], a.IdentifyControlIndex)
	binary.BigEndian.PutUint16(p[42:], a.InterfaceIndex)
	a.AssociationID.PutBytes(p[44:])
	// p[52:56] reserved
	metricFramesEncoded.WithLabelValues(SubtypeAdp.String()).Inc()
	return bs, nil
}

func (a *Adpdu) UnmarshalBinary(bs []byte) error {
	hdr, err := decodeControlHeader(bs)
	if err != nil {
		return err
	}
	if hdr.subtype != SubtypeAdp {
		return fmt.Errorf("%w: expected ADP, got %v", ErrUnsupportedSubtype, hdr.subtype)
	}
	return a.unmarshalPayload(hdr, bs[ControlHeaderLength:], Options{})
}

func (a *Adpdu) unmarshalPayload(hdr controlHeader, p []byte, opts Options) error {
	if hdr.messageType > uint8(AdpEntityDiscover) {
		return fmt.Errorf("%w: ADP %d", ErrUnknownMessageType, hdr.messageType)
	}
	if hdr.cdl != AdpduPayloadLength && !opts.IgnoreInvalidControlDataLength {
		return fmt.Errorf("%w: ADPDU control_data_length %d, expected %d", ErrInvalidLength, hdr.cdl, AdpduPayloadLength)
	}
	if len(p) < AdpduPayloadLength {
		return ErrFrameTooShort
	}

	a.MessageType = AdpMessageType(hdr.messageType)
	a.ValidTime = int(hdr.status) * 2
	a.EntityID = entity.ID(hdr.streamID)
	a.EntityModelID = entity.IDFromBytes(p[0:8])
	a.Capabilities = entity.Capabilities(binary.BigEndian.Uint32(p[8:]))
	a.TalkerStreamSources = binary.BigEndian.Uint16(p[12:])
	a.TalkerCapabilities = entity.TalkerCapabilities(binary.BigEndian.Uint16(p[14:]))
	a.ListenerStreamSinks = binary.BigEndian.Uint16(p[16:])
	a.ListenerCapabilities = entity.ListenerCapabilities(binary.BigEndian.Uint16(p[18:]))
	a.ControllerCapabilities = entity.ControllerCapabilities(binary.BigEndian.Uint32(p[20:]))
	a.AvailableIndex = binary.BigEndian.Uint32(p[24:])
	a.GptpGrandmasterID = entity.IDFromBytes(p[28:36])
	a.GptpDomainNumber = p[36]
	a.IdentifyControlIndex = binary.BigEndian.Uint16(p[40:])
	a.InterfaceIndex = binary.BigEndian.Uint16(p[42:])
	a.AssociationID = entity.IDFromBytes(p[44:52])
	return nil
}
