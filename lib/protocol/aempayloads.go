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

// Typed accessors for the AEM payloads a controller needs during
// enumeration bring-up. Everything else stays opaque in AemAecpdu.Payload.

// A ReadDescriptorCommand asks for one descriptor of a configuration.
type ReadDescriptorCommand struct {
	ConfigurationIndex uint16
	DescriptorType     DescriptorType
	DescriptorIndex    uint16
}

func (c ReadDescriptorCommand) MarshalPayload() []byte {
	bs := make([]byte, 8)
	binary.BigEndian.PutUint16(bs[0:], c.ConfigurationIndex)
	// bs[2:4] reserved
	binary.BigEndian.PutUint16(bs[4:], uint16(c.DescriptorType))
	binary.BigEndian.PutUint16(bs[6:], c.DescriptorIndex)
	return bs
}

func (c *ReadDescriptorCommand) UnmarshalPayload(bs []byte) error {
	if len(bs) < 8 {
		return ErrFrameTooShort
	}
	c.ConfigurationIndex = binary.BigEndian.Uint16(bs[0:])
	c.DescriptorType = DescriptorType(binary.BigEndian.Uint16(bs[4:]))
	c.DescriptorIndex = binary.BigEndian.Uint16(bs[6:])
	return nil
}

// NewReadDescriptorCommand builds the AEM_COMMAND AECPDU for a descriptor
// read.
func NewReadDescriptorCommand(target entity.ID, configurationIndex uint16, descriptorType DescriptorType, descriptorIndex uint16) *AemAecpdu {
	return &AemAecpdu{
		AecpHeader: AecpHeader{
			MessageType:    AecpAemCommand,
			TargetEntityID: target,
		},
		CommandType: AemReadDescriptor,
		Payload: ReadDescriptorCommand{
			ConfigurationIndex: configurationIndex,
			DescriptorType:     descriptorType,
			DescriptorIndex:    descriptorIndex,
		}.MarshalPayload(),
	}
}

// A ReadDescriptorResponse carries the raw descriptor, starting at its
// descriptor_type field.
type ReadDescriptorResponse struct {
	ConfigurationIndex uint16
	Descriptor         []byte
}

func (r *ReadDescriptorResponse) UnmarshalPayload(bs []byte) error {
	if len(bs) < 8 {
		return ErrFrameTooShort
	}
	r.ConfigurationIndex = binary.BigEndian.Uint16(bs[0:])
	r.Descriptor = append([]byte(nil), bs[4:]...)
	return nil
}

// DescriptorType returns the type of the descriptor carried in the
// response.
func (r *ReadDescriptorResponse) DescriptorType() DescriptorType {
	if len(r.Descriptor) < 2 {
		return 0
	}
	return DescriptorType(binary.BigEndian.Uint16(r.Descriptor))
}

// entityDescriptorLength is the fixed size of the ENTITY descriptor, per
// IEEE 1722.1-2013 clause 7.2.1.
const entityDescriptorLength = 312

// An EntityDescriptor is the top level AEM descriptor.
type EntityDescriptor struct {
	EntityID               entity.ID
	EntityModelID          entity.ID
	Capabilities           entity.Capabilities
	TalkerStreamSources    uint16
	TalkerCapabilities     entity.TalkerCapabilities
	ListenerStreamSinks    uint16
	ListenerCapabilities   entity.ListenerCapabilities
	ControllerCapabilities entity.ControllerCapabilities
	AvailableIndex         uint32
	AssociationID          entity.ID
	EntityName             AvdeccFixedString
	VendorNameString       uint16
	ModelNameString        uint16
	FirmwareVersion        AvdeccFixedString
	GroupName              AvdeccFixedString
	SerialNumber           AvdeccFixedString
	ConfigurationsCount    uint16
	CurrentConfiguration   uint16
}

// ParseEntityDescriptor decodes an ENTITY descriptor from the raw bytes of
// a READ_DESCRIPTOR response.
func ParseEntityDescriptor(bs []byte) (*EntityDescriptor, error) {
	if len(bs) < entityDescriptorLength {
		return nil, fmt.Errorf("%w: entity descriptor %d bytes", ErrFrameTooShort, len(bs))
	}
	if dt := DescriptorType(binary.BigEndian.Uint16(bs)); dt != DescriptorEntity {
		return nil, fmt.Errorf("descriptor type %d is not ENTITY", dt)
	}
	d := &EntityDescriptor{
		EntityID:               entity.IDFromBytes(bs[4:12]),
		EntityModelID:          entity.IDFromBytes(bs[12:20]),
		Capabilities:           entity.Capabilities(binary.BigEndian.Uint32(bs[20:])),
		TalkerStreamSources:    binary.BigEndian.Uint16(bs[24:]),
		TalkerCapabilities:     entity.TalkerCapabilities(binary.BigEndian.Uint16(bs[26:])),
		ListenerStreamSinks:    binary.BigEndian.Uint16(bs[28:]),
		ListenerCapabilities:   entity.ListenerCapabilities(binary.BigEndian.Uint16(bs[30:])),
		ControllerCapabilities: entity.ControllerCapabilities(binary.BigEndian.Uint32(bs[32:])),
		AvailableIndex:         binary.BigEndian.Uint32(bs[36:]),
		AssociationID:          entity.IDFromBytes(bs[40:48]),
		VendorNameString:       binary.BigEndian.Uint16(bs[112:]),
		ModelNameString:        binary.BigEndian.Uint16(bs[114:]),
		ConfigurationsCount:    binary.BigEndian.Uint16(bs[308:]),
		CurrentConfiguration:   binary.BigEndian.Uint16(bs[310:]),
	}
	copy(d.EntityName[:], bs[48:112])
	copy(d.FirmwareVersion[:], bs[116:180])
	copy(d.GroupName[:], bs[180:244])
	copy(d.SerialNumber[:], bs[244:308])
	return d, nil
}

// MarshalDescriptor serializes the ENTITY descriptor, for local entities
// answering READ_DESCRIPTOR.
func (d *EntityDescriptor) MarshalDescriptor() []byte {
	bs := make([]byte, entityDescriptorLength)
	binary.BigEndian.PutUint16(bs[0:], uint16(DescriptorEntity))
	// bs[2:4] descriptor_index, always zero for ENTITY
	d.EntityID.PutBytes(bs[4:])
	d.EntityModelID.PutBytes(bs[12:])
	binary.BigEndian.PutUint32(bs[20:], uint32(d.Capabilities))
	binary.BigEndian.PutUint16(bs[24:], d.TalkerStreamSources)
	binary.BigEndian.PutUint16(bs[26:], uint16(d.TalkerCapabilities))
	binary.BigEndian.PutUint16(bs[28:], d.ListenerStreamSinks)
	binary.BigEndian.PutUint16(bs[30:], uint16(d.ListenerCapabilities))
	binary.BigEndian.PutUint32(bs[32:], uint32(d.ControllerCapabilities))
	binary.BigEndian.PutUint32(bs[36:], d.AvailableIndex)
	d.AssociationID.PutBytes(bs[40:])
	copy(bs[48:112], d.EntityName[:])
	binary.BigEndian.PutUint16(bs[112:], d.VendorNameString)
	binary.BigEndian.PutUint16(bs[114:], d.ModelNameString)
	copy(bs[116:180], d.FirmwareVersion[:])
	copy(bs[180:244], d.GroupName[:])
	copy(bs[244:308], d.SerialNumber[:])
	binary.BigEndian.PutUint16(bs[308:], d.ConfigurationsCount)
	binary.BigEndian.PutUint16(bs[310:], d.CurrentConfiguration)
	return bs
}
