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

// AemCommandType is the 15 bit AEM command type of IEEE 1722.1-2013 table
// 7.126.
type AemCommandType uint16

const (
	AemAcquireEntity                     AemCommandType = 0x0000
	AemLockEntity                        AemCommandType = 0x0001
	AemEntityAvailable                   AemCommandType = 0x0002
	AemControllerAvailable               AemCommandType = 0x0003
	AemReadDescriptor                    AemCommandType = 0x0004
	AemWriteDescriptor                   AemCommandType = 0x0005
	AemSetConfiguration                  AemCommandType = 0x0006
	AemGetConfiguration                  AemCommandType = 0x0007
	AemSetStreamFormat                   AemCommandType = 0x0008
	AemGetStreamFormat                   AemCommandType = 0x0009
	AemSetStreamInfo                     AemCommandType = 0x000E
	AemGetStreamInfo                     AemCommandType = 0x000F
	AemSetName                           AemCommandType = 0x0010
	AemGetName                           AemCommandType = 0x0011
	AemSetSamplingRate                   AemCommandType = 0x0014
	AemGetSamplingRate                   AemCommandType = 0x0015
	AemSetClockSource                    AemCommandType = 0x0016
	AemGetClockSource                    AemCommandType = 0x0017
	AemStartStreaming                    AemCommandType = 0x0022
	AemStopStreaming                     AemCommandType = 0x0023
	AemRegisterUnsolicitedNotification   AemCommandType = 0x0024
	AemDeregisterUnsolicitedNotification AemCommandType = 0x0025
	AemIdentifyNotification              AemCommandType = 0x0026
	AemGetAvbInfo                        AemCommandType = 0x0027
	AemGetAudioMap                       AemCommandType = 0x002B
	AemAddAudioMappings                  AemCommandType = 0x002C
	AemRemoveAudioMappings               AemCommandType = 0x002D
	AemStartOperation                    AemCommandType = 0x0034
	AemAbortOperation                    AemCommandType = 0x0035
	AemOperationStatus                   AemCommandType = 0x0036
	AemGetCounters                       AemCommandType = 0x0029
	AemSetMemoryObjectLength             AemCommandType = 0x0047
	AemGetMemoryObjectLength             AemCommandType = 0x0048
)

func (t AemCommandType) String() string {
	switch t {
	case AemAcquireEntity:
		return "ACQUIRE_ENTITY"
	case AemLockEntity:
		return "LOCK_ENTITY"
	case AemEntityAvailable:
		return "ENTITY_AVAILABLE"
	case AemControllerAvailable:
		return "CONTROLLER_AVAILABLE"
	case AemReadDescriptor:
		return "READ_DESCRIPTOR"
	case AemWriteDescriptor:
		return "WRITE_DESCRIPTOR"
	case AemSetConfiguration:
		return "SET_CONFIGURATION"
	case AemGetConfiguration:
		return "GET_CONFIGURATION"
	case AemSetStreamFormat:
		return "SET_STREAM_FORMAT"
	case AemGetStreamFormat:
		return "GET_STREAM_FORMAT"
	case AemSetName:
		return "SET_NAME"
	case AemGetName:
		return "GET_NAME"
	case AemStartStreaming:
		return "START_STREAMING"
	case AemStopStreaming:
		return "STOP_STREAMING"
	case AemRegisterUnsolicitedNotification:
		return "REGISTER_UNSOLICITED_NOTIFICATION"
	case AemDeregisterUnsolicitedNotification:
		return "DEREGISTER_UNSOLICITED_NOTIFICATION"
	case AemIdentifyNotification:
		return "IDENTIFY_NOTIFICATION"
	default:
		return fmt.Sprintf("AEM command 0x%04X", uint16(t))
	}
}

// aemHeaderLength is the unsolicited flag plus command type.
const aemHeaderLength = 2

// An AemAecpdu is an AECPDU carrying an Entity Model command or response.
// The payload is the command specific bytes following the command_type
// field; typed accessors for common payloads live in aempayloads.go.
type AemAecpdu struct {
	AecpHeader
	Unsolicited bool
	CommandType AemCommandType
	Payload     []byte
}

func (*AemAecpdu) Subtype() Subtype      { return SubtypeAecp }
func (a *AemAecpdu) Header() *AecpHeader { return &a.AecpHeader }

func (a *AemAecpdu) String() string {
	return fmt.Sprintf("%v %v seq %d to %v", a.MessageType, a.CommandType, a.SequenceID, a.TargetEntityID)
}

func (a *AemAecpdu) MarshalBinary() ([]byte, error) {
	return Codec{}.EncodeAecpdu(a)
}

func (a *AemAecpdu) marshalBinary(c Codec) ([]byte, error) {
	total := ControlHeaderLength + AecpduCommonLength + aemHeaderLength + len(a.Payload)
	if err := c.checkAecpduLength(total, true); err != nil {
		return nil, err
	}
	bs := make([]byte, total)
	a.AecpHeader.marshalTo(bs, uint16(AecpduCommonLength+aemHeaderLength+len(a.Payload)))
	ct := uint16(a.CommandType) & 0x7FFF
	if a.Unsolicited {
		ct |= 0x8000
	}
	binary.BigEndian.PutUint16(bs[ControlHeaderLength+AecpduCommonLength:], ct)
	copy(bs[ControlHeaderLength+AecpduCommonLength+aemHeaderLength:], a.Payload)
	return bs, nil
}

func (a *AemAecpdu) UnmarshalBinary(bs []byte) error {
	hdr, err := decodeControlHeader(bs)
	if err != nil {
		return err
	}
	if hdr.subtype != SubtypeAecp {
		return fmt.Errorf("%w: expected AECP, got %v", ErrUnsupportedSubtype, hdr.subtype)
	}
	return a.unmarshalPayload(hdr, bs[ControlHeaderLength:], Options{})
}

func (a *AemAecpdu) unmarshalPayload(hdr controlHeader, p []byte, opts Options) error {
	if err := a.AecpHeader.unmarshalFrom(hdr, p); err != nil {
		return err
	}
	if len(p) < AecpduCommonLength+aemHeaderLength {
		return ErrFrameTooShort
	}
	ct := binary.BigEndian.Uint16(p[AecpduCommonLength:])
	a.Unsolicited = ct&0x8000 != 0
	a.CommandType = AemCommandType(ct & 0x7FFF)

	payloadLen := int(hdr.cdl) - AecpduCommonLength - aemHeaderLength
	if payloadLen < 0 {
		return fmt.Errorf("%w: AECPDU control_data_length %d below AEM minimum", ErrInvalidLength, hdr.cdl)
	}
	if err := checkAemPayloadLength(a.MessageType, a.CommandType, payloadLen); err != nil {
		relaxed := opts.IgnoreInvalidControlDataLength ||
			(opts.IgnoreInvalidNonSuccessAemResponses && a.MessageType == AecpAemResponse && a.Status != 0)
		if !relaxed {
			return err
		}
	}
	a.Payload = append([]byte(nil), p[AecpduCommonLength+aemHeaderLength:AecpduCommonLength+aemHeaderLength+payloadLen]...)
	if len(a.Payload) == 0 {
		a.Payload = nil
	}
	return nil
}

// EncodeAecpdu serializes any AECPDU variant under the codec options.
func (c Codec) EncodeAecpdu(pdu AecpPDU) ([]byte, error) {
	var bs []byte
	var err error
	switch pdu := pdu.(type) {
	case *AemAecpdu:
		bs, err = pdu.marshalBinary(c)
	case *AaAecpdu:
		bs, err = pdu.marshalBinary(c)
	case *MvuAecpdu:
		bs, err = pdu.marshalBinary(c)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessageType, pdu)
	}
	if err != nil {
		return nil, err
	}
	metricFramesEncoded.WithLabelValues(SubtypeAecp.String()).Inc()
	return bs, nil
}

// aemPayloadSizes is the expected command specific payload length per
// command type, on the command and response sides. Variable sized entries
// record the minimum.
type aemPayloadSizes struct {
	command          int
	response         int
	responseVariable bool
}

var aemPayloadSizeTable = map[AemCommandType]aemPayloadSizes{
	AemAcquireEntity:                     {command: 16, response: 16},
	AemLockEntity:                        {command: 16, response: 16},
	AemEntityAvailable:                   {command: 0, response: 0},
	AemControllerAvailable:               {command: 0, response: 0},
	AemReadDescriptor:                    {command: 8, response: 8, responseVariable: true},
	AemSetConfiguration:                  {command: 4, response: 4},
	AemGetConfiguration:                  {command: 0, response: 4},
	AemSetStreamFormat:                   {command: 12, response: 12},
	AemGetStreamFormat:                   {command: 4, response: 12},
	AemSetName:                           {command: 72, response: 72},
	AemGetName:                           {command: 8, response: 72},
	AemSetClockSource:                    {command: 8, response: 8},
	AemGetClockSource:                    {command: 4, response: 8},
	AemStartStreaming:                    {command: 4, response: 4},
	AemStopStreaming:                     {command: 4, response: 4},
	AemRegisterUnsolicitedNotification:   {command: 0, response: 0},
	AemDeregisterUnsolicitedNotification: {command: 0, response: 0},
	AemIdentifyNotification:              {command: 0, response: 0},
	AemGetCounters:                       {command: 4, response: 136},
}

func checkAemPayloadLength(mt AecpMessageType, ct AemCommandType, n int) error {
	sizes, ok := aemPayloadSizeTable[ct]
	if !ok {
		// Command types outside the table carry payloads we do not size
		// check; the 524 byte AECPDU bound still applies.
		return nil
	}
	switch {
	case mt == AecpAemCommand && n != sizes.command:
		return fmt.Errorf("%w: %v command payload %d bytes, expected %d", ErrInvalidLength, ct, n, sizes.command)
	case mt == AecpAemResponse && !sizes.responseVariable && n != sizes.response:
		return fmt.Errorf("%w: %v response payload %d bytes, expected %d", ErrInvalidLength, ct, n, sizes.response)
	case mt == AecpAemResponse && sizes.responseVariable && n < sizes.response:
		return fmt.Errorf("%w: %v response payload %d bytes, expected at least %d", ErrInvalidLength, ct, n, sizes.response)
	}
	return nil
}

// DescriptorType identifies an AEM descriptor kind.
type DescriptorType uint16

const (
	DescriptorEntity           DescriptorType = 0x0000
	DescriptorConfiguration    DescriptorType = 0x0001
	DescriptorAudioUnit        DescriptorType = 0x0002
	DescriptorStreamInput      DescriptorType = 0x0005
	DescriptorStreamOutput     DescriptorType = 0x0006
	DescriptorJackInput        DescriptorType = 0x0007
	DescriptorJackOutput       DescriptorType = 0x0008
	DescriptorAvbInterface     DescriptorType = 0x0009
	DescriptorClockSource      DescriptorType = 0x000A
	DescriptorMemoryObject     DescriptorType = 0x000B
	DescriptorLocale           DescriptorType = 0x000C
	DescriptorStrings          DescriptorType = 0x000D
	DescriptorStreamPortInput  DescriptorType = 0x000E
	DescriptorStreamPortOutput DescriptorType = 0x000F
	DescriptorAudioCluster     DescriptorType = 0x0014
	DescriptorAudioMap         DescriptorType = 0x0017
	DescriptorClockDomain      DescriptorType = 0x0024
)

// An AvdeccFixedString is the NUL padded 64 byte string of AEM descriptors.
type AvdeccFixedString [64]byte

func FixedString(s string) AvdeccFixedString {
	var fs AvdeccFixedString
	copy(fs[:], s)
	return fs
}

func (s AvdeccFixedString) String() string {
	for i, b := range s {
		if b == 0 {
			return string(s[:i])
		}
	}
	return string(s[:])
}
