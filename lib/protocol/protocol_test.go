// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/d4l3k/messagediff"

	"github.com/avdecc-go/avdecc/lib/entity"
)

func randomAdpdu(rng *rand.Rand) *Adpdu {
	return &Adpdu{
		MessageType:            AdpMessageType(rng.Intn(2)), // AVAILABLE or DEPARTING
		ValidTime:              2 + 2*rng.Intn(31),
		EntityID:               entity.ID(rng.Uint64() | 1),
		EntityModelID:          entity.ID(rng.Uint64()),
		Capabilities:           entity.Capabilities(rng.Uint32()),
		TalkerStreamSources:    uint16(rng.Uint32()),
		TalkerCapabilities:     entity.TalkerCapabilities(rng.Uint32()),
		ListenerStreamSinks:    uint16(rng.Uint32()),
		ListenerCapabilities:   entity.ListenerCapabilities(rng.Uint32()),
		ControllerCapabilities: entity.ControllerCapabilities(rng.Uint32()),
		AvailableIndex:         rng.Uint32(),
		GptpGrandmasterID:      entity.ID(rng.Uint64()),
		GptpDomainNumber:       uint8(rng.Uint32()),
		IdentifyControlIndex:   uint16(rng.Uint32()),
		InterfaceIndex:         uint16(rng.Uint32()),
		AssociationID:          entity.ID(rng.Uint64()),
	}
}

func TestAdpduRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		in := randomAdpdu(rng)
		bs, err := in.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		var out Adpdu
		if err := out.UnmarshalBinary(bs); err != nil {
			t.Fatal(err)
		}
		if diff, equal := messagediff.PrettyDiff(*in, out); !equal {
			t.Fatalf("ADPDU round trip mismatch:\n%s", diff)
		}
	}
}

func TestAdpduWireFormat(t *testing.T) {
	a := &Adpdu{
		MessageType:  AdpEntityAvailable,
		ValidTime:    62,
		EntityID:     0x0011223344556677,
		Capabilities: entity.CapabilityAemSupported,
	}
	bs, err := a.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(bs) != ControlHeaderLength+AdpduPayloadLength {
		t.Errorf("ADPDU length %d, expected %d", len(bs), ControlHeaderLength+AdpduPayloadLength)
	}
	if bs[0] != 0xFA {
		t.Errorf("first byte 0x%02X, expected cd|subtype 0xFA", bs[0])
	}
	// valid_time 62 => 31 two second units in the five status bits
	if got := bs[2] >> 3; got != 31 {
		t.Errorf("valid_time field %d, expected 31", got)
	}
	if !bytes.Equal(bs[4:12], []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}) {
		t.Errorf("entity_id bytes %X", bs[4:12])
	}
}

func TestAdpduDiscoverRoundTrip(t *testing.T) {
	in := &Adpdu{MessageType: AdpEntityDiscover, EntityID: 0}
	bs, err := in.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var out Adpdu
	if err := out.UnmarshalBinary(bs); err != nil {
		t.Fatal(err)
	}
	if out.MessageType != AdpEntityDiscover || out.ValidTime != 0 || out.EntityID != 0 {
		t.Errorf("unexpected discover round trip result: %+v", out)
	}
}

func randomAemAecpdu(rng *rand.Rand) *AemAecpdu {
	// SET_CONFIGURATION carries a fixed four byte payload on both sides.
	payload := make([]byte, 4)
	rng.Read(payload)
	mt := AecpAemCommand
	if rng.Intn(2) == 1 {
		mt = AecpAemResponse
	}
	return &AemAecpdu{
		AecpHeader: AecpHeader{
			MessageType:        mt,
			Status:             uint8(rng.Intn(13)),
			TargetEntityID:     entity.ID(rng.Uint64()),
			ControllerEntityID: entity.ID(rng.Uint64()),
			SequenceID:         uint16(rng.Uint32()),
		},
		Unsolicited: rng.Intn(2) == 1,
		CommandType: AemSetConfiguration,
		Payload:     payload,
	}
}

func TestAemAecpduRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(43))
	for i := 0; i < 500; i++ {
		in := randomAemAecpdu(rng)
		bs, err := in.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		var out AemAecpdu
		if err := out.UnmarshalBinary(bs); err != nil {
			t.Fatal(err)
		}
		if diff, equal := messagediff.PrettyDiff(*in, out); !equal {
			t.Fatalf("AEM AECPDU round trip mismatch:\n%s", diff)
		}
	}
}

func TestAemAecpduPayloadSizeEnforced(t *testing.T) {
	in := &AemAecpdu{
		AecpHeader: AecpHeader{
			MessageType:    AecpAemCommand,
			TargetEntityID: 1,
		},
		CommandType: AemSetConfiguration,
		Payload:     []byte{1, 2, 3}, // 4 expected
	}
	bs, err := in.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var out AemAecpdu
	if err := out.UnmarshalBinary(bs); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}

	// The relaxed codec accepts it.
	c := Codec{Opts: Options{IgnoreInvalidControlDataLength: true}}
	frame := WriteFrame(AdpMulticastAddress, entity.MacAddress{2, 0, 0, 0, 0, 1}, bs)
	if _, _, err := c.DecodeFrame(frame); err != nil {
		t.Errorf("relaxed decode failed: %v", err)
	}
}

func TestAecpduMaximumLength(t *testing.T) {
	big := &AemAecpdu{
		AecpHeader: AecpHeader{
			MessageType:    AecpAemCommand,
			TargetEntityID: 1,
		},
		CommandType: AemCommandType(0x7ABC), // not in the size table
		Payload:     make([]byte, 600),
	}
	if _, err := big.MarshalBinary(); !errors.Is(err, ErrPayloadTooBig) {
		t.Errorf("expected ErrPayloadTooBig, got %v", err)
	}
	c := Codec{Opts: Options{AllowSendBigAecpPayloads: true}}
	if _, err := c.EncodeAecpdu(big); err != nil {
		t.Errorf("big payload encode with option failed: %v", err)
	}
}

func TestAaAecpduRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(44))
	for i := 0; i < 200; i++ {
		in := &AaAecpdu{
			AecpHeader: AecpHeader{
				MessageType:        AecpAddressAccessCommand,
				TargetEntityID:     entity.ID(rng.Uint64()),
				ControllerEntityID: entity.ID(rng.Uint64()),
				SequenceID:         uint16(rng.Uint32()),
			},
		}
		for n := rng.Intn(3); n >= 0; n-- {
			tlv := AaTlv{
				Mode:    AaMode(rng.Intn(3)),
				Address: rng.Uint64(),
			}
			if l := rng.Intn(64); l > 0 {
				tlv.Data = make([]byte, l)
				rng.Read(tlv.Data)
			}
			in.Tlvs = append(in.Tlvs, tlv)
		}
		bs, err := in.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		var out AaAecpdu
		if err := out.UnmarshalBinary(bs); err != nil {
			t.Fatal(err)
		}
		if diff, equal := messagediff.PrettyDiff(*in, out); !equal {
			t.Fatalf("AA AECPDU round trip mismatch:\n%s", diff)
		}
	}
}

func TestMvuAecpduRoundTrip(t *testing.T) {
	in := &MvuAecpdu{
		AecpHeader: AecpHeader{
			MessageType:        AecpVendorUniqueCommand,
			TargetEntityID:     0xBB00000000000001,
			ControllerEntityID: 0xAA00000000000001,
			SequenceID:         7,
		},
		CommandType: MvuGetMilanInfo,
		Payload:     []byte{0, 0, 0, 0},
	}
	bs, err := in.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var out MvuAecpdu
	if err := out.UnmarshalBinary(bs); err != nil {
		t.Fatal(err)
	}
	if diff, equal := messagediff.PrettyDiff(*in, out); !equal {
		t.Fatalf("MVU AECPDU round trip mismatch:\n%s", diff)
	}

	// A non-Milan protocol_id must not decode as MVU.
	copy(bs[ControlHeaderLength+AecpduCommonLength:], []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01})
	if err := out.UnmarshalBinary(bs); !errors.Is(err, ErrUnsupportedProtocol) {
		t.Errorf("expected ErrUnsupportedProtocol, got %v", err)
	}
}

func randomAcmpdu(rng *rand.Rand) *Acmpdu {
	statuses := []AcmpStatus{
		AcmpStatusSuccess, AcmpStatusListenerUnknownID, AcmpStatusTalkerUnknownID,
		AcmpStatusStateUnavailable, AcmpStatusNotSupported,
	}
	return &Acmpdu{
		MessageType:        AcmpMessageType(rng.Intn(14)),
		Status:             statuses[rng.Intn(len(statuses))],
		StreamID:           entity.ID(rng.Uint64()),
		ControllerEntityID: entity.ID(rng.Uint64()),
		TalkerEntityID:     entity.ID(rng.Uint64()),
		ListenerEntityID:   entity.ID(rng.Uint64()),
		TalkerUniqueID:     uint16(rng.Uint32()),
		ListenerUniqueID:   uint16(rng.Uint32()),
		StreamDestMac:      entity.MacAddress{0x91, 0xE0, byte(rng.Uint32()), byte(rng.Uint32()), byte(rng.Uint32()), byte(rng.Uint32())},
		ConnectionCount:    uint16(rng.Uint32()),
		SequenceID:         uint16(rng.Uint32()),
		Flags:              entity.ConnectionFlags(rng.Intn(128)),
		StreamVlanID:       uint16(rng.Uint32()),
	}
}

func TestAcmpduRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(45))
	for i := 0; i < 500; i++ {
		in := randomAcmpdu(rng)
		bs, err := in.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		var out Acmpdu
		if err := out.UnmarshalBinary(bs); err != nil {
			t.Fatal(err)
		}
		if diff, equal := messagediff.PrettyDiff(*in, out); !equal {
			t.Fatalf("ACMPDU round trip mismatch:\n%s", diff)
		}
	}
}

func TestDecodeFrameDispatch(t *testing.T) {
	src := entity.MacAddress{2, 0, 0, 0, 0, 1}
	rng := rand.New(rand.NewSource(46))

	adp, _ := randomAdpdu(rng).MarshalBinary()
	aem, _ := randomAemAecpdu(rng).MarshalBinary()
	acmp, _ := randomAcmpdu(rng).MarshalBinary()

	cases := []struct {
		payload []byte
		want    Subtype
	}{
		{adp, SubtypeAdp},
		{aem, SubtypeAecp},
		{acmp, SubtypeAcmp},
	}
	for _, tc := range cases {
		pdu, info, err := Codec{}.DecodeFrame(WriteFrame(AdpMulticastAddress, src, tc.payload))
		if err != nil {
			t.Fatal(err)
		}
		if pdu.Subtype() != tc.want {
			t.Errorf("decoded %v, expected %v", pdu.Subtype(), tc.want)
		}
		if info.SrcMac != src {
			t.Errorf("source MAC %v", info.SrcMac)
		}
	}
}

func TestDecodeGarbageDoesNotPanic(t *testing.T) {
	rng := rand.New(rand.NewSource(47))
	for i := 0; i < 2000; i++ {
		frame := make([]byte, rng.Intn(128))
		rng.Read(frame)
		pdu, _, err := Codec{}.DecodeFrame(frame)
		if err != nil {
			continue
		}
		// Whatever decoded cleanly must re-serialize, and to the same
		// subtype byte as the wire.
		bs, err := pdu.MarshalBinary()
		if err != nil {
			t.Fatalf("re-serialize failed: %v", err)
		}
		if bs[0] != frame[EthernetHeaderLength] {
			t.Fatalf("re-serialized subtype byte 0x%02X differs from wire 0x%02X", bs[0], frame[EthernetHeaderLength])
		}
	}
}

func TestStatusCombine(t *testing.T) {
	if got := AemStatusSuccess.Combine(AemStatusNotImplemented); got != AemStatusNotImplemented {
		t.Errorf("Combine(Success, NotImplemented) = %v", got)
	}
	if got := AemStatusTimedOut.Combine(AemStatusNotImplemented); got != AemStatusTimedOut {
		t.Errorf("Combine(TimedOut, NotImplemented) = %v", got)
	}
	if got := AcmpStatusSuccess.Combine(AcmpStatusSuccess); got != AcmpStatusSuccess {
		t.Errorf("Combine(Success, Success) = %v", got)
	}
}

func TestEntityDescriptorRoundTrip(t *testing.T) {
	in := &EntityDescriptor{
		EntityID:             0x0011223344556677,
		EntityModelID:        0x1122334455667788,
		Capabilities:         entity.CapabilityAemSupported,
		TalkerStreamSources:  2,
		ListenerStreamSinks:  4,
		EntityName:           FixedString("Test entity"),
		SerialNumber:         FixedString("0001"),
		ConfigurationsCount:  1,
		CurrentConfiguration: 0,
	}
	out, err := ParseEntityDescriptor(in.MarshalDescriptor())
	if err != nil {
		t.Fatal(err)
	}
	if diff, equal := messagediff.PrettyDiff(*in, *out); !equal {
		t.Fatalf("entity descriptor round trip mismatch:\n%s", diff)
	}
	if out.EntityName.String() != "Test entity" {
		t.Errorf("entity name %q", out.EntityName.String())
	}
}
