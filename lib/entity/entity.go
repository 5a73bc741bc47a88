// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package entity

// Capability flags advertised in ADP ENTITY_AVAILABLE messages, as defined
// by IEEE 1722.1-2013 clause 6.2.1.10 and following.

type Capabilities uint32

const (
	CapabilityEfuMode                      Capabilities = 1 << 0
	CapabilityAddressAccessSupported       Capabilities = 1 << 1
	CapabilityGatewayEntity                Capabilities = 1 << 2
	CapabilityAemSupported                 Capabilities = 1 << 3
	CapabilityLegacyAvc                    Capabilities = 1 << 4
	CapabilityAssociationIDSupported       Capabilities = 1 << 5
	CapabilityAssociationIDValid           Capabilities = 1 << 6
	CapabilityVendorUniqueSupported        Capabilities = 1 << 7
	CapabilityClassASupported              Capabilities = 1 << 8
	CapabilityClassBSupported              Capabilities = 1 << 9
	CapabilityGptpSupported                Capabilities = 1 << 10
	CapabilityAemAuthenticationSupported   Capabilities = 1 << 11
	CapabilityAemAuthenticationRequired    Capabilities = 1 << 12
	CapabilityAemPersistentAcquire         Capabilities = 1 << 13
	CapabilityAemIdentifyControlIndexValid Capabilities = 1 << 14
	CapabilityAemInterfaceIndexValid       Capabilities = 1 << 15
	CapabilityGeneralControllerIgnore      Capabilities = 1 << 16
	CapabilityEntityNotReady               Capabilities = 1 << 17
)

func (c Capabilities) Has(f Capabilities) bool { return c&f == f }

type TalkerCapabilities uint16

const (
	TalkerCapabilityImplemented      TalkerCapabilities = 1 << 0
	TalkerCapabilityOtherSource      TalkerCapabilities = 1 << 9
	TalkerCapabilityControlSource    TalkerCapabilities = 1 << 10
	TalkerCapabilityMediaClockSource TalkerCapabilities = 1 << 11
	TalkerCapabilitySmpteSource      TalkerCapabilities = 1 << 12
	TalkerCapabilityMidiSource       TalkerCapabilities = 1 << 13
	TalkerCapabilityAudioSource      TalkerCapabilities = 1 << 14
	TalkerCapabilityVideoSource      TalkerCapabilities = 1 << 15
)

func (c TalkerCapabilities) Has(f TalkerCapabilities) bool { return c&f == f }

type ListenerCapabilities uint16

const (
	ListenerCapabilityImplemented    ListenerCapabilities = 1 << 0
	ListenerCapabilityOtherSink      ListenerCapabilities = 1 << 9
	ListenerCapabilityControlSink    ListenerCapabilities = 1 << 10
	ListenerCapabilityMediaClockSink ListenerCapabilities = 1 << 11
	ListenerCapabilitySmpteSink      ListenerCapabilities = 1 << 12
	ListenerCapabilityMidiSink       ListenerCapabilities = 1 << 13
	ListenerCapabilityAudioSink      ListenerCapabilities = 1 << 14
	ListenerCapabilityVideoSink      ListenerCapabilities = 1 << 15
)

func (c ListenerCapabilities) Has(f ListenerCapabilities) bool { return c&f == f }

type ControllerCapabilities uint32

const (
	ControllerCapabilityImplemented ControllerCapabilities = 1 << 0
)

func (c ControllerCapabilities) Has(f ControllerCapabilities) bool { return c&f == f }

// ConnectionFlags are carried in ACMP messages.
type ConnectionFlags uint16

const (
	ConnectionFlagClassB            ConnectionFlags = 1 << 0
	ConnectionFlagFastConnect       ConnectionFlags = 1 << 1
	ConnectionFlagSavedState        ConnectionFlags = 1 << 2
	ConnectionFlagStreamingWait     ConnectionFlags = 1 << 3
	ConnectionFlagSupportsEncrypted ConnectionFlags = 1 << 4
	ConnectionFlagEncryptedPdu      ConnectionFlags = 1 << 5
	ConnectionFlagTalkerFailed      ConnectionFlags = 1 << 6
)

func (c ConnectionFlags) Has(f ConnectionFlags) bool { return c&f == f }

// ValidTime bounds per IEEE 1722.1-2013 clause 6.2.1.6. The wire field is
// five bits in two second units.
const (
	MinValidTime     = 2
	MaxValidTime     = 62
	DefaultValidTime = 62
)

// ClampValidTime forces a valid time into the 2..62 even-second range.
func ClampValidTime(seconds int) int {
	if seconds < MinValidTime {
		return MinValidTime
	}
	if seconds > MaxValidTime {
		return MaxValidTime
	}
	return seconds &^ 1
}

// A DiscoveredEntity is the snapshot of what ADP has advertised about an
// entity, local or remote.
type DiscoveredEntity struct {
	EntityID               ID
	EntityModelID          ID
	MacAddress             MacAddress
	InterfaceIndex         uint16
	Capabilities           Capabilities
	TalkerStreamSources    uint16
	TalkerCapabilities     TalkerCapabilities
	ListenerStreamSinks    uint16
	ListenerCapabilities   ListenerCapabilities
	ControllerCapabilities ControllerCapabilities
	AvailableIndex         uint32
	GptpGrandmasterID      ID
	GptpDomainNumber       uint8
	IdentifyControlIndex   uint16
	AssociationID          ID
	ValidTime              int // seconds
}

// SameDiscoveryInfo reports whether a subsequent advertisement carries the
// same discovery-relevant information, per the onRemoteEntityUpdated
// contract. AvailableIndex is excluded; it changes on every advertisement.
func (e *DiscoveredEntity) SameDiscoveryInfo(o *DiscoveredEntity) bool {
	return e.Capabilities == o.Capabilities &&
		e.TalkerStreamSources == o.TalkerStreamSources &&
		e.TalkerCapabilities == o.TalkerCapabilities &&
		e.ListenerStreamSinks == o.ListenerStreamSinks &&
		e.ListenerCapabilities == o.ListenerCapabilities &&
		e.ControllerCapabilities == o.ControllerCapabilities &&
		e.GptpGrandmasterID == o.GptpGrandmasterID &&
		e.GptpDomainNumber == o.GptpDomainNumber &&
		e.AssociationID == o.AssociationID &&
		e.ValidTime == o.ValidTime
}

// A LocalEntity is an entity owned by this protocol engine instance.
type LocalEntity struct {
	DiscoveredEntity
}

// NewLocalEntity returns a local entity with the given identity and
// capabilities and the default valid time.
func NewLocalEntity(id, modelID ID, caps Capabilities, controllerCaps ControllerCapabilities) *LocalEntity {
	return &LocalEntity{
		DiscoveredEntity: DiscoveredEntity{
			EntityID:               id,
			EntityModelID:          modelID,
			Capabilities:           caps,
			ControllerCapabilities: controllerCaps,
			ValidTime:              DefaultValidTime,
		},
	}
}
