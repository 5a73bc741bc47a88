// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package entity defines the identifiers and entity snapshots shared by the
// discovery, enumeration and connection management protocols.
package entity

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// An ID is a 64 bit EUI-64 entity identifier. The zero value means "unset";
// on the wire it doubles as the wildcard target in ENTITY_DISCOVER messages.
type ID uint64

// UninitializedID is the unset entity identifier.
const UninitializedID ID = 0

func IDFromBytes(bs []byte) ID {
	if len(bs) != 8 {
		panic("incorrect length of byte slice representing entity ID")
	}
	return ID(binary.BigEndian.Uint64(bs))
}

func IDFromString(s string) (ID, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return UninitializedID, fmt.Errorf("parsing entity ID: %w", err)
	}
	return ID(v), nil
}

// IsValid reports whether the ID is set.
func (i ID) IsValid() bool {
	return i != UninitializedID
}

func (i ID) String() string {
	return fmt.Sprintf("0x%016X", uint64(i))
}

// VendorID returns the OUI-24 part of the identifier.
func (i ID) VendorID() uint32 {
	return uint32(i >> 40)
}

func (i ID) PutBytes(bs []byte) {
	binary.BigEndian.PutUint64(bs, uint64(i))
}

func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *ID) UnmarshalText(bs []byte) error {
	id, err := IDFromString(string(bs))
	if err != nil {
		return err
	}
	*i = id
	return nil
}

// A MacAddress is a 6 byte link layer address. The all-zero value is
// invalid.
type MacAddress [6]byte

var ErrInvalidMacAddress = errors.New("invalid MAC address")

func MacAddressFromBytes(bs []byte) MacAddress {
	var m MacAddress
	if len(bs) != len(m) {
		panic("incorrect length of byte slice representing MAC address")
	}
	copy(m[:], bs)
	return m
}

func MacAddressFromString(s string) (MacAddress, error) {
	var m MacAddress
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != len(m) {
		return m, ErrInvalidMacAddress
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return m, ErrInvalidMacAddress
		}
		m[i] = byte(v)
	}
	return m, nil
}

// IsValid reports whether the address is not the all-zero reserved value.
func (m MacAddress) IsValid() bool {
	return m != MacAddress{}
}

func (m MacAddress) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// A StreamIdentification names one stream endpoint of an entity.
type StreamIdentification struct {
	EntityID    ID
	StreamIndex uint16
}

func (s StreamIdentification) String() string {
	return fmt.Sprintf("%v/%d", s.EntityID, s.StreamIndex)
}
