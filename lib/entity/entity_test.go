// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package entity

import "testing"

func TestIDString(t *testing.T) {
	id := ID(0x0011223344556677)
	if s := id.String(); s != "0x0011223344556677" {
		t.Errorf("String() = %q", s)
	}
	back, err := IDFromString(id.String())
	if err != nil {
		t.Fatal(err)
	}
	if back != id {
		t.Errorf("round trip %v != %v", back, id)
	}
	if UninitializedID.IsValid() {
		t.Error("zero ID must not be valid")
	}
}

func TestMacAddress(t *testing.T) {
	m, err := MacAddressFromString("91:e0:f0:01:00:00")
	if err != nil {
		t.Fatal(err)
	}
	if m != (MacAddress{0x91, 0xE0, 0xF0, 0x01, 0x00, 0x00}) {
		t.Errorf("parsed %v", m)
	}
	if m.String() != "91:E0:F0:01:00:00" {
		t.Errorf("String() = %q", m.String())
	}
	if (MacAddress{}).IsValid() {
		t.Error("all zero MAC must not be valid")
	}
	if _, err := MacAddressFromString("not-a-mac"); err == nil {
		t.Error("expected parse error")
	}
}

func TestClampValidTime(t *testing.T) {
	cases := []struct{ in, out int }{
		{0, 2},
		{1, 2},
		{2, 2},
		{7, 6},
		{62, 62},
		{63, 62},
		{100, 62},
	}
	for _, tc := range cases {
		if got := ClampValidTime(tc.in); got != tc.out {
			t.Errorf("ClampValidTime(%d) = %d, expected %d", tc.in, got, tc.out)
		}
	}
}

func TestSameDiscoveryInfo(t *testing.T) {
	a := DiscoveredEntity{
		EntityID:     1,
		Capabilities: CapabilityAemSupported,
		ValidTime:    62,
	}
	b := a
	b.AvailableIndex = 17 // excluded from comparison
	if !a.SameDiscoveryInfo(&b) {
		t.Error("available index must not count as a change")
	}
	b.GptpDomainNumber = 1
	if a.SameDiscoveryInfo(&b) {
		t.Error("gptp domain change not detected")
	}
}
