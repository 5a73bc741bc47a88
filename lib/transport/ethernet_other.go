// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

//go:build !linux

package transport

import "errors"

var errUnsupportedPlatform = errors.New("raw Ethernet transport requires Linux")

// NewEthernetTransport is only implemented on Linux.
func NewEthernetTransport(interfaceName string) (Interface, error) {
	return nil, errUnsupportedPlatform
}
