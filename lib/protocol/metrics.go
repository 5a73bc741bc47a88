// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFramesEncoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "avdecc",
		Subsystem: "protocol",
		Name:      "frames_encoded_total",
		Help:      "Total number of PDUs serialized",
	}, []string{"subtype"})
	metricFramesDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "avdecc",
		Subsystem: "protocol",
		Name:      "frames_decoded_total",
		Help:      "Total number of PDUs parsed",
	}, []string{"subtype"})
)
