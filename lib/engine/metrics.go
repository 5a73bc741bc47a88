// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "avdecc",
		Subsystem: "engine",
		Name:      "decode_errors_total",
		Help:      "Total number of inbound frames dropped as undecodable",
	})
	metricRetransmits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "avdecc",
		Subsystem: "engine",
		Name:      "retransmits_total",
		Help:      "Total number of command retransmissions",
	})
	metricTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "avdecc",
		Subsystem: "engine",
		Name:      "command_timeouts_total",
		Help:      "Total number of commands that exhausted their retries",
	})
	metricRemoteEntities = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "avdecc",
		Subsystem: "engine",
		Name:      "remote_entities",
		Help:      "Number of currently discovered remote entities",
	})
)
