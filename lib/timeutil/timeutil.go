// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package timeutil provides the deadline timer driving the engine's
// retransmission, expiry and advertising schedules.
package timeutil

import "time"

// A DeadlineTimer is a time.Timer that is repeatedly re-armed to absolute
// deadlines. It encapsulates the stop-and-drain discipline mandated by the
// time.Timer documentation: a timer may only be Reset when stopped with
// its channel drained, which is easy to get wrong when the waiter also
// wakes up for other reasons (the engine's timer loop is kicked whenever
// a new command or advertisement changes the earliest deadline).
type DeadlineTimer struct {
	t *time.Timer
}

// NewDeadlineTimer returns a timer that will not fire until armed with
// Reset.
func NewDeadlineTimer() *DeadlineTimer {
	t := time.NewTimer(0)
	if !t.Stop() {
		<-t.C
	}
	return &DeadlineTimer{t: t}
}

// C is the firing channel.
func (d *DeadlineTimer) C() <-chan time.Time {
	return d.t.C
}

// Reset arms the timer for the given deadline, regardless of whether the
// previous arming fired, was consumed, or is still pending. Deadlines in
// the past fire almost immediately; a minimum delay keeps a busy loop from
// spinning when work is already due.
func (d *DeadlineTimer) Reset(deadline time.Time) {
	wait := time.Until(deadline)
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	if !d.t.Stop() {
		select {
		case <-d.t.C:
		default:
		}
	}
	d.t.Reset(wait)
}

// Stop stops the timer and drains the channel so the timer can be
// collected.
func (d *DeadlineTimer) Stop() {
	if !d.t.Stop() {
		select {
		case <-d.t.C:
		default:
		}
	}
}
