// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package sync provides the engine's mutexes and wait groups. With the
// "sync" debug facility enabled they are swapped for instrumented variants
// that log slow holders; the engine delivers observer callbacks off its
// state lock, and a long hold showing up here usually means a callback
// found a way back onto it.
package sync

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/avdecc-go/avdecc/lib/logger"
)

var (
	l     = logger.DefaultLogger.NewFacility("sync", "Lock instrumentation")
	debug = logger.DefaultLogger.ShouldDebug("sync")

	// holdThreshold is how long a lock may be held or waited for before
	// the holder is logged. AVDECCLOCKTHRESHOLD overrides it, in
	// milliseconds.
	holdThreshold = 100 * time.Millisecond
)

func init() {
	if n, _ := strconv.Atoi(os.Getenv("AVDECCLOCKTHRESHOLD")); n > 0 {
		holdThreshold = time.Duration(n) * time.Millisecond
	}
	l.Debugf("lock logging enabled at %v threshold", holdThreshold)
}

type Mutex interface {
	Lock()
	Unlock()
}

type RWMutex interface {
	Mutex
	RLock()
	RUnlock()
}

type WaitGroup interface {
	Add(int)
	Done()
	Wait()
}

func NewMutex() Mutex {
	if debug {
		return &loggedMutex{}
	}
	return &sync.Mutex{}
}

func NewRWMutex() RWMutex {
	if debug {
		return &loggedRWMutex{
			unlockers: make(chan holder, 1024),
		}
	}
	return &sync.RWMutex{}
}

func NewWaitGroup() WaitGroup {
	if debug {
		return &loggedWaitGroup{}
	}
	return &sync.WaitGroup{}
}

type holder struct {
	at   string
	time time.Time
	goid int
}

func (h holder) String() string {
	if h.at == "" {
		return "not held"
	}
	return fmt.Sprintf("at %s goid: %d for %s", h.at, h.goid, time.Since(h.time))
}

type loggedMutex struct {
	sync.Mutex
	holder holder
}

func (m *loggedMutex) Lock() {
	m.Mutex.Lock()
	m.holder = getHolder()
}

func (m *loggedMutex) Unlock() {
	duration := time.Since(m.holder.time)
	if duration >= holdThreshold {
		l.Debugf("Mutex held for %v. Locked at %s unlocked at %s", duration, m.holder.at, getHolder().at)
	}
	m.holder = holder{}
	m.Mutex.Unlock()
}

type loggedRWMutex struct {
	sync.RWMutex
	holder    holder
	unlockers chan holder
}

func (m *loggedRWMutex) Lock() {
	start := time.Now()
	m.RWMutex.Lock()
	m.holder = getHolder()

	duration := time.Since(start)
	if duration > holdThreshold {
		var unlockerStrings []string
	drain:
		for {
			select {
			case holder := <-m.unlockers:
				unlockerStrings = append(unlockerStrings, holder.String())
			default:
				break drain
			}
		}
		l.Debugf("RWMutex took %v to lock. Locked at %s. RUnlockers while locking: %v", duration, m.holder.at, unlockerStrings)
	}
}

func (m *loggedRWMutex) Unlock() {
	duration := time.Since(m.holder.time)
	if duration >= holdThreshold {
		l.Debugf("RWMutex held for %v. Locked at %s: unlocked at %s", duration, m.holder.at, getHolder().at)
	}
	m.holder = holder{}
	m.RWMutex.Unlock()
}

func (m *loggedRWMutex) RUnlock() {
	select {
	case m.unlockers <- getHolder():
	default:
	}
	m.RWMutex.RUnlock()
}

type loggedWaitGroup struct {
	sync.WaitGroup
}

func (wg *loggedWaitGroup) Wait() {
	start := time.Now()
	wg.WaitGroup.Wait()
	duration := time.Since(start)
	if duration >= holdThreshold {
		l.Debugf("WaitGroup took %v at %s", duration, getHolder())
	}
}

func getHolder() holder {
	_, file, line, _ := runtime.Caller(2)
	return holder{
		at:   fmt.Sprintf("%s:%d", file, line),
		time: time.Now(),
		goid: GoroutineID(),
	}
}

// GoroutineID returns the numeric ID of the calling goroutine, parsed from
// the runtime stack header. It exists for lock diagnostics and re-entrancy
// checks; never use it for synchronization.
func GoroutineID() int {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id int
	_, err := fmt.Sscanf(string(buf[:n]), "goroutine %d ", &id)
	if err != nil {
		return -1
	}
	return id
}
