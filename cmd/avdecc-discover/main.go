// Copyright (C) 2024 The Avdecc-Go Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command avdecc-discover binds to a network interface, discovers the
// AVDECC entities on the attached network and prints them.
package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/alecthomas/kong"

	"github.com/avdecc-go/avdecc/lib/engine"
	"github.com/avdecc-go/avdecc/lib/entity"
	"github.com/avdecc-go/avdecc/lib/logger"
	"github.com/avdecc-go/avdecc/lib/transport"
)

type cli struct {
	Interface string        `short:"i" required:"" help:"Network interface to bind."`
	Timeout   time.Duration `short:"t" default:"5s" help:"How long to listen for entities."`
	JSON      bool          `help:"Print entities as JSON."`
	Debug     []string      `help:"Debug logging facilities to enable."`
}

func main() {
	var args cli
	kctx := kong.Parse(&args,
		kong.Name("avdecc-discover"),
		kong.Description("Discover IEEE 1722.1 entities on an AVB network."))

	for _, facility := range args.Debug {
		logger.DefaultLogger.SetDebug(facility, true)
	}

	kctx.FatalIfErrorf(run(args))
}

func run(args cli) error {
	t, err := transport.NewEthernetTransport(args.Interface)
	if err != nil {
		return err
	}
	defer t.Close()

	e, err := engine.New(t, engine.Options{})
	if err != nil {
		return err
	}
	defer e.Shutdown()

	le := entity.NewLocalEntity(controllerID(t.LocalMac()), 0, 0, entity.ControllerCapabilityImplemented)
	if err := e.RegisterLocalEntity(le); err != nil {
		return err
	}
	if err := e.DiscoverRemoteEntities(); err != nil {
		return err
	}

	time.Sleep(args.Timeout)

	entities := e.RemoteEntities()
	sort.Slice(entities, func(i, j int) bool { return entities[i].EntityID < entities[j].EntityID })

	if args.JSON {
		return json.NewEncoder(os.Stdout).Encode(entities)
	}
	for _, ent := range entities {
		role := ""
		if ent.TalkerStreamSources > 0 {
			role += "T"
		}
		if ent.ListenerStreamSinks > 0 {
			role += "L"
		}
		if ent.ControllerCapabilities.Has(entity.ControllerCapabilityImplemented) {
			role += "C"
		}
		fmt.Printf("%v  model %v  %-3s  talkers %d  listeners %d  gptp %v/%d\n",
			ent.EntityID, ent.EntityModelID, role,
			ent.TalkerStreamSources, ent.ListenerStreamSinks,
			ent.GptpGrandmasterID, ent.GptpDomainNumber)
	}
	fmt.Printf("%d entities\n", len(entities))
	return nil
}

// controllerID derives an EUI-64 entity ID from the interface MAC.
func controllerID(mac entity.MacAddress) entity.ID {
	var bs [8]byte
	copy(bs[:3], mac[:3])
	bs[3] = 0xFF
	bs[4] = 0xFE
	copy(bs[5:], mac[3:])
	return entity.ID(binary.BigEndian.Uint64(bs[:]))
}
