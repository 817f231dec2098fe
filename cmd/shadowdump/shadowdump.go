// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Command shadowdump prints the effective interop configuration, the native
// layout synthesized for the built-in stream callback and, optionally, the
// object tracker report after a round trip through the shadow's vtables.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dblohm7/dxinterop"
	"github.com/dblohm7/dxinterop/buffer"
	"github.com/dblohm7/dxinterop/com"
)

var configPath string
var dumpConfig bool
var dumpLayouts bool
var dumpTracker bool

func init() {
	flag.Usage = usage
	flag.StringVar(&configPath, "config", "", "TOML configuration file")
	flag.BoolVar(&dumpConfig, "show-config", true, "dump the effective configuration")
	flag.BoolVar(&dumpLayouts, "layouts", true, "dump shadow layouts")
	flag.BoolVar(&dumpTracker, "tracker", false, "call through the shadow and dump the tracker report")
	flag.Parse()
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	logger := dxinterop.Logger()

	cfg := dxinterop.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = dxinterop.LoadConfig(configPath); err != nil {
			logger.Fatal("loading config", "path", configPath, "err", err)
		}
	}
	if dumpTracker {
		cfg.EnableObjectTracking = true
	}
	cfg.ApplyLogLevel()

	host, err := com.NewHost(cfg, com.WithTracker(com.NewTracker(true)))
	if err != nil {
		logger.Fatal("creating host", "err", err)
	}

	if dumpConfig {
		runDumpConfig(host)
	}

	backing, err := buffer.NewDataStream(host.Allocator(), 64, true)
	if err != nil {
		logger.Fatal("allocating stream", "err", err)
	}
	defer backing.Close()

	cb := com.NewStreamCallback(backing)
	shadow, err := com.GetOrCreateContainer(host, cb)
	if err != nil {
		logger.Fatal("creating shadow", "err", err)
	}
	defer shadow.Close()

	if dumpLayouts {
		runDumpLayouts(shadow)
	}
	if dumpTracker {
		if err := runDumpTracker(host, shadow); err != nil {
			logger.Fatal("tracker round trip", "err", err)
		}
	}
}

func runDumpConfig(host *com.Host) {
	data, err := host.Config().Marshal()
	if err != nil {
		dxinterop.Logger().Error("encoding config", "err", err)
		return
	}
	fmt.Printf("Config:\n\n%s\n", data)
}

func runDumpLayouts(shadow *com.ShadowContainer) {
	layout := shadow.Layout()
	fmt.Printf("%d shadow entries:\n\n", len(layout))
	for i, e := range layout {
		fmt.Printf("Index %2d: %s at %s, %d slots\n", i, e.Interface, e.Handle, e.Slots)
		for _, a := range e.Aliases {
			fmt.Printf("\tanswers %s\n", a)
		}
	}
	_, n := shadow.InterfaceIDs()
	fmt.Printf("\n%d interface IDs exported\n\n", n)
}

func runDumpTracker(host *com.Host, shadow *com.ShadowContainer) error {
	unk := host.Wrap(shadow.Unknown())
	defer unk.Close()
	// unk must own a reference of its own before it can release one.
	if _, err := unk.AddReference(); err != nil {
		return err
	}

	stream, err := com.QueryInterface[com.Stream](unk)
	if err != nil {
		return err
	}
	defer stream.Close()

	msg := []byte("shadowdump")
	if _, err := stream.Write(msg); err != nil {
		return err
	}
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return err
	}
	got := make([]byte, len(msg))
	if _, err := io.ReadFull(stream, got); err != nil {
		return err
	}
	size, err := stream.Size()
	if err != nil {
		return err
	}

	fmt.Printf("Round trip read %q, stream size %d, native refs %d\n\n", got, size, shadow.RefCount())
	fmt.Print(host.Tracker().Report())
	return nil
}
