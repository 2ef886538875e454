/*
Command portrait extracts a character illustration from a Unity asset
bundle and writes it as an image.

	portrait -in char_002_amiya.ab -codename amiya -out amiya.png
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spaghettifunk/portrait/engine"
	"github.com/spaghettifunk/portrait/engine/config"
	"github.com/spaghettifunk/portrait/engine/core"
	"github.com/spaghettifunk/portrait/engine/imaging"
)

func main() {
	in := flag.String("in", "", "asset bundle to read, optionally zstd compressed")
	codename := flag.String("codename", "", "character codename, e.g. amiya or amiya#2")
	skin := flag.Bool("skin", false, "extract the skin illustration")
	out := flag.String("out", "", "output file, - for stdout (default <codename>.<format>)")
	configPath := flag.String("config", "", "TOML configuration file")
	format := flag.String("format", "", "output format: png, jpeg, bmp or tiff")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *in == "" || *codename == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		core.LogFatal("loading config: %s", err)
	}
	if *format != "" {
		cfg.Output.Format = *format
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	f, err := imaging.ParseFormat(cfg.Output.Format)
	if err != nil {
		core.LogFatal(err.Error())
	}

	e, err := engine.New(cfg)
	if err != nil {
		core.LogFatal("starting engine: %s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	go func() {
		<-sigCh
		_ = e.Shutdown()
		os.Exit(1)
	}()

	data, err := e.ExtractFile(*in, *codename, *skin)
	if err != nil {
		_ = e.Shutdown()
		core.LogFatal("extracting %s from %s: %s", *codename, *in, err)
	}

	target := *out
	if target == "" {
		target = *codename + f.Extension()
	}
	if target == "-" {
		_, err = os.Stdout.Write(data)
	} else {
		err = os.WriteFile(target, data, 0o644)
	}
	if err != nil {
		_ = e.Shutdown()
		core.LogFatal("writing output: %s", err)
	}
	if target != "-" {
		core.LogInfo("wrote %s (%s)", target, humanize.Bytes(uint64(len(data))))
	}

	if err := e.Shutdown(); err != nil {
		core.LogFatal(err.Error())
	}
}
