package main

import (
	"flag"
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/wifionoff/cmd/wifionoff/console"
	"github.com/temoto/wifionoff/cmd/wifionoff/eeprom"
	"github.com/temoto/wifionoff/cmd/wifionoff/run"
	"github.com/temoto/wifionoff/cmd/wifionoff/subcmd"
	"github.com/temoto/wifionoff/internal/state"
	"github.com/temoto/wifionoff/log2"
)

var log = log2.NewStderr(log2.LDebug)

var modules = []subcmd.Mod{
	run.Mod,
	eeprom.Mod,
	console.Mod,
}

var BuildVersion string = "unknown" // set by ldflags -X

func main() {
	flagConfig := flag.String("config", state.DefaultConfigName, "")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: wifionoff [option] [command] [command options]\n\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nCommands: run (default), eeprom, console\n")
	}
	flag.Parse()

	command := "run"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		log.Fatal(err)
	}

	if subcmd.SdNotify("start") {
		// under systemd assume journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	log.Infof("wifionoff version=%s starting %s", BuildVersion, mod.Name)

	ctx, g := state.NewContext(log)
	g.BuildVersion = BuildVersion

	fs, err := state.NewOsFullReader("")
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	config := state.MustReadConfig(log, fs, *flagConfig)
	if err := mod.Main(ctx, config); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
