// Package eeprom inspects persistent configuration region without touching hardware.
package eeprom

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/wifionoff/cmd/wifionoff/subcmd"
	"github.com/temoto/wifionoff/internal/state"
	"github.com/temoto/wifionoff/internal/store"
	"github.com/temoto/wifionoff/log2"
)

const modName string = "eeprom"

var Mod = subcmd.Mod{Name: modName, Main: Main}

type options struct {
	validate bool
	reset    bool
}

func Main(ctx context.Context, config *state.Config) error {
	flagset := flag.NewFlagSet(modName, flag.ContinueOnError)
	opt := options{}
	flagset.BoolVar(&opt.validate, "validate", false, "reinitialize region when version or checksum mismatch")
	flagset.BoolVar(&opt.reset, "reset", false, "factory defaults")
	args := flag.Args()
	if len(args) > 0 {
		args = args[1:]
	}
	if err := flagset.Parse(args); err != nil {
		return errors.Annotate(err, modName)
	}

	g := state.GetGlobal(ctx)
	log := log2.ContextValueLogger(ctx)
	log.Debugf("eeprom path=%q layout=%s validate=%t reset=%t", config.Store.Path, config.Layout().Name, opt.validate, opt.reset)
	if err := g.InitStore(config); err != nil {
		return err
	}
	defer g.Medium.Close()
	return execute(g.Store, opt, os.Stdout)
}

func execute(s *store.Store, opt options, w io.Writer) error {
	fmt.Fprint(w, s.Dump())
	switch {
	case opt.reset:
		if err := s.Reinitialize(); err != nil {
			return errors.Annotate(err, "eeprom reset")
		}
		fmt.Fprintf(w, "reset to defaults\n")

	case opt.validate:
		result, err := s.InitializeIfInvalid()
		if err != nil {
			return errors.Annotate(err, "eeprom validate")
		}
		if !result.WasReinitialized {
			return nil
		}
		fmt.Fprintf(w, "invalid, reinitialized\n")

	default:
		return nil
	}
	fmt.Fprint(w, s.Dump())
	return nil
}
