// Package run is the device service: relay, button, MQTT and web until stop or restart.
package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/wifionoff/cmd/wifionoff/subcmd"
	"github.com/temoto/wifionoff/internal/device"
	"github.com/temoto/wifionoff/internal/state"
	"github.com/temoto/wifionoff/log2"
	"golang.org/x/sys/unix"
)

const modName string = "run"

// EX_TEMPFAIL, service manager is expected to start us again
const ExitRestart = 75

const stopTimeout = 5 * time.Second

var Mod = subcmd.Mod{Name: modName, Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	log := log2.ContextValueLogger(ctx)
	g.MustInit(ctx, config)
	log.Debugf("config=%+v", g.Config)

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigch)
	go func() {
		select {
		case sig := <-sigch:
			log.Infof("signal=%v stopping", sig)
			g.Stop()
		case <-g.Alive.StopChan():
		}
	}()

	subcmd.SdNotify(daemon.SdNotifyReady)
	err := g.Run(ctx)
	subcmd.SdNotify(daemon.SdNotifyStopping)
	if !g.StopWait(stopTimeout) {
		log.Errorf("tasks did not stop in %v", stopTimeout)
	}
	closeErr := g.Close()

	if err == device.ErrRestart {
		g.Error(closeErr, "close before restart")
		return Restart(g.Config.Restart, log.Infof)
	}
	if err != nil {
		return err
	}
	return closeErr
}

// Restart does not return on success.
func Restart(mode string, logf func(string, ...interface{})) error {
	switch mode {
	case state.RestartReboot:
		logf("restart: reboot")
		unix.Sync()
		err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART)
		return errors.Annotate(err, "reboot")

	case state.RestartExit, "":
		logf("restart: exit code=%d", ExitRestart)
		os.Exit(ExitRestart)
		return nil

	default:
		return errors.NotValidf("restart=%q", mode)
	}
}
