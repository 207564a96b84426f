// Command hawkbit-agent is the process entrypoint: it parses flags, loads
// the INI config file, builds the logger and hands off to the Service Glue.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/edgefleet/hawkbit-agent/cmn/log"
	"github.com/edgefleet/hawkbit-agent/config"
	"github.com/edgefleet/hawkbit-agent/svc"
)

// Exit codes per spec §6.
const (
	exitOK                = 0
	exitArgsOrRunOnceFail = 1 // argument-parse error, or run-once tick failure
	exitNoConfigGiven     = 2
	exitConfigNotFound    = 3
	exitConfigInvalid     = 4
)

var version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "hawkbit-agent"
	app.Usage = "connects this device to a hawkBit update server"
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config-file, c", Usage: "path to the INI config file"},
		cli.BoolFlag{Name: "debug, d", Usage: "force log_level=debug regardless of the config file"},
		cli.BoolFlag{Name: "run-once, r", Usage: "poll exactly once, then exit"},
		cli.BoolFlag{Name: "output-systemd, s", Usage: "log to the systemd journal instead of stderr"},
	}

	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitArgsOrRunOnceFail)
	}
}

func run(c *cli.Context) error {
	path := c.String("config-file")
	if path == "" {
		fmt.Fprintln(os.Stderr, "no config file given")
		os.Exit(exitNoConfigGiven)
	}

	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "config file not found:", err)
			os.Exit(exitConfigNotFound)
		}
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		os.Exit(exitConfigInvalid)
	}

	level := cfg.LogLevel
	if c.Bool("debug") {
		level = log.LevelDebug
	}

	var zapLogger = buildLogger(level, c.Bool("output-systemd"))
	defer zapLogger.Sync() //nolint:errcheck

	service := &svc.Service{
		Cfg:     cfg,
		ZapLog:  zapLogger,
		RunOnce: c.Bool("run-once"),
	}

	if err := service.Run(); err != nil {
		zapLogger.Error("agent exited with error", log.Err(err))
		os.Exit(exitArgsOrRunOnceFail)
	}
	return nil
}

func buildLogger(level log.Level, outputSystemd bool) *zap.Logger {
	if outputSystemd {
		if core, ok := svc.NewJournalCore(log.Enabler(level)); ok {
			return log.New(level, core)
		}
	}
	return log.New(level, nil)
}
