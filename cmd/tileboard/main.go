package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"tileboard/internal/app"
	"tileboard/pkg/logx"
	"tileboard/widgets/builtin"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		logx.NewConsole("error").Error("tileboard exited", logx.Err(err))
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath     string
		addr        string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("tileboard", pflag.ContinueOnError)
	flagSet.StringVarP(&cfgPath, "config", "c", "./tileboard.yaml", "path to config file (YAML, JSON or JSONC)")
	flagSet.StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Println("tileboard", version)
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath, app.WithAddr(addr), app.WithWidgets(builtin.All()...))
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		return err
	}
	return a.Err()
}
