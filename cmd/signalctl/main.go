package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/signalctl/internal/api"
	"github.com/danmuck/signalctl/internal/bridge"
	"github.com/danmuck/signalctl/internal/config"
	"github.com/danmuck/signalctl/internal/iso"
	"github.com/danmuck/signalctl/internal/observability"
	"github.com/danmuck/signalctl/internal/terminal"
	"github.com/rs/zerolog/log"
)

var version = "dev"

func main() {
	path := flag.String("config", "signal.toml", "path to the TOML configuration")
	initOnly := flag.Bool("init", false, "write a configuration template and exit")
	force := flag.Bool("force", false, "overwrite an existing file with -init")
	flag.Parse()

	if *initOnly {
		if err := config.WriteTemplate(*path, *force); err != nil {
			fmt.Fprintf(os.Stderr, "signalctl: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote config template to %s\n", *path)
		return
	}

	observability.InitLogger("signalctl")
	if err := run(*path); err != nil {
		fmt.Fprintf(os.Stderr, "signalctl: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	store := config.NewFileStore(path, cfg.Specification.Path)
	spec, err := store.LoadSpec()
	if err != nil {
		return err
	}

	session := terminal.NewSession(cfg.TerminalOptions(), iso.NewJSONCodec(spec), nil)
	b := bridge.New(session, store, cfg)
	defer b.Close()

	sessionErr := make(chan error, 1)
	go func() {
		sessionErr <- session.Run(ctx)
	}()
	log.Info().
		Str("version", version).
		Str("host", cfg.HostAddr()).
		Str("spec", spec.Name).
		Msg("signalctl started")

	if !cfg.API.Enabled {
		<-ctx.Done()
		return <-sessionErr
	}
	srv := api.New(b, cfg, api.Info{Name: "signalctl", Version: version})
	serveErr := srv.Serve(ctx)
	stop()
	return errors.Join(serveErr, <-sessionErr)
}
