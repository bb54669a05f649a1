package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/cdpfleet/cdpfleet/internal/logging"
	"github.com/cdpfleet/cdpfleet/internal/wconfig"
	"github.com/cdpfleet/cdpfleet/internal/wserver"
)

func runWorker(args []string) error {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(args)

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	cfg, err := wconfig.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.PrintBanner("worker", version, cfg.Addr)
	logging.PrintAccessURL(cfg.Addr)

	server, err := wserver.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx)
}
