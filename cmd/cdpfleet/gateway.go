package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/cdpfleet/cdpfleet/internal/gwconfig"
	"github.com/cdpfleet/cdpfleet/internal/gwserver"
	"github.com/cdpfleet/cdpfleet/internal/logging"
)

func runGateway(args []string) error {
	fs := flag.NewFlagSet("gateway", flag.ExitOnError)
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(args)

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	cfg, err := gwconfig.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.PrintBanner("gateway", version, cfg.Addr)
	logging.PrintAccessURL(cfg.Addr)

	server, err := gwserver.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx)
}
