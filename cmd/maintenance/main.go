// Package main sweeps expired sessions from the data layer. Run it from
// cron or a systemd timer; the sweep is idempotent.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kmarchand/studioforge/internal/dbal"
	"github.com/kmarchand/studioforge/internal/platform/config"
	"github.com/kmarchand/studioforge/internal/platform/otel"
)

func main() {
	timeout := flag.Duration("timeout", 30*time.Second, "maximum run time")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	shutdown, err := otel.Setup(ctx, "studioforge-maintenance")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = shutdown(context.Background()) }()

	layer, err := dbal.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = layer.Close() }()

	removed, err := layer.DAL.Sessions.Sweep(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("removed %d expired sessions\n", removed)
}
