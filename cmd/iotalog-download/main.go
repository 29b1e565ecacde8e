// Command iotalog-download fills the local archive directory with one
// file per fully elapsed calendar day of the device's datalog, skipping
// days already on disk. The current day is never downloaded.
//
// Usage:
//
//	iotalog-download [flags]
//
// The flags are:
//
//	-retry int
//	      attempts per device request (default from IOTAWATT_RETRIES)
//
// Device location, credentials and the archive directory come from the
// IOTAWATT_* environment variables, or a .env file in the working
// directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openwatt/iotalog/internal/api"
	"github.com/openwatt/iotalog/internal/archive"
	"github.com/openwatt/iotalog/internal/cli"
	"github.com/openwatt/iotalog/internal/config"
	"github.com/openwatt/iotalog/internal/download"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("iotalog-download", flag.ExitOnError)
	retry := fs.Int("retry", 0, "attempts per device request (default from IOTAWATT_RETRIES)")
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		return cli.ExitUsage
	}
	if *retry > 0 {
		cfg.Retries = *retry
	}

	logger := cli.NewLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := archive.NewStore(cfg.DataPath, cfg.FilePrefix, cfg.CacheSize, logger)
	if err != nil {
		logger.Error(err)
		return cli.ExitCode(err)
	}

	client := api.NewClient(cfg, logger)
	dl := download.New(client, store, logger, download.WithProgressWriter(os.Stdout))

	sum, err := dl.Run(ctx)
	if err != nil {
		logger.Error(err)
		return cli.ExitCode(err)
	}

	fmt.Printf("downloaded %d day(s), skipped %d already archived\n", sum.Fetched, sum.Skipped)
	return cli.ExitOK
}
