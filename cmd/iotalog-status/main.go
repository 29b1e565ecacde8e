// Command iotalog-status prints selected sections of the device status
// report as tables. UNIX-timestamp fields are shown as local time.
//
// Usage:
//
//	iotalog-status [flags]
//
// The flags are:
//
//	-inputs
//	      show the voltage and power input section (default true)
//	-outputs
//	      show the computed outputs section
//	-wifi
//	      show the WiFi section
//	-stats
//	      show the device statistics section
//	-retry int
//	      attempts per device request (default from IOTAWATT_RETRIES)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openwatt/iotalog/internal/api"
	"github.com/openwatt/iotalog/internal/cli"
	"github.com/openwatt/iotalog/internal/config"
	"github.com/openwatt/iotalog/internal/display"
)

// timestampFields are the status fields holding UNIX timestamps.
var timestampFields = display.Converters{
	"firstkey":    display.TimestampLocal,
	"lastkey":     display.TimestampLocal,
	"connecttime": display.TimestampLocal,
	"starttime":   display.TimestampLocal,
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("iotalog-status", flag.ExitOnError)
	inputs := fs.Bool("inputs", true, "show the input section")
	outputs := fs.Bool("outputs", false, "show the outputs section")
	wifi := fs.Bool("wifi", false, "show the WiFi section")
	stats := fs.Bool("stats", false, "show the statistics section")
	retry := fs.Int("retry", 0, "attempts per device request (default from IOTAWATT_RETRIES)")
	fs.Parse(args)

	var kinds []api.StatusKind
	if *inputs {
		kinds = append(kinds, api.StatusInputs)
	}
	if *outputs {
		kinds = append(kinds, api.StatusOutputs)
	}
	if *wifi {
		kinds = append(kinds, api.StatusWifi)
	}
	if *stats {
		kinds = append(kinds, api.StatusStats)
	}
	if len(kinds) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to show: all sections disabled")
		return cli.ExitUsage
	}

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

	client := api.NewClient(cfg, logger)
	st, err := client.Status(ctx, kinds...)
	if err != nil {
		logger.Error(err)
		return cli.ExitCode(err)
	}

	if *inputs {
		fmt.Println("Inputs")
		display.List(os.Stdout, st.Inputs, nil, timestampFields)
	}
	if *outputs {
		fmt.Println("Outputs")
		display.List(os.Stdout, st.Outputs, nil, timestampFields)
	}
	if *wifi {
		fmt.Println("WiFi")
		display.Map(os.Stdout, st.Wifi, nil, timestampFields)
	}
	if *stats {
		fmt.Println("Statistics")
		display.Map(os.Stdout, st.Stats, nil, timestampFields)
	}
	return cli.ExitOK
}
