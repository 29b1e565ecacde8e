// Package iotalog downloads, archives and plots logged electrical usage
// data from an IoTaWatt home energy monitor.
//
// # Architecture
//
// The module is structured into several key packages:
//   - api: HTTP client for the device's status and query interface
//   - archive: one-file-per-day NPZ persistence with an LRU read cache
//   - download: the day-by-day retrieval loop
//   - series: in-memory day model, unit derivation and filtering
//   - display: tabular rendering of device status sections
//   - cli: exit codes and logger construction shared by the commands
//   - models: shared data structures
//
// Key Features
//
//   - Incremental Archiving:
//     Every fully elapsed calendar day of the device's datalog is
//     stored as one NPZ file; days already on disk are never fetched
//     again, so repeated runs only download what is missing.
//
//   - Unit Derivation:
//     Archives store volts, hz, watts and amps; watt-hours, apparent
//     power, reactive power and power factor are derived on lookup.
//
//   - Resilience:
//     Device requests are rate limited and retried with exponential
//     backoff, and downloads resume past malformed sample rows.
//
// Example Usage
//
//	client := api.NewClient(cfg, logger)
//	ds, err := client.ChannelData(ctx, api.DataRequest{
//	    Start: dayStart,
//	    End:   dayEnd,
//	})
//	watts, err := ds.ChannelData("Kitchen", series.UnitWatts)
//
// For more information about specific packages, see their respective
// documentation.
package iotalog
