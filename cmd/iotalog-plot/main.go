// Command iotalog-plot renders one day of channel data as a PNG. The
// day is read from the local archive when present and fetched from the
// device (without persisting) otherwise.
//
// Usage:
//
//	iotalog-plot [flags]
//
// The flags are:
//
//	-d day
//	      ISO date (2006-01-02) or a relative day offset such as -1
//	      for yesterday (the default)
//	-c indices
//	      comma-separated 1-based power channel indices (default all)
//	-u unit
//	      unit to plot: watts, amps, wh, va, var, varh, pf (default watts)
//	-o path
//	      output PNG path (default <prefix>_<date>.png)
//	-retry int
//	      attempts per device request (default from IOTAWATT_RETRIES)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/openwatt/iotalog/internal/api"
	"github.com/openwatt/iotalog/internal/archive"
	"github.com/openwatt/iotalog/internal/cli"
	"github.com/openwatt/iotalog/internal/config"
	"github.com/openwatt/iotalog/internal/models"
	"github.com/openwatt/iotalog/internal/series"
	"github.com/openwatt/iotalog/internal/timeutil"
)

// plotPoints is the approximate number of samples kept per line after
// filtering; a day at 5 s intervals has far more than a PNG can show.
const plotPoints = 2000

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("iotalog-plot", flag.ExitOnError)
	dayFlag := fs.String("d", "-1", "ISO date or relative day offset")
	chanFlag := fs.String("c", "", "comma-separated 1-based power channel indices (default all)")
	unit := fs.String("u", series.UnitWatts, "unit to plot")
	outFlag := fs.String("o", "", "output PNG path")
	retry := fs.Int("retry", 0, "attempts per device request (default from IOTAWATT_RETRIES)")
	fs.Parse(args)

	day, err := parseDay(*dayFlag, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -d value:", err)
		return cli.ExitUsage
	}
	indices, err := parseChannels(*chanFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -c value:", err)
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

	store, err := archive.NewStore(cfg.DataPath, cfg.FilePrefix, cfg.CacheSize, logger)
	if err != nil {
		logger.Error(err)
		return cli.ExitCode(err)
	}

	ds, err := dayData(ctx, cfg, store, day, logger)
	if err != nil {
		logger.Error(err)
		return cli.ExitCode(err)
	}

	out := *outFlag
	if out == "" {
		out = fmt.Sprintf("%s_%s.png", cfg.FilePrefix, day.Format(timeutil.ISODate))
	}

	if err := render(ds, indices, *unit, day, out); err != nil {
		logger.Error(err)
		return cli.ExitCode(err)
	}

	fmt.Println("wrote", out)
	return cli.ExitOK
}

// dayData loads the day from the archive when present, and fetches it
// from the device otherwise. Fetched days are not persisted; only the
// downloader writes archives.
func dayData(ctx context.Context, cfg config.Config, store *archive.Store, day time.Time, logger *logrus.Logger) (*series.DaySeries, error) {
	if store.Has(day) {
		logger.WithField("day", day.Format(timeutil.ISODate)).Debug("plotting from archive")
		return store.Load(day)
	}

	client := api.NewClient(cfg, logger)
	logs, err := client.Datalogs(ctx)
	if err != nil {
		return nil, err
	}
	current, ok := models.CurrentDatalog(logs)
	if !ok {
		return nil, api.ErrNoDatalog
	}

	first := time.Unix(current.FirstKey, 0).Local()
	last := time.Unix(current.LastKey, 0).Local()
	// Out of range when the day ends at or before the first logged
	// instant, or starts after the last one.
	if !timeutil.NextDay(day).After(first) || day.After(last) {
		return nil, fmt.Errorf("%w: %s not in %s to %s", cli.ErrDayOutOfRange,
			day.Format(timeutil.ISODate), timeutil.FormatNoTZ(first), timeutil.FormatNoTZ(last))
	}

	start := timeutil.DayStart(day)
	if start.Before(first) {
		start = first
	}
	return client.ChannelData(ctx, api.DataRequest{
		Start: start,
		End:   timeutil.DayEnd(day),
	})
}

func render(ds *series.DaySeries, indices []int, unit string, day time.Time, out string) error {
	names, err := selectChannels(ds, indices)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s, %s", unit, day.Format(timeutil.ISODate))
	p.X.Tick.Marker = plot.TimeTicks{
		Format: "15:04",
		Time:   plot.UnixTimeIn(time.Local),
	}
	p.Y.Label.Text = unit
	p.Add(plotter.NewGrid())

	stride := ds.Len()/plotPoints + 1
	width := 2 * stride // smooth over roughly the decimation window

	for i, name := range names {
		y, err := ds.ChannelData(name, unit)
		if err != nil {
			return err
		}
		y = series.Decimate(series.Lowpass(y, width), stride)
		ts := series.DecimateInt64(ds.Time, stride)

		xys := make(plotter.XYs, len(y))
		for j := range y {
			xys[j].X = float64(ts[j])
			xys[j].Y = y[j]
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("failed to build line for %s: %w", name, err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(name, line)
	}

	if err := p.Save(12*vg.Inch, 5*vg.Inch, out); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	return nil
}

// selectChannels maps 1-based power channel indices to names; nil
// indices select every power channel.
func selectChannels(ds *series.DaySeries, indices []int) ([]string, error) {
	if indices == nil {
		return ds.IChannels, nil
	}
	names := make([]string, len(indices))
	for i, idx := range indices {
		if idx < 1 || idx > len(ds.IChannels) {
			return nil, fmt.Errorf("%w: %d (device has %d power channels)",
				cli.ErrChannelRange, idx, len(ds.IChannels))
		}
		names[i] = ds.IChannels[idx-1]
	}
	return names, nil
}

var relativeDay = regexp.MustCompile(`^-?\d+$`)

// parseDay accepts an ISO date or a relative day offset (0 = today,
// -1 = yesterday). A bare offset defaults into the past: "1" also means
// one day back.
func parseDay(s string, now time.Time) (time.Time, error) {
	if relativeDay.MatchString(s) {
		offset, err := strconv.Atoi(s)
		if err != nil {
			return time.Time{}, err
		}
		if offset > 0 {
			offset = -offset
		}
		return timeutil.DayStart(now.AddDate(0, 0, offset)), nil
	}
	day, err := timeutil.ParseLocal(s)
	if err != nil {
		return time.Time{}, err
	}
	return timeutil.DayStart(day), nil
}

func parseChannels(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	indices := make([]int, len(parts))
	for i, part := range parts {
		idx, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("bad channel index %q", part)
		}
		indices[i] = idx
	}
	return indices, nil
}
