// Package download implements the day-by-day retrieval loop: walk the
// device's logged range one calendar day at a time and persist each day
// that is complete and not yet archived.
package download

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openwatt/iotalog/internal/api"
	"github.com/openwatt/iotalog/internal/models"
	"github.com/openwatt/iotalog/internal/series"
	"github.com/openwatt/iotalog/internal/timeutil"
)

// DeviceFetcher is the slice of the device client the downloader needs.
type DeviceFetcher interface {
	Datalogs(ctx context.Context) ([]models.Datalog, error)
	ChannelData(ctx context.Context, req api.DataRequest) (*series.DaySeries, error)
}

// DayStore is the slice of the archive store the downloader needs.
type DayStore interface {
	Has(day time.Time) bool
	Save(day time.Time, ds *series.DaySeries) error
}

// Summary reports what one run did.
type Summary struct {
	Fetched int
	Skipped int
}

// Downloader walks the device's logged range and fills in missing day
// archives.
type Downloader struct {
	fetcher  DeviceFetcher
	store    DayStore
	logger   *logrus.Logger
	progress io.Writer
	now      func() time.Time
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithProgressWriter directs the dot-per-request progress output to w.
// By default progress is discarded.
func WithProgressWriter(w io.Writer) Option {
	return func(d *Downloader) { d.progress = w }
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Downloader) { d.now = now }
}

// New builds a Downloader.
func New(fetcher DeviceFetcher, store DayStore, logger *logrus.Logger, opts ...Option) *Downloader {
	d := &Downloader{
		fetcher:  fetcher,
		store:    store,
		logger:   logger,
		progress: io.Discard,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run downloads every complete, not-yet-archived day of the device's
// live datalog. A day is eligible only when it has fully elapsed on the
// wall clock (the in-progress current day is never fetched) and the log
// still covered its final second (a day the log stopped partway through
// is left alone rather than archived incomplete).
func (d *Downloader) Run(ctx context.Context) (Summary, error) {
	logs, err := d.fetcher.Datalogs(ctx)
	if err != nil {
		return Summary{}, err
	}
	current, ok := models.CurrentDatalog(logs)
	if !ok {
		return Summary{}, api.ErrNoDatalog
	}

	begin := time.Unix(current.FirstKey, 0).Local()
	end := time.Unix(current.LastKey, 0).Local()
	todayStart := timeutil.DayStart(d.now().Local())

	d.logger.WithFields(logrus.Fields{
		"first": timeutil.FormatNoTZ(begin),
		"last":  timeutil.FormatNoTZ(end),
	}).Info("device logged range")

	var sum Summary
	for day := timeutil.DayStart(begin); ; day = day.AddDate(0, 0, 1) {
		dayEnd := timeutil.NextDay(day)
		if dayEnd.After(todayStart) || dayEnd.After(end.Add(time.Second)) {
			break
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		if d.store.Has(day) {
			sum.Skipped++
			d.logger.WithField("day", day.Format(timeutil.ISODate)).Debug("archive exists, skipping")
			continue
		}

		start := day
		if timeutil.SameDay(day, begin) {
			// Logging started partway through the first day.
			start = begin
		}

		fmt.Fprintf(d.progress, "%s ", day.Format(timeutil.ISODate))
		ds, err := d.fetcher.ChannelData(ctx, api.DataRequest{
			Start:    start,
			End:      timeutil.DayEnd(day),
			Progress: d.dot,
		})
		fmt.Fprintln(d.progress)
		if err != nil {
			return sum, fmt.Errorf("failed to fetch %s: %w", day.Format(timeutil.ISODate), err)
		}

		if err := d.store.Save(day, ds); err != nil {
			return sum, fmt.Errorf("failed to save %s: %w", day.Format(timeutil.ISODate), err)
		}
		sum.Fetched++
	}

	d.logger.WithFields(logrus.Fields{
		"fetched": sum.Fetched,
		"skipped": sum.Skipped,
	}).Info("download complete")
	return sum, nil
}

// dot prints one progress dot per underlying device request.
func (d *Downloader) dot(begin, end, t0, t1 int64) {
	fmt.Fprint(d.progress, ".")
}
