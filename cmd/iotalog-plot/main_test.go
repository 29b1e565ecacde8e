package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/openwatt/iotalog/internal/archive"
	"github.com/openwatt/iotalog/internal/cli"
	"github.com/openwatt/iotalog/internal/config"
	"github.com/openwatt/iotalog/internal/series"
	"github.com/openwatt/iotalog/internal/timeutil"
)

// plotDevice serves the minimal device surface the plot tool touches:
// the datalog range, channel discovery and sample queries. Logging runs
// from mid-morning on the first day to mid-morning on the last.
type plotDevice struct {
	firstKey  int64
	lastKey   int64
	dataCalls int
}

func newPlotDevice() *plotDevice {
	return &plotDevice{
		firstKey: time.Date(2024, 3, 2, 8, 0, 0, 0, time.Local).Unix(),
		lastKey:  time.Date(2024, 3, 4, 10, 0, 0, 0, time.Local).Unix(),
	}
}

func (d *plotDevice) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{}
		if _, ok := r.URL.Query()["datalogs"]; ok {
			resp["datalogs"] = []map[string]any{
				{"id": "Current", "firstkey": d.firstKey, "lastkey": d.lastKey, "size": 1 << 20, "interval": 5},
			}
		}
		if _, ok := r.URL.Query()["outputs"]; ok {
			resp["outputs"] = []map[string]any{}
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("show") == "series" {
			json.NewEncoder(w).Encode(map[string]any{
				"series": []map[string]any{
					{"name": "Mains", "unit": "Volts"},
					{"name": "Kitchen", "unit": "Watts"},
				},
			})
			return
		}
		d.dataCalls++
		begin, _ := strconv.ParseInt(q.Get("begin"), 10, 64)
		end, _ := strconv.ParseInt(q.Get("end"), 10, 64)
		var rows [][]float64
		for ts := begin; ts < end && ts <= d.lastKey; ts += 5 {
			if ts < d.firstKey {
				continue
			}
			rows = append(rows, []float64{float64(ts), 240.1, 50.0, 300.5, 1.25})
		}
		json.NewEncoder(w).Encode(rows)
	})
	return mux
}

func testConfig(url string) config.Config {
	return config.Config{
		URL:       url,
		Retries:   2,
		Interval:  5,
		Digits:    3,
		Timeout:   10 * time.Second,
		RateLimit: 10000,
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testStore(t *testing.T, logger *logrus.Logger) *archive.Store {
	t.Helper()
	store, err := archive.NewStore(t.TempDir(), "iotawatt", 4, logger)
	require.NoError(t, err)
	return store
}

func TestDayDataRejectsDaysOutsideLoggedRange(t *testing.T) {
	tests := []struct {
		name string
		day  string
	}{
		{"day before logging started", "2024-03-01"},
		{"day after logging stopped", "2024-03-05"},
		{"far past", "2020-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newPlotDevice()
			srv := httptest.NewServer(dev.handler())
			defer srv.Close()

			logger := testLogger()
			day, err := timeutil.ParseLocal(tt.day)
			require.NoError(t, err)

			_, err = dayData(context.Background(), testConfig(srv.URL), testStore(t, logger), day, logger)
			require.Error(t, err)
			assert.ErrorIs(t, err, cli.ErrDayOutOfRange)
			assert.Equal(t, cli.ExitOutOfRange, cli.ExitCode(err))
			assert.Zero(t, dev.dataCalls, "no sample query for an out-of-range day")
		})
	}
}

func TestDayDataFirstLoggedDayStartsAtFirstKey(t *testing.T) {
	dev := newPlotDevice()
	srv := httptest.NewServer(dev.handler())
	defer srv.Close()

	logger := testLogger()
	day, err := timeutil.ParseLocal("2024-03-02")
	require.NoError(t, err)

	ds, err := dayData(context.Background(), testConfig(srv.URL), testStore(t, logger), day, logger)
	require.NoError(t, err)
	assert.Equal(t, dev.firstKey, ds.Time[0], "first day begins where logging began, not at midnight")
}

func TestDayDataLastPartialDayIsInRange(t *testing.T) {
	dev := newPlotDevice()
	srv := httptest.NewServer(dev.handler())
	defer srv.Close()

	logger := testLogger()
	day, err := timeutil.ParseLocal("2024-03-04")
	require.NoError(t, err)

	ds, err := dayData(context.Background(), testConfig(srv.URL), testStore(t, logger), day, logger)
	require.NoError(t, err)
	assert.LessOrEqual(t, ds.Time[ds.Len()-1], dev.lastKey)
}

func TestDayDataPrefersArchiveOverDevice(t *testing.T) {
	var deviceHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceHits++
		http.Error(w, "unexpected", http.StatusInternalServerError)
	}))
	defer srv.Close()

	logger := testLogger()
	store := testStore(t, logger)

	day, err := timeutil.ParseLocal("2024-03-02")
	require.NoError(t, err)
	t0 := timeutil.DayStart(day).Unix()
	saved := &series.DaySeries{
		Begin:     timeutil.DayStart(day),
		End:       timeutil.DayEnd(day),
		Time:      []int64{t0, t0 + 5},
		Data:      mat.NewDense(2, 4, []float64{240.1, 50, 300.5, 1.25, 240.2, 50, 301.0, 1.26}),
		VChannels: []string{"Mains"},
		IChannels: []string{"Kitchen"},
		Cols:      []string{"Mains.volts.d3", "Mains.hz.d3", "Kitchen.watts.d3", "Kitchen.amps.d3"},
		Digits:    3,
		Interval:  5,
	}
	require.NoError(t, store.Save(day, saved))

	ds, err := dayData(context.Background(), testConfig(srv.URL), store, day, logger)
	require.NoError(t, err)
	assert.Equal(t, saved.Time, ds.Time)
	assert.Zero(t, deviceHits, "archived day must not touch the device")
}

func TestParseDay(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 30, 0, 0, time.Local)

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{"iso date", "2024-03-02", time.Date(2024, 3, 2, 0, 0, 0, 0, time.Local), false},
		{"yesterday", "-1", time.Date(2024, 3, 9, 0, 0, 0, 0, time.Local), false},
		{"today", "0", time.Date(2024, 3, 10, 0, 0, 0, 0, time.Local), false},
		{"bare offset counts back", "2", time.Date(2024, 3, 8, 0, 0, 0, 0, time.Local), false},
		{"garbage", "last tuesday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDay(tt.in, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}
}
