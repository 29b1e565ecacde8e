// Package api implements the HTTP client for the device's query
// interface: status queries, channel discovery and paginated retrieval
// of logged samples.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/mat"

	"github.com/openwatt/iotalog/internal/config"
	"github.com/openwatt/iotalog/internal/models"
	"github.com/openwatt/iotalog/internal/series"
)

var (
	// ErrUnreachable wraps the final error once the retry budget for a
	// request is exhausted.
	ErrUnreachable = errors.New("device unreachable")
	// ErrBadResponse marks a response body that could not be decoded.
	ErrBadResponse = errors.New("malformed device response")
	// ErrNoData is returned when a query range holds no samples at all.
	ErrNoData = errors.New("no data in requested range")
	// ErrNoDatalog is returned when the device reports no live datalog.
	ErrNoDatalog = errors.New("device reported no current datalog")
)

// StatusKind names one section of the device status report.
type StatusKind string

const (
	StatusDatalogs StatusKind = "datalogs"
	StatusInputs   StatusKind = "inputs"
	StatusOutputs  StatusKind = "outputs"
	StatusWifi     StatusKind = "wifi"
	StatusStats    StatusKind = "stats"
)

// ResponseFormat selects the wire encoding for channel-data queries.
type ResponseFormat string

const (
	FormatJSON ResponseFormat = "json"
	FormatCSV  ResponseFormat = "csv"
)

// maxResponseSize is the response size the device can comfortably
// produce per query; it bounds how many sample rows are requested at a
// time.
const maxResponseSize = 100000

// maxWindowRetries bounds re-requests of a window whose first row came
// back malformed.
const maxWindowRetries = 3

// ProgressFunc is invoked once per underlying HTTP call of a channel
// data download, with the full requested range and the window about to
// be fetched, all as UNIX timestamps.
type ProgressFunc func(begin, end, windowStart, windowEnd int64)

// DataRequest describes one contiguous range of samples to download.
type DataRequest struct {
	Start time.Time
	End   time.Time
	// Channels lists the power channels to fetch. Nil means all of the
	// device's power inputs.
	Channels []string
	// Interval is the sampling interval in seconds, a multiple of 5.
	// Zero means the client's configured default.
	Interval int
	// Digits is the number of fractional digits in returned values.
	// Zero means the client's configured default.
	Digits int
	// Format selects the wire encoding; empty means JSON.
	Format   ResponseFormat
	Progress ProgressFunc
}

// Client issues authenticated, rate-limited HTTP requests against the
// device. It is not safe for concurrent use; each CLI invocation owns
// one client.
type Client struct {
	baseURL     string
	username    string
	password    string
	retries     int
	interval    int
	digits      int
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *logrus.Logger
	backoffBase time.Duration
	layout      *channelLayout
}

// NewClient builds a client from the process configuration.
func NewClient(cfg config.Config, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		username:    cfg.Username,
		password:    cfg.Password,
		retries:     cfg.Retries,
		interval:    cfg.Interval,
		digits:      cfg.Digits,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		logger:      logger,
		backoffBase: 500 * time.Millisecond,
	}
}

// Status fetches the named status sections in a single request. With no
// kinds given, all sections are fetched.
func (c *Client) Status(ctx context.Context, kinds ...StatusKind) (*models.DeviceStatus, error) {
	if len(kinds) == 0 {
		kinds = []StatusKind{StatusDatalogs, StatusInputs, StatusOutputs, StatusWifi, StatusStats}
	}
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}

	var st models.DeviceStatus
	err := c.get(ctx, "status?"+strings.Join(parts, "&"), func(body []byte) error {
		return json.Unmarshal(body, &st)
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Datalogs returns the device's log descriptors.
func (c *Client) Datalogs(ctx context.Context) ([]models.Datalog, error) {
	st, err := c.Status(ctx, StatusDatalogs)
	if err != nil {
		return nil, err
	}
	return st.Datalogs, nil
}

// ChannelInfo returns the ordered channel descriptors, voltage reference
// first, computed outputs last.
func (c *Client) ChannelInfo(ctx context.Context) ([]models.Channel, error) {
	var resp struct {
		Series []models.Channel `json:"series"`
	}
	err := c.get(ctx, "query?show=series", func(body []byte) error {
		return json.Unmarshal(body, &resp)
	})
	if err != nil {
		return nil, err
	}
	for i := range resp.Series {
		resp.Series[i].Index = i
	}
	return resp.Series, nil
}

// channelLayout classifies the device's channel list: the first entry is
// the voltage reference, the trailing entries (as many as the outputs
// status section reports) are computed outputs, and everything between
// is a power input.
type channelLayout struct {
	vInputs []string
	iInputs []string
	outputs []string
}

func (c *Client) channelLayout(ctx context.Context) (*channelLayout, error) {
	if c.layout != nil {
		return c.layout, nil
	}

	channels, err := c.ChannelInfo(ctx)
	if err != nil {
		return nil, err
	}
	st, err := c.Status(ctx, StatusOutputs)
	if err != nil {
		return nil, err
	}
	numOut := len(st.Outputs)

	if len(channels) < 1+numOut {
		return nil, fmt.Errorf("%w: %d channels with %d outputs", ErrBadResponse, len(channels), numOut)
	}
	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = ch.Name
	}

	c.layout = &channelLayout{
		vInputs: names[:1],
		iInputs: names[1 : len(names)-numOut],
		outputs: names[len(names)-numOut:],
	}
	return c.layout, nil
}

// ChannelData downloads one contiguous time range of samples, splitting
// it into windows sized to keep each response under the device's
// comfortable response size. Either the full range decodes or an error
// is returned; no partial result escapes.
func (c *Client) ChannelData(ctx context.Context, req DataRequest) (*series.DaySeries, error) {
	interval := req.Interval
	if interval == 0 {
		interval = c.interval
	}
	digits := req.Digits
	if digits == 0 {
		digits = c.digits
	}
	format := req.Format
	if format == "" {
		format = FormatJSON
	}

	layout, err := c.channelLayout(ctx)
	if err != nil {
		return nil, err
	}
	channels := req.Channels
	if channels == nil {
		channels = layout.iInputs
	}

	cols := selectColumns(layout.vInputs, channels, digits)

	// Estimated bytes per response row: the timestamp plus one field of
	// digits fractional digits per data column.
	rowSize := 14 + (2*len(layout.vInputs)+2*len(channels))*(7+digits)
	windowStep := int64(interval * (maxResponseSize / rowSize))

	begin := req.Start.Unix()
	end := req.End.Unix()

	var (
		times    []int64
		flat     []float64
		nfields  = len(cols)
		ncols    = nfields - 1
		t0       = begin
		t1       = minInt64(end, t0+windowStep)
		t0Misses = 0
	)

	for t0 < end {
		if req.Progress != nil {
			req.Progress(begin, end, t0, t1)
		}

		rows, err := c.fetchWindow(ctx, cols, t0, t1, interval, format)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			// Nothing logged in this window; move on.
			t0 = t1
			t1 = minInt64(end, t0+windowStep)
			continue
		}

		switch bad := badRow(rows, nfields); {
		case bad < 0:
			times, flat = appendRows(times, flat, rows)
			t0 = t1
			t0Misses = 0
		case bad > 0:
			// Rows before the malformed one are good; resume the next
			// window at the bad row's timestamp.
			c.logger.WithField("time", int64(rows[bad][0])).Warn("malformed sample row, resuming at its timestamp")
			times, flat = appendRows(times, flat, rows[:bad])
			t0 = int64(rows[bad][0])
			t0Misses = 0
		default:
			// Malformed first row: the whole window is suspect, retry it.
			t0Misses++
			if t0Misses >= maxWindowRetries {
				return nil, fmt.Errorf("%w: window starting at %d failed %d times", ErrBadResponse, t0, t0Misses)
			}
		}
		t1 = minInt64(end, t0+windowStep)
	}

	if len(times) == 0 {
		return nil, fmt.Errorf("%w: %d to %d", ErrNoData, begin, end)
	}

	return &series.DaySeries{
		Begin:     req.Start,
		End:       req.End,
		Time:      times,
		Data:      mat.NewDense(len(times), ncols, flat),
		VChannels: layout.vInputs,
		IChannels: channels,
		Cols:      cols[1:],
		Digits:    digits,
		Interval:  interval,
	}, nil
}

// selectColumns builds the select clause: timestamp, volts and hz per
// voltage channel, then watts and amps per power channel.
func selectColumns(vInputs, channels []string, digits int) []string {
	cols := []string{"time.utc.unix"}
	for _, v := range vInputs {
		cols = append(cols, fmt.Sprintf("%s.volts.d%d", v, digits))
	}
	for _, v := range vInputs {
		cols = append(cols, fmt.Sprintf("%s.hz.d%d", v, digits))
	}
	for _, ch := range channels {
		cols = append(cols, fmt.Sprintf("%s.watts.d%d", ch, digits))
	}
	for _, ch := range channels {
		cols = append(cols, fmt.Sprintf("%s.amps.d%d", ch, digits))
	}
	return cols
}

func (c *Client) fetchWindow(ctx context.Context, cols []string, t0, t1 int64, interval int, format ResponseFormat) ([][]float64, error) {
	query := fmt.Sprintf("query?select=[%s]&begin=%d&end=%d&group=%ds&format=%s&missing=skip",
		strings.Join(cols, ","), t0, t1, interval, format)

	var rows [][]float64
	err := c.get(ctx, query, func(body []byte) error {
		var derr error
		if format == FormatCSV {
			rows, derr = decodeCSVRows(body)
		} else {
			rows, derr = decodeJSONRows(body)
		}
		return derr
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// badRow returns the index of the first row whose field count differs
// from want, or -1 when all rows are well formed.
func badRow(rows [][]float64, want int) int {
	for i, row := range rows {
		if len(row) != want {
			return i
		}
	}
	return -1
}

func appendRows(times []int64, flat []float64, rows [][]float64) ([]int64, []float64) {
	for _, row := range rows {
		times = append(times, int64(row[0]))
		flat = append(flat, row[1:]...)
	}
	return times, flat
}

// get performs one GET against the device, retrying transient failures
// (connection errors, retryable statuses, undecodable bodies) with
// exponential backoff until the attempt budget runs out.
func (c *Client) get(ctx context.Context, query string, decode func(body []byte) error) error {
	url := c.baseURL + "/" + query

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(logrus.Fields{
				"query":   query,
				"attempt": attempt + 1,
				"error":   fmt.Sprint(lastErr),
			}).Warn("retrying device request")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(c.backoffBase, attempt-1)):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if c.password != "" {
			req.SetBasicAuth(c.username, c.password)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		c.logger.WithFields(logrus.Fields{
			"query":       query,
			"status":      resp.StatusCode,
			"bytes":       len(body),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("device request")

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("status %d from device", resp.StatusCode)
			if !retryableStatus(resp.StatusCode) {
				return fmt.Errorf("%w: %v", ErrUnreachable, lastErr)
			}
			continue
		}

		if err := decode(body); err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrBadResponse, err)
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: %d attempts for %s: %v", ErrUnreachable, c.retries, query, lastErr)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := float64(base) * math.Pow(2, float64(attempt))
	return time.Duration(d + rand.Float64()*0.1*d)
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
