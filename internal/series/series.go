// Package series holds one day of channel data downloaded from the
// device: a vector of sample times plus a matrix with one column per
// measured quantity.
//
// Column layout (matching the order of the select clause sent to the
// device): volts and hz for each voltage channel, then watts for each
// power channel, then amps for each power channel. Derived units (wh,
// va, var, varh, pf) are computed on lookup and never stored.
package series

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNoChannel is returned when a lookup names a channel the series
	// does not contain.
	ErrNoChannel = errors.New("no such channel")
	// ErrNoUnit is returned when a lookup names a unit the channel does
	// not support.
	ErrNoUnit = errors.New("no such unit")
)

// Units accepted by ChannelData for voltage channels.
const (
	UnitVolts = "volts"
	UnitHz    = "hz"
)

// Units accepted by ChannelData for power channels.
const (
	UnitWatts = "watts"
	UnitAmps  = "amps"
	UnitWh    = "wh"
	UnitVA    = "va"
	UnitVAR   = "var"
	UnitVARh  = "varh"
	UnitPF    = "pf"
)

// DaySeries is one contiguous block of samples from the device.
// Invariant: Data has len(Time) rows and len(Cols) columns.
type DaySeries struct {
	Begin     time.Time
	End       time.Time
	Time      []int64
	Data      *mat.Dense
	VChannels []string
	IChannels []string
	Cols      []string
	Digits    int
	Interval  int
}

// Len returns the number of samples.
func (s *DaySeries) Len() int {
	return len(s.Time)
}

// ChannelData returns the series for one channel/unit pair. The slice is
// freshly allocated; mutating it does not affect the stored matrix.
func (s *DaySeries) ChannelData(name, unit string) ([]float64, error) {
	if idx := index(s.VChannels, name); idx >= 0 {
		return s.voltageData(idx, unit)
	}
	if idx := index(s.IChannels, name); idx >= 0 {
		return s.powerData(idx, unit)
	}
	return nil, fmt.Errorf("%w: %s", ErrNoChannel, name)
}

func (s *DaySeries) voltageData(idx int, unit string) ([]float64, error) {
	switch unit {
	case UnitVolts:
		return s.column(2 * idx), nil
	case UnitHz, "hertz":
		return s.column(2*idx + 1), nil
	}
	return nil, fmt.Errorf("%w: %s for voltage channel", ErrNoUnit, unit)
}

func (s *DaySeries) powerData(idx int, unit string) ([]float64, error) {
	// The voltage reference for derived units is the first voltage
	// channel, as on the device itself.
	v := s.column(0)
	w := s.column(2*len(s.VChannels) + idx)
	a := s.column(2*len(s.VChannels) + len(s.IChannels) + idx)
	hours := float64(s.Interval) / 3600.0

	switch unit {
	case UnitWatts:
		return w, nil
	case UnitAmps:
		return a, nil
	case UnitWh:
		floats.Scale(hours, w)
		return w, nil
	case UnitVA:
		floats.Mul(v, a)
		return v, nil
	case UnitVAR:
		floats.Mul(v, a)
		return reactive(v, w), nil
	case UnitVARh:
		floats.Mul(v, a)
		c := reactive(v, w)
		floats.Scale(hours, c)
		return c, nil
	case UnitPF:
		floats.Mul(v, a)
		floats.Div(w, v)
		return w, nil
	}
	return nil, fmt.Errorf("%w: %s for power channel", ErrNoUnit, unit)
}

// reactive overwrites va with sqrt(va^2 - w^2), clamping the radicand at
// zero where rounding pushes apparent power below real power.
func reactive(va, w []float64) []float64 {
	for i := range va {
		d := va[i]*va[i] - w[i]*w[i]
		if d < 0 {
			d = 0
		}
		va[i] = math.Sqrt(d)
	}
	return va
}

func (s *DaySeries) column(j int) []float64 {
	return mat.Col(nil, j, s.Data)
}

func index(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// Lowpass applies a centered moving-average filter of the given width.
// The window is truncated at the edges so the result has the same length
// as the input. Width values below 2 return a copy of the input.
func Lowpass(x []float64, width int) []float64 {
	out := make([]float64, len(x))
	if width < 2 {
		copy(out, x)
		return out
	}
	half := width / 2
	for i := range x {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + 1
		if hi > len(x) {
			hi = len(x)
		}
		out[i] = floats.Sum(x[lo:hi]) / float64(hi-lo)
	}
	return out
}

// Decimate returns every stride-th element of x, starting at the first.
func Decimate(x []float64, stride int) []float64 {
	if stride < 2 {
		out := make([]float64, len(x))
		copy(out, x)
		return out
	}
	out := make([]float64, 0, (len(x)+stride-1)/stride)
	for i := 0; i < len(x); i += stride {
		out = append(out, x[i])
	}
	return out
}

// DecimateInt64 is Decimate for the sample-time vector.
func DecimateInt64(x []int64, stride int) []int64 {
	if stride < 2 {
		out := make([]int64, len(x))
		copy(out, x)
		return out
	}
	out := make([]int64, 0, (len(x)+stride-1)/stride)
	for i := 0; i < len(x); i += stride {
		out = append(out, x[i])
	}
	return out
}
