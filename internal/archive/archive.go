// Package archive persists day series as NPZ files, one file per
// calendar day.
//
// Layout:
//   - The container is a plain zip file holding time.npy (int64 sample
//     times), data.npy (2-D float64 channel matrix) and meta.json
//     (range, channel lists, column layout, digits, interval).
//   - Files are named <prefix>_<ISO-date>.npz inside a flat data
//     directory. The existence of a day's file is the sole record of
//     "already downloaded".
//
// The npy members keep the archives loadable from numpy for offline
// analysis, and give bit-exact float round-trips.
package archive

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/sbinet/npyio"

	"github.com/openwatt/iotalog/internal/series"
	"github.com/openwatt/iotalog/internal/timeutil"
)

// ErrNoDataDir is returned by NewStore when the data directory is
// missing. The directory is never created implicitly; a typo in the
// configured path should not silently start a second archive tree.
var ErrNoDataDir = errors.New("data directory does not exist")

const (
	timeMember = "time.npy"
	dataMember = "data.npy"
	metaMember = "meta.json"
)

type metadata struct {
	Begin     string   `json:"begin"`
	End       string   `json:"end"`
	VChannels []string `json:"vchannels"`
	IChannels []string `json:"ichannels"`
	Cols      []string `json:"cols"`
	Digits    int      `json:"digits"`
	Interval  int      `json:"interval"`
}

// Save writes ds to path. The write goes through a temporary file in the
// same directory followed by a rename, so a crashed run never leaves a
// partial archive behind.
func Save(path string, ds *series.DaySeries) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".iotalog-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp, ds); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}
	return nil
}

func write(w io.Writer, ds *series.DaySeries) error {
	zw := zip.NewWriter(w)

	// numpy stores npz members uncompressed; do the same so the files
	// stay byte-compatible with np.load.
	tw, err := zw.CreateHeader(&zip.FileHeader{Name: timeMember, Method: zip.Store})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", timeMember, err)
	}
	if err := npyio.Write(tw, ds.Time); err != nil {
		return fmt.Errorf("failed to write %s: %w", timeMember, err)
	}

	dw, err := zw.CreateHeader(&zip.FileHeader{Name: dataMember, Method: zip.Store})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dataMember, err)
	}
	if err := npyio.Write(dw, ds.Data); err != nil {
		return fmt.Errorf("failed to write %s: %w", dataMember, err)
	}

	mw, err := zw.CreateHeader(&zip.FileHeader{Name: metaMember, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", metaMember, err)
	}
	meta := metadata{
		Begin:     timeutil.Format(ds.Begin),
		End:       timeutil.Format(ds.End),
		VChannels: ds.VChannels,
		IChannels: ds.IChannels,
		Cols:      ds.Cols,
		Digits:    ds.Digits,
		Interval:  ds.Interval,
	}
	if err := json.NewEncoder(mw).Encode(meta); err != nil {
		return fmt.Errorf("failed to write %s: %w", metaMember, err)
	}

	return zw.Close()
}

// Load reads an archive written by Save.
func Load(path string) (*series.DaySeries, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer zr.Close()

	ds := &series.DaySeries{}
	var meta metadata
	seen := map[string]bool{}

	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open member %s: %w", f.Name, err)
		}
		switch f.Name {
		case timeMember:
			err = npyio.Read(rc, &ds.Time)
		case dataMember:
			ds.Data = &mat.Dense{}
			err = npyio.Read(rc, ds.Data)
		case metaMember:
			err = json.NewDecoder(rc).Decode(&meta)
		default:
			rc.Close()
			continue
		}
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read member %s: %w", f.Name, err)
		}
		seen[f.Name] = true
	}

	for _, name := range []string{timeMember, dataMember, metaMember} {
		if !seen[name] {
			return nil, fmt.Errorf("archive %s is missing member %s", path, name)
		}
	}

	ds.Begin, err = timeutil.ParseLocal(meta.Begin)
	if err != nil {
		return nil, fmt.Errorf("bad begin time in %s: %w", path, err)
	}
	ds.End, err = timeutil.ParseLocal(meta.End)
	if err != nil {
		return nil, fmt.Errorf("bad end time in %s: %w", path, err)
	}
	ds.VChannels = meta.VChannels
	ds.IChannels = meta.IChannels
	ds.Cols = meta.Cols
	ds.Digits = meta.Digits
	ds.Interval = meta.Interval

	if rows, _ := ds.Data.Dims(); rows != len(ds.Time) {
		return nil, fmt.Errorf("archive %s is inconsistent: %d samples, %d data rows",
			path, len(ds.Time), rows)
	}
	return ds, nil
}
