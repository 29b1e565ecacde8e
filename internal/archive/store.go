package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/openwatt/iotalog/internal/series"
	"github.com/openwatt/iotalog/internal/timeutil"
)

// Store is the on-disk download ledger: one archive per day under a
// single directory, with an in-memory LRU cache of parsed archives so a
// plotting session that revisits days does not reparse them.
type Store struct {
	dir    string
	prefix string
	cache  *lru.Cache
	logger *logrus.Logger
}

// NewStore opens the data directory. The directory must already exist;
// a missing one is reported as ErrNoDataDir.
func NewStore(dir, prefix string, cacheSize int, logger *logrus.Logger) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoDataDir, dir)
		}
		return nil, fmt.Errorf("failed to stat data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNoDataDir, dir)
	}

	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive cache: %w", err)
	}

	return &Store{
		dir:    dir,
		prefix: prefix,
		cache:  cache,
		logger: logger,
	}, nil
}

// Path returns the archive file path for a calendar day.
func (s *Store) Path(day time.Time) string {
	name := fmt.Sprintf("%s_%s.npz", s.prefix, day.Format(timeutil.ISODate))
	return filepath.Join(s.dir, name)
}

// Has reports whether the day's archive file exists.
func (s *Store) Has(day time.Time) bool {
	_, err := os.Stat(s.Path(day))
	return err == nil
}

// Save writes the day's archive and replaces any cached copy.
func (s *Store) Save(day time.Time, ds *series.DaySeries) error {
	path := s.Path(day)
	if err := Save(path, ds); err != nil {
		return err
	}
	s.cache.Add(s.key(day), ds)
	s.logger.WithFields(logrus.Fields{
		"path":    path,
		"samples": ds.Len(),
	}).Debug("saved day archive")
	return nil
}

// Load returns the day's archive, from cache when possible.
func (s *Store) Load(day time.Time) (*series.DaySeries, error) {
	key := s.key(day)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*series.DaySeries), nil
	}
	ds, err := Load(s.Path(day))
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, ds)
	return ds, nil
}

func (s *Store) key(day time.Time) string {
	return day.Format(timeutil.ISODate)
}
