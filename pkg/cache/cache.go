// Package cache persists the call graph and dynamic statistics artifacts
// between profiling runs. Keys are explicit types rather than string
// concatenation so the two artifact families can never collide.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/tracekit/probeopt/internal/utils"
)

const (
	graphPrefix = "cg"
	statsPrefix = "stats"

	lockRetries  = 50
	lockInterval = 100 * time.Millisecond
)

// Key renders a cache entry to its deterministic file name.
type Key interface {
	Name() string
}

// GraphKey addresses the call graph artifact of one binary, library set and
// program version. It is independent of arguments and workload.
type GraphKey struct {
	Binary  string
	Libs    []string
	Version string
}

// Name derives the file name from the binary base name, a digest of the
// binary path plus the sorted library set, and the version.
func (k GraphKey) Name() string {
	return fmt.Sprintf("%s_%s_%x_%s.json",
		graphPrefix, sanitize(filepath.Base(k.Binary)), k.digest(), sanitize(k.Version))
}

// prefix is the version-independent part of the name, used to look up
// artifacts of other versions of the same configuration.
func (k GraphKey) prefix() string {
	return fmt.Sprintf("%s_%s_%x_", graphPrefix, sanitize(filepath.Base(k.Binary)), k.digest())
}

func (k GraphKey) digest() uint64 {
	libs := append([]string{}, k.Libs...)
	sort.Strings(libs)
	return utils.Digest(append([]string{k.Binary}, libs...)...)
}

// StatsKey addresses the dynamic statistics artifact of one binary and
// workload combination.
type StatsKey struct {
	Binary   string
	Workload string
}

func (k StatsKey) Name() string {
	return fmt.Sprintf("%s_%s_%x.json",
		statsPrefix, sanitize(filepath.Base(k.Binary)), utils.Digest(k.Binary, k.Workload))
}

// Cache is a file-backed key/value store for JSON artifacts.
type Cache struct {
	dir    string
	logger log.Logger
}

type Option func(*Cache)

func WithLogger(logger log.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func New(dir string, opts ...Option) (*Cache, error) {
	c := &Cache{
		dir:    dir,
		logger: log.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating cache directory %s", dir)
	}

	return c, nil
}

// Extract loads the artifact under the key into out. It reports whether the
// entry exists; a missing entry is not an error, an unreadable one is.
func (c *Cache) Extract(key Key, out interface{}) (bool, error) {
	path := filepath.Join(c.dir, key.Name())
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "reading cache entry %s", path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, errors.Wrapf(err, "decoding cache entry %s", path)
	}

	c.logger.Debug().Str("entry", key.Name()).Msg("cache hit")

	return true, nil
}

// Store writes the artifact under the key. With keepExisting set an already
// present entry is left untouched. Concurrent writers of the same entry are
// serialized through an exclusive lock file.
func (c *Cache) Store(key Key, value interface{}, keepExisting bool) error {
	path := filepath.Join(c.dir, key.Name())
	if keepExisting {
		if _, err := os.Stat(path); err == nil {
			c.logger.Debug().Str("entry", key.Name()).Msg("cache entry kept")
			return nil
		}
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encoding cache entry %s", key.Name())
	}

	unlock, err := c.lock(path)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing cache entry %s", path)
	}

	c.logger.Debug().Str("entry", key.Name()).Msg("cache entry stored")

	return nil
}

// PreviousGraphKey returns the key of the most recently stored call graph of
// the same binary and library set but a different version, for diffing. It
// reports whether such an entry exists.
func (c *Cache) PreviousGraphKey(key GraphKey) (GraphKey, bool, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return GraphKey{}, false, errors.Wrapf(err, "reading cache directory %s", c.dir)
	}

	prefix := key.prefix()
	current := key.Name()

	var (
		found  bool
		latest time.Time
		prev   GraphKey
	)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == current ||
			!strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !found || info.ModTime().After(latest) {
			found = true
			latest = info.ModTime()
			prev = GraphKey{
				Binary:  key.Binary,
				Libs:    key.Libs,
				Version: strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json"),
			}
		}
	}

	return prev, found, nil
}

// lock takes an exclusive lock file next to the entry, retrying for a bounded
// time when another writer holds it.
func (c *Cache) lock(path string) (func(), error) {
	lockPath := path + ".lock"
	for attempt := 0; attempt < lockRetries; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Wrapf(err, "creating lock file %s", lockPath)
		}
		time.Sleep(lockInterval)
	}

	return nil, errors.Errorf("timed out waiting for lock file %s", lockPath)
}

// sanitize keeps file names portable: path separators and spaces collapse to
// dashes.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':':
			return '-'
		}
		return r
	}, s)
}
