package module

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
)

// compressed images are found next to the plain name with one of these
// suffixes
var imageSuffixes = []string{"", ".gz", ".zst"}

// Images finds module images on disk and keeps recently read ones in memory.
type Images struct {
	logger      log.Logger
	fs          afero.Fs
	searchPaths []string
	cache       *lru.Cache[string, []byte]
	metrics     *Metrics
}

func NewImages(logger log.Logger, fs afero.Fs, cfg Config, metrics *Metrics) (*Images, error) {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	cache, err := lru.New[string, []byte](cfg.ImageCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create image cache: %w", err)
	}
	return &Images{
		logger:      logger,
		fs:          fs,
		searchPaths: cfg.SearchPaths,
		cache:       cache,
		metrics:     metrics,
	}, nil
}

// Locate returns the path of the image of the named module. Names containing
// a path separator are used as is, bare names are looked up in the search
// paths in order.
func (i *Images) Locate(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty module name: %w", ErrImageNotFound)
	}
	if strings.ContainsRune(name, filepath.Separator) {
		if p, ok := i.exists(name); ok {
			return p, nil
		}
		return "", fmt.Errorf("%s: %w", name, ErrImageNotFound)
	}
	for _, dir := range i.searchPaths {
		if p, ok := i.exists(filepath.Join(dir, name)); ok {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s not in %s: %w", name, strings.Join(i.searchPaths, ":"), ErrImageNotFound)
}

func (i *Images) exists(p string) (string, bool) {
	for _, suffix := range imageSuffixes {
		st, err := i.fs.Stat(p + suffix)
		if err == nil && !st.IsDir() {
			return p + suffix, true
		}
	}
	return "", false
}

// Static returns the decompressed image of the named module.
func (i *Images) Static(name string) ([]byte, error) {
	p, err := i.Locate(name)
	if err != nil {
		return nil, err
	}
	return i.Read(p)
}

// Read returns the decompressed image stored at p. The returned slice is
// shared with the cache and must not be modified.
func (i *Images) Read(p string) ([]byte, error) {
	if data, ok := i.cache.Get(p); ok {
		i.metrics.ImageCacheHits.Inc()
		return data, nil
	}
	data, err := readImage(i.fs, p)
	switch {
	case errors.Is(err, errCorruptedImage):
		i.metrics.ImageReads.WithLabelValues("corrupted").Inc()
		return nil, fmt.Errorf("%s: %w", p, err)
	case err != nil:
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%s: %w", p, ErrImageNotFound)
		}
		i.metrics.ImageReads.WithLabelValues(errorType(err)).Inc()
		level.Debug(i.logger).Log("msg", "failed to read module image", "path", p, "err", err)
		return nil, err
	}
	i.metrics.ImageReads.WithLabelValues(errorType(nil)).Inc()
	level.Debug(i.logger).Log("msg", "read module image", "path", p, "size", len(data))
	i.cache.Add(p, data)
	return data, nil
}
