package module

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

type Config struct {
	// ProcRoot is the procfs mount point. Unused on Windows.
	ProcRoot string `yaml:"proc_root"`
	// PID of the process to inspect, 0 means the current process. Modules can
	// only be loaded into the current process.
	PID int `yaml:"pid"`
	// SearchPaths are the directories searched for module images referenced
	// by base name.
	SearchPaths []string `yaml:"search_paths"`
	// ImageCacheSize is the number of module images kept in memory.
	ImageCacheSize int `yaml:"image_cache_size"`
}

// DefaultConfig reads the current process through /proc on Linux and looks
// images up in DefaultSearchPaths.
func DefaultConfig() Config {
	return Config{
		ProcRoot:       "/proc",
		SearchPaths:    append([]string(nil), DefaultSearchPaths...),
		ImageCacheSize: 16,
	}
}

func (cfg *Config) Validate() error {
	var err error
	if cfg.ProcRoot == "" {
		err = multierror.Append(err, fmt.Errorf("proc_root must not be empty"))
	}
	if cfg.PID < 0 {
		err = multierror.Append(err, fmt.Errorf("invalid pid %d", cfg.PID))
	}
	if cfg.ImageCacheSize < 1 {
		err = multierror.Append(err, fmt.Errorf("invalid image_cache_size %d, must be positive", cfg.ImageCacheSize))
	}
	for _, p := range cfg.SearchPaths {
		if p == "" {
			err = multierror.Append(err, fmt.Errorf("empty search path"))
			break
		}
	}
	return err
}
