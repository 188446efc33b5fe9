package config

import (
	"errors"

	"github.com/andrew-solarstorm/go-packages/common"
)

type ArchiveConfig struct {
	// DBPath is the path to the BoltDB file holding solved instances.
	// Default: "./data/solutions.db"
	DBPath string

	// Enabled controls whether served solutions are archived to disk.
	// Default: false
	Enabled bool
}

func (c *ArchiveConfig) Key() string {
	return ARCHIVE_CONFIG_KEY
}

func (c *ArchiveConfig) Load() error {
	c.DBPath = common.GetEnvOrDefault("ARCHIVE_DB_PATH", "./data/solutions.db")
	c.Enabled = common.GetEnvOrDefault("ARCHIVE_ENABLED", "false") == "true"
	return c.Validate()
}

func (c *ArchiveConfig) Validate() error {
	if c.Enabled && c.DBPath == "" {
		return errors.New("archive enabled without a db path")
	}
	return nil
}

type CacheConfig struct {
	// Size is the number of solutions kept in memory by the HTTP service.
	// Default: 256
	Size int
}

func (c *CacheConfig) Key() string {
	return CACHE_CONFIG_KEY
}

func (c *CacheConfig) Load() error {
	c.Size = common.GetEnvOrDefaultInt("SOLUTION_CACHE_SIZE", 256)
	return c.Validate()
}

func (c *CacheConfig) Validate() error {
	if c.Size <= 0 {
		return errors.New("solution cache size must be positive")
	}
	return nil
}
