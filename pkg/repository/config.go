package repository

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	// DefaultMaxRows caps how many documents a single read returns.
	DefaultMaxRows = 100000
	// DefaultRetentionDays is how long soft-deleted documents are kept by CleanHardDeleted.
	DefaultRetentionDays = 30
)

// Config binds a repository to one collection.
type Config struct {
	ConnectionString string
	Database         string
	Collection       string
	// AutoGenerateIDs makes Insert assign a fresh id even when the entity has one.
	AutoGenerateIDs bool
	// ConnectTimeout bounds dialing and collection setup in Configure. Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{AutoGenerateIDs: true, ConnectTimeout: DefaultConnectTimeout}
}

// Validate reports the first missing binding field, wrapped in ErrInvalidConfiguration.
func (c *Config) Validate() error {
	switch {
	case c == nil:
		return fmt.Errorf("%w: config is nil", ErrInvalidConfiguration)
	case strings.TrimSpace(c.ConnectionString) == "":
		return fmt.Errorf("%w: connection string is empty", ErrInvalidConfiguration)
	case strings.TrimSpace(c.Database) == "":
		return fmt.Errorf("%w: database name is empty", ErrInvalidConfiguration)
	case strings.TrimSpace(c.Collection) == "":
		return fmt.Errorf("%w: collection name is empty", ErrInvalidConfiguration)
	case c.ConnectTimeout < 0:
		return fmt.Errorf("%w: connect timeout is negative", ErrInvalidConfiguration)
	}
	return nil
}

func (c Config) timeout() time.Duration {
	if c.ConnectTimeout == 0 {
		return DefaultConnectTimeout
	}
	return c.ConnectTimeout
}
