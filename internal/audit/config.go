package audit

import "codeberg.org/mutker/argon1d/internal/errors"

const (
	// File system permissions and paths
	defaultDirPerm      = 0o755
	defaultDBPath       = "/var/lib/argon1d/audit.db"
	defaultBatchSize    = 10
	defaultBatchTimeout = 30
)

type Config struct {
	DBPath       string
	Enabled      bool
	BatchSize    int
	BatchTimeout int // seconds
}

func DefaultConfig() Config {
	return Config{
		DBPath:       defaultDBPath,
		Enabled:      false, // Disabled by default
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate when auditing is enabled
	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.BatchTimeout < 0 {
		return errFactory.WithData(ErrInvalidConfig, "batch settings must not be negative")
	}

	return nil
}
