package fillsched

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DocumentSyncConfig configures station document publication.
type DocumentSyncConfig struct {
	// Bucket is the JetStream KV bucket holding station documents.
	Bucket string `yaml:"bucket"`

	// KeyPrefix prefixes every station key ("<prefix>.<stationID>").
	KeyPrefix string `yaml:"keyPrefix"`

	// MaxRetries is how many times a conflicting write is retried with a fresh read.
	// Zero disables retries; an exhausted update returns ErrDocumentRetriesExhausted.
	MaxRetries int `yaml:"maxRetries"`

	// RetryBaseDelay is the first retry delay.
	RetryBaseDelay time.Duration `yaml:"retryBaseDelay"`

	// RetryMaxDelay caps every retry delay.
	RetryMaxDelay time.Duration `yaml:"retryMaxDelay"`

	// RetryMultiplier bounds the growth of consecutive delays (>= 1).
	RetryMultiplier float64 `yaml:"retryMultiplier"`
}

// Config is the configuration for the Scheduler.
//
// All duration fields accept standard Go duration strings like "30s", "5m", "1h".
type Config struct {
	// Devices lists the destination robots in interleaving order.
	// Mini-batches of Devices[0] lead each round of the trip interleave.
	Devices []DeviceID `yaml:"devices"`

	// QuadrantsPerDevice is the number of load zones per device; quadrants are 1..N.
	QuadrantsPerDevice int `yaml:"quadrantsPerDevice"`

	// SeparateDeviceTrips keeps every trip to a single device.
	// By default two devices share a trip when the trolley has drawers for both.
	SeparateDeviceTrips bool `yaml:"separateDeviceTrips"`

	// DisableTrolleyReuse fails a run with more trips than free trolleys
	// instead of repeating trolleys.
	DisableTrolleyReuse bool `yaml:"disableTrolleyReuse"`

	// IncludeTrolleysOfOtherBatches offers trolleys still holding other
	// batches' canisters to the assigner.
	IncludeTrolleysOfOtherBatches bool `yaml:"includeTrolleysOfOtherBatches"`

	// DisableReplanOnTrolleyFree stops the scheduler from re-running the
	// pipeline over remaining pending work when a trolley is freed.
	DisableReplanOnTrolleyFree bool `yaml:"disableReplanOnTrolleyFree"`

	// OperationTimeout bounds each recommendation, commit and binding.
	// Zero means no timeout beyond the caller's context.
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// EventBufferSize is the channel buffer of each status subscriber.
	EventBufferSize int `yaml:"eventBufferSize"`

	// DocumentSync controls station document publication.
	DocumentSync DocumentSyncConfig `yaml:"documentSync"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// Devices has no default and must be set by the caller.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		QuadrantsPerDevice: 4,
		OperationTimeout:   30 * time.Second,
		EventBufferSize:    64,
		DocumentSync: DocumentSyncConfig{
			Bucket:          "fillsched-stations",
			KeyPrefix:       "station",
			MaxRetries:      8,
			RetryBaseDelay:  20 * time.Millisecond,
			RetryMaxDelay:   500 * time.Millisecond,
			RetryMultiplier: 3,
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Boolean switches and MaxRetries keep their zero values.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.QuadrantsPerDevice == 0 {
		cfg.QuadrantsPerDevice = defaults.QuadrantsPerDevice
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.EventBufferSize == 0 {
		cfg.EventBufferSize = defaults.EventBufferSize
	}
	if cfg.DocumentSync.Bucket == "" {
		cfg.DocumentSync.Bucket = defaults.DocumentSync.Bucket
	}
	if cfg.DocumentSync.KeyPrefix == "" {
		cfg.DocumentSync.KeyPrefix = defaults.DocumentSync.KeyPrefix
	}
	if cfg.DocumentSync.RetryBaseDelay == 0 {
		cfg.DocumentSync.RetryBaseDelay = defaults.DocumentSync.RetryBaseDelay
	}
	if cfg.DocumentSync.RetryMaxDelay == 0 {
		cfg.DocumentSync.RetryMaxDelay = defaults.DocumentSync.RetryMaxDelay
	}
	if cfg.DocumentSync.RetryMultiplier == 0 {
		cfg.DocumentSync.RetryMultiplier = defaults.DocumentSync.RetryMultiplier
	}
}

// Validate checks configuration constraints.
//
// Hard Validation Rules:
//   - At least one device, no device listed twice
//   - QuadrantsPerDevice >= 1
//   - OperationTimeout, EventBufferSize and MaxRetries are not negative
//   - RetryBaseDelay <= RetryMaxDelay
//   - RetryMultiplier >= 1
//
// Returns:
//   - error: Error wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	if len(cfg.Devices) == 0 {
		return fmt.Errorf("%w: at least one device is required", ErrInvalidConfig)
	}

	seen := make(map[DeviceID]bool, len(cfg.Devices))
	for _, d := range cfg.Devices {
		if d == "" {
			return fmt.Errorf("%w: empty device ID", ErrInvalidConfig)
		}
		if seen[d] {
			return fmt.Errorf("%w: device %s listed twice", ErrInvalidConfig, d)
		}
		seen[d] = true
	}

	if cfg.QuadrantsPerDevice < 1 {
		return fmt.Errorf("%w: QuadrantsPerDevice must be >= 1, got %d", ErrInvalidConfig, cfg.QuadrantsPerDevice)
	}
	if cfg.OperationTimeout < 0 {
		return fmt.Errorf("%w: OperationTimeout must not be negative, got %v", ErrInvalidConfig, cfg.OperationTimeout)
	}
	if cfg.EventBufferSize < 0 {
		return fmt.Errorf("%w: EventBufferSize must not be negative, got %d", ErrInvalidConfig, cfg.EventBufferSize)
	}

	ds := cfg.DocumentSync
	if ds.MaxRetries < 0 {
		return fmt.Errorf("%w: DocumentSync.MaxRetries must not be negative, got %d", ErrInvalidConfig, ds.MaxRetries)
	}
	if ds.RetryBaseDelay > ds.RetryMaxDelay {
		return fmt.Errorf(
			"%w: DocumentSync.RetryBaseDelay (%v) must be <= RetryMaxDelay (%v)",
			ErrInvalidConfig, ds.RetryBaseDelay, ds.RetryMaxDelay,
		)
	}
	if ds.RetryMultiplier < 1 {
		return fmt.Errorf("%w: DocumentSync.RetryMultiplier must be >= 1, got %v", ErrInvalidConfig, ds.RetryMultiplier)
	}

	return nil
}

// ValidateWithWarnings logs warnings for valid but unusual values.
//
// This is called after Validate() in NewScheduler() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.DocumentSync.MaxRetries == 0 {
		logger.Warn(
			"document retries disabled, every revision conflict fails the update",
			"recommended", DefaultConfig().DocumentSync.MaxRetries,
		)
	}

	if cfg.DisableTrolleyReuse && cfg.DisableReplanOnTrolleyFree {
		logger.Warn(
			"trolley reuse and replanning are both disabled, runs stop at the free trolley count",
		)
	}
}

// TestConfig returns a configuration for fast test execution.
//
// It schedules devices "D1" and "D2" and uses millisecond document retries.
//
// Returns:
//   - Config: Configuration with fast timings for tests
//
// Example:
//
//	cfg := fillsched.TestConfig()
//	cfg.SeparateDeviceTrips = true
//	sched, err := fillsched.NewScheduler(&cfg, collaborators)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.Devices = []DeviceID{"D1", "D2"}
	cfg.OperationTimeout = 5 * time.Second
	cfg.DocumentSync.RetryBaseDelay = time.Millisecond
	cfg.DocumentSync.RetryMaxDelay = 10 * time.Millisecond

	return cfg
}

// ParseConfig decodes a YAML configuration, applies defaults and validates it.
//
// Parameters:
//   - data: YAML document
//
// Returns:
//   - Config: Decoded configuration
//   - error: Decode or validation error wrapping ErrInvalidConfig
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadConfig reads and parses a YAML configuration file.
//
// Parameters:
//   - path: File path
//
// Returns:
//   - Config: Decoded configuration
//   - error: Read, decode or validation error
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return ParseConfig(data)
}
