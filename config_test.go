package fillsched

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arloliu/fillsched/internal/logger"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Empty(t, cfg.Devices)
	require.Equal(t, 4, cfg.QuadrantsPerDevice)
	require.False(t, cfg.SeparateDeviceTrips)
	require.False(t, cfg.DisableTrolleyReuse)
	require.Equal(t, 30*time.Second, cfg.OperationTimeout)
	require.Equal(t, 64, cfg.EventBufferSize)
	require.Equal(t, "fillsched-stations", cfg.DocumentSync.Bucket)
	require.Equal(t, "station", cfg.DocumentSync.KeyPrefix)
	require.Equal(t, 8, cfg.DocumentSync.MaxRetries)
	require.Equal(t, 20*time.Millisecond, cfg.DocumentSync.RetryBaseDelay)
	require.Equal(t, 500*time.Millisecond, cfg.DocumentSync.RetryMaxDelay)
	require.Equal(t, 3.0, cfg.DocumentSync.RetryMultiplier)
}

func TestSetDefaults(t *testing.T) {
	t.Run("applies defaults to empty config", func(t *testing.T) {
		cfg := Config{}
		SetDefaults(&cfg)

		require.Equal(t, 4, cfg.QuadrantsPerDevice)
		require.Equal(t, 30*time.Second, cfg.OperationTimeout)
		require.Equal(t, "station", cfg.DocumentSync.KeyPrefix)
		// MaxRetries 0 is a valid choice and stays.
		require.Zero(t, cfg.DocumentSync.MaxRetries)
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			Devices:            []DeviceID{"R1"},
			QuadrantsPerDevice: 2,
			OperationTimeout:   time.Minute,
			EventBufferSize:    8,
			DocumentSync: DocumentSyncConfig{
				Bucket:          "docs",
				KeyPrefix:       "fill",
				MaxRetries:      3,
				RetryBaseDelay:  time.Millisecond,
				RetryMaxDelay:   time.Second,
				RetryMultiplier: 2,
			},
		}
		SetDefaults(&cfg)

		require.Equal(t, 2, cfg.QuadrantsPerDevice)
		require.Equal(t, time.Minute, cfg.OperationTimeout)
		require.Equal(t, 8, cfg.EventBufferSize)
		require.Equal(t, "docs", cfg.DocumentSync.Bucket)
		require.Equal(t, "fill", cfg.DocumentSync.KeyPrefix)
		require.Equal(t, 3, cfg.DocumentSync.MaxRetries)
		require.Equal(t, 2.0, cfg.DocumentSync.RetryMultiplier)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "test config is valid", mutate: func(*Config) {}},
		{name: "no devices", mutate: func(c *Config) { c.Devices = nil }, wantErr: "at least one device"},
		{name: "duplicate device", mutate: func(c *Config) { c.Devices = []DeviceID{"D1", "D1"} }, wantErr: "listed twice"},
		{name: "empty device", mutate: func(c *Config) { c.Devices = []DeviceID{""} }, wantErr: "empty device"},
		{name: "no quadrants", mutate: func(c *Config) { c.QuadrantsPerDevice = 0 }, wantErr: "QuadrantsPerDevice"},
		{name: "negative timeout", mutate: func(c *Config) { c.OperationTimeout = -time.Second }, wantErr: "OperationTimeout"},
		{name: "negative buffer", mutate: func(c *Config) { c.EventBufferSize = -1 }, wantErr: "EventBufferSize"},
		{name: "negative retries", mutate: func(c *Config) { c.DocumentSync.MaxRetries = -1 }, wantErr: "MaxRetries"},
		{
			name: "base delay above max",
			mutate: func(c *Config) {
				c.DocumentSync.RetryBaseDelay = time.Second
				c.DocumentSync.RetryMaxDelay = time.Millisecond
			},
			wantErr: "RetryBaseDelay",
		},
		{name: "shrinking multiplier", mutate: func(c *Config) { c.DocumentSync.RetryMultiplier = 0.5 }, wantErr: "RetryMultiplier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := TestConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidConfig)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_ValidateWithWarnings(t *testing.T) {
	cfg := TestConfig()
	cfg.DocumentSync.MaxRetries = 0
	cfg.DisableTrolleyReuse = true
	cfg.DisableReplanOnTrolleyFree = true

	log := logger.NewTest(t)
	cfg.ValidateWithWarnings(log)

	warnings := log.Entries(logger.LevelWarn)
	require.Len(t, warnings, 2)
	require.Equal(t, 8, warnings[0].Fields["recommended"])
	require.True(t, log.Logged(logger.LevelWarn, "replanning are both disabled"))

	t.Run("defaults are quiet", func(t *testing.T) {
		quiet := logger.NewTest(t)
		cfg := TestConfig()
		cfg.ValidateWithWarnings(quiet)
		require.Empty(t, quiet.Entries(logger.LevelWarn))
	})
}

// TestConfig_YAML demonstrates that time.Duration works directly with YAML unmarshaling
func TestConfig_YAML(t *testing.T) {
	yamlConfig := `
devices: [D1, D2]
quadrantsPerDevice: 4
separateDeviceTrips: true
includeTrolleysOfOtherBatches: true
operationTimeout: 45s
eventBufferSize: 16
documentSync:
  bucket: stations
  keyPrefix: fill
  maxRetries: 5
  retryBaseDelay: 10ms
  retryMaxDelay: 1s
  retryMultiplier: 2
`

	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(yamlConfig), &cfg))

	require.Equal(t, []DeviceID{"D1", "D2"}, cfg.Devices)
	require.True(t, cfg.SeparateDeviceTrips)
	require.True(t, cfg.IncludeTrolleysOfOtherBatches)
	require.False(t, cfg.DisableTrolleyReuse)
	require.Equal(t, 45*time.Second, cfg.OperationTimeout)
	require.Equal(t, 16, cfg.EventBufferSize)
	require.Equal(t, "stations", cfg.DocumentSync.Bucket)
	require.Equal(t, 10*time.Millisecond, cfg.DocumentSync.RetryBaseDelay)
	require.Equal(t, time.Second, cfg.DocumentSync.RetryMaxDelay)
}

func TestParseConfig(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		cfg, err := ParseConfig([]byte("devices: [R1]\n"))
		require.NoError(t, err)
		require.Equal(t, []DeviceID{"R1"}, cfg.Devices)
		require.Equal(t, 4, cfg.QuadrantsPerDevice)
		require.Equal(t, "fillsched-stations", cfg.DocumentSync.Bucket)
	})

	t.Run("rejects invalid", func(t *testing.T) {
		_, err := ParseConfig([]byte("quadrantsPerDevice: 2\n"))
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		_, err := ParseConfig([]byte("devices: [R1\n"))
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fillsched.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devices: [D1]\noperationTimeout: 2s\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.OperationTimeout)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidConfig)
}
