// Package config implements spec.md §9's "global mutable state (config,
// runtime)" design note: a single process-wide snapshot created at
// startup, read by every component through an atomic pointer, and
// replaced wholesale by writers via compare-exchange keyed on a content
// hash so concurrent edits are detected rather than silently lost.
//
// The teacher's own internal/config package was not retrieved into the
// reference pack — only config_test.go and persist_test.go were — so the
// struct and function contract here is reconstructed from what those
// tests observe (New(path) error, (*AppConfig).GetDatabasePath(),
// WriteDefaultConfig(path), a QUI__-prefixed double-underscore env var
// naming scheme) the same way internal/auth/argon2.go was reconstructed
// from argon2_test.go alone. See DESIGN.md.
package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// envPrefix matches the teacher's QUI__DATABASE_PATH style: two
// underscores separate the prefix from the key, and single underscores
// separate the key's words (LITEBASE__DATABASE_PATH).
const envPrefix = "LITEBASE"

// HTTPTimeouts mirrors the teacher's [httpTimeouts] TOML table.
type HTTPTimeouts struct {
	ReadTimeout  int `mapstructure:"readTimeout"`
	WriteTimeout int `mapstructure:"writeTimeout"`
	IdleTimeout  int `mapstructure:"idleTimeout"`
}

// AppConfig is the versioned snapshot spec.md §9 describes. Every field
// is a plain value so the whole struct can be copied, hashed, and
// swapped atomically.
type AppConfig struct {
	Host          string       `mapstructure:"host"`
	Port          int          `mapstructure:"port"`
	SessionSecret string       `mapstructure:"sessionSecret"`
	DatabasePath  string       `mapstructure:"databasePath"`
	DataDir       string       `mapstructure:"dataDir"`
	BackupPath    string       `mapstructure:"backupPath"`

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	HTTPTimeouts HTTPTimeouts `mapstructure:"httpTimeouts"`

	// MetricsPort, when nonzero, starts internal/metrics' dedicated scrape
	// listener on Host:MetricsPort, separate from the main API port so a
	// scrape target isn't reachable through the application's own
	// auth/session gate. MetricsBasicAuthUsers is a comma-separated
	// "user:pass,user2:pass2" list gating that listener (empty disables
	// auth on it entirely).
	MetricsPort           int    `mapstructure:"metricsPort"`
	MetricsBasicAuthUsers string `mapstructure:"metricsBasicAuthUsers"`

	// configPath and configDir are not part of the persisted document;
	// they record where this snapshot was loaded from, so
	// GetDatabasePath can resolve a relative databasePath next to it.
	configPath string `mapstructure:"-"`
	configDir  string `mapstructure:"-"`
}

const (
	defaultHost          = "localhost"
	defaultPort          = 7070
	defaultLogLevel      = "INFO"
	defaultLogMaxSize    = 50
	defaultLogMaxBackups = 3
	defaultDatabaseName  = "litebase.db"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", defaultHost)
	v.SetDefault("port", defaultPort)
	v.SetDefault("logLevel", defaultLogLevel)
	v.SetDefault("logMaxSize", defaultLogMaxSize)
	v.SetDefault("logMaxBackups", defaultLogMaxBackups)
	v.SetDefault("httpTimeouts.readTimeout", 60)
	v.SetDefault("httpTimeouts.writeTimeout", 60)
	v.SetDefault("httpTimeouts.idleTimeout", 120)
}

// New loads configPath into an AppConfig, applying defaults. It applies no
// environment variable overrides; GetDatabasePath reads
// LITEBASE__DATABASE_PATH itself.
func New(configPath string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	setDefaults(v)

	// Environment overrides follow the teacher's QUI__<KEY> double-
	// underscore scheme (env var name = prefix, "__", then the key's words
	// upper-cased and joined by single underscores). Only
	// databasePath needs this today (GetDatabasePath below), so it is
	// special-cased there rather than wired through viper's own
	// automatic-env machinery, which uppercases differently.
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", configPath, err)
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", configPath, err)
	}
	cfg.configPath = configPath
	cfg.configDir = filepath.Dir(configPath)
	return &cfg, nil
}

// GetDatabasePath resolves the configured database file: an explicit
// LITEBASE__DATABASE_PATH env var wins, then an explicit databasePath in
// the config file, then qui.db (renamed litebase.db here) next to the
// config file itself — the teacher's "next to config" backward-compat
// default from TestBackwardCompatibility.
func (c *AppConfig) GetDatabasePath() string {
	if env := os.Getenv(envPrefix + "__DATABASE_PATH"); env != "" {
		return env
	}
	if c.DatabasePath != "" {
		return c.DatabasePath
	}
	return filepath.Join(c.configDir, defaultDatabaseName)
}

// GetDataDir resolves the directory filestore writes attachments under,
// defaulting to a "data" directory next to the config file.
func (c *AppConfig) GetDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return filepath.Join(c.configDir, "data")
}

// WriteDefaultConfig writes a freshly-commented default config.toml to
// path, in the style grounded on persist_test.go's
// TestUpdateLogSettingsInTOMLUpdatesCommentedKeysInPlace fixture (the
// commented-out optional keys that updateLogSettingsInTOML later
// uncomments in place).
func WriteDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}
	secret, err := randomSessionSecret()
	if err != nil {
		return err
	}
	content := fmt.Sprintf(defaultConfigTemplate, secret)
	return os.WriteFile(path, []byte(content), 0o644)
}

const defaultConfigTemplate = `# config.toml - Auto-generated on first run

host = "localhost"
port = 7070
sessionSecret = %q

# Log file path
# If not defined, logs to stdout
# Optional
#logPath = "log/litebase.log"

# Log rotation
# Maximum log file size in megabytes before rotation
# Default: 50
#logMaxSize = 50

# Number of rotated log files to retain (0 keeps all)
# Default: 3
#logMaxBackups = 3

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "INFO"

# Prometheus scrape listener, on its own port so it isn't gated by the
# application's own auth/session middleware. 0 disables it.
# Default: 0
#metricsPort = 0

# Comma-separated "user:pass,user2:pass2" list gating the metrics
# listener. Empty leaves it unauthenticated.
#metricsBasicAuthUsers = ""

# HTTP Timeouts
[httpTimeouts]
#readTimeout = 60
#writeTimeout = 60
#idleTimeout = 120
`

// Manager holds the live AppConfig snapshot spec.md §9 calls for: readers
// load it lock-free, writers replace it wholesale via a content-hash
// compare-exchange, and a fsnotify watch keeps it in sync with edits made
// to the file on disk outside the process.
type Manager struct {
	snapshot atomic.Pointer[AppConfig]
	watcher  *fsnotify.Watcher
}

// ErrConflictingConfig is returned by Update when the caller's expected
// hash no longer matches the live snapshot — another writer got there
// first.
var ErrConflictingConfig = fmt.Errorf("config: conflicting update")

// NewManager loads configPath and starts a filesystem watch that
// transparently reloads the snapshot whenever the file changes on disk.
func NewManager(configPath string) (*Manager, error) {
	cfg, err := New(configPath)
	if err != nil {
		return nil, err
	}
	m := &Manager{}
	m.snapshot.Store(cfg)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", configPath, err)
	}
	m.watcher = watcher

	go m.watchLoop(configPath)
	return m, nil
}

func (m *Manager) watchLoop(configPath string) {
	for {
		select {
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(configPath) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := New(configPath)
			if err != nil {
				log.Warn().Err(err).Msg("config: reload failed, keeping previous snapshot")
				continue
			}
			m.snapshot.Store(cfg)
			log.Info().Msg("config: reloaded from disk")
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config: watcher error")
		}
	}
}

// Close stops the filesystem watch.
func (m *Manager) Close() error {
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Close()
}

// Get returns the current snapshot.
func (m *Manager) Get() *AppConfig {
	return m.snapshot.Load()
}

// Hash returns the content hash of the current snapshot, to be passed
// back into Update as the caller's expected version.
func (m *Manager) Hash() uint64 {
	return hashConfig(m.snapshot.Load())
}

// Update applies mutate to a copy of the current snapshot and swaps it
// in, but only if expectedHash still matches the live snapshot's hash —
// otherwise it returns ErrConflictingConfig without applying mutate,
// exactly the "writers replace the whole snapshot via compare-exchange
// keyed on a content hash" design from spec.md §9.
func (m *Manager) Update(expectedHash uint64, mutate func(*AppConfig)) (*AppConfig, error) {
	current := m.snapshot.Load()
	if hashConfig(current) != expectedHash {
		return nil, ErrConflictingConfig
	}

	next := *current
	mutate(&next)

	if !m.snapshot.CompareAndSwap(current, &next) {
		return nil, ErrConflictingConfig
	}
	return &next, nil
}

func hashConfig(c *AppConfig) uint64 {
	h := xxhash.New()
	fmt.Fprintf(h, "%#v", *c)
	return h.Sum64()
}

func randomSessionSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("config: generate session secret: %w", err)
	}
	return fmt.Sprintf("%x", b), nil
}
