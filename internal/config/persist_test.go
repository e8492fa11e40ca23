package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateLogSettingsInTOMLUpdatesCommentedKeysInPlace(t *testing.T) {
	content := `# config.toml - Auto-generated on first run

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

# HTTP Timeouts
[httpTimeouts]
#readTimeout = 60
`
	updated := updateLogSettingsInTOML(content, "DEBUG", "/config/litebase.log", 50, 3)

	if strings.Contains(updated, "# Log settings") {
		t.Fatalf("unexpected appended log settings section:\n%s", updated)
	}

	httpIndex := strings.Index(updated, "[httpTimeouts]")
	if httpIndex == -1 {
		t.Fatalf("missing httpTimeouts section:\n%s", updated)
	}

	lastLogPath := strings.LastIndex(updated, "logPath")
	if lastLogPath == -1 {
		t.Fatalf("missing logPath setting:\n%s", updated)
	}
	if lastLogPath > httpIndex {
		t.Fatalf("logPath appended after httpTimeouts section:\n%s", updated)
	}

	if !strings.Contains(updated, `logPath = "/config/litebase.log"`) {
		t.Fatalf("logPath not updated in place:\n%s", updated)
	}
	if !strings.Contains(updated, "logMaxSize = 50") {
		t.Fatalf("logMaxSize not updated in place:\n%s", updated)
	}
	if !strings.Contains(updated, "logMaxBackups = 3") {
		t.Fatalf("logMaxBackups not updated in place:\n%s", updated)
	}
	if !strings.Contains(updated, `logLevel = "DEBUG"`) {
		t.Fatalf("logLevel not updated in place:\n%s", updated)
	}
}

func TestUpdateLogSettingsInTOMLInsertsMissingKeys(t *testing.T) {
	content := `host = "localhost"
port = 8080

[httpTimeouts]
#readTimeout = 60
`
	updated := updateLogSettingsInTOML(content, "WARN", "log/litebase.log", 10, 2)

	httpIndex := strings.Index(updated, "[httpTimeouts]")
	require.NotEqual(t, -1, httpIndex)

	for _, want := range []string{
		`logLevel = "WARN"`,
		`logPath = "log/litebase.log"`,
		"logMaxSize = 10",
		"logMaxBackups = 2",
	} {
		idx := strings.Index(updated, want)
		require.NotEqualf(t, -1, idx, "missing %q in:\n%s", want, updated)
		assert.Less(t, idx, httpIndex)
	}
}

func TestSaveLogSettingsRoundTrips(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	require.NoError(t, WriteDefaultConfig(configPath))

	require.NoError(t, SaveLogSettings(configPath, "TRACE", "/var/log/litebase.log", 25, 5))

	raw, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `logLevel = "TRACE"`)
	assert.Contains(t, string(raw), `logPath = "/var/log/litebase.log"`)
	assert.Contains(t, string(raw), "logMaxSize = 25")
	assert.Contains(t, string(raw), "logMaxBackups = 5")
}
