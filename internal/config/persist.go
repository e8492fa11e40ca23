package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// logKeyPattern matches an optionally-commented TOML key assignment like
// "logPath = ..." or "#logPath = ...", anchored to the start of the line
// so it never matches inside a quoted string value.
func logKeyPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`^#?\s*` + regexp.QuoteMeta(key) + `\s*=.*$`)
}

// updateLogSettingsInTOML rewrites logLevel/logPath/logMaxSize/
// logMaxBackups in content, uncommenting and updating each key where it
// already appears (whether commented out or live) and otherwise
// inserting it just before the first `[section]` table header — never by
// appending a new commented section, which would leave stray duplicate
// keys behind on repeated saves.
func updateLogSettingsInTOML(content, logLevel, logPath string, logMaxSize, logMaxBackups int) string {
	settings := []struct {
		key   string
		value string
	}{
		{"logPath", quoteTOMLString(logPath)},
		{"logMaxSize", fmt.Sprintf("%d", logMaxSize)},
		{"logMaxBackups", fmt.Sprintf("%d", logMaxBackups)},
		{"logLevel", quoteTOMLString(logLevel)},
	}

	lines := strings.Split(content, "\n")
	applied := make(map[string]bool, len(settings))

	for i, line := range lines {
		for _, s := range settings {
			if applied[s.key] {
				continue
			}
			if logKeyPattern(s.key).MatchString(line) {
				lines[i] = fmt.Sprintf("%s = %s", s.key, s.value)
				applied[s.key] = true
			}
		}
	}

	var missing []string
	for _, s := range settings {
		if !applied[s.key] {
			missing = append(missing, fmt.Sprintf("%s = %s", s.key, s.value))
		}
	}
	if len(missing) == 0 {
		return strings.Join(lines, "\n")
	}

	sectionIdx := len(lines)
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "[") {
			sectionIdx = i
			break
		}
	}

	out := make([]string, 0, len(lines)+len(missing))
	out = append(out, lines[:sectionIdx]...)
	out = append(out, missing...)
	out = append(out, lines[sectionIdx:]...)
	return strings.Join(out, "\n")
}

func quoteTOMLString(s string) string {
	return fmt.Sprintf("%q", s)
}

// SaveLogSettings reads the config file at path, applies
// updateLogSettingsInTOML to it, and writes the result back, preserving
// the permissions of the existing file.
func SaveLogSettings(path, logLevel, logPath string, logMaxSize, logMaxBackups int) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	updated := updateLogSettingsInTOML(string(raw), logLevel, logPath, logMaxSize, logMaxBackups)
	return os.WriteFile(path, []byte(updated), info.Mode())
}
